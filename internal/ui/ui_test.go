package ui

import (
	"math"
	"regexp"
	"strings"
	"testing"
	"time"

	"ble-bearing.klederson.com/internal/live"
	"ble-bearing.klederson.com/internal/scanner"
)

var ansi = regexp.MustCompile(`\x1b\[[0-9;]*m`)

func plain(s string) string { return ansi.ReplaceAllString(s, "") }

func testEstimate() live.Estimate {
	return live.Estimate{
		DeviceID: "AA:BB:CC:DD:EE:01",
		Name:     "Tag1",
		Smoothed: math.Pi / 2,
		Raw:      math.Pi / 2,
		Rejected: true,
		Readings: map[scanner.Direction]int{scanner.North: -48, scanner.East: -71, scanner.West: -90},
		MaxRSSI:  -48,
		History:  []float64{math.Pi / 2, math.Pi/2 + 0.1, math.Pi/2 + 0.2},
		LastSeen: time.Now(),
	}
}

func TestRenderDeviceList(t *testing.T) {
	empty := plain(RenderDeviceList(nil, 40, 20, 0, FilterState{Threshold: -80}))
	if got := len(strings.Split(empty, "\n")); got != 20 {
		t.Errorf("empty list has %d lines, want 20", got)
	}
	for _, want := range []string{"DEVICES [0]", "No bearings yet", "RSSI >= -80 dBm", "Allow: -"} {
		if !strings.Contains(empty, want) {
			t.Errorf("empty list missing %q", want)
		}
	}

	filter := FilterState{Threshold: -70, Block: []string{"AA:BB:CC:DD:EE:09"}, Mode: InputAllow, Text: "AA"}
	out := plain(RenderDeviceList([]live.Estimate{testEstimate()}, 40, 20, 0, filter))
	for _, want := range []string{"DEVICES [1]", ">> Tag1 !", "AA:BB:CC:DD:EE:01", "-48dBm", "000° N", "3 dir", "Allow: AA_", "Block: AA:BB:CC:DD:EE:09"} {
		if !strings.Contains(out, want) {
			t.Errorf("list missing %q:\n%s", want, out)
		}
	}
}

func TestRenderStatusBar(t *testing.T) {
	out := plain(RenderStatusBar(160, Status{Running: false, Tracked: 1234, Estimated: 3, Threshold: -75}))
	for _, want := range []string{"[PAUSED]", "Devices: 1,234", "Bearings: 3", "Threshold: -75dBm", "Updated: waiting"} {
		if !strings.Contains(out, want) {
			t.Errorf("status bar missing %q: %s", want, out)
		}
	}

	out = plain(RenderStatusBar(160, Status{Running: true, Updated: time.Now()}))
	if !strings.Contains(out, "[LIVE]") || !strings.Contains(out, "Updated: now") {
		t.Errorf("status bar = %s", out)
	}
}

func TestRenderMenuBar(t *testing.T) {
	out := plain(RenderMenuBar(140, "demo", false))
	for _, want := range []string{"[S]tart", "[+/-]RSSI", "PAUSED", "Scanners: demo"} {
		if !strings.Contains(out, want) {
			t.Errorf("menu bar missing %q: %s", want, out)
		}
	}
}

// find returns the row and column of the first ch in a rendered grid.
func find(grid string, ch rune) (int, int) {
	for row, line := range strings.Split(grid, "\n") {
		if col := strings.IndexRune(line, ch); col >= 0 {
			return row, col
		}
	}
	return -1, -1
}

func TestRenderCompass(t *testing.T) {
	if RenderCompass(8, 11, 0, -50) != "" {
		t.Error("too narrow a compass should render nothing")
	}

	north := plain(RenderCompass(21, 11, 0, -40))
	cRow, cCol := find(north, '+')
	tRow, tCol := find(north, '^')
	if tRow < 0 || tRow >= cRow || tCol != cCol {
		t.Errorf("north tip at (%d,%d), center at (%d,%d):\n%s", tRow, tCol, cRow, cCol, north)
	}

	east := plain(RenderCompass(21, 11, math.Pi/2, -40))
	cRow, cCol = find(east, '+')
	tRow, tCol = find(east, '>')
	if tCol <= cCol || math.Abs(float64(tRow-cRow)) > 1 {
		t.Errorf("east tip at (%d,%d), center at (%d,%d):\n%s", tRow, tCol, cRow, cCol, east)
	}

	// A weak signal draws a shorter arrow.
	weak := plain(RenderCompass(21, 11, 0, -100))
	wRow, _ := find(weak, '^')
	if nRow, _ := find(north, '^'); wRow <= nRow {
		t.Errorf("weak tip row %d should be closer to center than strong row %d", wRow, nRow)
	}
}

func TestRenderDetailPanel(t *testing.T) {
	out := plain(RenderDetailPanel(testEstimate(), 70, 40))
	if got := len(strings.Split(out, "\n")); got != 40 {
		t.Errorf("detail has %d lines, want 40", got)
	}
	for _, want := range []string{"DEVICE DETAIL", "Tag1", "AA:BB:CC:DD:EE:01", "0° N", "-48 dBm", "yes", "now", "South", "no signal", "Heading History"} {
		if !strings.Contains(out, want) {
			t.Errorf("detail missing %q:\n%s", want, out)
		}
	}
}

func TestRenderSparkline(t *testing.T) {
	if got := renderSparkline([]float64{0, 1, 2, 3, 4}, 10); got != "_.-~^" {
		t.Errorf("sparkline = %q", got)
	}
	if got := renderSparkline([]float64{0, 1, 2, 3, 4}, 2); got != "_^" {
		t.Errorf("clipped sparkline = %q", got)
	}
	if got := renderSparkline(nil, 10); got != "" {
		t.Errorf("empty sparkline = %q", got)
	}
}

func TestUnwrapHeadings(t *testing.T) {
	// Swinging counter-clockwise through north keeps going below zero.
	got := unwrapHeadings([]float64{math.Pi/2 - 0.1, math.Pi / 2, math.Pi/2 + 0.1})
	want := []float64{5.7296, 0, -5.7296}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-3 {
			t.Fatalf("unwrapHeadings = %v, want %v", got, want)
		}
	}
}
