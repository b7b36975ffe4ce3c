package ui

import (
	"fmt"
	"strings"

	"ble-bearing.klederson.com/internal/bearing"
	"ble-bearing.klederson.com/internal/live"
	"github.com/charmbracelet/lipgloss"
)

// InputMode is the text entry the device list is collecting, if any.
type InputMode int

const (
	InputNone InputMode = iota
	InputAllow
	InputBlock
)

// FilterState is the filter bar shown above the device list.
type FilterState struct {
	Threshold int
	Allow     []string
	Block     []string
	Mode      InputMode
	Text      string // text being entered
}

// Cursor row style: black text on bright green = unmissable highlight
var cursorRowSty = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#000000")).
	Background(ColorMatrixGreen).
	Bold(true)

const linesPerDevice = 4 // 3 content + 1 blank

// RenderDeviceList renders the scrollable device table. The filter bar stays
// fixed at the top; only the device entries scroll.
func RenderDeviceList(estimates []live.Estimate, width, height, cursor int, filter FilterState) string {
	innerW := max(width-4, 10)

	title := StylePanelTitle.Render(fmt.Sprintf("DEVICES [%d]", len(estimates)))
	separator := StyleRadarRing.Render(strings.Repeat("-", innerW))
	headerLines := []string{title, separator}
	headerLines = append(headerLines, renderFilterBar(filter, innerW)...)
	headerLines = append(headerLines, separator)

	innerH := max(height-2, len(headerLines)+1)
	devSpace := innerH - len(headerLines)

	var devLines []string
	if len(estimates) == 0 {
		devLines = append(devLines, "",
			StyleHelp.Render(" No bearings yet..."),
			StyleHelp.Render(" Waiting for two directions"))
	} else {
		maxVisible := max(devSpace/linesPerDevice, 1)

		// Viewport start keeps the cursor visible.
		viewStart := 0
		if cursor >= maxVisible {
			viewStart = cursor - maxVisible + 1
		}

		for i := viewStart; i < len(estimates) && len(devLines) < devSpace; i++ {
			devLines = append(devLines, renderEntry(estimates[i], innerW, i == cursor)...)
		}
	}

	if len(devLines) > devSpace {
		devLines = devLines[:devSpace]
	}
	for len(devLines) < devSpace {
		devLines = append(devLines, "")
	}

	all := append(headerLines, devLines...)
	rendered := StylePanelBorder.Width(width - 2).Height(innerH).Render(strings.Join(all, "\n"))
	return clampLines(rendered, height)
}

func renderEntry(e live.Estimate, maxW int, isCursor bool) []string {
	heading := bearing.ToCompass(e.Smoothed)
	name := e.Name
	if name == "" {
		name = "(unnamed)"
	}
	if nameMax := max(maxW-8, 4); len(name) > nameMax {
		name = name[:nameMax]
	}

	held := " "
	if e.Rejected {
		held = "!"
	}

	rssi := fmt.Sprintf("%ddBm", e.MaxRSSI)
	angle := fmt.Sprintf("%03.0f° %s", bearing.Degrees(heading), bearing.CompassPoint(heading))
	dirs := fmt.Sprintf("%d dir", len(e.Readings))

	if isCursor {
		raw1 := truncRaw(fmt.Sprintf(">> %s %s", name, held), maxW)
		raw2 := truncRaw("   "+e.DeviceID, maxW)
		raw3 := truncRaw(fmt.Sprintf("   %s  %s  %s", rssi, angle, dirs), maxW)
		return []string{cursorRowSty.Render(raw1), cursorRowSty.Render(raw2), cursorRowSty.Render(raw3), ""}
	}

	line1 := "   " + StyleDeviceName.Render(name)
	if e.Rejected {
		line1 += " " + StyleHeldMarker.Render(held)
	}
	line2 := "   " + StyleDeviceMAC.Render(e.DeviceID)
	line3 := "   " + StyleDeviceRSSI.Render(rssi) + "  " + StyleDeviceAngle.Render(angle) + "  " + StyleHelp.Render(dirs)
	return []string{line1, line2, line3, ""}
}

// truncRaw pads or truncates a raw string to exactly w characters.
func truncRaw(s string, w int) string {
	r := []rune(s)
	if len(r) > w {
		return string(r[:w])
	}
	return s + strings.Repeat(" ", w-len(r))
}

func renderFilterBar(f FilterState, maxW int) []string {
	line := func(label string, mode InputMode, ids []string) string {
		if f.Mode == mode {
			return truncRaw(" "+label+": "+f.Text+"_", maxW)
		}
		value := "-"
		if len(ids) > 0 {
			value = strings.Join(ids, ",")
		}
		return truncRaw(" "+label+": "+value, maxW)
	}

	allow := line("Allow", InputAllow, f.Allow)
	block := line("Block", InputBlock, f.Block)
	style := func(mode InputMode, s string) string {
		if f.Mode == mode {
			return StyleFilterActive.Render(s)
		}
		return StyleFilterInactive.Render(s)
	}

	return []string{
		StyleFilterActive.Render(fmt.Sprintf(" RSSI >= %d dBm", f.Threshold)),
		style(InputAllow, allow),
		style(InputBlock, block),
	}
}
