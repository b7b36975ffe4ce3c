package scanner

import "testing"

func TestParseLive(t *testing.T) {
	tests := []struct {
		name   string
		line   string
		want   Sample
		wantOK bool
	}{
		{
			name:   "with name",
			line:   "MAC: aa:bb:cc:dd:ee:ff | RSSI: -67 | Name: Tag1",
			want:   Sample{DeviceID: "AA:BB:CC:DD:EE:FF", RSSI: -67, Name: "Tag1"},
			wantOK: true,
		},
		{
			name:   "without name",
			line:   "MAC: 11:22:33:44:55:66 | RSSI: -80",
			want:   Sample{DeviceID: "11:22:33:44:55:66", RSSI: -80},
			wantOK: true,
		},
		{
			name:   "tight spacing",
			line:   "MAC:aa:bb:cc:dd:ee:ff|RSSI:-5|Name:x y",
			want:   Sample{DeviceID: "AA:BB:CC:DD:EE:FF", RSSI: -5, Name: "x y"},
			wantOK: true,
		},
		{
			name:   "prefixed by firmware noise",
			line:   "[NORTH] adv MAC: 01:02:03:04:05:06 | RSSI: -71",
			want:   Sample{DeviceID: "01:02:03:04:05:06", RSSI: -71},
			wantOK: true,
		},
		{
			name:   "positive rssi",
			line:   "MAC: 01:02:03:04:05:06 | RSSI: 3",
			want:   Sample{DeviceID: "01:02:03:04:05:06", RSSI: 3},
			wantOK: true,
		},
		{
			name:   "short id kept upper-cased",
			line:   "MAC: ab:cd | RSSI: -60",
			want:   Sample{DeviceID: "AB:CD", RSSI: -60},
			wantOK: true,
		},
		{
			name:   "trailing garbage ignored",
			line:   "MAC: 01:02:03:04:05:06 | RSSI: -71 extra",
			want:   Sample{DeviceID: "01:02:03:04:05:06", RSSI: -71},
			wantOK: true,
		},
		{name: "non-numeric rssi", line: "MAC: aa:bb:cc:dd:ee:ff | RSSI: abc"},
		{name: "missing separator", line: "MAC: aa:bb:cc:dd:ee:ff RSSI: -60"},
		{name: "dash only", line: "MAC: aa:bb:cc:dd:ee:ff | RSSI: -"},
		{name: "empty", line: ""},
		{name: "boot line", line: "Starting BLE scan... [NORTH] | 1234"},
		{name: "non hex id", line: "MAC: zz:zz | RSSI: -60"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseLive(tt.line)
			if ok != tt.wantOK {
				t.Fatalf("ParseLive(%q) ok = %v, want %v", tt.line, ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("ParseLive(%q) = %+v, want %+v", tt.line, got, tt.want)
			}
		})
	}
}

func TestParseCalibration(t *testing.T) {
	tests := []struct {
		line   string
		want   int
		wantOK bool
	}{
		{"MAC: AA:BB:CC:DD:EE:FF | RSSI: -67", -67, true},
		{"MAC: AA | RSSI:-42", -42, true},
		{"MAC: AA | RSSI: 1 | RSSI: -50", -50, true},
		{"MAC: AA:BB | RSSI: abc", 0, false},
		{"MAC: AA | RSSI: -67 | Name: Tag1", 0, false},
		{"  MAC: AA | RSSI: -67", 0, false},
		{"RSSI: -67", 0, false},
		{"MAC: AA:BB:CC", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		got, ok := ParseCalibration(tt.line)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("ParseCalibration(%q) = %d, %v; want %d, %v", tt.line, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestParseBoot(t *testing.T) {
	tests := []struct {
		line   string
		dir    Direction
		millis uint64
		wantOK bool
	}{
		{"Starting BLE scan... [NORTH] | 123456", North, 123456, true},
		{"Starting BLE scan... [west] | 7", West, 7, true},
		{"boot: Starting BLE scan... [SOUTH] | 42 ms", South, 42, true},
		{"Starting BLE scan... [UP] | 42", 0, 0, false},
		{"Starting BLE scan... [EAST] 42", 0, 0, false},
		{"Starting BLE scan... [EAST] | ", 0, 0, false},
		{"Starting BLE scan [EAST] | 42", 0, 0, false},
	}

	for _, tt := range tests {
		dir, ms, ok := ParseBoot(tt.line)
		if ok != tt.wantOK || dir != tt.dir || ms != tt.millis {
			t.Errorf("ParseBoot(%q) = %v, %d, %v; want %v, %d, %v", tt.line, dir, ms, ok, tt.dir, tt.millis, tt.wantOK)
		}
	}
}

func TestDetectDirection(t *testing.T) {
	tests := []struct {
		line   string
		want   Direction
		wantOK bool
	}{
		{"Starting BLE scan... [EAST] | 10", East, true},
		{"[WEST] scanning", West, true},
		{"SOUTH scanner ready", South, true},
		{"MAC: AA | RSSI: -60", 0, false},
	}
	for _, tt := range tests {
		got, ok := DetectDirection(tt.line)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("DetectDirection(%q) = %v, %v; want %v, %v", tt.line, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestParseDirection(t *testing.T) {
	for _, d := range Directions {
		for _, s := range []string{d.String(), d.Tag(), " " + d.Tag() + " "} {
			got, ok := ParseDirection(s)
			if !ok || got != d {
				t.Errorf("ParseDirection(%q) = %v, %v; want %v", s, got, ok, d)
			}
		}
	}
	if _, ok := ParseDirection("up"); ok {
		t.Error("ParseDirection(up) should fail")
	}
}
