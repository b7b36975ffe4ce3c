package live

import (
	"slices"
	"testing"

	"ble-bearing.klederson.com/internal/bearing"
	"ble-bearing.klederson.com/internal/scanner"
)

func TestParseIDList(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{" , ,", nil},
		{"aa:bb:cc:dd:ee:ff", []string{"AA:BB:CC:DD:EE:FF"}},
		{"aa:bb:cc:dd:ee:ff, 11:22:33:44:55:66 ,beacon-7", []string{"AA:BB:CC:DD:EE:FF", "11:22:33:44:55:66", "BEACON-7"}},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseIDList(tt.in); !slices.Equal(got, tt.want) {
				t.Errorf("ParseIDList(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestFilterListed(t *testing.T) {
	base := DefaultFilter()
	tests := []struct {
		name   string
		filter Filter
		id     string
		want   bool
	}{
		{"no lists", base, tagA, true},
		{"allowed", base.WithAllow(tagA), tagA, true},
		{"not allowed", base.WithAllow(tagA), tagB, false},
		{"blocked", base.WithBlock(tagB), tagB, false},
		{"block wins", base.WithAllow(tagA, tagB).WithBlock(tagB), tagB, false},
		{"lower-case entry", base.WithAllow("aa:bb:cc:dd:ee:01"), tagA, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Listed(tt.id); got != tt.want {
				t.Errorf("Listed(%s) = %v, want %v", tt.id, got, tt.want)
			}
		})
	}
}

func TestFilterAdmits(t *testing.T) {
	f := DefaultFilter()
	tests := []struct {
		name string
		r    bearing.Readings
		want bool
	}{
		{"empty", bearing.Readings{}, false},
		{"one direction", bearing.Readings{scanner.North: -40}, false},
		{"two strong", bearing.Readings{scanner.North: -40, scanner.West: -90}, true},
		{"two weak", bearing.Readings{scanner.North: -81, scanner.West: -90}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.Admits(tagA, tt.r); got != tt.want {
				t.Errorf("Admits() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilterCopies(t *testing.T) {
	base := DefaultFilter().WithAllow(tagB, tagA)
	changed := base.WithAllow()

	if got := base.Allow(); !slices.Equal(got, []string{tagA, tagB}) {
		t.Errorf("Allow() = %v", got)
	}
	if len(changed.Allow()) != 0 {
		t.Errorf("cleared copy Allow() = %v", changed.Allow())
	}
}
