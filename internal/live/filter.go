package live

import (
	"maps"
	"slices"
	"strings"

	"ble-bearing.klederson.com/internal/bearing"
	"ble-bearing.klederson.com/internal/config"
	"ble-bearing.klederson.com/internal/scanner"
)

// Filter decides which devices get a bearing on a tick. A Filter is never
// mutated after it is shared; the With* methods return modified copies.
type Filter struct {
	Threshold     int // minimum max-RSSI in dBm
	MinDirections int

	allow map[string]struct{}
	block map[string]struct{}
}

// DefaultFilter admits every device with at least two directions at or
// above -80 dBm.
func DefaultFilter() Filter {
	return Filter{Threshold: config.RSSIThreshold, MinDirections: config.MinDirections}
}

// ParseIDList splits a free-text, comma-separated id list into normalized
// device ids. Blank entries are dropped.
func ParseIDList(s string) []string {
	var ids []string
	for _, part := range strings.Split(s, ",") {
		if id := scanner.NormalizeID(part); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// WithAllow returns a copy whose allow-list is ids. An empty allow-list lets
// every id through.
func (f Filter) WithAllow(ids ...string) Filter {
	f.allow = idSet(ids)
	return f
}

// WithBlock returns a copy whose block-list is ids.
func (f Filter) WithBlock(ids ...string) Filter {
	f.block = idSet(ids)
	return f
}

// Allow returns the allow-list, sorted.
func (f Filter) Allow() []string { return sortedIDs(f.allow) }

// Block returns the block-list, sorted.
func (f Filter) Block() []string { return sortedIDs(f.block) }

// Listed reports whether the allow and block lists let id through. The
// block-list wins over the allow-list.
func (f Filter) Listed(id string) bool {
	if _, blocked := f.block[id]; blocked {
		return false
	}
	if len(f.allow) == 0 {
		return true
	}
	_, ok := f.allow[id]
	return ok
}

// Admits reports whether a device gets a bearing this tick.
func (f Filter) Admits(id string, r bearing.Readings) bool {
	if !f.Listed(id) || len(r) < f.MinDirections || len(r) == 0 {
		return false
	}
	return r.Max() >= float64(f.Threshold)
}

func idSet(ids []string) map[string]struct{} {
	if len(ids) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id = scanner.NormalizeID(id); id != "" {
			set[id] = struct{}{}
		}
	}
	return set
}

func sortedIDs(set map[string]struct{}) []string {
	return slices.Sorted(maps.Keys(set))
}
