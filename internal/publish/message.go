// Package publish exposes live bearing frames outside the process: MQTT,
// a WebSocket feed and a small HTTP API.
package publish

import (
	"math"
	"time"

	"ble-bearing.klederson.com/internal/bearing"
	"ble-bearing.klederson.com/internal/live"
	"ble-bearing.klederson.com/internal/scanner"
)

// BearingMessage is the wire form of one live estimate. Bearings are in
// degrees counter-clockwise from east; Heading is the compass form.
type BearingMessage struct {
	DeviceID  string         `json:"device_id"`
	Name      string         `json:"name,omitempty"`
	Bearing   float64        `json:"bearing_deg"`
	Raw       float64        `json:"raw_deg"`
	Heading   float64        `json:"heading_deg"`
	Compass   string         `json:"compass"`
	Rejected  bool           `json:"rejected,omitempty"`
	MaxRSSI   int            `json:"max_rssi"`
	Readings  map[string]int `json:"readings"`
	LastSeen  time.Time      `json:"last_seen"`
	Timestamp time.Time      `json:"timestamp"`
}

// FrameMessage is the wire form of one tick.
type FrameMessage struct {
	Time     time.Time        `json:"time"`
	Tracked  int              `json:"tracked"`
	Bearings []BearingMessage `json:"bearings"`
}

// FilterMessage describes the live filter.
type FilterMessage struct {
	Running       bool     `json:"running"`
	Threshold     int      `json:"rssi_threshold"`
	MinDirections int      `json:"min_directions"`
	Allow         []string `json:"allow"`
	Block         []string `json:"block"`
}

// NewFrameMessage converts a frame for publishing.
func NewFrameMessage(f live.Frame) FrameMessage {
	msg := FrameMessage{
		Time:     f.Time,
		Tracked:  f.Tracked,
		Bearings: make([]BearingMessage, 0, len(f.Estimates)),
	}
	for _, e := range f.Estimates {
		heading := bearing.ToCompass(e.Smoothed)
		readings := make(map[string]int, len(e.Readings))
		for _, d := range scanner.Directions {
			if v, ok := e.Readings[d]; ok {
				readings[d.String()] = v
			}
		}
		msg.Bearings = append(msg.Bearings, BearingMessage{
			DeviceID:  e.DeviceID,
			Name:      e.Name,
			Bearing:   round1(bearing.Degrees(e.Smoothed)),
			Raw:       round1(bearing.Degrees(e.Raw)),
			Heading:   round1(bearing.Degrees(heading)),
			Compass:   bearing.CompassPoint(heading),
			Rejected:  e.Rejected,
			MaxRSSI:   e.MaxRSSI,
			Readings:  readings,
			LastSeen:  e.LastSeen,
			Timestamp: e.Timestamp,
		})
	}
	return msg
}

// NewFilterMessage describes a filter and the running state.
func NewFilterMessage(f live.Filter, running bool) FilterMessage {
	return FilterMessage{
		Running:       running,
		Threshold:     f.Threshold,
		MinDirections: f.MinDirections,
		Allow:         nonNil(f.Allow()),
		Block:         nonNil(f.Block()),
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
