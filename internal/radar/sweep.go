package radar

import (
	"math"
	"time"

	"ble-bearing.klederson.com/internal/bearing"
	"ble-bearing.klederson.com/internal/config"
)

// Sweep is the rotating glow line drawn over the plot.
type Sweep struct {
	Heading float64 // radians, 0=north, clockwise
	start   time.Time
}

// NewSweep creates a sweep pointing north at start.
func NewSweep(start time.Time) *Sweep {
	return &Sweep{start: start}
}

// Advance moves the sweep to where it is at now.
func (s *Sweep) Advance(now time.Time) {
	rps := float64(config.SweepSpeedRPM) / 60.0
	s.Heading = math.Mod(now.Sub(s.start).Seconds()*rps*2*math.Pi, 2*math.Pi)
}

// Intensity returns the glow in [0, 1] of a cell at heading h: 1 under the
// sweep line, fading to 0 at the end of the trail.
func (s *Sweep) Intensity(h float64) float64 {
	behind := bearing.NormalizeAngle(s.Heading - h)
	trail := bearing.Radians(config.SweepTrailDeg)
	if behind > trail {
		return 0
	}
	return 1 - behind/trail
}
