package calibration

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"ble-bearing.klederson.com/internal/bearing"
	"ble-bearing.klederson.com/internal/config"
	"ble-bearing.klederson.com/internal/scanner"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"
)

// Distance is a labelled distance between the beacon and the rig.
type Distance struct {
	Key   string // short form used in file names, e.g. "20in"
	Label string // human form stored with each pose, e.g. "20 inches"
}

// RawLine is one unparsed line captured during a round.
type RawLine struct {
	Time      time.Time
	Direction scanner.Direction
	Line      string
}

// Round is the result of sampling every link for one pose.
type Round struct {
	Mean     bearing.Readings // always holds all four directions
	Counts   map[scanner.Direction]int
	Raw      []RawLine // ordered by arrival time
	Started  time.Time
	Finished time.Time
}

// Pose is one recorded calibration measurement.
type Pose struct {
	Distance Distance
	Angle    int
	Round
	Bearing float64 // estimated from the round means
}

// Sampler collects RSSI from all links for a fixed window and averages it
// per direction.
type Sampler struct {
	duration time.Duration
	floor    float64
	beacon   string
	logger   zerolog.Logger
}

// SamplerOption configures a Sampler.
type SamplerOption func(*Sampler)

// WithDuration sets the sampling window per round.
func WithDuration(d time.Duration) SamplerOption {
	return func(s *Sampler) {
		if d > 0 {
			s.duration = d
		}
	}
}

// WithFloor sets the value recorded for a direction that saw nothing.
func WithFloor(v float64) SamplerOption {
	return func(s *Sampler) {
		s.floor = v
	}
}

// WithBeacon restricts sampling to live-form lines from one device id.
func WithBeacon(id string) SamplerOption {
	return func(s *Sampler) {
		if id != "" {
			s.beacon = scanner.NormalizeID(id)
		}
	}
}

// WithSamplerLogger sets the logger used for link faults.
func WithSamplerLogger(logger zerolog.Logger) SamplerOption {
	return func(s *Sampler) {
		s.logger = logger
	}
}

// NewSampler creates a Sampler with the default window and floor.
func NewSampler(opts ...SamplerOption) *Sampler {
	s := &Sampler{
		duration: config.PoseDuration,
		floor:    config.FloorRSSI,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Duration returns the sampling window.
func (s *Sampler) Duration() time.Duration { return s.duration }

type workerResult struct {
	rssi []float64
	raw  []RawLine
}

// Sample runs one reader per link for the sampling window and returns the
// per-direction means. Lines queued before the round are dropped so the
// means and the raw log cover the same window. Workers are joined before
// returning. A cancelled parent context stops the round early and is
// reported as the error.
func (s *Sampler) Sample(ctx context.Context, links []*scanner.Link) (Round, error) {
	for _, l := range links {
		if n := l.Discard(); n > 0 {
			s.logger.Debug().Str("direction", l.Direction().String()).Int("lines", n).Msg("dropped lines queued before the round")
		}
	}

	round := Round{
		Mean:    make(bearing.Readings, len(scanner.Directions)),
		Counts:  make(map[scanner.Direction]int, len(scanner.Directions)),
		Started: time.Now(),
	}

	rctx, cancel := context.WithTimeout(ctx, s.duration)
	defer cancel()

	results := make([]workerResult, len(links))
	var wg sync.WaitGroup
	for i, l := range links {
		wg.Add(1)
		go func(i int, l *scanner.Link) {
			defer wg.Done()
			results[i] = s.collect(rctx, l, round.Started)
		}(i, l)
	}
	wg.Wait()
	round.Finished = time.Now()

	values := make(map[scanner.Direction][]float64)
	for i, r := range results {
		d := links[i].Direction()
		values[d] = append(values[d], r.rssi...)
		round.Raw = append(round.Raw, r.raw...)
	}
	sort.SliceStable(round.Raw, func(a, b int) bool {
		return round.Raw[a].Time.Before(round.Raw[b].Time)
	})

	for _, d := range scanner.Directions {
		v := values[d]
		round.Counts[d] = len(v)
		if len(v) == 0 {
			round.Mean[d] = s.floor
			continue
		}
		round.Mean[d] = stat.Mean(v, nil)
	}

	return round, ctx.Err()
}

func (s *Sampler) collect(ctx context.Context, l *scanner.Link, since time.Time) workerResult {
	var res workerResult
	for {
		line, at, err := l.ReadLineAt(ctx)
		if err != nil {
			if errors.Is(err, scanner.ErrLinkClosed) {
				s.logger.Warn().Err(err).Str("direction", l.Direction().String()).Msg("link failed during sampling")
			}
			return res
		}
		if line == "" || at.Before(since) {
			continue
		}
		res.raw = append(res.raw, RawLine{Time: at, Direction: l.Direction(), Line: line})
		if rssi, ok := s.parse(line); ok {
			res.rssi = append(res.rssi, float64(rssi))
		}
	}
}

func (s *Sampler) parse(line string) (int, bool) {
	if s.beacon == "" {
		return scanner.ParseCalibration(line)
	}
	sample, ok := scanner.ParseLive(line)
	if !ok || sample.DeviceID != s.beacon {
		return 0, false
	}
	return sample.RSSI, true
}
