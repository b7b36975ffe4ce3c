// Package live turns the multiplexed scanner streams into smoothed bearings
// on a fixed cadence.
package live

import (
	"context"
	"errors"
	"maps"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"ble-bearing.klederson.com/internal/bearing"
	"ble-bearing.klederson.com/internal/config"
	"ble-bearing.klederson.com/internal/scanner"
	"github.com/rs/zerolog"
)

// Estimate is the bearing of one device on one tick. Angles are radians in
// (-π, π], measured counter-clockwise from east.
type Estimate struct {
	DeviceID  string
	Name      string
	Raw       float64
	Median    float64
	Smoothed  float64
	Rejected  bool
	Readings  map[scanner.Direction]int
	MaxRSSI   int
	History   []float64 // smoothed bearings, oldest first
	LastSeen  time.Time
	Timestamp time.Time
}

// Frame is the output of one tick, strongest device first.
type Frame struct {
	Time      time.Time
	Estimates []Estimate
	Tracked   int // devices in the reading table, estimated or not
}

type device struct {
	rssi     map[scanner.Direction]int
	name     string
	lastSeen time.Time
}

func (d *device) readings() bearing.Readings {
	r := make(bearing.Readings, len(d.rssi))
	for dir, v := range d.rssi {
		r[dir] = float64(v)
	}
	return r
}

// Aggregator keeps the latest RSSI per device and direction and estimates
// bearings on every tick. The reading table and the Smoother belong to the
// Run loop; the filter and running flag may be changed from any goroutine
// and apply from the next tick.
type Aggregator struct {
	links      []*scanner.Link
	smoother   *bearing.Smoother
	cadence    time.Duration
	queueSize  int
	staleAfter time.Duration
	sinks      []func(Frame)
	logger     zerolog.Logger

	filter  atomic.Pointer[Filter]
	running atomic.Bool

	devices map[string]*device
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithCadence sets the estimation tick.
func WithCadence(d time.Duration) Option {
	return func(a *Aggregator) {
		if d > 0 {
			a.cadence = d
		}
	}
}

// WithQueueSize bounds the sample channel between link readers and the loop.
func WithQueueSize(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.queueSize = n
		}
	}
}

// WithStaleAfter drops devices not heard from for d, together with their
// smoother state. Zero, the default, keeps devices until overwritten.
func WithStaleAfter(d time.Duration) Option {
	return func(a *Aggregator) {
		a.staleAfter = d
	}
}

// WithSink registers a function called with every frame, from the Run loop.
func WithSink(fn func(Frame)) Option {
	return func(a *Aggregator) {
		a.sinks = append(a.sinks, fn)
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(a *Aggregator) {
		a.logger = logger
	}
}

// WithFilter sets the initial filter.
func WithFilter(f Filter) Option {
	return func(a *Aggregator) {
		a.filter.Store(&f)
	}
}

// New creates a running Aggregator over links.
func New(links []*scanner.Link, smoother *bearing.Smoother, opts ...Option) *Aggregator {
	a := &Aggregator{
		links:     links,
		smoother:  smoother,
		cadence:   config.Cadence,
		queueSize: config.SampleQueue,
		logger:    zerolog.Nop(),
		devices:   make(map[string]*device),
	}
	f := DefaultFilter()
	a.filter.Store(&f)
	a.running.Store(true)
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Filter returns the filter the next tick will use.
func (a *Aggregator) Filter() Filter { return *a.filter.Load() }

// SetAllowList replaces the allow-list.
func (a *Aggregator) SetAllowList(ids []string) {
	a.updateFilter(func(f Filter) Filter { return f.WithAllow(ids...) })
}

// SetBlockList replaces the block-list.
func (a *Aggregator) SetBlockList(ids []string) {
	a.updateFilter(func(f Filter) Filter { return f.WithBlock(ids...) })
}

// Block adds one id to the block-list.
func (a *Aggregator) Block(id string) {
	a.updateFilter(func(f Filter) Filter { return f.WithBlock(append(f.Block(), id)...) })
}

// SetThreshold sets the minimum max-RSSI, in dBm.
func (a *Aggregator) SetThreshold(dbm int) {
	a.updateFilter(func(f Filter) Filter {
		f.Threshold = dbm
		return f
	})
}

func (a *Aggregator) updateFilter(fn func(Filter) Filter) {
	for {
		old := a.filter.Load()
		next := fn(*old)
		if a.filter.CompareAndSwap(old, &next) {
			return
		}
	}
}

// Pause stops estimation. Samples keep flowing into the reading table.
func (a *Aggregator) Pause() { a.running.Store(false) }

// Resume restarts estimation.
func (a *Aggregator) Resume() { a.running.Store(true) }

// Running reports whether ticks produce frames.
func (a *Aggregator) Running() bool { return a.running.Load() }

// Run reads every link and estimates on each tick until ctx is done. Link
// readers are joined before Run returns.
func (a *Aggregator) Run(ctx context.Context) {
	var wg sync.WaitGroup
	defer wg.Wait()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	samples := make(chan scanner.Sample, a.queueSize)
	for _, l := range a.links {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.read(ctx, l, samples)
		}()
	}

	ticker := time.NewTicker(a.cadence)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case s := <-samples:
			a.ingest(s)
		case now := <-ticker.C:
			frame, ok := a.evaluate(now)
			if !ok {
				continue
			}
			for _, sink := range a.sinks {
				sink(frame)
			}
		}
	}
}

func (a *Aggregator) read(ctx context.Context, l *scanner.Link, out chan<- scanner.Sample) {
	for {
		line, at, err := l.ReadLineAt(ctx)
		if err != nil {
			if errors.Is(err, scanner.ErrLinkClosed) {
				a.logger.Warn().Err(err).Str("direction", l.Direction().String()).Msg("scanner link lost")
			}
			return
		}
		if line == "" {
			continue
		}
		s, ok := scanner.ParseLive(line)
		if !ok {
			continue
		}
		s.Direction = l.Direction()
		s.Time = at

		select {
		case out <- s:
		case <-ctx.Done():
			return
		}
	}
}

// ingest records a sample, last write wins per device and direction.
func (a *Aggregator) ingest(s scanner.Sample) {
	d, ok := a.devices[s.DeviceID]
	if !ok {
		d = &device{rssi: make(map[scanner.Direction]int, len(scanner.Directions))}
		a.devices[s.DeviceID] = d
	}
	d.rssi[s.Direction] = s.RSSI
	if s.Name != "" {
		d.name = s.Name
	}
	d.lastSeen = s.Time
}

// evaluate prunes stale devices and, while running, estimates every device
// the filter admits.
func (a *Aggregator) evaluate(now time.Time) (Frame, bool) {
	a.prune(now)
	if !a.running.Load() {
		return Frame{}, false
	}

	f := a.filter.Load()
	frame := Frame{Time: now, Tracked: len(a.devices)}
	for id, d := range a.devices {
		r := d.readings()
		if !f.Admits(id, r) {
			continue
		}
		step := a.smoother.Update(id, bearing.Estimate(r))
		frame.Estimates = append(frame.Estimates, Estimate{
			DeviceID:  id,
			Name:      d.name,
			Raw:       step.Raw,
			Median:    step.Median,
			Smoothed:  step.Smoothed,
			Rejected:  step.Rejected,
			Readings:  maps.Clone(d.rssi),
			MaxRSSI:   int(r.Max()),
			History:   a.smoother.History(id),
			LastSeen:  d.lastSeen,
			Timestamp: now,
		})
	}

	slices.SortFunc(frame.Estimates, func(x, y Estimate) int {
		if x.MaxRSSI != y.MaxRSSI {
			return y.MaxRSSI - x.MaxRSSI
		}
		return strings.Compare(x.DeviceID, y.DeviceID)
	})

	a.logger.Debug().Int("tracked", frame.Tracked).Int("smoothed", a.smoother.Len()).Int("estimated", len(frame.Estimates)).Msg("tick")
	return frame, true
}

func (a *Aggregator) prune(now time.Time) {
	if a.staleAfter <= 0 {
		return
	}
	for id, d := range a.devices {
		if now.Sub(d.lastSeen) > a.staleAfter {
			delete(a.devices, id)
			a.smoother.Forget(id)
			a.logger.Debug().Str("device", id).Msg("device dropped after inactivity")
		}
	}
}
