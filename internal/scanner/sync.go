package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ble-bearing.klederson.com/internal/config"
	"github.com/rs/zerolog"
)

// SyncResult reports how closely the scanners rebooted together.
type SyncResult struct {
	Boot     map[Direction]uint64
	Skew     time.Duration
	Missing  []Direction
	Warnings []string
}

// Complete reports whether every link announced its boot.
func (r SyncResult) Complete() bool {
	return len(r.Missing) == 0 && len(r.Boot) > 0
}

// Synchronizer reboots all scanners at once and measures the skew between
// their boot timestamps. It never fails: problems are reported as warnings.
type Synchronizer struct {
	window    time.Duration
	tolerance time.Duration
	logger    zerolog.Logger
}

// SyncOption configures a Synchronizer.
type SyncOption func(*Synchronizer)

// WithSyncWindow sets how long to wait for boot announcements.
func WithSyncWindow(d time.Duration) SyncOption {
	return func(s *Synchronizer) {
		if d > 0 {
			s.window = d
		}
	}
}

// WithSyncTolerance sets the acceptable boot skew.
func WithSyncTolerance(d time.Duration) SyncOption {
	return func(s *Synchronizer) {
		if d >= 0 {
			s.tolerance = d
		}
	}
}

// WithSyncLogger sets the logger used for sync warnings.
func WithSyncLogger(logger zerolog.Logger) SyncOption {
	return func(s *Synchronizer) {
		s.logger = logger
	}
}

// NewSynchronizer creates a Synchronizer with the default window and tolerance.
func NewSynchronizer(opts ...SyncOption) *Synchronizer {
	s := &Synchronizer{
		window:    config.SyncWindow,
		tolerance: config.SyncTolerance,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type bootReport struct {
	dir    Direction
	millis uint64
	ok     bool
}

// Sync sends the reset command to every link, then listens on all of them
// concurrently for their boot announcement until the window closes.
func (s *Synchronizer) Sync(ctx context.Context, links []*Link) SyncResult {
	result := SyncResult{Boot: make(map[Direction]uint64)}
	warn := func(msg string) {
		result.Warnings = append(result.Warnings, msg)
	}

	for _, l := range links {
		if err := l.Reset(); err != nil {
			s.logger.Warn().Err(err).Str("direction", l.Direction().String()).Msg("reset failed")
			warn(err.Error())
		}
	}

	wctx, cancel := context.WithTimeout(ctx, s.window)
	defer cancel()

	reports := make([]bootReport, len(links))
	var wg sync.WaitGroup
	for i, l := range links {
		wg.Add(1)
		go func(i int, l *Link) {
			defer wg.Done()
			reports[i] = s.awaitBoot(wctx, l)
		}(i, l)
	}
	wg.Wait()

	for i, r := range reports {
		l := links[i]
		if !r.ok {
			result.Missing = append(result.Missing, l.Direction())
			continue
		}
		if r.dir != l.Direction() {
			msg := fmt.Sprintf("%s link announced itself as %s", l.Direction(), r.dir)
			s.logger.Warn().Str("direction", l.Direction().String()).Str("tag", r.dir.String()).Msg("boot tag does not match link direction")
			warn(msg)
		}
		l.setBootMillis(r.millis)
		result.Boot[l.Direction()] = r.millis
	}

	if len(result.Boot) > 0 {
		var lo, hi uint64
		first := true
		for _, ms := range result.Boot {
			if first || ms < lo {
				lo = ms
			}
			if first || ms > hi {
				hi = ms
			}
			first = false
		}
		result.Skew = time.Duration(hi-lo) * time.Millisecond
	}

	if len(result.Missing) > 0 {
		for _, d := range result.Missing {
			warn(fmt.Sprintf("no boot announcement from %s", d))
		}
		s.logger.Warn().Int("acknowledged", len(result.Boot)).Int("links", len(links)).Msg("not all scanners acknowledged reboot")
	}
	if result.Skew > s.tolerance {
		warn(fmt.Sprintf("boot skew %s exceeds tolerance %s", result.Skew, s.tolerance))
		s.logger.Warn().Dur("skew", result.Skew).Dur("tolerance", s.tolerance).Msg("scanner clocks out of sync")
	} else if len(result.Boot) > 0 {
		s.logger.Info().Dur("skew", result.Skew).Int("scanners", len(result.Boot)).Msg("scanners synchronized")
	}

	return result
}

func (s *Synchronizer) awaitBoot(ctx context.Context, l *Link) bootReport {
	for {
		line, err := l.ReadLine(ctx)
		if err != nil {
			if errors.Is(err, ErrLinkClosed) {
				s.logger.Warn().Err(err).Str("direction", l.Direction().String()).Msg("link closed during sync")
			}
			return bootReport{}
		}
		if dir, ms, ok := ParseBoot(line); ok {
			return bootReport{dir: dir, millis: ms, ok: true}
		}
	}
}
