package calibration

import (
	"context"
	"errors"
	"fmt"

	"ble-bearing.klederson.com/internal/bearing"
	"ble-bearing.klederson.com/internal/config"
	"ble-bearing.klederson.com/internal/scanner"
	"github.com/rs/zerolog"
)

// ErrNoLinks is returned when a sweep is started without any scanner.
var ErrNoLinks = errors.New("no scanner links")

// Prompter waits until the operator has placed the beacon for a pose.
type Prompter interface {
	Ready(ctx context.Context, d Distance, angle int) error
}

// PrompterFunc adapts a function to the Prompter interface.
type PrompterFunc func(ctx context.Context, d Distance, angle int) error

// Ready calls f.
func (f PrompterFunc) Ready(ctx context.Context, d Distance, angle int) error {
	return f(ctx, d, angle)
}

// Sink stores recorded poses.
type Sink interface {
	WritePose(ctx context.Context, p Pose) error
}

// SyncRecorder is implemented by sinks that also keep the sync outcome.
type SyncRecorder interface {
	RecordSync(ctx context.Context, r scanner.SyncResult) error
}

// Sweep drives a full calibration pass at one distance: sync the scanners,
// then sample every angle in turn.
type Sweep struct {
	sampler *Sampler
	sync    *scanner.Synchronizer
	step    int
	logger  zerolog.Logger
}

// SweepOption configures a Sweep.
type SweepOption func(*Sweep)

// WithAngleStep sets the angle increment in degrees.
func WithAngleStep(deg int) SweepOption {
	return func(w *Sweep) {
		if deg > 0 && deg <= 360 {
			w.step = deg
		}
	}
}

// WithSynchronizer reboots and syncs the scanners before each sweep.
func WithSynchronizer(s *scanner.Synchronizer) SweepOption {
	return func(w *Sweep) {
		w.sync = s
	}
}

// WithSweepLogger sets the logger used for progress.
func WithSweepLogger(logger zerolog.Logger) SweepOption {
	return func(w *Sweep) {
		w.logger = logger
	}
}

// NewSweep creates a Sweep around a sampler.
func NewSweep(sampler *Sampler, opts ...SweepOption) *Sweep {
	w := &Sweep{
		sampler: sampler,
		step:    config.AngleStep,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Angles lists the pose angles of a sweep: 0 up to but excluding 360.
func Angles(step int) []int {
	if step <= 0 {
		step = config.AngleStep
	}
	var out []int
	for a := 0; a < 360; a += step {
		out = append(out, a)
	}
	return out
}

// Run records one pose per angle at the given distance and writes each to
// the sink as soon as it is complete.
func (w *Sweep) Run(ctx context.Context, d Distance, links []*scanner.Link, prompt Prompter, sink Sink) ([]Pose, error) {
	if len(links) == 0 {
		return nil, ErrNoLinks
	}

	if w.sync != nil {
		res := w.sync.Sync(ctx, links)
		w.logger.Info().Dur("skew", res.Skew).Int("acknowledged", len(res.Boot)).Int("warnings", len(res.Warnings)).Msg("sync check done")
		if rec, ok := sink.(SyncRecorder); ok {
			if err := rec.RecordSync(ctx, res); err != nil {
				return nil, fmt.Errorf("recording sync result: %w", err)
			}
		}
	}

	angles := Angles(w.step)
	poses := make([]Pose, 0, len(angles))
	for _, angle := range angles {
		if err := prompt.Ready(ctx, d, angle); err != nil {
			return poses, fmt.Errorf("waiting for pose %d: %w", angle, err)
		}

		w.logger.Info().Str("distance", d.Label).Int("angle", angle).Dur("duration", w.sampler.Duration()).Msg("sampling pose")
		round, err := w.sampler.Sample(ctx, links)
		if err != nil {
			return poses, fmt.Errorf("sampling pose %d: %w", angle, err)
		}

		pose := Pose{
			Distance: d,
			Angle:    angle,
			Round:    round,
			Bearing:  bearing.Estimate(round.Mean),
		}
		if err := sink.WritePose(ctx, pose); err != nil {
			return poses, fmt.Errorf("writing pose %d: %w", angle, err)
		}
		poses = append(poses, pose)

		w.logger.Info().
			Int("angle", angle).
			Float64("north", round.Mean[scanner.North]).
			Float64("east", round.Mean[scanner.East]).
			Float64("south", round.Mean[scanner.South]).
			Float64("west", round.Mean[scanner.West]).
			Float64("bearing_deg", bearing.Degrees(pose.Bearing)).
			Msg("pose recorded")
	}
	return poses, nil
}
