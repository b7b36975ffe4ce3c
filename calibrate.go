package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"ble-bearing.klederson.com/internal/bearing"
	"ble-bearing.klederson.com/internal/calibration"
	"ble-bearing.klederson.com/internal/config"
	"ble-bearing.klederson.com/internal/dataset"
	"ble-bearing.klederson.com/internal/scanner"
	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	flagDistance string
	flagDuration time.Duration
	flagStep     int
	flagOut      string
	flagFormat   string
	flagDB       string
	flagBeacon   string
	flagNoSync   bool
	flagSweeps   int
)

func newCalibrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calibrate",
		Short: "Record a labelled RSSI dataset around the rig",
		Long: `Reboots the scanners and checks that they came up together, then walks
through every angle of a full circle at one distance. At each angle you place
the beacon and press Enter; every scanner is sampled for the pose duration and
the averaged RSSI is written to CSV or SQLite along with the raw lines. After a
sweep you can record another, at any distance, as a new run.`,
		RunE: runCalibrate,
	}

	f := cmd.Flags()
	f.StringVar(&flagDistance, "distance", "", "Distance key, e.g. 20in (prompted when empty)")
	f.DurationVar(&flagDuration, "duration", 0, "Sampling window per pose (default from config, 5s)")
	f.IntVar(&flagStep, "step", 0, "Degrees between poses (default from config, 10)")
	f.StringVar(&flagOut, "out", "", "Output directory for CSV files")
	f.StringVar(&flagFormat, "format", "", "Dataset format: csv or sqlite")
	f.StringVar(&flagDB, "db", "", "SQLite database file (default <out>/calibration.db)")
	f.StringVar(&flagBeacon, "beacon", "", "Only count lines from this device id")
	f.BoolVar(&flagNoSync, "no-sync", false, "Skip the reboot synchronization check")
	f.IntVar(&flagSweeps, "sweeps", 0, "Number of sweeps to record without asking (default: ask after each, or one with --distance)")
	return cmd
}

func applyCalibrateFlags(cmd *cobra.Command) error {
	f := cmd.Flags()
	c := &cfg.Calibration
	if f.Changed("duration") {
		c.PoseDuration = flagDuration
	}
	if f.Changed("step") {
		c.AngleStep = flagStep
	}
	if f.Changed("out") {
		c.OutputDir = flagOut
	}
	if f.Changed("format") {
		c.Format = flagFormat
	}
	if f.Changed("db") {
		c.Database = flagDB
	}
	if f.Changed("beacon") {
		c.Beacon = flagBeacon
	}
	if f.Changed("no-sync") {
		cfg.Sync.Skip = flagNoSync
	}
	if c.Database == "" {
		c.Database = filepath.Join(c.OutputDir, "calibration.db")
	}
	if flagSweeps < 0 {
		return fmt.Errorf("--sweeps must not be negative, got %d", flagSweeps)
	}
	return cfg.Validate()
}

func runCalibrate(cmd *cobra.Command, _ []string) error {
	if err := applyCalibrateFlags(cmd); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	logger := newLogger(os.Stderr)

	ctx, stop := signalContext()
	defer stop()

	in := bufio.NewReader(os.Stdin)
	out := cmd.OutOrStdout()
	menu := cfg.Calibration.Distances

	if flagDistance != "" {
		if _, err := chooseDistance(ctx, nil, nil, menu, flagDistance); err != nil {
			return err
		}
	}

	r, err := openRig(ctx, logger)
	if err != nil {
		return err
	}
	defer r.Close(logger)

	var prompt calibration.Prompter = stdinPrompter(in, out)
	if r.mock != nil {
		prompt = demoPrompter(r.mock, logger)
	}

	sampler := calibration.NewSampler(
		calibration.WithDuration(cfg.Calibration.PoseDuration),
		calibration.WithBeacon(cfg.Calibration.Beacon),
		calibration.WithSamplerLogger(logger),
	)
	opts := []calibration.SweepOption{
		calibration.WithAngleStep(cfg.Calibration.AngleStep),
		calibration.WithSweepLogger(logger),
	}
	if !cfg.Sync.Skip {
		opts = append(opts, calibration.WithSynchronizer(scanner.NewSynchronizer(
			scanner.WithSyncWindow(cfg.Sync.Window),
			scanner.WithSyncTolerance(cfg.Sync.Tolerance),
			scanner.WithSyncLogger(logger),
		)))
	}
	sweep := calibration.NewSweep(sampler, opts...)

	if cfg.Calibration.Format == "sqlite" {
		if err := os.MkdirAll(filepath.Dir(cfg.Calibration.Database), 0o755); err != nil {
			return fmt.Errorf("creating database directory: %w", err)
		}
	}

	done, err := repeatSweeps(ctx, in, out, menu, flagDistance, flagSweeps, func(ctx context.Context, d calibration.Distance) error {
		return sweepOnce(ctx, sweep, d, r, prompt, logger)
	})
	logger.Info().Int("sweeps", done).Msg("calibration session ended")
	if err != nil && ctx.Err() != nil {
		logger.Warn().Msg("calibration interrupted; recorded poses were kept")
		return nil
	}
	return err
}

// repeatSweeps runs sweeps until the plan is done: count sweeps when count is
// set, a single sweep when the distance came from a flag, otherwise until the
// operator declines another. It returns how many sweeps completed.
func repeatSweeps(ctx context.Context, in *bufio.Reader, out io.Writer, menu []config.Distance, key string, count int, sweep func(context.Context, calibration.Distance) error) (int, error) {
	done := 0
	for {
		d, err := chooseDistance(ctx, in, out, menu, key)
		if err != nil {
			return done, err
		}
		if err := sweep(ctx, d); err != nil {
			return done, err
		}
		done++

		switch {
		case count > 0:
			if done >= count {
				return done, nil
			}
		case key != "":
			return done, nil
		default:
			more, err := askYesNo(ctx, in, out, "Another sweep? (y/n): ")
			if err != nil || !more {
				return done, err
			}
		}
	}
}

// sweepOnce records one run at distance d into a fresh dataset.
func sweepOnce(ctx context.Context, sweep *calibration.Sweep, d calibration.Distance, r *rig, prompt calibration.Prompter, logger zerolog.Logger) error {
	run := dataset.NewRun(d)
	sink, err := dataset.Open(cfg.Calibration.Format, cfg.Calibration.OutputDir, cfg.Calibration.Database, run)
	if err != nil {
		return err
	}

	angles := calibration.Angles(cfg.Calibration.AngleStep)
	logger.Info().
		Str("run", run.ID.String()).
		Str("distance", d.Label).
		Int("poses", len(angles)).
		Str("sampling_time", strings.TrimSpace(humanize.RelTime(time.Now(), time.Now().Add(time.Duration(len(angles))*cfg.Calibration.PoseDuration), "", ""))).
		Msg("calibration started")

	poses, runErr := sweep.Run(ctx, d, r.links, prompt, sink)
	if err := sink.Close(); err != nil && runErr == nil {
		runErr = fmt.Errorf("closing dataset: %w", err)
	}

	where := cfg.Calibration.Database
	if csvSink, ok := sink.(*dataset.CSVSink); ok {
		avg, raw := csvSink.Paths()
		where = avg + ", " + raw
	}
	logger.Info().Str("run", run.ID.String()).Int("poses", len(poses)).Str("saved", where).Msg("calibration finished")
	return runErr
}

// askYesNo asks until the answer is y or n. End of input counts as no.
func askYesNo(ctx context.Context, in *bufio.Reader, out io.Writer, question string) (bool, error) {
	for {
		fmt.Fprint(out, question)
		line, err := readLine(ctx, in)
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		switch strings.ToLower(line) {
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}
		fmt.Fprintln(out, "Please answer y or n.")
	}
}

// chooseDistance resolves the distance flag against the menu, or asks.
func chooseDistance(ctx context.Context, in *bufio.Reader, out io.Writer, menu []config.Distance, key string) (calibration.Distance, error) {
	if key != "" {
		for _, d := range menu {
			if strings.EqualFold(d.Key, key) {
				return calibration.Distance{Key: d.Key, Label: d.Label}, nil
			}
		}
		return calibration.Distance{}, fmt.Errorf("unknown distance %q", key)
	}

	fmt.Fprintln(out, "Select distance:")
	for i, d := range menu {
		fmt.Fprintf(out, "  %d) %s\n", i+1, d.Label)
	}
	for {
		fmt.Fprintf(out, "Choice [1-%d]: ", len(menu))
		line, err := readLine(ctx, in)
		if err != nil {
			return calibration.Distance{}, err
		}
		n, err := strconv.Atoi(line)
		if err == nil && n >= 1 && n <= len(menu) {
			d := menu[n-1]
			return calibration.Distance{Key: d.Key, Label: d.Label}, nil
		}
		fmt.Fprintln(out, "Invalid choice.")
	}
}

// readLine reads one trimmed line, giving up when ctx is cancelled.
func readLine(ctx context.Context, in *bufio.Reader) (string, error) {
	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := in.ReadString('\n')
		if err == io.EOF && line != "" {
			err = nil
		}
		ch <- result{strings.TrimSpace(line), err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		return r.line, r.err
	}
}

// stdinPrompter waits for Enter before each pose.
func stdinPrompter(in *bufio.Reader, out io.Writer) calibration.Prompter {
	return calibration.PrompterFunc(func(ctx context.Context, d calibration.Distance, angle int) error {
		heading := bearing.Radians(float64(angle))
		fmt.Fprintf(out, "\nPlace the beacon %s away at %d° (%s) and press Enter...", d.Label, angle, bearing.CompassPoint(heading))
		_, err := readLine(ctx, in)
		return err
	})
}

// demoPrompter moves the simulated beacons to each pose instead of asking.
func demoPrompter(rig *scanner.MockRig, logger zerolog.Logger) calibration.Prompter {
	return calibration.PrompterFunc(func(ctx context.Context, d calibration.Distance, angle int) error {
		rig.Place(bearing.FromCompass(bearing.Radians(float64(angle))))
		logger.Info().Str("distance", d.Label).Int("angle", angle).Msg("demo beacon placed")
		return ctx.Err()
	})
}
