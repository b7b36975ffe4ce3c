package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"ble-bearing.klederson.com/internal/config"
	"ble-bearing.klederson.com/internal/scanner"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	flagConfig   string
	flagLogLevel string
	flagDemo     bool
	flagPorts    []string

	cfg *config.Config
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ble-bearing",
		Short: "BLE Bearing - direction finding with four directional BLE scanners",
		Long: `BLE Bearing reads RSSI from four directional BLE scanners (North, East,
South, West) over USB serial and estimates the bearing of every nearby device.

  live       estimate bearings continuously and show them on a polar plot
  calibrate  record a labelled RSSI dataset while walking a beacon around the rig

Use --demo to run against a simulated rig without hardware.`,
		SilenceUsage:      true,
		PersistentPreRunE: loadConfig,
	}

	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&flagDemo, "demo", false, "Run against a simulated rig (no scanners required)")
	rootCmd.PersistentFlags().StringArrayVar(&flagPorts, "port", nil, "Assign a serial port to a direction, e.g. north=/dev/ttyUSB0 (repeatable)")

	rootCmd.AddCommand(newLiveCmd(), newCalibrateCmd(), newRunsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(_ *cobra.Command, _ []string) error {
	var err error
	if cfg, err = config.Load(flagConfig); err != nil {
		return err
	}
	if flagLogLevel != "" {
		cfg.Log.Level = flagLogLevel
	}
	if len(flagPorts) > 0 && cfg.Serial.Ports == nil {
		cfg.Serial.Ports = make(map[string]string, len(flagPorts))
	}
	for _, p := range flagPorts {
		dir, path, ok := strings.Cut(p, "=")
		if !ok || path == "" {
			return fmt.Errorf("invalid --port %q, want direction=path", p)
		}
		d, ok := scanner.ParseDirection(dir)
		if !ok {
			return fmt.Errorf("invalid --port %q: unknown direction %q", p, dir)
		}
		cfg.Serial.Ports[strings.ToLower(d.String())] = path
	}
	return nil
}

// newLogger builds a console logger at the configured level.
func newLogger(w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	out := zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly, NoColor: w != os.Stderr}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// rig is the set of scanner links a command runs against.
type rig struct {
	links  []*scanner.Link
	source string
	mock   *scanner.MockRig // set in demo mode
}

// openRig connects to the scanners: the simulated rig with --demo, the
// configured ports when any are assigned, otherwise every candidate serial
// port is probed for its direction tag. Zero links is an error.
func openRig(ctx context.Context, logger zerolog.Logger) (*rig, error) {
	linkOpts := []scanner.LinkOption{
		scanner.WithReadTimeout(cfg.Serial.ReadTimeout),
		scanner.WithLinkLogger(logger),
	}

	if flagDemo {
		mock := scanner.NewMockRig()
		go mock.Run(ctx)
		return &rig{links: mock.Links(linkOpts...), source: "demo", mock: mock}, nil
	}

	d := scanner.NewDiscoverer(scanner.SerialOpener(cfg.Serial.BaudRate), cfg.Serial.DiscoverTimeout, logger, linkOpts...)

	var links []*scanner.Link
	if len(cfg.Serial.Ports) > 0 {
		assigned := make(map[scanner.Direction]string, len(cfg.Serial.Ports))
		for name, path := range cfg.Serial.Ports {
			dir, _ := scanner.ParseDirection(name) // validated with the config
			assigned[dir] = path
		}
		var err error
		if links, err = d.Open(assigned); err != nil {
			return nil, err
		}
	} else {
		ports, err := scanner.CandidatePorts()
		if err != nil {
			return nil, err
		}
		logger.Info().Strs("ports", ports).Msg("probing serial ports")
		links = d.Discover(ctx, ports)
	}

	if len(links) == 0 {
		return nil, errors.New("no scanners found; attach them, assign them with --port, or use --demo")
	}
	if len(links) < len(scanner.Directions) {
		logger.Warn().Int("links", len(links)).Msg("running with a partial rig")
	}

	names := make([]string, len(links))
	for i, l := range links {
		names[i] = l.String()
	}
	logger.Info().Strs("links", names).Msg("scanner rig ready")
	return &rig{links: links, source: fmt.Sprintf("%d/4 serial", len(links))}, nil
}

func (r *rig) Close(logger zerolog.Logger) {
	if err := scanner.CloseAll(r.links); err != nil {
		logger.Warn().Err(err).Msg("closing scanner links")
	}
}
