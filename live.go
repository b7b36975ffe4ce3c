package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"ble-bearing.klederson.com/internal/app"
	"ble-bearing.klederson.com/internal/bearing"
	"ble-bearing.klederson.com/internal/live"
	"ble-bearing.klederson.com/internal/publish"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	flagThreshold int
	flagAllow     string
	flagBlock     string
	flagCadence   time.Duration
	flagMQTT      string
	flagHTTP      string
	flagNoTUI     bool
	flagLogFile   string
)

func newLiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "live",
		Short: "Estimate device bearings continuously",
		Long: `Reads every scanner concurrently, keeps the latest RSSI per device and
direction, and once per cadence tick estimates and smooths a bearing for every
device that passes the filter. Bearings are shown on a north-up polar plot and
can also be published over MQTT and a local HTTP/WebSocket API.`,
		RunE: runLive,
	}

	f := cmd.Flags()
	f.IntVar(&flagThreshold, "threshold", 0, "Minimum max-RSSI in dBm for a device to be estimated (default from config, -80)")
	f.StringVar(&flagAllow, "allow", "", "Comma-separated device ids to track exclusively")
	f.StringVar(&flagBlock, "block", "", "Comma-separated device ids to ignore")
	f.DurationVar(&flagCadence, "cadence", 0, "Estimation interval (default from config, 1s)")
	f.StringVar(&flagMQTT, "mqtt", "", "MQTT broker URL to publish frames to, e.g. tcp://localhost:1883")
	f.StringVar(&flagHTTP, "http", "", "Address for the HTTP/WebSocket API, e.g. :8080")
	f.BoolVar(&flagNoTUI, "no-tui", false, "Log bearings instead of drawing the plot")
	f.StringVar(&flagLogFile, "log-file", "", "Write logs here while the plot owns the terminal")
	return cmd
}

// applyLiveFlags layers explicitly set flags over the loaded config.
func applyLiveFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	if f.Changed("threshold") {
		cfg.SetThreshold(flagThreshold)
	}
	if f.Changed("allow") {
		cfg.Live.AllowList = live.ParseIDList(flagAllow)
	}
	if f.Changed("block") {
		cfg.Live.BlockList = live.ParseIDList(flagBlock)
	}
	if f.Changed("cadence") && flagCadence > 0 {
		cfg.Live.Cadence = flagCadence
	}
	if f.Changed("mqtt") {
		cfg.MQTT.Broker = flagMQTT
	}
	if f.Changed("http") {
		cfg.HTTP.Addr = flagHTTP
	}
	if f.Changed("log-file") {
		cfg.Log.File = flagLogFile
	}
}

// liveLogWriter picks where logs go: stderr without the plot, otherwise the
// log file if one is configured, otherwise nowhere.
func liveLogWriter() (io.Writer, func(), error) {
	if flagNoTUI {
		return os.Stderr, func() {}, nil
	}
	if cfg.Log.File == "" {
		return io.Discard, func() {}, nil
	}
	f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

func newAggregator(r *rig, logger zerolog.Logger, sink func(live.Frame)) *live.Aggregator {
	smoother := bearing.NewSmoother(
		bearing.WithAlpha(cfg.Smoothing.Alpha),
		bearing.WithMedianWindow(cfg.Smoothing.MedianWindow),
		bearing.WithOutlierThreshold(bearing.Radians(cfg.Smoothing.OutlierThresholdDeg)),
		bearing.WithHistoryLength(cfg.Smoothing.HistoryLength),
	)

	filter := live.DefaultFilter().
		WithAllow(live.ParseIDList(strings.Join(cfg.Live.AllowList, ","))...).
		WithBlock(live.ParseIDList(strings.Join(cfg.Live.BlockList, ","))...)
	filter.Threshold = cfg.Threshold()
	filter.MinDirections = cfg.Live.MinDirections

	return live.New(r.links, smoother,
		live.WithCadence(cfg.Live.Cadence),
		live.WithQueueSize(cfg.Live.QueueSize),
		live.WithStaleAfter(cfg.Live.DeviceTimeout),
		live.WithFilter(filter),
		live.WithLogger(logger.With().Str("component", "live").Logger()),
		live.WithSink(sink),
	)
}

func runLive(cmd *cobra.Command, _ []string) error {
	applyLiveFlags(cmd)

	w, closeLog, err := liveLogWriter()
	if err != nil {
		return err
	}
	defer closeLog()
	logger := newLogger(w)

	ctx, stop := signalContext()
	defer stop()

	r, err := openRig(ctx, logger)
	if err != nil {
		return err
	}
	defer r.Close(logger)

	// Sinks are registered below, before the aggregator starts.
	var sinks []func(live.Frame)
	agg := newAggregator(r, logger, func(f live.Frame) {
		for _, sink := range sinks {
			sink(f)
		}
	})

	if cfg.MQTT.Broker != "" {
		pub := publish.NewMQTTPublisher(cfg.MQTT.Broker, cfg.MQTT.ClientID, cfg.MQTT.Topic,
			publish.WithMQTTLogger(logger.With().Str("component", "mqtt").Logger()))
		if err := pub.Connect(); err != nil {
			return err
		}
		defer pub.Close()
		sinks = append(sinks, pub.Sink)
	}

	var wg sync.WaitGroup
	defer wg.Wait()

	if cfg.HTTP.Addr != "" {
		hubLogger := logger.With().Str("component", "http").Logger()
		hub := publish.NewHub(agg, hubLogger)
		server := publish.NewServer(cfg.HTTP.Addr, hub, agg, hubLogger)
		sinks = append(sinks, hub.Publish)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := server.Serve(ctx); err != nil {
				hubLogger.Error().Err(err).Msg("http server stopped")
			}
		}()
	}

	if flagNoTUI {
		sinks = append(sinks, logFrame(logger))
		logger.Info().Str("source", r.source).Int("threshold", cfg.Threshold()).Msg("live estimation started")
		agg.Run(ctx)
		stop()
		return nil
	}

	model := app.New(agg, r.source, stop)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	sinks = append(sinks, app.FrameSink(p))

	wg.Add(1)
	go func() {
		defer wg.Done()
		agg.Run(ctx)
	}()

	_, err = p.Run()
	stop()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}

// logFrame writes one line per estimate.
func logFrame(logger zerolog.Logger) func(live.Frame) {
	return func(f live.Frame) {
		for _, e := range f.Estimates {
			heading := bearing.ToCompass(e.Smoothed)
			logger.Info().
				Str("device", e.DeviceID).
				Str("name", e.Name).
				Float64("bearing_deg", bearing.Degrees(e.Smoothed)).
				Float64("heading_deg", bearing.Degrees(heading)).
				Str("compass", bearing.CompassPoint(heading)).
				Int("max_rssi", e.MaxRSSI).
				Int("directions", len(e.Readings)).
				Bool("held", e.Rejected).
				Msg("bearing")
		}
		logger.Debug().Int("tracked", f.Tracked).Int("estimated", len(f.Estimates)).Msg("tick")
	}
}
