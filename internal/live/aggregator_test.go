package live

import (
	"context"
	"math"
	"testing"
	"time"

	"ble-bearing.klederson.com/internal/bearing"
	"ble-bearing.klederson.com/internal/scanner"
)

const (
	tagA = "AA:BB:CC:DD:EE:01"
	tagB = "AA:BB:CC:DD:EE:02"
)

func sample(id string, d scanner.Direction, rssi int, at time.Time) scanner.Sample {
	return scanner.Sample{DeviceID: id, Direction: d, RSSI: rssi, Time: at}
}

func newTestAggregator(opts ...Option) *Aggregator {
	return New(nil, bearing.NewSmoother(), opts...)
}

func TestEvaluateAdmission(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name    string
		samples []scanner.Sample
		want    int
	}{
		{
			name:    "two directions above threshold",
			samples: []scanner.Sample{sample(tagA, scanner.North, -60, now), sample(tagA, scanner.East, -70, now)},
			want:    1,
		},
		{
			name:    "single direction",
			samples: []scanner.Sample{sample(tagA, scanner.North, -60, now)},
			want:    0,
		},
		{
			name:    "max below threshold",
			samples: []scanner.Sample{sample(tagA, scanner.North, -85, now), sample(tagA, scanner.East, -90, now)},
			want:    0,
		},
		{
			name:    "max exactly at threshold",
			samples: []scanner.Sample{sample(tagA, scanner.North, -80, now), sample(tagA, scanner.East, -95, now)},
			want:    1,
		},
		{
			name:    "same direction twice counts once",
			samples: []scanner.Sample{sample(tagA, scanner.North, -60, now), sample(tagA, scanner.North, -61, now)},
			want:    0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAggregator()
			for _, s := range tt.samples {
				a.ingest(s)
			}
			frame, ok := a.evaluate(now)
			if !ok {
				t.Fatal("evaluate() skipped a running aggregator")
			}
			if len(frame.Estimates) != tt.want {
				t.Errorf("estimates = %d, want %d", len(frame.Estimates), tt.want)
			}
			if frame.Tracked != 1 {
				t.Errorf("Tracked = %d, want 1", frame.Tracked)
			}
		})
	}
}

func TestEvaluateLastWriteWins(t *testing.T) {
	now := time.Now()
	a := newTestAggregator()
	a.ingest(sample(tagA, scanner.North, -90, now))
	a.ingest(sample(tagA, scanner.East, -60, now))
	a.ingest(sample(tagA, scanner.North, -50, now))
	a.ingest(scanner.Sample{DeviceID: tagA, Direction: scanner.East, RSSI: -60, Name: "Tag1", Time: now})
	a.ingest(scanner.Sample{DeviceID: tagA, Direction: scanner.East, RSSI: -60, Name: "Tag2", Time: now})
	a.ingest(sample(tagA, scanner.East, -60, now))

	frame, _ := a.evaluate(now)
	if len(frame.Estimates) != 1 {
		t.Fatalf("estimates = %d, want 1", len(frame.Estimates))
	}
	e := frame.Estimates[0]
	if e.Readings[scanner.North] != -50 || e.Readings[scanner.East] != -60 {
		t.Errorf("Readings = %v", e.Readings)
	}
	if e.MaxRSSI != -50 {
		t.Errorf("MaxRSSI = %d, want -50", e.MaxRSSI)
	}
	if e.Name != "Tag2" {
		t.Errorf("Name = %q, want most recent name", e.Name)
	}
	want := bearing.Estimate(bearing.Readings{scanner.North: -50, scanner.East: -60})
	if math.Abs(e.Raw-want) > 1e-9 || math.Abs(e.Smoothed-want) > 1e-9 {
		t.Errorf("Raw = %v Smoothed = %v, want %v", e.Raw, e.Smoothed, want)
	}
	if len(e.History) != 1 {
		t.Errorf("History length = %d, want 1", len(e.History))
	}
}

func TestEvaluateOrderAndLists(t *testing.T) {
	now := time.Now()
	a := newTestAggregator()
	for _, s := range []scanner.Sample{
		sample(tagA, scanner.North, -70, now),
		sample(tagA, scanner.West, -75, now),
		sample(tagB, scanner.South, -55, now),
		sample(tagB, scanner.East, -65, now),
	} {
		a.ingest(s)
	}

	frame, _ := a.evaluate(now)
	if len(frame.Estimates) != 2 || frame.Estimates[0].DeviceID != tagB {
		t.Fatalf("estimates = %+v, want %s first", frame.Estimates, tagB)
	}

	a.SetBlockList(ParseIDList("aa:bb:cc:dd:ee:02"))
	frame, _ = a.evaluate(now)
	if len(frame.Estimates) != 1 || frame.Estimates[0].DeviceID != tagA {
		t.Errorf("after block: %+v", frame.Estimates)
	}

	a.SetBlockList(nil)
	a.SetAllowList([]string{tagB})
	frame, _ = a.evaluate(now)
	if len(frame.Estimates) != 1 || frame.Estimates[0].DeviceID != tagB {
		t.Errorf("after allow: %+v", frame.Estimates)
	}

	a.Block(tagB)
	frame, _ = a.evaluate(now)
	if len(frame.Estimates) != 0 {
		t.Errorf("block should win over allow: %+v", frame.Estimates)
	}

	a.SetAllowList(nil)
	a.SetBlockList(nil)
	a.SetThreshold(-60)
	frame, _ = a.evaluate(now)
	if len(frame.Estimates) != 1 || frame.Estimates[0].DeviceID != tagB {
		t.Errorf("after threshold: %+v", frame.Estimates)
	}
	if got := a.Filter().Threshold; got != -60 {
		t.Errorf("Filter().Threshold = %d", got)
	}
}

func TestPauseAndResume(t *testing.T) {
	now := time.Now()
	a := newTestAggregator()
	a.Pause()
	a.ingest(sample(tagA, scanner.North, -60, now))
	a.ingest(sample(tagA, scanner.East, -60, now))

	if _, ok := a.evaluate(now); ok {
		t.Fatal("paused aggregator produced a frame")
	}
	if a.smoother.Len() != 0 {
		t.Error("paused aggregator fed the smoother")
	}

	a.Resume()
	frame, ok := a.evaluate(now)
	if !ok || len(frame.Estimates) != 1 {
		t.Errorf("resumed: ok=%v estimates=%d", ok, len(frame.Estimates))
	}
}

func TestStalePruning(t *testing.T) {
	start := time.Now()
	a := newTestAggregator(WithStaleAfter(10 * time.Second))
	a.ingest(sample(tagA, scanner.North, -60, start))
	a.ingest(sample(tagA, scanner.East, -60, start))
	a.ingest(sample(tagB, scanner.North, -60, start.Add(8*time.Second)))
	a.ingest(sample(tagB, scanner.East, -60, start.Add(8*time.Second)))

	a.evaluate(start.Add(9 * time.Second))
	if a.smoother.Len() != 2 {
		t.Fatalf("smoother tracks %d devices, want 2", a.smoother.Len())
	}

	frame, _ := a.evaluate(start.Add(11 * time.Second))
	if frame.Tracked != 1 || len(frame.Estimates) != 1 || frame.Estimates[0].DeviceID != tagB {
		t.Errorf("frame = %+v, want only %s", frame, tagB)
	}
	if a.smoother.History(tagA) != nil {
		t.Error("smoother state survived pruning")
	}
}

func TestNoExpiryByDefault(t *testing.T) {
	start := time.Now()
	a := newTestAggregator()
	a.ingest(sample(tagA, scanner.North, -60, start))
	a.ingest(sample(tagA, scanner.East, -60, start))

	frame, _ := a.evaluate(start.Add(24 * time.Hour))
	if frame.Tracked != 1 || len(frame.Estimates) != 1 {
		t.Errorf("frame = %+v, want %s still tracked", frame, tagA)
	}
}

func TestRunMockRig(t *testing.T) {
	rig := scanner.NewMockRig(
		scanner.WithMockBeacons(1),
		scanner.WithMockNoise(0),
		scanner.WithMockSeed(3),
		scanner.WithMockInterval(10*time.Millisecond),
	)
	heading := 2.0
	rig.Place(heading)

	links := rig.Links(scanner.WithReadTimeout(20 * time.Millisecond))
	defer scanner.CloseAll(links)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go rig.Run(ctx)

	frames := make(chan Frame, 16)
	a := New(links, bearing.NewSmoother(), WithCadence(50*time.Millisecond), WithSink(func(f Frame) {
		select {
		case frames <- f:
		default:
		}
	}))

	done := make(chan struct{})
	go func() {
		a.Run(ctx)
		close(done)
	}()

	for {
		select {
		case f := <-frames:
			if len(f.Estimates) == 0 || len(f.Estimates[0].Readings) < len(scanner.Directions) {
				continue
			}
			e := f.Estimates[0]
			if d := math.Abs(bearing.AngleDiff(e.Raw, heading)); d > bearing.Radians(20) {
				t.Errorf("raw bearing %.1f°, want near %.1f°", bearing.Degrees(e.Raw), bearing.Degrees(heading))
			}
			if e.Name == "" {
				t.Errorf("estimate = %+v", e)
			}
			cancel()
			<-done
			return
		case <-ctx.Done():
			t.Fatal("no estimate before timeout")
		}
	}
}
