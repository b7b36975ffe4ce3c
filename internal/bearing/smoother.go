package bearing

import (
	"math"

	"ble-bearing.klederson.com/internal/config"
	"gonum.org/v1/gonum/stat"
)

// Step is the outcome of feeding one raw bearing to the Smoother.
type Step struct {
	Raw      float64
	Median   float64
	Smoothed float64
	Rejected bool // the median jumped past the outlier threshold and was held
}

type track struct {
	window   *Ring
	history  *Ring
	smoothed float64
	primed   bool
}

// Smoother turns noisy per-device raw bearings into stable ones: a circular
// median over a short window, an outlier clamp against the previous
// smoothed value, then exponential smoothing. It is not safe for concurrent
// use; one goroutine owns it.
type Smoother struct {
	window    int
	alpha     float64
	threshold float64 // radians
	history   int

	tracks map[string]*track
}

// SmootherOption configures a Smoother.
type SmootherOption func(*Smoother)

// WithMedianWindow sets the number of raw bearings in the circular median.
func WithMedianWindow(n int) SmootherOption {
	return func(s *Smoother) {
		if n >= 1 {
			s.window = n
		}
	}
}

// WithAlpha sets the EMA weight of the newest median.
func WithAlpha(a float64) SmootherOption {
	return func(s *Smoother) {
		if a > 0 && a <= 1 {
			s.alpha = a
		}
	}
}

// WithOutlierThreshold sets the largest accepted jump, in radians.
func WithOutlierThreshold(rad float64) SmootherOption {
	return func(s *Smoother) {
		if rad > 0 {
			s.threshold = rad
		}
	}
}

// WithHistoryLength sets how many smoothed bearings are kept per device.
func WithHistoryLength(n int) SmootherOption {
	return func(s *Smoother) {
		if n >= 1 {
			s.history = n
		}
	}
}

// NewSmoother creates a Smoother with the default parameters.
func NewSmoother(opts ...SmootherOption) *Smoother {
	s := &Smoother{
		window:    config.MedianWindow,
		alpha:     config.SmoothingAlpha,
		threshold: Radians(config.OutlierThresholdDeg),
		history:   config.HistoryLength,
		tracks:    make(map[string]*track),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Update feeds a raw bearing for a device and returns the smoothed result.
func (s *Smoother) Update(id string, raw float64) Step {
	t, ok := s.tracks[id]
	if !ok {
		t = &track{window: NewRing(s.window), history: NewRing(s.history)}
		s.tracks[id] = t
	}

	t.window.Push(raw)
	median := CircularMean(t.window.Values())

	if !t.primed {
		t.smoothed = median
		t.primed = true
	}

	step := Step{Raw: raw, Median: median}
	if math.Abs(AngleDiff(median, t.smoothed)) > s.threshold {
		median = t.smoothed
		step.Rejected = true
	}

	// EMA on the wrapped difference so the estimate crosses ±π continuously.
	t.smoothed = WrapAngle(t.smoothed + s.alpha*AngleDiff(median, t.smoothed))
	t.history.Push(t.smoothed)

	step.Smoothed = t.smoothed
	return step
}

// History returns the smoothed bearings of a device, oldest first.
func (s *Smoother) History(id string) []float64 {
	t, ok := s.tracks[id]
	if !ok {
		return nil
	}
	return t.history.Values()
}

// Forget drops all state for a device.
func (s *Smoother) Forget(id string) {
	delete(s.tracks, id)
}

// Len returns the number of tracked devices.
func (s *Smoother) Len() int { return len(s.tracks) }

// CircularMean returns the angle of the mean unit vector of the given
// angles, in (-π, π]. With no angles it returns 0.
func CircularMean(angles []float64) float64 {
	if len(angles) == 0 {
		return 0
	}
	return WrapAngle(stat.CircularMean(angles, nil))
}
