package scanner

import (
	"context"
	"fmt"
	"io"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"ble-bearing.klederson.com/internal/config"
)

var mockBeaconTemplates = []struct {
	MAC  string
	Name string
}{
	{"C4:7C:8D:6A:12:01", "Tile Tracker"},
	{"F0:99:B6:21:3C:7E", "AirTag"},
	{"E2:45:1A:90:0B:33", "Nordic Beacon"},
	{"D8:3A:DD:04:55:C9", "Pixel 9 Pro"},
	{"AC:23:3F:A1:B2:C3", "iBeacon"},
	{"7C:DF:A1:E5:00:42", ""},
}

type mockBeacon struct {
	mac     string
	name    string
	angle   float64 // radians, east axis, counter-clockwise
	speed   float64 // radians per second
	txPower float64 // RSSI straight into an antenna
}

// MockRig simulates the four directional scanners for demo mode. Each
// direction gets a port that streams advertisement lines and answers the
// reset command with a boot announcement.
type MockRig struct {
	interval time.Duration
	count    int
	names    bool
	noise    float64
	start    time.Time

	mu      sync.Mutex
	rng     *rand.Rand
	beacons []mockBeacon
	ports   map[Direction]*mockPort
}

// MockOption configures a MockRig.
type MockOption func(*MockRig)

// WithMockInterval sets the advertisement period.
func WithMockInterval(d time.Duration) MockOption {
	return func(r *MockRig) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithMockBeacons sets the number of simulated beacons.
func WithMockBeacons(n int) MockOption {
	return func(r *MockRig) {
		r.count = max(1, min(n, len(mockBeaconTemplates)))
	}
}

// WithoutMockNames omits the Name field, producing calibration-form lines.
func WithoutMockNames() MockOption {
	return func(r *MockRig) {
		r.names = false
	}
}

// WithMockNoise sets the RSSI noise standard deviation in dB.
func WithMockNoise(sigma float64) MockOption {
	return func(r *MockRig) {
		r.noise = sigma
	}
}

// WithMockSeed makes the simulation deterministic.
func WithMockSeed(seed int64) MockOption {
	return func(r *MockRig) {
		r.rng = rand.New(rand.NewSource(seed))
	}
}

// NewMockRig creates a rig with config.DemoBeacons orbiting beacons.
func NewMockRig(opts ...MockOption) *MockRig {
	r := &MockRig{
		interval: config.DemoInterval,
		names:    true,
		noise:    2,
		start:    time.Now(),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		ports:    make(map[Direction]*mockPort),
	}
	WithMockBeacons(config.DemoBeacons)(r)
	for _, opt := range opts {
		opt(r)
	}
	for i := 0; i < r.count; i++ {
		t := mockBeaconTemplates[i]
		r.beacons = append(r.beacons, mockBeacon{
			mac:     t.MAC,
			name:    t.Name,
			angle:   r.rng.Float64()*2*math.Pi - math.Pi,
			speed:   (r.rng.Float64()*0.3 + 0.05) * float64(1-2*(i%2)),
			txPower: -48 - r.rng.Float64()*20,
		})
	}
	for _, d := range Directions {
		r.ports[d] = newMockPort(r, d)
	}
	return r
}

// Port returns the simulated serial port of one scanner.
func (r *MockRig) Port(d Direction) io.ReadWriteCloser {
	return r.ports[d]
}

// Links wraps every simulated port in a Link.
func (r *MockRig) Links(opts ...LinkOption) []*Link {
	links := make([]*Link, 0, len(Directions))
	for _, d := range Directions {
		links = append(links, NewLink(d, "mock:"+strings.ToLower(d.String()), r.ports[d], opts...))
	}
	return links
}

// Place pins every beacon at the given bearing (radians, east axis,
// counter-clockwise) and stops their motion.
func (r *MockRig) Place(angle float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.beacons {
		r.beacons[i].angle = angle
		r.beacons[i].speed = 0
	}
}

// Run emits advertisements until ctx is cancelled.
func (r *MockRig) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	last := time.Now()
	tick := 0
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			dt := now.Sub(last).Seconds()
			last = now
			tick++
			r.step(dt, tick)
		}
	}
}

func (r *MockRig) step(dt float64, tick int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.beacons {
		b := &r.beacons[i]
		b.angle = math.Remainder(b.angle+b.speed*dt, 2*math.Pi)
		for _, d := range Directions {
			rssi := int(math.Round(b.txPower + antennaGain(b.angle, d) + r.rng.NormFloat64()*r.noise))
			line := fmt.Sprintf("MAC: %s | RSSI: %d", b.mac, rssi)
			if r.names && b.name != "" {
				line += " | Name: " + b.name
			}
			r.ports[d].emit(line)
		}
	}

	// Firmware chatter, ignored by the parsers but useful for discovery.
	if tick%20 == 0 {
		for _, d := range Directions {
			r.ports[d].emit(fmt.Sprintf("[%s] scanning", d.Tag()))
		}
	}
}

func (r *MockRig) bootMillis() uint64 {
	r.mu.Lock()
	jitter := r.rng.Intn(40)
	r.mu.Unlock()
	return uint64(time.Since(r.start).Milliseconds()) + uint64(jitter)
}

// antennaGain models a directional antenna: 0 dB on boresight, -24 dB behind.
func antennaGain(angle float64, d Direction) float64 {
	boresight := map[Direction]float64{
		North: math.Pi / 2,
		East:  0,
		South: -math.Pi / 2,
		West:  math.Pi,
	}[d]
	return 12*math.Cos(angle-boresight) - 12
}

type mockPort struct {
	rig *MockRig
	dir Direction

	r *io.PipeReader
	w *io.PipeWriter

	out    chan string
	closed chan struct{}
	once   sync.Once
}

func newMockPort(rig *MockRig, dir Direction) *mockPort {
	pr, pw := io.Pipe()
	p := &mockPort{
		rig:    rig,
		dir:    dir,
		r:      pr,
		w:      pw,
		out:    make(chan string, 512),
		closed: make(chan struct{}),
	}
	go p.writeLoop()
	return p
}

// emit queues a line, dropping it when the reader is too slow.
func (p *mockPort) emit(line string) {
	select {
	case <-p.closed:
	case p.out <- line:
	default:
	}
}

func (p *mockPort) writeLoop() {
	for {
		select {
		case <-p.closed:
			return
		case line := <-p.out:
			if _, err := io.WriteString(p.w, line+"\n"); err != nil {
				return
			}
		}
	}
}

func (p *mockPort) Read(b []byte) (int, error) {
	return p.r.Read(b)
}

func (p *mockPort) Write(b []byte) (int, error) {
	select {
	case <-p.closed:
		return 0, io.ErrClosedPipe
	default:
	}
	if strings.Contains(string(b), strings.TrimSpace(config.ResetCommand)) {
		// Flush pre-reboot output like a real restart would.
		for len(p.out) > 0 {
			select {
			case <-p.out:
			default:
			}
		}
		p.emit(fmt.Sprintf("%s [%s] | %d", config.BootAnnounce, p.dir.Tag(), p.rig.bootMillis()))
	}
	return len(b), nil
}

func (p *mockPort) Close() error {
	p.once.Do(func() {
		close(p.closed)
		_ = p.w.Close()
		_ = p.r.Close()
	})
	return nil
}
