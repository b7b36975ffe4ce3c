package scanner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"ble-bearing.klederson.com/internal/config"
	"github.com/jacobsa/go-serial/serial"
	"github.com/rs/zerolog"
)

// Opener opens a named port.
type Opener func(name string) (io.ReadWriteCloser, error)

// SerialOpener opens USB serial ports at 8N1 with the given baud rate.
func SerialOpener(baud int) Opener {
	return func(name string) (io.ReadWriteCloser, error) {
		port, err := serial.Open(serial.OpenOptions{
			PortName:        name,
			BaudRate:        uint(baud),
			DataBits:        8,
			StopBits:        1,
			MinimumReadSize: 1,
			ParityMode:      serial.PARITY_NONE,
		})
		if err != nil {
			return nil, fmt.Errorf("opening serial port %s: %w", name, err)
		}
		return port, nil
	}
}

var candidatePatterns = []string{
	"/dev/ttyUSB*",
	"/dev/ttyACM*",
	"/dev/cu.usbserial*",
	"/dev/cu.usbmodem*",
}

// CandidatePorts lists serial device paths that may host a scanner.
func CandidatePorts() ([]string, error) {
	var ports []string
	for _, pattern := range candidatePatterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("listing %s: %w", pattern, err)
		}
		ports = append(ports, matches...)
	}
	sort.Strings(ports)
	return ports, nil
}

// Discoverer identifies which scanner sits behind each port.
type Discoverer struct {
	open    Opener
	timeout time.Duration
	linkOpt []LinkOption
	logger  zerolog.Logger
}

// NewDiscoverer creates a Discoverer that probes each port for up to timeout.
func NewDiscoverer(open Opener, timeout time.Duration, logger zerolog.Logger, opts ...LinkOption) *Discoverer {
	if timeout <= 0 {
		timeout = config.DiscoverTimeout
	}
	return &Discoverer{open: open, timeout: timeout, linkOpt: opts, logger: logger}
}

// Open opens ports whose direction is already known, in rig order. A port
// that fails to open is logged and its direction left out; the error is
// returned only when no port opened at all.
func (d *Discoverer) Open(assigned map[Direction]string) ([]*Link, error) {
	var (
		links []*Link
		errs  []error
	)
	for _, dir := range Directions {
		name, ok := assigned[dir]
		if !ok {
			continue
		}
		port, err := d.open(name)
		if err != nil {
			d.logger.Warn().Err(err).Str("direction", dir.String()).Str("port", name).Msg("cannot open scanner port, direction left out")
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		links = append(links, NewLink(dir, name, port, d.linkOpt...))
		d.logger.Info().Str("direction", dir.String()).Str("port", name).Msg("scanner link opened")
	}
	if len(links) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return links, nil
}

// Discover probes every port concurrently and returns one link per
// identified direction, in rig order. Ports that stay silent or repeat an
// already claimed direction are closed.
func (d *Discoverer) Discover(ctx context.Context, ports []string) []*Link {
	type probe struct {
		link *Link
		dir  Direction
		ok   bool
	}

	results := make([]probe, len(ports))
	var wg sync.WaitGroup
	for i, name := range ports {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			link, dir, ok := d.probe(ctx, name)
			results[i] = probe{link: link, dir: dir, ok: ok}
		}(i, name)
	}
	wg.Wait()

	claimed := make(map[Direction]*Link)
	for i, r := range results {
		if !r.ok {
			continue
		}
		if prev, dup := claimed[r.dir]; dup {
			d.logger.Warn().Str("direction", r.dir.String()).Str("port", ports[i]).Str("claimed_by", prev.Name()).Msg("duplicate scanner direction, ignoring port")
			_ = r.link.Close()
			continue
		}
		r.link.direction = r.dir
		claimed[r.dir] = r.link
		d.logger.Info().Str("direction", r.dir.String()).Str("port", ports[i]).Msg("scanner identified")
	}

	links := make([]*Link, 0, len(claimed))
	for _, dir := range Directions {
		if l, ok := claimed[dir]; ok {
			links = append(links, l)
		} else {
			d.logger.Warn().Str("direction", dir.String()).Msg("no scanner found for direction")
		}
	}
	return links
}

func (d *Discoverer) probe(ctx context.Context, name string) (*Link, Direction, bool) {
	port, err := d.open(name)
	if err != nil {
		d.logger.Debug().Err(err).Str("port", name).Msg("port unavailable")
		return nil, 0, false
	}
	link := NewLink(North, name, port, d.linkOpt...)

	// Some firmware only starts talking after the first byte.
	if _, err := link.Write([]byte("\n")); err != nil {
		d.logger.Debug().Err(err).Str("port", name).Msg("probe write failed")
	}

	pctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	for {
		line, err := link.ReadLine(pctx)
		if err != nil {
			break
		}
		if dir, ok := DetectDirection(line); ok {
			return link, dir, true
		}
	}

	d.logger.Debug().Str("port", name).Msg("no direction tag seen")
	_ = link.Close()
	return nil, 0, false
}

// CloseAll closes every link, returning the first error.
func CloseAll(links []*Link) error {
	var first error
	for _, l := range links {
		if err := l.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
