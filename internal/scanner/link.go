package scanner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"ble-bearing.klederson.com/internal/config"
	"github.com/rs/zerolog"
)

// ErrLinkClosed is returned by ReadLine once the underlying port has been
// closed or has failed.
var ErrLinkClosed = errors.New("scanner link closed")

// Link is an open, line-oriented connection to one directional scanner.
// A single pump goroutine reads the port; ReadLine may be called by one
// consumer at a time.
type Link struct {
	direction Direction
	name      string
	port      io.ReadWriteCloser
	timeout   time.Duration
	logger    zerolog.Logger

	lines  chan received
	closed chan struct{}
	err    error // set by the pump before lines is closed

	boot    atomic.Uint64
	hasBoot atomic.Bool

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// received is one line stamped with the time the pump read it.
type received struct {
	text string
	at   time.Time
}

// LinkOption configures a Link.
type LinkOption func(*Link)

// WithReadTimeout sets how long ReadLine waits before reporting no line.
func WithReadTimeout(d time.Duration) LinkOption {
	return func(l *Link) {
		if d > 0 {
			l.timeout = d
		}
	}
}

// WithLinkLogger sets the logger used for port faults.
func WithLinkLogger(logger zerolog.Logger) LinkOption {
	return func(l *Link) {
		l.logger = logger
	}
}

// NewLink wraps an already opened port and starts reading it.
func NewLink(direction Direction, name string, port io.ReadWriteCloser, opts ...LinkOption) *Link {
	l := &Link{
		direction: direction,
		name:      name,
		port:      port,
		timeout:   config.ReadTimeout,
		logger:    zerolog.Nop(),
		lines:     make(chan received, config.LineQueueSize),
		closed:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	go l.pump()
	return l
}

// Direction returns the scanner direction served by this link.
func (l *Link) Direction() Direction { return l.direction }

// Name returns the port name.
func (l *Link) Name() string { return l.name }

func (l *Link) String() string {
	return fmt.Sprintf("%s(%s)", l.direction, l.name)
}

// ReadLine returns the next line with surrounding whitespace removed. It
// returns "" and a nil error when no line arrived within the read timeout,
// ErrLinkClosed (wrapped) when the port is gone, or the context error.
func (l *Link) ReadLine(ctx context.Context) (string, error) {
	line, _, err := l.ReadLineAt(ctx)
	return line, err
}

// ReadLineAt is ReadLine that also returns when the line came off the port.
// Lines may wait in the queue, so the arrival time can be well before the
// call.
func (l *Link) ReadLineAt(ctx context.Context) (string, time.Time, error) {
	timer := time.NewTimer(l.timeout)
	defer timer.Stop()

	select {
	case r, ok := <-l.lines:
		if !ok {
			if l.err != nil {
				return "", time.Time{}, fmt.Errorf("%w: %w", ErrLinkClosed, l.err)
			}
			return "", time.Time{}, ErrLinkClosed
		}
		return r.text, r.at, nil
	case <-timer.C:
		return "", time.Time{}, nil
	case <-ctx.Done():
		return "", time.Time{}, ctx.Err()
	}
}

// Discard drops every queued line without waiting and returns how many were
// dropped.
func (l *Link) Discard() int {
	n := 0
	for {
		select {
		case _, ok := <-l.lines:
			if !ok {
				return n
			}
			n++
		default:
			return n
		}
	}
}

// Write sends raw bytes to the scanner.
func (l *Link) Write(p []byte) (int, error) {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	return l.port.Write(p)
}

// Reset asks the scanner firmware to reboot.
func (l *Link) Reset() error {
	if _, err := l.Write([]byte(config.ResetCommand)); err != nil {
		return fmt.Errorf("writing reset to %s: %w", l, err)
	}
	return nil
}

// BootMillis returns the last boot timestamp reported by the scanner.
func (l *Link) BootMillis() (uint64, bool) {
	if !l.hasBoot.Load() {
		return 0, false
	}
	return l.boot.Load(), true
}

func (l *Link) setBootMillis(ms uint64) {
	l.boot.Store(ms)
	l.hasBoot.Store(true)
}

// Close stops the pump and closes the port. Safe to call more than once.
func (l *Link) Close() error {
	l.closeOnce.Do(func() {
		close(l.closed)
		l.closeErr = l.port.Close()
	})
	return l.closeErr
}

func (l *Link) pump() {
	defer close(l.lines)

	reader := bufio.NewReader(l.port)
	for {
		raw, err := reader.ReadString('\n')
		if line := strings.TrimSpace(strings.ToValidUTF8(raw, "")); line != "" {
			select {
			case l.lines <- received{text: line, at: time.Now()}:
			case <-l.closed:
				return
			}
		}
		if err != nil {
			select {
			case <-l.closed:
			default:
				if !errors.Is(err, io.EOF) {
					l.err = err
				}
				l.logger.Warn().Err(err).Str("port", l.name).Msg("scanner port read ended")
			}
			return
		}
	}
}
