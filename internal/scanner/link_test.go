package scanner

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakePort is an in-memory scanner port. Lines written by the test appear on
// Read; a reset command is answered with bootReply when set.
type fakePort struct {
	r *io.PipeReader
	w *io.PipeWriter

	mu        sync.Mutex
	written   []string
	bootReply string
}

func newFakePort() *fakePort {
	r, w := io.Pipe()
	return &fakePort{r: r, w: w}
}

func (f *fakePort) send(lines ...string) {
	go func() {
		for _, l := range lines {
			if _, err := io.WriteString(f.w, l+"\n"); err != nil {
				return
			}
		}
	}()
}

func (f *fakePort) Read(b []byte) (int, error) { return f.r.Read(b) }

func (f *fakePort) Write(b []byte) (int, error) {
	f.mu.Lock()
	f.written = append(f.written, string(b))
	reply := f.bootReply
	f.mu.Unlock()
	if reply != "" && strings.Contains(string(b), "REBOOT") {
		f.send("garbage before boot", reply)
	}
	return len(b), nil
}

func (f *fakePort) Close() error {
	_ = f.w.Close()
	return f.r.Close()
}

func TestLinkReadLine(t *testing.T) {
	port := newFakePort()
	link := NewLink(North, "fake0", port, WithReadTimeout(50*time.Millisecond))
	defer link.Close()

	port.send("  MAC: AA | RSSI: -60  \r", "", "second")

	ctx := context.Background()
	got, err := link.ReadLine(ctx)
	if err != nil || got != "MAC: AA | RSSI: -60" {
		t.Fatalf("ReadLine() = %q, %v", got, err)
	}
	got, err = link.ReadLine(ctx)
	if err != nil || got != "second" {
		t.Fatalf("ReadLine() = %q, %v; want blank lines skipped", got, err)
	}

	got, err = link.ReadLine(ctx)
	if err != nil || got != "" {
		t.Fatalf("ReadLine() on silence = %q, %v; want empty, nil", got, err)
	}
}

func TestLinkDiscardAndArrival(t *testing.T) {
	port := newFakePort()
	link := NewLink(West, "fake3", port, WithReadTimeout(50*time.Millisecond))
	defer link.Close()

	port.send("old 1", "old 2", "old 3")
	time.Sleep(50 * time.Millisecond)
	if n := link.Discard(); n != 3 {
		t.Fatalf("Discard() = %d, want 3", n)
	}
	if n := link.Discard(); n != 0 {
		t.Fatalf("second Discard() = %d, want 0", n)
	}

	before := time.Now()
	port.send("new")
	got, at, err := link.ReadLineAt(context.Background())
	if err != nil || got != "new" {
		t.Fatalf("ReadLineAt() = %q, %v", got, err)
	}
	if at.Before(before) || at.After(time.Now()) {
		t.Errorf("arrival %v not within the read", at)
	}
}

func TestLinkClosed(t *testing.T) {
	port := newFakePort()
	link := NewLink(East, "fake1", port, WithReadTimeout(time.Second))

	if err := link.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := link.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}

	_, err := link.ReadLine(context.Background())
	if !errors.Is(err, ErrLinkClosed) {
		t.Fatalf("ReadLine() after close error = %v, want ErrLinkClosed", err)
	}
}

func TestLinkContextCancel(t *testing.T) {
	port := newFakePort()
	link := NewLink(South, "fake2", port, WithReadTimeout(time.Minute))
	defer link.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := link.ReadLine(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("ReadLine() error = %v, want context.Canceled", err)
	}
}

func TestLinkReset(t *testing.T) {
	port := newFakePort()
	link := NewLink(West, "fake3", port)
	defer link.Close()

	if err := link.Reset(); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	port.mu.Lock()
	defer port.mu.Unlock()
	if len(port.written) != 1 || port.written[0] != "REBOOT\n" {
		t.Errorf("written = %q", port.written)
	}
	if _, ok := link.BootMillis(); ok {
		t.Error("BootMillis() reported a value before sync")
	}
}
