package publish

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"ble-bearing.klederson.com/internal/live"
	"ble-bearing.klederson.com/internal/scanner"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

func testFrame() live.Frame {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return live.Frame{
		Time:    now,
		Tracked: 3,
		Estimates: []live.Estimate{{
			DeviceID:  "AA:BB:CC:DD:EE:FF",
			Name:      "Tag1",
			Raw:       math.Pi / 2,
			Smoothed:  math.Pi / 2,
			Readings:  map[scanner.Direction]int{scanner.North: -55, scanner.East: -72},
			MaxRSSI:   -55,
			LastSeen:  now,
			Timestamp: now,
		}},
	}
}

func TestNewFrameMessage(t *testing.T) {
	msg := NewFrameMessage(testFrame())
	if msg.Tracked != 3 || len(msg.Bearings) != 1 {
		t.Fatalf("message = %+v", msg)
	}
	b := msg.Bearings[0]
	if b.Bearing != 90 || b.Heading != 0 || b.Compass != "N" {
		t.Errorf("bearing = %v heading = %v compass = %s", b.Bearing, b.Heading, b.Compass)
	}
	if b.Readings["North"] != -55 || b.Readings["East"] != -72 || len(b.Readings) != 2 {
		t.Errorf("readings = %v", b.Readings)
	}

	empty := NewFrameMessage(live.Frame{})
	data, err := json.Marshal(empty)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"bearings":[]`) {
		t.Errorf("empty frame = %s, want an empty bearings array", data)
	}
}

type fakeController struct {
	mu      sync.Mutex
	filter  live.Filter
	running bool
}

func newFakeController() *fakeController {
	return &fakeController{filter: live.DefaultFilter(), running: true}
}

func (c *fakeController) Filter() live.Filter {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filter
}

func (c *fakeController) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *fakeController) SetAllowList(ids []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filter = c.filter.WithAllow(ids...)
}

func (c *fakeController) SetBlockList(ids []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filter = c.filter.WithBlock(ids...)
}

func (c *fakeController) SetThreshold(dbm int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filter.Threshold = dbm
}

func (c *fakeController) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false
}

func (c *fakeController) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = true
}

func TestServerAPI(t *testing.T) {
	control := newFakeController()
	hub := NewHub(control, zerolog.Nop())
	srv := httptest.NewServer(NewServer("", hub, control, zerolog.Nop()).Handler())
	defer srv.Close()

	get := func(path string) (int, string) {
		t.Helper()
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, string(body)
	}

	if code, body := get("/healthz"); code != http.StatusOK || body != "ok" {
		t.Errorf("/healthz = %d %q", code, body)
	}
	if code, _ := get("/api/bearings"); code != http.StatusServiceUnavailable {
		t.Errorf("/api/bearings before data = %d", code)
	}

	hub.Publish(testFrame())
	code, body := get("/api/bearings")
	if code != http.StatusOK {
		t.Fatalf("/api/bearings = %d", code)
	}
	var msg FrameMessage
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		t.Fatalf("decoding bearings: %v", err)
	}
	if len(msg.Bearings) != 1 || msg.Bearings[0].DeviceID != "AA:BB:CC:DD:EE:FF" {
		t.Errorf("bearings = %+v", msg.Bearings)
	}

	control.SetBlockList([]string{"11:22:33:44:55:66"})
	code, body = get("/api/filter")
	if code != http.StatusOK {
		t.Fatalf("/api/filter = %d", code)
	}
	var filter FilterMessage
	if err := json.Unmarshal([]byte(body), &filter); err != nil {
		t.Fatalf("decoding filter: %v", err)
	}
	if !filter.Running || filter.Threshold != -80 || len(filter.Block) != 1 || len(filter.Allow) != 0 {
		t.Errorf("filter = %+v", filter)
	}
}

func TestHubWebSocket(t *testing.T) {
	control := newFakeController()
	hub := NewHub(control, zerolog.Nop())
	hub.Publish(testFrame())

	srv := httptest.NewServer(NewServer("", hub, control, zerolog.Nop()).Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first FrameMessage
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("reading latest frame: %v", err)
	}
	if len(first.Bearings) != 1 {
		t.Errorf("latest frame = %+v", first)
	}

	if err := conn.WriteJSON(Command{Action: "threshold", Threshold: -65}); err != nil {
		t.Fatal(err)
	}
	var reply Reply
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatalf("reading reply: %v", err)
	}
	if reply.Type != "filter" || reply.Filter == nil || reply.Filter.Threshold != -65 {
		t.Errorf("reply = %+v", reply)
	}

	if err := conn.WriteJSON(Command{Action: "pause"}); err != nil {
		t.Fatal(err)
	}
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatal(err)
	}
	if control.Running() {
		t.Error("pause command did not pause")
	}

	if err := conn.WriteJSON(Command{Action: "explode"}); err != nil {
		t.Fatal(err)
	}
	reply = Reply{}
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatal(err)
	}
	if reply.Type != "error" {
		t.Errorf("unknown action reply = %+v", reply)
	}

	hub.Publish(live.Frame{Tracked: 7})
	var next FrameMessage
	if err := conn.ReadJSON(&next); err != nil {
		t.Fatalf("reading broadcast: %v", err)
	}
	if next.Tracked != 7 {
		t.Errorf("broadcast = %+v", next)
	}
}

type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t doneToken) Error() error { return t.err }

type fakeMQTTClient struct {
	mqtt.Client
	topics   []string
	payloads [][]byte
	err      error
}

func (c *fakeMQTTClient) Connect() mqtt.Token { return doneToken{} }

func (c *fakeMQTTClient) Disconnect(uint) {}

func (c *fakeMQTTClient) Publish(topic string, _ byte, _ bool, payload interface{}) mqtt.Token {
	c.topics = append(c.topics, topic)
	c.payloads = append(c.payloads, payload.([]byte))
	return doneToken{err: c.err}
}

func TestMQTTPublisher(t *testing.T) {
	client := &fakeMQTTClient{}
	p := NewMQTTPublisher("tcp://unused:1883", "test", "ble-bearing/bearings", WithMQTTClient(client))
	if err := p.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer p.Close()

	if err := p.PublishFrame(testFrame()); err != nil {
		t.Fatalf("PublishFrame() error = %v", err)
	}
	if len(client.topics) != 1 || client.topics[0] != "ble-bearing/bearings" {
		t.Fatalf("topics = %v", client.topics)
	}
	var msg FrameMessage
	if err := json.Unmarshal(client.payloads[0], &msg); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if len(msg.Bearings) != 1 || msg.Bearings[0].Name != "Tag1" {
		t.Errorf("payload = %+v", msg)
	}

	client.err = errors.New("broker gone")
	if err := p.PublishFrame(testFrame()); err == nil {
		t.Error("PublishFrame() returned nil for a failed token")
	}
	p.Sink(testFrame())
	if len(client.payloads) != 3 {
		t.Errorf("published %d payloads, want 3", len(client.payloads))
	}
}
