package publish

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"ble-bearing.klederson.com/internal/live"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const clientBuffer = 16

// Controller is the control surface of the live aggregator.
type Controller interface {
	Filter() live.Filter
	Running() bool
	SetAllowList(ids []string)
	SetBlockList(ids []string)
	SetThreshold(dbm int)
	Pause()
	Resume()
}

// Command is a control message sent by a WebSocket client.
type Command struct {
	Action    string `json:"action"` // allow, block, threshold, pause, resume, filter
	IDs       string `json:"ids,omitempty"`
	Threshold int    `json:"threshold,omitempty"`
}

// Reply is sent to a WebSocket client in answer to a command.
type Reply struct {
	Type    string         `json:"type"` // filter, error
	Filter  *FilterMessage `json:"filter,omitempty"`
	Message string         `json:"message,omitempty"`
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans live frames out to WebSocket clients. New clients receive the
// latest frame immediately.
type Hub struct {
	control  Controller
	logger   zerolog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	latest  atomic.Pointer[[]byte]
}

// NewHub creates a hub. control may be nil, in which case commands are
// refused.
func NewHub(control Controller, logger zerolog.Logger) *Hub {
	return &Hub{
		control: control,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*wsClient]struct{}),
	}
}

// Publish stores the frame as the latest and queues it for every client.
// Clients that cannot keep up are disconnected.
func (h *Hub) Publish(f live.Frame) {
	payload, err := json.Marshal(NewFrameMessage(f))
	if err != nil {
		h.logger.Error().Err(err).Msg("marshaling frame")
		return
	}
	h.latest.Store(&payload)

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			h.dropLocked(c)
		}
	}
}

// Latest returns the last published frame as JSON.
func (h *Hub) Latest() ([]byte, bool) {
	p := h.latest.Load()
	if p == nil {
		return nil, false
	}
	return *p, true
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeWS upgrades the request and streams frames until the client leaves.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &wsClient{conn: conn, send: make(chan []byte, clientBuffer)}
	if latest, ok := h.Latest(); ok {
		c.send <- latest
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug().Str("remote", r.RemoteAddr).Msg("websocket client connected")

	go h.writeLoop(c)
	h.readLoop(c)
}

func (h *Hub) writeLoop(c *wsClient) {
	defer c.conn.Close()
	for payload := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.remove(c)
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (h *Hub) readLoop(c *wsClient) {
	defer h.remove(c)
	for {
		var cmd Command
		if err := c.conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug().Err(err).Msg("websocket read ended")
			}
			return
		}

		reply := h.apply(cmd)
		payload, err := json.Marshal(reply)
		if err != nil {
			continue
		}
		h.mu.Lock()
		if _, ok := h.clients[c]; ok {
			select {
			case c.send <- payload:
			default:
			}
		}
		h.mu.Unlock()
	}
}

func (h *Hub) apply(cmd Command) Reply {
	if h.control == nil {
		return Reply{Type: "error", Message: "live control unavailable"}
	}

	switch cmd.Action {
	case "allow":
		h.control.SetAllowList(live.ParseIDList(cmd.IDs))
	case "block":
		h.control.SetBlockList(live.ParseIDList(cmd.IDs))
	case "threshold":
		h.control.SetThreshold(cmd.Threshold)
	case "pause":
		h.control.Pause()
	case "resume":
		h.control.Resume()
	case "filter":
	default:
		return Reply{Type: "error", Message: fmt.Sprintf("unknown action: %s", cmd.Action)}
	}

	h.logger.Info().Str("action", cmd.Action).Msg("live control command")
	filter := NewFilterMessage(h.control.Filter(), h.control.Running())
	return Reply{Type: "filter", Filter: &filter}
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(c)
}

func (h *Hub) dropLocked(c *wsClient) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.dropLocked(c)
	}
}
