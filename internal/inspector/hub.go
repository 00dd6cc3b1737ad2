// Package inspector streams engine debug events to WebSocket clients.
package inspector

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/cryguy/jshost/internal/core"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	defaultBacklog = 256
	clientBuffer   = 64
	writeTimeout   = 5 * time.Second
	pingInterval   = 30 * time.Second
)

// Message is the JSON frame sent to clients for every event.
type Message struct {
	Session string          `json:"session"`
	Seq     uint64          `json:"seq"`
	Event   core.DebugEvent `json:"event"`
}

// Option configures a Hub.
type Option func(*Hub)

// WithBacklog sets how many recent events are replayed to new clients.
func WithBacklog(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.max = n
		}
	}
}

// WithLogger mirrors every event into logger at debug level.
func WithLogger(logger zerolog.Logger) Option {
	return func(h *Hub) { h.logger = logger.With().Str("component", "inspector").Logger() }
}

// Hub is a core.DebugSink that fans debug events out to WebSocket clients.
// Emit never blocks: a client that falls behind loses events.
type Hub struct {
	session string
	max     int
	logger  zerolog.Logger

	mu      sync.Mutex
	seq     uint64
	backlog []Message
	clients map[string]chan []byte
	closed  bool
	done    chan struct{}
}

var _ core.DebugSink = (*Hub)(nil)

// NewHub creates a hub with a fresh session ID.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		session: uuid.NewString(),
		max:     defaultBacklog,
		logger:  zerolog.Nop(),
		clients: make(map[string]chan []byte),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Session returns the hub's session ID.
func (h *Hub) Session() string { return h.session }

// Emit records ev and sends it to every connected client.
func (h *Hub) Emit(ev core.DebugEvent) {
	h.logger.Debug().
		Str("kind", string(ev.Kind)).
		Str("url", ev.URL).
		Str("message", ev.Message).
		Msg("debug event")

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.seq++
	msg := Message{Session: h.session, Seq: h.seq, Event: ev}
	h.backlog = append(h.backlog, msg)
	if len(h.backlog) > h.max {
		h.backlog = h.backlog[len(h.backlog)-h.max:]
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Warn().Err(err).Msg("encoding debug event")
		return
	}
	for id, ch := range h.clients {
		select {
		case ch <- data:
		default:
			h.logger.Debug().Str("client", id).Msg("client behind, dropping event")
		}
	}
}

// Backlog returns the retained events, oldest first.
func (h *Hub) Backlog() []Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Message(nil), h.backlog...)
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request to a WebSocket, replays the backlog and
// then streams new events until the client or the hub goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Debug().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.CloseNow()

	id, send, pending, ok := h.register()
	if !ok {
		_ = conn.Close(websocket.StatusGoingAway, "inspector closed")
		return
	}
	defer h.unregister(id)
	h.logger.Info().Str("client", id).Msg("inspector client connected")

	// Clients only listen; CloseRead handles control frames and cancels ctx
	// when the peer closes.
	ctx := conn.CloseRead(r.Context())

	for _, data := range pending {
		if err := write(ctx, conn, data); err != nil {
			return
		}
	}

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	for {
		select {
		case data := <-send:
			if err := write(ctx, conn, data); err != nil {
				return
			}
		case <-ping.C:
			pctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				return
			}
		case <-h.done:
			_ = conn.Close(websocket.StatusGoingAway, "inspector closed")
			return
		case <-ctx.Done():
			return
		}
	}
}

func write(ctx context.Context, conn *websocket.Conn, data []byte) error {
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(wctx, websocket.MessageText, data)
}

// register adds a client and snapshots the backlog it must replay. Events
// emitted after the snapshot arrive on the client's channel.
func (h *Hub) register() (string, chan []byte, [][]byte, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return "", nil, nil, false
	}
	pending := make([][]byte, 0, len(h.backlog))
	for _, msg := range h.backlog {
		data, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		pending = append(pending, data)
	}
	id := uuid.NewString()
	ch := make(chan []byte, clientBuffer)
	h.clients[id] = ch
	return id, ch, pending, true
}

func (h *Hub) unregister(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, id)
	h.logger.Info().Str("client", id).Msg("inspector client disconnected")
}

// Close disconnects every client and stops accepting events.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	close(h.done)
	return nil
}
