// Package signal pushes transient UI signals (toasts, score-delta flashes)
// to connected frontends over websockets.
package signal

import (
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"ludoteko/internal/game"
)

// Kind enumerates the one-shot signal types.
type Kind string

const (
	KindRoundComplete   Kind = "round_complete"
	KindRoundFailed     Kind = "round_failed"
	KindAllRoundsPassed Kind = "all_rounds_passed"
	KindScoreDelta      Kind = "score_delta"
)

// Signal is one transient UI event.
type Signal struct {
	Kind    Kind    `json:"kind"`
	Game    game.ID `json:"game,omitempty"`
	Message string  `json:"message,omitempty"`
	Amount  int     `json:"amount,omitempty"`
	Total   int     `json:"total,omitempty"`
}

// Notifier receives signals emitted by the session orchestrator.
type Notifier interface {
	Publish(sig Signal)
}

// Nop is a Notifier that discards everything.
type Nop struct{}

func (Nop) Publish(Signal) {}

const sendBuffer = 16

type client struct {
	conn *websocket.Conn
	send chan Signal
}

// Hub fans signals out to every connected websocket client. Publishing
// never blocks: a client whose buffer is full is dropped.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	logger  zerolog.Logger
}

// NewHub returns an empty hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{clients: make(map[*client]struct{}), logger: logger}
}

// Serve attaches an upgraded websocket connection to the hub and blocks
// until the peer disconnects.
func (h *Hub) Serve(conn *websocket.Conn) {
	cl := &client{conn: conn, send: make(chan Signal, sendBuffer)}
	h.mu.Lock()
	h.clients[cl] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug().Msg("signal client connected")

	go h.writeLoop(cl)

	// Read loop exists only to observe the close; inbound frames are ignored.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.drop(cl)
}

func (h *Hub) writeLoop(cl *client) {
	defer func() { _ = cl.conn.Close() }()
	for sig := range cl.send {
		if err := cl.conn.WriteJSON(sig); err != nil {
			h.logger.Debug().Err(err).Msg("signal write failed, dropping client")
			h.drop(cl)
			return
		}
	}
}

func (h *Hub) drop(cl *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[cl]; !ok {
		return
	}
	delete(h.clients, cl)
	close(cl.send)
}

// Publish broadcasts a signal to every client without blocking the caller.
func (h *Hub) Publish(sig Signal) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for cl := range h.clients {
		select {
		case cl.send <- sig:
		default:
			delete(h.clients, cl)
			close(cl.send)
		}
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for cl := range h.clients {
		delete(h.clients, cl)
		close(cl.send)
	}
}
