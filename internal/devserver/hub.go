package devserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/nfrund/chatsync/internal/metrics"
	"github.com/nfrund/chatsync/internal/realtime"
)

const sendBuffer = 256

// directMessage is a frame addressed to every connection of some users.
type directMessage struct {
	targets []string
	payload []byte
}

// Hub tracks the open WebSocket connections of each user and fans frames out
// to them. All map mutations happen on the Run goroutine.
type Hub struct {
	// clients maps a user id to its active connections. A user can be
	// connected from several devices.
	clients map[string][]*wsConn

	register   chan *wsConn
	unregister chan *wsConn
	direct     chan *directMessage
	done       chan struct{}

	mu      sync.RWMutex
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewHub creates a hub. Call Run to start routing.
func NewHub(logger *slog.Logger, m *metrics.Metrics) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:    make(map[string][]*wsConn),
		register:   make(chan *wsConn),
		unregister: make(chan *wsConn),
		direct:     make(chan *directMessage, sendBuffer),
		done:       make(chan struct{}),
		logger:     logger,
		metrics:    m,
	}
}

// Run routes registrations and frames until ctx is cancelled, then closes the
// send channel of every remaining connection.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("WebSocket hub started")
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for id, conns := range h.clients {
				for _, c := range conns {
					close(c.send)
					h.metrics.ConnectionClosed()
				}
				delete(h.clients, id)
			}
			h.mu.Unlock()
			h.logger.Info("WebSocket hub stopped")
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c.userID] = append(h.clients[c.userID], c)
			h.metrics.ConnectionOpened()
			h.mu.Unlock()
			h.logger.Info("Client registered", "user", c.userID)

		case c := <-h.unregister:
			h.mu.Lock()
			if conns, ok := h.clients[c.userID]; ok {
				for i, existing := range conns {
					if existing == c {
						h.clients[c.userID] = append(conns[:i], conns[i+1:]...)
						close(c.send)
						h.metrics.ConnectionClosed()
						h.logger.Info("Client unregistered", "user", c.userID)
						break
					}
				}
				if len(h.clients[c.userID]) == 0 {
					delete(h.clients, c.userID)
				}
			}
			h.mu.Unlock()

		case msg := <-h.direct:
			h.mu.RLock()
			for _, id := range msg.targets {
				for _, c := range h.clients[id] {
					select {
					case c.send <- msg.payload:
					default:
						h.logger.Warn("Client send channel full, dropping frame", "user", id)
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

// SendTo encodes the frame once and queues it for every connection of the
// given users. It is a no-op after the hub stopped.
func (h *Hub) SendTo(userIDs []string, event string, payload any) {
	if len(userIDs) == 0 {
		return
	}
	frame, err := realtime.NewFrame(event, payload)
	if err != nil {
		h.logger.Error("Failed to encode frame", "event", event, "error", err)
		return
	}
	data, err := json.Marshal(frame)
	if err != nil {
		h.logger.Error("Failed to encode frame", "event", event, "error", err)
		return
	}
	select {
	case h.direct <- &directMessage{targets: userIDs, payload: data}:
	case <-h.done:
	}
}

// Online reports how many connections userID has open.
func (h *Hub) Online(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// Done is closed when Run has returned.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

func (h *Hub) add(c *wsConn) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) remove(c *wsConn) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
