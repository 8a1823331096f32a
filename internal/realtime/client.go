// Package realtime is the WebSocket transport between a chat client and the
// backend. Inbound frames are published on a local bus; handlers register
// through On and outbound signals go through Emit.
package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/nfrund/chatsync/internal/metrics"
	"github.com/nfrund/chatsync/internal/pubsub"
	"github.com/nfrund/chatsync/internal/topicmgr"
)

// Bus is the local fan-out the client publishes inbound events to.
type Bus interface {
	pubsub.Publisher
	pubsub.Source
}

const (
	defaultSendBuffer   = 64
	defaultWriteTimeout = 10 * time.Second
)

// Client is one authenticated socket to the backend.
type Client struct {
	url     string
	token   string
	bus     Bus
	topics  *topicmgr.Manager
	logger  *slog.Logger
	metrics *metrics.Metrics

	sendBuffer   int
	writeTimeout time.Duration

	mu     sync.Mutex
	conn   *websocket.Conn
	send   chan Frame
	cancel context.CancelFunc
	done   chan struct{}
	wg     sync.WaitGroup
}

// Option configures a Client.
type Option func(*Client)

func WithLogger(logger *slog.Logger) Option { return func(c *Client) { c.logger = logger } }

func WithMetrics(m *metrics.Metrics) Option { return func(c *Client) { c.metrics = m } }

// WithTopics replaces the default topic manager used to validate event names.
func WithTopics(m *topicmgr.Manager) Option { return func(c *Client) { c.topics = m } }

// WithSendBuffer sets how many outbound frames may queue before Emit blocks.
func WithSendBuffer(n int) Option { return func(c *Client) { c.sendBuffer = n } }

// New creates a client for wsURL. Connect opens the socket.
func New(wsURL, token string, bus Bus, opts ...Option) *Client {
	c := &Client{
		url:          wsURL,
		token:        token,
		bus:          bus,
		topics:       topicmgr.Default(),
		logger:       slog.Default().With("component", "realtime"),
		sendBuffer:   defaultSendBuffer,
		writeTimeout: defaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect dials the server and starts the read and write pumps. The socket
// stays open until Close or until the server goes away; ctx only bounds the dial.
// Connect on an open socket is a no-op; after the server went away it redials.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		select {
		case <-c.done:
			// The read loop ended but has not released the socket yet.
			c.cancel()
			c.conn, c.send, c.cancel = nil, nil, nil
		default:
			return nil
		}
	}

	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	conn, _, err := websocket.Dial(ctx, c.url, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.url, err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c.conn = conn
	c.send = make(chan Frame, c.sendBuffer)
	c.cancel = cancel
	c.done = make(chan struct{})

	c.wg.Add(2)
	go c.readPump(runCtx, cancel, conn, c.done)
	go c.writePump(runCtx, conn, c.send)

	c.logger.Info("Realtime connection established", "url", c.url)
	return nil
}

// On registers handler for an inbound event. It implements pubsub.Source.
func (c *Client) On(event string, handler pubsub.Handler) (off func()) {
	return c.bus.On(event, handler)
}

// Emit sends an outbound event. It fails with ErrUnknownEvent for names not
// registered as outbound and ErrNotConnected when the socket is not open.
func (c *Client) Emit(ctx context.Context, event string, payload any) error {
	if !c.topics.IsOutbound(event) {
		return fmt.Errorf("%w: %s", ErrUnknownEvent, event)
	}

	frame, err := NewFrame(event, payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}

	c.mu.Lock()
	send, done := c.send, c.done
	c.mu.Unlock()
	if send == nil {
		return ErrNotConnected
	}

	select {
	case send <- frame:
		return nil
	case <-done:
		return ErrNotConnected
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed when the read loop stops. Nil before Connect.
func (c *Client) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Connected reports whether the socket is open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}

// Close ends both pumps and closes the socket. It is safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	conn, cancel := c.conn, c.cancel
	c.conn, c.send, c.cancel = nil, nil, nil
	c.mu.Unlock()

	if conn != nil {
		if err := conn.Close(websocket.StatusNormalClosure, "client closing"); err != nil {
			c.logger.Debug("Close handshake did not complete", "error", err)
		}
		cancel()
	}
	// Pumps of a socket the server dropped may still be unwinding.
	c.wg.Wait()
	if conn != nil {
		c.logger.Info("Realtime connection closed")
	}
	return nil
}

// readPump owns the connection lifetime: when it returns, the write pump is
// stopped and the client no longer holds conn, so Connect can dial again.
func (c *Client) readPump(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, done chan struct{}) {
	defer func() {
		c.mu.Lock()
		if c.conn == conn {
			c.conn, c.send, c.cancel = nil, nil, nil
		}
		c.mu.Unlock()
		cancel()
		conn.CloseNow()
		close(done)
		c.wg.Done()
	}()

	for {
		_, raw, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			switch {
			case ctx.Err() != nil:
			case status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway:
				c.logger.Info("Realtime read loop ended", "status", status)
			default:
				c.logger.Error("Realtime read error", "error", err)
			}
			return
		}
		c.metrics.Frame("in")

		frame, err := ParseFrame(raw)
		if err != nil {
			c.logger.Warn("Dropping undecodable frame", "error", err)
			c.metrics.EventDropped("realtime", metrics.ReasonUndecoded)
			continue
		}
		if !c.topics.IsInbound(frame.Event) {
			c.logger.Debug("Dropping unknown inbound event", "event", frame.Event)
			c.metrics.EventDropped("realtime", metrics.ReasonUnknown)
			continue
		}

		msg := pubsub.Message{Topic: frame.Event, Payload: frame.Data}
		if err := c.bus.Publish(ctx, msg); err != nil {
			c.logger.Error("Failed to publish inbound event", "event", frame.Event, "error", err)
		}
	}
}

func (c *Client) writePump(ctx context.Context, conn *websocket.Conn, send <-chan Frame) {
	defer c.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-send:
			writeCtx, cancel := context.WithTimeout(ctx, c.writeTimeout)
			err := wsjson.Write(writeCtx, conn, frame)
			cancel()
			if err != nil {
				c.logger.Error("Realtime write error", "event", frame.Event, "error", err)
				return
			}
			c.metrics.Frame("out")
		}
	}
}
