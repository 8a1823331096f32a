package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/coder/websocket"
	"github.com/nfrund/chatsync/internal/domain"
	"github.com/nfrund/chatsync/internal/events"
	"github.com/nfrund/chatsync/internal/realtime"
)

const writeTimeout = 10 * time.Second

// wsConn is one WebSocket connection of an authenticated user.
type wsConn struct {
	userID string
	conn   *websocket.Conn
	// send is a buffered channel of encoded frames for this connection.
	send   chan []byte
	server *Server
	// typing holds the chats this connection announced typing in, so a
	// dropped connection can clear them.
	typing map[string]bool
}

// readPump applies client frames until the connection fails or ctx ends.
func (c *wsConn) readPump(ctx context.Context) {
	logger := c.server.logger.With("user", c.userID)
	defer func() {
		for chatID := range c.typing {
			c.server.relayTyping(c.userID, chatID, false)
		}
		c.server.hub.remove(c)
		c.conn.Close(websocket.StatusNormalClosure, "client disconnected")
	}()

	for {
		_, raw, err := c.conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			switch {
			case status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway:
				logger.Info("WebSocket closed by client")
			case errors.Is(err, io.EOF) || errors.Is(err, context.Canceled):
			default:
				logger.Debug("WebSocket read ended", "error", err)
			}
			return
		}
		c.server.metrics.Frame("in")

		frame, err := realtime.ParseFrame(raw)
		if err != nil {
			logger.Warn("Dropping malformed frame", "error", err)
			continue
		}
		c.handle(ctx, frame)
	}
}

func (c *wsConn) handle(ctx context.Context, frame realtime.Frame) {
	logger := c.server.logger.With("user", c.userID, "event", frame.Event)

	var sig domain.TypingSignal
	if err := json.Unmarshal(frame.Data, &sig); err != nil || sig.ChatID == "" {
		logger.Warn("Dropping frame without chat id", "error", err)
		return
	}

	switch frame.Event {
	case events.MarkRead.Name():
		if err := c.server.markRead(ctx, c.userID, sig.ChatID); err != nil {
			logger.Warn("Failed to apply read receipt", "chat", sig.ChatID, "error", err)
		}
	case events.TypingStart.Name():
		c.typing[sig.ChatID] = true
		c.server.relayTyping(c.userID, sig.ChatID, true)
	case events.TypingStop.Name():
		delete(c.typing, sig.ChatID)
		c.server.relayTyping(c.userID, sig.ChatID, false)
	default:
		logger.Debug("Ignoring unknown client event")
	}
}

// writePump writes queued frames until the hub closes the send channel.
func (c *wsConn) writePump() {
	defer c.conn.Close(websocket.StatusNormalClosure, "server-side cleanup")

	for payload := range c.send {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := c.conn.Write(ctx, websocket.MessageText, payload)
		cancel()
		if err != nil {
			c.server.logger.Debug("WebSocket write failed", "user", c.userID, "error", err)
			return
		}
		c.server.metrics.Frame("out")
	}
}
