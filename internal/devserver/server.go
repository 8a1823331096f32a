// Package devserver is a reference chat backend speaking the REST and
// WebSocket contract the synchronizers consume. It keeps everything in memory
// and is meant for local development, demos and integration tests.
package devserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/nfrund/chatsync/internal/domain"
	"github.com/nfrund/chatsync/internal/events"
	"github.com/nfrund/chatsync/internal/metrics"
	"github.com/nfrund/chatsync/internal/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultRateLimit is the per-user request rate allowed on write endpoints.
const DefaultRateLimit = 20

const shutdownTimeout = 10 * time.Second

// Server holds the dependencies of the dev backend.
type Server struct {
	E *echo.Echo

	store     *Store
	hub       *Hub
	verifier  middleware.TokenVerifier
	registry  *prometheus.Registry
	metrics   *metrics.Metrics
	logger    *slog.Logger
	rateLimit float64

	ctx    context.Context
	cancel context.CancelFunc
}

// Option configures a Server.
type Option func(*Server)

func WithLogger(logger *slog.Logger) Option { return func(s *Server) { s.logger = logger } }

// WithStore serves an existing store instead of an empty one.
func WithStore(store *Store) Option { return func(s *Server) { s.store = store } }

// WithRateLimit sets the per-user request rate on write endpoints.
func WithRateLimit(perSecond float64) Option { return func(s *Server) { s.rateLimit = perSecond } }

// New builds the server and starts its hub. verifier resolves bearer tokens.
func New(verifier middleware.TokenVerifier, opts ...Option) *Server {
	s := &Server{
		verifier:  verifier,
		registry:  prometheus.NewRegistry(),
		rateLimit: DefaultRateLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default().With("component", "devserver")
	}
	if s.store == nil {
		s.store = NewStore(nil)
	}
	s.metrics = metrics.New(s.registry)
	s.hub = NewHub(s.logger, s.metrics)

	s.ctx, s.cancel = context.WithCancel(context.Background())
	go s.hub.Run(s.ctx)

	s.E = echo.New()
	s.E.HideBanner = true
	s.E.HidePort = true
	s.E.Use(echomw.RequestID())
	s.E.Use(middleware.Logger(s.logger))
	s.E.Use(echomw.Recover())
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.E.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	s.E.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))

	auth := middleware.Auth(s.verifier)
	limit := middleware.RateLimiter(s.rateLimit)

	s.E.GET("/chats", s.listChats, auth)
	s.E.POST("/chats", s.createChat, auth, limit)
	s.E.GET("/messages/:chatId", s.listMessages, auth)
	s.E.POST("/messages/:chatId", s.sendMessage, auth, limit)
	s.E.POST("/messages/:chatId/read", s.markReadHandler, auth)
	s.E.GET("/ws", s.serveWS, auth)
}

// ServeHTTP lets the server be mounted in httptest.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.E.ServeHTTP(w, r)
}

// Store exposes the backing store.
func (s *Server) Store() *Store { return s.store }

// Hub exposes the connection hub.
func (s *Server) Hub() *Hub { return s.hub }

// Start serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Dev server listening", "addr", addr)
		if err := s.E.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		s.Close()
		if ok {
			return fmt.Errorf("serve %s: %w", addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.Close()
	if err := s.E.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// Close stops the hub, which closes every WebSocket connection.
func (s *Server) Close() {
	s.cancel()
	<-s.hub.Done()
}

func (s *Server) serveWS(c echo.Context) error {
	userID := middleware.UserID(c)

	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		s.logger.Error("Failed to upgrade connection to WebSocket", "error", err)
		return nil
	}

	client := &wsConn{
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		server: s,
		typing: make(map[string]bool),
	}
	if !s.hub.add(client) {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return nil
	}

	go client.writePump()
	client.readPump(s.ctx)
	return nil
}

// broadcast sends event to every participant of chatID except skip.
func (s *Server) broadcast(chatID, skip, event string, payload any) {
	members, err := s.store.Participants(chatID)
	if err != nil {
		s.logger.Warn("Broadcast to unknown chat", "chat", chatID, "event", event)
		return
	}
	targets := members[:0]
	for _, id := range members {
		if id != skip {
			targets = append(targets, id)
		}
	}
	s.hub.SendTo(targets, event, payload)
}

func (s *Server) markRead(_ context.Context, userID, chatID string) error {
	if err := s.store.MarkRead(userID, chatID); err != nil {
		return err
	}
	s.broadcast(chatID, "", events.MessagesRead.Name(), domain.ReadReceipt{ChatID: chatID, UserID: userID})
	return nil
}

func (s *Server) relayTyping(userID, chatID string, typing bool) {
	chat, err := s.store.Participants(chatID)
	if err != nil {
		return
	}
	member := false
	for _, id := range chat {
		if id == userID {
			member = true
			break
		}
	}
	if !member {
		s.logger.Debug("Ignoring typing signal from non-member", "user", userID, "chat", chatID)
		return
	}
	s.broadcast(chatID, userID, events.UserTyping.Name(),
		domain.TypingEvent{UserID: userID, ChatID: chatID, IsTyping: typing})
}
