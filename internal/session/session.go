// Package session coordinates the synchronizers of one signed-in viewer: one
// realtime connection, one chat list and at most one open conversation with
// its typing tracker.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nfrund/chatsync/internal/api"
	"github.com/nfrund/chatsync/internal/chatlist"
	"github.com/nfrund/chatsync/internal/conversation"
	"github.com/nfrund/chatsync/internal/metrics"
	"github.com/nfrund/chatsync/internal/pubsub"
	"github.com/nfrund/chatsync/internal/typing"
)

var (
	// ErrClosed is returned by Start and Open after Close.
	ErrClosed = errors.New("session: closed")
	// ErrSuperseded is returned by Open when another Open finished first.
	ErrSuperseded = errors.New("session: conversation switched while opening")
)

// Transport is the realtime connection used by a session.
type Transport interface {
	pubsub.Source
	Connect(ctx context.Context) error
	Emit(ctx context.Context, event string, payload any) error
	Close() error
}

// Conversation is the open chat: its message window and typing tracker.
type Conversation struct {
	Window *conversation.Window
	Typing *typing.Tracker
}

func (c *Conversation) close() {
	c.Typing.Close()
	c.Window.Close()
}

// Session is safe for concurrent use.
type Session struct {
	viewerID  string
	api       api.ChatAPI
	transport Transport
	logger    *slog.Logger
	metrics   *metrics.Metrics
	list      *chatlist.Synchronizer

	listOpts   []chatlist.Option
	windowOpts []conversation.Option
	typingOpts []typing.Option

	mu     sync.Mutex
	active *Conversation
	closed bool
}

// Option configures a Session.
type Option func(*Session)

func WithLogger(logger *slog.Logger) Option { return func(s *Session) { s.logger = logger } }

// WithMetrics is passed on to every synchronizer the session builds.
func WithMetrics(m *metrics.Metrics) Option { return func(s *Session) { s.metrics = m } }

func WithChatListOptions(opts ...chatlist.Option) Option {
	return func(s *Session) { s.listOpts = append(s.listOpts, opts...) }
}

// WithWindowOptions is applied to every conversation window the session opens.
func WithWindowOptions(opts ...conversation.Option) Option {
	return func(s *Session) { s.windowOpts = append(s.windowOpts, opts...) }
}

// WithTypingOptions is applied to every typing tracker the session opens.
func WithTypingOptions(opts ...typing.Option) Option {
	return func(s *Session) { s.typingOpts = append(s.typingOpts, opts...) }
}

// New builds a session for viewerID. Nothing touches the network until Start.
func New(viewerID string, chatAPI api.ChatAPI, transport Transport, opts ...Option) *Session {
	s := &Session{
		viewerID:  viewerID,
		api:       chatAPI,
		transport: transport,
		logger:    slog.Default().With("component", "session"),
	}
	for _, opt := range opts {
		opt(s)
	}

	listOpts := append([]chatlist.Option{chatlist.WithMetrics(s.metrics)}, s.listOpts...)
	s.list = chatlist.New(chatAPI, viewerID, listOpts...)
	return s
}

// Start connects the realtime transport, attaches the chat list and loads
// its first page. A failed first page is returned but leaves the session usable.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}

	if err := s.transport.Connect(ctx); err != nil {
		return fmt.Errorf("connect realtime: %w", err)
	}
	s.list.Attach(s.transport)

	if err := s.list.FetchPage(ctx, 1, false); err != nil {
		return fmt.Errorf("load chat list: %w", err)
	}
	s.logger.Info("Session started", "viewer_id", s.viewerID, "chats", len(s.list.Chats()))
	return nil
}

// ChatList returns the viewer's chat list.
func (s *Session) ChatList() *chatlist.Synchronizer { return s.list }

// Active returns the open conversation, or nil.
func (s *Session) Active() *Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Open switches to chatID: the previous conversation is closed (cancelling
// its in-flight fetch), a fresh window and typing tracker are attached, the
// newest page is loaded and the chat is marked read.
func (s *Session) Open(ctx context.Context, chatID string) (*Conversation, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	prev := s.active
	s.active = nil
	s.mu.Unlock()

	if prev != nil {
		prev.close()
	}

	windowOpts := append([]conversation.Option{
		conversation.WithEmitter(s.transport),
		conversation.WithMetrics(s.metrics),
	}, s.windowOpts...)
	typingOpts := append([]typing.Option{typing.WithMetrics(s.metrics)}, s.typingOpts...)

	conv := &Conversation{
		Window: conversation.New(chatID, s.viewerID, s.api, windowOpts...),
		Typing: typing.New(chatID, s.viewerID, s.transport, typingOpts...),
	}
	conv.Window.Attach(s.transport)
	conv.Typing.Attach(s.transport)

	s.mu.Lock()
	if s.closed || s.active != nil {
		err := ErrSuperseded
		if s.closed {
			err = ErrClosed
		}
		s.mu.Unlock()
		conv.close()
		return nil, err
	}
	s.active = conv
	s.mu.Unlock()

	if err := conv.Window.FetchMessages(ctx, false); err != nil {
		return conv, fmt.Errorf("open chat %s: %w", chatID, err)
	}
	conv.Window.MarkAsRead(ctx)
	s.list.ResetUnreadCount(chatID)
	return conv, nil
}

// CloseConversation closes the open conversation, if any.
func (s *Session) CloseConversation() {
	s.mu.Lock()
	prev := s.active
	s.active = nil
	s.mu.Unlock()

	if prev != nil {
		prev.close()
	}
}

// Close releases every subscription and the realtime connection.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	prev := s.active
	s.active = nil
	s.mu.Unlock()

	if prev != nil {
		prev.close()
	}
	s.list.Detach()
	return s.transport.Close()
}
