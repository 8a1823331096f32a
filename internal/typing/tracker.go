// Package typing tracks who is typing in the open conversation and sends the
// viewer's own typing_start / typing_stop signals with an automatic stop
// after a period of silence.
package typing

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/nfrund/chatsync/internal/domain"
	"github.com/nfrund/chatsync/internal/events"
	"github.com/nfrund/chatsync/internal/metrics"
	"github.com/nfrund/chatsync/internal/pubsub"
)

const component = "typing"

const (
	// DefaultIdleTimeout is how long after the last StartTyping the viewer's
	// stop signal is sent automatically.
	DefaultIdleTimeout = 3 * time.Second

	// DefaultExpiry is how long another user stays in the typing set without
	// a refresh.
	DefaultExpiry = 3 * time.Second

	emitTimeout = 5 * time.Second
)

// Emitter sends outbound realtime events.
type Emitter interface {
	Emit(ctx context.Context, event string, payload any) error
}

type remoteTyper struct {
	timer *time.Timer
	gen   uint64
}

// Tracker is the typing state of one conversation. It is safe for concurrent use.
type Tracker struct {
	chatID   string
	viewerID string
	emitter  Emitter
	logger   *slog.Logger
	metrics  *metrics.Metrics
	idle     time.Duration
	expiry   time.Duration
	onChange func()

	mu      sync.Mutex
	typers  map[string]remoteTyper
	gen     uint64
	self    *time.Timer
	selfGen uint64
	closed  bool
	offs    []func()
}

// Option configures a Tracker.
type Option func(*Tracker)

func WithLogger(logger *slog.Logger) Option { return func(t *Tracker) { t.logger = logger } }

func WithMetrics(m *metrics.Metrics) Option { return func(t *Tracker) { t.metrics = m } }

// WithIdleTimeout sets the viewer's auto-stop delay.
func WithIdleTimeout(d time.Duration) Option { return func(t *Tracker) { t.idle = d } }

// WithExpiry sets how long a remote typing indication lasts without refresh.
func WithExpiry(d time.Duration) Option { return func(t *Tracker) { t.expiry = d } }

// WithOnChange registers fn to run whenever the typing set changes.
func WithOnChange(fn func()) Option { return func(t *Tracker) { t.onChange = fn } }

// New creates a tracker for chatID. Signals go out through emitter.
func New(chatID, viewerID string, emitter Emitter, opts ...Option) *Tracker {
	t := &Tracker{
		chatID:   chatID,
		viewerID: viewerID,
		emitter:  emitter,
		logger:   slog.Default().With("component", component),
		idle:     DefaultIdleTimeout,
		expiry:   DefaultExpiry,
		typers:   make(map[string]remoteTyper),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With("chat_id", chatID)
	return t
}

func (t *Tracker) signal() domain.TypingSignal {
	return domain.TypingSignal{ChatID: t.chatID, UserID: t.viewerID}
}

// StartTyping sends typing_start and (re)arms the single auto-stop timer.
// Every call sends a start; only the last one's timer survives.
func (t *Tracker) StartTyping(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	if t.self != nil {
		t.self.Stop()
	}
	t.selfGen++
	gen := t.selfGen
	t.self = time.AfterFunc(t.idle, func() { t.autoStop(gen) })
	t.mu.Unlock()

	if err := t.emitter.Emit(ctx, events.TypingStart.Name(), t.signal()); err != nil {
		return fmt.Errorf("send typing_start: %w", err)
	}
	return nil
}

// StopTyping sends typing_stop now and disarms the auto-stop timer.
func (t *Tracker) StopTyping(ctx context.Context) error {
	t.mu.Lock()
	t.clearSelfLocked()
	t.mu.Unlock()

	if err := t.emitter.Emit(ctx, events.TypingStop.Name(), t.signal()); err != nil {
		return fmt.Errorf("send typing_stop: %w", err)
	}
	return nil
}

func (t *Tracker) clearSelfLocked() bool {
	wasTyping := t.self != nil
	if t.self != nil {
		t.self.Stop()
		t.self = nil
	}
	t.selfGen++
	return wasTyping
}

func (t *Tracker) autoStop(gen uint64) {
	t.mu.Lock()
	// Superseded by a later StartTyping or StopTyping.
	if gen != t.selfGen || t.closed {
		t.mu.Unlock()
		return
	}
	t.self = nil
	t.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), emitTimeout)
	defer cancel()
	if err := t.emitter.Emit(ctx, events.TypingStop.Name(), t.signal()); err != nil {
		t.logger.Warn("Failed to send automatic typing_stop", "error", err)
	}
}

// HandleTypingEvent applies another participant's typing state. Events for
// other chats and echoes of the viewer's own state are ignored.
func (t *Tracker) HandleTypingEvent(ev domain.TypingEvent) {
	if ev.ChatID != t.chatID {
		t.metrics.EventDropped(component, metrics.ReasonOtherChat)
		return
	}
	if ev.UserID == t.viewerID {
		t.metrics.EventDropped(component, metrics.ReasonSelf)
		return
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	prev, existed := t.typers[ev.UserID]
	if existed {
		prev.timer.Stop()
	}

	changed := false
	if ev.IsTyping {
		t.gen++
		gen := t.gen
		user := ev.UserID
		t.typers[user] = remoteTyper{
			timer: time.AfterFunc(t.expiry, func() { t.expire(user, gen) }),
			gen:   gen,
		}
		changed = !existed
	} else if existed {
		delete(t.typers, ev.UserID)
		changed = true
	}
	t.mu.Unlock()

	t.metrics.EventApplied(component, events.UserTyping.Name())
	if changed {
		t.changed()
	}
}

func (t *Tracker) expire(userID string, gen uint64) {
	t.mu.Lock()
	entry, ok := t.typers[userID]
	if !ok || entry.gen != gen {
		t.mu.Unlock()
		return
	}
	delete(t.typers, userID)
	t.mu.Unlock()

	t.logger.Debug("Typing indication expired", "user_id", userID)
	t.changed()
}

// Typing returns the ids of other users currently typing, sorted.
func (t *Tracker) Typing() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.typers))
	for id := range t.typers {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// IsTyping reports whether the viewer's typing_start is still in effect.
func (t *Tracker) IsTyping() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.self != nil
}

// Attach subscribes the tracker to user_typing.
func (t *Tracker) Attach(src pubsub.Source) {
	off := pubsub.On(src, events.UserTyping, t.logger, func(_ context.Context, ev domain.TypingEvent) {
		t.HandleTypingEvent(ev)
	})

	t.mu.Lock()
	offs := t.offs
	t.offs = []func(){off}
	t.mu.Unlock()

	for _, o := range offs {
		o()
	}
}

// Close stops every timer and subscription. When the viewer was typing a
// final typing_stop is sent.
func (t *Tracker) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	wasTyping := t.clearSelfLocked()
	for _, typer := range t.typers {
		typer.timer.Stop()
	}
	t.typers = make(map[string]remoteTyper)
	offs := t.offs
	t.offs = nil
	t.mu.Unlock()

	for _, off := range offs {
		off()
	}

	if wasTyping {
		ctx, cancel := context.WithTimeout(context.Background(), emitTimeout)
		defer cancel()
		if err := t.emitter.Emit(ctx, events.TypingStop.Name(), t.signal()); err != nil {
			t.logger.Warn("Failed to send final typing_stop", "error", err)
		}
	}
}

func (t *Tracker) changed() {
	if t.onChange != nil {
		t.onChange()
	}
}
