// Package conversation keeps the loaded message history of the one chat the
// viewer has open: newest page first, older pages prepended on demand through
// the server's cursor, and realtime messages appended at the tail.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nfrund/chatsync/internal/cache"
	"github.com/nfrund/chatsync/internal/domain"
	"github.com/nfrund/chatsync/internal/events"
	"github.com/nfrund/chatsync/internal/metrics"
	"github.com/nfrund/chatsync/internal/pubsub"
)

const component = "conversation"

const (
	DefaultPageSize = domain.MessagePageSize
	DefaultCacheTTL = 10 * time.Second

	markReadTimeout = 10 * time.Second
)

// ErrClosed is returned by FetchMessages once the window has been closed.
var ErrClosed = errors.New("conversation: window closed")

// Fetcher is the REST surface the window needs.
type Fetcher interface {
	ListMessages(ctx context.Context, chatID string, limit int, before string) (domain.MessagePage, error)
	MarkRead(ctx context.Context, chatID string) error
}

// Emitter sends outbound realtime events.
type Emitter interface {
	Emit(ctx context.Context, event string, payload any) error
}

// Window is the message history of one chat. It is safe for concurrent use.
type Window struct {
	chatID   string
	viewerID string
	api      Fetcher
	emitter  Emitter
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      cache.Clock
	pageSize int
	cacheTTL time.Duration
	onChange func()

	cache *cache.TTL[domain.MessagePage]

	// ctx is cancelled by Close and aborts the in-flight fetch.
	ctx    context.Context
	cancel context.CancelFunc
	acks   sync.WaitGroup

	mu       sync.Mutex
	messages []domain.Message
	ids      map[string]struct{}
	hasMore  bool
	cursor   string
	fetched  bool
	loading  bool
	closed   bool
	offs     []func()
}

// Option configures a Window.
type Option func(*Window)

func WithLogger(logger *slog.Logger) Option { return func(w *Window) { w.logger = logger } }

func WithMetrics(m *metrics.Metrics) Option { return func(w *Window) { w.metrics = m } }

// WithClock replaces time.Now for cache expiry.
func WithClock(now cache.Clock) Option { return func(w *Window) { w.now = now } }

func WithPageSize(n int) Option { return func(w *Window) { w.pageSize = n } }

func WithCacheTTL(ttl time.Duration) Option { return func(w *Window) { w.cacheTTL = ttl } }

// WithEmitter sets where read acknowledgments are announced.
func WithEmitter(e Emitter) Option { return func(w *Window) { w.emitter = e } }

// WithOnChange registers fn to run after every state change, without the lock held.
func WithOnChange(fn func()) Option { return func(w *Window) { w.onChange = fn } }

// New creates an empty window for chatID: no messages, empty cursor, HasMore true.
func New(chatID, viewerID string, api Fetcher, opts ...Option) *Window {
	w := &Window{
		chatID:   chatID,
		viewerID: viewerID,
		api:      api,
		logger:   slog.Default().With("component", component),
		now:      time.Now,
		pageSize: DefaultPageSize,
		cacheTTL: DefaultCacheTTL,
		ids:      make(map[string]struct{}),
		hasMore:  true,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With("chat_id", chatID)
	w.cache = cache.New[domain.MessagePage](w.cacheTTL, w.now)
	w.ctx, w.cancel = context.WithCancel(context.Background())
	return w
}

func (w *Window) cacheKey(cursor string) string {
	return w.chatID + "|" + cursor
}

// FetchMessages loads the newest page (loadMore false) and replaces the
// window, or loads the page older than the current cursor (loadMore true)
// and prepends it. Before the first page has loaded, loadMore behaves as an
// initial fetch. Once history is exhausted, loadMore returns nil and does
// nothing, as does a call made while another fetch is in flight.
func (w *Window) FetchMessages(ctx context.Context, loadMore bool) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	if w.loading {
		w.mu.Unlock()
		w.metrics.FetchSkipped(component)
		return nil
	}

	if loadMore && w.fetched && (!w.hasMore || w.cursor == "") {
		w.mu.Unlock()
		w.metrics.FetchSkipped(component)
		w.logger.Debug("No older messages to load")
		return nil
	}

	cursor := ""
	if loadMore {
		cursor = w.cursor
	}
	older := cursor != ""
	key := w.cacheKey(cursor)

	if page, ok := w.cache.Get(key); ok {
		w.mergeLocked(page, older)
		w.mu.Unlock()
		w.metrics.FetchServed(component, metrics.SourceCache)
		w.changed()
		return nil
	}

	w.loading = true
	gen := w.cache.Generation()
	w.mu.Unlock()

	fetchCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(w.ctx, cancel)
	start := time.Now()
	page, err := w.api.ListMessages(fetchCtx, w.chatID, w.pageSize, cursor)
	stop()
	cancel()
	w.metrics.ObserveFetch(component, start)

	w.mu.Lock()
	w.loading = false
	if w.closed {
		w.mu.Unlock()
		w.metrics.EventDropped(component, metrics.ReasonClosed)
		return ErrClosed
	}
	if err != nil {
		w.mu.Unlock()
		w.metrics.FetchFailed(component)
		w.logger.Error("Failed to fetch messages", "before", cursor, "error", err)
		return fmt.Errorf("fetch messages of %s: %w", w.chatID, err)
	}

	w.cache.PutIfGeneration(key, clonePage(page), gen)
	w.mergeLocked(page, older)
	w.mu.Unlock()

	w.metrics.FetchServed(component, metrics.SourceNetwork)
	w.changed()
	return nil
}

func (w *Window) mergeLocked(page domain.MessagePage, older bool) {
	incoming := make([]domain.Message, 0, len(page.Messages))
	seen := make(map[string]struct{}, len(page.Messages))
	for _, m := range page.Messages {
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		if older {
			if _, loaded := w.ids[m.ID]; loaded {
				continue
			}
		}
		incoming = append(incoming, m.Clone())
	}

	if older {
		w.messages = append(incoming, w.messages...)
	} else {
		w.messages = incoming
		w.ids = make(map[string]struct{}, len(incoming))
	}
	for _, m := range incoming {
		w.ids[m.ID] = struct{}{}
	}
	domain.SortMessages(w.messages)

	w.hasMore = page.HasMore
	w.cursor = page.Cursor()
	w.fetched = true
}

// AddMessage appends msg at the tail and reports whether it was added. A
// message already in the window, or any message after Close, is ignored.
func (w *Window) AddMessage(msg domain.Message) bool {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		w.metrics.EventDropped(component, metrics.ReasonClosed)
		return false
	}
	if _, dup := w.ids[msg.ID]; dup {
		w.mu.Unlock()
		w.metrics.EventDropped(component, metrics.ReasonDuplicate)
		return false
	}

	w.ids[msg.ID] = struct{}{}
	w.messages = append(w.messages, msg.Clone())
	if n := len(w.messages); n > 1 && msg.CreatedAt.Before(w.messages[n-2].CreatedAt) {
		domain.SortMessages(w.messages)
	}
	w.cache.Clear()
	w.mu.Unlock()

	w.changed()
	return true
}

// HandleNewMessage adds msg when it belongs to this chat and drops it otherwise.
func (w *Window) HandleNewMessage(msg domain.Message) {
	if msg.ChatID != w.chatID {
		w.metrics.EventDropped(component, metrics.ReasonOtherChat)
		w.logger.Debug("Dropping message for another chat", "message_chat_id", msg.ChatID)
		return
	}
	if w.AddMessage(msg) {
		w.metrics.EventApplied(component, events.NewMessage.Name())
	}
}

// HandleMessagesRead records the reader on every loaded message it did not send.
func (w *Window) HandleMessagesRead(receipt domain.ReadReceipt) {
	if receipt.ChatID != w.chatID {
		w.metrics.EventDropped(component, metrics.ReasonOtherChat)
		return
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	updated := false
	for i := range w.messages {
		m := &w.messages[i]
		if m.SenderID == receipt.UserID || m.IsReadBy(receipt.UserID) {
			continue
		}
		m.ReadBy = append(m.ReadBy, receipt.UserID)
		updated = true
	}
	if updated {
		w.cache.Clear()
	}
	w.mu.Unlock()

	if updated {
		w.metrics.EventApplied(component, events.MessagesRead.Name())
		w.changed()
	}
}

// MarkAsRead acknowledges the chat in the background: it posts the read
// receipt and announces it on the socket. It never blocks; failures are logged.
func (w *Window) MarkAsRead(ctx context.Context) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.acks.Add(1)
	w.mu.Unlock()

	ackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), markReadTimeout)
	go func() {
		defer w.acks.Done()
		defer cancel()

		if err := w.api.MarkRead(ackCtx, w.chatID); err != nil {
			w.logger.Error("Failed to mark chat as read", "error", err)
		}
		if w.emitter == nil {
			return
		}
		receipt := domain.ReadReceipt{ChatID: w.chatID, UserID: w.viewerID}
		if err := w.emitter.Emit(ackCtx, events.MarkRead.Name(), receipt); err != nil {
			w.logger.Warn("Failed to announce read receipt", "error", err)
		}
	}()
}

// Attach subscribes the window to new_message and messages_read. Calling
// Attach again replaces the previous subscriptions.
func (w *Window) Attach(src pubsub.Source) {
	w.detach()

	offs := []func(){
		pubsub.On(src, events.NewMessage, w.logger, func(_ context.Context, m domain.Message) {
			w.HandleNewMessage(m)
		}),
		pubsub.On(src, events.MessagesRead, w.logger, func(_ context.Context, r domain.ReadReceipt) {
			w.HandleMessagesRead(r)
		}),
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		for _, off := range offs {
			off()
		}
		return
	}
	w.offs = offs
	w.mu.Unlock()
}

func (w *Window) detach() {
	w.mu.Lock()
	offs := w.offs
	w.offs = nil
	w.mu.Unlock()

	for _, off := range offs {
		off()
	}
}

// Close cancels the in-flight fetch, removes the subscriptions and waits for
// pending read acknowledgments. Later events and responses are ignored.
func (w *Window) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.mu.Unlock()

	w.cancel()
	w.detach()
	w.acks.Wait()
}

func (w *Window) ChatID() string { return w.chatID }

// Messages returns a copy of the loaded messages, oldest first.
func (w *Window) Messages() []domain.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]domain.Message, len(w.messages))
	for i, m := range w.messages {
		out[i] = m.Clone()
	}
	return out
}

func (w *Window) HasMore() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.hasMore
}

// NextCursor returns the cursor for the next older page, "" when none.
func (w *Window) NextCursor() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cursor
}

func (w *Window) Loading() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.loading
}

func (w *Window) changed() {
	if w.onChange != nil {
		w.onChange()
	}
}

func clonePage(p domain.MessagePage) domain.MessagePage {
	out := p
	out.Messages = make([]domain.Message, len(p.Messages))
	for i, m := range p.Messages {
		out.Messages[i] = m.Clone()
	}
	if p.NextCursor != nil {
		c := *p.NextCursor
		out.NextCursor = &c
	}
	return out
}
