// Package chatlist keeps the viewer's paginated list of chat summaries in
// step with the backend: pages come from REST (memoized for a short TTL) and
// realtime events reorder and update the loaded summaries in place.
package chatlist

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/nfrund/chatsync/internal/cache"
	"github.com/nfrund/chatsync/internal/domain"
	"github.com/nfrund/chatsync/internal/events"
	"github.com/nfrund/chatsync/internal/metrics"
	"github.com/nfrund/chatsync/internal/pubsub"
)

const component = "chatlist"

const (
	DefaultPageSize = domain.ChatPageSize
	DefaultCacheTTL = 30 * time.Second
)

// Fetcher loads one page of chat summaries.
type Fetcher interface {
	ListChats(ctx context.Context, page, limit int) ([]domain.ChatSummary, error)
}

// Synchronizer owns the chat list of one viewer. It is safe for concurrent use.
type Synchronizer struct {
	api      Fetcher
	viewerID string
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      cache.Clock
	pageSize int
	cacheTTL time.Duration
	onChange func()

	cache *cache.TTL[[]domain.ChatSummary]

	mu         sync.Mutex
	chats      []domain.ChatSummary
	page       int
	hasMore    bool
	loading    bool
	lastSeenID string
	offs       []func()
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

func WithLogger(logger *slog.Logger) Option { return func(s *Synchronizer) { s.logger = logger } }

func WithMetrics(m *metrics.Metrics) Option { return func(s *Synchronizer) { s.metrics = m } }

// WithClock replaces time.Now for cache expiry.
func WithClock(now cache.Clock) Option { return func(s *Synchronizer) { s.now = now } }

func WithPageSize(n int) Option { return func(s *Synchronizer) { s.pageSize = n } }

func WithCacheTTL(ttl time.Duration) Option { return func(s *Synchronizer) { s.cacheTTL = ttl } }

// WithOnChange registers fn to run after every state change. fn runs without
// the synchronizer's lock held and may call its accessors.
func WithOnChange(fn func()) Option { return func(s *Synchronizer) { s.onChange = fn } }

// New creates an empty list for viewerID. Nothing is fetched until FetchPage.
func New(api Fetcher, viewerID string, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		api:      api,
		viewerID: viewerID,
		logger:   slog.Default().With("component", component),
		now:      time.Now,
		pageSize: DefaultPageSize,
		cacheTTL: DefaultCacheTTL,
		hasMore:  true,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cache = cache.New[[]domain.ChatSummary](s.cacheTTL, s.now)
	return s
}

func pageKey(page int) string { return strconv.Itoa(page) }

// FetchPage loads the 1-based page, from the cache when a fresh entry exists,
// and either replaces the list or appends to it. While another fetch is in
// flight the call returns nil without doing anything. On failure the list is
// left as it was and the error is returned.
func (s *Synchronizer) FetchPage(ctx context.Context, page int, appendPage bool) error {
	if page < 1 {
		return fmt.Errorf("chatlist: invalid page %d", page)
	}

	s.mu.Lock()
	if s.loading {
		s.mu.Unlock()
		s.metrics.FetchSkipped(component)
		s.logger.Debug("Fetch already in flight, ignoring", "page", page)
		return nil
	}

	key := pageKey(page)
	if cached, ok := s.cache.Get(key); ok {
		s.applyPageLocked(page, cached, appendPage)
		s.mu.Unlock()
		s.metrics.FetchServed(component, metrics.SourceCache)
		s.changed()
		return nil
	}

	s.loading = true
	gen := s.cache.Generation()
	s.mu.Unlock()

	start := time.Now()
	chats, err := s.api.ListChats(ctx, page, s.pageSize)
	s.metrics.ObserveFetch(component, start)

	s.mu.Lock()
	s.loading = false
	if err != nil {
		s.mu.Unlock()
		s.metrics.FetchFailed(component)
		s.logger.Error("Failed to fetch chat page", "page", page, "error", err)
		return fmt.Errorf("fetch chat page %d: %w", page, err)
	}

	// A mutation during the request bumped the generation; the page is
	// still shown but not memoized.
	s.cache.PutIfGeneration(key, cloneChats(chats), gen)
	s.applyPageLocked(page, chats, appendPage)
	s.mu.Unlock()

	s.metrics.FetchServed(component, metrics.SourceNetwork)
	s.changed()
	return nil
}

func (s *Synchronizer) applyPageLocked(page int, chats []domain.ChatSummary, appendPage bool) {
	if !appendPage {
		s.chats = s.chats[:0]
	}
	seen := make(map[string]struct{}, len(s.chats)+len(chats))
	for _, c := range s.chats {
		seen[c.ID] = struct{}{}
	}
	for _, c := range chats {
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}
		s.chats = append(s.chats, c.Clone())
	}
	s.page = page
	s.hasMore = len(chats) == s.pageSize
}

// LoadMore fetches and appends the next page when the server reported more.
func (s *Synchronizer) LoadMore(ctx context.Context) error {
	s.mu.Lock()
	hasMore, loading, next := s.hasMore, s.loading, s.page+1
	s.mu.Unlock()

	if !hasMore || loading {
		return nil
	}
	return s.FetchPage(ctx, next, true)
}

// Refresh drops every cached page and reloads page 1.
func (s *Synchronizer) Refresh(ctx context.Context) error {
	s.cache.Clear()
	return s.FetchPage(ctx, 1, false)
}

// HandleNewMessage moves the message's chat to the head of the list with the
// message as its preview. A message repeating the last seen id is ignored.
// Unread counts grow only for messages written by someone else.
func (s *Synchronizer) HandleNewMessage(msg domain.Message) {
	s.mu.Lock()
	if msg.ID != "" && msg.ID == s.lastSeenID {
		s.mu.Unlock()
		s.metrics.EventDropped(component, metrics.ReasonDuplicate)
		s.logger.Debug("Dropping duplicate message", "message_id", msg.ID)
		return
	}
	s.lastSeenID = msg.ID
	s.cache.Clear()

	idx := s.indexLocked(msg.ChatID)
	if idx < 0 {
		s.mu.Unlock()
		s.metrics.EventDropped(component, metrics.ReasonNotInState)
		s.logger.Debug("Message for chat outside loaded pages", "chat_id", msg.ChatID)
		return
	}

	chat := s.chats[idx]
	last := msg.Clone()
	chat.LastMessage = &last
	chat.LastActivity = msg.CreatedAt
	if chat.LastActivity.IsZero() {
		chat.LastActivity = s.now()
	}
	if msg.SenderID != s.viewerID {
		chat.UnreadCount++
	}
	s.moveToHeadLocked(idx, chat)
	s.mu.Unlock()

	s.metrics.EventApplied(component, events.NewMessage.Name())
	s.changed()
}

// HandleChatUpdate puts summary at the head of the list, replacing any entry
// with the same id.
func (s *Synchronizer) HandleChatUpdate(summary domain.ChatSummary, isNew bool) {
	s.mu.Lock()
	s.cache.Clear()
	if idx := s.indexLocked(summary.ID); idx >= 0 {
		s.chats = append(s.chats[:idx], s.chats[idx+1:]...)
	}
	s.chats = append([]domain.ChatSummary{summary.Clone()}, s.chats...)
	s.mu.Unlock()

	name := events.ChatUpdated.Name()
	if isNew {
		name = events.ChatCreated.Name()
	}
	s.metrics.EventApplied(component, name)
	s.changed()
}

// HandleMessagesRead zeroes the chat's unread count when the viewer is the
// reader. Receipts from other participants do not affect the list.
func (s *Synchronizer) HandleMessagesRead(receipt domain.ReadReceipt) {
	if receipt.UserID != s.viewerID {
		return
	}

	s.mu.Lock()
	idx := s.indexLocked(receipt.ChatID)
	if idx < 0 {
		s.mu.Unlock()
		return
	}
	s.chats[idx].UnreadCount = 0
	s.cache.Clear()
	s.mu.Unlock()

	s.metrics.EventApplied(component, events.MessagesRead.Name())
	s.changed()
}

// ResetUnreadCount zeroes one chat's counter locally, e.g. when the viewer
// opens it. A chat that is not loaded is ignored. The cache is kept.
func (s *Synchronizer) ResetUnreadCount(chatID string) {
	s.mu.Lock()
	idx := s.indexLocked(chatID)
	if idx < 0 || s.chats[idx].UnreadCount == 0 {
		s.mu.Unlock()
		return
	}
	s.chats[idx].UnreadCount = 0
	s.mu.Unlock()

	s.changed()
}

// Attach subscribes the list to the realtime events it merges. Calling
// Attach again replaces the previous subscriptions.
func (s *Synchronizer) Attach(src pubsub.Source) {
	s.Detach()

	offs := []func(){
		pubsub.On(src, events.NewMessage, s.logger, func(_ context.Context, m domain.Message) {
			s.HandleNewMessage(m)
		}),
		pubsub.On(src, events.MessagesRead, s.logger, func(_ context.Context, r domain.ReadReceipt) {
			s.HandleMessagesRead(r)
		}),
		pubsub.On(src, events.ChatCreated, s.logger, func(_ context.Context, u domain.ChatUpdate) {
			s.HandleChatUpdate(u.Chat, true)
		}),
		pubsub.On(src, events.ChatUpdated, s.logger, func(_ context.Context, u domain.ChatUpdate) {
			s.HandleChatUpdate(u.Chat, u.IsNew)
		}),
	}

	s.mu.Lock()
	s.offs = offs
	s.mu.Unlock()
}

// Detach removes every subscription made by Attach.
func (s *Synchronizer) Detach() {
	s.mu.Lock()
	offs := s.offs
	s.offs = nil
	s.mu.Unlock()

	for _, off := range offs {
		off()
	}
}

// Chats returns a copy of the loaded summaries, most recent activity first.
func (s *Synchronizer) Chats() []domain.ChatSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneChats(s.chats)
}

// Chat returns one loaded summary.
func (s *Synchronizer) Chat(chatID string) (domain.ChatSummary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexLocked(chatID)
	if idx < 0 {
		return domain.ChatSummary{}, false
	}
	return s.chats[idx].Clone(), true
}

func (s *Synchronizer) HasMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasMore
}

func (s *Synchronizer) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Page returns the last page loaded, 0 before the first fetch.
func (s *Synchronizer) Page() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page
}

// UnreadTotal sums the unread counts of the loaded chats.
func (s *Synchronizer) UnreadTotal() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unreadTotalLocked()
}

func (s *Synchronizer) unreadTotalLocked() int {
	total := 0
	for _, c := range s.chats {
		total += c.UnreadCount
	}
	return total
}

func (s *Synchronizer) indexLocked(chatID string) int {
	for i, c := range s.chats {
		if c.ID == chatID {
			return i
		}
	}
	return -1
}

func (s *Synchronizer) moveToHeadLocked(idx int, chat domain.ChatSummary) {
	copy(s.chats[1:idx+1], s.chats[:idx])
	s.chats[0] = chat
}

func (s *Synchronizer) changed() {
	s.metrics.SetUnread(s.UnreadTotal())
	if s.onChange != nil {
		s.onChange()
	}
}

func cloneChats(chats []domain.ChatSummary) []domain.ChatSummary {
	out := make([]domain.ChatSummary, len(chats))
	for i, c := range chats {
		out[i] = c.Clone()
	}
	return out
}
