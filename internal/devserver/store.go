package devserver

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nfrund/chatsync/internal/domain"
)

// ErrBadCursor is returned when a before cursor names no message of the chat.
var ErrBadCursor = errors.New("unknown pagination cursor")

type chatRecord struct {
	id           string
	participants []string
	messages     []domain.Message // oldest first
	unread       map[string]int
	lastActivity time.Time
}

// Store is the dev server's in-memory state. It is safe for concurrent use.
type Store struct {
	mu    sync.RWMutex
	users map[string]domain.Participant
	chats map[string]*chatRecord
	now   func() time.Time
}

// NewStore creates an empty store. A nil now uses time.Now.
func NewStore(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		users: make(map[string]domain.Participant),
		chats: make(map[string]*chatRecord),
		now:   now,
	}
}

// AddUser registers or replaces a user.
func (s *Store) AddUser(p domain.Participant) error {
	if err := domain.Validate(p); err != nil {
		return fmt.Errorf("add user: %w", err)
	}
	s.mu.Lock()
	s.users[p.ID] = p
	s.mu.Unlock()
	return nil
}

// Users returns every user ordered by id.
func (s *Store) Users() []domain.Participant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Participant, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CreateChat starts a conversation between creator and participantIDs.
func (s *Store) CreateChat(creator string, participantIDs []string) (domain.ChatSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	members := []string{creator}
	seen := map[string]bool{creator: true}
	for _, id := range participantIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		members = append(members, id)
	}
	for _, id := range members {
		if _, ok := s.users[id]; !ok {
			return domain.ChatSummary{}, fmt.Errorf("user %q: %w", id, domain.ErrNotFound)
		}
	}
	if len(members) < 2 {
		return domain.ChatSummary{}, fmt.Errorf("create chat: need at least one other participant")
	}

	rec := &chatRecord{
		id:           uuid.NewString(),
		participants: members,
		unread:       make(map[string]int),
		lastActivity: s.now().UTC(),
	}
	s.chats[rec.id] = rec
	return s.summaryLocked(rec, creator), nil
}

// ListChats returns one page of userID's chats, most recently active first.
// Pages are 1-based.
func (s *Store) ListChats(userID string, page, limit int) []domain.ChatSummary {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = domain.ChatPageSize
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var recs []*chatRecord
	for _, rec := range s.chats {
		if rec.has(userID) {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].lastActivity.Equal(recs[j].lastActivity) {
			return recs[i].lastActivity.After(recs[j].lastActivity)
		}
		return recs[i].id < recs[j].id
	})

	start := (page - 1) * limit
	out := make([]domain.ChatSummary, 0, limit)
	for i := start; i < len(recs) && i < start+limit; i++ {
		out = append(out, s.summaryLocked(recs[i], userID))
	}
	return out
}

// Chat returns the summary of chatID as seen by userID.
func (s *Store) Chat(userID, chatID string) (domain.ChatSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, err := s.memberLocked(userID, chatID)
	if err != nil {
		return domain.ChatSummary{}, err
	}
	return s.summaryLocked(rec, userID), nil
}

// Participants returns the member ids of chatID.
func (s *Store) Participants(chatID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.chats[chatID]
	if !ok {
		return nil, fmt.Errorf("chat %q: %w", chatID, domain.ErrNotFound)
	}
	return append([]string(nil), rec.participants...), nil
}

// ListMessages returns up to limit messages older than the message with id
// before (the newest messages when before is empty), oldest first.
func (s *Store) ListMessages(userID, chatID string, limit int, before string) (domain.MessagePage, error) {
	if limit < 1 {
		limit = domain.MessagePageSize
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, err := s.memberLocked(userID, chatID)
	if err != nil {
		return domain.MessagePage{}, err
	}

	candidates := rec.messages
	if before != "" {
		idx := rec.indexOf(before)
		if idx < 0 {
			return domain.MessagePage{}, ErrBadCursor
		}
		candidates = rec.messages[:idx]
	}

	from := len(candidates) - limit
	if from < 0 {
		from = 0
	}
	page := domain.MessagePage{Messages: make([]domain.Message, 0, len(candidates)-from)}
	for _, m := range candidates[from:] {
		page.Messages = append(page.Messages, m.Clone())
	}
	if from > 0 {
		page.HasMore = true
		cursor := page.Messages[0].ID
		page.NextCursor = &cursor
	}
	return page, nil
}

// PostMessage appends a message from senderID and bumps every other
// participant's unread count.
func (s *Store) PostMessage(senderID, chatID, content string) (domain.Message, error) {
	if strings.TrimSpace(content) == "" {
		return domain.Message{}, domain.ErrEmptyContent
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.memberLocked(senderID, chatID)
	if err != nil {
		return domain.Message{}, err
	}

	now := s.now().UTC()
	if n := len(rec.messages); n > 0 && !now.After(rec.messages[n-1].CreatedAt) {
		now = rec.messages[n-1].CreatedAt.Add(time.Millisecond)
	}
	delivered := now
	msg := domain.Message{
		ID:          uuid.NewString(),
		ChatID:      chatID,
		SenderID:    senderID,
		Content:     content,
		CreatedAt:   now,
		DeliveredAt: &delivered,
		ReadBy:      []string{senderID},
	}
	rec.messages = append(rec.messages, msg)
	rec.lastActivity = now
	for _, id := range rec.participants {
		if id != senderID {
			rec.unread[id]++
		}
	}
	return msg.Clone(), nil
}

// MarkRead zeroes userID's unread count for chatID and records the user on
// every message's read list.
func (s *Store) MarkRead(userID, chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.memberLocked(userID, chatID)
	if err != nil {
		return err
	}
	rec.unread[userID] = 0
	for i := range rec.messages {
		if !rec.messages[i].IsReadBy(userID) {
			rec.messages[i].ReadBy = append(rec.messages[i].ReadBy, userID)
		}
	}
	return nil
}

func (s *Store) memberLocked(userID, chatID string) (*chatRecord, error) {
	rec, ok := s.chats[chatID]
	if !ok {
		return nil, fmt.Errorf("chat %q: %w", chatID, domain.ErrNotFound)
	}
	if !rec.has(userID) {
		return nil, domain.ErrNotMember
	}
	return rec, nil
}

func (s *Store) summaryLocked(rec *chatRecord, viewer string) domain.ChatSummary {
	sum := domain.ChatSummary{
		ID:           rec.id,
		Participants: make([]domain.Participant, 0, len(rec.participants)),
		LastActivity: rec.lastActivity,
		UnreadCount:  rec.unread[viewer],
	}
	for _, id := range rec.participants {
		p, ok := s.users[id]
		if !ok {
			p = domain.Participant{ID: id}
		}
		sum.Participants = append(sum.Participants, p)
	}
	if n := len(rec.messages); n > 0 {
		last := rec.messages[n-1].Clone()
		sum.LastMessage = &last
	}
	return sum
}

func (r *chatRecord) has(userID string) bool {
	for _, id := range r.participants {
		if id == userID {
			return true
		}
	}
	return false
}

func (r *chatRecord) indexOf(messageID string) int {
	for i, m := range r.messages {
		if m.ID == messageID {
			return i
		}
	}
	return -1
}
