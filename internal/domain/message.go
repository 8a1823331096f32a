package domain

import (
	"sort"
	"time"
)

// Message is a single chat message. ChatID references the parent ChatSummary.
type Message struct {
	ID          string     `json:"id" validate:"required"`
	ChatID      string     `json:"chat" validate:"required"`
	SenderID    string     `json:"sender" validate:"required"`
	Content     string     `json:"content"`
	CreatedAt   time.Time  `json:"createdAt"`
	DeliveredAt *time.Time `json:"deliveredAt,omitempty"`
	ReadBy      []string   `json:"readBy,omitempty"`
}

// Clone returns a copy that shares no mutable state with m.
func (m Message) Clone() Message {
	out := m
	if m.ReadBy != nil {
		out.ReadBy = append([]string(nil), m.ReadBy...)
	}
	if m.DeliveredAt != nil {
		t := *m.DeliveredAt
		out.DeliveredAt = &t
	}
	return out
}

// IsReadBy reports whether userID has acknowledged the message.
func (m Message) IsReadBy(userID string) bool {
	for _, id := range m.ReadBy {
		if id == userID {
			return true
		}
	}
	return false
}

// MessagePage is one page of a conversation's history, oldest first.
type MessagePage struct {
	Messages   []Message `json:"messages"`
	HasMore    bool      `json:"hasMore"`
	NextCursor *string   `json:"nextCursor"`
}

// Cursor returns the pagination cursor, or "" when the server sent null.
func (p MessagePage) Cursor() string {
	if p.NextCursor == nil {
		return ""
	}
	return *p.NextCursor
}

// ReadReceipt is the payload of messages_read: userID has read chatID.
type ReadReceipt struct {
	ChatID string `json:"chatId"`
	UserID string `json:"userId"`
}

// TypingEvent is the payload of user_typing.
type TypingEvent struct {
	UserID   string `json:"userId"`
	ChatID   string `json:"chatId"`
	IsTyping bool   `json:"isTyping"`
}

// SortMessages orders messages by creation time, oldest first. Messages with
// equal timestamps keep their relative order.
func SortMessages(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
}

// TypingSignal is the payload of typing_start and typing_stop sent by the viewer.
type TypingSignal struct {
	ChatID string `json:"chatId"`
	UserID string `json:"userId"`
}
