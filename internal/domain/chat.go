package domain

import "time"

// ChatSummary is the lightweight preview of one conversation shown in a chat list.
// UnreadCount is relative to the user who fetched it.
type ChatSummary struct {
	ID           string        `json:"id" validate:"required"`
	Participants []Participant `json:"participants" validate:"dive"`
	LastMessage  *Message      `json:"lastMessage,omitempty"`
	LastActivity time.Time     `json:"lastActivity"`
	UnreadCount  int           `json:"unreadCount" validate:"gte=0"`
}

// HasParticipant reports whether userID is a member of the chat.
func (c ChatSummary) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p.ID == userID {
			return true
		}
	}
	return false
}

// Clone returns a copy that shares no mutable state with c.
func (c ChatSummary) Clone() ChatSummary {
	out := c
	if c.Participants != nil {
		out.Participants = append([]Participant(nil), c.Participants...)
	}
	if c.LastMessage != nil {
		m := c.LastMessage.Clone()
		out.LastMessage = &m
	}
	return out
}

// ChatUpdate is the payload of the chat_created and chat_updated events.
type ChatUpdate struct {
	Chat  ChatSummary `json:"chat"`
	IsNew bool        `json:"isNew"`
}
