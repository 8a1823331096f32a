package display

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/nfrund/chatsync/internal/domain"
	"github.com/nfrund/chatsync/internal/topicmgr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "abcdefg...", Truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "ab", Truncate("abcdef", 2))
	assert.Equal(t, "héé...", Truncate("hééééééé", 6))
}

func TestOthers(t *testing.T) {
	chat := domain.ChatSummary{Participants: []domain.Participant{
		{ID: "u1", Name: "Ada"},
		{ID: "u2", Name: "Grace"},
		{ID: "u3", Email: "linus@example.com"},
	}}
	assert.Equal(t, "Grace, linus@example.com", Others(chat, "u1"))
	assert.Equal(t, "-", Others(domain.ChatSummary{Participants: []domain.Participant{{ID: "u1"}}}, "u1"))
}

func TestEventsOutput(t *testing.T) {
	topics := []topicmgr.Topic{
		topicmgr.DefineInbound(topicmgr.TopicConfig{
			Name:        "new_message",
			Description: "A message was posted",
			Example:     `{"id":"m1"}`,
		}),
		topicmgr.DefineOutbound(topicmgr.TopicConfig{
			Name:        "typing_start",
			Description: "The viewer started typing",
		}),
	}

	var table bytes.Buffer
	EventsTable(&table, topics)
	assert.Contains(t, table.String(), "new_message")
	assert.Contains(t, table.String(), "outbound")

	var raw bytes.Buffer
	require.NoError(t, EventsJSON(&raw, topics))
	var decoded struct {
		Events []EventDisplay `json:"events"`
		Count  int            `json:"count"`
	}
	require.NoError(t, json.Unmarshal(raw.Bytes(), &decoded))
	assert.Equal(t, 2, decoded.Count)
	assert.Equal(t, "inbound", decoded.Events[0].Direction)
}

func TestChatsAndMessages(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	chats := []domain.ChatSummary{{
		ID:           "c1",
		Participants: []domain.Participant{{ID: "u1"}, {ID: "u2", Name: "Grace"}},
		LastMessage:  &domain.Message{ID: "m1", Content: "see you"},
		LastActivity: at,
		UnreadCount:  3,
	}}

	var buf bytes.Buffer
	ChatsTable(&buf, "u1", chats)
	out := buf.String()
	assert.Contains(t, out, "c1")
	assert.Contains(t, out, "Grace")
	assert.Contains(t, out, "see you")

	buf.Reset()
	Messages(&buf, []domain.Message{{ID: "m1", SenderID: "u2", Content: "hello", CreatedAt: at}})
	assert.Contains(t, buf.String(), "u2: hello")
}
