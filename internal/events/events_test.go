package events_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nfrund/chatsync/internal/events"
	"github.com/nfrund/chatsync/internal/topicmgr"
)

func TestEventsAreRegistered(t *testing.T) {
	inbound := []string{
		events.NewMessage.Name(),
		events.MessagesRead.Name(),
		events.UserTyping.Name(),
		events.ChatCreated.Name(),
		events.ChatUpdated.Name(),
	}
	for _, name := range inbound {
		assert.True(t, topicmgr.Default().IsInbound(name), name)
	}

	outbound := []string{
		events.MarkRead.Name(),
		events.TypingStart.Name(),
		events.TypingStop.Name(),
	}
	for _, name := range outbound {
		assert.True(t, topicmgr.Default().IsOutbound(name), name)
	}

	assert.False(t, topicmgr.Default().IsOutbound(events.UserTyping.Name()))
	assert.False(t, topicmgr.Default().IsOutbound(events.NewMessage.Name()))
}

func TestMetadataDescribesPayload(t *testing.T) {
	topic, ok := topicmgr.Get(topicmgr.DirectionInbound, "user_typing")
	assert.True(t, ok)
	assert.Equal(t, "TypingEvent", topic.Metadata()["type_name"])
	assert.Equal(t, []string{"userId", "chatId", "isTyping"}, topic.Metadata()["payload_fields"])
}
