// Package events declares every realtime event exchanged with the chat
// backend, bound to its payload type.
package events

import (
	"github.com/nfrund/chatsync/internal/domain"
	"github.com/nfrund/chatsync/internal/pubsub"
)

// Inbound events, pushed by the server.
var (
	// NewMessage is broadcast to every participant when a message is posted.
	NewMessage = pubsub.NewInbound[domain.Message](
		"new_message",
		"A message was posted to a chat the viewer belongs to",
		`{"id":"m1","chat":"c1","sender":"u2","content":"hi","createdAt":"2024-01-01T00:00:00Z"}`,
	)

	// MessagesRead is broadcast when a participant acknowledges a chat.
	MessagesRead = pubsub.NewInbound[domain.ReadReceipt](
		"messages_read",
		"A participant read every message of a chat",
		`{"chatId":"c1","userId":"u2"}`,
	)

	// UserTyping reports another participant's typing state.
	UserTyping = pubsub.NewInbound[domain.TypingEvent](
		"user_typing",
		"A participant started or stopped typing",
		`{"userId":"u2","chatId":"c1","isTyping":true}`,
	)

	// ChatCreated announces a chat the viewer was added to.
	ChatCreated = pubsub.NewInbound[domain.ChatUpdate](
		"chat_created",
		"A chat including the viewer was created",
		`{"chat":{"id":"c9","participants":[{"id":"u1"},{"id":"u2"}],"unreadCount":0},"isNew":true}`,
	)

	// ChatUpdated carries a replacement summary for an existing chat.
	ChatUpdated = pubsub.NewInbound[domain.ChatUpdate](
		"chat_updated",
		"A chat summary changed on the server",
		`{"chat":{"id":"c1","participants":[{"id":"u1"},{"id":"u2"}],"unreadCount":3},"isNew":false}`,
	)
)

// Outbound events, emitted by the client.
var (
	// MarkRead tells the server the viewer read a chat.
	MarkRead = pubsub.NewOutbound[domain.ReadReceipt](
		"messages_read",
		"The viewer read every message of a chat",
		`{"chatId":"c1","userId":"u1"}`,
	)

	TypingStart = pubsub.NewOutbound[domain.TypingSignal](
		"typing_start",
		"The viewer started composing a message",
		`{"chatId":"c1","userId":"u1"}`,
	)

	TypingStop = pubsub.NewOutbound[domain.TypingSignal](
		"typing_stop",
		"The viewer stopped composing a message",
		`{"chatId":"c1","userId":"u1"}`,
	)
)
