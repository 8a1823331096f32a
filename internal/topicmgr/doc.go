// Package topicmgr keeps the registry of realtime event names exchanged with
// the chat backend.
//
// Every event is declared once with a direction: inbound events are pushed by
// the server over the socket, outbound events are emitted by the client. The
// same name may be registered in both directions (messages_read is both a
// client acknowledgment and a server broadcast).
//
// Events are usually declared at package level:
//
//	var TypingStart = topicmgr.DefineOutbound(topicmgr.TopicConfig{
//		Name:        "typing_start",
//		Description: "The viewer started composing a message",
//		Example:     `{"chatId":"c1","userId":"u1"}`,
//	})
//
// and registered with the default manager:
//
//	topicmgr.MustRegister(TypingStart)
//
// The realtime client refuses to emit names that are not registered as
// outbound, and the CLI lists the registry with `chatsync events list`.
package topicmgr
