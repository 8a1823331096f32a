// Package pubsub is the in-process event bus that fans inbound realtime
// events out to the synchronizers.
package pubsub

import (
	"context"
)

// Message is the structure passed between components on the bus.
type Message struct {
	// Topic is the realtime event name (e.g. "new_message").
	Topic string
	// Payload is the JSON "data" of the frame.
	Payload []byte
	// Metadata carries optional context such as the receiving connection id.
	Metadata map[string]string
}

// Handler processes one message.
type Handler func(ctx context.Context, msg Message) error

// Publisher sends messages to the bus.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}

// Subscriber receives messages from the bus.
type Subscriber interface {
	// Subscribe registers handler for topic and returns immediately. The
	// subscription ends when ctx is cancelled.
	Subscribe(ctx context.Context, topic string, handler Handler) error
	Close() error
}

// Source registers handlers and hands back the function that removes them.
// Every On must be paired with a call to the returned off.
type Source interface {
	On(topic string, handler Handler) (off func())
}
