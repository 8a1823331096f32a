package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/nfrund/chatsync/internal/topicmgr"
)

// Event[T] is a realtime event name bound to its payload type. Declaring one
// registers it with the default topic manager.
type Event[T any] struct {
	name      string
	direction topicmgr.Direction
}

// NewInbound declares a server-to-client event.
func NewInbound[T any](name, description, example string) Event[T] {
	return newEvent[T](topicmgr.DirectionInbound, name, description, example)
}

// NewOutbound declares a client-to-server event.
func NewOutbound[T any](name, description, example string) Event[T] {
	return newEvent[T](topicmgr.DirectionOutbound, name, description, example)
}

func newEvent[T any](dir topicmgr.Direction, name, description, example string) Event[T] {
	var zero T
	t := reflect.TypeOf(zero)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	fields := make([]string, 0)
	if t.Kind() == reflect.Struct {
		for i := 0; i < t.NumField(); i++ {
			tag := t.Field(i).Tag.Get("json")
			if tag == "" || tag == "-" {
				continue
			}
			fields = append(fields, strings.Split(tag, ",")[0])
		}
	}

	// Declarations live at package level; a bad one is a programming error.
	topicmgr.Default().MustRegister(topicmgr.Define(topicmgr.TopicConfig{
		Name:        name,
		Direction:   dir,
		Description: description,
		Example:     example,
		Metadata: map[string]any{
			"payload_fields": fields,
			"type_name":      t.Name(),
		},
	}))

	return Event[T]{name: name, direction: dir}
}

// Name returns the wire name.
func (e Event[T]) Name() string { return e.name }

// Direction returns who produces the event.
func (e Event[T]) Direction() topicmgr.Direction { return e.direction }

// Decode unmarshals msg's payload as T.
func (e Event[T]) Decode(msg Message) (T, error) {
	var v T
	if err := json.Unmarshal(msg.Payload, &v); err != nil {
		return v, fmt.Errorf("decode %s payload: %w", e.name, err)
	}
	return v, nil
}

// Publish sends a typed event. The compiler ensures payload matches T.
func Publish[T any](ctx context.Context, p Publisher, event Event[T], payload T) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", event.name, err)
	}
	return p.Publish(ctx, Message{Topic: event.Name(), Payload: data})
}

// On registers fn for event on src. Payloads that do not decode as T are
// logged on logger (slog.Default when nil) and skipped.
func On[T any](src Source, event Event[T], logger *slog.Logger, fn func(ctx context.Context, v T)) (off func()) {
	if logger == nil {
		logger = slog.Default()
	}
	return src.On(event.Name(), func(ctx context.Context, msg Message) error {
		v, err := event.Decode(msg)
		if err != nil {
			logger.Warn("Dropping undecodable event", "event", event.Name(), "error", err)
			return nil
		}
		fn(ctx, v)
		return nil
	})
}
