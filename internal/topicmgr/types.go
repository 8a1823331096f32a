package topicmgr

import (
	"fmt"
	"time"
)

// Topic describes one realtime event name.
type Topic interface {
	// Name is the wire name carried in the frame's "event" field.
	Name() string

	// Direction reports who produces the event.
	Direction() Direction

	Description() string

	// Example is a sample "data" payload.
	Example() string

	Metadata() map[string]any
}

// Direction tells whether the server or the client produces an event.
type Direction string

const (
	DirectionInbound  Direction = "inbound"  // server -> client
	DirectionOutbound Direction = "outbound" // client -> server
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == DirectionInbound || d == DirectionOutbound
}

// ParseDirection accepts "inbound" or "outbound" (case sensitive).
func ParseDirection(s string) (Direction, error) {
	d := Direction(s)
	if !d.Valid() {
		return "", &TopicError{
			Type:    ErrorInvalidDirection,
			Message: fmt.Sprintf("invalid direction: %q", s),
		}
	}
	return d, nil
}

// TopicConfig holds the declaration of a topic.
type TopicConfig struct {
	Name        string         `json:"name"`
	Direction   Direction      `json:"direction"`
	Description string         `json:"description"`
	Example     string         `json:"example,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// TypedTopic is the concrete Topic built by Define, DefineInbound and DefineOutbound.
type TypedTopic struct {
	name        string
	direction   Direction
	description string
	example     string
	metadata    map[string]any
}

var _ Topic = (*TypedTopic)(nil)

// Define builds a topic from config as given.
func Define(config TopicConfig) *TypedTopic {
	metadata := make(map[string]any, len(config.Metadata))
	for k, v := range config.Metadata {
		metadata[k] = v
	}
	return &TypedTopic{
		name:        config.Name,
		direction:   config.Direction,
		description: config.Description,
		example:     config.Example,
		metadata:    metadata,
	}
}

// DefineInbound builds a server-to-client topic.
func DefineInbound(config TopicConfig) *TypedTopic {
	config.Direction = DirectionInbound
	return Define(config)
}

// DefineOutbound builds a client-to-server topic.
func DefineOutbound(config TopicConfig) *TypedTopic {
	config.Direction = DirectionOutbound
	return Define(config)
}

func (t *TypedTopic) Name() string         { return t.name }
func (t *TypedTopic) Direction() Direction { return t.direction }
func (t *TypedTopic) Description() string  { return t.description }
func (t *TypedTopic) Example() string      { return t.example }

// Metadata returns a copy of the topic metadata.
func (t *TypedTopic) Metadata() map[string]any {
	out := make(map[string]any, len(t.metadata))
	for k, v := range t.metadata {
		out[k] = v
	}
	return out
}

func (t *TypedTopic) String() string {
	return fmt.Sprintf("%s(%s)", t.name, t.direction)
}

// RegistryEntry is a registered topic plus bookkeeping.
type RegistryEntry struct {
	Topic        Topic     `json:"-"`
	RegisteredAt time.Time `json:"registered_at"`
}

// ErrorType classifies a TopicError.
type ErrorType string

const (
	ErrorTopicNotFound         ErrorType = "topic_not_found"
	ErrorDuplicateRegistration ErrorType = "duplicate_registration"
	ErrorValidationFailed      ErrorType = "validation_failed"
	ErrorInvalidDirection      ErrorType = "invalid_direction"
)

// TopicError is returned by the registry, manager and validator.
type TopicError struct {
	Type      ErrorType `json:"type"`
	Topic     string    `json:"topic"`
	Direction Direction `json:"direction,omitempty"`
	Message   string    `json:"message"`
	Cause     error     `json:"cause,omitempty"`
}

func (e *TopicError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("topicmgr: %s: %v", e.Message, e.Cause)
	}
	return "topicmgr: " + e.Message
}

func (e *TopicError) Unwrap() error { return e.Cause }

// Is matches another *TopicError by Type, so errors.Is(err, &TopicError{Type: ErrorTopicNotFound}) works.
func (e *TopicError) Is(target error) bool {
	t, ok := target.(*TopicError)
	if !ok {
		return false
	}
	return t.Type == e.Type
}
