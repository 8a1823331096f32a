package topicmgr

import (
	"fmt"
	"sync"
)

// Manager validates topics and stores them in a Registry.
type Manager struct {
	registry  *Registry
	validator *Validator
}

// NewManager creates a manager with an empty registry.
func NewManager() *Manager {
	return &Manager{
		registry:  NewRegistry(),
		validator: NewValidator(),
	}
}

// Register validates and stores a topic.
func (m *Manager) Register(topic Topic) error {
	if err := m.validator.ValidateDefinition(topic); err != nil {
		te := &TopicError{
			Type:    ErrorValidationFailed,
			Message: "topic validation failed",
			Cause:   err,
		}
		if topic != nil {
			te.Topic = topic.Name()
			te.Direction = topic.Direction()
		}
		return te
	}
	return m.registry.Register(topic)
}

// MustRegister registers a topic and panics on error. Used for package-level declarations.
func (m *Manager) MustRegister(topic Topic) {
	if err := m.Register(topic); err != nil {
		panic(fmt.Sprintf("failed to register topic %s: %v", topic.Name(), err))
	}
}

// Get looks up a topic by direction and name.
func (m *Manager) Get(dir Direction, name string) (Topic, bool) {
	return m.registry.Get(dir, name)
}

// Require returns the topic or an ErrorTopicNotFound TopicError.
func (m *Manager) Require(dir Direction, name string) (Topic, error) {
	topic, ok := m.registry.Get(dir, name)
	if !ok {
		return nil, &TopicError{
			Type:      ErrorTopicNotFound,
			Topic:     name,
			Direction: dir,
			Message:   fmt.Sprintf("%s event not registered: %s", dir, name),
		}
	}
	return topic, nil
}

// IsOutbound reports whether the client may emit name.
func (m *Manager) IsOutbound(name string) bool {
	_, ok := m.registry.Get(DirectionOutbound, name)
	return ok
}

// IsInbound reports whether the server may push name.
func (m *Manager) IsInbound(name string) bool {
	_, ok := m.registry.Get(DirectionInbound, name)
	return ok
}

func (m *Manager) List() []Topic { return m.registry.List() }

func (m *Manager) ListByDirection(dir Direction) []Topic { return m.registry.ListByDirection(dir) }

func (m *Manager) Count() int { return m.registry.Count() }

func (m *Manager) GetStats() RegistryStats { return m.registry.GetStats() }

// Reset removes all registered topics (tests only).
func (m *Manager) Reset() { m.registry.Reset() }

var (
	defaultManager     *Manager
	defaultManagerOnce sync.Once
)

// Default returns the process-wide manager used by package-level event declarations.
func Default() *Manager {
	defaultManagerOnce.Do(func() {
		defaultManager = NewManager()
	})
	return defaultManager
}

// Register registers a topic with the default manager.
func Register(topic Topic) error { return Default().Register(topic) }

// MustRegister registers a topic with the default manager and panics on error.
func MustRegister(topic Topic) { Default().MustRegister(topic) }

// Get looks up a topic in the default manager.
func Get(dir Direction, name string) (Topic, bool) { return Default().Get(dir, name) }

// List returns all topics of the default manager.
func List() []Topic { return Default().List() }

// ListByDirection returns one direction of the default manager.
func ListByDirection(dir Direction) []Topic { return Default().ListByDirection(dir) }
