package topicmgr

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Registry stores topics keyed by direction and name.
type Registry struct {
	entries map[Direction]map[string]*RegistryEntry
	mu      sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: map[Direction]map[string]*RegistryEntry{
			DirectionInbound:  {},
			DirectionOutbound: {},
		},
	}
}

// Register adds a topic. A name may appear once per direction.
func (r *Registry) Register(topic Topic) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if topic == nil {
		return &TopicError{Type: ErrorValidationFailed, Message: "cannot register nil topic"}
	}

	name, dir := topic.Name(), topic.Direction()
	if name == "" {
		return &TopicError{Type: ErrorValidationFailed, Direction: dir, Message: "topic name cannot be empty"}
	}

	byName, ok := r.entries[dir]
	if !ok {
		return &TopicError{
			Type:      ErrorInvalidDirection,
			Topic:     name,
			Direction: dir,
			Message:   fmt.Sprintf("invalid direction: %q", dir),
		}
	}

	if _, exists := byName[name]; exists {
		return &TopicError{
			Type:      ErrorDuplicateRegistration,
			Topic:     name,
			Direction: dir,
			Message:   fmt.Sprintf("topic already registered: %s (%s)", name, dir),
		}
	}

	byName[name] = &RegistryEntry{Topic: topic, RegisteredAt: time.Now()}
	return nil
}

// Get looks up a topic by direction and name.
func (r *Registry) Get(dir Direction, name string) (Topic, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[dir][name]
	if !ok {
		return nil, false
	}
	return entry.Topic, true
}

// List returns every topic, inbound first, each direction sorted by name.
func (r *Registry) List() []Topic {
	out := r.ListByDirection(DirectionInbound)
	return append(out, r.ListByDirection(DirectionOutbound)...)
}

// ListByDirection returns the topics of one direction sorted by name.
func (r *Registry) ListByDirection(dir Direction) []Topic {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byName := r.entries[dir]
	out := make([]Topic, 0, len(byName))
	for _, entry := range byName {
		out = append(out, entry.Topic)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Count returns the number of registrations across both directions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, byName := range r.entries {
		n += len(byName)
	}
	return n
}

// Reset removes every topic.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for dir := range r.entries {
		r.entries[dir] = map[string]*RegistryEntry{}
	}
}

// RegistryStats summarises the registry.
type RegistryStats struct {
	TotalTopics  int               `json:"total_topics"`
	ByDirection  map[Direction]int `json:"by_direction"`
	LastRegister time.Time         `json:"last_register,omitempty"`
}

// GetStats returns counts per direction.
func (r *Registry) GetStats() RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := RegistryStats{ByDirection: make(map[Direction]int, len(r.entries))}
	for dir, byName := range r.entries {
		stats.ByDirection[dir] = len(byName)
		stats.TotalTopics += len(byName)
		for _, entry := range byName {
			if entry.RegisteredAt.After(stats.LastRegister) {
				stats.LastRegister = entry.RegisteredAt
			}
		}
	}
	return stats
}
