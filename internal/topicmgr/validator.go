package topicmgr

import (
	"fmt"
	"regexp"
	"strings"
)

const maxNameLength = 64

// Validator checks topic declarations before registration.
type Validator struct {
	namePattern *regexp.Regexp
}

// NewValidator creates a validator for snake_case event names such as
// new_message or typing_start.
func NewValidator() *Validator {
	return &Validator{
		namePattern: regexp.MustCompile(`^[a-z][a-z0-9]*(_[a-z0-9]+)*$`),
	}
}

// ValidateDefinition checks name, direction and description.
func (v *Validator) ValidateDefinition(topic Topic) error {
	if topic == nil {
		return fmt.Errorf("topic cannot be nil")
	}
	if err := v.ValidateName(topic.Name()); err != nil {
		return fmt.Errorf("invalid topic name: %w", err)
	}
	if !topic.Direction().Valid() {
		return fmt.Errorf("invalid topic direction: %q", topic.Direction())
	}
	if strings.TrimSpace(topic.Description()) == "" {
		return fmt.Errorf("topic description cannot be empty")
	}
	return nil
}

// ValidateName checks the wire naming convention.
func (v *Validator) ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("name cannot be empty")
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("name too long (max %d characters)", maxNameLength)
	}
	if !v.namePattern.MatchString(name) {
		return fmt.Errorf("name must be snake_case (lowercase, digits, underscores): %q", name)
	}
	return nil
}
