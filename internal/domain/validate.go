package domain

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

// validatorInstance is a package-level validator instance.
// Using a single instance caches struct information across calls.
var validatorInstance = validator.New()

func init() {
	_ = validatorInstance.RegisterValidation("notblank", validateNotBlank)
}

// validateNotBlank rejects strings made only of whitespace.
func validateNotBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

// Validate runs the struct tags of any domain value (or request DTO).
func Validate(v any) error {
	return validatorInstance.Struct(v)
}

// Validate checks the message's required references.
func (m *Message) Validate() error {
	return validatorInstance.Struct(m)
}

// Validate checks the summary and every participant.
func (c *ChatSummary) Validate() error {
	return validatorInstance.Struct(c)
}

// Pagination constants shared by the client and the dev server.
const (
	ChatPageSize    = 50
	MessagePageSize = 30
	MaxPageSize     = 100
)
