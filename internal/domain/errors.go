package domain

import "errors"

// Sentinel errors for the domain layer. These provide consistent, checkable
// errors for common failures shared by the client and the dev server.
var (
	ErrNotFound     = errors.New("requested resource not found")
	ErrNotMember    = errors.New("user is not a participant of the chat")
	ErrEmptyContent = errors.New("message content is empty")
)
