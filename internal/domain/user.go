package domain

// Participant is a member of a conversation as seen by the client.
type Participant struct {
	ID     string `json:"id" validate:"required"`
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty" validate:"omitempty,email"`
	Avatar string `json:"avatar,omitempty"`
}

// DisplayName returns the name when set and falls back to the email, then the id.
func (p Participant) DisplayName() string {
	switch {
	case p.Name != "":
		return p.Name
	case p.Email != "":
		return p.Email
	default:
		return p.ID
	}
}
