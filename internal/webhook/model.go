package webhook

import "time"

// Webhook is a configured notification endpoint for cycle events.
type Webhook struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	Type      string    `json:"type"`
	Events    []string  `json:"events"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Webhook payload types.
const (
	TypeGeneric = "generic"
	TypeDiscord = "discord"
	TypeSlack   = "slack"
	TypeGotify  = "gotify"
)

// ValidType reports whether t is a recognized payload type.
func ValidType(t string) bool {
	switch t {
	case TypeGeneric, TypeDiscord, TypeSlack, TypeGotify:
		return true
	}
	return false
}
