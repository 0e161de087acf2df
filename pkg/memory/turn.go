package memory

import (
	"time"
)

// Role attributes a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"

	// RolePrompt marks input the client generated on the user's behalf,
	// such as the greeting trigger or the silence re-prompt.
	RolePrompt Role = "system-prompt"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RolePrompt:
		return true
	}
	return false
}

// Turn is one logged utterance. Turns are never modified after Append.
type Turn struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Mode is the interaction mode recorded with the session.
type Mode string

const (
	ModeVoice Mode = "voice"
	ModeText  Mode = "text"
)
