package orchestrator

import "fmt"

// State is the conversation state. Exactly one is current.
type State int

const (
	StateReady State = iota
	StateThinking
	StateGeneratingSpeech
	StateSpeaking
	StateListening
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateThinking:
		return "thinking"
	case StateGeneratingSpeech:
		return "generating-speech"
	case StateSpeaking:
		return "speaking"
	case StateListening:
		return "listening"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Busy reports whether a turn is being processed.
func (s State) Busy() bool {
	return s == StateThinking || s == StateGeneratingSpeech
}

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(text []byte) error {
	for _, st := range []State{StateReady, StateThinking, StateGeneratingSpeech, StateSpeaking, StateListening} {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("orchestrator: unknown state %q", text)
}
