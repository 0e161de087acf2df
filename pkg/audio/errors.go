package audio

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyAudio is returned by Play for an empty payload.
	ErrEmptyAudio = errors.New("audio: empty payload")

	// ErrNoDevice is returned when the sequencer has no output device.
	ErrNoDevice = errors.New("audio: no output device")

	// ErrClosed is returned by Play after Close.
	ErrClosed = errors.New("audio: sequencer closed")

	// ErrPlayerNotFound is returned when the player binary is missing.
	ErrPlayerNotFound = errors.New("audio: player command not found")
)

// PlaybackError wraps a device failure.
type PlaybackError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *PlaybackError) Error() string {
	return fmt.Sprintf("audio: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *PlaybackError) Unwrap() error {
	return e.Err
}
