package orchestrator

import "errors"

var (
	// ErrBusy is returned while a turn is being processed.
	ErrBusy = errors.New("orchestrator: turn in progress")

	// ErrAISpeaking is returned when listening would talk over AI playback.
	ErrAISpeaking = errors.New("orchestrator: AI is speaking")

	// ErrAlreadyListening is returned when recognition is already running.
	ErrAlreadyListening = errors.New("orchestrator: already listening")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("orchestrator: closed")

	// ErrEmptyText is returned by SubmitText for blank input.
	ErrEmptyText = errors.New("orchestrator: empty text")

	// ErrMissingDependency is returned by New when a required collaborator
	// is nil.
	ErrMissingDependency = errors.New("orchestrator: missing dependency")
)
