// Package speech defines the speech capture contract the orchestrator listens
// through, plus adapters: a websocket Gateway client and a Mock.
//
// A Recognizer runs one recognition session per Start. During the session it
// reports results to the Handler and finishes with exactly one HandleEnd,
// possibly preceded by HandleError.
package speech

import (
	"context"
	"strings"
)

// Recognizer captures speech and reports transcripts.
type Recognizer interface {
	// Start begins a recognition session delivering events to h.
	Start(ctx context.Context, h Handler) error

	// Stop ends the current session without delivering further events.
	// Safe to call when idle.
	Stop() error
}

// Handler receives recognition events.
type Handler interface {
	HandleResult(Result)
	HandleEnd()
	HandleError(ErrorKind)
}

// Result is one interim or final transcript.
type Result struct {
	Text       string
	Confidence float64
	Final      bool
}

// DefaultConfidence is assumed when an engine reports no confidence.
const DefaultConfidence = 1.0

// ErrorKind classifies recognition engine errors.
type ErrorKind int

const (
	ErrorOther ErrorKind = iota
	ErrorNoSpeech
	ErrorNotAllowed
	ErrorAudioCapture
	ErrorAborted
)

// String returns the wire name of the kind.
func (k ErrorKind) String() string {
	switch k {
	case ErrorNoSpeech:
		return "no-speech"
	case ErrorNotAllowed:
		return "not-allowed"
	case ErrorAudioCapture:
		return "audio-capture"
	case ErrorAborted:
		return "aborted"
	default:
		return "other"
	}
}

// ParseErrorKind maps a wire name to a kind. Unknown names are ErrorOther.
func ParseErrorKind(s string) ErrorKind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "no-speech":
		return ErrorNoSpeech
	case "not-allowed", "service-not-allowed":
		return ErrorNotAllowed
	case "audio-capture":
		return ErrorAudioCapture
	case "aborted":
		return ErrorAborted
	default:
		return ErrorOther
	}
}

// Fatal reports whether the kind ends the conversation.
func (k ErrorKind) Fatal() bool {
	return k == ErrorNotAllowed
}
