// Package render decides how an assistant reply reaches the user.
package render

import "unicode/utf8"

// DefaultChunkThreshold is the reply length above which speech is synthesized
// in chunks.
const DefaultChunkThreshold = 950

// Mode is the interaction mode.
type Mode int

const (
	ModeText Mode = iota
	ModeVoice
)

// String returns the mode name.
func (m Mode) String() string {
	if m == ModeVoice {
		return "voice"
	}
	return "text"
}

// ParseMode maps "voice" to ModeVoice and anything else to ModeText.
func ParseMode(s string) Mode {
	if s == "voice" {
		return ModeVoice
	}
	return ModeText
}

// Route is the delivery path for a reply.
type Route int

const (
	// RouteText reveals the reply progressively with no audio.
	RouteText Route = iota
	// RouteSpeech synthesizes the reply in one request.
	RouteSpeech
	// RouteChunkedSpeech synthesizes a long reply in pieces.
	RouteChunkedSpeech
)

// String returns the route name.
func (r Route) String() string {
	switch r {
	case RouteSpeech:
		return "speech"
	case RouteChunkedSpeech:
		return "chunked-speech"
	default:
		return "text"
	}
}

// Speaks reports whether the route produces audio.
func (r Route) Speaks() bool {
	return r != RouteText
}

// Select picks the route for text. Text mode and upstream failures always
// render as text. threshold <= 0 uses DefaultChunkThreshold; length counts
// characters.
func Select(mode Mode, text string, upstreamErr error, threshold int) Route {
	if mode != ModeVoice || upstreamErr != nil {
		return RouteText
	}
	if threshold <= 0 {
		threshold = DefaultChunkThreshold
	}
	if utf8.RuneCountInString(text) > threshold {
		return RouteChunkedSpeech
	}
	return RouteSpeech
}
