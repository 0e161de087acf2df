// Package tts provides a unified interface for speech synthesis backends.
//
// The coaching backend exposes two synthesis endpoints: /stream for short
// replies and /stream-chunked for long ones, where the server splits the text
// and joins the audio. Both return one encoded payload. Chunked can do the
// same split on the client side on top of any Provider.
//
// Example usage:
//
//	provider, _ := tts.NewHTTP(tts.WithBaseURL("http://localhost:5000"))
//	defer provider.Close()
//
//	settings := provider.SettingsOrDefault(ctx)
//	result, _ := provider.Synthesize(ctx, settings.Request("Hello world"))
//	// result.Audio contains the encoded audio bytes
package tts

import (
	"context"
)

// Provider defines the speech synthesis interface.
type Provider interface {
	// Synthesize converts text to audio, returning the complete payload.
	Synthesize(ctx context.Context, req Request) (*AudioResult, error)

	// SynthesizeChunked converts long text to audio by synthesizing it in
	// pieces and joining the result.
	SynthesizeChunked(ctx context.Context, req Request) (*AudioResult, error)

	// Health checks backend connectivity.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}

// SettingsSource returns the backend's current voice settings.
type SettingsSource interface {
	Settings(ctx context.Context) (Settings, error)
}

// Request is one synthesis call.
type Request struct {
	Text        string  `json:"text"`
	VoiceID     string  `json:"voice_id,omitempty"`
	Speed       float64 `json:"speed,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

// AudioResult is a complete synthesis result.
type AudioResult struct {
	// Audio contains the encoded payload as returned by the backend.
	Audio []byte

	// ContentType is the payload media type, when known.
	ContentType string

	// ChunkCount is the number of pieces synthesized; 1 for unchunked calls.
	ChunkCount int

	// CharCount is the number of characters synthesized.
	CharCount int

	// LatencyMs is the time until the response arrived.
	LatencyMs int64
}

// Settings are the voice parameters applied to every request.
type Settings struct {
	Provider    string
	VoiceID     string
	Speed       float64
	Temperature float64
}

// DefaultVoiceID is used when the backend has no stored settings.
const DefaultVoiceID = "ee966436-01ab-4810-a880-9e0a532e03b8"

// DefaultSettings returns the settings used when the backend cannot be asked.
func DefaultSettings() Settings {
	return Settings{
		VoiceID:     DefaultVoiceID,
		Speed:       1.0,
		Temperature: 0.7,
	}
}

// Request builds a synthesis request for text with these settings.
func (s Settings) Request(text string) Request {
	return Request{
		Text:        text,
		VoiceID:     s.VoiceID,
		Speed:       s.Speed,
		Temperature: s.Temperature,
	}
}
