package validation

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Preset names.
const (
	PresetLow    = "low"
	PresetMedium = "medium"
	PresetHigh   = "high"
)

// ErrUnknownPreset is returned by PresetByName for unrecognised names.
var ErrUnknownPreset = errors.New("validation: unknown preset")

// Config holds the validation thresholds.
type Config struct {
	// Name of the preset this config came from, empty for custom configs.
	Name string

	// MinConfidence is the minimum recognizer confidence for final results.
	MinConfidence float64

	// MinInterimConfidence is the minimum confidence for interim results.
	MinInterimConfidence float64

	// MinSpeechDuration rejects final results that arrive sooner than this
	// after the utterance began.
	MinSpeechDuration time.Duration

	// MaxNoSpeechRetries is how many consecutive no-speech errors are
	// tolerated before the long cooldown kicks in.
	MaxNoSpeechRetries int

	// NoiseWordThreshold is the minimum word count for a final result.
	NoiseWordThreshold int
}

// Low is the strictest preset, suited to noisy rooms.
func Low() Config {
	return Config{
		Name:                 PresetLow,
		MinConfidence:        0.6,
		MinInterimConfidence: 0.4,
		MinSpeechDuration:    300 * time.Millisecond,
		MaxNoSpeechRetries:   3,
		NoiseWordThreshold:   2,
	}
}

// Medium is the default preset.
func Medium() Config {
	return Config{
		Name:                 PresetMedium,
		MinConfidence:        0.3,
		MinInterimConfidence: 0.2,
		MinSpeechDuration:    200 * time.Millisecond,
		MaxNoSpeechRetries:   5,
		NoiseWordThreshold:   1,
	}
}

// High accepts nearly everything the recognizer reports.
func High() Config {
	return Config{
		Name:                 PresetHigh,
		MinConfidence:        0.1,
		MinInterimConfidence: 0.05,
		MinSpeechDuration:    100 * time.Millisecond,
		MaxNoSpeechRetries:   8,
		NoiseWordThreshold:   1,
	}
}

// DefaultConfig returns the medium preset.
func DefaultConfig() Config {
	return Medium()
}

// PresetByName returns the named preset (case-insensitive).
func PresetByName(name string) (Config, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case PresetLow:
		return Low(), nil
	case PresetMedium, "":
		return Medium(), nil
	case PresetHigh:
		return High(), nil
	default:
		return Config{}, fmt.Errorf("%w: %q", ErrUnknownPreset, name)
	}
}

// Validate checks that thresholds are in range.
func (c Config) Validate() error {
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("validation: min confidence %.2f out of range", c.MinConfidence)
	}
	if c.MinInterimConfidence < 0 || c.MinInterimConfidence > 1 {
		return fmt.Errorf("validation: min interim confidence %.2f out of range", c.MinInterimConfidence)
	}
	if c.MinSpeechDuration < 0 {
		return errors.New("validation: min speech duration must not be negative")
	}
	if c.MaxNoSpeechRetries < 1 {
		return errors.New("validation: max no-speech retries must be at least 1")
	}
	if c.NoiseWordThreshold < 0 {
		return errors.New("validation: noise word threshold must not be negative")
	}
	return nil
}
