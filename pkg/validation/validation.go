// Package validation decides whether a speech recognition result is real
// speech or noise.
//
// Evaluate is a pure function over a transcript, its confidence, whether the
// result is final, and the time since the utterance began. Validator wraps it
// with a configuration that can be swapped at runtime and keeps counters for
// diagnostics.
//
//	v := validation.New(validation.Medium())
//	if res := v.Evaluate(text, conf, true, elapsed); res.Accepted {
//	    // hand the transcript to the orchestrator
//	}
package validation

import (
	"strings"
	"time"
)

// Reason explains a validation decision.
type Reason int

const (
	ReasonAccepted Reason = iota
	ReasonLowConfidence
	ReasonTooFewWords
	ReasonTooShort
)

// String returns the reason name used in logs and stats.
func (r Reason) String() string {
	switch r {
	case ReasonAccepted:
		return "accepted"
	case ReasonLowConfidence:
		return "low_confidence"
	case ReasonTooFewWords:
		return "too_few_words"
	case ReasonTooShort:
		return "too_short"
	default:
		return "unknown"
	}
}

// Result is the outcome of Evaluate.
type Result struct {
	Accepted bool
	Reason   Reason

	// Words is the whitespace-separated word count of the trimmed transcript.
	Words int
}

// Evaluate applies the rules in order; the first failing rule rejects.
//
//  1. confidence below MinConfidence (final) or MinInterimConfidence (interim)
//  2. fewer than NoiseWordThreshold words, final results only
//  3. final result shorter than MinSpeechDuration
func Evaluate(transcript string, confidence float64, isFinal bool, elapsed time.Duration, cfg Config) Result {
	words := len(strings.Fields(transcript))

	threshold := cfg.MinInterimConfidence
	if isFinal {
		threshold = cfg.MinConfidence
	}
	if confidence < threshold {
		return Result{Reason: ReasonLowConfidence, Words: words}
	}

	// Interim results only drive live feedback, so short fragments pass.
	if isFinal && words < cfg.NoiseWordThreshold {
		return Result{Reason: ReasonTooFewWords, Words: words}
	}

	if isFinal && elapsed < cfg.MinSpeechDuration {
		return Result{Reason: ReasonTooShort, Words: words}
	}

	return Result{Accepted: true, Reason: ReasonAccepted, Words: words}
}
