package render

import (
	"context"
	"strings"
	"time"
)

// DefaultRevealInterval is the delay between revealed characters.
const DefaultRevealInterval = 30 * time.Millisecond

// Typewriter reveals text one character at a time.
type Typewriter struct {
	Interval time.Duration
}

// NewTypewriter creates a typewriter; interval <= 0 uses
// DefaultRevealInterval.
func NewTypewriter(interval time.Duration) *Typewriter {
	if interval <= 0 {
		interval = DefaultRevealInterval
	}
	return &Typewriter{Interval: interval}
}

// Reveal calls sink with each growing prefix of text, one rune per Interval.
// On cancellation it returns ctx.Err() after revealing the whole text, so the
// reader is never left with a partial reply.
func (tw *Typewriter) Reveal(ctx context.Context, text string, sink func(string)) error {
	if text == "" {
		return nil
	}

	ticker := time.NewTicker(tw.Interval)
	defer ticker.Stop()

	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		b.WriteRune(r)
		sink(b.String())
		if b.Len() == len(text) {
			return nil
		}
		select {
		case <-ctx.Done():
			sink(text)
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}
