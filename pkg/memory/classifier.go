package memory

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// Phrases are the lexical cues used to track lesson progress. They are data,
// not logic; swap them with WithPhrases.
type Phrases struct {
	// TopicIntros mark an assistant turn that opens a new topic (substring match).
	TopicIntros []string `json:"topic_intros" mapstructure:"topic_intros"`

	// ConfirmationRequests mark an assistant turn asking whether the user
	// followed (substring match).
	ConfirmationRequests []string `json:"confirmation_requests" mapstructure:"confirmation_requests"`

	// Confirmations are user replies that confirm understanding. Matching is
	// exact after trimming and lowercasing, so paraphrases do not count.
	Confirmations []string `json:"confirmations" mapstructure:"confirmations"`
}

// DefaultPhrases returns the stock English phrase lists.
func DefaultPhrases() Phrases {
	return Phrases{
		TopicIntros: []string{
			"let's talk about", "let's discuss", "let's move on to", "let's look at",
			"let's explore", "let's go through", "let's examine", "let's review",
			"let's cover", "let's learn about", "let's understand", "let's dive into",
			"let's focus on", "let's analyze", "let's break down", "let's investigate",
			"let's consider", "let's study", "let's look into", "let's explore the concept of",
		},
		ConfirmationRequests: []string{
			"does that make sense", "do you understand", "is that clear",
			"do you have any questions", "would you like me to explain",
			"shall we move on", "are you ready to proceed",
		},
		Confirmations: []string{
			"yes", "yep", "yeah", "sure", "okay", "ok", "fine", "alright", "got it",
			"makes sense", "i understand", "i get it", "no questions", "no", "nope",
			"i see", "i see what you mean", "that's clear", "that makes sense",
			"i follow", "i'm following", "got that", "understood", "clear",
			"that's clear now", "i understand now", "i get it now",
		},
	}
}

// Classifier matches turn text against a phrase set.
type Classifier struct {
	intros   []string
	requests []string
	confirms map[string]struct{}
}

// NewClassifier builds a classifier; phrases are normalised to lowercase.
func NewClassifier(p Phrases) *Classifier {
	c := &Classifier{
		intros:   lowerAll(p.TopicIntros),
		requests: lowerAll(p.ConfirmationRequests),
		confirms: make(map[string]struct{}, len(p.Confirmations)),
	}
	for _, s := range p.Confirmations {
		c.confirms[normalize(s)] = struct{}{}
	}
	return c
}

// IsTopicIntroduction reports whether text opens a new topic.
func (c *Classifier) IsTopicIntroduction(text string) bool {
	return containsAny(strings.ToLower(text), c.intros)
}

// IsConfirmationRequest reports whether text asks the user to confirm.
func (c *Classifier) IsConfirmationRequest(text string) bool {
	return containsAny(strings.ToLower(text), c.requests)
}

// IsConfirmation reports whether text is exactly a confirmation phrase.
func (c *Classifier) IsConfirmation(text string) bool {
	_, ok := c.confirms[normalize(text)]
	return ok
}

// TopicID derives a topic identifier from the first 50 characters of text,
// stripped to lowercase alphanumerics, suffixed with the timestamp in ms.
func TopicID(text string, at time.Time) string {
	runes := []rune(text)
	if len(runes) > 50 {
		runes = runes[:50]
	}
	var b strings.Builder
	for _, r := range runes {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return fmt.Sprintf("%s_%d", b.String(), at.UnixMilli())
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = normalize(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func containsAny(text string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(text, n) {
			return true
		}
	}
	return false
}
