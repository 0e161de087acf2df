// Package chat talks to the coaching backend that turns a user message plus
// recent history into the coach's reply.
package chat

import (
	"context"
)

// GreetingTrigger is the message text that asks the backend for a lesson
// greeting instead of a reply.
const GreetingTrigger = "START_AI_COACH_GREETING"

// Client sends one turn to the backend.
type Client interface {
	Send(ctx context.Context, req Request) (*Response, error)
}

// Message is one history entry sent to the backend.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is one chat call.
type Request struct {
	// Text is the user's message.
	Text string

	// History is the recent conversation, oldest first.
	History []Message

	// PositionIndex is the zero-based slide index.
	PositionIndex int

	// PositionLabel is the rendered slide context, if any.
	PositionLabel string

	// LessonID routes the call to the lesson endpoint when set.
	LessonID string

	// IsGreetingTrigger asks for a greeting.
	IsGreetingTrigger bool
}

// Greeting returns the request that triggers a lesson greeting.
func Greeting(lessonID string, position int, label string) Request {
	return Request{
		Text:              GreetingTrigger,
		LessonID:          lessonID,
		PositionIndex:     position,
		PositionLabel:     label,
		IsGreetingTrigger: true,
	}
}

// Response is the backend reply.
type Response struct {
	// Text is the coach's reply. It may be empty.
	Text string

	// Greeting is set when the backend answered a greeting trigger.
	Greeting bool

	// LatencyMs is the round trip time.
	LatencyMs int64
}
