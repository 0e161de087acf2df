package chat

import (
	"context"
	"sync"
)

// Mock implements Client for testing.
type Mock struct {
	// SendFunc is called when Send is invoked. If nil, returns "Mock reply".
	SendFunc func(ctx context.Context, req Request) (*Response, error)

	mu       sync.Mutex
	requests []Request
}

// NewMock creates a mock that replies with text.
func NewMock(text string) *Mock {
	return &Mock{
		SendFunc: func(ctx context.Context, req Request) (*Response, error) {
			return &Response{Text: text, Greeting: req.IsGreetingTrigger}, nil
		},
	}
}

// Send records req and calls SendFunc.
func (m *Mock) Send(ctx context.Context, req Request) (*Response, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	fn := m.SendFunc
	m.mu.Unlock()

	if fn == nil {
		return &Response{Text: "Mock reply"}, nil
	}
	return fn(ctx, req)
}

// Requests returns every request sent so far.
func (m *Mock) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.requests...)
}

// LastRequest returns the most recent request, or nil.
func (m *Mock) LastRequest() *Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return nil
	}
	r := m.requests[len(m.requests)-1]
	return &r
}

var _ Client = (*Mock)(nil)
