package speech

import (
	"context"
	"sync"
)

// Mock implements Recognizer for testing. Events are delivered on the
// calling goroutine of the Simulate methods.
type Mock struct {
	// StartErr, when set, is returned by Start.
	StartErr error

	mu      sync.Mutex
	handler Handler
	active  bool
	starts  int
	stops   int
}

// NewMock creates an idle mock recognizer.
func NewMock() *Mock {
	return &Mock{}
}

// Start records the call and remembers the handler.
func (m *Mock) Start(ctx context.Context, h Handler) error {
	if h == nil {
		return ErrNilHandler
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.starts++
	if m.StartErr != nil {
		return m.StartErr
	}
	if m.active {
		return ErrAlreadyStarted
	}
	m.handler = h
	m.active = true
	return nil
}

// Stop marks the session inactive. It does not emit HandleEnd.
func (m *Mock) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stops++
	m.active = false
	return nil
}

func (m *Mock) current() Handler {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handler
}

// SimulateResult delivers a transcript.
func (m *Mock) SimulateResult(text string, confidence float64, final bool) {
	if h := m.current(); h != nil {
		h.HandleResult(Result{Text: text, Confidence: confidence, Final: final})
	}
}

// SimulateEnd ends the session.
func (m *Mock) SimulateEnd() {
	m.mu.Lock()
	m.active = false
	h := m.handler
	m.mu.Unlock()
	if h != nil {
		h.HandleEnd()
	}
}

// SimulateError delivers an error followed by the end of the session, the
// way recognition engines report failures.
func (m *Mock) SimulateError(kind ErrorKind) {
	m.mu.Lock()
	m.active = false
	h := m.handler
	m.mu.Unlock()
	if h != nil {
		h.HandleError(kind)
		h.HandleEnd()
	}
}

// Active reports whether a session is running.
func (m *Mock) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Starts returns how many times Start was called.
func (m *Mock) Starts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.starts
}

// Stops returns how many times Stop was called.
func (m *Mock) Stops() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stops
}

var _ Recognizer = (*Mock)(nil)
