package tts

import (
	"context"
	"sync"
	"time"
)

// Mock is a scriptable Provider for tests. Nil function fields use defaults:
// Synthesize returns SilentWAV audio, SynthesizeChunked defers to
// SynthesizeFunc, Settings returns DefaultSettings.
type Mock struct {
	SynthesizeFunc        func(ctx context.Context, req Request) (*AudioResult, error)
	SynthesizeChunkedFunc func(ctx context.Context, req Request) (*AudioResult, error)
	SettingsFunc          func(ctx context.Context) (Settings, error)
	HealthFunc            func(ctx context.Context) error
	CloseFunc             func() error

	mu       sync.Mutex
	counts   map[string]int
	requests []Request
}

// SilentWAV returns a WAV header followed by n zero bytes.
func SilentWAV(n int) []byte {
	return append([]byte("RIFF\x00\x00\x00\x00WAVEfmt "), make([]byte, n)...)
}

// NewMock returns a mock that synthesizes silence sized to the text.
func NewMock() *Mock {
	return &Mock{
		SynthesizeFunc: func(ctx context.Context, req Request) (*AudioResult, error) {
			return &AudioResult{
				Audio:       SilentWAV(len(req.Text)),
				ContentType: "audio/wav",
				ChunkCount:  1,
				CharCount:   len(req.Text),
				LatencyMs:   1,
			}, nil
		},
	}
}

// WithError returns a mock whose every call fails with err.
func WithError(err error) *Mock {
	fail := func(context.Context, Request) (*AudioResult, error) { return nil, err }
	return &Mock{
		SynthesizeFunc:        fail,
		SynthesizeChunkedFunc: fail,
		SettingsFunc:          func(context.Context) (Settings, error) { return Settings{}, err },
		HealthFunc:            func(context.Context) error { return err },
	}
}

// WithLatency delays m's Synthesize by d, honouring ctx.
func WithLatency(m *Mock, d time.Duration) *Mock {
	next := m.SynthesizeFunc
	m.SynthesizeFunc = func(ctx context.Context, req Request) (*AudioResult, error) {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if next == nil {
			return nil, WrapError("mock", ErrProviderUnavailable)
		}
		return next(ctx, req)
	}
	return m
}

func (m *Mock) Synthesize(ctx context.Context, req Request) (*AudioResult, error) {
	m.record("Synthesize", &req)
	if m.SynthesizeFunc == nil {
		return nil, WrapError("mock", ErrProviderUnavailable)
	}
	return m.SynthesizeFunc(ctx, req)
}

func (m *Mock) SynthesizeChunked(ctx context.Context, req Request) (*AudioResult, error) {
	m.record("SynthesizeChunked", &req)
	fn := m.SynthesizeChunkedFunc
	if fn == nil {
		fn = m.SynthesizeFunc
	}
	if fn == nil {
		return nil, WrapError("mock", ErrProviderUnavailable)
	}
	return fn(ctx, req)
}

func (m *Mock) Settings(ctx context.Context) (Settings, error) {
	m.record("Settings", nil)
	if m.SettingsFunc == nil {
		return DefaultSettings(), nil
	}
	return m.SettingsFunc(ctx)
}

func (m *Mock) Health(ctx context.Context) error {
	m.record("Health", nil)
	if m.HealthFunc == nil {
		return nil
	}
	return m.HealthFunc(ctx)
}

func (m *Mock) Close() error {
	m.record("Close", nil)
	if m.CloseFunc == nil {
		return nil
	}
	return m.CloseFunc()
}

func (m *Mock) record(method string, req *Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = make(map[string]int)
	}
	m.counts[method]++
	if req != nil {
		m.requests = append(m.requests, *req)
	}
}

// CallCount returns how often method was called.
func (m *Mock) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[method]
}

// Requests returns the synthesis requests received, in order.
func (m *Mock) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.requests...)
}

// LastRequest returns the latest synthesis request, or nil.
func (m *Mock) LastRequest() *Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return nil
	}
	r := m.requests[len(m.requests)-1]
	return &r
}

// Reset forgets recorded calls.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts = nil
	m.requests = nil
}

var (
	_ Provider       = (*Mock)(nil)
	_ SettingsSource = (*Mock)(nil)
)
