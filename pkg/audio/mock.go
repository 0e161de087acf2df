package audio

import (
	"context"
	"sync"
)

// MockDevice implements Device for testing. Playbacks run until Finish is
// called on their handle.
type MockDevice struct {
	// StartErr, when set, is returned by Start.
	StartErr error

	mu      sync.Mutex
	handles []*MockHandle
}

// NewMockDevice creates a mock device.
func NewMockDevice() *MockDevice {
	return &MockDevice{}
}

// Start records a new handle.
func (d *MockDevice) Start(ctx context.Context, data []byte) (Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.StartErr != nil {
		return nil, d.StartErr
	}
	h := &MockHandle{Data: data, done: make(chan error, 1)}
	d.handles = append(d.handles, h)
	return h, nil
}

// Handles returns every handle started so far.
func (d *MockDevice) Handles() []*MockHandle {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*MockHandle(nil), d.handles...)
}

// Last returns the most recent handle, or nil.
func (d *MockDevice) Last() *MockHandle {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.handles) == 0 {
		return nil
	}
	return d.handles[len(d.handles)-1]
}

// MockHandle is a playback on MockDevice.
type MockHandle struct {
	Data []byte

	mu       sync.Mutex
	stopped  bool
	released bool
	finished bool
	done     chan error
}

// Finish ends playback; err nil means a natural end.
func (h *MockHandle) Finish(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.finished {
		return
	}
	h.finished = true
	h.done <- err
}

// Stop marks the handle stopped and ends it.
func (h *MockHandle) Stop() error {
	h.mu.Lock()
	h.stopped = true
	h.mu.Unlock()
	h.Finish(nil)
	return nil
}

// Release marks the handle released.
func (h *MockHandle) Release() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.released = true
	return nil
}

// Done implements Handle.
func (h *MockHandle) Done() <-chan error {
	return h.done
}

// Stopped reports whether Stop was called.
func (h *MockHandle) Stopped() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopped
}

// Released reports whether Release was called.
func (h *MockHandle) Released() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.released
}

var (
	_ Device = (*MockDevice)(nil)
	_ Handle = (*MockHandle)(nil)
)
