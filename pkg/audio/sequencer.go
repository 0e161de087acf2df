// Package audio sequences AI speech playback on a single output handle.
//
// The Sequencer owns at most one live playback. Starting a new one stops and
// releases the previous handle first, so AI speech never overlaps. How each
// playback ended is reported on the Outcome channel Play returns. The On*
// callbacks are optional hooks for observers such as logging.
package audio

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Outcome is how a playback ended.
type Outcome int

const (
	OutcomeCompleted Outcome = iota
	OutcomeInterrupted
	OutcomeFailed
	OutcomeSuperseded
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeInterrupted:
		return "interrupted"
	case OutcomeFailed:
		return "failed"
	case OutcomeSuperseded:
		return "superseded"
	default:
		return "unknown"
	}
}

// PendingAudio describes the live playback.
type PendingAudio struct {
	ID        string
	Data      []byte
	Size      int
	Format    Format
	StartedAt time.Time
}

type playback struct {
	pending PendingAudio
	handle  Handle
	done    chan Outcome
	settled bool
}

// Sequencer plays one audio payload at a time.
type Sequencer struct {
	device Device
	logger *slog.Logger

	// OnStarted is called after a playback starts.
	OnStarted func(PendingAudio)

	// OnCompleted is called when playback ends on its own. Device errors
	// also end here, after being logged.
	OnCompleted func()

	// OnInterrupted is called when Interrupt halts a playback.
	OnInterrupted func()

	mu     sync.Mutex
	active *playback
	closed bool
}

// NewSequencer creates a sequencer for device.
func NewSequencer(device Device, logger *slog.Logger) *Sequencer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sequencer{
		device: device,
		logger: logger.With("component", "audio.sequencer"),
	}
}

// Play starts data, stopping and releasing any previous playback first.
// The returned channel yields exactly one Outcome and is then closed.
func (s *Sequencer) Play(ctx context.Context, data []byte) (<-chan Outcome, error) {
	if len(data) == 0 {
		return nil, ErrEmptyAudio
	}
	if s.device == nil {
		return nil, ErrNoDevice
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}

	if prev := s.active; prev != nil {
		s.active = nil
		s.retireLocked(prev, OutcomeSuperseded)
		s.logger.Debug("superseded playback", "id", prev.pending.ID)
	}

	handle, err := s.device.Start(ctx, data)
	if err != nil {
		s.mu.Unlock()
		return nil, &PlaybackError{Op: "start", Err: err}
	}

	p := &playback{
		pending: PendingAudio{
			ID:        uuid.NewString(),
			Data:      data,
			Size:      len(data),
			Format:    DetectFormat(data),
			StartedAt: time.Now(),
		},
		handle: handle,
		done:   make(chan Outcome, 1),
	}
	s.active = p
	onStarted := s.OnStarted
	s.mu.Unlock()

	s.logger.Debug("playback started",
		"id", p.pending.ID,
		"bytes", p.pending.Size,
		"format", p.pending.Format.String(),
	)

	go s.watch(p)

	if onStarted != nil {
		onStarted(p.pending)
	}
	return p.done, nil
}

// watch waits for the device to finish a playback.
func (s *Sequencer) watch(p *playback) {
	err := <-p.handle.Done()

	s.mu.Lock()
	if p.settled {
		s.mu.Unlock()
		return
	}
	p.settled = true
	if s.active == p {
		s.active = nil
	}
	if rerr := p.handle.Release(); rerr != nil {
		s.logger.Warn("release failed", "id", p.pending.ID, "error", rerr)
	}
	outcome := OutcomeCompleted
	if err != nil {
		outcome = OutcomeFailed
	}
	p.done <- outcome
	close(p.done)
	cb := s.OnCompleted
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("playback failed", "id", p.pending.ID, "error", err)
	} else {
		s.logger.Debug("playback completed",
			"id", p.pending.ID,
			"duration_ms", time.Since(p.pending.StartedAt).Milliseconds(),
		)
	}

	if cb != nil {
		cb()
	}
}

// retireLocked stops and releases p, then reports outcome. s.mu must be held.
func (s *Sequencer) retireLocked(p *playback, outcome Outcome) {
	p.settled = true
	if err := p.handle.Stop(); err != nil {
		s.logger.Warn("stop failed", "id", p.pending.ID, "error", err)
	}
	if err := p.handle.Release(); err != nil {
		s.logger.Warn("release failed", "id", p.pending.ID, "error", err)
	}
	p.done <- outcome
	close(p.done)
}

// Interrupt halts the live playback and reports whether one was stopped.
// With nothing playing it does nothing.
func (s *Sequencer) Interrupt() bool {
	s.mu.Lock()
	p := s.active
	if p == nil {
		s.mu.Unlock()
		return false
	}
	s.active = nil
	s.retireLocked(p, OutcomeInterrupted)
	cb := s.OnInterrupted
	s.mu.Unlock()

	s.logger.Debug("playback interrupted", "id", p.pending.ID)

	if cb != nil {
		cb()
	}
	return true
}

// Active returns the live playback, if any.
func (s *Sequencer) Active() (PendingAudio, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return PendingAudio{}, false
	}
	return s.active.pending, true
}

// Playing reports whether audio is playing.
func (s *Sequencer) Playing() bool {
	_, ok := s.Active()
	return ok
}

// Close stops any playback without firing callbacks and rejects further Play
// calls.
func (s *Sequencer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if p := s.active; p != nil {
		s.active = nil
		s.retireLocked(p, OutcomeInterrupted)
	}
	return nil
}
