package audio

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var wavHeader = []byte("RIFF\x00\x00\x00\x00WAVEfmt ")

func waitOutcome(t *testing.T, ch <-chan Outcome) Outcome {
	t.Helper()
	select {
	case o := <-ch:
		return o
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for outcome")
		return 0
	}
}

func TestSequencer_PlayReplacesActive(t *testing.T) {
	dev := NewMockDevice()
	seq := NewSequencer(dev, nil)

	first, err := seq.Play(context.Background(), wavHeader)
	require.NoError(t, err)
	second, err := seq.Play(context.Background(), []byte("OggS-data"))
	require.NoError(t, err)

	handles := dev.Handles()
	require.Len(t, handles, 2)
	assert.True(t, handles[0].Stopped())
	assert.True(t, handles[0].Released())
	assert.False(t, handles[1].Stopped())

	assert.Equal(t, OutcomeSuperseded, waitOutcome(t, first))

	pending, ok := seq.Active()
	require.True(t, ok)
	assert.Equal(t, FormatOGG, pending.Format)
	assert.NotEmpty(t, pending.ID)

	handles[1].Finish(nil)
	assert.Equal(t, OutcomeCompleted, waitOutcome(t, second))
	assert.False(t, seq.Playing())
}

func TestSequencer_SupersedeDoesNotFireCallbacks(t *testing.T) {
	dev := NewMockDevice()
	seq := NewSequencer(dev, nil)

	var completed, interrupted atomic.Int32
	seq.OnCompleted = func() { completed.Add(1) }
	seq.OnInterrupted = func() { interrupted.Add(1) }

	first, err := seq.Play(context.Background(), wavHeader)
	require.NoError(t, err)
	_, err = seq.Play(context.Background(), wavHeader)
	require.NoError(t, err)
	waitOutcome(t, first)

	// Give the first watcher a chance to observe the stop.
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, completed.Load())
	assert.Zero(t, interrupted.Load())
}

func TestSequencer_InterruptIdleIsNoop(t *testing.T) {
	seq := NewSequencer(NewMockDevice(), nil)
	called := false
	seq.OnInterrupted = func() { called = true }

	assert.False(t, seq.Interrupt())
	assert.False(t, called)
}

func TestSequencer_InterruptDistinctFromCompletion(t *testing.T) {
	dev := NewMockDevice()
	seq := NewSequencer(dev, nil)

	var completed, interrupted atomic.Int32
	seq.OnCompleted = func() { completed.Add(1) }
	seq.OnInterrupted = func() { interrupted.Add(1) }

	done, err := seq.Play(context.Background(), wavHeader)
	require.NoError(t, err)

	assert.True(t, seq.Interrupt())
	assert.Equal(t, OutcomeInterrupted, waitOutcome(t, done))
	assert.True(t, dev.Last().Stopped())
	assert.True(t, dev.Last().Released())

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), interrupted.Load())
	assert.Zero(t, completed.Load())
	assert.False(t, seq.Interrupt())
}

func TestSequencer_FailureCountsAsCompletion(t *testing.T) {
	dev := NewMockDevice()
	seq := NewSequencer(dev, nil)

	completed := make(chan struct{}, 1)
	seq.OnCompleted = func() { completed <- struct{}{} }

	done, err := seq.Play(context.Background(), wavHeader)
	require.NoError(t, err)
	dev.Last().Finish(errors.New("decoder crashed"))

	assert.Equal(t, OutcomeFailed, waitOutcome(t, done))
	select {
	case <-completed:
	case <-time.After(2 * time.Second):
		t.Fatal("OnCompleted not called")
	}
	assert.True(t, dev.Last().Released())
	assert.False(t, seq.Playing())
}

func TestSequencer_Errors(t *testing.T) {
	seq := NewSequencer(NewMockDevice(), nil)
	_, err := seq.Play(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyAudio)

	dev := NewMockDevice()
	dev.StartErr = errors.New("no sink")
	seq = NewSequencer(dev, nil)
	_, err = seq.Play(context.Background(), wavHeader)
	var perr *PlaybackError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "start", perr.Op)

	seq = NewSequencer(NewMockDevice(), nil)
	require.NoError(t, seq.Close())
	_, err = seq.Play(context.Background(), wavHeader)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSequencer_StartedCallback(t *testing.T) {
	seq := NewSequencer(NewMockDevice(), nil)
	var got PendingAudio
	seq.OnStarted = func(p PendingAudio) { got = p }

	_, err := seq.Play(context.Background(), []byte("ID3\x03data"))
	require.NoError(t, err)
	assert.Equal(t, FormatMP3, got.Format)
	assert.Equal(t, 8, got.Size)
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want Format
	}{
		{"wav", wavHeader, FormatWAV},
		{"ogg", []byte("OggS\x00"), FormatOGG},
		{"flac", []byte("fLaC\x00"), FormatFLAC},
		{"mp3 id3", []byte("ID3\x04"), FormatMP3},
		{"mp3 sync", []byte{0xFF, 0xFB, 0x90}, FormatMP3},
		{"unknown", []byte("hello"), FormatUnknown},
		{"empty", nil, FormatUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectFormat(tt.data))
		})
	}
}
