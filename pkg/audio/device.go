package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
)

// Device is an audio output that can play one encoded payload per handle.
type Device interface {
	// Start begins playing data and returns a handle to control it.
	Start(ctx context.Context, data []byte) (Handle, error)
}

// Handle controls one playback on a Device.
type Handle interface {
	// Stop halts playback immediately. Safe to call more than once.
	Stop() error

	// Release frees the resources backing the playback. Safe to call more
	// than once.
	Release() error

	// Done yields exactly one value when playback ends: nil for a natural
	// end, or the device error.
	Done() <-chan error
}

// DefaultPlayerCommand plays an encoded payload from stdin without a window.
var DefaultPlayerCommand = []string{"ffplay", "-nodisp", "-autoexit", "-loglevel", "error", "-i", "pipe:0"}

// ExecDevice plays audio by piping it into an external player process.
type ExecDevice struct {
	command []string
}

// NewExecDevice creates a device running command with the payload on stdin.
// An empty command uses DefaultPlayerCommand.
func NewExecDevice(command ...string) (*ExecDevice, error) {
	if len(command) == 0 {
		command = DefaultPlayerCommand
	}
	if _, err := exec.LookPath(command[0]); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrPlayerNotFound, command[0])
	}
	return &ExecDevice{command: command}, nil
}

// Start launches the player process. Cancelling ctx kills the player and
// ends the playback with the context error.
func (d *ExecDevice) Start(ctx context.Context, data []byte) (Handle, error) {
	cmd := exec.CommandContext(ctx, d.command[0], d.command[1:]...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start player: %w", err)
	}

	h := &execHandle{
		cmd:   cmd,
		stdin: stdin,
		done:  make(chan error, 1),
	}

	go func() {
		// Closing stdin signals EOF so the player exits after the last frame.
		_, _ = io.Copy(stdin, bytes.NewReader(data))
		h.closeStdin()
	}()

	go func() {
		err := cmd.Wait()
		if err != nil && stderr.Len() > 0 {
			err = fmt.Errorf("%w: %s", err, bytes.TrimSpace(stderr.Bytes()))
		}
		h.done <- err
	}()

	return h, nil
}

type execHandle struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	done  chan error

	stdinOnce sync.Once
	stopOnce  sync.Once
}

func (h *execHandle) closeStdin() {
	h.stdinOnce.Do(func() {
		h.stdin.Close()
	})
}

func (h *execHandle) Stop() error {
	var err error
	h.stopOnce.Do(func() {
		h.closeStdin()
		if h.cmd.Process != nil {
			if kerr := h.cmd.Process.Kill(); kerr != nil && !errors.Is(kerr, os.ErrProcessDone) {
				err = kerr
			}
		}
	})
	return err
}

func (h *execHandle) Release() error {
	h.closeStdin()
	return nil
}

func (h *execHandle) Done() <-chan error {
	return h.done
}

var (
	_ Device = (*ExecDevice)(nil)
	_ Handle = (*execHandle)(nil)
)
