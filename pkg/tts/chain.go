package tts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Backend is a named provider in a Chain.
type Backend struct {
	Name     string
	Provider Provider
}

// Chain synthesizes with the first backend and falls through to the next
// one when a backend is down. Requests that no backend could serve, such as
// empty text or a cancelled context, stop at the first failure.
type Chain struct {
	backends []Backend
	logger   *slog.Logger
}

// NewChain creates a chain over backends, tried in order.
func NewChain(logger *slog.Logger, backends ...Backend) (*Chain, error) {
	if len(backends) == 0 {
		return nil, ErrProviderUnavailable
	}
	for i, b := range backends {
		if b.Provider == nil {
			return nil, fmt.Errorf("tts: backend %d has no provider", i)
		}
		if b.Name == "" {
			backends[i].Name = fmt.Sprintf("backend-%d", i)
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{backends: backends, logger: logger.With("component", "tts.chain")}, nil
}

// Synthesize runs Synthesize on each backend until one succeeds.
func (c *Chain) Synthesize(ctx context.Context, req Request) (*AudioResult, error) {
	return c.run(ctx, req, Provider.Synthesize)
}

// SynthesizeChunked runs SynthesizeChunked on each backend until one succeeds.
func (c *Chain) SynthesizeChunked(ctx context.Context, req Request) (*AudioResult, error) {
	return c.run(ctx, req, Provider.SynthesizeChunked)
}

func (c *Chain) run(ctx context.Context, req Request, call func(Provider, context.Context, Request) (*AudioResult, error)) (*AudioResult, error) {
	chainErr := &ChainError{}
	for i, b := range c.backends {
		res, err := call(b.Provider, ctx, req)
		if err == nil {
			if i > 0 {
				fallbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("backend", b.Name)))
				c.logger.Info("served by fallback backend", "backend", b.Name, "chars", len(req.Text))
			}
			return res, nil
		}
		chainErr.add(b.Name, err)
		if final(ctx, err) {
			break
		}
		c.logger.Warn("backend failed", "backend", b.Name, "error", err)
	}
	return nil, chainErr
}

// final reports whether err would fail on every backend.
func final(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	return errors.Is(err, ErrEmptyText)
}

// Settings returns the settings of the first backend that reports them.
func (c *Chain) Settings(ctx context.Context) (Settings, error) {
	var errs []error
	for _, b := range c.backends {
		src, ok := b.Provider.(SettingsSource)
		if !ok {
			continue
		}
		s, err := src.Settings(ctx)
		if err == nil {
			return s, nil
		}
		errs = append(errs, WrapError(b.Name, err))
	}
	if len(errs) == 0 {
		return DefaultSettings(), nil
	}
	return Settings{}, errors.Join(errs...)
}

// Health succeeds when any backend is healthy.
func (c *Chain) Health(ctx context.Context) error {
	var errs []error
	for _, b := range c.backends {
		err := b.Provider.Health(ctx)
		if err == nil {
			return nil
		}
		errs = append(errs, WrapError(b.Name, err))
	}
	return errors.Join(errs...)
}

// Close closes every backend.
func (c *Chain) Close() error {
	var errs []error
	for _, b := range c.backends {
		if err := b.Provider.Close(); err != nil {
			errs = append(errs, WrapError(b.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Backends returns the backend names in order.
func (c *Chain) Backends() []string {
	names := make([]string, len(c.backends))
	for i, b := range c.backends {
		names[i] = b.Name
	}
	return names
}

// ChainError lists the failure of each backend that was tried.
type ChainError struct {
	Errors []error
}

func (e *ChainError) add(name string, err error) {
	e.Errors = append(e.Errors, WrapError(name, err))
}

func (e *ChainError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Error()
	}
	return "tts chain: " + strings.Join(msgs, "; ")
}

// Unwrap exposes every backend error to errors.Is and errors.As.
func (e *ChainError) Unwrap() []error {
	return e.Errors
}

var (
	_ Provider       = (*Chain)(nil)
	_ SettingsSource = (*Chain)(nil)
)
