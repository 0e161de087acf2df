// Package log provides structured logging for go-coach.
// It wraps slog and can tee records into the OpenTelemetry log bridge.
package log

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"

	"go.opentelemetry.io/contrib/bridges/otelslog"
)

var (
	logger *slog.Logger
	once   sync.Once
)

type options struct {
	otelScope string
	json      bool
}

// Option configures Init.
type Option func(*options)

// WithOTel forwards every record to the OpenTelemetry logs bridge under scope.
func WithOTel(scope string) Option {
	return func(o *options) {
		o.otelScope = scope
	}
}

// WithJSON forces the JSON handler regardless of GO_ENV.
func WithJSON() Option {
	return func(o *options) {
		o.json = true
	}
}

// ParseLevel maps "debug", "info", "warn" and "error" to a slog level.
// Unknown values map to info.
func ParseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Init initializes the global logger with the specified level.
// Valid levels: "debug", "info", "warn", "error"
func Init(level string, opts ...Option) {
	once.Do(func() {
		o := &options{json: os.Getenv("GO_ENV") == "production"}
		for _, opt := range opts {
			opt(o)
		}

		handlerOpts := &slog.HandlerOptions{
			Level: ParseLevel(level),
		}

		var h slog.Handler
		if o.json {
			h = slog.NewJSONHandler(os.Stdout, handlerOpts)
		} else {
			h = slog.NewTextHandler(os.Stdout, handlerOpts)
		}
		if o.otelScope != "" {
			h = tee{h, otelslog.NewHandler(o.otelScope)}
		}

		logger = slog.New(h)
		slog.SetDefault(logger)
	})
}

// L returns the global logger instance.
func L() *slog.Logger {
	if logger == nil {
		Init("info")
	}
	return logger
}

// Debug logs at debug level.
func Debug(msg string, args ...any) {
	L().Debug(msg, args...)
}

// Info logs at info level.
func Info(msg string, args ...any) {
	L().Info(msg, args...)
}

// Warn logs at warn level.
func Warn(msg string, args ...any) {
	L().Warn(msg, args...)
}

// Error logs at error level.
func Error(msg string, args ...any) {
	L().Error(msg, args...)
}

// With returns a logger with the given attributes.
func With(args ...any) *slog.Logger {
	return L().With(args...)
}

// Component returns a logger tagged with the component name.
func Component(name string) *slog.Logger {
	return L().With("component", name)
}

// tee fans a record out to several handlers.
type tee []slog.Handler

func (t tee) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t tee) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range t {
		if h.Enabled(ctx, r.Level) {
			if err := h.Handle(ctx, r.Clone()); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (t tee) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(tee, len(t))
	for i, h := range t {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (t tee) WithGroup(name string) slog.Handler {
	out := make(tee, len(t))
	for i, h := range t {
		out[i] = h.WithGroup(name)
	}
	return out
}
