package orchestrator

import (
	"errors"
	"log/slog"
	"time"

	"github.com/teslashibe/go-coach/pkg/memory"
	"github.com/teslashibe/go-coach/pkg/render"
	"github.com/teslashibe/go-coach/pkg/schedule"
	"github.com/teslashibe/go-coach/pkg/tts"
)

// DefaultSilenceTimeout is how long a quiet conversation waits before the
// coach re-prompts.
const DefaultSilenceTimeout = 5 * time.Second

// Config holds orchestrator configuration.
// Use functional options (WithXxx) to set these values.
type Config struct {
	// Timing
	Clock          schedule.Clock
	Backoff        schedule.Backoff
	SilenceTimeout time.Duration

	// Rendering
	Mode           render.Mode
	ChunkThreshold int
	RevealInterval time.Duration

	// Greeting sends the greeting trigger once per conversation.
	Greeting bool

	// HistoryTurns is how many recent turns accompany a chat request.
	HistoryTurns int

	// Settings are the voice settings used until the provider reports its own.
	Settings tts.Settings

	// Observability
	Logger *slog.Logger
}

// Option is a functional option for configuring the orchestrator.
type Option func(*Config)

// WithClock replaces the wall clock used by both timers.
func WithClock(c schedule.Clock) Option {
	return func(cfg *Config) {
		cfg.Clock = c
	}
}

// WithBackoff replaces the resume delays.
func WithBackoff(b schedule.Backoff) Option {
	return func(cfg *Config) {
		cfg.Backoff = b
	}
}

// WithSilenceTimeout sets the re-prompt delay.
func WithSilenceTimeout(d time.Duration) Option {
	return func(cfg *Config) {
		cfg.SilenceTimeout = d
	}
}

// WithMode sets the initial interaction mode.
func WithMode(m render.Mode) Option {
	return func(cfg *Config) {
		cfg.Mode = m
	}
}

// WithChunkThreshold sets the reply length above which speech is chunked.
func WithChunkThreshold(n int) Option {
	return func(cfg *Config) {
		cfg.ChunkThreshold = n
	}
}

// WithRevealInterval sets the typewriter speed.
func WithRevealInterval(d time.Duration) Option {
	return func(cfg *Config) {
		cfg.RevealInterval = d
	}
}

// WithGreeting enables or disables the conversation greeting.
func WithGreeting(enabled bool) Option {
	return func(cfg *Config) {
		cfg.Greeting = enabled
	}
}

// WithHistoryTurns sets how many turns are sent as context.
func WithHistoryTurns(n int) Option {
	return func(cfg *Config) {
		cfg.HistoryTurns = n
	}
}

// WithSettings sets the fallback voice settings.
func WithSettings(s tts.Settings) Option {
	return func(cfg *Config) {
		cfg.Settings = s
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *Config) {
		cfg.Logger = logger
	}
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() *Config {
	return &Config{
		Clock:          schedule.SystemClock,
		Backoff:        schedule.DefaultBackoff(),
		SilenceTimeout: DefaultSilenceTimeout,
		Mode:           render.ModeVoice,
		ChunkThreshold: render.DefaultChunkThreshold,
		RevealInterval: render.DefaultRevealInterval,
		Greeting:       true,
		HistoryTurns:   memory.DefaultWindow,
		Settings:       tts.DefaultSettings(),
		Logger:         slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate checks the config.
func (c *Config) Validate() error {
	if c.Clock == nil {
		return errors.New("orchestrator: clock required")
	}
	if c.SilenceTimeout <= 0 {
		return errors.New("orchestrator: silence timeout must be positive")
	}
	if c.HistoryTurns < 0 {
		return errors.New("orchestrator: history turns must not be negative")
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}
