// Package config loads go-coach settings from a YAML file and COACH_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/teslashibe/go-coach/pkg/memory"
	"github.com/teslashibe/go-coach/pkg/validation"
)

const (
	// EnvPrefix prefixes every environment override, e.g. COACH_BACKEND_URL.
	EnvPrefix = "COACH"

	// FileName is the config file name searched for, without extension.
	FileName = "coach"

	DefaultBackendURL = "http://localhost:5003"
)

// ErrNoBackendURL is returned when no backend URL is configured.
var ErrNoBackendURL = errors.New("config: backend url required")

// Config is the application configuration.
type Config struct {
	Log          LogConfig          `mapstructure:"log"`
	Backend      BackendConfig      `mapstructure:"backend"`
	Speech       SpeechConfig       `mapstructure:"speech"`
	Audio        AudioConfig        `mapstructure:"audio"`
	Conversation ConversationConfig `mapstructure:"conversation"`
	Lesson       LessonConfig       `mapstructure:"lesson"`
	Memory       MemoryConfig       `mapstructure:"memory"`
	Web          WebConfig          `mapstructure:"web"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
	OTel  bool   `mapstructure:"otel"`
}

// BackendConfig locates the chat and synthesis backend.
type BackendConfig struct {
	URL         string        `mapstructure:"url"`
	FallbackURL string        `mapstructure:"fallback_url"`
	AuthToken   string        `mapstructure:"auth_token"`
	ChatTimeout time.Duration `mapstructure:"chat_timeout"`
	TTSTimeout  time.Duration `mapstructure:"tts_timeout"`
	MaxRetries  int           `mapstructure:"max_retries"`
}

// SpeechConfig locates the speech capture gateway.
type SpeechConfig struct {
	GatewayURL string `mapstructure:"gateway_url"`
	Language   string `mapstructure:"language"`
}

// AudioConfig selects the audio player.
type AudioConfig struct {
	Command []string `mapstructure:"command"`
}

// ConversationConfig tunes the orchestrator.
type ConversationConfig struct {
	Mode             string        `mapstructure:"mode"`
	AutoStart        bool          `mapstructure:"auto_start"`
	Greeting         bool          `mapstructure:"greeting"`
	Preset           string        `mapstructure:"preset"`
	SilenceTimeout   time.Duration `mapstructure:"silence_timeout"`
	ChunkThreshold   int           `mapstructure:"chunk_threshold"`
	HistoryTurns     int           `mapstructure:"history_turns"`
	RevealInterval   time.Duration `mapstructure:"reveal_interval"`
	ClientChunking   bool          `mapstructure:"client_chunking"`
	ChunkConcurrency int           `mapstructure:"chunk_concurrency"`
}

// LessonConfig is the lesson the session starts on.
type LessonConfig struct {
	ID       string `mapstructure:"id"`
	Position int    `mapstructure:"position"`
	Title    string `mapstructure:"title"`
	Count    int    `mapstructure:"count"`
}

// MemoryConfig controls the conversation log.
type MemoryConfig struct {
	Path    string         `mapstructure:"path"`
	Window  int            `mapstructure:"window"`
	Phrases memory.Phrases `mapstructure:"phrases"`
}

// WebConfig controls the dashboard.
type WebConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Addr      string `mapstructure:"addr"`
	StaticDir string `mapstructure:"static_dir"`
}

// Validate checks the config.
func (c *Config) Validate() error {
	if c.Backend.URL == "" {
		return ErrNoBackendURL
	}
	if _, err := validation.PresetByName(c.Conversation.Preset); err != nil {
		return fmt.Errorf("config: conversation.preset: %w", err)
	}
	switch c.Conversation.Mode {
	case "voice", "text":
	default:
		return fmt.Errorf("config: conversation.mode must be voice or text, got %q", c.Conversation.Mode)
	}
	if c.Conversation.SilenceTimeout <= 0 {
		return errors.New("config: conversation.silence_timeout must be positive")
	}
	if c.Backend.MaxRetries < 0 {
		return errors.New("config: backend.max_retries must not be negative")
	}
	return nil
}

// Loader reads and watches the configuration.
type Loader struct {
	v      *viper.Viper
	logger *slog.Logger

	mu      sync.Mutex
	current *Config
}

// NewLoader creates a loader. An empty path searches ./coach.yaml and
// $HOME/.config/go-coach/coach.yaml.
func NewLoader(path string, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "go-coach"))
		}
	}
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Loader{v: v, logger: logger.With("component", "config")}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
	v.SetDefault("log.otel", false)

	v.SetDefault("backend.url", DefaultBackendURL)
	v.SetDefault("backend.fallback_url", "")
	v.SetDefault("backend.auth_token", "")
	v.SetDefault("backend.chat_timeout", 45*time.Second)
	v.SetDefault("backend.tts_timeout", 60*time.Second)
	v.SetDefault("backend.max_retries", 1)

	v.SetDefault("speech.gateway_url", "ws://localhost:5003/speech")
	v.SetDefault("speech.language", "en-US")

	v.SetDefault("audio.command", []string{"ffplay", "-nodisp", "-autoexit", "-loglevel", "error", "-i", "pipe:0"})

	v.SetDefault("conversation.mode", "voice")
	v.SetDefault("conversation.auto_start", false)
	v.SetDefault("conversation.greeting", true)
	v.SetDefault("conversation.preset", validation.PresetMedium)
	v.SetDefault("conversation.silence_timeout", 5*time.Second)
	v.SetDefault("conversation.chunk_threshold", 950)
	v.SetDefault("conversation.history_turns", memory.DefaultWindow)
	v.SetDefault("conversation.reveal_interval", 30*time.Millisecond)
	v.SetDefault("conversation.client_chunking", false)
	v.SetDefault("conversation.chunk_concurrency", 3)

	v.SetDefault("lesson.id", "")
	v.SetDefault("lesson.position", 0)
	v.SetDefault("lesson.title", "")
	v.SetDefault("lesson.count", 0)

	phrases := memory.DefaultPhrases()
	v.SetDefault("memory.path", "")
	v.SetDefault("memory.window", memory.DefaultWindow)
	v.SetDefault("memory.phrases.topic_intros", phrases.TopicIntros)
	v.SetDefault("memory.phrases.confirmation_requests", phrases.ConfirmationRequests)
	v.SetDefault("memory.phrases.confirmations", phrases.Confirmations)

	v.SetDefault("web.enabled", true)
	v.SetDefault("web.addr", ":8080")
	v.SetDefault("web.static_dir", "")
}

// Load reads the file, if any, and decodes the configuration. A missing
// file is not an error; defaults and environment overrides still apply.
func (l *Loader) Load() (*Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read: %w", err)
		}
		l.logger.Debug("no config file, using defaults")
	}

	cfg, err := l.decode()
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.current = cfg
	l.mu.Unlock()
	return cfg, nil
}

func (l *Loader) decode() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Current returns the last successfully loaded configuration.
func (l *Loader) Current() *Config {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

// File returns the config file in use, or "".
func (l *Loader) File() string {
	return l.v.ConfigFileUsed()
}

// Watch calls fn with the new configuration each time the file is written.
// Invalid edits are logged and skipped.
func (l *Loader) Watch(fn func(*Config)) {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := l.decode()
		if err != nil {
			l.logger.Warn("ignoring invalid config change", "file", e.Name, "error", err)
			return
		}
		l.mu.Lock()
		l.current = cfg
		l.mu.Unlock()

		l.logger.Info("config reloaded", "file", e.Name)
		fn(cfg)
	})
	l.v.WatchConfig()
}
