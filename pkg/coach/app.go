// Package coach assembles the coaching client: speech capture, the chat and
// synthesis backend, playback, conversation memory, the orchestrator and the
// dashboard.
package coach

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/teslashibe/go-coach/internal/config"
	"github.com/teslashibe/go-coach/pkg/audio"
	"github.com/teslashibe/go-coach/pkg/chat"
	"github.com/teslashibe/go-coach/pkg/memory"
	"github.com/teslashibe/go-coach/pkg/orchestrator"
	"github.com/teslashibe/go-coach/pkg/render"
	"github.com/teslashibe/go-coach/pkg/speech"
	"github.com/teslashibe/go-coach/pkg/tts"
	"github.com/teslashibe/go-coach/pkg/validation"
	"github.com/teslashibe/go-coach/pkg/web"
)

const settingsTimeout = 5 * time.Second

// Option overrides a component App would otherwise build from the config.
type Option func(*App)

// WithLoader enables hot reload through l.
func WithLoader(l *config.Loader) Option {
	return func(a *App) { a.loader = l }
}

// WithRecognizer replaces the speech gateway.
func WithRecognizer(r speech.Recognizer) Option {
	return func(a *App) { a.rec = r }
}

// WithChat replaces the HTTP chat client.
func WithChat(c chat.Client) Option {
	return func(a *App) { a.chat = c }
}

// WithTTS replaces the HTTP synthesizer.
func WithTTS(p tts.Provider) Option {
	return func(a *App) { a.tts = p }
}

// WithDevice replaces the external player process.
func WithDevice(d audio.Device) Option {
	return func(a *App) { a.device = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) {
		if l != nil {
			a.logger = l
		}
	}
}

// App is the coaching client.
type App struct {
	cfg    *config.Config
	loader *config.Loader
	logger *slog.Logger

	rec       speech.Recognizer
	chat      chat.Client
	tts       tts.Provider
	device    audio.Device
	player    *audio.Sequencer
	mem       *memory.Memory
	validator *validation.Validator
	orch      *orchestrator.Orchestrator
	web       *web.Server
}

// New creates an App. Call Init before Run.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("coach: config required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &App{cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With("component", "coach")
	return a, nil
}

// Init builds every component.
func (a *App) Init(ctx context.Context) error {
	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"backend", a.initBackend},
		{"speech", a.initSpeech},
		{"audio", a.initAudio},
		{"memory", a.initMemory},
		{"orchestrator", a.initOrchestrator},
		{"web", a.initWeb},
	}
	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			return fmt.Errorf("%s init: %w", s.name, err)
		}
	}

	if a.loader != nil && a.loader.File() != "" {
		a.loader.Watch(a.reload)
	}
	a.logger.Info("coach ready",
		"mode", a.cfg.Conversation.Mode,
		"preset", a.cfg.Conversation.Preset,
		"lesson", a.cfg.Lesson.ID,
		"dashboard", a.web != nil,
	)
	return nil
}

func (a *App) initBackend(ctx context.Context) error {
	b := a.cfg.Backend
	if a.chat == nil {
		c, err := chat.NewHTTP(
			chat.WithBaseURL(b.URL),
			chat.WithAuthToken(b.AuthToken),
			chat.WithTimeout(b.ChatTimeout),
			chat.WithRetry(b.MaxRetries, chat.DefaultConfig().RetryDelay),
			chat.WithLogger(a.logger),
		)
		if err != nil {
			return err
		}
		a.chat = c
	}

	if a.tts == nil {
		p, err := a.newSynthesizer()
		if err != nil {
			return err
		}
		a.tts = p
	}

	if conv := a.cfg.Conversation; conv.ClientChunking {
		a.tts = tts.NewChunked(a.tts, tts.NewChunker(tts.DefaultChunkSize), conv.ChunkConcurrency, a.logger)
	}
	return nil
}

// newSynthesizer builds the HTTP synthesizer, chained to a second backend
// when backend.fallback_url is set.
func (a *App) newSynthesizer() (tts.Provider, error) {
	b := a.cfg.Backend
	build := func(url string) (*tts.HTTP, error) {
		return tts.NewHTTP(
			tts.WithBaseURL(url),
			tts.WithAuthToken(b.AuthToken),
			tts.WithTimeout(b.TTSTimeout),
			tts.WithRetry(b.MaxRetries, tts.DefaultConfig().RetryDelay),
			tts.WithLogger(a.logger),
		)
	}

	primary, err := build(b.URL)
	if err != nil {
		return nil, err
	}
	if b.FallbackURL == "" {
		return primary, nil
	}
	fallback, err := build(b.FallbackURL)
	if err != nil {
		return nil, fmt.Errorf("fallback: %w", err)
	}
	chain, err := tts.NewChain(a.logger,
		tts.Backend{Name: "primary", Provider: primary},
		tts.Backend{Name: "fallback", Provider: fallback},
	)
	if err != nil {
		return nil, err
	}
	return chain, nil
}

func (a *App) initSpeech(ctx context.Context) error {
	if a.rec != nil {
		return nil
	}
	g, err := speech.NewGateway(
		speech.WithGatewayURL(a.cfg.Speech.GatewayURL),
		speech.WithLanguage(a.cfg.Speech.Language),
		speech.WithAuthToken(a.cfg.Backend.AuthToken),
		speech.WithGatewayLogger(a.logger),
	)
	if err != nil {
		return err
	}
	a.rec = g
	return nil
}

// initAudio builds the player. A missing player binary is not fatal; replies
// are then shown as text.
func (a *App) initAudio(ctx context.Context) error {
	if a.device == nil {
		d, err := audio.NewExecDevice(a.cfg.Audio.Command...)
		if err != nil {
			a.logger.Warn("audio playback disabled", "error", err)
			return nil
		}
		a.device = d
	}
	a.player = audio.NewSequencer(a.device, a.logger)
	a.player.OnStarted = func(p audio.PendingAudio) {
		a.logger.Info("coach speaking", "playback", p.ID, "format", p.Format.String(), "bytes", p.Size)
	}
	a.player.OnCompleted = func() {
		a.logger.Debug("coach finished speaking")
	}
	a.player.OnInterrupted = func() {
		a.logger.Info("coach speech interrupted")
	}
	return nil
}

func (a *App) initMemory(ctx context.Context) error {
	mc := a.cfg.Memory
	opts := []memory.Option{
		memory.WithPhrases(mc.Phrases),
		memory.WithWindow(mc.Window),
		memory.WithLogger(a.logger),
	}
	if mc.Path != "" {
		a.mem = memory.NewWithFile(mc.Path, opts...)
	} else {
		a.mem = memory.New(opts...)
	}

	l := a.cfg.Lesson
	a.mem.Init(l.ID, l.Position)
	if l.Count > 0 || l.Title != "" {
		a.mem.UpdatePosition(l.Position, l.Title, l.Count)
	}
	return nil
}

func (a *App) initOrchestrator(ctx context.Context) error {
	preset, err := validation.PresetByName(a.cfg.Conversation.Preset)
	if err != nil {
		return err
	}
	a.validator = validation.NewWithLogger(preset, a.logger)

	deps := orchestrator.Deps{
		Recognizer: a.rec,
		Chat:       a.chat,
		TTS:        a.tts,
		Memory:     a.mem,
		Validator:  a.validator,
	}
	if a.player != nil {
		deps.Player = a.player
	}

	conv := a.cfg.Conversation
	o, err := orchestrator.New(deps,
		orchestrator.WithMode(render.ParseMode(conv.Mode)),
		orchestrator.WithGreeting(conv.Greeting),
		orchestrator.WithSilenceTimeout(conv.SilenceTimeout),
		orchestrator.WithChunkThreshold(conv.ChunkThreshold),
		orchestrator.WithHistoryTurns(conv.HistoryTurns),
		orchestrator.WithRevealInterval(conv.RevealInterval),
		orchestrator.WithSettings(a.voiceSettings(ctx)),
		orchestrator.WithLogger(a.logger),
	)
	if err != nil {
		return err
	}
	a.orch = o
	return nil
}

func (a *App) voiceSettings(ctx context.Context) tts.Settings {
	src, ok := a.tts.(tts.SettingsSource)
	if !ok {
		return tts.DefaultSettings()
	}
	ctx, cancel := context.WithTimeout(ctx, settingsTimeout)
	defer cancel()
	s, err := src.Settings(ctx)
	if err != nil {
		a.logger.Warn("using default voice settings", "error", err)
		return tts.DefaultSettings()
	}
	return s
}

func (a *App) initWeb(ctx context.Context) error {
	if !a.cfg.Web.Enabled {
		return nil
	}
	a.web = web.NewServer(a.orch,
		web.WithAddr(a.cfg.Web.Addr),
		web.WithStaticDir(a.cfg.Web.StaticDir),
		web.WithLogger(a.logger),
	)
	return nil
}

// reload applies the settings that can change while running.
func (a *App) reload(cfg *config.Config) {
	if err := a.orch.SetValidationPreset(cfg.Conversation.Preset); err != nil {
		a.logger.Warn("preset not applied", "preset", cfg.Conversation.Preset, "error", err)
	}
	if l := cfg.Lesson; l.ID != a.cfg.Lesson.ID {
		a.orch.SetLesson(l.ID)
	}
	if l := cfg.Lesson; l.Position != a.cfg.Lesson.Position || l.Title != a.cfg.Lesson.Title || l.Count != a.cfg.Lesson.Count {
		a.orch.SetPosition(l.Position, l.Title, l.Count)
	}
	a.cfg = cfg
}

// Orchestrator returns the conversation orchestrator. Nil before Init.
func (a *App) Orchestrator() *orchestrator.Orchestrator {
	return a.orch
}

// Web returns the dashboard server, or nil when it is disabled.
func (a *App) Web() *web.Server {
	return a.web
}

// Run serves the dashboard and, when auto_start is set, opens a voice
// conversation. It blocks until ctx is cancelled or the dashboard fails.
func (a *App) Run(ctx context.Context) error {
	if a.orch == nil {
		return errors.New("coach: Run called before Init")
	}

	autoStart := a.cfg.Conversation.AutoStart

	p := pool.New().WithErrors().WithContext(ctx).WithCancelOnError()
	if a.web != nil {
		p.Go(a.web.Run)
	}
	p.Go(func(ctx context.Context) error {
		if autoStart {
			if err := a.orch.StartConversation(ctx); err != nil {
				a.logger.Warn("conversation did not start", "error", err)
			}
		}
		<-ctx.Done()
		return nil
	})
	return p.Wait()
}

// Shutdown stops the conversation and releases every component.
func (a *App) Shutdown() {
	if a.orch != nil {
		if err := a.orch.Close(); err != nil {
			a.logger.Warn("orchestrator close failed", "error", err)
		}
	}
	if a.player != nil {
		_ = a.player.Close()
	}
	if a.tts != nil {
		_ = a.tts.Close()
	}
	if a.mem != nil {
		if err := a.mem.Close(); err != nil {
			a.logger.Warn("memory close failed", "error", err)
		}
	}
	a.logger.Info("coach stopped")
}
