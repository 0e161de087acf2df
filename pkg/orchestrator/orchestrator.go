// Package orchestrator coordinates turn-taking between the user and the coach.
//
// The Orchestrator owns the conversation state machine:
//
//	ready → listening → thinking → generating-speech → speaking → ready
//
// It listens through a speech.Recognizer, validates transcripts, sends turns
// to the chat backend, synthesizes replies and plays them on a Player. All
// delayed work goes through two timers: the retry slot that resumes listening
// and the silence timer that re-prompts a quiet user.
//
// State is guarded by one mutex that is never held across calls to the
// recognizer, the chat backend, the synthesizer or the player.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-coach/pkg/audio"
	"github.com/teslashibe/go-coach/pkg/chat"
	"github.com/teslashibe/go-coach/pkg/memory"
	"github.com/teslashibe/go-coach/pkg/render"
	"github.com/teslashibe/go-coach/pkg/schedule"
	"github.com/teslashibe/go-coach/pkg/speech"
	"github.com/teslashibe/go-coach/pkg/tts"
	"github.com/teslashibe/go-coach/pkg/validation"
)

// Player plays synthesized speech. audio.Sequencer implements it.
type Player interface {
	Play(ctx context.Context, data []byte) (<-chan audio.Outcome, error)
	Interrupt() bool
	Playing() bool
}

var _ Player = (*audio.Sequencer)(nil)

// Deps are the orchestrator's collaborators. Recognizer, Chat and Memory are
// required. Without TTS or Player every voice reply falls back to text.
type Deps struct {
	Recognizer speech.Recognizer
	Chat       chat.Client
	TTS        tts.Provider
	Player     Player
	Memory     *memory.Memory
	Validator  *validation.Validator
}

// Orchestrator runs a coaching conversation.
type Orchestrator struct {
	rec       speech.Recognizer
	chat      chat.Client
	tts       tts.Provider
	player    Player
	mem       *memory.Memory
	validator *validation.Validator

	cfg        *Config
	clock      schedule.Clock
	backoff    schedule.Backoff
	typewriter *render.Typewriter
	logger     *slog.Logger

	retry   *schedule.RetryScheduler
	silence *schedule.Timer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu              sync.Mutex
	state           State
	mode            render.Mode
	conversation    bool
	recognizing     bool
	session         uint64
	errorHandled    uint64
	noSpeechCount   int
	listenStart     time.Time
	speechStart     time.Time
	lastValidSpeech time.Time
	greeted         bool
	closed          bool
	settings        tts.Settings
	turnGen         uint64
	turnCancel      context.CancelFunc
	playGen         uint64

	subsMu  sync.RWMutex
	subs    map[uint64]func(Event)
	nextSub uint64
}

// New creates an orchestrator in the ready state.
func New(deps Deps, opts ...Option) (*Orchestrator, error) {
	if deps.Recognizer == nil || deps.Chat == nil || deps.Memory == nil {
		return nil, fmt.Errorf("%w: recognizer, chat and memory are required", ErrMissingDependency)
	}

	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	v := deps.Validator
	if v == nil {
		v = validation.NewWithLogger(validation.DefaultConfig(), cfg.Logger)
	}

	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		rec:        deps.Recognizer,
		chat:       deps.Chat,
		tts:        deps.TTS,
		player:     deps.Player,
		mem:        deps.Memory,
		validator:  v,
		cfg:        cfg,
		clock:      cfg.Clock,
		backoff:    cfg.Backoff,
		typewriter: render.NewTypewriter(cfg.RevealInterval),
		logger:     cfg.Logger.With("component", "orchestrator"),
		ctx:        ctx,
		cancel:     cancel,
		mode:       cfg.Mode,
		settings:   cfg.Settings,
		subs:       make(map[uint64]func(Event)),
	}

	timerOpts := []schedule.Option{schedule.WithClock(cfg.Clock), schedule.WithLogger(cfg.Logger)}
	o.retry = schedule.NewRetryScheduler(o.canResume, o.resume, timerOpts...)
	o.silence = schedule.NewTimer("silence", timerOpts...)

	o.mem.SetMode(memoryMode(cfg.Mode))
	return o, nil
}

// Snapshot returns the observable state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	s := Snapshot{
		State:            o.state,
		ConversationMode: o.conversation,
		IsAISpeaking:     o.state == StateSpeaking,
		Listening:        o.recognizing,
		NoSpeechCount:    o.noSpeechCount,
		LastValidSpeech:  o.lastValidSpeech,
		Mode:             o.mode.String(),
	}
	o.mu.Unlock()

	s.ResumePending = o.retry.Pending()
	s.ResumeDelayMs = o.retry.LastDelay().Milliseconds()
	return s
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// History returns every turn of the session.
func (o *Orchestrator) History() []memory.Turn {
	return o.mem.History()
}

// Summary returns the session summary.
func (o *Orchestrator) Summary() memory.Summary {
	return o.mem.Summary()
}

// RetryStats returns the resume scheduler counters.
func (o *Orchestrator) RetryStats() schedule.RetryStats {
	return o.retry.Stats()
}

// ValidationStats returns the speech validator counters.
func (o *Orchestrator) ValidationStats() validation.Stats {
	return o.validator.Stats()
}

// SetValidationPreset swaps the speech validation thresholds.
func (o *Orchestrator) SetValidationPreset(name string) error {
	if err := o.validator.SetPreset(name); err != nil {
		return err
	}
	o.logger.Info("validation preset changed", "preset", name)
	return nil
}

// SetPosition moves the lesson pointer sent with each turn.
func (o *Orchestrator) SetPosition(index int, title string, count int) {
	o.mem.UpdatePosition(index, title, count)
}

// SetLesson switches the lesson the chat backend routes to.
func (o *Orchestrator) SetLesson(lessonID string) {
	o.mem.SetLesson(lessonID)
}

// Mode returns the interaction mode.
func (o *Orchestrator) Mode() render.Mode {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.mode
}

// SetMode switches between voice and text replies. Switching to text ends a
// running voice conversation.
func (o *Orchestrator) SetMode(m render.Mode) {
	o.mu.Lock()
	changed := o.mode != m
	o.mode = m
	stop := m == render.ModeText && o.conversation
	o.mu.Unlock()

	o.mem.SetMode(memoryMode(m))
	if stop {
		o.StopConversation()
	}
	if changed {
		o.logger.Info("mode changed", "mode", m.String())
		o.emitState()
	}
}

// StartConversation enters conversation mode. The first call after a stop
// asks the backend for a greeting when greetings are enabled; otherwise
// listening starts right away. A conversation that cannot listen yet, because
// a turn is running or the coach is speaking, resumes on its own later.
func (o *Orchestrator) StartConversation(ctx context.Context) error {
	o.loadSettings(ctx)

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	o.conversation = true
	o.mode = render.ModeVoice
	o.noSpeechCount = 0
	greet := o.cfg.Greeting && !o.greeted && o.state == StateReady && !o.recognizing
	var (
		gen  uint64
		tctx context.Context
	)
	if greet {
		o.greeted = true
		gen, tctx = o.beginTurnLocked()
	}
	o.mu.Unlock()

	o.mem.SetMode(memory.ModeVoice)
	o.logger.Info("conversation started", "greeting", greet)
	o.emitState()

	if greet {
		go o.runTurn(tctx, gen, memory.RolePrompt, chat.GreetingTrigger, true)
		return nil
	}

	err := o.StartListening(ctx)
	if errors.Is(err, ErrAlreadyListening) || errors.Is(err, ErrAISpeaking) || errors.Is(err, ErrBusy) {
		return nil
	}
	return err
}

// StopConversation leaves conversation mode: pending timers are cancelled,
// recognition and playback stop, any in-flight turn is abandoned and the
// state returns to ready.
func (o *Orchestrator) StopConversation() {
	o.mu.Lock()
	o.conversation = false
	o.greeted = false
	o.noSpeechCount = 0
	wasRecognizing := o.recognizing
	o.recognizing = false
	o.session++
	o.turnGen++
	if o.turnCancel != nil {
		o.turnCancel()
		o.turnCancel = nil
	}
	o.playGen++
	o.state = StateReady
	o.speechStart = time.Time{}
	o.mu.Unlock()

	o.retry.Cancel()
	o.silence.Stop()
	if wasRecognizing {
		if err := o.rec.Stop(); err != nil {
			o.logger.Warn("failed to stop recognition", "error", err)
		}
	}
	if o.player != nil {
		o.player.Interrupt()
	}
	o.mem.ResetContext()

	o.logger.Info("conversation stopped")
	o.emitState()
}

// Interrupt halts AI playback. It reports whether anything was playing.
func (o *Orchestrator) Interrupt() bool {
	if o.player == nil {
		return false
	}
	return o.player.Interrupt()
}

// Close stops all activity and waits for running turns to finish.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	o.conversation = false
	wasRecognizing := o.recognizing
	o.recognizing = false
	o.session++
	o.turnGen++
	o.playGen++
	o.mu.Unlock()

	o.retry.Cancel()
	o.silence.Stop()
	if wasRecognizing {
		_ = o.rec.Stop()
	}
	o.cancel()
	o.wg.Wait()
	return nil
}

// canResume is the retry guard, evaluated when the retry timer fires.
func (o *Orchestrator) canResume() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return !o.closed &&
		o.conversation &&
		!o.recognizing &&
		(o.state == StateReady || o.state == StateListening)
}

func (o *Orchestrator) resume() {
	if err := o.StartListening(o.ctx); err != nil {
		o.logger.Debug("resume refused", "error", err)
	}
}

func (o *Orchestrator) scheduleRetry(d time.Duration, reason string) {
	o.retry.Schedule(d)
	retriesScheduled.Add(o.ctx, 1, metricReason(reason))
	o.logger.Debug("resume scheduled", "delay_ms", d.Milliseconds(), "reason", reason)
}

func (o *Orchestrator) loadSettings(ctx context.Context) {
	src, ok := o.tts.(tts.SettingsSource)
	if !ok {
		return
	}
	s, err := src.Settings(ctx)
	if err != nil {
		o.logger.Warn("using default voice settings", "error", err)
		return
	}
	o.mu.Lock()
	o.settings = s
	o.mu.Unlock()
}

func memoryMode(m render.Mode) memory.Mode {
	if m == render.ModeVoice {
		return memory.ModeVoice
	}
	return memory.ModeText
}
