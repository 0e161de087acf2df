package coach_test

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-coach/internal/config"
	"github.com/teslashibe/go-coach/pkg/audio"
	"github.com/teslashibe/go-coach/pkg/chat"
	"github.com/teslashibe/go-coach/pkg/coach"
	"github.com/teslashibe/go-coach/pkg/orchestrator"
	"github.com/teslashibe/go-coach/pkg/speech"
	"github.com/teslashibe/go-coach/pkg/tts"
)

func loadConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Chdir(t.TempDir())
	cfg, err := config.NewLoader("", nil).Load()
	require.NoError(t, err)
	cfg.Web.Enabled = false
	cfg.Conversation.Mode = "text"
	cfg.Conversation.RevealInterval = time.Millisecond
	cfg.Lesson.ID = "loops"
	cfg.Lesson.Title = "For loops"
	cfg.Lesson.Count = 4
	return cfg
}

type fixture struct {
	app    *coach.App
	rec    *speech.Mock
	chat   *chat.Mock
	tts    *tts.Mock
	device *audio.MockDevice
}

func newApp(t *testing.T, cfg *config.Config) *fixture {
	t.Helper()
	f := &fixture{
		rec:    speech.NewMock(),
		chat:   chat.NewMock("Loops repeat work."),
		tts:    tts.NewMock(),
		device: audio.NewMockDevice(),
	}
	app, err := coach.New(cfg,
		coach.WithRecognizer(f.rec),
		coach.WithChat(f.chat),
		coach.WithTTS(f.tts),
		coach.WithDevice(f.device),
	)
	require.NoError(t, err)
	require.NoError(t, app.Init(context.Background()))
	t.Cleanup(app.Shutdown)
	f.app = app
	return f
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	_, err := coach.New(nil)
	assert.Error(t, err)

	cfg := loadConfig(t)
	cfg.Conversation.Preset = "extreme"
	_, err = coach.New(cfg)
	assert.Error(t, err)
}

func TestRun_BeforeInit(t *testing.T) {
	app, err := coach.New(loadConfig(t))
	require.NoError(t, err)
	assert.Error(t, app.Run(context.Background()))
}

func TestInit_WiresComponents(t *testing.T) {
	f := newApp(t, loadConfig(t))

	o := f.app.Orchestrator()
	require.NotNil(t, o)
	assert.Nil(t, f.app.Web())
	assert.Equal(t, orchestrator.StateReady, o.State())
	assert.Equal(t, "medium", o.ValidationStats().Preset)
}

func TestTextTurn_UsesLessonContext(t *testing.T) {
	f := newApp(t, loadConfig(t))
	o := f.app.Orchestrator()

	require.NoError(t, o.SubmitText("what is a loop"))
	require.Eventually(t, func() bool {
		return len(o.History()) == 2
	}, time.Second, 5*time.Millisecond)

	req := f.chat.LastRequest()
	require.NotNil(t, req)
	assert.Equal(t, "what is a loop", req.Text)
	assert.Equal(t, "loops", req.LessonID)
	assert.Contains(t, req.PositionLabel, "For loops")
	assert.Zero(t, f.tts.CallCount("Synthesize"))
}

func TestRun_AutoStartGreets(t *testing.T) {
	cfg := loadConfig(t)
	cfg.Conversation.Mode = "voice"
	cfg.Conversation.AutoStart = true
	f := newApp(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.app.Run(ctx) }()

	require.Eventually(t, func() bool {
		return len(f.chat.Requests()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, chat.GreetingTrigger, f.chat.Requests()[0].Text)

	require.Eventually(t, func() bool {
		return f.device.Last() != nil
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestClientChunking_WrapsSynthesizer(t *testing.T) {
	cfg := loadConfig(t)
	cfg.Conversation.Mode = "voice"
	cfg.Conversation.ClientChunking = true
	cfg.Conversation.ChunkThreshold = 10
	f := newApp(t, cfg)
	o := f.app.Orchestrator()

	require.NoError(t, o.SubmitText("explain loops"))
	require.Eventually(t, func() bool {
		return f.tts.CallCount("Synthesize") > 0
	}, time.Second, 5*time.Millisecond)
	assert.Zero(t, f.tts.CallCount("SynthesizeChunked"))
}

func TestFallbackBackend_ServesSpeech(t *testing.T) {
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "synthesis offline", http.StatusServiceUnavailable)
	}))
	defer primary.Close()

	var served atomic.Int32
	fallback := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tts/settings":
			_, _ = w.Write([]byte(`{"voice_id":"backup-voice","speed":"1.1"}`))
		case "/stream":
			served.Add(1)
			w.Header().Set("Content-Type", "audio/wav")
			_, _ = w.Write(tts.SilentWAV(8))
		default:
			http.NotFound(w, r)
		}
	}))
	defer fallback.Close()

	cfg := loadConfig(t)
	cfg.Conversation.Mode = "voice"
	cfg.Backend.URL = primary.URL
	cfg.Backend.FallbackURL = fallback.URL
	cfg.Backend.MaxRetries = 0

	device := audio.NewMockDevice()
	app, err := coach.New(cfg,
		coach.WithRecognizer(speech.NewMock()),
		coach.WithChat(chat.NewMock("Loops repeat work.")),
		coach.WithDevice(device),
	)
	require.NoError(t, err)
	require.NoError(t, app.Init(context.Background()))
	t.Cleanup(app.Shutdown)

	require.NoError(t, app.Orchestrator().SubmitText("explain loops"))
	require.Eventually(t, func() bool {
		return app.Orchestrator().State() == orchestrator.StateSpeaking
	}, 2*time.Second, 5*time.Millisecond)
	assert.NotNil(t, device.Last())
	assert.Equal(t, int32(1), served.Load())
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestPlayback_LogsStartAndInterrupt(t *testing.T) {
	cfg := loadConfig(t)
	cfg.Conversation.Mode = "voice"

	var logs syncBuffer
	device := audio.NewMockDevice()
	app, err := coach.New(cfg,
		coach.WithRecognizer(speech.NewMock()),
		coach.WithChat(chat.NewMock("Loops repeat work.")),
		coach.WithTTS(tts.NewMock()),
		coach.WithDevice(device),
		coach.WithLogger(slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))),
	)
	require.NoError(t, err)
	require.NoError(t, app.Init(context.Background()))
	t.Cleanup(app.Shutdown)

	o := app.Orchestrator()
	require.NoError(t, o.SubmitText("explain loops"))
	require.Eventually(t, func() bool {
		return o.State() == orchestrator.StateSpeaking
	}, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		return strings.Contains(logs.String(), `msg="coach speaking"`)
	}, time.Second, 5*time.Millisecond)
	assert.Contains(t, logs.String(), "format=wav")

	require.True(t, o.Interrupt())
	assert.Eventually(t, func() bool {
		return strings.Contains(logs.String(), `msg="coach speech interrupted"`)
	}, time.Second, 5*time.Millisecond)
}
