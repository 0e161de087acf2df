package config_test

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-coach/internal/config"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := config.NewLoader("", nil).Load()
	require.NoError(t, err)

	assert.Equal(t, config.DefaultBackendURL, cfg.Backend.URL)
	assert.Equal(t, "voice", cfg.Conversation.Mode)
	assert.Equal(t, "medium", cfg.Conversation.Preset)
	assert.Equal(t, 5*time.Second, cfg.Conversation.SilenceTimeout)
	assert.Equal(t, 950, cfg.Conversation.ChunkThreshold)
	assert.True(t, cfg.Conversation.Greeting)
	assert.Equal(t, "ffplay", cfg.Audio.Command[0])
	assert.NotEmpty(t, cfg.Memory.Phrases.Confirmations)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coach.yaml")
	writeFile(t, path, `
backend:
  url: https://coach.example.com
  chat_timeout: 10s
conversation:
  mode: text
  preset: high
  silence_timeout: 8s
lesson:
  id: intro-101
  count: 12
memory:
  phrases:
    confirmations: ["yep"]
`)

	l := config.NewLoader(path, nil)
	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, path, l.File())
	assert.Equal(t, "https://coach.example.com", cfg.Backend.URL)
	assert.Equal(t, 10*time.Second, cfg.Backend.ChatTimeout)
	assert.Equal(t, "text", cfg.Conversation.Mode)
	assert.Equal(t, "high", cfg.Conversation.Preset)
	assert.Equal(t, 8*time.Second, cfg.Conversation.SilenceTimeout)
	assert.Equal(t, "intro-101", cfg.Lesson.ID)
	assert.Equal(t, 12, cfg.Lesson.Count)
	assert.Equal(t, []string{"yep"}, cfg.Memory.Phrases.Confirmations)
	assert.Same(t, cfg, l.Current())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("COACH_BACKEND_URL", "http://backend:9000")
	t.Setenv("COACH_CONVERSATION_PRESET", "low")

	cfg, err := config.NewLoader("", nil).Load()
	require.NoError(t, err)
	assert.Equal(t, "http://backend:9000", cfg.Backend.URL)
	assert.Equal(t, "low", cfg.Conversation.Preset)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown preset", "conversation:\n  preset: extreme\n"},
		{"bad mode", "conversation:\n  mode: video\n"},
		{"empty backend", "backend:\n  url: \"\"\n"},
		{"negative retries", "backend:\n  max_retries: -1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "coach.yaml")
			writeFile(t, path, tt.body)
			_, err := config.NewLoader(path, nil).Load()
			assert.Error(t, err)
		})
	}
}

func TestLoad_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coach.yaml")
	writeFile(t, path, "conversation: [unterminated\n")
	_, err := config.NewLoader(path, nil).Load()
	assert.ErrorContains(t, err, "config: read")
}

func TestWatch_ReloadsPreset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coach.yaml")
	writeFile(t, path, "conversation:\n  preset: medium\n")

	l := config.NewLoader(path, nil)
	_, err := l.Load()
	require.NoError(t, err)

	var preset atomic.Value
	l.Watch(func(cfg *config.Config) {
		preset.Store(cfg.Conversation.Preset)
	})

	writeFile(t, path, "conversation:\n  preset: high\n")

	assert.Eventually(t, func() bool {
		p, _ := preset.Load().(string)
		return p == "high"
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, "high", l.Current().Conversation.Preset)
}
