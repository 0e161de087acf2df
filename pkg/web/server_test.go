package web_test

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-coach/pkg/audio"
	"github.com/teslashibe/go-coach/pkg/chat"
	"github.com/teslashibe/go-coach/pkg/memory"
	"github.com/teslashibe/go-coach/pkg/orchestrator"
	"github.com/teslashibe/go-coach/pkg/schedule"
	"github.com/teslashibe/go-coach/pkg/speech"
	"github.com/teslashibe/go-coach/pkg/tts"
	"github.com/teslashibe/go-coach/pkg/web"
)

type fixture struct {
	srv  *web.Server
	o    *orchestrator.Orchestrator
	rec  *speech.Mock
	chat *chat.Mock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := schedule.NewFakeClock(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	f := &fixture{rec: speech.NewMock(), chat: chat.NewMock("Good question.")}

	o, err := orchestrator.New(orchestrator.Deps{
		Recognizer: f.rec,
		Chat:       f.chat,
		TTS:        tts.NewMock(),
		Player:     audio.NewSequencer(audio.NewMockDevice(), nil),
		Memory:     memory.New(memory.WithNow(clock.Now)),
	},
		orchestrator.WithClock(clock),
		orchestrator.WithGreeting(false),
		orchestrator.WithRevealInterval(time.Millisecond),
	)
	require.NoError(t, err)
	t.Cleanup(func() { o.Close() })

	f.o = o
	f.srv = web.NewServer(o)
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) (int, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := f.srv.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	data, _ := io.ReadAll(resp.Body)
	if len(data) > 0 && data[0] == '{' {
		require.NoError(t, json.Unmarshal(data, &out))
	}
	return resp.StatusCode, out
}

func TestStatus(t *testing.T) {
	f := newFixture(t)
	code, body := f.do(t, http.MethodGet, "/api/status", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ready", body["state"])
	assert.Equal(t, false, body["conversation_mode"])
	assert.Contains(t, body, "retry")
	assert.Contains(t, body, "validation")
}

func TestMessage(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, http.MethodPost, "/api/message", `{"text": "what is a loop?"}`)
	assert.Equal(t, http.StatusAccepted, code)
	assert.NotEqual(t, "ready", body["state"])

	require.Eventually(t, func() bool { return len(f.o.History()) == 2 }, 2*time.Second, 5*time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, "/api/turns", nil)
	resp, err := f.srv.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	var turns []memory.Turn
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&turns))
	require.Len(t, turns, 2)
	assert.Equal(t, "what is a loop?", turns[0].Content)
	assert.Equal(t, "Good question.", turns[1].Content)
}

func TestMessage_Errors(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, http.MethodPost, "/api/message", `{"text": "  "}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, body["error"], "empty text")

	code, _ = f.do(t, http.MethodPost, "/api/message", `not json`)
	assert.Equal(t, http.StatusBadRequest, code)

	release := make(chan struct{})
	defer close(release)
	f.chat.SendFunc = func(ctx context.Context, req chat.Request) (*chat.Response, error) {
		<-release
		return &chat.Response{Text: "ok"}, nil
	}
	code, _ = f.do(t, http.MethodPost, "/api/message", `{"text": "first"}`)
	assert.Equal(t, http.StatusAccepted, code)
	code, _ = f.do(t, http.MethodPost, "/api/message", `{"text": "second"}`)
	assert.Equal(t, http.StatusConflict, code)
}

func TestConversationStartStop(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, http.MethodPost, "/api/conversation/start", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["conversation_mode"])
	assert.Equal(t, "listening", body["state"])
	assert.True(t, f.rec.Active())

	code, body = f.do(t, http.MethodPost, "/api/conversation/stop", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["conversation_mode"])
	assert.False(t, f.rec.Active())
}

func TestInterrupt_Idle(t *testing.T) {
	f := newFixture(t)
	code, body := f.do(t, http.MethodPost, "/api/interrupt", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["interrupted"])
}

func TestSetPreset(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, http.MethodPut, "/api/validation/high", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "high", body["preset"])

	code, _ = f.do(t, http.MethodPut, "/api/validation/extreme", "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestSummary(t *testing.T) {
	f := newFixture(t)
	code, body := f.do(t, http.MethodGet, "/api/summary", "")
	assert.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 0, body["total_messages"])
	assert.Equal(t, "voice", body["mode"])
}

func TestStatusWebsocket(t *testing.T) {
	f := newFixture(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go f.srv.Serve(ctx, ln)

	url := "ws://" + ln.Addr().String() + "/ws/status"
	var conn *websocket.Conn
	require.Eventually(t, func() bool {
		conn, _, err = websocket.DefaultDialer.Dial(url, nil)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
	t.Cleanup(func() { conn.Close() })

	read := func() orchestrator.Event {
		t.Helper()
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var ev orchestrator.Event
		require.NoError(t, conn.ReadJSON(&ev))
		return ev
	}

	first := read()
	assert.Equal(t, orchestrator.EventState, first.Type)
	require.NotNil(t, first.Snapshot)

	require.Eventually(t, func() bool { return f.srv.Hub().ClientCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, f.o.StartListening(context.Background()))

	ev := read()
	assert.Equal(t, orchestrator.EventState, ev.Type)
	require.NotNil(t, ev.Snapshot)
	assert.True(t, ev.Snapshot.Listening)
}

func TestStatusWebsocket_ClientsComeAndGo(t *testing.T) {
	f := newFixture(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go f.srv.Serve(ctx, ln)

	url := "ws://" + ln.Addr().String() + "/ws/status"
	for i := 0; i < 6; i++ {
		var conn *websocket.Conn
		require.Eventually(t, func() bool {
			conn, _, err = websocket.DefaultDialer.Dial(url, nil)
			return err == nil
		}, 2*time.Second, 10*time.Millisecond)

		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var ev orchestrator.Event
		require.NoError(t, conn.ReadJSON(&ev))
		assert.Equal(t, orchestrator.EventState, ev.Type)

		require.Eventually(t, func() bool { return f.srv.Hub().ClientCount() == 1 }, 2*time.Second, 5*time.Millisecond)
		require.NoError(t, f.srv.Hub().BroadcastJSON("state", map[string]int{"round": i}))
		require.NoError(t, conn.Close())
		require.Eventually(t, func() bool { return f.srv.Hub().ClientCount() == 0 }, 2*time.Second, 5*time.Millisecond)
	}

	code, body := f.do(t, http.MethodGet, "/api/status", "")
	assert.Equal(t, http.StatusOK, code)
	assert.NotEmpty(t, body)
}

func TestWebsocketRoute_RequiresUpgrade(t *testing.T) {
	f := newFixture(t)
	code, _ := f.do(t, http.MethodGet, "/ws/status", "")
	assert.Equal(t, http.StatusUpgradeRequired, code)
}
