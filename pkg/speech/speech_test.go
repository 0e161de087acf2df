package speech_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-coach/pkg/speech"
)

type recorder struct {
	mu      sync.Mutex
	results []speech.Result
	errs    []speech.ErrorKind
	ends    int
	done    chan struct{}
}

func newRecorder() *recorder {
	return &recorder{done: make(chan struct{}, 4)}
}

func (r *recorder) HandleResult(res speech.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
}

func (r *recorder) HandleError(k speech.ErrorKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, k)
}

func (r *recorder) HandleEnd() {
	r.mu.Lock()
	r.ends++
	r.mu.Unlock()
	r.done <- struct{}{}
}

func TestParseErrorKind(t *testing.T) {
	cases := map[string]speech.ErrorKind{
		"no-speech":     speech.ErrorNoSpeech,
		"not-allowed":   speech.ErrorNotAllowed,
		"audio-capture": speech.ErrorAudioCapture,
		"aborted":       speech.ErrorAborted,
		"network":       speech.ErrorOther,
		"":              speech.ErrorOther,
	}
	for in, want := range cases {
		if got := speech.ParseErrorKind(in); got != want {
			t.Errorf("ParseErrorKind(%q) = %v, want %v", in, got, want)
		}
	}
	if !speech.ErrorNotAllowed.Fatal() || speech.ErrorNoSpeech.Fatal() {
		t.Error("only not-allowed should be fatal")
	}
	if speech.ErrorAudioCapture.String() != "audio-capture" {
		t.Errorf("unexpected name %q", speech.ErrorAudioCapture.String())
	}
}

func TestMockRecognizer(t *testing.T) {
	m := speech.NewMock()
	rec := newRecorder()

	if err := m.Start(context.Background(), rec); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.Start(context.Background(), rec); !errors.Is(err, speech.ErrAlreadyStarted) {
		t.Errorf("expected ErrAlreadyStarted, got %v", err)
	}

	m.SimulateResult("hello", 0.8, false)
	m.SimulateError(speech.ErrorNoSpeech)

	if len(rec.results) != 1 || rec.results[0].Text != "hello" {
		t.Errorf("unexpected results %+v", rec.results)
	}
	if len(rec.errs) != 1 || rec.ends != 1 {
		t.Errorf("expected one error and one end, got %d/%d", len(rec.errs), rec.ends)
	}
	if m.Active() {
		t.Error("mock should be inactive after error")
	}
}

var upgrader = websocket.Upgrader{}

func gatewayServer(t *testing.T, script func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		var start map[string]any
		if err := conn.ReadJSON(&start); err != nil {
			t.Errorf("read start: %v", err)
			return
		}
		if start["type"] != "start" {
			t.Errorf("expected start message, got %v", start)
		}
		script(conn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestGatewaySession(t *testing.T) {
	srv := gatewayServer(t, func(conn *websocket.Conn) {
		conn.WriteJSON(map[string]any{"type": "result", "transcript": "let's", "confidence": 0.4})
		conn.WriteJSON(map[string]any{"type": "result", "transcript": "let's begin", "is_final": true})
		conn.WriteJSON(map[string]any{"type": "end"})
	})

	g, err := speech.NewGateway(speech.WithGatewayURL(wsURL(srv)))
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}

	rec := newRecorder()
	if err := g.Start(context.Background(), rec); err != nil {
		t.Fatalf("start: %v", err)
	}

	select {
	case <-rec.done:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not end")
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(rec.results))
	}
	if rec.results[0].Final || rec.results[0].Confidence != 0.4 {
		t.Errorf("unexpected interim %+v", rec.results[0])
	}
	if !rec.results[1].Final || rec.results[1].Confidence != speech.DefaultConfidence {
		t.Errorf("missing confidence should default to 1.0, got %+v", rec.results[1])
	}
	if rec.ends != 1 {
		t.Errorf("expected one end, got %d", rec.ends)
	}
}

func TestGatewayErrorKind(t *testing.T) {
	srv := gatewayServer(t, func(conn *websocket.Conn) {
		conn.WriteJSON(map[string]any{"type": "error", "error": "no-speech"})
		conn.WriteJSON(map[string]any{"type": "end"})
	})

	g, err := speech.NewGateway(speech.WithGatewayURL(wsURL(srv)))
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}
	rec := newRecorder()
	if err := g.Start(context.Background(), rec); err != nil {
		t.Fatalf("start: %v", err)
	}

	select {
	case <-rec.done:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not end")
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.errs) != 1 || rec.errs[0] != speech.ErrorNoSpeech {
		t.Errorf("expected no-speech, got %v", rec.errs)
	}
}

func TestGatewayStopIsSilent(t *testing.T) {
	release := make(chan struct{})
	srv := gatewayServer(t, func(conn *websocket.Conn) {
		<-release
	})
	defer close(release)

	g, err := speech.NewGateway(speech.WithGatewayURL(wsURL(srv)))
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}
	rec := newRecorder()
	if err := g.Start(context.Background(), rec); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := g.Stop(); err != nil {
		t.Errorf("stop: %v", err)
	}
	if err := g.Stop(); err != nil {
		t.Errorf("second stop: %v", err)
	}

	select {
	case <-rec.done:
		t.Error("stop should not emit an end event")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestGatewayRequiresURL(t *testing.T) {
	if _, err := speech.NewGateway(); !errors.Is(err, speech.ErrNoGatewayURL) {
		t.Errorf("expected ErrNoGatewayURL, got %v", err)
	}
}
