package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Gateway is a Recognizer backed by a speech capture gateway speaking JSON
// over a websocket. One connection is opened per recognition session.
//
// Client → gateway:
//
//	{"type":"start","language":"en-US","interim":true}
//	{"type":"stop"}
//
// Gateway → client:
//
//	{"type":"result","transcript":"hello","confidence":0.92,"is_final":true}
//	{"type":"error","error":"no-speech"}
//	{"type":"end"}
type Gateway struct {
	config GatewayConfig
	dialer *websocket.Dialer
	logger *slog.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

// GatewayConfig configures the gateway client.
type GatewayConfig struct {
	URL              string
	Language         string
	AuthToken        string
	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration
	Logger           *slog.Logger
}

// GatewayOption configures a Gateway.
type GatewayOption func(*GatewayConfig)

// WithGatewayURL sets the websocket URL.
func WithGatewayURL(url string) GatewayOption {
	return func(c *GatewayConfig) { c.URL = url }
}

// WithLanguage sets the recognition language.
func WithLanguage(lang string) GatewayOption {
	return func(c *GatewayConfig) { c.Language = lang }
}

// WithAuthToken sets a bearer token for the handshake.
func WithAuthToken(token string) GatewayOption {
	return func(c *GatewayConfig) { c.AuthToken = token }
}

// WithReadTimeout bounds how long a session may stay silent on the wire.
func WithReadTimeout(d time.Duration) GatewayOption {
	return func(c *GatewayConfig) { c.ReadTimeout = d }
}

// WithGatewayLogger sets the structured logger.
func WithGatewayLogger(l *slog.Logger) GatewayOption {
	return func(c *GatewayConfig) { c.Logger = l }
}

// DefaultGatewayConfig returns defaults without a URL.
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		Language:         "en-US",
		HandshakeTimeout: 10 * time.Second,
		ReadTimeout:      60 * time.Second,
		Logger:           slog.Default(),
	}
}

type gatewayMessage struct {
	Type       string   `json:"type"`
	Language   string   `json:"language,omitempty"`
	Interim    bool     `json:"interim,omitempty"`
	Transcript string   `json:"transcript,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
	IsFinal    bool     `json:"is_final,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// NewGateway creates a gateway recognizer.
func NewGateway(opts ...GatewayOption) (*Gateway, error) {
	cfg := DefaultGatewayConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.URL == "" {
		return nil, ErrNoGatewayURL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Gateway{
		config: cfg,
		dialer: &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		logger: cfg.Logger.With("component", "speech.gateway"),
	}, nil
}

// Start dials the gateway and begins streaming events to h.
func (g *Gateway) Start(ctx context.Context, h Handler) error {
	if h == nil {
		return ErrNilHandler
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.conn != nil {
		return ErrAlreadyStarted
	}

	header := http.Header{}
	if g.config.AuthToken != "" {
		header.Set("Authorization", "Bearer "+g.config.AuthToken)
	}

	conn, _, err := g.dialer.DialContext(ctx, g.config.URL, header)
	if err != nil {
		return fmt.Errorf("speech: dial gateway: %w", err)
	}

	start := gatewayMessage{Type: "start", Language: g.config.Language, Interim: true}
	if err := conn.WriteJSON(start); err != nil {
		conn.Close()
		return fmt.Errorf("speech: send start: %w", err)
	}

	g.conn = conn
	go g.readLoop(conn, h)

	g.logger.Debug("recognition started", "url", g.config.URL)
	return nil
}

// Stop ends the session. Events still in flight are dropped.
func (g *Gateway) Stop() error {
	g.mu.Lock()
	conn := g.conn
	g.conn = nil
	g.mu.Unlock()

	if conn == nil {
		return nil
	}

	conn.SetWriteDeadline(time.Now().Add(time.Second))
	_ = conn.WriteJSON(gatewayMessage{Type: "stop"})
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return conn.Close()
}

// current reports whether conn is still the live session.
func (g *Gateway) current(conn *websocket.Conn) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.conn == conn
}

func (g *Gateway) release(conn *websocket.Conn) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.conn != conn {
		return false
	}
	g.conn = nil
	return true
}

// readLoop is the only goroutine that emits events for a session, and it
// emits HandleEnd exactly once unless the session was stopped.
func (g *Gateway) readLoop(conn *websocket.Conn, h Handler) {
	defer conn.Close()

	for {
		if g.config.ReadTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(g.config.ReadTimeout))
		}

		var msg gatewayMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if !g.release(conn) {
				return
			}
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !errors.Is(err, websocket.ErrCloseSent) {
				g.logger.Warn("gateway read failed", "error", err)
				h.HandleError(ErrorOther)
			}
			h.HandleEnd()
			return
		}

		if !g.current(conn) {
			return
		}

		switch msg.Type {
		case "result":
			conf := DefaultConfidence
			if msg.Confidence != nil {
				conf = *msg.Confidence
			}
			h.HandleResult(Result{Text: msg.Transcript, Confidence: conf, Final: msg.IsFinal})
		case "error":
			kind := ParseErrorKind(msg.Error)
			g.logger.Debug("recognition error", "kind", kind.String())
			h.HandleError(kind)
		case "end":
			if g.release(conn) {
				h.HandleEnd()
			}
			return
		default:
			g.logger.Debug("ignoring gateway message", "type", msg.Type)
		}
	}
}

var _ Recognizer = (*Gateway)(nil)
