// Package web serves the coaching dashboard: a JSON control API and a
// websocket stream of conversation events.
package web

import (
	"context"
	"log/slog"
	"net"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-coach/pkg/hub"
	"github.com/teslashibe/go-coach/pkg/memory"
	"github.com/teslashibe/go-coach/pkg/orchestrator"
	"github.com/teslashibe/go-coach/pkg/schedule"
	"github.com/teslashibe/go-coach/pkg/validation"
)

// DefaultAddr is the dashboard listen address.
const DefaultAddr = ":8080"

// Controller is the conversation the dashboard reflects and drives.
// *orchestrator.Orchestrator implements it.
type Controller interface {
	Snapshot() orchestrator.Snapshot
	Subscribe(fn func(orchestrator.Event)) (unsubscribe func())
	History() []memory.Turn
	Summary() memory.Summary
	RetryStats() schedule.RetryStats
	ValidationStats() validation.Stats

	SubmitText(text string) error
	StartConversation(ctx context.Context) error
	StopConversation()
	Interrupt() bool
	SetValidationPreset(name string) error
}

var _ Controller = (*orchestrator.Orchestrator)(nil)

// Option configures a Server.
type Option func(*Server)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(s *Server) { s.addr = addr }
}

// WithStaticDir serves a front end from dir at /.
func WithStaticDir(dir string) Option {
	return func(s *Server) { s.staticDir = dir }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// Server is the dashboard server.
type Server struct {
	app       *fiber.App
	ctrl      Controller
	statusHub *hub.Hub
	addr      string
	staticDir string
	logger    *slog.Logger
}

// NewServer creates a dashboard for ctrl.
func NewServer(ctrl Controller, opts ...Option) *Server {
	s := &Server{
		ctrl:   ctrl,
		addr:   DefaultAddr,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "web")
	s.statusHub = hub.New("status", s.logger)

	app := fiber.New(fiber.Config{
		AppName:               "Coach Dashboard",
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})
	app.Use(cors.New())

	if s.staticDir != "" {
		app.Static("/", s.staticDir)
	}

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/turns", s.handleTurns)
	api.Get("/summary", s.handleSummary)
	api.Post("/message", s.handleMessage)
	api.Post("/conversation/start", s.handleStartConversation)
	api.Post("/conversation/stop", s.handleStopConversation)
	api.Post("/interrupt", s.handleInterrupt)
	api.Put("/validation/:preset", s.handleSetPreset)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(s.handleStatusWS))

	s.app = app
	return s
}

// App exposes the fiber app, mainly for app.Test.
func (s *Server) App() *fiber.App {
	return s.app
}

// Hub returns the status broadcast hub.
func (s *Server) Hub() *hub.Hub {
	return s.statusHub
}

// Run listens on the configured address until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve runs the dashboard on ln until ctx is cancelled. Conversation events
// are forwarded to websocket clients while it runs.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go s.statusHub.Run(ctx)
	unsubscribe := s.ctrl.Subscribe(s.forward)
	defer unsubscribe()

	go func() {
		<-ctx.Done()
		if err := s.app.Shutdown(); err != nil {
			s.logger.Warn("dashboard shutdown failed", "error", err)
		}
	}()

	s.logger.Info("dashboard listening", "addr", ln.Addr().String())
	return s.app.Listener(ln)
}

// forward relays an orchestrator event to websocket clients. Reveal frames
// are dropped when nobody is watching.
func (s *Server) forward(ev orchestrator.Event) {
	if s.statusHub.ClientCount() == 0 {
		return
	}
	if err := s.statusHub.BroadcastJSON(string(ev.Type), ev); err != nil {
		s.logger.Warn("failed to encode event", "type", ev.Type, "error", err)
	}
}
