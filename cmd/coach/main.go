// coach - voice and text coaching client for lesson-based tutoring
// Talks to the coaching backend for chat and speech synthesis and serves a
// live dashboard over HTTP and websocket.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-coach/internal/config"
	"github.com/teslashibe/go-coach/internal/log"
	"github.com/teslashibe/go-coach/pkg/coach"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "coach: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "Config file (default ./coach.yaml or ~/.config/go-coach/coach.yaml)")
	addr := flag.String("addr", "", "Dashboard listen address (overrides web.addr)")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error")
	mode := flag.String("mode", "", "Reply mode: voice or text")
	preset := flag.String("preset", "", "Speech validation preset: low, medium, high")
	noWeb := flag.Bool("no-web", false, "Disable the dashboard")
	start := flag.Bool("start", false, "Start a voice conversation immediately")
	flag.Parse()

	loader := config.NewLoader(*configPath, nil)
	cfg, err := loader.Load()
	if err != nil {
		return err
	}

	if *addr != "" {
		cfg.Web.Addr = *addr
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *mode != "" {
		cfg.Conversation.Mode = *mode
	}
	if *preset != "" {
		cfg.Conversation.Preset = *preset
	}
	if *noWeb {
		cfg.Web.Enabled = false
	}
	if *start {
		cfg.Conversation.AutoStart = true
		cfg.Conversation.Mode = "voice"
	}

	var logOpts []log.Option
	if cfg.Log.JSON {
		logOpts = append(logOpts, log.WithJSON())
	}
	if cfg.Log.OTel {
		logOpts = append(logOpts, log.WithOTel("github.com/teslashibe/go-coach"))
	}
	log.Init(cfg.Log.Level, logOpts...)
	if f := loader.File(); f != "" {
		log.Info("config loaded", "file", f)
	}

	app, err := coach.New(cfg, coach.WithLoader(loader), coach.WithLogger(log.L()))
	if err != nil {
		return fmt.Errorf("configuration: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Init(ctx); err != nil {
		return fmt.Errorf("initialization: %w", err)
	}
	defer app.Shutdown()

	return app.Run(ctx)
}
