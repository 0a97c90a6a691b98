package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/fasalsetu/agrichat/chat"
	"github.com/fasalsetu/agrichat/config"
	"github.com/fasalsetu/agrichat/cropsim"
	"github.com/fasalsetu/agrichat/store"
	"github.com/fasalsetu/agrichat/upstream"
)

// App wires together all components of the chat backend.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	// NATS
	embeddedServer *server.Server
	natsConn       *nats.Conn
	js             jetstream.JetStream

	// Crop simulation
	detector *cropsim.Detector
	watcher  *cropsim.PatternWatcher

	httpServer *http.Server
}

// NewApp creates a new application instance.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	return &App{cfg: cfg, logger: logger}, nil
}

// Start initializes all components and begins serving HTTP.
func (a *App) Start(ctx context.Context) error {
	if err := a.startNATS(ctx); err != nil {
		return fmt.Errorf("start NATS: %w", err)
	}

	crops, err := store.NewCropStore(ctx, a.js)
	if err != nil {
		return fmt.Errorf("initialize crop store: %w", err)
	}
	convs, err := store.NewConversationStore(ctx, a.js)
	if err != nil {
		return fmt.Errorf("initialize conversation store: %w", err)
	}

	if err := a.setupDetector(ctx); err != nil {
		return err
	}

	client := upstream.NewClient(upstreamConfig(a.cfg), upstream.WithLogger(a.logger))
	orch := chat.NewOrchestrator(client, a.logger)
	turns := chat.NewTurnService(orch, a.detector, cropsim.NewEngine(), crops, convs, a.logger)
	handler := chat.NewHandler(orch, turns, client, convs, a.logger)

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	a.httpServer = &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		a.logger.Info("HTTP server listening", "addr", a.cfg.Server.Addr)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("HTTP server failed", "error", err)
		}
	}()

	a.logger.Info("Agrichat ready",
		"version", Version,
		"planner", a.cfg.Upstream.Planner.URL,
		"decision", a.cfg.Upstream.Decision.URL,
		"answerer", a.cfg.Upstream.Answerer.URL)
	return nil
}

// setupDetector builds the event detector, from the configured pattern
// file when present, and starts the hot-reload watcher if enabled.
func (a *App) setupDetector(ctx context.Context) error {
	var table *cropsim.PatternTable
	if a.cfg.CropSim.PatternFile != "" {
		loaded, err := cropsim.LoadPatternTable(a.cfg.CropSim.PatternFile)
		if err != nil {
			return fmt.Errorf("load pattern table: %w", err)
		}
		table = loaded
	}
	a.detector = cropsim.NewDetector(table)

	if a.cfg.CropSim.PatternFile != "" && a.cfg.CropSim.WatchPatterns {
		watcher, err := cropsim.NewPatternWatcher(a.cfg.CropSim.PatternFile, a.detector, a.logger)
		if err != nil {
			return fmt.Errorf("create pattern watcher: %w", err)
		}
		if err := watcher.Start(ctx); err != nil {
			return fmt.Errorf("start pattern watcher: %w", err)
		}
		a.watcher = watcher
	}

	return nil
}

func (a *App) startNATS(ctx context.Context) error {
	// A configured URL always means an external server.
	if a.cfg.NATS.URL != "" {
		a.logger.Info("Connecting to NATS", "url", a.cfg.NATS.URL)
		conn, err := nats.Connect(a.cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("connect to NATS: %w", err)
		}
		a.natsConn = conn
	} else {
		a.logger.Info("Starting embedded NATS server")
		opts := &server.Options{
			Port:      -1, // Random available port
			JetStream: true,
			NoLog:     true,
			NoSigs:    true,
		}

		ns, err := server.NewServer(opts)
		if err != nil {
			return fmt.Errorf("create embedded NATS server: %w", err)
		}

		go ns.Start()

		if !ns.ReadyForConnections(5 * time.Second) {
			ns.Shutdown()
			return fmt.Errorf("embedded NATS server failed to start")
		}

		a.embeddedServer = ns

		conn, err := nats.Connect(ns.ClientURL())
		if err != nil {
			ns.Shutdown()
			return fmt.Errorf("connect to embedded NATS: %w", err)
		}
		a.natsConn = conn
	}

	js, err := jetstream.New(a.natsConn)
	if err != nil {
		return fmt.Errorf("create JetStream context: %w", err)
	}
	a.js = js

	return nil
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown(timeout time.Duration) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if a.httpServer != nil {
		if err := a.httpServer.Shutdown(ctx); err != nil {
			a.logger.Warn("HTTP server shutdown incomplete", "error", err)
		}
	}

	if a.watcher != nil {
		if err := a.watcher.Stop(); err != nil {
			a.logger.Warn("Pattern watcher stop failed", "error", err)
		}
	}

	if a.natsConn != nil {
		a.natsConn.Drain()
		a.natsConn.Close()
	}

	if a.embeddedServer != nil {
		a.embeddedServer.Shutdown()
		a.embeddedServer.WaitForShutdown()
	}
}
