// Package main provides the agrichat binary entry point.
// Agrichat is an agricultural-advisory chat backend with a simulated
// crop growth engine.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fasalsetu/agrichat/config"
	"github.com/fasalsetu/agrichat/upstream"
)

const (
	Version = "0.1.0"
	appName = "agrichat"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Agricultural advisory chat backend",
		Long: `Agrichat turns free-text farmer messages into advisory answers.

It orchestrates three reasoning services (planner, decision engine,
answerer) with retry, timeout, and fallback, and tracks a simulated
crop's growth through detected farming events. Crop state and chat
history persist in NATS JetStream.`,
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(serveCmd(&configPath, &logLevel))
	cmd.AddCommand(healthCmd(&configPath, &logLevel))
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s\n", appName, Version)
		},
	})

	return cmd
}

func serveCmd(configPath, logLevel *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the chat API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogging(*logLevel)

			cfg, err := loadConfig(*configPath, logger)
			if err != nil {
				return err
			}

			app, err := NewApp(cfg, logger)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			if err := app.Start(ctx); err != nil {
				return err
			}

			<-ctx.Done()
			logger.Info("Received shutdown signal")

			app.Shutdown(cfg.Server.ShutdownTimeout)
			logger.Info("Agrichat shutdown complete")
			return nil
		},
	}
}

func healthCmd(configPath, logLevel *string) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check reachability of the upstream reasoning services",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogging(*logLevel)

			cfg, err := loadConfig(*configPath, logger)
			if err != nil {
				return err
			}

			client := upstream.NewClient(upstreamConfig(cfg), upstream.WithLogger(logger))

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			report := client.Check(ctx)
			fmt.Printf("planner (llm1):   %s\n", report.Planner)
			fmt.Printf("decision engine:  %s\n", report.Decision)
			fmt.Printf("answerer (llm2):  %s\n", report.Answerer)

			if !report.AllOK() {
				return fmt.Errorf("one or more services are unavailable")
			}
			return nil
		},
	}
}

func setupLogging(level string) *slog.Logger {
	logLevel := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)
	return logger
}

func loadConfig(configPath string, logger *slog.Logger) (*config.Config, error) {
	if configPath != "" {
		cfg, err := config.LoadFromFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
		return cfg, nil
	}

	loader := config.NewLoader(logger)
	if err := loader.EnsureUserConfig(); err != nil {
		logger.Warn("Failed to create user config", slog.String("error", err.Error()))
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// upstreamConfig maps the file configuration onto the client's per-service
// settings. The retry backoff base is shared across all three stages.
func upstreamConfig(cfg *config.Config) upstream.Config {
	stage := func(name string, sc config.StageConfig) upstream.ServiceConfig {
		return upstream.ServiceConfig{
			Name:    name,
			URL:     sc.URL,
			Timeout: sc.Timeout,
			Retry: upstream.RetryPolicy{
				MaxAttempts:       sc.MaxAttempts,
				BackoffBase:       cfg.Upstream.BackoffBase,
				BackoffMultiplier: 2.0,
				MaxBackoff:        30 * time.Second,
			},
		}
	}
	return upstream.Config{
		Planner:  stage(upstream.ServicePlanner, cfg.Upstream.Planner),
		Decision: stage(upstream.ServiceDecision, cfg.Upstream.Decision),
		Answerer: stage(upstream.ServiceAnswerer, cfg.Upstream.Answerer),
	}
}
