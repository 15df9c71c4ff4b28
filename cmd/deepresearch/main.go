// Deep-research server: exposes the iterative research engine over an
// NDJSON streaming HTTP API.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/deepresearch/deepresearch/pkg/api"
	"github.com/deepresearch/deepresearch/pkg/config"
	"github.com/deepresearch/deepresearch/pkg/engine"
	"github.com/deepresearch/deepresearch/pkg/llm"
	"github.com/deepresearch/deepresearch/pkg/ratelimit"
	"github.com/deepresearch/deepresearch/pkg/search"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "."),
		"Path to configuration directory")
	flag.Parse()

	// Load .env from the config directory before reading anything else.
	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}

	httpAddr := getEnv("HTTP_ADDR", ":8080")

	slog.Info("Starting deepresearch", "http_addr", httpAddr, "config_dir", *configDir)

	cfg, err := config.Initialize(*configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	// One limiter per provider: each provider enforces its own quota,
	// but a rate-limit signal from any worker raises that provider's
	// backoff for all workers.
	searchLimiter := ratelimit.New(ratelimit.Config{
		RPM:            cfg.RateLimit.RPM,
		InitialBackoff: cfg.RateLimit.InitialBackoff(),
		MaxBackoff:     cfg.RateLimit.MaxBackoff(),
		Multiplier:     cfg.RateLimit.Multiplier,
	})
	llmLimiter := ratelimit.New(ratelimit.Config{
		RPM:            cfg.RateLimit.RPM,
		InitialBackoff: cfg.RateLimit.InitialBackoff(),
		MaxBackoff:     cfg.RateLimit.MaxBackoff(),
		Multiplier:     cfg.RateLimit.Multiplier,
	})

	usage := llm.NewUsageTracker()
	llmClient := llm.NewHTTPClient(cfg.LLM, llmLimiter,
		llm.WithUsageTracker(usage),
		llm.WithReloadCredentials(func() (string, error) {
			return os.Getenv("LLM_API_KEY"), nil
		}))
	searchClient := search.NewHTTPClient(cfg.Search, searchLimiter)

	eng := engine.New(searchClient, llmClient, cfg.Engine)
	server := api.NewServer(eng, cfg, usage)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start(httpAddr) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("Received shutdown signal", "signal", sig)
	case err := <-errCh:
		if err != nil {
			slog.Error("API server failed", "error", err)
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Shutdown did not complete cleanly", "error", err)
		os.Exit(1)
	}
	slog.Info("Shutdown complete")
}
