package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MyAiAd/whisper-service/internal/audio"
	"github.com/MyAiAd/whisper-service/internal/cache"
	"github.com/MyAiAd/whisper-service/internal/config"
	"github.com/MyAiAd/whisper-service/internal/hallucination"
	"github.com/MyAiAd/whisper-service/internal/metrics"
	"github.com/MyAiAd/whisper-service/internal/server"
	"github.com/MyAiAd/whisper-service/internal/transcription"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "whisper-service"
	serviceVersion    = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	// Log service startup
	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded", slog.Any("config", cfg.Summary()))

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics()
	logger.Info("Prometheus metrics initialized")

	// Select the result cache: Redis when reachable, inert otherwise
	store := cache.New(cfg.Cache, logger)

	// Select the recognition backend: HTTP when an endpoint is configured,
	// mock otherwise
	var transcriber transcription.Transcriber
	backend := "mock"
	if cfg.Model.Endpoint != "" {
		client, err := transcription.NewClient(transcription.ClientConfig{
			Endpoint:      cfg.Model.Endpoint,
			APIKey:        cfg.Model.APIKey,
			Timeout:       cfg.Model.GetTimeout(),
			MaxRetries:    cfg.Model.MaxRetries,
			MaxConcurrent: cfg.Model.MaxConcurrent,
		})
		if err != nil {
			logger.Error("Failed to create recognition client", slog.String("error", err.Error()))
			os.Exit(1)
		}
		transcriber = client
		backend = "http"
		logger.Info("Recognition backend initialized",
			slog.String("endpoint", cfg.Model.Endpoint),
			slog.Int("max_concurrent", cfg.Model.MaxConcurrent),
		)
	} else {
		transcriber = transcription.NewMockTranscriber()
		logger.Warn("No recognition endpoint configured, using mock backend")
	}

	// Initialize the audio conditioning pipeline
	conditioner, err := audio.NewConditioner(cfg.Audio, logger, appMetrics.RecordStageFallback)
	if err != nil {
		logger.Error("Failed to create audio conditioner", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Audio conditioner initialized",
		slog.Int("target_sample_rate", cfg.Audio.TargetSampleRate),
		slog.Bool("denoise_enabled", cfg.Audio.DenoiseEnabled),
	)

	// Initialize the hallucination classifier
	classifier := hallucination.NewClassifier(cfg.Hallucination)

	// Wire the request orchestrator
	opts := transcription.DefaultOptions(cfg.Model.Language, cfg.Model.BeamSize)
	opts.Temperature = cfg.Model.Temperature
	service := transcription.NewService(conditioner, transcriber, classifier, store, appMetrics, logger, opts)

	// Initialize and start the HTTP API server
	httpServer := server.NewHTTPServer(cfg, logger, service, store, appMetrics, backend)
	if err := httpServer.Start(); err != nil {
		logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("address", fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port)),
	)

	sig := <-sigChan
	logger.Info("Received shutdown signal", slog.String("signal", sig.String()))

	logger.Info("Starting graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
	}

	if redisStore, ok := store.(*cache.RedisStore); ok {
		if err := redisStore.Close(); err != nil {
			logger.Error("Error closing cache connection", slog.String("error", err.Error()))
		}
	}

	// Final backend statistics
	if client, ok := transcriber.(*transcription.Client); ok {
		stats := client.GetStats()
		logger.Info("Final recognition statistics",
			slog.Uint64("total_requests", stats.TotalRequests),
			slog.Uint64("success_requests", stats.SuccessRequests),
			slog.Uint64("failed_requests", stats.FailedRequests),
			slog.Uint64("total_retries", stats.TotalRetries),
		)
	}

	logger.Info("Service stopped")
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	// Parse log level
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo // default fallback
	}

	// Configure handler options
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug, // Add source info for debug level
	}

	// Determine output destination
	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	// Create handler based on format
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	case "text", "":
		handler = slog.NewTextHandler(output, opts)
	default:
		// Default to text format
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
