package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/skypro1111/rnnoise-service/internal/audio"
	"github.com/skypro1111/rnnoise-service/internal/config"
	"github.com/skypro1111/rnnoise-service/internal/denoise"
	"github.com/skypro1111/rnnoise-service/internal/metrics"
	"github.com/skypro1111/rnnoise-service/internal/server"
	"github.com/skypro1111/rnnoise-service/internal/stream"
)

const (
	defaultConfigPath = "configs/config.yaml"
	defaultEnvPath    = ".env"
	shutdownTimeout   = 10 * time.Second
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	envPath := flag.String("env", defaultEnvPath, "Path to an optional dotenv file")
	flag.Parse()

	if err := config.LoadEnvFile(*envPath); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load env file: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logging)
	slog.SetDefault(logger)

	logger.Info("Service starting",
		slog.String("service", server.ServiceName),
		slog.String("version", server.ServiceVersion),
		slog.String("config_path", *configPath),
	)

	logger.Info("Configuration loaded",
		slog.String("http_address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
		slog.String("library_path", cfg.Engine.LibraryPath),
		slog.Int("pool_size", cfg.Engine.PoolSize),
		slog.Float64("voice_threshold", float64(cfg.Denoise.VoiceThreshold)),
		slog.Bool("restore_source_rate", cfg.Denoise.RestoreSourceRate),
		slog.Bool("ffmpeg_enabled", cfg.FFmpeg.Enabled),
		slog.String("log_level", cfg.Logging.Level),
	)

	engine, err := denoise.LoadRNNoise(cfg.Engine.LibraryPath)
	if err != nil {
		logger.Error("Failed to load RNNoise library", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("RNNoise library loaded", slog.String("path", cfg.Engine.LibraryPath))

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	appMetrics := metrics.NewMetrics(registry)
	logger.Info("Prometheus metrics initialized")

	pool, err := stream.NewPool(logger, engine, stream.PoolConfig{
		Size:           cfg.Engine.PoolSize,
		AcquireTimeout: cfg.Engine.GetAcquireTimeout(),
		IdleTimeout:    cfg.Engine.GetIdleTimeout(),
		Observer:       appMetrics,
		SessionOptions: []denoise.Option{
			denoise.WithLogger(logger),
			denoise.WithRecorder(appMetrics),
		},
	})
	if err != nil {
		logger.Error("Failed to create session pool", slog.String("error", err.Error()))
		engine.Close()
		os.Exit(1)
	}

	// one session up front proves the library can create state
	if err := pool.Warm(1); err != nil {
		logger.Error("Failed to create initial denoiser session", slog.String("error", err.Error()))
		pool.Close()
		engine.Close()
		os.Exit(1)
	}
	logger.Info("Session pool initialized",
		slog.Int("size", cfg.Engine.PoolSize),
		slog.Duration("acquire_timeout", cfg.Engine.GetAcquireTimeout()),
	)

	adapter := audio.NewAdapter(audio.AdapterConfig{
		FFmpegEnabled: cfg.FFmpeg.Enabled,
		FFmpegPath:    cfg.FFmpeg.Path,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	if cfg.HTTP.Enabled {
		httpServer := server.NewHTTPServer(cfg, logger, pool, adapter, appMetrics, registry)

		g.Go(httpServer.Serve)
		g.Go(func() error {
			<-gctx.Done()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return httpServer.Stop(shutdownCtx)
		})

		logger.Info("Service started successfully, waiting for signals...",
			slog.String("http_address", httpServer.Addr()),
		)
	} else {
		logger.Warn("HTTP API disabled, waiting for signals...")
		g.Go(func() error {
			<-gctx.Done()
			return nil
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Service stopped with error", slog.String("error", err.Error()))
	}

	logger.Info("Starting graceful shutdown...")

	stats := pool.GetStats()
	pool.Close()

	if err := engine.Close(); err != nil {
		logger.Error("Error closing RNNoise library", slog.String("error", err.Error()))
	}

	logger.Info("Final pool statistics",
		slog.Uint64("sessions_created", stats.Created),
		slog.Uint64("leases_acquired", stats.Acquired),
		slog.Uint64("acquire_timeouts", stats.Timeouts),
		slog.Uint64("sessions_evicted", stats.Evicted),
	)

	logger.Info("Service stopped")
}
