package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/whisperd/internal/api"
	"github.com/snarg/whisperd/internal/config"
	"github.com/snarg/whisperd/internal/engine"
	"github.com/snarg/whisperd/internal/modelprep"
	"github.com/snarg/whisperd/internal/storage"
)

var version = "dev"

func main() {
	startTime := time.Now()

	var overrides config.Overrides
	flag.StringVar(&overrides.EnvFile, "env-file", "", "path to .env file")
	flag.StringVar(&overrides.HTTPAddr, "addr", "", "http listen address")
	flag.StringVar(&overrides.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	flag.StringVar(&overrides.ModelsDir, "models-dir", "", "directory holding installed models")
	flag.StringVar(&overrides.Upstream, "upstream", "", "upstream transcription endpoint URL")
	flag.Parse()

	// Config
	cfg, err := config.Load(overrides)
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}

	// Logger
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
	log.Info().Str("version", version).Msg("whisperd starting")

	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Scratch space for uploaded audio
	scratchDir := cfg.ScratchDir
	if scratchDir == "" {
		scratchDir = os.TempDir()
	}
	scratch, err := storage.NewScratch(scratchDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create scratch dir")
	}
	if n := scratch.Sweep(); n > 0 {
		log.Info().Int("removed", n).Msg("swept leftover scratch files")
	}

	// Engine
	var provider engine.Provider
	switch cfg.Provider {
	case "elevenlabs":
		if cfg.ElevenLabsAPIKey == "" {
			log.Fatal().Msg("ELEVENLABS_API_KEY is required for the elevenlabs provider")
		}
		provider = engine.NewElevenLabs(cfg.ElevenLabsAPIKey, cfg.ElevenLabsModel, cfg.UpstreamTimeout)
	case "remote":
		provider = engine.NewRemote(cfg.UpstreamURL, cfg.UpstreamModel, cfg.UpstreamAPIKey, cfg.UpstreamTimeout)
	default:
		log.Fatal().Str("provider", cfg.Provider).Msg("unknown provider")
	}
	log.Info().Str("provider", provider.Name()).Str("model", provider.Model()).Msg("engine configured")

	// Model discovery. Warming a model is a no-op for remote engines;
	// the guard still deduplicates concurrent switches.
	if err := os.MkdirAll(cfg.ModelsDir, 0o755); err != nil {
		log.Fatal().Err(err).Str("dir", cfg.ModelsDir).Msg("failed to create models dir")
	}
	modelLog := log.With().Str("component", "models").Logger()
	models := modelprep.NewManager(cfg.ModelsDir, modelprep.NewGuard(), nil, modelLog)
	if err := models.Start(); err != nil {
		log.Fatal().Err(err).Str("dir", cfg.ModelsDir).Msg("model discovery failed to start")
	}
	defer models.Stop()

	// HTTP Server
	httpLog := log.With().Str("component", "http").Logger()
	srv := api.NewServer(cfg, provider, models, scratch, version, startTime, httpLog)

	// Start HTTP server in background
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	// Wait for shutdown signal or server error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server error")
		}
	}

	// Graceful shutdown with 10s timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}

	log.Info().Msg("whisperd stopped")
}
