package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/snarg/whisperd/internal/config"
	"github.com/snarg/whisperd/internal/engine"
	"github.com/snarg/whisperd/internal/metrics"
	"github.com/snarg/whisperd/internal/modelprep"
	"github.com/snarg/whisperd/internal/storage"
)

type Server struct {
	http *http.Server
	log  zerolog.Logger
}

func NewServer(cfg *config.Config, provider engine.Provider, models *modelprep.Manager, scratch *storage.Scratch, version string, startTime time.Time, log zerolog.Logger) *Server {
	r := chi.NewRouter()

	// Global middleware
	r.Use(RequestID)
	r.Use(Recoverer)
	r.Use(Logger(log))
	r.Use(CORS)
	r.Use(metrics.InstrumentHandler)

	// Unauthenticated operational endpoints
	health := NewHealthHandler(models, provider.Name(), version, startTime)
	r.Get("/api/v1/health", health.ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())

	// Authenticated API
	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(cfg.AuthToken))

		NewTranscriptionsHandler(provider, models, scratch, TranscriptionsConfig{
			MaxConcurrent:   cfg.MaxConcurrent,
			StreamBatchSize: cfg.StreamBatchSize,
			MaxUploadBytes:  cfg.MaxUploadBytes,
			DefaultLanguage: cfg.Language,
		}, log).Routes(r)

		NewModelsHandler(models, log).Routes(r)
	})

	return &Server{
		http: &http.Server{
			Addr:         cfg.HTTPAddr,
			Handler:      r,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		log: log,
	}
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server starting")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.http.Shutdown(ctx)
}
