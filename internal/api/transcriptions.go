package api

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/snarg/whisperd/internal/engine"
	"github.com/snarg/whisperd/internal/format"
	"github.com/snarg/whisperd/internal/metrics"
	"github.com/snarg/whisperd/internal/modelprep"
	"github.com/snarg/whisperd/internal/storage"
	"github.com/snarg/whisperd/internal/stream"
	"github.com/snarg/whisperd/internal/transcript"
)

// TranscriptionsHandler serves POST /v1/audio/transcriptions with the
// OpenAI multipart request shape.
type TranscriptionsHandler struct {
	provider engine.Provider
	models   *modelprep.Manager
	scratch  *storage.Scratch
	log      zerolog.Logger

	sem             chan struct{}
	batchSize       int
	maxUploadBytes  int64
	defaultLanguage string
}

// TranscriptionsConfig carries the handler's tunables.
type TranscriptionsConfig struct {
	MaxConcurrent   int
	StreamBatchSize int
	MaxUploadBytes  int64
	DefaultLanguage string
}

func NewTranscriptionsHandler(provider engine.Provider, models *modelprep.Manager, scratch *storage.Scratch, cfg TranscriptionsConfig, log zerolog.Logger) *TranscriptionsHandler {
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	return &TranscriptionsHandler{
		provider:        provider,
		models:          models,
		scratch:         scratch,
		log:             log.With().Str("handler", "transcriptions").Logger(),
		sem:             make(chan struct{}, cfg.MaxConcurrent),
		batchSize:       cfg.StreamBatchSize,
		maxUploadBytes:  cfg.MaxUploadBytes,
		defaultLanguage: cfg.DefaultLanguage,
	}
}

// Routes registers the transcription endpoint.
func (h *TranscriptionsHandler) Routes(r chi.Router) {
	r.Post("/v1/audio/transcriptions", h.Create)
}

// Create handles POST /v1/audio/transcriptions.
func (h *TranscriptionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		WriteErrorReason(w, http.StatusBadRequest, "invalid multipart form", err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	f, err := format.Parse(r.FormValue("response_format"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	temperature := 0.0
	if v := r.FormValue("temperature"); v != "" {
		temperature, err = strconv.ParseFloat(v, 64)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "invalid temperature: must be a number")
			return
		}
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "failed to read audio file")
		return
	}
	if len(data) == 0 {
		WriteError(w, http.StatusBadRequest, "empty audio file")
		return
	}

	audioPath, cleanup, err := h.scratch.Put(data, filepath.Ext(header.Filename))
	if err != nil {
		h.log.Error().Err(err).Msg("scratch write failed")
		WriteError(w, http.StatusInternalServerError, "failed to stage audio")
		return
	}
	defer cleanup()

	opts := engine.Options{
		Model:       r.FormValue("model"),
		Language:    r.FormValue("language"),
		Prompt:      r.FormValue("prompt"),
		Temperature: temperature,
	}
	if opts.Language == "" {
		opts.Language = h.defaultLanguage
	}

	// Locally installed models are warmed before the engine call.
	// Unknown IDs pass through untouched; remote engines resolve
	// their own model names.
	if h.models != nil && opts.Model != "" && h.models.Has(opts.Model) {
		if err := h.models.Prepare(r.Context(), opts.Model); err != nil {
			h.log.Error().Err(err).Str("model", opts.Model).Msg("model preparation failed")
			WriteErrorReason(w, http.StatusInternalServerError, "model preparation failed", err.Error())
			return
		}
	}

	streamRequested := formBool(r, "stream")
	diarize := formBool(r, "diarize")

	sess := stream.NewSession(f, streamRequested, r.Header.Get("Accept"))
	renderer := format.New(f)
	log := h.log.With().Str("request_id", sess.RequestID).Logger()

	select {
	case h.sem <- struct{}{}:
		defer func() { <-h.sem }()
	case <-r.Context().Done():
		return
	}

	res, turns, engineErr := h.invoke(r, audioPath, opts, diarize)

	var (
		src      stream.Source
		language = opts.Language
		duration float64
	)
	switch {
	case engineErr != nil:
		metrics.EngineFailuresTotal.WithLabelValues(h.provider.Name()).Inc()
		if sess.Mode == stream.ModeSingle {
			log.Error().Err(engineErr).Msg("transcription failed")
			WriteErrorReason(w, http.StatusBadGateway, "transcription failed", engineErr.Error())
			return
		}
		// Streaming clients still get a well-formed stream with a
		// terminal frame, never a dangling connection.
		src = engine.ErrorSource{Err: engineErr}
	default:
		if res.Language != "" {
			language = res.Language
		}
		duration = res.Duration
		src = engine.NewTokenBatcher(resultTokens(res), h.batchSize)
	}

	coord := stream.New(sess, renderer, turns, language, duration, log)
	if err := coord.Run(r.Context(), w, src); err != nil {
		if errors.Is(err, stream.ErrAborted) {
			log.Debug().Msg("client disconnected")
			return
		}
		log.Error().Err(err).Msg("delivery failed")
		if sess.Mode == stream.ModeSingle && engineErr == nil {
			WriteError(w, http.StatusInternalServerError, "failed to render response")
		}
		return
	}

	metrics.TranscriptionsTotal.WithLabelValues(string(f), string(sess.Mode)).Inc()
}

// invoke runs the engine, taking the single-call diarizing path when
// the provider supports it.
func (h *TranscriptionsHandler) invoke(r *http.Request, audioPath string, opts engine.Options, diarize bool) (*engine.Result, []transcript.SpeakerTurn, error) {
	ctx := r.Context()
	start := time.Now()
	defer func() {
		metrics.EngineDuration.WithLabelValues(h.provider.Name()).Observe(time.Since(start).Seconds())
	}()

	if diarize {
		if dp, ok := h.provider.(engine.DiarizingProvider); ok {
			res, turns, err := dp.TranscribeWithSpeakers(ctx, audioPath, opts)
			if err != nil {
				return nil, nil, err
			}
			if err := transcript.ValidateTurns(turns); err != nil {
				h.log.Warn().Err(err).Msg("ignoring invalid speaker turns")
				turns = nil
			}
			return res, turns, nil
		}
		h.log.Debug().Str("provider", h.provider.Name()).Msg("diarization not supported by engine")
	}

	res, err := h.provider.Transcribe(ctx, audioPath, opts)
	return res, nil, err
}

// resultTokens returns the engine's word tokens, synthesizing a single
// full-text token when the engine produced no timestamps at all.
func resultTokens(res *engine.Result) []transcript.Token {
	if len(res.Tokens) > 0 {
		return res.Tokens
	}
	if res.Text == "" {
		return nil
	}
	return []transcript.Token{{
		Text:       res.Text,
		Start:      0,
		End:        res.Duration,
		Confidence: 1,
	}}
}

func formBool(r *http.Request, name string) bool {
	v := r.FormValue(name)
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	return err == nil && b
}
