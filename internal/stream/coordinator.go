package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/whisperd/internal/format"
	"github.com/snarg/whisperd/internal/metrics"
	"github.com/snarg/whisperd/internal/transcript"
)

// ErrAborted is returned when the client went away mid-stream. It is
// never reported to the client; the caller only cleans up.
var ErrAborted = errors.New("stream aborted by client")

// Source yields successive token batches from the transcription engine.
// Next blocks until a batch is ready and returns io.EOF after the last
// one. Implementations must honor ctx cancellation.
type Source interface {
	Next(ctx context.Context) ([]transcript.Token, error)
}

// Coordinator drives one request's response through the delivery state
// machine. Frames are delivered in non-decreasing utterance index order
// and never re-emitted; the last still-growing utterance run is held
// back until the source is drained so incremental output matches the
// one-shot render byte for byte.
type Coordinator struct {
	session  *Session
	renderer format.Renderer
	turns    []transcript.SpeakerTurn
	language string
	duration float64
	log      zerolog.Logger
}

// New creates a coordinator for one session. turns may be nil when
// diarization was not requested.
func New(sess *Session, r format.Renderer, turns []transcript.SpeakerTurn, language string, duration float64, log zerolog.Logger) *Coordinator {
	return &Coordinator{
		session:  sess,
		renderer: r,
		turns:    turns,
		language: language,
		duration: duration,
		log:      log.With().Str("request_id", sess.RequestID).Str("mode", string(sess.Mode)).Logger(),
	}
}

// Run consumes the source and writes the response. On ErrAborted
// nothing more is written; on an engine failure after streaming began,
// whatever content was produced is finalized and the end frame is still
// sent, and the engine error is returned for logging only.
func (c *Coordinator) Run(ctx context.Context, w http.ResponseWriter, src Source) error {
	if c.session.Mode == ModeSingle {
		return c.runSingle(ctx, w, src)
	}
	return c.runStreaming(ctx, w, src)
}

func (c *Coordinator) runSingle(ctx context.Context, w http.ResponseWriter, src Source) error {
	tokens, err := drain(ctx, src)
	if err != nil {
		if ctx.Err() != nil {
			c.session.closed = true
			return ErrAborted
		}
		return fmt.Errorf("engine: %w", err)
	}

	m := c.model(tokens, true)
	body, err := c.renderer.Render(m, 0)
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}

	w.Header().Set("Content-Type", c.renderer.ContentType())
	w.WriteHeader(http.StatusOK)
	w.Write(body)
	c.session.closed = true
	return nil
}

func (c *Coordinator) runStreaming(ctx context.Context, w http.ResponseWriter, src Source) error {
	flusher, _ := w.(http.Flusher)

	// Long-lived response: drop any server-wide write deadline.
	http.NewResponseController(w).SetWriteDeadline(time.Time{})

	if c.session.Mode == ModeSSE {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)
		// Comment prelude defeats proxy buffering before the first frame.
		io.WriteString(w, ":ok\n\n")
	} else {
		w.Header().Set("Content-Type", c.renderer.ContentType())
		w.WriteHeader(http.StatusOK)
	}
	flush(flusher)

	metrics.ActiveStreams.Inc()
	defer metrics.ActiveStreams.Dec()

	var (
		tokens    []transcript.Token
		engineErr error
	)
	for {
		if ctx.Err() != nil {
			return c.abort(w)
		}
		batch, err := src.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return c.abort(w)
			}
			engineErr = err
			break
		}
		tokens = append(tokens, batch...)

		// Emit every settled utterance; the last run can still grow as
		// more tokens arrive, so it is held back until EOF.
		utts := transcript.Align(tokens, c.turns, c.duration)
		if err := c.emit(ctx, w, flusher, utts, len(utts)-1); err != nil {
			return err
		}
	}

	// Finalizing: flush remaining utterances, then any format-specific
	// closing material, then the end frame. An upstream failure still
	// finalizes with whatever was produced.
	final := transcript.Align(tokens, c.turns, c.duration)
	if err := c.emit(ctx, w, flusher, final, len(final)); err != nil {
		return err
	}

	// Closing material (the terminal object for the JSON formats) is
	// only valid for a cleanly finished transcript.
	if engineErr == nil {
		m := c.model(tokens, true)
		tail, err := c.renderer.Render(m, len(final))
		if err == nil && len(tail) > 0 {
			c.writeFrame(w, flusher, tail)
		}
	}

	if c.session.Mode == ModeSSE {
		io.WriteString(w, "event: end\ndata: \n\n")
		flush(flusher)
	}
	c.session.closed = true

	if engineErr != nil {
		return fmt.Errorf("engine failed mid-stream: %w", engineErr)
	}
	return nil
}

// emit delivers utterances with Index > session.emitted, up to and
// including upTo, one frame per utterance.
func (c *Coordinator) emit(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, utts []transcript.Utterance, upTo int) error {
	for k := c.session.emitted + 1; k <= upTo; k++ {
		if ctx.Err() != nil {
			return c.abort(w)
		}
		partial := c.modelFromUtterances(utts[:k], false)
		payload, err := c.renderer.Render(partial, k-1)
		if err != nil {
			return fmt.Errorf("render utterance %d: %w", k, err)
		}
		if len(payload) > 0 {
			c.writeFrame(w, flusher, payload)
		}
		c.session.emitted = k
	}
	return nil
}

// abort handles client disconnect: best-effort end event if the
// transport is still writable, then close without further frames.
func (c *Coordinator) abort(w http.ResponseWriter) error {
	if c.session.Mode == ModeSSE && !c.session.closed {
		io.WriteString(w, "event: end\ndata: \n\n")
	}
	c.session.closed = true
	return ErrAborted
}

func (c *Coordinator) writeFrame(w http.ResponseWriter, flusher http.Flusher, payload []byte) {
	if c.session.Mode == ModeSSE {
		// Frames stay single-line: payload newlines become literal \n.
		escaped := strings.ReplaceAll(string(payload), "\n", `\n`)
		io.WriteString(w, "data: "+escaped+"\n\n")
	} else {
		w.Write(payload)
	}
	flush(flusher)
	metrics.StreamFramesTotal.Inc()
}

func (c *Coordinator) model(tokens []transcript.Token, final bool) *transcript.Transcript {
	return c.modelFromUtterances(transcript.Align(tokens, c.turns, c.duration), final)
}

func (c *Coordinator) modelFromUtterances(utts []transcript.Utterance, final bool) *transcript.Transcript {
	return transcript.New(utts, c.language, c.duration, final)
}

func drain(ctx context.Context, src Source) ([]transcript.Token, error) {
	var tokens []transcript.Token
	for {
		batch, err := src.Next(ctx)
		if err == io.EOF {
			return tokens, nil
		}
		if err != nil {
			return tokens, err
		}
		tokens = append(tokens, batch...)
	}
}

func flush(f http.Flusher) {
	if f != nil {
		f.Flush()
	}
}
