// Package engine defines the narrow interfaces through which the
// transcription and diarization engines are consumed, plus HTTP-backed
// providers for OpenAI-compatible upstreams and ElevenLabs scribe.
package engine

import (
	"context"
	"io"
	"sort"

	"github.com/snarg/whisperd/internal/transcript"
)

// Options are per-request transcription parameters.
type Options struct {
	Model       string
	Language    string
	Prompt      string
	Temperature float64
}

// Result is the complete output of one engine invocation. Tokens is nil
// when the engine produced only a plain transcript without timestamps.
type Result struct {
	Text     string
	Language string
	Duration float64
	Tokens   []transcript.Token
}

// Provider is the interface for speech-to-text backends.
type Provider interface {
	Transcribe(ctx context.Context, audioPath string, opts Options) (*Result, error)
	Name() string
	Model() string
}

// Diarizer produces speaker-labeled intervals for an audio file.
type Diarizer interface {
	Diarize(ctx context.Context, audioPath string, opts Options) ([]transcript.SpeakerTurn, error)
}

// DiarizingProvider yields speaker turns alongside the transcription in
// a single engine invocation.
type DiarizingProvider interface {
	Provider
	TranscribeWithSpeakers(ctx context.Context, audioPath string, opts Options) (*Result, []transcript.SpeakerTurn, error)
}

// TokenBatcher replays a completed result as successive time-ordered
// batches, so one-shot providers still feed incremental delivery. It
// satisfies the stream coordinator's Source contract: batches are
// non-decreasing in time across calls and io.EOF follows the last one.
type TokenBatcher struct {
	tokens []transcript.Token
	size   int
	pos    int
}

// NewTokenBatcher creates a batcher over a token set. Tokens are sorted
// by start time up front; size <= 0 means one batch.
func NewTokenBatcher(tokens []transcript.Token, size int) *TokenBatcher {
	sorted := make([]transcript.Token, len(tokens))
	copy(sorted, tokens)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })
	if size <= 0 {
		size = len(sorted)
	}
	return &TokenBatcher{tokens: sorted, size: size}
}

func (b *TokenBatcher) Next(ctx context.Context) ([]transcript.Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if b.pos >= len(b.tokens) {
		return nil, io.EOF
	}
	end := b.pos + b.size
	if end > len(b.tokens) {
		end = len(b.tokens)
	}
	batch := b.tokens[b.pos:end]
	b.pos = end
	return batch, nil
}

// ErrorSource immediately reports an engine failure to the coordinator,
// which lets streaming sessions open and terminate cleanly when the
// engine never produced anything.
type ErrorSource struct {
	Err error
}

func (s ErrorSource) Next(ctx context.Context) ([]transcript.Token, error) {
	return nil, s.Err
}
