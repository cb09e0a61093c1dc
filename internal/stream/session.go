// Package stream owns delivery of one transcription response: it
// negotiates SSE vs. chunked vs. single delivery, drives incremental
// renderer calls as token batches arrive, and finalizes the stream.
package stream

import (
	"strings"

	"github.com/google/uuid"
	"github.com/snarg/whisperd/internal/format"
)

// Mode is how a response is delivered to the client.
type Mode string

const (
	ModeSingle  Mode = "single"
	ModeSSE     Mode = "sse"
	ModeChunked Mode = "chunked"
)

// Negotiate picks the delivery mode from the request's stream flag and
// Accept header. Streaming clients that do not accept text/event-stream
// get a plain chunked body in the format's own content type.
func Negotiate(streamRequested bool, accept string) Mode {
	if !streamRequested {
		return ModeSingle
	}
	if acceptsEventStream(accept) {
		return ModeSSE
	}
	return ModeChunked
}

func acceptsEventStream(accept string) bool {
	for _, part := range strings.Split(accept, ",") {
		mediaRange := part
		if i := strings.IndexByte(part, ';'); i >= 0 {
			mediaRange = part[:i]
		}
		if strings.TrimSpace(mediaRange) == "text/event-stream" {
			return true
		}
	}
	return false
}

// Session tracks delivery state for one request. It is created per
// request and discarded once the response is flushed or aborted.
type Session struct {
	RequestID string
	Format    format.Format
	Mode      Mode

	emitted int // index of the last utterance sent
	closed  bool
}

// NewSession negotiates the delivery mode and assigns a request ID.
func NewSession(f format.Format, streamRequested bool, accept string) *Session {
	return &Session{
		RequestID: uuid.NewString(),
		Format:    f,
		Mode:      Negotiate(streamRequested, accept),
	}
}

// Emitted returns the index of the last utterance delivered.
func (s *Session) Emitted() int { return s.emitted }

// Closed reports whether the session has finished.
func (s *Session) Closed() bool { return s.closed }
