// Package format renders transcripts into the wire encodings of the
// OpenAI transcription API: json, text, srt, vtt, and verbose_json.
package format

import (
	"fmt"

	"github.com/snarg/whisperd/internal/transcript"
)

// Format identifies one of the supported response encodings.
type Format string

const (
	JSON        Format = "json"
	Text        Format = "text"
	SRT         Format = "srt"
	VTT         Format = "vtt"
	VerboseJSON Format = "verbose_json"
)

// InvalidFormatError reports an unknown response_format value. It maps
// to HTTP 400 and is detected before any engine work starts.
type InvalidFormatError struct {
	Value string
}

func (e *InvalidFormatError) Error() string {
	return fmt.Sprintf("invalid response_format %q", e.Value)
}

// Parse validates a response_format form value. Empty defaults to json.
func Parse(v string) (Format, error) {
	switch Format(v) {
	case "":
		return JSON, nil
	case JSON, Text, SRT, VTT, VerboseJSON:
		return Format(v), nil
	default:
		return "", &InvalidFormatError{Value: v}
	}
}

// Renderer turns a partial or complete transcript into wire bytes.
// Render emits only utterances with Index > sinceIndex; callers track
// sinceIndex per session so content is never re-emitted. A nil result
// means nothing to emit for this call.
type Renderer interface {
	ContentType() string
	Render(m *transcript.Transcript, sinceIndex int) ([]byte, error)
}

// New returns the renderer for the given format.
func New(f Format) Renderer {
	switch f {
	case Text:
		return textRenderer{}
	case SRT:
		return srtRenderer{}
	case VTT:
		return vttRenderer{}
	case VerboseJSON:
		return verboseRenderer{}
	default:
		return jsonRenderer{}
	}
}
