package format

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/snarg/whisperd/internal/transcript"
)

// jsonRenderer emits {"text": ...} on the final call only. In streaming
// mode the whole object travels as one event; incremental calls yield
// nothing.
type jsonRenderer struct{}

func (jsonRenderer) ContentType() string { return "application/json" }

func (jsonRenderer) Render(m *transcript.Transcript, sinceIndex int) ([]byte, error) {
	if !m.Final {
		return nil, nil
	}
	return json.Marshal(struct {
		Text string `json:"text"`
	}{Text: m.FullText})
}

// textRenderer emits raw text. Incremental calls emit only the delta
// for new utterances; summing all deltas reproduces the one-shot render
// byte for byte.
type textRenderer struct{}

func (textRenderer) ContentType() string { return "text/plain; charset=utf-8" }

func (textRenderer) Render(m *transcript.Transcript, sinceIndex int) ([]byte, error) {
	if sinceIndex == 0 {
		if len(m.Utterances) == 0 && !m.Final {
			return nil, nil
		}
		return []byte(m.FullText), nil
	}
	var texts []string
	for _, u := range m.Utterances {
		if u.Index > sinceIndex {
			texts = append(texts, u.Text)
		}
	}
	if len(texts) == 0 {
		return nil, nil
	}
	delta := strings.Join(texts, " ")
	if prev := m.Utterances[sinceIndex-1].Text; !endsInSpace(prev) {
		delta = " " + delta
	}
	return []byte(delta), nil
}

func endsInSpace(s string) bool {
	if s == "" {
		return false
	}
	r := []rune(s)
	return unicode.IsSpace(r[len(r)-1])
}

// srtRenderer emits one SubRip cue block per new utterance. Cue numbers
// are the global utterance indices, so numbering stays monotonic across
// a whole streamed session.
type srtRenderer struct{}

func (srtRenderer) ContentType() string { return "application/x-subrip" }

func (srtRenderer) Render(m *transcript.Transcript, sinceIndex int) ([]byte, error) {
	var b strings.Builder
	for _, u := range m.Utterances {
		if u.Index <= sinceIndex {
			continue
		}
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", u.Index, srtTimestamp(u.Start), srtTimestamp(u.End), u.Text)
	}
	if b.Len() == 0 {
		return nil, nil
	}
	return []byte(b.String()), nil
}

// vttRenderer emits WebVTT cues without numeric index lines. The
// WEBVTT header is written only on the first call of a session.
type vttRenderer struct{}

func (vttRenderer) ContentType() string { return "text/vtt" }

func (vttRenderer) Render(m *transcript.Transcript, sinceIndex int) ([]byte, error) {
	var b strings.Builder
	if sinceIndex == 0 {
		b.WriteString("WEBVTT\n\n")
	}
	for _, u := range m.Utterances {
		if u.Index <= sinceIndex {
			continue
		}
		fmt.Fprintf(&b, "%s --> %s\n%s\n\n", vttTimestamp(u.Start), vttTimestamp(u.End), u.Text)
	}
	if b.Len() == 0 {
		return nil, nil
	}
	return []byte(b.String()), nil
}

type verboseSegment struct {
	ID    int     `json:"id"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

type verboseResponse struct {
	Task     string           `json:"task"`
	Language string           `json:"language"`
	Duration float64          `json:"duration"`
	Text     string           `json:"text"`
	Segments []verboseSegment `json:"segments"`
}

type verboseDelta struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
	Speaker string  `json:"speaker,omitempty"`
}

// verboseRenderer emits one JSON object per new utterance on
// incremental calls and the full {task, language, duration, text,
// segments} object on the final call.
type verboseRenderer struct{}

func (verboseRenderer) ContentType() string { return "application/json" }

func (verboseRenderer) Render(m *transcript.Transcript, sinceIndex int) ([]byte, error) {
	if m.Final {
		resp := verboseResponse{
			Task:     "transcribe",
			Language: m.Language,
			Duration: m.Duration,
			Text:     m.FullText,
			Segments: make([]verboseSegment, 0, len(m.Utterances)),
		}
		for _, u := range m.Utterances {
			resp.Segments = append(resp.Segments, verboseSegment{
				ID:    u.Index,
				Start: u.Start,
				End:   u.End,
				Text:  u.Text,
			})
		}
		return json.Marshal(resp)
	}

	var b strings.Builder
	for _, u := range m.Utterances {
		if u.Index <= sinceIndex {
			continue
		}
		line, err := json.Marshal(verboseDelta{
			Start:   u.Start,
			End:     u.End,
			Text:    u.Text,
			Speaker: u.Speaker,
		})
		if err != nil {
			return nil, err
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.Write(line)
	}
	if b.Len() == 0 {
		return nil, nil
	}
	return []byte(b.String()), nil
}
