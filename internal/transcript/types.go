package transcript

import "strings"

// Token is the smallest timed unit of recognized speech text emitted by a
// transcription engine. Tokens carry their own leading whitespace, so
// concatenating token texts reproduces the engine's spacing. Engines may
// emit tokens out of order; consumers must sort before processing.
type Token struct {
	Text       string
	ID         int
	Start      float64
	End        float64
	Confidence float64
}

// SpeakerTurn is a speaker-labeled time interval from a diarization pass.
// Turns within one pass do not overlap, but gaps between them are allowed
// and they need not cover the full audio duration.
type SpeakerTurn struct {
	Speaker string
	Start   float64
	End     float64
	Quality float64
}

// Utterance is a contiguous speaker-attributed span of transcript text.
// Start and End are copied from the owning turn (or, without diarization,
// taken from the token span) and are never recomputed from token extrema.
// Index is the 1-based emission order used for subtitle numbering.
type Utterance struct {
	Speaker string // empty when diarization was not used
	Text    string
	Start   float64
	End     float64
	Index   int
}

// Transcript is the intermediate representation consumed by all format
// renderers. Final=false marks a partial view during streaming.
type Transcript struct {
	FullText   string
	Utterances []Utterance
	Language   string
	Duration   float64
	Final      bool
}

// New builds a Transcript over the given utterances. FullText is the
// utterance texts joined with single spaces.
func New(utts []Utterance, language string, duration float64, final bool) *Transcript {
	texts := make([]string, len(utts))
	for i, u := range utts {
		texts[i] = u.Text
	}
	return &Transcript{
		FullText:   strings.Join(texts, " "),
		Utterances: utts,
		Language:   language,
		Duration:   duration,
		Final:      final,
	}
}
