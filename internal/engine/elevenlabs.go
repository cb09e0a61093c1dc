package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/snarg/whisperd/internal/transcript"
)

const elevenLabsSTTEndpoint = "https://api.elevenlabs.io/v1/speech-to-text"

// ElevenLabs calls the ElevenLabs speech-to-text API. Scribe words
// carry speaker ids, so this provider also serves as the diarization
// engine: consecutive same-speaker words collapse into speaker turns.
type ElevenLabs struct {
	apiKey   string
	model    string // "scribe_v1" or "scribe_v2"
	endpoint string
	timeout  time.Duration
	client   *http.Client
}

// elevenlabsResponse is the JSON response from the ElevenLabs STT API.
type elevenlabsResponse struct {
	LanguageCode        string           `json:"language_code"`
	LanguageProbability float64          `json:"language_probability"`
	Text                string           `json:"text"`
	Words               []elevenlabsWord `json:"words"`
}

// elevenlabsWord is a word or spacing entry from ElevenLabs.
type elevenlabsWord struct {
	Text        string  `json:"text"`
	Type        string  `json:"type"` // "word" or "spacing"
	StartTimeMs float64 `json:"start_time_ms"`
	EndTimeMs   float64 `json:"end_time_ms"`
	SpeakerID   string  `json:"speaker_id"`
}

// NewElevenLabs creates an ElevenLabs STT client.
func NewElevenLabs(apiKey, model string, timeout time.Duration) *ElevenLabs {
	return &ElevenLabs{
		apiKey:   apiKey,
		model:    model,
		endpoint: elevenLabsSTTEndpoint,
		timeout:  timeout,
		client:   &http.Client{Timeout: timeout},
	}
}

func (el *ElevenLabs) Name() string { return "elevenlabs" }

func (el *ElevenLabs) Model() string { return el.model }

func (el *ElevenLabs) Transcribe(ctx context.Context, audioPath string, opts Options) (*Result, error) {
	result, _, err := el.TranscribeWithSpeakers(ctx, audioPath, opts)
	return result, err
}

// Diarize runs a full scribe pass and returns only the speaker turns.
// Prefer TranscribeWithSpeakers when the transcript is needed too.
func (el *ElevenLabs) Diarize(ctx context.Context, audioPath string, opts Options) ([]transcript.SpeakerTurn, error) {
	_, turns, err := el.TranscribeWithSpeakers(ctx, audioPath, opts)
	return turns, err
}

// TranscribeWithSpeakers sends an audio file to the ElevenLabs STT API
// and returns tokens plus the speaker timeline in one call.
func (el *ElevenLabs) TranscribeWithSpeakers(ctx context.Context, audioPath string, opts Options) (*Result, []transcript.SpeakerTurn, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open audio file: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, nil, fmt.Errorf("copy audio data: %w", err)
	}

	w.WriteField("model_id", el.model)
	if opts.Language != "" {
		w.WriteField("language_code", opts.Language)
	}
	w.WriteField("diarize", "true")
	w.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, el.endpoint, &buf)
	if err != nil {
		return nil, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("xi-api-key", el.apiKey)

	resp, err := el.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("elevenlabs request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("elevenlabs API error (status %d): %s", resp.StatusCode, string(body))
	}

	var parsed elevenlabsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, nil, fmt.Errorf("decode response: %w", err)
	}

	result := &Result{
		Text:     parsed.Text,
		Language: parsed.LanguageCode,
	}
	for i, word := range parsed.Words {
		end := word.EndTimeMs / 1000
		result.Tokens = append(result.Tokens, transcript.Token{
			Text:       word.Text,
			ID:         i,
			Start:      word.StartTimeMs / 1000,
			End:        end,
			Confidence: parsed.LanguageProbability,
		})
		if end > result.Duration {
			result.Duration = end
		}
	}
	return result, speakerTurns(parsed.Words, parsed.LanguageProbability), nil
}

// speakerTurns collapses consecutive same-speaker word entries into
// turns. Spacing entries inherit the surrounding speaker and never open
// a turn of their own.
func speakerTurns(words []elevenlabsWord, quality float64) []transcript.SpeakerTurn {
	var turns []transcript.SpeakerTurn
	for _, word := range words {
		if word.Type == "spacing" || word.SpeakerID == "" {
			continue
		}
		start := word.StartTimeMs / 1000
		end := word.EndTimeMs / 1000
		if n := len(turns); n > 0 && turns[n-1].Speaker == word.SpeakerID {
			turns[n-1].End = end
			continue
		}
		turns = append(turns, transcript.SpeakerTurn{
			Speaker: word.SpeakerID,
			Start:   start,
			End:     end,
			Quality: quality,
		})
	}
	return turns
}
