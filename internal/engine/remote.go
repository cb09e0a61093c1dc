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

// Remote calls an OpenAI-compatible /v1/audio/transcriptions upstream
// (faster-whisper server, speaches, or the OpenAI API itself) and
// adapts its verbose_json word timestamps into tokens.
type Remote struct {
	url     string
	model   string
	apiKey  string
	timeout time.Duration
	client  *http.Client
}

// remoteResponse is the upstream verbose_json body.
type remoteResponse struct {
	Text     string       `json:"text"`
	Language string       `json:"language"`
	Duration float64      `json:"duration"`
	Words    []remoteWord `json:"words"`
}

type remoteWord struct {
	Word        string  `json:"word"`
	Start       float64 `json:"start"`
	End         float64 `json:"end"`
	Probability float64 `json:"probability"`
}

// NewRemote creates an upstream transcription client. apiKey may be
// empty for local upstreams.
func NewRemote(url, model, apiKey string, timeout time.Duration) *Remote {
	return &Remote{
		url:     url,
		model:   model,
		apiKey:  apiKey,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}
}

func (rc *Remote) Name() string { return "remote" }

func (rc *Remote) Model() string { return rc.model }

// Transcribe sends an audio file upstream and returns the result with
// word-level tokens. Only non-default parameters are sent, so this works
// with any OpenAI-compatible endpoint.
func (rc *Remote) Transcribe(ctx context.Context, audioPath string, opts Options) (*Result, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("open audio file: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("copy audio data: %w", err)
	}

	model := opts.Model
	if model == "" {
		model = rc.model
	}
	if model != "" {
		w.WriteField("model", model)
	}
	if opts.Language != "" {
		w.WriteField("language", opts.Language)
	}
	if opts.Prompt != "" {
		w.WriteField("prompt", opts.Prompt)
	}
	w.WriteField("temperature", fmt.Sprintf("%.2f", opts.Temperature))
	w.WriteField("response_format", "verbose_json")
	w.WriteField("timestamp_granularities[]", "word")
	w.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rc.url, &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	if rc.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+rc.apiKey)
	}

	resp, err := rc.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("upstream error (status %d): %s", resp.StatusCode, string(body))
	}

	var parsed remoteResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	result := &Result{
		Text:     parsed.Text,
		Language: parsed.Language,
		Duration: parsed.Duration,
		Tokens:   make([]transcript.Token, 0, len(parsed.Words)),
	}
	for i, word := range parsed.Words {
		text := word.Word
		if i > 0 {
			// Upstream words are bare; restore spacing so token texts
			// concatenate back into readable transcript runs.
			text = " " + text
		}
		conf := word.Probability
		if conf == 0 {
			conf = 1
		}
		result.Tokens = append(result.Tokens, transcript.Token{
			Text:       text,
			ID:         i,
			Start:      word.Start,
			End:        word.End,
			Confidence: conf,
		})
	}
	return result, nil
}
