package engine

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/snarg/whisperd/internal/transcript"
)

func tokenAt(start float64) transcript.Token {
	return transcript.Token{Text: "w", Start: start, End: start + 0.5}
}

func writeTestAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.wav")
	if err := os.WriteFile(path, []byte("RIFF-fake-audio"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRemote_Transcribe(t *testing.T) {
	var gotForm map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
		}
		gotForm = map[string]string{}
		for k, v := range r.MultipartForm.Value {
			gotForm[k] = v[0]
		}
		if _, _, err := r.FormFile("file"); err != nil {
			t.Errorf("missing file field: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"text":     "Hello there! second speaker again",
			"language": "en",
			"duration": 3.0,
			"words": []map[string]any{
				{"word": "Hello", "start": 0.0, "end": 0.3, "probability": 0.98},
				{"word": "there!", "start": 0.3, "end": 1.05, "probability": 0.95},
			},
		})
	}))
	defer srv.Close()

	rc := NewRemote(srv.URL, "whisper-1", "", 5*time.Second)
	res, err := rc.Transcribe(context.Background(), writeTestAudio(t), Options{Language: "en", Temperature: 0.2})
	if err != nil {
		t.Fatal(err)
	}

	if gotForm["response_format"] != "verbose_json" {
		t.Errorf("response_format = %q", gotForm["response_format"])
	}
	if gotForm["timestamp_granularities[]"] != "word" {
		t.Errorf("timestamp_granularities = %q", gotForm["timestamp_granularities[]"])
	}
	if gotForm["model"] != "whisper-1" || gotForm["language"] != "en" {
		t.Errorf("form = %v", gotForm)
	}

	if res.Language != "en" || res.Duration != 3.0 {
		t.Errorf("result header = %+v", res)
	}
	if len(res.Tokens) != 2 {
		t.Fatalf("tokens = %d, want 2", len(res.Tokens))
	}
	if res.Tokens[0].Text != "Hello" {
		t.Errorf("token 0 = %q", res.Tokens[0].Text)
	}
	if res.Tokens[1].Text != " there!" {
		t.Errorf("token 1 = %q, want leading space restored", res.Tokens[1].Text)
	}
	if res.Tokens[1].Confidence != 0.95 {
		t.Errorf("token 1 confidence = %f", res.Tokens[1].Confidence)
	}
}

func TestRemote_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"boom"}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	rc := NewRemote(srv.URL, "whisper-1", "", 5*time.Second)
	_, err := rc.Transcribe(context.Background(), writeTestAudio(t), Options{})
	if err == nil {
		t.Fatal("expected error for upstream 500")
	}
}

func TestTokenBatcher(t *testing.T) {
	res := &Result{Tokens: nil}
	for i := 0; i < 5; i++ {
		res.Tokens = append(res.Tokens, tokenAt(float64(4-i))) // reversed order
	}

	b := NewTokenBatcher(res.Tokens, 2)
	var starts []float64
	for {
		batch, err := b.Next(context.Background())
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		for _, tk := range batch {
			starts = append(starts, tk.Start)
		}
	}

	if len(starts) != 5 {
		t.Fatalf("tokens = %d, want 5", len(starts))
	}
	for i := 1; i < len(starts); i++ {
		if starts[i] < starts[i-1] {
			t.Errorf("batches out of order: %v", starts)
		}
	}
}

func TestTokenBatcher_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := NewTokenBatcher([]transcript.Token{tokenAt(0)}, 1)
	if _, err := b.Next(ctx); err != context.Canceled {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
