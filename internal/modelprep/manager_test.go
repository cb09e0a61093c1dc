package modelprep

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestManager(t *testing.T, warm WarmFunc) (*Manager, string) {
	t.Helper()
	dir := t.TempDir()
	for _, name := range []string{"ggml-base.en.bin", "ggml-large-v3.bin", ".hidden"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("model"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	m := NewManager(dir, NewGuard(), warm, zerolog.Nop())
	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(m.Stop)
	return m, dir
}

func TestManager_ListAndGet(t *testing.T) {
	m, _ := newTestManager(t, nil)

	models := m.List()
	if len(models) != 2 {
		t.Fatalf("models = %d, want 2 (hidden files skipped)", len(models))
	}
	if models[0].ID != "ggml-base.en" || models[1].ID != "ggml-large-v3" {
		t.Errorf("ids = %v, %v", models[0].ID, models[1].ID)
	}

	if _, ok := m.Get("ggml-base.en"); !ok {
		t.Error("Get should find installed model")
	}
	if _, ok := m.Get("missing"); ok {
		t.Error("Get should miss unknown model")
	}
}

func TestManager_PrepareUnknownModel(t *testing.T) {
	m, _ := newTestManager(t, nil)
	if err := m.Prepare(context.Background(), "nope"); err == nil {
		t.Error("expected error for unknown model")
	}
}

func TestManager_PrepareWarms(t *testing.T) {
	var warmed []string
	m, _ := newTestManager(t, func(ctx context.Context, id string) error {
		warmed = append(warmed, id)
		return nil
	})

	if err := m.Prepare(context.Background(), "ggml-base.en"); err != nil {
		t.Fatal(err)
	}
	if len(warmed) != 1 || warmed[0] != "ggml-base.en" {
		t.Errorf("warmed = %v", warmed)
	}
}

func TestManager_DiscoverNewModel(t *testing.T) {
	m, dir := newTestManager(t, nil)

	if err := os.WriteFile(filepath.Join(dir, "ggml-tiny.bin"), []byte("model"), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if m.Has("ggml-tiny") {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Error("new model file was not discovered")
}
