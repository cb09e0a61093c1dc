package modelprep

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Model describes one installed model, in the OpenAI list-models shape.
type Model struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

// WarmFunc performs the engine-side work of switching to a model.
type WarmFunc func(ctx context.Context, modelID string) error

// Manager tracks the models installed under a directory and prepares
// them through the Guard. An fsnotify watcher keeps the available set
// current, so models dropped into the directory become visible without
// a restart.
type Manager struct {
	dir   string
	guard *Guard
	warm  WarmFunc
	log   zerolog.Logger

	mu     sync.RWMutex
	models map[string]Model

	watcher *fsnotify.Watcher
	done    chan struct{}
}

func NewManager(dir string, guard *Guard, warm WarmFunc, log zerolog.Logger) *Manager {
	return &Manager{
		dir:    dir,
		guard:  guard,
		warm:   warm,
		log:    log.With().Str("component", "models").Logger(),
		models: make(map[string]Model),
	}
}

// Start scans the models directory and begins watching it for changes.
func (m *Manager) Start() error {
	if err := m.rescan(); err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(m.dir); err != nil {
		w.Close()
		return fmt.Errorf("watch %s: %w", m.dir, err)
	}
	m.watcher = w
	m.done = make(chan struct{})

	go m.watch()
	m.log.Info().Str("dir", m.dir).Int("models", len(m.models)).Msg("model discovery started")
	return nil
}

// Stop shuts the watcher down.
func (m *Manager) Stop() {
	if m.watcher != nil {
		m.watcher.Close()
		<-m.done
	}
}

func (m *Manager) watch() {
	defer close(m.done)
	for {
		select {
		case ev, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				if err := m.rescan(); err != nil {
					m.log.Warn().Err(err).Msg("model rescan failed")
				}
			}
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.log.Warn().Err(err).Msg("model watcher error")
		}
	}
}

func (m *Manager) rescan() error {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return fmt.Errorf("read models dir: %w", err)
	}

	found := make(map[string]Model)
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		id := modelID(e.Name())
		created := time.Now().Unix()
		if info, err := e.Info(); err == nil {
			created = info.ModTime().Unix()
		}
		found[id] = Model{ID: id, Object: "model", Created: created, OwnedBy: "whisperd"}
	}

	m.mu.Lock()
	m.models = found
	m.mu.Unlock()
	return nil
}

// modelID strips the file extension: ggml-base.en.bin -> ggml-base.en.
func modelID(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// Has reports whether a model is installed.
func (m *Manager) Has(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.models[id]
	return ok
}

// Get returns one installed model.
func (m *Manager) Get(id string) (Model, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mod, ok := m.models[id]
	return mod, ok
}

// List returns the installed models sorted by ID.
func (m *Manager) List() []Model {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Model, 0, len(m.models))
	for _, mod := range m.models {
		out = append(out, mod)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Prepare makes a model active through the Guard. The "model ready" log
// line is suppressed when the model is already the last applied one, so
// repeated requests for the active model stay quiet.
func (m *Manager) Prepare(ctx context.Context, id string) error {
	if !m.Has(id) {
		return fmt.Errorf("unknown model %q", id)
	}

	last, _ := m.guard.LastApplied()
	wasActive := last == id && m.guard.IsPrepared(id)

	if err := m.guard.Prepare(ctx, id, func(ctx context.Context) error {
		if m.warm == nil {
			return nil
		}
		return m.warm(ctx, id)
	}); err != nil {
		return fmt.Errorf("prepare %s: %w", id, err)
	}

	if !wasActive {
		m.log.Info().Str("model", id).Msg("model ready")
	}
	return nil
}
