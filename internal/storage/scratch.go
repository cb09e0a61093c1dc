// Package storage holds uploaded audio for the lifetime of a single
// request. Artifacts are owned by the request that created them and are
// removed on every exit path.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const scratchPrefix = "upload-"

// Scratch is a directory-backed store for per-request audio artifacts.
type Scratch struct {
	dir string
}

// NewScratch creates the scratch directory if needed.
func NewScratch(dir string) (*Scratch, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return &Scratch{dir: dir}, nil
}

// Dir returns the scratch directory path.
func (s *Scratch) Dir() string { return s.dir }

// Put writes data to a fresh scratch file and returns its path together
// with a cleanup func. Callers must run cleanup on success, engine
// failure, and client cancellation alike.
func (s *Scratch) Put(data []byte, ext string) (string, func(), error) {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	f, err := os.CreateTemp(s.dir, scratchPrefix+"*"+ext)
	if err != nil {
		return "", nil, fmt.Errorf("create scratch file: %w", err)
	}
	path := f.Name()
	cleanup := func() { os.Remove(path) }

	if _, err := f.Write(data); err != nil {
		f.Close()
		cleanup()
		return "", nil, fmt.Errorf("write scratch file: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("close scratch file: %w", err)
	}
	return path, cleanup, nil
}

// Sweep removes leftover artifacts from a previous run and returns how
// many were deleted.
func (s *Scratch) Sweep() int {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0
	}
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), scratchPrefix) {
			continue
		}
		if os.Remove(filepath.Join(s.dir, e.Name())) == nil {
			removed++
		}
	}
	return removed
}
