package fields

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

//go:embed default_fields.json
var defaultTableJSON []byte

// Parse decodes and validates a field table. Unknown JSON keys are rejected
// so a typo in a selector table fails loudly instead of silently dropping a rule.
func Parse(data []byte) (*Table, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var t Table
	if err := dec.Decode(&t); err != nil {
		return nil, fmt.Errorf("fields: decode table: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("fields: invalid table %q: %w", t.Version, err)
	}
	return &t, nil
}

// Default returns the embedded field table.
func Default() *Table {
	t, err := Parse(defaultTableJSON)
	if err != nil {
		panic(err)
	}
	return t
}

// Store holds the active field table and swaps it atomically on reload.
// It is safe for concurrent use.
type Store struct {
	path    string
	current atomic.Pointer[Table]

	mu   sync.Mutex
	data []byte // raw bytes of the active table
}

// NewStore loads the table from path, or the embedded default when path is empty.
func NewStore(path string) (*Store, error) {
	s := &Store{path: path}
	if path == "" {
		s.current.Store(Default())
		return s, nil
	}
	if _, err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Current returns the active table. Callers must treat it as read-only.
func (s *Store) Current() *Table {
	return s.current.Load()
}

// Reload re-reads the table file and swaps it in if its content changed.
// On a read, parse or validation error the previous table stays active.
func (s *Store) Reload() (bool, error) {
	if s.path == "" {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return false, fmt.Errorf("fields: read %s: %w", s.path, err)
	}
	if s.data != nil && bytes.Equal(data, s.data) {
		return false, nil
	}
	t, err := Parse(data)
	if err != nil {
		return false, err
	}

	s.current.Store(t)
	s.data = data
	return true, nil
}

// Watch reloads the table whenever its file is written or replaced, until
// ctx is done. The parent directory is watched so editors and deploy tools
// that save by renaming a temp file over the table are picked up too.
// Watch returns once the watcher is registered.
func (s *Store) Watch(ctx context.Context) error {
	if s.path == "" {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fields: create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(s.path)); err != nil {
		w.Close()
		return fmt.Errorf("fields: watch %s: %w", filepath.Dir(s.path), err)
	}
	go s.watch(ctx, w)
	return nil
}

func (s *Store) watch(ctx context.Context, w *fsnotify.Watcher) {
	defer w.Close()
	name := filepath.Clean(s.path)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != name || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			changed, err := s.Reload()
			if err != nil {
				slog.Warn("fields: reload failed, keeping previous table",
					"path", s.path, "version", s.Current().Version, "error", err)
				continue
			}
			if changed {
				slog.Info("fields: table reloaded",
					"path", s.path, "version", s.Current().Version, "fields", len(s.Current().Fields))
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			slog.Warn("fields: watcher error", "path", s.path, "error", err)
		}
	}
}
