// Package session persists the resumable reconciliation state to a JSON file.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/flamableconcrete/Mealie-Ingredient-Parser/internal/model"
)

// Default location of the session file, relative to the project directory.
const (
	DefaultDir  = ".ai"
	DefaultFile = "session-state.json"
)

// Store reads and writes one session file. Saves are atomic: the state is
// written to a temporary sibling, synced and renamed over the target.
type Store struct {
	dir  string
	path string
}

// NewStore returns a store for dir/session-state.json. An empty dir means DefaultDir.
func NewStore(dir string) *Store {
	if dir == "" {
		dir = DefaultDir
	}
	return &Store{
		dir:  dir,
		path: filepath.Join(dir, DefaultFile),
	}
}

// Path returns the session file location.
func (s *Store) Path() string {
	return s.path
}

// Save writes state atomically, creating the directory if needed.
func (s *Store) Save(state *model.SessionState) error {
	if state == nil {
		return fmt.Errorf("session state cannot be nil")
	}

	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	state.Touch()
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := writeSynced(tmp, data); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace session file: %w", err)
	}

	slog.Debug("Saved session", "session_id", state.ID, "path", s.path)
	return nil
}

func writeSynced(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create temp session file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write session: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to sync session: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close session file: %w", err)
	}
	return nil
}

// Load returns the saved session, or nil when there is none.
// An unreadable or invalid file is logged and treated as absent so a fresh
// session can start. Only I/O failures other than a missing file are returned.
func (s *Store) Load() (*model.SessionState, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	var state model.SessionState
	if err := json.Unmarshal(data, &state); err != nil {
		slog.Warn("Ignoring corrupt session file", "path", s.path, "error", err)
		return nil, nil
	}
	if err := state.Validate(); err != nil {
		slog.Warn("Ignoring invalid session file", "path", s.path, "error", err)
		return nil, nil
	}
	state.Normalize()

	slog.Info("Loaded session", "session_id", state.ID, "handled", state.TotalHandled())
	return &state, nil
}

// Clear deletes the session file. A missing file is not an error.
func (s *Store) Clear() error {
	err := os.Remove(s.path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("failed to clear session: %w", err)
}

// Exists reports whether a session file is present.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}
