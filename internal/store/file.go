package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/stemsi/exstem-attempt/internal/model"
)

// FileStore keeps the last attempt of the terminal user in one JSON file.
// The student id is ignored: a terminal has one user.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a store writing to path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// DefaultFilePath returns ~/.exstem/last_attempt.json.
func DefaultFilePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".exstem", "last_attempt.json"), nil
}

func (s *FileStore) Get(_ context.Context, _ int) (*model.LastAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read last attempt: %w", err)
	}

	var attempt model.LastAttempt
	if err := json.Unmarshal(raw, &attempt); err != nil {
		return nil, fmt.Errorf("decode last attempt: %w", err)
	}
	return &attempt, nil
}

func (s *FileStore) Put(_ context.Context, _ int, attempt *model.LastAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.MarshalIndent(attempt, "", "  ")
	if err != nil {
		return fmt.Errorf("encode last attempt: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}

	// Write-then-rename so a crash never leaves half a blob behind.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("write last attempt: %w", err)
	}
	return os.Rename(tmp, s.path)
}
