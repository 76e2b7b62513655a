package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// MemoryBackend keeps the session in process memory. Useful in tests.
type MemoryBackend struct {
	mu      sync.Mutex
	value   Session
	present bool
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

func (m *MemoryBackend) Load() (Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.value, m.present, nil
}

func (m *MemoryBackend) Save(s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.value = s
	m.present = true
	return nil
}

func (m *MemoryBackend) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.value = Session{}
	m.present = false
	return nil
}

// FileBackend persists the session as a JSON file readable only by the owner.
type FileBackend struct {
	path string
}

func NewFileBackend(path string) (*FileBackend, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("session file path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	return &FileBackend{path: path}, nil
}

func (f *FileBackend) Path() string { return f.path }

func (f *FileBackend) Load() (Session, bool, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Session{}, false, nil
		}
		return Session{}, false, fmt.Errorf("read session file: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return Session{}, false, nil
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return Session{}, false, fmt.Errorf("parse session file: %w", err)
	}
	if strings.TrimSpace(s.Token) == "" {
		return Session{}, false, nil
	}
	return s, true, nil
}

// Save writes to a temp file and renames it over the target, so a crash never leaves a
// half-written session behind.
func (f *FileBackend) Save(s Session) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".session-*.json")
	if err != nil {
		return fmt.Errorf("create temp session file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod session file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write session file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close session file: %w", err)
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		return fmt.Errorf("replace session file: %w", err)
	}
	return nil
}

func (f *FileBackend) Clear() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session file: %w", err)
	}
	return nil
}
