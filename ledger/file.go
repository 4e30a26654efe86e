package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileBackend keeps the whole ledger in one JSON file, rewritten on every Put.
// It assumes a single writing process.
type FileBackend struct {
	path string
	mu   sync.Mutex
}

// NewFileBackend creates a file backend at path. The file is created on first write.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

// Load reads every entry. A missing file is an empty ledger.
func (f *FileBackend) Load(_ context.Context) (map[string]Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.read()
}

// Put writes one entry.
func (f *FileBackend) Put(_ context.Context, e Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := f.read()
	if err != nil {
		return err
	}
	entries[e.DocumentID] = e
	return f.write(entries)
}

func (f *FileBackend) read() (map[string]Entry, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger file: %w", err)
	}
	if len(data) == 0 {
		return map[string]Entry{}, nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode ledger file: %w", err)
	}

	entries := make(map[string]Entry, len(raw))
	for id, msg := range raw {
		var e Entry
		if err := json.Unmarshal(msg, &e); err != nil {
			continue
		}
		if e.DocumentID == "" {
			e.DocumentID = id
		}
		entries[id] = e
	}
	return entries, nil
}

func (f *FileBackend) write(entries map[string]Entry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode ledger file: %w", err)
	}

	if dir := filepath.Dir(f.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create ledger directory: %w", err)
		}
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write ledger file: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replace ledger file: %w", err)
	}
	return nil
}
