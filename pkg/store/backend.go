package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Backend is the persistence interface a Store flushes through. The
// default, spec-required backend is FileBackend (a single pretty-printed
// JSON file); SQLiteBackend and PostgresBackend are durable alternatives
// for operators with a larger fleet or multiple controller replicas —
// selecting one changes only where the document lives, never the
// observable flush-after-every-mutation semantics.
type Backend interface {
	Load() (map[string]any, error)
	Save(data map[string]any) error
}

// FileBackend stores the document as pretty-printed JSON at Path,
// replacing the file atomically (write to a temp file, then rename) so a
// crash mid-flush never leaves a truncated store behind.
type FileBackend struct {
	Path string
}

// NewFileBackend returns a backend rooted at path.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{Path: path}
}

// Load reads the document, returning an empty map if the file does not
// yet exist (first-run case for a brand new agent or controller store).
func (f *FileBackend) Load() (map[string]any, error) {
	raw, err := os.ReadFile(f.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]any), nil
		}
		return nil, fmt.Errorf("read store file %s: %w", f.Path, err)
	}
	if len(raw) == 0 {
		return make(map[string]any), nil
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parse store file %s: %w", f.Path, err)
	}
	return data, nil
}

// Save atomically replaces the file with pretty-printed JSON of data.
func (f *FileBackend) Save(data map[string]any) error {
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal store: %w", err)
	}
	dir := filepath.Dir(f.Path)
	tmp, err := os.CreateTemp(dir, ".store-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp store file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp store file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp store file: %w", err)
	}
	if err := os.Rename(tmpName, f.Path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp store file: %w", err)
	}
	return nil
}
