package routecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// FileStore keeps the cache as one pretty-printed JSON object on disk.
// Every Put rewrites the whole file through a temporary file and a rename,
// so readers never see a partial file. There is no locking between
// processes.
type FileStore struct {
	path string
}

// NewFileStore creates a store at path. The file is created on first Put.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the file location.
func (s *FileStore) Path() string { return s.path }

// Load reads the whole file. A missing file is an empty cache. Entries that
// do not decode are skipped; a file that is not a JSON object is an error.
func (s *FileStore) Load(ctx context.Context) (map[string]Entry, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	return decodeEntries(data)
}

// Put loads the file, replaces one entry and writes it back. An unreadable
// file is replaced rather than blocking writes.
func (s *FileStore) Put(ctx context.Context, key string, e Entry) error {
	entries, err := s.Load(ctx)
	if err != nil {
		entries = map[string]Entry{}
	}
	entries[key] = e
	return s.write(entries)
}

// Close implements Store.
func (s *FileStore) Close() error { return nil }

func (s *FileStore) write(entries map[string]Entry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal route cache: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+"-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace %s: %w", s.path, err)
	}
	return nil
}

func decodeEntries(data []byte) (map[string]Entry, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse route cache: %w", err)
	}
	entries := make(map[string]Entry, len(raw))
	for k, v := range raw {
		var e Entry
		if err := json.Unmarshal(v, &e); err != nil {
			continue
		}
		entries[k] = e
	}
	return entries, nil
}
