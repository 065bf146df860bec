package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/555Russich/18.fl-auto-response/internal/types"
)

// FileStore keeps ids as a JSON array in a single file.
// Every Add re-reads the file and replaces it atomically, so ids written by another
// process since the last read are never lost.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// OpenFile returns a store backed by path. A missing file is an empty store.
func OpenFile(path string) (*FileStore, error) {
	if path == "" {
		return nil, &Error{Backend: "file", Message: "path is empty"}
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, &Error{Backend: "file", Message: "failed to create directory", Cause: err}
		}
	}
	return &FileStore{path: path}, nil
}

// Has reports whether id is present in the file.
func (s *FileStore) Has(_ context.Context, id types.RecordID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.read()
	if err != nil {
		return false, err
	}
	return slices.Contains(ids, id), nil
}

// Add appends id unless it is already present.
func (s *FileStore) Add(_ context.Context, id types.RecordID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.read()
	if err != nil {
		return err
	}
	if slices.Contains(ids, id) {
		return nil
	}
	return s.write(append(ids, id))
}

// IDs returns all stored ids in insertion order.
func (s *FileStore) IDs() ([]types.RecordID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

// Close is a no-op.
func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) read() ([]types.RecordID, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []types.RecordID{}, nil
		}
		return nil, &Error{Backend: "file", Message: "failed to read " + s.path, Cause: err}
	}

	var ids []types.RecordID
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, &Error{Backend: "file", Message: "failed to parse " + s.path, Cause: err}
	}
	return ids, nil
}

// write replaces the file through a temporary sibling so a crash never leaves a truncated set.
func (s *FileStore) write(ids []types.RecordID) error {
	data, err := json.MarshalIndent(ids, "", "    ")
	if err != nil {
		return &Error{Backend: "file", Message: "failed to encode ids", Cause: err}
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return &Error{Backend: "file", Message: "failed to create temporary file", Cause: err}
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return &Error{Backend: "file", Message: "failed to write temporary file", Cause: err}
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return &Error{Backend: "file", Message: "failed to sync temporary file", Cause: err}
	}
	if err := tmp.Close(); err != nil {
		return &Error{Backend: "file", Message: "failed to close temporary file", Cause: err}
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return &Error{Backend: "file", Message: "failed to replace " + s.path, Cause: err}
	}
	return nil
}
