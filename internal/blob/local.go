package blob

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// LocalReferencePrefix marks references produced by LocalStore.
const LocalReferencePrefix = "local:"

// LocalStore is the append-only, hash-keyed directory used when no backend
// client can be constructed outside production. Blobs are written once and
// never overwritten.
type LocalStore struct {
	dir string
}

// NewLocalStore creates dir (and parents) if needed.
func NewLocalStore(dir string) (*LocalStore, error) {
	if dir == "" {
		return nil, errors.New("local blob dir must not be empty")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create local blob dir: %w", err)
	}
	return &LocalStore{dir: dir}, nil
}

// Dir returns the root directory.
func (s *LocalStore) Dir() string { return s.dir }

// Put writes data under hash unless it already exists and returns the
// synthetic local reference.
func (s *LocalStore) Put(hash string, data []byte) (string, error) {
	p, err := s.path(hash)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return "", err
	}

	// Write to a temp file and link it into place so readers never observe a
	// partial blob.
	tmp, err := os.CreateTemp(filepath.Dir(p), ".blob-*")
	if err != nil {
		return "", err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Link(tmpName, p); err != nil && !errors.Is(err, os.ErrExist) {
		return "", err
	}
	return LocalReferencePrefix + hash, nil
}

// Get reads the blob stored under hash or returns ErrNotFound.
func (s *LocalStore) Get(hash string) ([]byte, error) {
	p, err := s.path(hash)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

// path shards blobs by the first two hex characters.
func (s *LocalStore) path(hash string) (string, error) {
	if len(hash) < 3 || filepath.Base(hash) != hash {
		return "", fmt.Errorf("invalid blob hash %q", hash)
	}
	return filepath.Join(s.dir, hash[:2], hash), nil
}
