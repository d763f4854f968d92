package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/foxseedlab/dictado/internal/storage"
)

// LocalBlobStore keeps chunk audio as plain files under one directory.
type LocalBlobStore struct {
	dir string
}

func NewLocalBlobStore(dir string) (*LocalBlobStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return &LocalBlobStore{dir: dir}, nil
}

func (s *LocalBlobStore) Save(filename string, r io.Reader) error {
	path, err := s.path(filename)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create blob file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return fmt.Errorf("write blob file: %w", err)
	}
	return f.Close()
}

func (s *LocalBlobStore) Exists(filename string) (bool, error) {
	path, err := s.path(filename)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *LocalBlobStore) Open(filename string) (io.ReadCloser, error) {
	path, err := s.path(filename)
	if err != nil {
		return nil, err
	}
	return os.Open(path)
}

func (s *LocalBlobStore) Delete(filename string) error {
	path, err := s.path(filename)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// path rejects filenames that would escape the storage directory.
func (s *LocalBlobStore) path(filename string) (string, error) {
	if filename == "" || strings.Contains(filename, "/") || strings.Contains(filename, "\\") || filename != filepath.Base(filename) {
		return "", fmt.Errorf("invalid blob filename %q", filename)
	}
	return filepath.Join(s.dir, filename), nil
}

var _ storage.BlobStore = (*LocalBlobStore)(nil)
