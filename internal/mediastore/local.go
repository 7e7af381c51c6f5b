package mediastore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
)

// LocalFileStore stores blobs as files under a base directory.
type LocalFileStore struct {
	basePath string
}

// NewLocalFileStore creates a new LocalFileStore at the given base path.
// It creates the directory if it does not exist.
func NewLocalFileStore(basePath string) (*LocalFileStore, error) {
	if err := os.MkdirAll(basePath, 0o750); err != nil {
		return nil, fmt.Errorf("mediastore: create base directory: %w", err)
	}
	return &LocalFileStore{basePath: basePath}, nil
}

func (s *LocalFileStore) filePath(key string) (string, error) {
	cleaned, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.basePath, filepath.FromSlash(cleaned)), nil
}

// Put writes blob data using a temp file and rename so readers never see a
// partial file.
func (s *LocalFileStore) Put(_ context.Context, key string, data []byte) error {
	finalPath, err := s.filePath(key)
	if err != nil {
		return err
	}
	dir := filepath.Dir(finalPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("mediastore: create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-"+path.Base(key)+"-*")
	if err != nil {
		return fmt.Errorf("mediastore: create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("mediastore: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("mediastore: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, finalPath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("mediastore: rename temp file: %w", err)
	}
	return nil
}

// Get reads blob data. Returns ErrNotFound if the blob does not exist.
func (s *LocalFileStore) Get(_ context.Context, key string) ([]byte, error) {
	p, err := s.filePath(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("mediastore: read file: %w", err)
	}
	return data, nil
}

// Delete removes a blob. Deleting a missing blob is not an error.
func (s *LocalFileStore) Delete(_ context.Context, key string) error {
	p, err := s.filePath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("mediastore: remove file: %w", err)
	}
	return nil
}
