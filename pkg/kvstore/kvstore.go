// Package kvstore persists small named blobs, one file per key, under a state directory.
package kvstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/benmeehan/locator/pkg/file"
)

// ErrNotFound is returned by Get when no value is stored under the key.
var ErrNotFound = errors.New("kvstore: key not found")

// ErrInvalidKey is returned for keys that cannot be mapped to a file name.
var ErrInvalidKey = errors.New("kvstore: invalid key")

// Store defines durable key/value persistence. Values are opaque byte blobs.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
}

// FileStore implements Store on top of FileOperations.
type FileStore struct {
	dir        string
	fileClient file.FileOperations
	mu         sync.Mutex
}

// NewFileStore creates the state directory if needed and returns a FileStore rooted in it.
func NewFileStore(dir string, fileClient file.FileOperations) (*FileStore, error) {
	if err := fileClient.EnsureDir(dir); err != nil {
		return nil, err
	}
	return &FileStore{dir: dir, fileClient: fileClient}, nil
}

// Get returns the blob stored under key or ErrNotFound.
func (s *FileStore) Get(ctx context.Context, key string) ([]byte, error) {
	path, err := s.pathFor(key)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.fileClient.ReadFileRaw(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read key %q: %w", key, err)
	}
	return data, nil
}

// Set replaces the blob stored under key.
func (s *FileStore) Set(ctx context.Context, key string, value []byte) error {
	path, err := s.pathFor(key)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fileClient.WriteFileRaw(path, value); err != nil {
		return fmt.Errorf("failed to write key %q: %w", key, err)
	}
	return nil
}

// Remove deletes the blob stored under key. Removing a missing key is a no-op.
func (s *FileStore) Remove(ctx context.Context, key string) error {
	path, err := s.pathFor(key)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.fileClient.RemoveFile(path)
}

func (s *FileStore) pathFor(key string) (string, error) {
	if key == "" || key == "." || key == ".." || strings.ContainsAny(key, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(s.dir, key+".json"), nil
}
