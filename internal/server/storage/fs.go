package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"

	"github.com/dmitrijs2005/clouddrive/internal/common"
	"github.com/dmitrijs2005/clouddrive/internal/server/models"
)

// FSStore keeps each file's content as one file under root.
type FSStore struct {
	root string
}

// NewFSStore creates root if needed.
func NewFSStore(root string) (*FSStore, error) {
	if root == "" {
		return nil, fmt.Errorf("fs root is required")
	}
	info, err := os.Stat(root)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := os.MkdirAll(root, 0o750); err != nil {
			return nil, fmt.Errorf("create root %s: %w", root, err)
		}
	case err != nil:
		return nil, fmt.Errorf("stat root %s: %w", root, err)
	case !info.IsDir():
		return nil, fmt.Errorf("root %s is not a directory", root)
	}
	return &FSStore{root: root}, nil
}

func (s *FSStore) Name() string { return TypeFS }

func (s *FSStore) path(key string) (string, error) {
	if !filepath.IsLocal(filepath.FromSlash(key)) {
		return "", fmt.Errorf("invalid key %q: %w", key, common.ErrorBadInput)
	}
	return filepath.Join(s.root, filepath.FromSlash(key)), nil
}

// Put writes to a temp file and renames it into place.
func (s *FSStore) Put(ctx context.Context, key string, r io.Reader, chunkSize int64) (int, error) {
	path, err := s.path(key)
	if err != nil {
		return 0, err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return 0, fmt.Errorf("create dirs for %s: %w", key, err)
	}

	tmp, err := os.CreateTemp(dir, ".clouddrive-*.tmp")
	if err != nil {
		return 0, fmt.Errorf("create temp for %s: %w", key, err)
	}
	tmpName := tmp.Name()

	n, err := io.Copy(tmp, ctxReader{ctx: ctx, r: r})
	if err != nil {
		tmp.Close()
		os.Remove(tmpName)
		if errors.Is(err, syscall.ENOSPC) {
			return 0, fmt.Errorf("write %s: %w", key, common.ErrInsufficientStorage)
		}
		return 0, fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return 0, fmt.Errorf("close temp for %s: %w", key, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return 0, fmt.Errorf("rename temp to %s: %w", key, err)
	}

	return int((n + chunkSize - 1) / chunkSize), nil
}

func (s *FSStore) Open(ctx context.Context, loc models.Locator, offset, length int64) (io.ReadCloser, error) {
	path, err := s.path(loc.Key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("content %s: %w", loc.Key, common.ErrorNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", loc.Key, err)
	}
	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			f.Close()
			return nil, fmt.Errorf("seek %s: %w", loc.Key, err)
		}
	}
	return readCloser{Reader: ctxReader{ctx: ctx, r: io.LimitReader(f, length)}, Closer: f}, nil
}

func (s *FSStore) Remove(_ context.Context, key string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}
