/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// FSStore keeps objects as files under a root directory.
type FSStore struct {
	root   string
	logger zerolog.Logger
}

// NewFSStore creates a filesystem store rooted at dir.
func NewFSStore(dir string, logger zerolog.Logger) *FSStore {
	return &FSStore{
		root:   dir,
		logger: logger.With().Str("component", "storage_fs").Logger(),
	}
}

// Put writes data atomically via a temporary file in the same directory.
func (s *FSStore) Put(ctx context.Context, key string, data []byte) error {
	full, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("create directories: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(full), ".put-*")
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close file: %w", err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename file: %w", err)
	}

	s.logger.Debug().Str("path", full).Int("bytes", len(data)).Msg("object stored")
	return nil
}

// Get reads an object.
func (s *FSStore) Get(ctx context.Context, key string) ([]byte, error) {
	full, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	return data, err
}

func (s *FSStore) path(key string) (string, error) {
	c, err := cleanKey(key)
	if err != nil {
		return "", fmt.Errorf("%q: %w", key, err)
	}
	return filepath.Join(s.root, filepath.FromSlash(c)), nil
}
