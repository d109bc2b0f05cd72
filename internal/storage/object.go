/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package storage keeps exported schedules in an object store.
package storage

import (
	"context"
	"errors"
	"path"
	"strings"
)

var (
	// ErrNotFound indicates a missing object.
	ErrNotFound = errors.New("object not found")

	// ErrInvalidKey indicates a key that escapes the store's namespace.
	ErrInvalidKey = errors.New("invalid object key")
)

// ObjectStore abstracts object storage operations.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// cleanKey normalizes a slash-separated key and rejects traversal.
func cleanKey(key string) (string, error) {
	if key == "" || strings.Contains(key, "\\") {
		return "", ErrInvalidKey
	}
	c := path.Clean("/" + key)[1:]
	if c == "" || c != strings.TrimPrefix(key, "/") {
		return "", ErrInvalidKey
	}
	return c, nil
}

func contentType(key string) string {
	switch path.Ext(key) {
	case ".ecsv":
		return "text/csv; charset=utf-8"
	case ".json":
		return "application/json"
	}
	return "application/octet-stream"
}
