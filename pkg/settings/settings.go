// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package settings stores opaque settings blobs by key. The contents are
// owned by the consumer; nothing here interprets them.
package settings

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
)

var (
	// ErrNotFound is returned by Get for a key that was never stored
	ErrNotFound = errors.New("settings: not found")
	// ErrInvalidKey is returned for keys outside [A-Za-z0-9_.-]{1,64}
	ErrInvalidKey = errors.New("settings: invalid key")
)

// Store persists settings blobs
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Close() error
}

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,64}$`)

// ValidKey reports whether key can be stored by every backend
func ValidKey(key string) bool {
	return keyPattern.MatchString(key) && key != "." && key != ".."
}

func checkKey(key string) error {
	if !ValidKey(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

// Open creates a store for backend ("sqlite", "file" or "memory"). The
// sqlite and file backends keep their data under dir; an empty dir falls
// back to memory.
func Open(backend, dir string) (Store, error) {
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "sqlite":
		if dir == "" {
			return NewMemoryStore(), nil
		}
		return OpenSQLite(filepath.Join(dir, "settings.sqlite"), DefaultSQLiteConfig())
	case "file":
		if dir == "" {
			return NewMemoryStore(), nil
		}
		return NewFileStore(filepath.Join(dir, "settings"))
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown settings backend: %s (supported: sqlite, file, memory)", backend)
	}
}
