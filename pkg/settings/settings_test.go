// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package settings

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStores(t *testing.T) {
	backends := []struct {
		name string
		open func(t *testing.T) Store
	}{
		{"memory", func(t *testing.T) Store { return NewMemoryStore() }},
		{"file", func(t *testing.T) Store {
			s, err := NewFileStore(t.TempDir())
			require.NoError(t, err)
			return s
		}},
		{"sqlite", func(t *testing.T) Store {
			s, err := OpenSQLite(filepath.Join(t.TempDir(), "s.sqlite"), DefaultSQLiteConfig())
			require.NoError(t, err)
			return s
		}},
	}

	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			s := b.open(t)
			defer s.Close()

			_, err := s.Get(ctx, "dashboard")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, s.Put(ctx, "dashboard", []byte(`{"theme":"dark"}`)))
			got, err := s.Get(ctx, "dashboard")
			require.NoError(t, err)
			assert.JSONEq(t, `{"theme":"dark"}`, string(got))

			require.NoError(t, s.Put(ctx, "dashboard", []byte(`{"theme":"light"}`)))
			got, err = s.Get(ctx, "dashboard")
			require.NoError(t, err)
			assert.JSONEq(t, `{"theme":"light"}`, string(got))

			assert.ErrorIs(t, s.Put(ctx, "../escape", []byte(`1`)), ErrInvalidKey)
			_, err = s.Get(ctx, "")
			assert.ErrorIs(t, err, ErrInvalidKey)
		})
	}
}

func TestMemoryStore_CopiesValues(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	value := []byte("abc")
	require.NoError(t, s.Put(ctx, "k", value))
	value[0] = 'z'

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestSQLiteStore_Persists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "settings.sqlite")

	s, err := OpenSQLite(path, DefaultSQLiteConfig())
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, "layout", []byte(`[1,2]`)))
	require.NoError(t, s.Close())

	reopened, err := OpenSQLite(path, DefaultSQLiteConfig())
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(ctx, "layout")
	require.NoError(t, err)
	assert.Equal(t, `[1,2]`, string(got))
}

func TestFileStore_NoTempFilesLeft(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, "a", []byte(`{}`)))
	require.NoError(t, s.Put(ctx, "a", []byte(`{"x":1}`)))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a.json", entries[0].Name())
}

func TestOpen(t *testing.T) {
	tests := []struct {
		backend string
		dir     bool
		want    any
		wantErr bool
	}{
		{backend: "memory", want: &MemoryStore{}},
		{backend: "sqlite", dir: false, want: &MemoryStore{}},
		{backend: "sqlite", dir: true, want: &SQLiteStore{}},
		{backend: "", dir: true, want: &SQLiteStore{}},
		{backend: "file", dir: true, want: &FileStore{}},
		{backend: "redis", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			dir := ""
			if tt.dir {
				dir = t.TempDir()
			}
			s, err := Open(tt.backend, dir)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer s.Close()
			assert.IsType(t, tt.want, s)
		})
	}
}

func TestValidKey(t *testing.T) {
	assert.True(t, ValidKey("printer.layout_v2"))
	assert.False(t, ValidKey(".."))
	assert.False(t, ValidKey("a/b"))
	assert.False(t, ValidKey(""))
}
