package io

import (
	"errors"
	stdio "io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "deeper", "out.txt")

	err := WriteFileAtomic(path, func(w stdio.Writer) error {
		_, err := w.Write([]byte("first"))
		return err
	})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "first", string(data))

	t.Run("failed write keeps previous content", func(t *testing.T) {
		err := WriteFileAtomic(path, func(w stdio.Writer) error {
			_, _ = w.Write([]byte("partial"))
			return errors.New("boom")
		})
		require.Error(t, err)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "first", string(data))

		entries, err := os.ReadDir(filepath.Dir(path))
		require.NoError(t, err)
		assert.Len(t, entries, 1, "temporary file must be removed")
	})
}

func writeString(s string) func(w stdio.Writer) error {
	return func(w stdio.Writer) error {
		_, err := w.Write([]byte(s))
		return err
	}
}

func readString(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestWriteFilesAtomic(t *testing.T) {
	dir := t.TempDir()
	model := filepath.Join(dir, "models", "model.gob")
	list := filepath.Join(dir, "models", "list.gob")

	require.NoError(t, WriteFilesAtomic(
		AtomicFile{Path: model, Write: writeString("model-1")},
		AtomicFile{Path: list, Write: writeString("list-1")},
	))
	assert.Equal(t, "model-1", readString(t, model))
	assert.Equal(t, "list-1", readString(t, list))

	tests := []struct {
		name  string
		setup func(t *testing.T)
		files []AtomicFile
	}{
		{
			name: "second write fails",
			files: []AtomicFile{
				{Path: model, Write: writeString("model-2")},
				{Path: list, Write: func(stdio.Writer) error { return errors.New("boom") }},
			},
		},
		{
			name: "second destination is a directory",
			setup: func(t *testing.T) {
				require.NoError(t, os.Remove(list))
				require.NoError(t, os.MkdirAll(filepath.Join(list, "child"), 0o755))
			},
			files: []AtomicFile{
				{Path: model, Write: writeString("model-2")},
				{Path: list, Write: writeString("list-2")},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.setup != nil {
				tt.setup(t)
			}

			require.Error(t, WriteFilesAtomic(tt.files...))
			assert.Equal(t, "model-1", readString(t, model))

			entries, err := os.ReadDir(filepath.Dir(model))
			require.NoError(t, err)
			assert.Len(t, entries, 2, "temporary and backup files must be removed")
		})
	}
}

func TestWriteFilesAtomicNewFiles(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")

	require.Error(t, WriteFilesAtomic(
		AtomicFile{Path: a, Write: writeString("a")},
		AtomicFile{Path: b, Write: func(stdio.Writer) error { return errors.New("boom") }},
	))

	_, err := os.Stat(a)
	assert.True(t, os.IsNotExist(err))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
