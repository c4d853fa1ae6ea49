package io

import (
	"fmt"
	stdio "io"
	"os"
	"path/filepath"
)

// WriteFileAtomic writes path through a temporary file in the same
// directory and renames it into place, creating parent directories first.
// On any error the destination is left untouched.
func WriteFileAtomic(path string, write func(w stdio.Writer) error) error {
	return WriteFilesAtomic(AtomicFile{Path: path, Write: write})
}

// AtomicFile is one destination written by WriteFilesAtomic.
type AtomicFile struct {
	Path  string
	Write func(w stdio.Writer) error
}

// WriteFilesAtomic replaces a group of files together. Every file is first
// written to a temporary sibling; destinations are only replaced once all
// writes succeeded. If a replacement fails, destinations already replaced
// are restored to their previous content (or removed if they did not exist).
func WriteFilesAtomic(files ...AtomicFile) error {
	staged := make([]string, 0, len(files))
	defer func() {
		for _, tmp := range staged {
			os.Remove(tmp)
		}
	}()

	for _, f := range files {
		tmp, err := stage(f.Path, f.Write)
		if err != nil {
			return err
		}
		staged = append(staged, tmp)
	}

	backups := make([]string, len(files))
	defer func() {
		for _, b := range backups {
			if b != "" {
				os.Remove(b)
			}
		}
	}()
	for i, f := range files {
		b, err := moveAside(f.Path)
		if err != nil {
			restore(files[:i], backups[:i])
			return err
		}
		backups[i] = b
	}

	for i, f := range files {
		if err := os.Rename(staged[i], f.Path); err != nil {
			restore(files, backups)
			return err
		}
	}
	return nil
}

// stage writes a temporary file next to path and returns its name.
func stage(path string, write func(w stdio.Writer) error) (string, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return "", err
	}
	name := tmp.Name()

	if err := write(tmp); err != nil {
		tmp.Close()
		os.Remove(name)
		return "", err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(name)
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return "", err
	}
	return name, nil
}

// moveAside renames an existing regular file at path to a backup sibling
// and returns the backup name, or "" when path does not exist.
func moveAside(path string) (string, error) {
	info, err := os.Lstat(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%s: not a regular file", path)
	}

	b, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".bak-*")
	if err != nil {
		return "", err
	}
	name := b.Name()
	b.Close()

	if err := os.Rename(path, name); err != nil {
		os.Remove(name)
		return "", err
	}
	return name, nil
}

// restore puts backups back in place. Files without a backup did not exist
// before and are removed.
func restore(files []AtomicFile, backups []string) {
	for i, f := range files {
		if backups[i] == "" {
			os.Remove(f.Path)
			continue
		}
		if err := os.Rename(backups[i], f.Path); err == nil {
			backups[i] = ""
		}
	}
}
