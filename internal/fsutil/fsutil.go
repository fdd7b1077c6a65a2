// Package fsutil holds the filesystem primitives shared by the converter and
// the workflow stores: race-safe directory creation, temp artifacts, atomic
// writes and no-clobber publishing.
package fsutil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// TempPrefix marks in-progress artifacts. Discovery skips files with it.
const TempPrefix = ".docconv-tmp-"

// maxCollisionSuffix bounds the search for a free output name.
const maxCollisionSuffix = 10000

// EnsureDir creates dir and its parents. Concurrent callers may race on the
// same path; MkdirAll treats an existing directory as success.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	return nil
}

// CreateTemp creates a temp artifact in dir, which must exist.
func CreateTemp(dir string) (*os.File, error) {
	f, err := os.CreateTemp(dir, TempPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("create temp file in %s: %w", dir, err)
	}
	return f, nil
}

// IsTemp reports whether name is a temp artifact.
func IsTemp(name string) bool {
	return strings.HasPrefix(filepath.Base(name), TempPrefix)
}

// CandidateName returns the n-th collision-free candidate for path:
// n == 0 is path itself, then name_1.ext, name_2.ext, ...
func CandidateName(path string, n int) string {
	if n == 0 {
		return path
	}
	ext := filepath.Ext(path)
	return fmt.Sprintf("%s_%d%s", strings.TrimSuffix(path, ext), n, ext)
}

// Publish moves the finished artifact at tmpPath to the first free name
// derived from target and returns it. Existing files are never overwritten.
// The artifact is hard-linked under its final name, which fails atomically
// when the name is taken; filesystems without hard links fall back to an
// existence check followed by a rename.
func Publish(tmpPath, target string) (string, error) {
	for n := 0; n < maxCollisionSuffix; n++ {
		candidate := CandidateName(target, n)
		err := os.Link(tmpPath, candidate)
		if err == nil {
			_ = os.Remove(tmpPath)
			return candidate, nil
		}
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		return publishByRename(tmpPath, target, n)
	}
	return "", fmt.Errorf("publish %s: no free name after %d attempts", target, maxCollisionSuffix)
}

func publishByRename(tmpPath, target string, from int) (string, error) {
	for n := from; n < maxCollisionSuffix; n++ {
		candidate := CandidateName(target, n)
		if _, err := os.Lstat(candidate); err == nil {
			continue
		} else if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("stat %s: %w", candidate, err)
		}
		if err := os.Rename(tmpPath, candidate); err != nil {
			return "", fmt.Errorf("rename %s: %w", candidate, err)
		}
		return candidate, nil
	}
	return "", fmt.Errorf("publish %s: no free name after %d attempts", target, maxCollisionSuffix)
}

// WriteFileAtomic replaces path with data through a temp file and rename,
// so readers see either the old or the new content.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := EnsureDir(dir); err != nil {
		return err
	}

	tmp, err := CreateTemp(dir)
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = os.Remove(tmpPath)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file for %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp file for %s: %w", path, err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("chmod temp file for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file for %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		cleanup()
		return fmt.Errorf("atomic rename for %s: %w", path, err)
	}
	return nil
}

// WriteJSON atomically writes v as indented JSON.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON for %s: %w", path, err)
	}
	data = append(data, '\n')
	return WriteFileAtomic(path, data)
}

// ReadJSON decodes the JSON file at path into v. A missing file is reported
// with an error matching fs.ErrNotExist.
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse JSON %s: %w", path, err)
	}
	return nil
}
