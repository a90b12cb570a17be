// Package fsutil handles glob-based file discovery under a repo root,
// backup-sidecar-aware reads/writes, and unified-diff generation.
package fsutil

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

var defaultIgnoredDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"target":       true,
	"build":        true,
}

// FindFiles walks root and returns paths (relative to root) matching any of
// the given glob patterns, in deterministic lexicographic order, skipping
// VCS metadata and other ignored directories.
func FindFiles(root string, globs []string) ([]string, error) {
	seen := map[string]bool{}
	var matches []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		if d.IsDir() {
			if rel != "." && defaultIgnoredDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		relSlash := filepath.ToSlash(rel)
		for _, glob := range globs {
			ok, matchErr := filepath.Match(glob, relSlash)
			if matchErr != nil {
				return matchErr
			}
			if !ok {
				// also try matching against the basename, so "*.md" matches
				// nested files the way a shell glob of **/*.md would.
				ok, matchErr = filepath.Match(glob, filepath.Base(relSlash))
				if matchErr != nil {
					return matchErr
				}
			}
			if ok && !seen[relSlash] {
				seen[relSlash] = true
				matches = append(matches, relSlash)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(matches)
	return matches, nil
}

// ReadFile reads path as UTF-8 text, for Sub/Regex change kinds.
func ReadFile(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadBytes reads path as raw bytes, for Add change kinds.
func ReadBytes(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// WriteFile writes text content to path, creating parent directories as
// needed, preserving the original file's mode when it already exists.
func WriteFile(path string, content string) error {
	return WriteBytes(path, []byte(content))
}

// WriteBytes writes raw bytes to path, creating parent directories as needed.
func WriteBytes(path string, content []byte) error {
	mode := os.FileMode(0644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, content, mode)
}

// Delete removes the file at path.
func Delete(path string) error {
	return os.Remove(path)
}

// Exists reports whether path exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// BackupFile creates a sidecar copy of path named path+".backup" and returns
// its location. The caller is responsible for restoring or cleaning it up.
func BackupFile(path string) (string, error) {
	backupPath := path + ".backup"
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(path)
	mode := os.FileMode(0644)
	if err == nil {
		mode = info.Mode()
	}
	if err := os.WriteFile(backupPath, data, mode); err != nil {
		return "", err
	}
	return backupPath, nil
}

// RestoreFromBackup copies backupPath over originalPath and deletes the
// backup sidecar.
func RestoreFromBackup(backupPath, originalPath string) error {
	data, err := os.ReadFile(backupPath)
	if err != nil {
		return err
	}
	if err := os.WriteFile(originalPath, data, 0644); err != nil {
		return err
	}
	return os.Remove(backupPath)
}

// CleanupBackup deletes a backup sidecar without restoring it. Missing
// backups are not an error.
func CleanupBackup(backupPath string) error {
	err := os.Remove(backupPath)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// IsIgnoredDir reports whether name is one of the default ignored directory
// names (the same set FindFiles skips).
func IsIgnoredDir(name string) bool {
	return defaultIgnoredDirs[name]
}

// NormalizePath mirrors the teacher's path-normalization helper: clean the
// path and use forward slashes, so patterns behave the same on every OS.
func NormalizePath(path string) string {
	return filepath.ToSlash(filepath.Clean(path))
}
