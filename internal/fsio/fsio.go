// Package fsio guards every artifact write. Outputs land atomically, only
// under a declared root, and never through a symlink, so a half-written or
// redirected ledger artifact cannot reach a consumer.
package fsio

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ContainedPath resolves rel against root and rejects any result that would
// escape it. The returned path is absolute.
func ContainedPath(root, rel string) (string, error) {
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("output path %s must be relative to the output root", rel)
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("failed to resolve output root %s: %w", root, err)
	}
	joined := filepath.Join(absRoot, rel)
	if joined != absRoot && !strings.HasPrefix(joined, absRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("output path %s escapes the output root %s", rel, root)
	}
	return joined, nil
}

// ReadFileNoFollow reads path, refusing a symlink rather than following it.
func ReadFileNoFollow(path string) ([]byte, error) {
	fi, err := os.Lstat(path)
	if err != nil {
		return nil, err
	}
	if fi.Mode()&os.ModeSymlink != 0 {
		return nil, fmt.Errorf("refusing to read through symlink %s", path)
	}
	return os.ReadFile(path)
}

// WriteFileAtomic writes data to path through a temp file in the same
// directory followed by a rename, creating parent directories as needed.
// An existing symlink at the destination is refused rather than followed.
func WriteFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if fi, err := os.Lstat(path); err == nil && fi.Mode()&os.ModeSymlink != 0 {
		return fmt.Errorf("refusing to write through symlink %s", path)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to set mode on %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

// refuseSymlinkDirs checks every directory between absRoot and path; a
// symlinked component would redirect the write outside the root even when
// the joined path itself stays inside it. Components that do not exist yet
// pass, MkdirAll creates them as real directories.
func refuseSymlinkDirs(absRoot, path string) error {
	for dir := filepath.Dir(path); len(dir) > len(absRoot); dir = filepath.Dir(dir) {
		fi, err := os.Lstat(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}
		if fi.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("refusing to write under symlink directory %s", dir)
		}
	}
	return nil
}

// WriteArtifact combines containment and the atomic write: rel is resolved
// under root, its intermediate directories are vetted, and the file is
// written in one step.
func WriteArtifact(root, rel string, data []byte) (string, error) {
	path, err := ContainedPath(root, rel)
	if err != nil {
		return "", err
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("failed to resolve output root %s: %w", root, err)
	}
	if err := refuseSymlinkDirs(absRoot, path); err != nil {
		return "", err
	}
	if err := WriteFileAtomic(path, data); err != nil {
		return "", err
	}
	return path, nil
}
