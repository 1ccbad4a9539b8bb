// Package fs resolves paths inside the project root and writes files
// atomically.
package fs

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	iofs "io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrOutsideRoot is returned for paths that would escape the project root.
var ErrOutsideRoot = errors.New("path escapes the project root")

// DefaultPerm is used for files that did not exist before.
const DefaultPerm os.FileMode = 0o644

// PathResolver maps slash-separated project paths to absolute paths.
type PathResolver struct {
	root string
}

// NewPathResolver returns a resolver for root. An empty root means the
// working directory.
func NewPathResolver(root string) (*PathResolver, error) {
	if root == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("could not resolve root %q: %w", root, err)
	}
	return &PathResolver{root: abs}, nil
}

// Root returns the absolute project root.
func (r *PathResolver) Root() string { return r.root }

// Resolve returns the absolute path for rel. Absolute paths and paths that
// climb out of the root are rejected.
func (r *PathResolver) Resolve(rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("empty path: %w", ErrOutsideRoot)
	}
	if filepath.IsAbs(rel) || strings.HasPrefix(rel, "/") {
		return "", fmt.Errorf("%q is absolute: %w", rel, ErrOutsideRoot)
	}
	cleaned := filepath.Clean(filepath.FromSlash(rel))
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%q: %w", rel, ErrOutsideRoot)
	}
	return filepath.Join(r.root, cleaned), nil
}

// Relative returns the slash-separated path of abs relative to the root.
func (r *PathResolver) Relative(abs string) string {
	rel, err := filepath.Rel(r.root, abs)
	if err != nil {
		return filepath.ToSlash(abs)
	}
	return filepath.ToSlash(rel)
}

// ResolveExisting returns the absolute path of rel if it names an existing
// regular file.
func (r *PathResolver) ResolveExisting(rel string) (string, bool) {
	abs, err := r.Resolve(rel)
	if err != nil {
		return "", false
	}
	info, err := os.Stat(abs)
	if err != nil || !info.Mode().IsRegular() {
		return "", false
	}
	return abs, true
}

// MissingDirs returns, sorted, the parent directories of paths that do not
// exist yet.
func MissingDirs(paths []string) []string {
	seen := make(map[string]struct{})
	for _, p := range paths {
		dir := filepath.Dir(p)
		if dir == "." || dir == string(filepath.Separator) {
			continue
		}
		if _, err := os.Stat(dir); errors.Is(err, iofs.ErrNotExist) {
			seen[dir] = struct{}{}
		}
	}
	dirs := make([]string, 0, len(seen))
	for d := range seen {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)
	return dirs
}

// AtomicWrite writes data to path through a temp file in the same directory
// that is synced and renamed over the target. On failure the target is left
// untouched.
func AtomicWrite(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, ".code-llm-tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		if tmpFile != nil {
			_ = tmpFile.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	tmpFile = nil
	return nil
}

// ReplaceFile atomically replaces path with data, keeping the permissions of
// the existing file.
func ReplaceFile(path string, data []byte) error {
	perm := DefaultPerm
	if info, err := os.Stat(path); err == nil {
		perm = info.Mode().Perm()
	}
	return AtomicWrite(path, data, perm)
}

// HashContent returns the hex SHA-256 of data.
func HashContent(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// GetFileSHA256 returns the hex SHA-256 of the file at path.
func GetFileSHA256(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return HashContent(data), nil
}
