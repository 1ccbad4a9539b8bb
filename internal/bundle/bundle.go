// Package bundle builds the bounded textual snapshot of a project that is
// sent to the model as context.
package bundle

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

const (
	// DefaultMaxFileSize is the largest file admitted into a bundle.
	DefaultMaxFileSize int64 = 100 * 1024
	// DefaultMaxContextSize caps the summed size of all admitted files.
	DefaultMaxContextSize int64 = 8 * 1024 * 1024
)

// ErrRootNotFound is returned when the scan root does not exist or is not a
// directory. It is the only condition that fails a build.
var ErrRootNotFound = errors.New("scan root not found")

// FileEntry is one admitted file.
type FileEntry struct {
	Path     string `yaml:"path"`
	Content  string `yaml:"-"`
	ByteSize int64  `yaml:"byte_size"`
}

// SkipReason says why a non-ignored file was left out.
type SkipReason string

const (
	SkipTooLarge   SkipReason = "too_large"
	SkipBinary     SkipReason = "binary"
	SkipUnreadable SkipReason = "unreadable"
)

// SkippedFile records a file that was not ignored but was not admitted either.
type SkippedFile struct {
	Path   string
	Reason SkipReason
	Size   int64
	Detail string
}

// ScanError reports a file or directory that could not be read. The entry is
// skipped and the scan continues.
type ScanError struct {
	Path string
	Err  error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("scan %s: %v", e.Path, e.Err)
}

func (e *ScanError) Unwrap() error { return e.Err }

// Bundle is an ordered, size-bounded snapshot of a project. Entries are in
// lexicographic path order.
type Bundle struct {
	Root           string
	Entries        []FileEntry
	TotalBytes     int64
	MaxFileSize    int64
	MaxContextSize int64

	// Skipped lists files left out because of their size, encoding or a
	// read failure.
	Skipped []SkippedFile
	// Omitted counts files that were admissible but did not fit the
	// context budget.
	Omitted int
	// Diagnostics collects soft failures: ignore rule errors and scan errors.
	Diagnostics []error
	// Dirs lists the directories that were scanned, "." for the root.
	Dirs []string
}

// Paths returns the entry paths in bundle order.
func (b *Bundle) Paths() []string {
	paths := make([]string, len(b.Entries))
	for i, e := range b.Entries {
		paths[i] = e.Path
	}
	return paths
}

// Lookup returns the entry for path, if present.
func (b *Bundle) Lookup(path string) (FileEntry, bool) {
	i := sort.Search(len(b.Entries), func(i int) bool { return b.Entries[i].Path >= path })
	if i < len(b.Entries) && b.Entries[i].Path == path {
		return b.Entries[i], true
	}
	return FileEntry{}, false
}

// Truncated reports whether files were omitted for lack of budget.
func (b *Bundle) Truncated() bool {
	return b.Omitted > 0
}

// Render returns the bundle text included in the prompt. Rendering an
// unchanged bundle always yields the same bytes.
func (b *Bundle) Render() string {
	var sb strings.Builder
	for _, e := range b.Entries {
		sb.WriteString("--- ")
		sb.WriteString(e.Path)
		sb.WriteByte('\n')
		sb.WriteString(e.Content)
		if !strings.HasSuffix(e.Content, "\n") {
			sb.WriteByte('\n')
		}
	}
	if b.Omitted > 0 {
		fmt.Fprintf(&sb, "Note: context truncated due to size limits (%d files omitted)\n", b.Omitted)
	}
	return sb.String()
}
