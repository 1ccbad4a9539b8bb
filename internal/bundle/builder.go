package bundle

import (
	"bytes"
	"errors"
	"fmt"
	iofs "io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/sokinpui/code-llm/internal/ignore"
)

const binarySniffLen = 8192

// DefaultIgnoreFiles are the per-directory ignore files read during a scan.
var DefaultIgnoreFiles = []string{".gitignore", ".codellmignore"}

// DefaultPatterns are ignore patterns applied before any ignore file, so
// project ignore files can still negate them.
var DefaultPatterns = []string{
	"node_modules/",
	"target/",
	".DS_Store",
	".vscode/",
	".idea/",
	".gitignore",
	"*.png", "*.jpg", "*.jpeg", "*.gif", "*.svg", "*.ico",
	"*.woff", "*.woff2", "*.ttf", "*.eot",
	"*.mp3", "*.mp4", "*.avi", "*.mov", "*.webm",
	"*.pdf", "*.zip", "*.tar", "*.gz", "*.rar",
}

var binaryExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".bmp": true, ".ico": true,
	".pdf": true, ".doc": true, ".docx": true, ".xls": true, ".xlsx": true, ".ppt": true, ".pptx": true,
	".zip": true, ".tar": true, ".gz": true, ".rar": true, ".7z": true,
	".exe": true, ".dll": true, ".so": true, ".dylib": true,
	".mp3": true, ".mp4": true, ".avi": true, ".mov": true, ".webm": true,
	".woff": true, ".woff2": true, ".ttf": true, ".eot": true,
}

// Options configures a Builder. Zero sizes select the defaults.
type Options struct {
	MaxFileSize    int64
	MaxContextSize int64
	// IgnoreFiles are file names read as ignore files in every directory.
	// Nil selects DefaultIgnoreFiles.
	IgnoreFiles []string
	// Patterns are extra ignore patterns evaluated after the builtin rules.
	// Nil selects DefaultPatterns.
	Patterns []string
	Logger   *zap.Logger
}

// Builder walks a project tree and produces bundles.
type Builder struct {
	opts   Options
	logger *zap.Logger
}

// NewBuilder returns a builder with defaults filled in.
func NewBuilder(opts Options) *Builder {
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}
	if opts.MaxContextSize <= 0 {
		opts.MaxContextSize = DefaultMaxContextSize
	}
	if opts.IgnoreFiles == nil {
		opts.IgnoreFiles = DefaultIgnoreFiles
	}
	if opts.Patterns == nil {
		opts.Patterns = DefaultPatterns
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{opts: opts, logger: logger}
}

// Build scans root with the given limits and default ignore settings.
func Build(root string, maxFileSize, maxContextSize int64) (*Bundle, error) {
	return NewBuilder(Options{MaxFileSize: maxFileSize, MaxContextSize: maxContextSize}).Build(root)
}

type candidate struct {
	rel  string
	abs  string
	size int64
}

// Build walks root depth-first, pruning ignored directories, and admits
// files in lexicographic path order until the context budget is reached.
func (b *Builder) Build(root string) (*Bundle, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve scan root: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrRootNotFound, root)
		}
		return nil, fmt.Errorf("stat scan root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrRootNotFound, root)
	}

	bundle := &Bundle{
		Root:           absRoot,
		MaxFileSize:    b.opts.MaxFileSize,
		MaxContextSize: b.opts.MaxContextSize,
	}

	matcher := ignore.New(ignore.Builtin()...)
	defaults, errs := ignore.Compile("", "defaults", strings.Join(b.opts.Patterns, "\n"))
	bundle.Diagnostics = append(bundle.Diagnostics, errs...)
	matcher = matcher.With(defaults...)

	var candidates []candidate
	b.walk(absRoot, "", matcher, &candidates, bundle)

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].rel < candidates[j].rel })

	full := false
	for _, c := range candidates {
		entry, skip := b.load(c)
		if skip != nil {
			bundle.Skipped = append(bundle.Skipped, *skip)
			if skip.Reason == SkipUnreadable {
				bundle.Diagnostics = append(bundle.Diagnostics, &ScanError{Path: c.rel, Err: errors.New(skip.Detail)})
			}
			continue
		}
		// Once one file misses the budget every later admissible file is
		// omitted, even one small enough to fit.
		if full || bundle.TotalBytes+entry.ByteSize > b.opts.MaxContextSize {
			if !full {
				b.logger.Info("context budget reached",
					zap.String("path", c.rel),
					zap.Int64("total_bytes", bundle.TotalBytes))
			}
			full = true
			bundle.Omitted++
			continue
		}
		bundle.Entries = append(bundle.Entries, entry)
		bundle.TotalBytes += entry.ByteSize
	}

	b.logger.Debug("bundle built",
		zap.String("root", absRoot),
		zap.Int("files", len(bundle.Entries)),
		zap.Int64("total_bytes", bundle.TotalBytes),
		zap.Int("skipped", len(bundle.Skipped)),
		zap.Int("omitted", bundle.Omitted))
	return bundle, nil
}

func (b *Builder) walk(absDir, relDir string, m *ignore.Matcher, out *[]candidate, bundle *Bundle) {
	entries, err := os.ReadDir(absDir)
	if err != nil {
		bundle.Diagnostics = append(bundle.Diagnostics, &ScanError{Path: displayPath(relDir), Err: err})
		b.logger.Warn("cannot read directory", zap.String("dir", displayPath(relDir)), zap.Error(err))
		return
	}
	bundle.Dirs = append(bundle.Dirs, displayPath(relDir))

	for _, name := range b.opts.IgnoreFiles {
		data, err := os.ReadFile(filepath.Join(absDir, name))
		if err != nil {
			if !errors.Is(err, iofs.ErrNotExist) {
				bundle.Diagnostics = append(bundle.Diagnostics, &ScanError{Path: path.Join(relDir, name), Err: err})
			}
			continue
		}
		rules, errs := ignore.Compile(relDir, path.Join(relDir, name), string(data))
		for _, e := range errs {
			b.logger.Warn("ignore rule skipped", zap.Error(e))
		}
		bundle.Diagnostics = append(bundle.Diagnostics, errs...)
		m = m.With(rules...)
	}

	for _, e := range entries {
		rel := path.Join(relDir, e.Name())
		typ := e.Type()
		switch {
		case typ&iofs.ModeSymlink != 0:
			b.logger.Debug("symlink not followed", zap.String("path", rel))
		case e.IsDir():
			if m.Match(rel, true) {
				b.logger.Debug("directory pruned", zap.String("path", rel))
				continue
			}
			b.walk(filepath.Join(absDir, e.Name()), rel, m, out, bundle)
		case typ.IsRegular():
			if m.Match(rel, false) {
				continue
			}
			info, err := e.Info()
			if err != nil {
				bundle.Diagnostics = append(bundle.Diagnostics, &ScanError{Path: rel, Err: err})
				continue
			}
			*out = append(*out, candidate{rel: rel, abs: filepath.Join(absDir, e.Name()), size: info.Size()})
		}
	}
}

// load reads a candidate, returning either an entry or the reason it was
// skipped.
func (b *Builder) load(c candidate) (FileEntry, *SkippedFile) {
	if c.size > b.opts.MaxFileSize {
		return FileEntry{}, b.tooLarge(c.rel, c.size)
	}
	if binaryExtensions[strings.ToLower(path.Ext(c.rel))] {
		return FileEntry{}, &SkippedFile{Path: c.rel, Reason: SkipBinary, Size: c.size, Detail: "binary file extension"}
	}
	data, err := os.ReadFile(c.abs)
	if err != nil {
		return FileEntry{}, &SkippedFile{Path: c.rel, Reason: SkipUnreadable, Size: c.size, Detail: err.Error()}
	}
	size := int64(len(data))
	if size > b.opts.MaxFileSize {
		return FileEntry{}, b.tooLarge(c.rel, size)
	}
	if IsBinary(data) {
		return FileEntry{}, &SkippedFile{Path: c.rel, Reason: SkipBinary, Size: size, Detail: "binary content"}
	}
	return FileEntry{Path: c.rel, Content: string(data), ByteSize: size}, nil
}

func (b *Builder) tooLarge(rel string, size int64) *SkippedFile {
	return &SkippedFile{
		Path:   rel,
		Reason: SkipTooLarge,
		Size:   size,
		Detail: fmt.Sprintf("%s exceeds the %s per-file limit", humanize.Bytes(uint64(size)), humanize.Bytes(uint64(b.opts.MaxFileSize))),
	}
}

// IsBinary reports whether data looks like binary content: a NUL byte in the
// first 8 KB or invalid UTF-8.
func IsBinary(data []byte) bool {
	sniff := data
	if len(sniff) > binarySniffLen {
		sniff = sniff[:binarySniffLen]
	}
	if bytes.IndexByte(sniff, 0) >= 0 {
		return true
	}
	return !utf8.Valid(data)
}

func displayPath(rel string) string {
	if rel == "" {
		return "."
	}
	return rel
}
