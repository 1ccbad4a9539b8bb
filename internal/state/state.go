// Package state archives finished review sessions under the project's tool
// directory and can revert the most recent one.
package state

import (
	"errors"
	"fmt"
	iofs "io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sokinpui/code-llm/internal/fs"
	"github.com/sokinpui/code-llm/internal/ignore"
)

const sessionsDirName = "sessions"

var (
	ErrNoSessions      = errors.New("no archived sessions")
	ErrSessionNotFound = errors.New("session not found")
	ErrAlreadyReverted = errors.New("session already reverted")
)

// HunkRecord is the decision taken on one hunk.
type HunkRecord struct {
	Index    int    `yaml:"index"`
	Header   string `yaml:"header"`
	Decision string `yaml:"decision"`
	Outcome  string `yaml:"outcome,omitempty"`
	Detail   string `yaml:"detail,omitempty"`
}

// FileRecord is the outcome for one file.
type FileRecord struct {
	Path       string       `yaml:"path"`
	Status     string       `yaml:"status"`
	Created    bool         `yaml:"created,omitempty"`
	HashBefore string       `yaml:"hash_before,omitempty"`
	HashAfter  string       `yaml:"hash_after,omitempty"`
	Reason     string       `yaml:"reason,omitempty"`
	Hunks      []HunkRecord `yaml:"hunks"`
	// Before holds the previous content of written files so the session can
	// be reverted.
	Before string `yaml:"before,omitempty"`
}

// SessionRecord is one archived review session.
type SessionRecord struct {
	ID       string       `yaml:"id"`
	Time     time.Time    `yaml:"time"`
	Error    string       `yaml:"error,omitempty"`
	Reverted bool         `yaml:"reverted,omitempty"`
	Files    []FileRecord `yaml:"files"`
}

// Written returns the records of files that were written to disk.
func (r SessionRecord) Written() []FileRecord {
	var out []FileRecord
	for _, f := range r.Files {
		if f.HashAfter != "" {
			out = append(out, f)
		}
	}
	return out
}

// Store keeps session archives as YAML files.
type Store struct {
	root string
	dir  string
}

// NewStore returns a store for the project at root.
func NewStore(root string) *Store {
	return &Store{root: root, dir: filepath.Join(root, ignore.ToolDir, sessionsDirName)}
}

// Dir is the archive directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) fileName(rec SessionRecord) string {
	return filepath.Join(s.dir, rec.Time.UTC().Format("20060102T150405Z")+"-"+rec.ID+".yaml")
}

// Save writes rec and returns the archive path.
func (s *Store) Save(rec SessionRecord) (string, error) {
	data, err := yaml.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("could not encode session %s: %w", rec.ID, err)
	}
	path := s.fileName(rec)
	if err := fs.AtomicWrite(path, data, 0o644); err != nil {
		return "", fmt.Errorf("could not archive session %s: %w", rec.ID, err)
	}
	return path, nil
}

// List returns every archived session, oldest first.
func (s *Store) List() ([]SessionRecord, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("could not read session archive: %w", err)
	}

	var records []SessionRecord
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("could not read %s: %w", e.Name(), err)
		}
		var rec SessionRecord
		if err := yaml.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("invalid session file %s: %w", e.Name(), err)
		}
		records = append(records, rec)
	}
	sort.SliceStable(records, func(i, j int) bool { return records[i].Time.Before(records[j].Time) })
	return records, nil
}

// Load returns the session whose ID starts with prefix.
func (s *Store) Load(prefix string) (SessionRecord, error) {
	records, err := s.List()
	if err != nil {
		return SessionRecord{}, err
	}
	for i := len(records) - 1; i >= 0; i-- {
		if prefix != "" && strings.HasPrefix(records[i].ID, prefix) {
			return records[i], nil
		}
	}
	return SessionRecord{}, fmt.Errorf("%w: %s", ErrSessionNotFound, prefix)
}

// Latest returns the most recent session that wrote files and is not yet
// reverted.
func (s *Store) Latest() (SessionRecord, error) {
	records, err := s.List()
	if err != nil {
		return SessionRecord{}, err
	}
	for i := len(records) - 1; i >= 0; i-- {
		if !records[i].Reverted && len(records[i].Written()) > 0 {
			return records[i], nil
		}
	}
	return SessionRecord{}, ErrNoSessions
}

// RevertResult lists what Revert did.
type RevertResult struct {
	Restored []string
	Removed  []string
	// Skipped maps a path to the reason it was left alone.
	Skipped map[string]string
}

// Revert restores every file written by rec, provided its content is still
// what the session wrote. Files created by the session are removed.
func (s *Store) Revert(rec SessionRecord) (RevertResult, error) {
	res := RevertResult{Skipped: map[string]string{}}
	if rec.Reverted {
		return res, fmt.Errorf("%w: %s", ErrAlreadyReverted, rec.ID)
	}
	resolver, err := fs.NewPathResolver(s.root)
	if err != nil {
		return res, err
	}

	for _, f := range rec.Written() {
		abs, err := resolver.Resolve(f.Path)
		if err != nil {
			res.Skipped[f.Path] = err.Error()
			continue
		}
		hash, err := fs.GetFileSHA256(abs)
		if err != nil {
			res.Skipped[f.Path] = err.Error()
			continue
		}
		if hash != f.HashAfter {
			res.Skipped[f.Path] = "changed since the session"
			continue
		}
		if f.Created {
			if err := os.Remove(abs); err != nil {
				res.Skipped[f.Path] = err.Error()
				continue
			}
			res.Removed = append(res.Removed, f.Path)
			continue
		}
		if err := fs.ReplaceFile(abs, []byte(f.Before)); err != nil {
			res.Skipped[f.Path] = err.Error()
			continue
		}
		res.Restored = append(res.Restored, f.Path)
	}

	rec.Reverted = true
	if _, err := s.Save(rec); err != nil {
		return res, err
	}
	return res, nil
}
