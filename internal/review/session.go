// Package review runs the accept/reject/modify workflow over parsed diffs.
//
// A file is handled in three steps: decisions are collected for each of its
// hunks, the accepted hunks are applied in memory, and only then is the
// result written, atomically and as a whole. Failures are reported per file
// and never stop the remaining files.
package review

import (
	"context"
	"errors"
	"fmt"
	iofs "io/fs"
	"os"
	"path"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/lithammer/fuzzysearch/fuzzy"
	"go.uber.org/zap"

	"github.com/sokinpui/code-llm/internal/fs"
	"github.com/sokinpui/code-llm/internal/parser"
	"github.com/sokinpui/code-llm/internal/patcher"
	"github.com/sokinpui/code-llm/internal/state"
)

// FileStatus is the final outcome for one file.
type FileStatus string

const (
	StatusApplied    FileStatus = "applied"
	StatusRejected   FileStatus = "rejected"
	StatusConflict   FileStatus = "conflict"
	StatusWriteError FileStatus = "write_error"
)

// WriteError reports a file whose new content could not be written. The
// previous content is left in place.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string { return fmt.Sprintf("write %s: %v", e.Path, e.Err) }

func (e *WriteError) Unwrap() error { return e.Err }

// HunkResult is the decision and outcome for one hunk. Outcome is nil for
// hunks that were not applied.
type HunkResult struct {
	Index    int
	Hunk     parser.Hunk
	Decision Decision
	Outcome  *patcher.Outcome
}

// FileResult is the outcome for one file.
type FileResult struct {
	Path    string
	AbsPath string
	Status  FileStatus
	Created bool
	// Reason explains a rejection.
	Reason   string
	Conflict *patcher.ConflictError
	Err      error
	Hunks    []HunkResult
	Before   string
	After    string
}

// Accepted counts hunks the user kept.
func (f FileResult) Accepted() int {
	n := 0
	for _, h := range f.Hunks {
		if h.Decision.accepts() {
			n++
		}
	}
	return n
}

// Result is the outcome of a whole session, one entry per file in the order
// the files first appeared.
type Result struct {
	ID      string
	Started time.Time
	Files   []FileResult
	// Err is the decision source failure that ended the session early, if
	// any. Hunks not yet decided were rejected.
	Err error
	// Archive is where the session was archived, if it was.
	Archive string
}

// Count returns the number of files with status s.
func (r *Result) Count(s FileStatus) int {
	n := 0
	for _, f := range r.Files {
		if f.Status == s {
			n++
		}
	}
	return n
}

// Written returns the paths written to disk.
func (r *Result) Written() []string {
	var out []string
	for _, f := range r.Files {
		if f.Status == StatusApplied && f.After != f.Before {
			out = append(out, f.Path)
		}
	}
	return out
}

// Options configures a Session.
type Options struct {
	Root  string
	Patch patcher.Options
	// KnownPaths are offered as suggestions when a diff names a missing file.
	KnownPaths []string
	// Store archives finished sessions when set.
	Store  *state.Store
	Logger *zap.Logger
}

// Session reviews batches of diffs against files under one root.
type Session struct {
	opts     Options
	resolver *fs.PathResolver
	logger   *zap.Logger
	now      func() time.Time
}

// NewSession returns a session rooted at opts.Root.
func NewSession(opts Options) (*Session, error) {
	resolver, err := fs.NewPathResolver(opts.Root)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{opts: opts, resolver: resolver, logger: logger, now: time.Now}, nil
}

// fileGroup is every hunk proposed for one path, in appearance order.
type fileGroup struct {
	path   string
	hunks  []parser.Hunk
	create bool
	delete bool
}

func groupByFile(diffs []parser.ParsedDiff) []*fileGroup {
	var groups []*fileGroup
	byPath := make(map[string]*fileGroup)
	for _, d := range diffs {
		p := d.TargetPath()
		g, ok := byPath[p]
		if !ok {
			g = &fileGroup{path: p}
			byPath[p] = g
			groups = append(groups, g)
		}
		g.hunks = append(g.hunks, d.Hunks...)
		g.create = g.create || d.IsNew()
		g.delete = g.delete || d.IsDelete()
	}
	return groups
}

// Review asks src about every hunk of diffs and writes the accepted changes.
// The returned error is non-nil only when the session could not run at all;
// a failing decision source is recorded in Result.Err.
func (s *Session) Review(ctx context.Context, diffs []parser.ParsedDiff, src DecisionSource) (*Result, error) {
	res := &Result{ID: uuid.NewString(), Started: s.now()}
	groups := groupByFile(diffs)
	quit := false

	for i, g := range groups {
		fr := s.prepare(g)
		if fr.Status == "" {
			var err error
			fr.Hunks, quit, err = s.decide(ctx, g, fr.Before, i, len(groups), quit, src)
			if err != nil && res.Err == nil {
				res.Err = err
				quit = true
				s.logger.Warn("decision source failed; rejecting the remaining hunks", zap.Error(err))
			}
			s.plan(&fr)
			s.commit(&fr)
		}
		s.logger.Debug("file reviewed",
			zap.String("path", fr.Path),
			zap.String("status", string(fr.Status)),
			zap.Int("accepted", fr.Accepted()),
			zap.Int("hunks", len(fr.Hunks)))
		res.Files = append(res.Files, fr)
	}

	if s.opts.Store != nil {
		archive, err := s.opts.Store.Save(res.Record())
		if err != nil {
			s.logger.Warn("could not archive session", zap.Error(err))
		} else {
			res.Archive = archive
		}
	}
	return res, nil
}

// prepare resolves and reads the target of g. A non-empty Status on the
// returned result means the file is settled without asking anything.
func (s *Session) prepare(g *fileGroup) FileResult {
	fr := FileResult{Path: g.path}
	rejectAll := func(reason string) FileResult {
		fr.Status = StatusRejected
		fr.Reason = reason
		for i, h := range g.hunks {
			fr.Hunks = append(fr.Hunks, HunkResult{Index: i, Hunk: h, Decision: Reject()})
		}
		return fr
	}

	if g.delete {
		return rejectAll("deleting files is not supported")
	}
	abs, err := s.resolver.Resolve(g.path)
	if err != nil {
		return rejectAll(err.Error())
	}
	fr.AbsPath = abs

	data, err := os.ReadFile(abs)
	switch {
	case err == nil:
		if g.create {
			return rejectAll("file already exists")
		}
		fr.Before = string(data)
	case errors.Is(err, iofs.ErrNotExist):
		if !g.create && !onlyAdditions(g.hunks) {
			reason := "file not found"
			if hint := s.suggest(g.path); hint != "" {
				reason += "; did you mean " + hint + "?"
			}
			return rejectAll(reason)
		}
		fr.Created = true
	default:
		return rejectAll(fmt.Sprintf("cannot read file: %v", err))
	}
	return fr
}

func onlyAdditions(hunks []parser.Hunk) bool {
	for _, h := range hunks {
		if len(h.OldText()) > 0 {
			return false
		}
	}
	return true
}

// suggest returns the known path closest to a missing one.
func (s *Session) suggest(missing string) string {
	if len(s.opts.KnownPaths) == 0 {
		return ""
	}
	ranks := fuzzy.RankFindFold(path.Base(missing), s.opts.KnownPaths)
	if len(ranks) == 0 {
		return ""
	}
	sort.Sort(ranks)
	return ranks[0].Target
}

// decide collects a decision for every hunk of g. Each prompt carries a dry
// run of the hunk on top of the hunks accepted before it.
func (s *Session) decide(ctx context.Context, g *fileGroup, original string, fileIndex, fileCount int, quit bool, src DecisionSource) ([]HunkResult, bool, error) {
	results := make([]HunkResult, 0, len(g.hunks))
	var (
		accepted []parser.Hunk
		rest     *Decision
		srcErr   error
	)

	for i, h := range g.hunks {
		var d Decision
		switch {
		case quit:
			d = Reject()
		case rest != nil:
			d = *rest
		default:
			preview := patcher.ApplySequence(original, append(append([]parser.Hunk(nil), accepted...), h), s.opts.Patch)
			p := Prompt{
				Path:      g.path,
				FileIndex: fileIndex,
				FileCount: fileCount,
				HunkIndex: i,
				HunkCount: len(g.hunks),
				Created:   g.create,
				Hunk:      h,
				Preview:   preview.Results[len(preview.Results)-1].Outcome,
			}
			var err error
			d, err = src.Decide(ctx, p)
			if err != nil {
				srcErr = err
				quit = true
				d = Reject()
			}
		}

		switch d.Action {
		case ActionModify:
			h = h.WithAdditions(d.Replacement)
		case ActionAcceptFile:
			rest = &Decision{Action: ActionAccept}
		case ActionRejectFile:
			rest = &Decision{Action: ActionReject}
		case ActionQuit:
			quit = true
		}
		if d.accepts() {
			accepted = append(accepted, h)
		}
		results = append(results, HunkResult{Index: i, Hunk: h, Decision: d})
	}
	return results, quit, srcErr
}

// plan applies the accepted hunks in memory.
func (s *Session) plan(fr *FileResult) {
	var (
		hunks []parser.Hunk
		slots []int
	)
	for i, h := range fr.Hunks {
		if h.Decision.accepts() {
			hunks = append(hunks, h.Hunk)
			slots = append(slots, i)
		}
	}
	if len(hunks) == 0 {
		fr.Status = StatusRejected
		fr.Reason = "no hunks accepted"
		return
	}

	seq := patcher.ApplySequence(fr.Before, hunks, s.opts.Patch)
	for i, r := range seq.Results {
		out := r.Outcome
		fr.Hunks[slots[i]].Outcome = &out
	}
	if conflicts := seq.Conflicts(); len(conflicts) > 0 {
		fr.Status = StatusConflict
		first := conflicts[0].Outcome
		fr.Conflict = first.Conflict
		if first.Status == patcher.StatusRejected {
			fr.Reason = first.Reason
		}
		return
	}
	fr.Status = StatusApplied
	fr.After = seq.Content
}

// commit writes an applied file. Nothing is written for other statuses.
func (s *Session) commit(fr *FileResult) {
	if fr.Status != StatusApplied || (fr.After == fr.Before && !fr.Created) {
		return
	}
	if err := fs.ReplaceFile(fr.AbsPath, []byte(fr.After)); err != nil {
		fr.Status = StatusWriteError
		fr.Err = &WriteError{Path: fr.Path, Err: err}
		s.logger.Error("write failed", zap.String("path", fr.Path), zap.Error(err))
		return
	}
	s.logger.Info("file written", zap.String("path", fr.Path), zap.Bool("created", fr.Created))
}

// Record converts the result to its archived form.
func (r *Result) Record() state.SessionRecord {
	rec := state.SessionRecord{ID: r.ID, Time: r.Started}
	if r.Err != nil {
		rec.Error = r.Err.Error()
	}
	for _, f := range r.Files {
		fr := state.FileRecord{Path: f.Path, Status: string(f.Status), Created: f.Created, Reason: f.Reason}
		if f.Err != nil {
			fr.Reason = f.Err.Error()
		}
		if !f.Created {
			fr.HashBefore = fs.HashContent([]byte(f.Before))
		}
		if f.Status == StatusApplied {
			fr.HashAfter = fs.HashContent([]byte(f.After))
			fr.Before = f.Before
		}
		for _, h := range f.Hunks {
			hr := state.HunkRecord{
				Index:    h.Index,
				Header:   hunkHeader(h.Hunk),
				Decision: h.Decision.Action.String(),
			}
			if h.Outcome != nil {
				hr.Outcome = h.Outcome.Status.String()
				if err := h.Outcome.Err(); err != nil {
					hr.Detail = err.Error()
				}
			}
			fr.Hunks = append(fr.Hunks, hr)
		}
		rec.Files = append(rec.Files, fr)
	}
	return rec
}

func hunkHeader(h parser.Hunk) string {
	if h.Loose {
		return "@@ @@"
	}
	return fmt.Sprintf("@@ -%d,%d +%d,%d @@", h.OldStart, h.OldLines, h.NewStart, h.NewLines)
}
