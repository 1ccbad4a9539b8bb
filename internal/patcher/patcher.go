// Package patcher validates hunks against file content and applies them.
//
// Everything here is a pure computation over strings: content goes in, new
// content or a failure comes out. Writing files is the caller's job.
package patcher

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/sokinpui/code-llm/internal/parser"
)

// DefaultWindow is how many lines a hunk may drift either way from the
// position its header claims.
const DefaultWindow = 10

// Options tunes anchoring.
type Options struct {
	// Window is the fuzzy search distance in lines. Zero selects
	// DefaultWindow; a negative value disables the search.
	Window int
	// Strict disables the whitespace-insensitive second pass.
	Strict bool
}

func (o Options) window() int {
	switch {
	case o.Window == 0:
		return DefaultWindow
	case o.Window < 0:
		return 0
	}
	return o.Window
}

// Status is the kind of an Outcome.
type Status int

const (
	StatusApplied Status = iota
	StatusRejected
	StatusConflict
)

func (s Status) String() string {
	switch s {
	case StatusApplied:
		return "applied"
	case StatusRejected:
		return "rejected"
	default:
		return "conflict"
	}
}

// Outcome is the result of applying one hunk.
type Outcome struct {
	Status Status
	// Content is the new file content when Status is StatusApplied.
	Content string
	// Reason explains a rejection.
	Reason string
	// Conflict describes where the context was expected and what was found.
	Conflict *ConflictError

	// Line is the 1-based line the hunk was anchored at.
	Line int
	// Offset is the distance between Line and the claimed position.
	Offset int
	// Fuzzy is set when the anchor only matched with whitespace ignored.
	Fuzzy bool
}

func applied(content string, a anchor, expected int) Outcome {
	return Outcome{Status: StatusApplied, Content: content, Line: a.index + 1, Offset: a.index - expected, Fuzzy: a.fuzzy}
}

func rejected(format string, args ...any) Outcome {
	return Outcome{Status: StatusRejected, Reason: fmt.Sprintf(format, args...)}
}

// Err returns the failure as an error, or nil when the hunk applied.
func (o Outcome) Err() error {
	switch o.Status {
	case StatusRejected:
		return fmt.Errorf("hunk rejected: %s", o.Reason)
	case StatusConflict:
		return o.Conflict
	}
	return nil
}

// Apply applies h to original at the position its header claims.
func Apply(original string, h parser.Hunk, opts Options) Outcome {
	return applyAt(original, h, h.OldStart-1, opts)
}

func applyAt(original string, h parser.Hunk, expected int, opts Options) Outcome {
	if len(h.Ops) == 0 {
		return rejected("hunk has no lines")
	}
	if added, removed := h.Stats(); added+removed == 0 {
		return rejected("hunk changes nothing")
	}

	doc := splitDocument(original)
	if len(h.OldText()) == 0 {
		a := anchor{index: insertionPoint(doc, h, expected)}
		return applied(doc.splice(a.index, h).String(), a, a.index)
	}

	expected = max(expected, 0)
	a, h, ok := locate(doc.lines, h, expected, opts)
	if !ok {
		return Outcome{Status: StatusConflict, Conflict: conflictAt(doc.lines, h, expected, opts)}
	}
	return applied(doc.splice(a.index, h).String(), a, expected)
}

// locate finds h in lines, retrying with the "- "/"+ " marker style undone
// for loose hunks.
func locate(lines []string, h parser.Hunk, expected int, opts Options) (anchor, parser.Hunk, bool) {
	if a, ok := findAnchor(lines, h.OldText(), expected, searchWindow(h, lines, opts), !opts.Strict); ok {
		return a, h, true
	}
	if h.Loose {
		if u, ok := h.Unindented(); ok {
			if a, ok := findAnchor(lines, u.OldText(), expected, searchWindow(u, lines, opts), !opts.Strict); ok {
				return a, u, true
			}
		}
	}
	return anchor{}, h, false
}

// searchWindow is the configured window, or the whole file for loose hunks
// which carry no position.
func searchWindow(h parser.Hunk, lines []string, opts Options) int {
	if h.Loose {
		return len(lines)
	}
	return opts.window()
}

// insertionPoint is the index a hunk without old lines is spliced in at.
// expected is the 0-based position of line OldStart once earlier hunks
// have been applied.
func insertionPoint(doc document, h parser.Hunk, expected int) int {
	switch {
	case h.Loose:
		return len(doc.lines)
	case h.OldStart <= 0:
		return 0
	}
	// "-N,0" inserts after line N.
	return min(max(expected+1, 0), len(doc.lines))
}

// HunkResult pairs a hunk's index in the input with its outcome.
type HunkResult struct {
	Index   int
	Outcome Outcome
}

// Sequence is the result of applying several hunks to one file.
type Sequence struct {
	// Content is the file after every hunk that applied.
	Content string
	// Results holds one entry per input hunk, in input order.
	Results []HunkResult
	Applied int
}

// Conflicts returns the results that did not apply.
func (s Sequence) Conflicts() []HunkResult {
	var out []HunkResult
	for _, r := range s.Results {
		if r.Outcome.Status != StatusApplied {
			out = append(out, r)
		}
	}
	return out
}

// ApplySequence applies hunks in ascending line order against progressively
// updated content. Each hunk is expected at its claimed line shifted by the
// net size change of the hunks applied before it; hunks that fail contribute
// no shift.
func ApplySequence(original string, hunks []parser.Hunk, opts Options) Sequence {
	order := make([]int, len(hunks))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return sortKey(hunks[order[i]]) < sortKey(hunks[order[j]])
	})

	seq := Sequence{Content: original, Results: make([]HunkResult, len(hunks))}
	shift := 0
	for _, idx := range order {
		h := hunks[idx]
		out := applyAt(seq.Content, h, h.OldStart-1+shift, opts)
		if out.Status == StatusApplied {
			seq.Content = out.Content
			seq.Applied++
			shift += h.Delta()
		}
		seq.Results[idx] = HunkResult{Index: idx, Outcome: out}
	}
	return seq
}

func sortKey(h parser.Hunk) int {
	if h.Loose {
		return math.MaxInt
	}
	return h.OldStart
}

// document is file content split into lines with its line terminator and
// final-newline state remembered.
type document struct {
	lines        []string
	eol          string
	finalNewline bool
}

func splitDocument(content string) document {
	d := document{eol: "\n", finalNewline: true}
	if content == "" {
		return d
	}
	if i := strings.IndexByte(content, '\n'); i > 0 && content[i-1] == '\r' {
		d.eol = "\r\n"
	}
	d.finalNewline = strings.HasSuffix(content, "\n")
	body := strings.TrimSuffix(content, "\n")
	if d.eol == "\r\n" {
		body = strings.TrimSuffix(body, "\r")
	}
	d.lines = strings.Split(body, "\n")
	if d.eol == "\r\n" {
		for i, l := range d.lines {
			d.lines[i] = strings.TrimSuffix(l, "\r")
		}
	}
	return d
}

// splice returns a copy of d with h applied at index. Context lines are
// copied from the file, not from the hunk, so a whitespace-insensitive match
// never rewrites unchanged lines.
func (d document) splice(index int, h parser.Hunk) document {
	out := document{eol: d.eol, finalNewline: d.finalNewline}
	out.lines = append(out.lines, d.lines[:index]...)

	pos := index
	for _, op := range h.Ops {
		switch op.Kind {
		case parser.OpContext:
			out.lines = append(out.lines, d.lines[pos])
			pos++
		case parser.OpRemove:
			pos++
		case parser.OpAdd:
			out.lines = append(out.lines, op.Text)
		}
	}
	out.lines = append(out.lines, d.lines[pos:]...)

	if pos == len(d.lines) {
		switch {
		case h.NoNewlineNew:
			out.finalNewline = false
		case h.NoNewlineOld:
			out.finalNewline = true
		}
	}
	return out
}

func (d document) String() string {
	if len(d.lines) == 0 {
		return ""
	}
	s := strings.Join(d.lines, d.eol)
	if d.finalNewline {
		s += d.eol
	}
	return s
}
