package parser

import (
	"errors"
	"fmt"
	"strings"
)

// DevNull is the path used by unified diffs for a missing side.
const DevNull = "/dev/null"

var (
	ErrCountMismatch = errors.New("line count does not match hunk header")
	ErrHunkHeader    = errors.New("malformed hunk header")
	ErrOrphanHunk    = errors.New("hunk without file header")
)

// OpKind is the kind of a hunk line.
type OpKind int

const (
	OpContext OpKind = iota
	OpRemove
	OpAdd
)

func (k OpKind) String() string {
	switch k {
	case OpRemove:
		return "remove"
	case OpAdd:
		return "add"
	default:
		return "context"
	}
}

// Prefix returns the unified-diff marker for k.
func (k OpKind) Prefix() string {
	switch k {
	case OpRemove:
		return "-"
	case OpAdd:
		return "+"
	default:
		return " "
	}
}

// LineOp is one line of a hunk body.
type LineOp struct {
	Kind OpKind
	Text string
}

// Hunk is one contiguous region of change.
type Hunk struct {
	OldStart int
	OldLines int
	NewStart int
	NewLines int
	Ops      []LineOp

	// Loose hunks came without usable line numbers. Their counts are derived
	// from Ops and their position must be found by searching the file.
	Loose bool
	// NoNewlineOld and NoNewlineNew record "\ No newline at end of file"
	// markers for the old and new side.
	NoNewlineOld bool
	NoNewlineNew bool
	// Line is the 1-based line of the hunk header in the scanned text.
	Line int
}

// OldText returns the lines the hunk expects to find: context and removals.
func (h Hunk) OldText() []string {
	var out []string
	for _, op := range h.Ops {
		if op.Kind != OpAdd {
			out = append(out, op.Text)
		}
	}
	return out
}

// NewText returns the lines the hunk produces: context and additions.
func (h Hunk) NewText() []string {
	var out []string
	for _, op := range h.Ops {
		if op.Kind != OpRemove {
			out = append(out, op.Text)
		}
	}
	return out
}

// Stats returns the number of added and removed lines.
func (h Hunk) Stats() (added, removed int) {
	for _, op := range h.Ops {
		switch op.Kind {
		case OpAdd:
			added++
		case OpRemove:
			removed++
		}
	}
	return added, removed
}

// Delta is the change in file length caused by the hunk.
func (h Hunk) Delta() int {
	return h.NewLines - h.OldLines
}

// WithAdditions returns a copy of h whose added lines are replaced by text.
// Context and removed lines are kept; the replacement goes where the first
// added line was, or after the last removed line if the hunk added nothing.
func (h Hunk) WithAdditions(text string) Hunk {
	var repl []LineOp
	if text != "" {
		for _, l := range strings.Split(strings.TrimSuffix(strings.ReplaceAll(text, "\r\n", "\n"), "\n"), "\n") {
			repl = append(repl, LineOp{Kind: OpAdd, Text: l})
		}
	}

	insertAt := -1
	for i, op := range h.Ops {
		if op.Kind == OpAdd {
			insertAt = i
			break
		}
	}
	if insertAt < 0 {
		insertAt = len(h.Ops)
		for i := len(h.Ops) - 1; i >= 0; i-- {
			if h.Ops[i].Kind == OpRemove {
				insertAt = i + 1
				break
			}
		}
	}

	out := h
	out.Ops = nil
	for i, op := range h.Ops {
		if i == insertAt {
			out.Ops = append(out.Ops, repl...)
		}
		if op.Kind != OpAdd {
			out.Ops = append(out.Ops, op)
		}
	}
	if insertAt == len(h.Ops) {
		out.Ops = append(out.Ops, repl...)
	}
	out.recount()
	return out
}

// Unindented returns a copy with one leading space removed from every line,
// for hunks written with "- " and "+ " markers. ok is false when some
// non-empty line does not start with a space.
func (h Hunk) Unindented() (Hunk, bool) {
	out := h
	out.Ops = make([]LineOp, len(h.Ops))
	changed := false
	for i, op := range h.Ops {
		switch {
		case op.Text == "":
		case strings.HasPrefix(op.Text, " "):
			op.Text = op.Text[1:]
			changed = true
		default:
			return h, false
		}
		out.Ops[i] = op
	}
	return out, changed
}

func (h *Hunk) recount() {
	h.OldLines, h.NewLines = 0, 0
	for _, op := range h.Ops {
		if op.Kind != OpAdd {
			h.OldLines++
		}
		if op.Kind != OpRemove {
			h.NewLines++
		}
	}
}

// ParsedDiff is every hunk proposed for one file by one diff block.
type ParsedDiff struct {
	OldPath string
	NewPath string
	Hunks   []Hunk
	// Line is the 1-based line of the file header in the scanned text.
	Line int
}

// TargetPath is the file the diff edits.
func (d ParsedDiff) TargetPath() string {
	if d.NewPath == "" || d.NewPath == DevNull {
		return d.OldPath
	}
	return d.NewPath
}

// IsNew reports whether the diff creates a file.
func (d ParsedDiff) IsNew() bool { return d.OldPath == DevNull }

// IsDelete reports whether the diff deletes a file.
func (d ParsedDiff) IsDelete() bool { return d.NewPath == DevNull }

// ParseError describes a diff block or hunk that was excluded.
type ParseError struct {
	Path   string
	Line   int
	Detail string
	Err    error
}

func (e *ParseError) Error() string {
	where := e.Path
	if where == "" {
		where = "<unknown>"
	}
	msg := fmt.Sprintf("diff for %s, line %d: %v", where, e.Line, e.Err)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

func (e *ParseError) Unwrap() error { return e.Err }
