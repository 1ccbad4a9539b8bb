package patcher

import (
	"fmt"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/sokinpui/code-llm/internal/parser"
)

// ConflictError reports a hunk whose context could not be found within the
// search window.
type ConflictError struct {
	// ExpectedLine is the 1-based line the hunk claimed, after shifting.
	ExpectedLine int
	// BestLine is the 1-based start of the closest partial match, or 0 when
	// no line matched at all.
	BestLine int
	// Matched counts the hunk lines found at BestLine.
	Matched  int
	Expected []string
	Actual   []string
	// Detail is a unified diff from the expected lines to the actual ones.
	Detail string
}

func (e *ConflictError) Error() string {
	if e.BestLine == 0 {
		return fmt.Sprintf("hunk context for line %d not found", e.ExpectedLine)
	}
	return fmt.Sprintf("hunk context for line %d not found; closest match at line %d (%d of %d lines)",
		e.ExpectedLine, e.BestLine, e.Matched, len(e.Expected))
}

func conflictAt(lines []string, h parser.Hunk, expected int, opts Options) *ConflictError {
	old := h.OldText()
	e := &ConflictError{ExpectedLine: expected + 1, Expected: old}

	start, score := bestCandidate(lines, old, expected, searchWindow(h, lines, opts))
	if start < 0 {
		start = min(expected, len(lines))
	} else {
		e.BestLine = start + 1
		e.Matched = score
	}
	end := min(start+len(old), len(lines))
	e.Actual = append([]string(nil), lines[start:end]...)

	detail, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        terminate(e.Expected),
		B:        terminate(e.Actual),
		FromFile: "expected",
		ToFile:   fmt.Sprintf("actual (line %d)", start+1),
		Context:  3,
	})
	if err == nil {
		e.Detail = detail
	}
	return e
}

func terminate(lines []string) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l + "\n"
	}
	return out
}
