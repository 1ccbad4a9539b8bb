package patcher

import (
	"sort"

	"github.com/sokinpui/code-llm/internal/parser"
)

// Correct re-anchors every hunk of d against original and rewrites the hunk
// headers to the positions and counts actually found. Loose hunks come back
// with real line numbers. Hunks that cannot be located anywhere in the file
// are dropped and returned as *ConflictError values.
func Correct(original string, d parser.ParsedDiff, opts Options) (parser.ParsedDiff, []error) {
	doc := splitDocument(original)
	out := d
	out.Hunks = nil

	var errs []error
	for _, h := range d.Hunks {
		old := h.OldText()
		switch {
		case d.IsNew() || len(old) == 0:
			h.OldStart = insertionPoint(doc, h, h.OldStart-1)
		default:
			// Correction is allowed to search the whole file, nearest first.
			expected := min(max(h.OldStart-1, 0), len(doc.lines))
			wide := opts
			wide.Window = len(doc.lines) + 1
			a, located, ok := locate(doc.lines, h, expected, wide)
			if !ok {
				errs = append(errs, conflictAt(doc.lines, h, expected, opts))
				continue
			}
			h = located
			h.OldStart = a.index + 1
		}
		h.Loose = false
		out.Hunks = append(out.Hunks, h)
	}

	sort.SliceStable(out.Hunks, func(i, j int) bool { return out.Hunks[i].OldStart < out.Hunks[j].OldStart })

	shift := 0
	for i := range out.Hunks {
		h := &out.Hunks[i]
		old, added := len(h.OldText()), len(h.NewText())
		h.OldLines, h.NewLines = old, added
		h.NewStart = h.OldStart + shift
		if old == 0 && added > 0 {
			// "-N,0" inserts after line N; the first new line is N+1.
			h.NewStart++
		}
		if added == 0 && h.NewStart > 0 {
			h.NewStart--
		}
		shift += added - old
	}
	return out, errs
}
