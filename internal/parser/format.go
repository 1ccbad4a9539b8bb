package parser

import (
	"fmt"
	"strings"
)

const noNewlineMarker = `\ No newline at end of file`

// Format renders d as a unified diff with a/ and b/ prefixed paths.
func Format(d ParsedDiff) string {
	var sb strings.Builder
	sb.WriteString("--- " + headerPath("a/", d.OldPath) + "\n")
	sb.WriteString("+++ " + headerPath("b/", d.NewPath) + "\n")
	for _, h := range d.Hunks {
		sb.WriteString(FormatHunk(h))
	}
	return sb.String()
}

// FormatHunk renders one hunk, header included.
func FormatHunk(h Hunk) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "@@ -%s +%s @@\n", hunkRange(h.OldStart, h.OldLines), hunkRange(h.NewStart, h.NewLines))

	lastOld, lastNew := -1, -1
	for i, op := range h.Ops {
		if op.Kind != OpAdd {
			lastOld = i
		}
		if op.Kind != OpRemove {
			lastNew = i
		}
	}
	for i, op := range h.Ops {
		sb.WriteString(op.Kind.Prefix())
		sb.WriteString(op.Text)
		sb.WriteByte('\n')
		if (h.NoNewlineOld && i == lastOld) || (h.NoNewlineNew && i == lastNew) {
			sb.WriteString(noNewlineMarker + "\n")
		}
	}
	return sb.String()
}

func hunkRange(start, count int) string {
	if count == 1 {
		return fmt.Sprintf("%d", start)
	}
	return fmt.Sprintf("%d,%d", start, count)
}

func headerPath(prefix, p string) string {
	if p == DevNull {
		return p
	}
	return prefix + p
}
