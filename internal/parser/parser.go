// Package parser extracts unified-diff edit proposals from free-form model
// output.
//
// Prose never contributes to a result, but a diff written outside any
// fence is still found when it carries a file header.
// Hunk header counts are authoritative: a hunk whose body does not reconcile
// with its header is excluded and reported, never trimmed or padded.
package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	hunkHeaderRegex = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@`)
	// a header that mentions line numbers but does not parse
	numberedHeaderRegex = regexp.MustCompile(`^@@ .*[-+]\d`)
	pathInHintRegex     = regexp.MustCompile("`([^`\n]+)`")
)

// Extract scans text for diff blocks. Fenced code blocks are scanned one by
// one; the text around them is scanned only where it holds a file header.
// Text without fences is scanned whole. The returned errors are *ParseError diagnostics for excluded blocks and hunks.
// Absence of diffs is not an error.
func Extract(text string) ([]ParsedDiff, []error) {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	all := strings.Split(text, "\n")
	blocks, err := codeBlocks([]byte(text))
	if err != nil || len(blocks) == 0 {
		blocks = []codeBlock{{lines: all, line: 1}}
	} else {
		blocks = withProse(all, blocks)
	}

	var (
		diffs []ParsedDiff
		errs  []error
	)
	for _, b := range blocks {
		s := &scanner{block: b}
		s.run()
		diffs = append(diffs, s.diffs...)
		errs = append(errs, s.errs...)
	}
	return diffs, errs
}

// withProse interleaves the unfenced stretches of all that contain a file
// header with blocks, keeping document order and line numbers.
func withProse(all []string, blocks []codeBlock) []codeBlock {
	var out []codeBlock
	next := 0 // first line index not covered by a block
	gap := func(end int) {
		if end > next && hasFileHeader(all[next:end]) {
			out = append(out, codeBlock{lines: all[next:end], line: next + 1})
		}
	}
	for _, b := range blocks {
		if len(b.lines) > 0 {
			start := b.line - 1
			gap(start)
			next = max(next, start+len(b.lines))
		}
		out = append(out, b)
	}
	gap(len(all))
	return out
}

type scanner struct {
	block codeBlock
	pos   int
	cur   *ParsedDiff
	diffs []ParsedDiff
	errs  []error
}

func (s *scanner) lines() []string { return s.block.lines }

func (s *scanner) lineNo(i int) int { return s.block.line + i }

func (s *scanner) run() {
	lines := s.lines()
	if s.block.isDiff() && !hasFileHeader(lines) && !hasNumberedHunk(lines) {
		s.scanHeaderless()
		return
	}

	for s.pos < len(lines) {
		line := lines[s.pos]
		switch {
		case strings.HasPrefix(line, "diff --git "):
			s.flush()
			s.pos++
		case isFileHeader(lines, s.pos):
			s.flush()
			s.cur = &ParsedDiff{
				OldPath: fileHeaderPath(line[4:]),
				NewPath: fileHeaderPath(lines[s.pos+1][4:]),
				Line:    s.lineNo(s.pos),
			}
			s.pos += 2
			if s.block.isDiff() && s.pos < len(lines) && !strings.HasPrefix(lines[s.pos], "@@") {
				s.scanLooseBody(s.lineNo(s.pos))
			}
		case strings.HasPrefix(line, "@@"):
			s.scanHunk()
		default:
			s.pos++
		}
	}
	s.flush()
}

// flush keeps the current diff unless it has no hunks or names no real file.
func (s *scanner) flush() {
	if s.cur == nil {
		return
	}
	d := *s.cur
	s.cur = nil
	if len(d.Hunks) == 0 || isPlaceholder(d.TargetPath()) || (d.IsNew() && d.IsDelete()) {
		return
	}
	s.diffs = append(s.diffs, d)
}

func (s *scanner) fail(line int, err error, format string, args ...any) {
	path := ""
	if s.cur != nil {
		path = s.cur.TargetPath()
	}
	s.errs = append(s.errs, &ParseError{Path: path, Line: line, Err: err, Detail: fmt.Sprintf(format, args...)})
}

func (s *scanner) scanHunk() {
	lines := s.lines()
	header := lines[s.pos]
	headerLine := s.lineNo(s.pos)

	if s.cur == nil {
		s.fail(headerLine, ErrOrphanHunk, "%s", strings.TrimSpace(header))
		s.pos++
		s.skipBody()
		return
	}

	m := hunkHeaderRegex.FindStringSubmatch(header)
	if m == nil {
		s.pos++
		if s.block.isDiff() && !numberedHeaderRegex.MatchString(header) {
			s.scanLooseBody(headerLine)
			return
		}
		s.fail(headerLine, ErrHunkHeader, "%s", strings.TrimSpace(header))
		s.skipBody()
		return
	}

	h, ok := parseHunkRange(m)
	s.pos++
	if !ok {
		s.fail(headerLine, ErrHunkHeader, "%s: line number out of range", strings.TrimSpace(header))
		s.skipBody()
		return
	}
	h.Line = headerLine

	oldSeen, newSeen := 0, 0
	var last OpKind = -1
	for s.pos < len(lines) && (oldSeen < h.OldLines || newSeen < h.NewLines) {
		if isBoundary(lines, s.pos) {
			break
		}
		line := lines[s.pos]
		if strings.HasPrefix(line, `\`) {
			h.markNoNewline(last)
			s.pos++
			continue
		}
		op, ok := classify(line)
		if !ok {
			break
		}
		switch op.Kind {
		case OpContext:
			oldSeen++
			newSeen++
		case OpRemove:
			oldSeen++
		case OpAdd:
			newSeen++
		}
		h.Ops = append(h.Ops, op)
		last = op.Kind
		s.pos++
	}
	for s.pos < len(lines) && strings.HasPrefix(lines[s.pos], `\`) {
		h.markNoNewline(last)
		s.pos++
	}

	if oldSeen != h.OldLines || newSeen != h.NewLines {
		s.fail(headerLine, ErrCountMismatch, "header declares -%d +%d, body has -%d +%d",
			h.OldLines, h.NewLines, oldSeen, newSeen)
		s.skipBody()
		return
	}

	// A blank line ends the hunk; any other prefixed line is surplus.
	extra := 0
	for s.pos < len(lines) && lines[s.pos] != "" && !isBoundary(lines, s.pos) {
		if _, ok := classify(lines[s.pos]); !ok {
			break
		}
		extra++
		s.pos++
	}
	if extra > 0 {
		s.fail(headerLine, ErrCountMismatch, "%d line(s) beyond the counts in the header", extra)
		return
	}

	s.cur.Hunks = append(s.cur.Hunks, h)
}

// scanLooseBody collects a hunk without line numbers. Unprefixed lines are
// taken as context.
func (s *scanner) scanLooseBody(line int) {
	lines := s.lines()
	h := Hunk{Loose: true, Line: line}
	var last OpKind = -1
	for s.pos < len(lines) && !isBoundary(lines, s.pos) {
		l := lines[s.pos]
		s.pos++
		if strings.HasPrefix(l, `\`) {
			h.markNoNewline(last)
			continue
		}
		op, ok := classify(l)
		if !ok {
			op = LineOp{Kind: OpContext, Text: l}
		}
		h.Ops = append(h.Ops, op)
		last = op.Kind
	}
	for len(h.Ops) > 0 {
		tail := h.Ops[len(h.Ops)-1]
		if tail.Kind != OpContext || strings.TrimSpace(tail.Text) != "" {
			break
		}
		h.Ops = h.Ops[:len(h.Ops)-1]
	}
	if added, removed := h.Stats(); added+removed == 0 {
		return
	}
	h.recount()
	s.cur.Hunks = append(s.cur.Hunks, h)
}

// scanHeaderless handles a diff block that names its file on the first line,
// or only in the preceding paragraph, and has no file header or line numbers.
func (s *scanner) scanHeaderless() {
	lines := s.lines()
	first := 0
	for first < len(lines) && strings.TrimSpace(lines[first]) == "" {
		first++
	}

	path := ""
	if first < len(lines) && looksLikePath(lines[first]) {
		path = strings.TrimSpace(lines[first])
		first++
	} else if m := pathInHintRegex.FindStringSubmatch(s.block.hint); m != nil && looksLikePath(m[1]) {
		path = strings.TrimSpace(m[1])
	}
	if path == "" {
		return
	}

	s.cur = &ParsedDiff{OldPath: cleanPath(path), NewPath: cleanPath(path), Line: s.lineNo(0)}
	s.pos = first
	for s.pos < len(lines) {
		if isBoundary(lines, s.pos) {
			s.pos++
			continue
		}
		s.scanLooseBody(s.lineNo(s.pos))
	}
	s.flush()
}

// skipBody advances past the remaining lines of an excluded hunk.
func (s *scanner) skipBody() {
	lines := s.lines()
	for s.pos < len(lines) && !isBoundary(lines, s.pos) {
		if _, ok := classify(lines[s.pos]); !ok && !strings.HasPrefix(lines[s.pos], `\`) {
			return
		}
		s.pos++
	}
}

func (h *Hunk) markNoNewline(last OpKind) {
	switch last {
	case OpRemove:
		h.NoNewlineOld = true
	case OpAdd:
		h.NoNewlineNew = true
	case OpContext:
		h.NoNewlineOld = true
		h.NoNewlineNew = true
	}
}

func classify(line string) (LineOp, bool) {
	if line == "" {
		return LineOp{Kind: OpContext}, true
	}
	switch line[0] {
	case ' ':
		return LineOp{Kind: OpContext, Text: line[1:]}, true
	case '-':
		return LineOp{Kind: OpRemove, Text: line[1:]}, true
	case '+':
		return LineOp{Kind: OpAdd, Text: line[1:]}, true
	}
	return LineOp{}, false
}

// isBoundary reports whether lines[i] starts a new diff or hunk.
func isBoundary(lines []string, i int) bool {
	l := lines[i]
	return strings.HasPrefix(l, "@@") || strings.HasPrefix(l, "diff --git ") || isFileHeader(lines, i)
}

func isFileHeader(lines []string, i int) bool {
	return strings.HasPrefix(lines[i], "--- ") && i+1 < len(lines) && strings.HasPrefix(lines[i+1], "+++ ")
}

func hasFileHeader(lines []string) bool {
	for i := range lines {
		if isFileHeader(lines, i) {
			return true
		}
	}
	return false
}

func hasNumberedHunk(lines []string) bool {
	for _, l := range lines {
		if hunkHeaderRegex.MatchString(l) {
			return true
		}
	}
	return false
}

// cleanPath strips a trailing timestamp, quotes and a leading ./ from a path.
func cleanPath(p string) string {
	if i := strings.IndexByte(p, '\t'); i >= 0 {
		p = p[:i]
	}
	p = strings.TrimSpace(p)
	if unq, err := strconv.Unquote(p); err == nil {
		p = unq
	}
	return strings.TrimPrefix(p, "./")
}

// fileHeaderPath cleans the path of a --- or +++ line and drops its a/ or b/
// prefix. Paths named anywhere else keep theirs.
func fileHeaderPath(p string) string {
	p = cleanPath(p)
	if strings.HasPrefix(p, "a/") || strings.HasPrefix(p, "b/") {
		p = strings.TrimPrefix(p[2:], "./")
	}
	return p
}

func isPlaceholder(p string) bool {
	switch {
	case p == "", p == DevNull, p == ".", p == "path/to/file":
		return true
	case strings.ContainsAny(p, "<>"), strings.Contains(p, "..."):
		return true
	}
	return false
}

func looksLikePath(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || strings.ContainsAny(s, " \t") {
		return false
	}
	if strings.ContainsAny(s[:1], "+-@\\#") {
		return false
	}
	return strings.ContainsAny(s, "./") && !isPlaceholder(cleanPath(s))
}

// parseHunkRange reads the numbers of a matched hunk header. A missing count
// means 1. It fails when a number does not fit in an int.
func parseHunkRange(m []string) (Hunk, bool) {
	var h Hunk
	for i, dst := range []*int{&h.OldStart, &h.OldLines, &h.NewStart, &h.NewLines} {
		if m[i+1] == "" {
			*dst = 1
			continue
		}
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return Hunk{}, false
		}
		*dst = n
	}
	return h, true
}
