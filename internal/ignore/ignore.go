// Package ignore evaluates project paths against gitignore-style rules.
//
// Rules are kept as a flat ordered list and evaluated last-match-wins. Rules
// read from an ignore file only apply below the directory holding that file,
// and a path inside an ignored directory stays ignored whatever later rules
// say about the path itself.
package ignore

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"
)

// ToolDir is the directory the tool keeps its own configuration and state in.
const ToolDir = ".code-llm"

var (
	ErrEmptyPattern    = errors.New("empty pattern")
	ErrUnclosedBracket = errors.New("unclosed character class")
	ErrTrailingEscape  = errors.New("trailing backslash")
)

// Rule is one compiled pattern line.
type Rule struct {
	// Pattern is the pattern as written, without the negation prefix.
	Pattern string
	// Source names where the rule came from ("builtin", ".gitignore", ...).
	Source string
	// Base is the directory, relative to the scan root, of the ignore file
	// that declared the rule. Empty for the root.
	Base string
	// Depth is the number of path components in Base.
	Depth    int
	Negate   bool
	Anchored bool
	DirOnly  bool

	re *regexp.Regexp
}

// RuleError reports a pattern line that could not be compiled. It is a
// warning: the line is skipped and the remaining rules still apply.
type RuleError struct {
	Source  string
	Line    int
	Pattern string
	Err     error
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("%s:%d: skipping ignore pattern %q: %v", e.Source, e.Line, e.Pattern, e.Err)
}

func (e *RuleError) Unwrap() error { return e.Err }

// Builtin returns the rules that always apply: version-control metadata and
// the tool's own directory.
func Builtin() []Rule {
	var rules []Rule
	for _, p := range []string{".git/", ".hg/", ".svn/", ToolDir + "/"} {
		r, ok, err := ParseRule("", "builtin", p)
		if err != nil || !ok {
			panic(fmt.Sprintf("invalid builtin ignore pattern %q: %v", p, err))
		}
		rules = append(rules, r)
	}
	return rules
}

// Compile parses the content of an ignore file found in directory base
// (relative to the scan root). Malformed lines are returned as *RuleError
// values and skipped.
func Compile(base, source, content string) ([]Rule, []error) {
	var (
		rules []Rule
		errs  []error
	)
	for i, line := range strings.Split(content, "\n") {
		r, ok, err := ParseRule(base, source, line)
		if err != nil {
			errs = append(errs, &RuleError{Source: source, Line: i + 1, Pattern: strings.TrimSpace(line), Err: err})
			continue
		}
		if ok {
			rules = append(rules, r)
		}
	}
	return rules, errs
}

// ParseRule compiles a single ignore-file line. ok is false for blank lines
// and comments.
func ParseRule(base, source, line string) (rule Rule, ok bool, err error) {
	line = strings.TrimSuffix(line, "\r")
	line = trimTrailingSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return Rule{}, false, nil
	}

	r := Rule{Source: source, Base: strings.Trim(path.Clean("/"+base), "/")}
	if r.Base != "" {
		r.Depth = strings.Count(r.Base, "/") + 1
	}

	switch {
	case strings.HasPrefix(line, "!"):
		r.Negate = true
		line = line[1:]
	case strings.HasPrefix(line, `\!`), strings.HasPrefix(line, `\#`):
		line = line[1:]
	}

	if strings.HasSuffix(line, "/") {
		r.DirOnly = true
		line = strings.TrimRight(line, "/")
	}
	if line == "" {
		return Rule{}, false, ErrEmptyPattern
	}
	if strings.Contains(line, "/") {
		r.Anchored = true
		line = strings.TrimLeft(line, "/")
		if line == "" {
			return Rule{}, false, ErrEmptyPattern
		}
	}
	r.Pattern = line

	expr, err := globToRegexp(line)
	if err != nil {
		return Rule{}, false, err
	}
	r.re, err = regexp.Compile("^" + expr + "$")
	if err != nil {
		return Rule{}, false, err
	}
	return r, true, nil
}

// trimTrailingSpace drops trailing spaces unless the last one is escaped.
func trimTrailingSpace(s string) string {
	for strings.HasSuffix(s, " ") && !strings.HasSuffix(s, `\ `) {
		s = s[:len(s)-1]
	}
	if strings.HasSuffix(s, `\ `) {
		s = s[:len(s)-2] + " "
	}
	return s
}

func globToRegexp(p string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(p); i++ {
		c := p[i]
		switch c {
		case '*':
			if i+1 < len(p) && p[i+1] == '*' {
				i++
				if i+1 < len(p) && p[i+1] == '/' {
					i++
					b.WriteString("(?:.*/)?")
				} else {
					b.WriteString(".*")
				}
				continue
			}
			b.WriteString("[^/]*")
		case '?':
			b.WriteString("[^/]")
		case '[':
			j := i + 1
			if j < len(p) && (p[j] == '!' || p[j] == '^') {
				j++
			}
			// A ']' right after the opening bracket is a literal member.
			if j < len(p) && p[j] == ']' {
				j++
			}
			end := strings.IndexByte(p[j:], ']')
			if end < 0 {
				return "", ErrUnclosedBracket
			}
			closing := j + end
			class := p[i+1 : closing]
			b.WriteByte('[')
			if strings.HasPrefix(class, "!") || strings.HasPrefix(class, "^") {
				b.WriteByte('^')
				class = class[1:]
			}
			b.WriteString(strings.ReplaceAll(class, `\`, `\\`))
			b.WriteByte(']')
			i = closing
		case '\\':
			if i+1 >= len(p) {
				return "", ErrTrailingEscape
			}
			i++
			b.WriteString(regexp.QuoteMeta(string(p[i])))
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	return b.String(), nil
}

// match reports whether the rule's pattern matches rel, ignoring polarity.
func (r *Rule) match(rel string, isDir bool) bool {
	if r.DirOnly && !isDir {
		return false
	}
	if r.Base != "" {
		if !strings.HasPrefix(rel, r.Base+"/") {
			return false
		}
		rel = rel[len(r.Base)+1:]
	}
	if r.Anchored {
		return r.re.MatchString(rel)
	}
	return r.re.MatchString(path.Base(rel))
}

// Matcher is an immutable ordered rule set.
type Matcher struct {
	rules []Rule
}

// New returns a matcher over rules in the given order.
func New(rules ...Rule) *Matcher {
	return &Matcher{rules: append([]Rule(nil), rules...)}
}

// With returns a new matcher with rules appended after the receiver's rules.
// The receiver is left unchanged.
func (m *Matcher) With(rules ...Rule) *Matcher {
	if len(rules) == 0 {
		return m
	}
	out := make([]Rule, 0, len(m.rules)+len(rules))
	out = append(out, m.rules...)
	out = append(out, rules...)
	return &Matcher{rules: out}
}

// Rules returns a copy of the rule list.
func (m *Matcher) Rules() []Rule {
	return append([]Rule(nil), m.rules...)
}

// Matches reports whether rel (slash separated, relative to the scan root)
// is ignored. A trailing slash marks rel as a directory.
func (m *Matcher) Matches(rel string) bool {
	isDir := strings.HasSuffix(rel, "/")
	return m.Match(strings.TrimSuffix(rel, "/"), isDir)
}

// Match reports whether rel is ignored. Each ancestor directory is checked
// first; an ignored ancestor ignores rel regardless of its own rules.
func (m *Matcher) Match(rel string, isDir bool) bool {
	rel = normalize(rel)
	if rel == "" {
		return false
	}
	for i := 0; i < len(rel); i++ {
		if rel[i] == '/' && m.matchSelf(rel[:i], true) {
			return true
		}
	}
	return m.matchSelf(rel, isDir)
}

func (m *Matcher) matchSelf(rel string, isDir bool) bool {
	ignored := false
	for i := range m.rules {
		if m.rules[i].match(rel, isDir) {
			ignored = !m.rules[i].Negate
		}
	}
	return ignored
}

func normalize(rel string) string {
	rel = path.Clean("/" + rel)
	return strings.TrimPrefix(rel, "/")
}
