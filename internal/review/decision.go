package review

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sokinpui/code-llm/internal/parser"
	"github.com/sokinpui/code-llm/internal/patcher"
)

// Action is what the user chose for a hunk.
type Action int

const (
	ActionAccept Action = iota
	ActionReject
	ActionModify
	// ActionAcceptFile accepts this hunk and the rest of the file.
	ActionAcceptFile
	// ActionRejectFile rejects this hunk and the rest of the file.
	ActionRejectFile
	// ActionQuit rejects this hunk and everything after it.
	ActionQuit
)

func (a Action) String() string {
	switch a {
	case ActionAccept:
		return "accept"
	case ActionReject:
		return "reject"
	case ActionModify:
		return "modify"
	case ActionAcceptFile:
		return "accept-file"
	case ActionRejectFile:
		return "reject-file"
	case ActionQuit:
		return "quit"
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// Decision is the answer for one hunk. Replacement is the text of the
// added lines for ActionModify.
type Decision struct {
	Action      Action
	Replacement string
}

func Accept() Decision { return Decision{Action: ActionAccept} }

func Reject() Decision { return Decision{Action: ActionReject} }

func Modify(replacement string) Decision {
	return Decision{Action: ActionModify, Replacement: replacement}
}

// accepts reports whether the hunk is kept.
func (d Decision) accepts() bool {
	return d.Action == ActionAccept || d.Action == ActionModify || d.Action == ActionAcceptFile
}

// Prompt is what a decision source is asked about.
type Prompt struct {
	Path      string
	FileIndex int
	FileCount int
	HunkIndex int
	HunkCount int
	Created   bool
	Hunk      parser.Hunk
	// Preview is the dry-run result of the hunk against the file with the
	// hunks accepted so far applied.
	Preview patcher.Outcome
}

// DecisionSource supplies decisions. Interactive prompts and scripted test
// input both implement it.
type DecisionSource interface {
	Decide(ctx context.Context, p Prompt) (Decision, error)
}

// DecisionFunc adapts a function to DecisionSource.
type DecisionFunc func(ctx context.Context, p Prompt) (Decision, error)

func (f DecisionFunc) Decide(ctx context.Context, p Prompt) (Decision, error) { return f(ctx, p) }

// AutoSource answers every prompt with the same decision.
type AutoSource struct {
	Decision Decision
}

func (s AutoSource) Decide(ctx context.Context, _ Prompt) (Decision, error) {
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}
	return s.Decision, nil
}

// ErrScriptExhausted is returned by ScriptedSource when it runs out of
// decisions.
var ErrScriptExhausted = errors.New("no scripted decisions left")

// ScriptedSource replays a fixed list of decisions and records the prompts
// it saw.
type ScriptedSource struct {
	Decisions []Decision
	Prompts   []Prompt
}

func (s *ScriptedSource) Decide(_ context.Context, p Prompt) (Decision, error) {
	s.Prompts = append(s.Prompts, p)
	if len(s.Prompts) > len(s.Decisions) {
		return Decision{}, ErrScriptExhausted
	}
	return s.Decisions[len(s.Prompts)-1], nil
}

// LineSource asks on a line-oriented terminal:
//
//	y accept   n reject   m modify   a accept rest of file
//	d reject rest of file   q quit
//
// For m the replacement is read up to a line holding a single ".".
type LineSource struct {
	in  *bufio.Reader
	out io.Writer
	// Render prints the hunk before the question. Nil prints the hunk in
	// unified format.
	Render func(w io.Writer, p Prompt)
}

// NewLineSource returns a LineSource reading answers from in.
func NewLineSource(in io.Reader, out io.Writer) *LineSource {
	return &LineSource{in: bufio.NewReader(in), out: out}
}

func (s *LineSource) Decide(ctx context.Context, p Prompt) (Decision, error) {
	if s.Render != nil {
		s.Render(s.out, p)
	} else {
		fmt.Fprintf(s.out, "%s (hunk %d/%d)\n%s", p.Path, p.HunkIndex+1, p.HunkCount, parser.FormatHunk(p.Hunk))
	}

	for {
		if err := ctx.Err(); err != nil {
			return Decision{}, err
		}
		fmt.Fprint(s.out, "Apply this hunk? [y,n,m,a,d,q,?] ")
		answer, err := s.in.ReadString('\n')
		if err != nil && answer == "" {
			return Decision{}, fmt.Errorf("reading decision: %w", err)
		}
		switch strings.TrimSpace(strings.ToLower(answer)) {
		case "y", "yes":
			return Accept(), nil
		case "n", "no":
			return Reject(), nil
		case "a":
			return Decision{Action: ActionAcceptFile}, nil
		case "d":
			return Decision{Action: ActionRejectFile}, nil
		case "q":
			return Decision{Action: ActionQuit}, nil
		case "m":
			text, err := s.readReplacement()
			if err != nil {
				return Decision{}, err
			}
			return Modify(text), nil
		default:
			fmt.Fprintln(s.out, "y - accept this hunk\nn - reject this hunk\nm - replace the added lines\na - accept this and the remaining hunks of the file\nd - reject this and the remaining hunks of the file\nq - reject everything that is left")
		}
	}
}

func (s *LineSource) readReplacement() (string, error) {
	fmt.Fprintln(s.out, "Enter the replacement lines, then a line with a single '.':")
	var lines []string
	for {
		line, err := s.in.ReadString('\n')
		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed == "." {
			break
		}
		if line != "" {
			lines = append(lines, trimmed)
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			return "", fmt.Errorf("reading replacement: %w", err)
		}
	}
	return strings.Join(lines, "\n"), nil
}
