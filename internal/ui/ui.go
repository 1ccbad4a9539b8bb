package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/sokinpui/code-llm/internal/bundle"
	"github.com/sokinpui/code-llm/internal/parser"
	"github.com/sokinpui/code-llm/internal/patcher"
	"github.com/sokinpui/code-llm/internal/review"
	"github.com/sokinpui/code-llm/internal/state"
)

// Out receives every message printed by this package.
var Out io.Writer = os.Stderr

var (
	HeaderColor  = color.New(color.FgBlue, color.Bold)
	InfoColor    = color.New(color.FgCyan)
	SuccessColor = color.New(color.FgGreen)
	WarningColor = color.New(color.FgYellow)
	ErrorColor   = color.New(color.FgRed)
	PathColor    = color.New(color.FgYellow)
	PromptColor  = color.New(color.FgMagenta)
	AddColor     = color.New(color.FgGreen)
	RemoveColor  = color.New(color.FgRed)
	FaintColor   = color.New(color.Faint)
)

func Header(format string, a ...interface{}) {
	HeaderColor.Fprintf(Out, format+"\n", a...)
}

func Info(format string, a ...interface{}) {
	InfoColor.Fprintf(Out, format+"\n", a...)
}

func Success(format string, a ...interface{}) {
	SuccessColor.Fprintf(Out, format+"\n", a...)
}

func Warning(format string, a ...interface{}) {
	WarningColor.Fprintf(Out, format+"\n", a...)
}

func Error(format string, a ...interface{}) {
	ErrorColor.Fprintf(Out, format+"\n", a...)
}

func Path(format string, a ...interface{}) {
	PathColor.Fprintf(Out, "  "+format+"\n", a...)
}

func Prompt(format string, a ...interface{}) string {
	return PromptColor.Sprintf(format, a...)
}

func list(items []string) {
	for _, f := range items {
		fmt.Fprintf(Out, "  - %s\n", f)
	}
}

// --- Hunks ---

// RenderHunk writes h in unified format with added and removed lines
// coloured.
func RenderHunk(w io.Writer, h parser.Hunk) {
	for _, line := range strings.SplitAfter(parser.FormatHunk(h), "\n") {
		switch {
		case line == "":
		case strings.HasPrefix(line, "@@"):
			InfoColor.Fprint(w, line)
		case strings.HasPrefix(line, "+"):
			AddColor.Fprint(w, line)
		case strings.HasPrefix(line, "-"):
			RemoveColor.Fprint(w, line)
		case strings.HasPrefix(line, `\`):
			FaintColor.Fprint(w, line)
		default:
			fmt.Fprint(w, line)
		}
	}
}

// RenderPrompt shows a hunk under review together with how it would apply.
func RenderPrompt(w io.Writer, p review.Prompt) {
	title := fmt.Sprintf("[%d/%d] %s (hunk %d/%d)", p.FileIndex+1, p.FileCount, p.Path, p.HunkIndex+1, p.HunkCount)
	if p.Created {
		title += " (new file)"
	}
	HeaderColor.Fprintln(w, "\n"+title)
	RenderHunk(w, p.Hunk)

	switch o := p.Preview; o.Status {
	case patcher.StatusApplied:
		var notes []string
		if o.Offset != 0 {
			notes = append(notes, fmt.Sprintf("offset %+d", o.Offset))
		}
		if o.Fuzzy {
			notes = append(notes, "whitespace ignored")
		}
		if len(notes) > 0 {
			WarningColor.Fprintf(w, "Applies at line %d (%s)\n", o.Line, strings.Join(notes, ", "))
		}
	case patcher.StatusRejected:
		ErrorColor.Fprintf(w, "Will not apply: %s\n", o.Reason)
	case patcher.StatusConflict:
		ErrorColor.Fprintf(w, "Conflict: %v\n", o.Conflict)
		if o.Conflict != nil && o.Conflict.Detail != "" {
			FaintColor.Fprint(w, o.Conflict.Detail)
		}
	}
}

// --- Summaries ---

func PrintReviewSummary(res *review.Result) {
	Header("\n--- Review Summary ---")

	var applied, created, rejected, failed []string
	for _, f := range res.Files {
		switch f.Status {
		case review.StatusApplied:
			if f.After == f.Before && !f.Created {
				continue
			}
			label := fmt.Sprintf("%s (%d of %d hunks)", f.Path, f.Accepted(), len(f.Hunks))
			if f.Created {
				created = append(created, label)
			} else {
				applied = append(applied, label)
			}
		case review.StatusRejected:
			label := f.Path
			if f.Reason != "" {
				label += ": " + f.Reason
			}
			rejected = append(rejected, label)
		case review.StatusConflict:
			label := f.Path + ": "
			if f.Conflict != nil {
				label += f.Conflict.Error()
			} else {
				label += f.Reason
			}
			failed = append(failed, label)
		case review.StatusWriteError:
			failed = append(failed, fmt.Sprintf("%s: %v", f.Path, f.Err))
		}
	}

	if len(applied)+len(created)+len(rejected)+len(failed) == 0 {
		Info("No files were updated.")
		return
	}
	if len(applied) > 0 {
		Success("Modified %d file(s):", len(applied))
		list(applied)
	}
	if len(created) > 0 {
		Success("Created %d new file(s):", len(created))
		list(created)
	}
	if len(rejected) > 0 {
		Warning("Left %d file(s) unchanged:", len(rejected))
		list(rejected)
	}
	if len(failed) > 0 {
		Error("Failed to update %d file(s):", len(failed))
		list(failed)
	}
	if res.Err != nil {
		Error("Review ended early: %v", res.Err)
	}
	if res.Archive != "" {
		Info("Session %s archived. Run 'code-llm undo' to revert it.", shortID(res.ID))
	}
}

func PrintRevertSummary(r state.RevertResult) {
	Header("\n--- Revert Summary ---")
	if len(r.Restored) > 0 {
		Success("Restored %d file(s):", len(r.Restored))
		list(r.Restored)
	}
	if len(r.Removed) > 0 {
		Success("Removed %d created file(s):", len(r.Removed))
		list(r.Removed)
	}
	if len(r.Skipped) > 0 {
		Error("Skipped %d file(s):", len(r.Skipped))
		for path, reason := range r.Skipped {
			fmt.Fprintf(Out, "  - %s: %s\n", path, reason)
		}
	}
}

// PrintDiagnostics lists soft failures under a heading.
func PrintDiagnostics(title string, errs []error) {
	if len(errs) == 0 {
		return
	}
	Warning("%s (%d):", title, len(errs))
	for _, err := range errs {
		fmt.Fprintf(Out, "  - %v\n", err)
	}
}

// PrintBundleReport describes what went into a context bundle.
func PrintBundleReport(b *bundle.Bundle) {
	Info("Context: %d file(s), %s of %s", len(b.Entries),
		humanize.IBytes(uint64(b.TotalBytes)), humanize.IBytes(uint64(b.MaxContextSize)))
	if len(b.Skipped) > 0 {
		Warning("Skipped %d file(s):", len(b.Skipped))
		for _, s := range b.Skipped {
			fmt.Fprintf(Out, "  - %s (%s)\n", s.Path, s.Detail)
		}
	}
	if b.Truncated() {
		Warning("Context truncated: %d file(s) did not fit.", b.Omitted)
	}
	PrintDiagnostics("Problems while scanning", b.Diagnostics)
}

// PrintHistory lists archived sessions, newest last.
func PrintHistory(records []state.SessionRecord) {
	if len(records) == 0 {
		Info("No archived sessions.")
		return
	}
	for _, rec := range records {
		written := rec.Written()
		line := fmt.Sprintf("%s  %s  %d file(s) written, %d reviewed",
			shortID(rec.ID), rec.Time.Local().Format("2006-01-02 15:04:05"), len(written), len(rec.Files))
		switch {
		case rec.Reverted:
			FaintColor.Fprintln(Out, line+"  (reverted)")
		case len(written) == 0:
			fmt.Fprintln(Out, line)
		default:
			SuccessColor.Fprintln(Out, line)
		}
		for _, f := range written {
			Path("%s", f.Path)
		}
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
