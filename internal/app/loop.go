package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sokinpui/code-llm/internal/llm"
	"github.com/sokinpui/code-llm/internal/ui"
)

// Loop is the interactive conversation: read a request, answer it, review
// the proposed edits, repeat until "exit" or end of input.
type Loop struct {
	App *App
	In  *bufio.Reader
	// Out receives the model's answers.
	Out io.Writer
	// Render formats an answer for display. Nil prints it unchanged.
	Render func(string) string
	// APIURL is shown when the backend fails.
	APIURL string
}

func (l *Loop) Run(ctx context.Context) error {
	ui.Success("Welcome to code-llm! Using model: %s", l.App.cfg.Model)
	ui.Info("Type your questions/requests or 'exit' to quit.")
	b, err := l.App.BuildContext()
	if err != nil {
		return err
	}
	ui.PrintBundleReport(b)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		fmt.Fprint(ui.Out, ui.Prompt("You: "))
		line, err := l.In.ReadString('\n')
		if err != nil && line == "" {
			if errors.Is(err, io.EOF) {
				ui.Info("\nExiting.")
				return nil
			}
			return fmt.Errorf("failed to read input: %w", err)
		}

		input := strings.TrimSpace(line)
		switch {
		case input == "":
			continue
		case strings.EqualFold(input, "exit"):
			return nil
		}

		if changed := l.App.Changed(); len(changed) > 0 {
			ui.Info("Refreshing context: %d file(s) changed.", len(changed))
			if _, err := l.App.BuildContext(); err != nil {
				ui.Error("Error: %v", err)
				continue
			}
		}

		text, err := l.App.Ask(ctx, input)
		if err != nil {
			l.reportError(err)
			continue
		}
		l.print(text)

		res, err := l.App.Review(ctx, text)
		if err != nil {
			l.reportError(err)
		}
		if res != nil {
			ui.PrintDiagnostics("Diff fragments skipped", res.Diagnostics)
			if res.Review != nil {
				ui.PrintReviewSummary(res.Review)
			}
		}
	}
}

func (l *Loop) reportError(err error) {
	var de *DetailedError
	if errors.As(err, &de) {
		fmt.Fprintf(ui.Out, "\n--- Stack Trace ---\n%s\n", de.Stack)
	}
	ui.Error("Error: %v", err)
	if errors.Is(err, llm.ErrUnavailable) && l.APIURL != "" {
		ui.Warning("API URL: %s/api/generate", strings.TrimRight(l.APIURL, "/"))
	}
}

func (l *Loop) print(text string) {
	if l.Render != nil {
		text = l.Render(text)
	}
	fmt.Fprintf(l.Out, "%s\n", strings.TrimRight(text, "\n"))
}
