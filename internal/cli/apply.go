package cli

import (
	"fmt"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/sokinpui/code-llm/internal/app"
	"github.com/sokinpui/code-llm/internal/review"
	"github.com/sokinpui/code-llm/internal/source"
	"github.com/sokinpui/code-llm/internal/tui"
	"github.com/sokinpui/code-llm/internal/ui"
)

type applyFlags struct {
	yes        bool
	printFixed bool
}

func (c *command) newApplyCmd() *cobra.Command {
	var f applyFlags
	cmd := &cobra.Command{
		Use:   "apply [file]",
		Short: "Review the diffs of a model response from a file, stdin or the clipboard",
		Long: `Review the unified diffs found in a model response without talking to a model.

The response is read from the file argument ("-" for stdin), from stdin when it
is piped, and from the clipboard otherwise.`,
		Example: "  pbpaste | code-llm apply\n  code-llm apply --print-fixed answer.md",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runApply(cmd, args, f)
		},
	}
	cmd.Flags().BoolVarP(&f.yes, "yes", "y", false, "Accept every hunk without asking")
	cmd.Flags().BoolVarP(&f.printFixed, "print-fixed", "o", false, "Print the diffs with corrected hunk headers instead of applying them")
	cmd.MarkFlagsMutuallyExclusive("yes", "print-fixed")
	return cmd
}

// readResponse returns the response text and whether it consumed stdin.
func (c *command) readResponse(args []string) (string, bool, error) {
	if len(args) == 1 && args[0] != "-" {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return "", false, err
		}
		return string(data), false, nil
	}
	if len(args) == 1 {
		data, err := io.ReadAll(c.in)
		if err != nil {
			return "", true, fmt.Errorf("failed to read from stdin: %w", err)
		}
		return string(data), true, nil
	}

	p := c.env.Source
	if p == nil {
		p = source.New()
		p.Stdin = c.in
	}
	ui.Info("Reading response from %s.", p.Origin())
	content, err := p.Content()
	return content, p.Origin() == "stdin", err
}

func (c *command) runApply(cmd *cobra.Command, args []string, f applyFlags) error {
	content, fromStdin, err := c.readResponse(args)
	if err != nil {
		return err
	}
	if content == "" {
		ui.Warning("Nothing to apply: the response is empty.")
		return nil
	}

	p, err := c.setup()
	if err != nil {
		return err
	}
	defer p.close()
	a, err := p.newApp(app.Options{})
	if err != nil {
		return err
	}
	defer a.Close()

	if f.printFixed {
		fixed, errs := a.Correct(content)
		fmt.Fprint(c.env.Stdout, fixed)
		ui.PrintDiagnostics("Hunks dropped", errs)
		return nil
	}

	var src review.DecisionSource
	switch {
	case f.yes:
		src = review.AutoSource{Decision: review.Accept()}
	case fromStdin:
		tty, err := os.Open("/dev/tty")
		if err != nil {
			return fmt.Errorf("the response was read from stdin and no terminal is left for the review, use --yes: %w", err)
		}
		defer tty.Close()
		src = c.ttyDecisions(tty)
	default:
		src = c.decisions()
	}

	res, err := a.ApplyText(cmd.Context(), content, src)
	if res != nil {
		ui.PrintDiagnostics("Diff fragments skipped", res.Diagnostics)
	}
	if err != nil {
		return err
	}
	if res.Review == nil {
		ui.Warning("No diffs found in the response.")
		return nil
	}
	ui.PrintReviewSummary(res.Review)
	if n := res.Review.Count(review.StatusConflict) + res.Review.Count(review.StatusWriteError); n > 0 {
		return fmt.Errorf("%d file(s) could not be applied", n)
	}
	return nil
}

// ttyDecisions reviews through the controlling terminal when stdin carried
// the response.
func (c *command) ttyDecisions(tty *os.File) review.DecisionSource {
	if c.flags.plain {
		src := review.NewLineSource(tty, c.env.Stderr)
		src.Render = ui.RenderPrompt
		return src
	}
	return tui.NewPicker(tea.WithInput(tty), tea.WithOutput(c.env.Stderr))
}
