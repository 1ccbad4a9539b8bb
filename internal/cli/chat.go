package cli

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/sokinpui/code-llm/internal/app"
	"github.com/sokinpui/code-llm/internal/review"
	"github.com/sokinpui/code-llm/internal/tui"
	"github.com/sokinpui/code-llm/internal/ui"
)

func (c *command) runChat(cmd *cobra.Command, args []string) error {
	p, err := c.setup()
	if err != nil {
		return err
	}
	defer p.close()

	backend, err := c.backend(p.cfg, p.logger)
	if err != nil {
		return err
	}

	opts := app.Options{
		Backend:   backend,
		Decisions: c.decisions(),
		Watch:     !c.flags.noWatch,
	}
	loop := &app.Loop{In: c.in, Out: c.env.Stdout, APIURL: p.cfg.APIURL}
	if c.interactive() {
		opts.Wait = func(ctx context.Context, task tui.Task) (string, error) {
			return tui.Run(ctx, "Waiting for "+p.cfg.Model, task, tea.WithOutput(c.env.Stderr))
		}
		loop.Render = func(text string) string { return ui.Markdown(text, 0) }
	}

	a, err := p.newApp(opts)
	if err != nil {
		return err
	}
	defer a.Close()
	loop.App = a
	return loop.Run(cmd.Context())
}

// decisions picks how hunks are reviewed: a full-screen picker on a
// terminal, numbered line prompts otherwise.
func (c *command) decisions() review.DecisionSource {
	if c.interactive() {
		return tui.NewPicker(tea.WithOutput(c.env.Stderr))
	}
	src := review.NewLineSource(c.in, c.env.Stderr)
	src.Render = ui.RenderPrompt
	return src
}
