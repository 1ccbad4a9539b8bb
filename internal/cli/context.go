package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sokinpui/code-llm/internal/app"
	"github.com/sokinpui/code-llm/internal/ui"
)

func (c *command) newContextCmd() *cobra.Command {
	var pathsOnly bool
	cmd := &cobra.Command{
		Use:   "context",
		Short: "Print the project context sent with every request",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := c.setup()
			if err != nil {
				return err
			}
			defer p.close()
			a, err := p.newApp(app.Options{})
			if err != nil {
				return err
			}
			b, err := a.BuildContext()
			if err != nil {
				return err
			}
			if pathsOnly {
				for _, path := range b.Paths() {
					fmt.Fprintln(c.env.Stdout, path)
				}
			} else {
				fmt.Fprint(c.env.Stdout, b.Render())
			}
			ui.PrintBundleReport(b)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&pathsOnly, "paths", "p", false, "List the included paths only")
	return cmd
}
