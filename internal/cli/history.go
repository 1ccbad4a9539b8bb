package cli

import (
	"github.com/spf13/cobra"

	"github.com/sokinpui/code-llm/internal/app"
	"github.com/sokinpui/code-llm/internal/ui"
)

func (c *command) newHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List archived review sessions",
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
			records, err := a.Store().List()
			if err != nil {
				return err
			}
			ui.PrintHistory(records)
			return nil
		},
	}
}

func (c *command) newUndoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "undo [session-id]",
		Short: "Restore the files written by a review session",
		Long: `Restore the files written by a review session, the latest one by default.
Files edited since the session are left alone.`,
		Args: cobra.MaximumNArgs(1),
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
			var id string
			if len(args) == 1 {
				id = args[0]
			}
			rec, res, err := a.Undo(id)
			if err != nil {
				return err
			}
			ui.Header("Reverted session %s", rec.ID)
			ui.PrintRevertSummary(res)
			return nil
		},
	}
}
