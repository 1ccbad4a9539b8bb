package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sokinpui/code-llm/internal/config"
	"github.com/sokinpui/code-llm/internal/ui"
)

func (c *command) newInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a project config with the default settings",
		Long: `Write .code-llm/config.toml in the project root with every setting at its
default value. Settings in the project config override ~/.code-llm/config.toml.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := c.projectRoot()
			if err != nil {
				return err
			}
			path, err := config.Init(root, force)
			if errors.Is(err, config.ErrConfigExists) {
				return fmt.Errorf("%w, use --force to overwrite it", err)
			}
			if err != nil {
				return err
			}
			ui.Success("Wrote %s", path)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing project config")
	return cmd
}
