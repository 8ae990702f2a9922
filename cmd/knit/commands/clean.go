package commands

import (
	"github.com/spf13/cobra"
)

func (c *CLI) newCleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Clear the build cache and remove the last outputs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ov, err := overrides(cmd, nil)
			if err != nil {
				return err
			}
			return c.app.Clean(cmd.Context(), projectDir(cmd), ov)
		},
	}
}
