package commands

import (
	"errors"

	"github.com/spf13/cobra"

	"go.trai.ch/knit/internal/core/domain"
)

func (c *CLI) newBuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build [entries...]",
		Short: "Build the project once",
		Long:  "Build the project once. Entries default to the ones in the config file.",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ov, err := overrides(cmd, args)
			if err != nil {
				return err
			}
			result, err := c.app.Build(cmd.Context(), projectDir(cmd), ov)
			if err != nil && result != nil {
				// The reporters have printed the diagnostics.
				return errors.Join(domain.ErrBuildFailed, err)
			}
			return err
		},
	}
	addBuildFlags(cmd)
	return cmd
}

func (c *CLI) newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [entries...]",
		Short: "Build the project and rebuild on changes",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ov, err := overrides(cmd, args)
			if err != nil {
				return err
			}
			return c.app.Watch(cmd.Context(), projectDir(cmd), ov)
		},
	}
	addBuildFlags(cmd)
	return cmd
}
