package commands

import (
	"errors"
	"fmt"
	"slices"

	"github.com/spf13/cobra"
	"go.trai.ch/zerr"

	"go.trai.ch/knit/internal/core/domain"
)

func (c *CLI) newWorkersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "Manage the worker pool",
	}

	ping := &cobra.Command{
		Use:   "ping",
		Short: "Start the worker pool and ping every worker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ov, err := overrides(cmd, nil)
			if err != nil {
				return err
			}
			replies, err := c.app.PingWorkers(cmd.Context(), projectDir(cmd), ov)
			if err != nil {
				return err
			}
			slices.SortFunc(replies, func(a, b domain.WorkerReply) int { return a.WorkerID - b.WorkerID })

			var errs error
			out := cmd.OutOrStdout()
			for _, r := range replies {
				if r.Err != nil {
					errs = errors.Join(errs, zerr.With(r.Err, "worker", r.WorkerID))
					_, _ = fmt.Fprintf(out, "worker %d: %v\n", r.WorkerID, r.Err)
					continue
				}
				_, _ = fmt.Fprintf(out, "worker %d: %s\n", r.WorkerID, r.Payload)
			}
			return errs
		},
	}
	ping.Flags().IntP("workers", "w", 0, "Number of workers")
	cmd.AddCommand(ping)
	return cmd
}
