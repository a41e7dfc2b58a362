package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"video-dubber/internal/retention"
)

func newSweepCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete artifacts older than the retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			jobs, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer jobs.Close()

			sweeper := retention.NewSweeper(jobs, cfg.RetentionWindow(), cfg.Paths.OutputDir, cfg.Paths.UploadsDir, cfg.Paths.WorkDir)
			report, err := sweeper.Sweep(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d jobs and %d files older than %s\n",
				report.Jobs, report.Files, cfg.RetentionWindow())
			return nil
		},
	}
}
