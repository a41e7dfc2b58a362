package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"video-dubber/internal/media"
)

func newMuxCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "mux <video> <audio> <output>",
		Short: "Replace a video's audio track with a dubbed track",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			ff := media.NewFFmpegService(cfg.Paths.FFmpeg)
			if err := ff.Mux(cmd.Context(), args[0], args[1], args[2]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", args[2])
			return nil
		},
	}
}
