package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"video-dubber/internal/api"
	"video-dubber/internal/logger"
	"video-dubber/internal/retention"
	"video-dubber/services"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP dubbing server with periodic retention sweeps",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := services.NewRuntime(runCtx, cfg)
			if err != nil {
				return err
			}
			defer rt.Close()
			if err := rt.FFmpeg.CheckInstalled(runCtx); err != nil {
				return err
			}

			jobs, err := ctx.openStore()
			if err != nil {
				return fmt.Errorf("open job store: %w", err)
			}
			defer jobs.Close()
			rt.Pipeline.SetRecorder(jobs)

			sweeper := retention.NewSweeper(jobs, cfg.RetentionWindow(), cfg.Paths.OutputDir, cfg.Paths.UploadsDir, cfg.Paths.WorkDir)
			go sweeper.Run(runCtx, cfg.SweepInterval())

			logger.Info("Pipeline: mode=%s transcription=%s translation=%s tts=%s",
				cfg.Pipeline.Mode, cfg.Transcription.Provider, cfg.Translation.Provider, cfg.TTS.Provider)
			server := api.NewServer(cfg, rt.Pipeline, rt.Muxer, rt.FFmpeg)
			return server.ListenAndServe(runCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	return cmd
}
