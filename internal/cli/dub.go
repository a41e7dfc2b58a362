package cli

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"video-dubber/internal/apperr"
	"video-dubber/internal/logger"
	"video-dubber/models"
	"video-dubber/services"
)

func newDubCommand(ctx *commandContext) *cobra.Command {
	var (
		multiSpeaker bool
		sourceLang   string
		targetLang   string
		mode         string
		asJSON       bool
	)
	cmd := &cobra.Command{
		Use:   "dub <video>",
		Short: "Dub a local video file and print its subtitles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if mode != "" {
				cfg.Pipeline.Mode = models.ResilienceMode(mode)
				if err := cfg.Validate(); err != nil {
					return err
				}
			}

			videoPath, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			rt, err := services.NewRuntime(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			duration, err := rt.FFmpeg.Duration(cmd.Context(), videoPath)
			if err != nil {
				return err
			}
			if limit := cfg.MaxVideoDuration(); duration > limit {
				return fmt.Errorf("%w: video is %.0fs long, the limit is %.0fs",
					apperr.ErrValidation, duration.Seconds(), limit.Seconds())
			}

			jobs, err := ctx.openStore()
			if err != nil {
				logger.Warn("Job store unavailable, continuing without history: %v", err)
			} else {
				defer jobs.Close()
				rt.Pipeline.SetRecorder(jobs)
			}

			if sourceLang == "" {
				sourceLang = cfg.Pipeline.SourceLang
			}
			if targetLang == "" {
				targetLang = cfg.Pipeline.TargetLang
			}
			job := models.NewDubbingJob(videoPath, filepath.Base(videoPath), sourceLang, targetLang, multiSpeaker)
			job.RequestID = "cli"

			rt.Pipeline.SetProgressCallback(func(j *models.DubbingJob, message string) {
				logger.Info("[%s] %s", j.State, message)
			})
			result, err := rt.Pipeline.Process(cmd.Context(), job)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{
					"subtitles":      result.Subtitles,
					"audioPath":      result.AudioPath,
					"subtitlesPath":  result.SRTPath,
					"processingTime": job.Elapsed().Seconds(),
				})
			}
			fmt.Fprintln(out, renderSubtitles(result.Subtitles))
			fmt.Fprintf(out, "Audio:     %s\n", result.AudioPath)
			if result.SRTPath != "" {
				fmt.Fprintf(out, "Subtitles: %s\n", result.SRTPath)
			}
			fmt.Fprintf(out, "Speakers:  %d", result.Speakers)
			if result.Alternated {
				fmt.Fprint(out, " (alternated)")
			}
			fmt.Fprintf(out, "\nElapsed:   %.1fs\n", job.Elapsed().Seconds())
			if result.Placeholders > 0 {
				fmt.Fprintf(out, "Warning:   %d clips were replaced by silence\n", result.Placeholders)
			}
			if result.Translation.Untranslated > 0 {
				fmt.Fprintf(out, "Warning:   %d sentences kept their original text\n", result.Translation.Untranslated)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&multiSpeaker, "multi-speaker", "m", false, "Enable speaker diarization")
	cmd.Flags().StringVar(&sourceLang, "source", "", "Source language (default from config)")
	cmd.Flags().StringVar(&targetLang, "target", "", "Target language (default from config)")
	cmd.Flags().StringVar(&mode, "mode", "", "Resilience mode: strict or best_effort")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
	return cmd
}

func renderSubtitles(subs models.SubtitleList) string {
	rows := make([][]string, 0, len(subs))
	for i, s := range subs {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			fmt.Sprintf("%.2f", s.Start),
			fmt.Sprintf("%.2f", s.End),
			fmt.Sprintf("S%d", s.SpeakerTag),
			s.OriginalEN,
			s.Twi,
		})
	}
	return renderTable(
		[]string{"#", "Start", "End", "Speaker", "Original", "Translation"},
		rows,
		[]columnAlignment{alignRight, alignRight, alignRight, alignLeft, alignLeft, alignLeft},
	)
}
