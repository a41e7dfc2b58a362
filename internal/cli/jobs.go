package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"video-dubber/internal/store"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List recorded dubbing jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jobs, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer jobs.Close()

			records, err := jobs.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(out, "No jobs recorded")
				return nil
			}
			fmt.Fprintln(out, renderJobs(records))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of jobs to show (0 for all)")
	return cmd
}

func renderJobs(records []store.Record) string {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		elapsed := "-"
		if r.CompletedAt != nil {
			elapsed = r.CompletedAt.Sub(r.CreatedAt).Round(100 * time.Millisecond).String()
		}
		rows = append(rows, []string{
			strconv.FormatInt(r.StartTime, 10),
			string(r.State),
			r.FileName,
			r.SourceLang + "→" + r.TargetLang,
			r.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			elapsed,
			truncate(r.ErrorMessage, 48),
		})
	}
	return renderTable(
		[]string{"Job", "State", "File", "Langs", "Created", "Elapsed", "Error"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	)
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
