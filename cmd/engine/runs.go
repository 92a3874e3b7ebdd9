package main

import (
	"encoding/json"
	"time"

	"github.com/spf13/cobra"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent ingest runs, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		defer e.logger.Sync()

		limit, _ := cmd.Flags().GetInt("limit")
		ctx := cmd.Context()
		st, closeStore, err := e.openStorage(ctx)
		if err != nil {
			return err
		}
		defer closeStore()

		runs, err := st.RecentRuns(ctx, limit)
		if err != nil {
			return err
		}
		type runView struct {
			ID         string          `json:"id"`
			StartedAt  time.Time       `json:"started_at"`
			FinishedAt time.Time       `json:"finished_at"`
			Aborted    bool            `json:"aborted"`
			Summary    json.RawMessage `json:"summary"`
		}
		out := make([]runView, 0, len(runs))
		for _, r := range runs {
			out = append(out, runView{r.ID, r.StartedAt, r.FinishedAt, r.Aborted, json.RawMessage(r.Summary)})
		}
		return writeJSON(cmd.OutOrStdout(), out)
	},
}

func init() {
	rootCmd.AddCommand(runsCmd)

	runsCmd.Flags().Int("limit", 10, "runs to list")
}
