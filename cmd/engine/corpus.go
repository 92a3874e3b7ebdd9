package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"jobmatch-engine/internal/corpus"
	"jobmatch-engine/internal/domain"
)

var corpusCmd = &cobra.Command{
	Use:   "corpus",
	Short: "Manage the IDF reference corpus",
}

var corpusBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the background corpus snapshot from stored jobs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return corpusBuild(cmd)
	},
}

func init() {
	rootCmd.AddCommand(corpusCmd)
	corpusCmd.AddCommand(corpusBuildCmd)

	corpusBuildCmd.Flags().Int("max-jobs", 0, "newest jobs to include (default scoring.corpus_max_jobs)")
	corpusBuildCmd.Flags().StringP("output", "o", "", "snapshot path (default scoring.corpus_path)")
}

func corpusBuild(cmd *cobra.Command) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	defer e.logger.Sync()

	maxJobs, _ := cmd.Flags().GetInt("max-jobs")
	if maxJobs <= 0 {
		maxJobs = e.cfg.Scoring.CorpusMaxJobs
	}
	out, _ := cmd.Flags().GetString("output")
	if out == "" {
		out = e.path(e.cfg.Scoring.CorpusPath)
	}

	ctx := cmd.Context()
	st, closeStore, err := e.openStorage(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	stats, err := corpus.Build(ctx, limitedJobs{st, maxJobs}, e.normalizer(), time.Now().UTC())
	if err != nil {
		return err
	}
	if err := corpus.Save(out, stats); err != nil {
		return err
	}
	e.logger.Info("corpus snapshot written",
		zap.String("path", out),
		zap.Int("docs", stats.Len()),
		zap.Int("terms", len(stats.DF)),
	)
	return nil
}

// limitedJobs caps corpus builds to the newest max jobs.
type limitedJobs struct {
	jobs corpus.JobLister
	max  int
}

func (l limitedJobs) QueryJobs(ctx context.Context, q domain.JobQuery) ([]domain.Job, error) {
	if l.max > 0 && (q.Limit <= 0 || q.Limit > l.max) {
		q.Limit = l.max
	}
	return l.jobs.QueryJobs(ctx, q)
}
