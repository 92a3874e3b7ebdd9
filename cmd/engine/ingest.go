package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"jobmatch-engine/internal/events"
	"jobmatch-engine/internal/feature"
	"jobmatch-engine/internal/ingest"
	"jobmatch-engine/internal/store"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Fetch every enabled source once and print the run summary",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runIngest(cmd)
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().StringSlice("only", nil, "run only these sources (e.g. arbeitnow,greenhouse)")
	ingestCmd.Flags().String("events", "", "append job_created/job_updated events as JSON lines to this file")
}

func runIngest(cmd *cobra.Command) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	defer e.logger.Sync()
	log := e.logger

	// Overlapping triggers on one host skip instead of queueing.
	lock := flock.New(filepath.Join(e.dataDir, "ingest.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to take ingest lock: %w", err)
	}
	if !locked {
		log.Warn("another ingest is running, skipping", zap.String("lock", lock.Path()))
		return nil
	}
	defer lock.Unlock()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := e.openStorage(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	srcs := ingest.Sources(e.cfg, nil, log.Named("source"))
	only, _ := cmd.Flags().GetStringSlice("only")
	srcs = onlySources(srcs, only)
	if len(srcs) == 0 {
		log.Warn("no sources to run")
	}

	n := e.normalizer()
	ex := feature.NewExtractor(n, e.vocabulary(n), nil)
	tagger := ingest.NewTagger(ingest.ConfigRules(e.cfg.Scoring.TagRules), ex.Skills)

	ic := e.cfg.Ingest
	p := ingest.New(srcs, st, tagger, ingest.Options{
		Concurrency:      ic.Concurrency,
		PageSize:         ic.PageSize,
		MaxPages:         ic.MaxPages,
		FetchTimeout:     ic.FetchTimeout,
		RateLimitMaxWait: ic.RateLimitMaxWait,
	}, log.Named("ingest"))

	runID := uuid.NewString()
	p.NewRunID = func() string { return runID }

	if path, _ := cmd.Flags().GetString("events"); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open events file: %w", err)
		}
		defer f.Close()
		w := events.NewWriter(f)
		p.OnChange = w.JobChanged(runID)
		defer func() {
			if err := w.Err(); err != nil {
				log.Warn("writing events failed", zap.Error(err))
			}
			log.Debug("events written", zap.Int("count", w.Count()))
		}()
	}

	sum, runErr := p.Run(ctx)

	b, err := json.MarshalIndent(sum, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	// The run is recorded even when it was interrupted.
	rec := store.Run{ID: sum.RunID, StartedAt: sum.StartedAt, FinishedAt: sum.FinishedAt, Aborted: sum.Aborted, Summary: b}
	if err := st.RecordRun(context.WithoutCancel(ctx), rec); err != nil {
		log.Warn("recording run failed", zap.Error(err))
	}

	if n, err := st.CountJobs(context.WithoutCancel(ctx)); err == nil {
		log.Info("jobs stored", zap.Int("total", n))
	}

	fmt.Fprintln(cmd.OutOrStdout(), string(b))
	return runErr
}

// onlySources keeps the sources named in names. Empty names keeps all.
func onlySources(srcs []ingest.Source, names []string) []ingest.Source {
	if len(names) == 0 {
		return srcs
	}
	want := make([]string, 0, len(names))
	for _, n := range names {
		want = append(want, strings.ToLower(strings.TrimSpace(n)))
	}
	var out []ingest.Source
	for _, s := range srcs {
		if slices.Contains(want, s.Adapter.Name()) {
			out = append(out, s)
		}
	}
	return out
}
