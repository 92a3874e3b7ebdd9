package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"jobmatch-engine/internal/config"
	"jobmatch-engine/internal/corpus"
	"jobmatch-engine/internal/feature"
	"jobmatch-engine/internal/ingest"
	"jobmatch-engine/internal/logger"
	"jobmatch-engine/internal/match"
	"jobmatch-engine/internal/normalize"
	"jobmatch-engine/internal/rank"
	"jobmatch-engine/internal/store"
	"jobmatch-engine/internal/store/postgres"
)

// env is what every command needs: the validated config and a logger.
type env struct {
	cfg     config.Config
	cfgPath string
	dataDir string
	logger  *zap.Logger
}

// loadEnv resolves the data dir, bootstraps and validates the config and
// builds the logger. Flags win over the config's logging section.
func loadEnv() (*env, error) {
	dataDir := viper.GetString("data-dir")
	if dataDir == "" {
		dataDir = config.Default().App.DataDir
	}

	cfgPath := viper.GetString("config")
	if cfgPath == "" {
		p, err := config.EnsureUserConfig(dataDir, "")
		if err != nil {
			return nil, fmt.Errorf("failed to bootstrap config: %w", err)
		}
		cfgPath = p
	}

	raw, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", cfgPath, err)
	}
	if viper.GetString("data-dir") == "" && raw.App.DataDir != "" {
		dataDir = raw.App.DataDir
	}
	raw.App.DataDir = dataDir

	cfg, v := config.NormalizeAndValidate(raw)

	l, err := logger.New(viper.GetBool("json") || cfg.Logging.JSON, viper.GetBool("debug") || cfg.Logging.Debug)
	if err != nil {
		return nil, fmt.Errorf("creating a logger: %w", err)
	}
	for _, w := range v.Warnings {
		l.Warn("config warning", zap.String("warning", w))
	}
	if err := v.Err(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	l.Debug("config loaded", zap.String("path", cfgPath), zap.String("data_dir", dataDir))
	return &env{cfg: cfg, cfgPath: cfgPath, dataDir: dataDir, logger: l}, nil
}

func (e *env) path(p string) string {
	return config.ResolvePath(e.dataDir, p)
}

// storage is implemented by both store.DB and postgres.Store.
type storage interface {
	ingest.Store
	match.JobStore
	CountJobs(ctx context.Context) (int, error)
	RecordRun(ctx context.Context, r store.Run) error
	RecentRuns(ctx context.Context, limit int) ([]store.Run, error)
}

func (e *env) openStorage(ctx context.Context) (storage, func(), error) {
	switch e.cfg.Storage.Driver {
	case "postgres":
		s, err := postgres.New(ctx, e.cfg.Storage.DSN)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		path := e.path(e.cfg.Storage.Path)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create database dir: %w", err)
		}
		db, err := store.Open(ctx, path, e.logger.Named("store"))
		if err != nil {
			return nil, nil, err
		}
		return db, func() { _ = db.Close() }, nil
	}
}

func (e *env) normalizer() *normalize.Normalizer {
	return normalize.New(normalize.WithBoilerplate(e.cfg.Scoring.Boilerplate...))
}

func (e *env) vocabulary(n *normalize.Normalizer) *feature.Vocabulary {
	names := e.cfg.Scoring.Skills
	if len(names) == 0 {
		names = feature.DefaultSkills
	}
	return feature.NewVocabulary(n, names)
}

// newEngine wires the matching engine over st and loads the IDF corpus for
// the configured mode.
func (e *env) newEngine(ctx context.Context, st storage, resumes match.ResumeSource) (*match.Engine, error) {
	mode, err := corpus.ParseMode(e.cfg.Scoring.IDFCorpusSource)
	if err != nil {
		return nil, err
	}
	n := e.normalizer()
	cp := corpus.NewProvider(mode, e.path(e.cfg.Scoring.CorpusPath), limitedJobs{st, e.cfg.Scoring.CorpusMaxJobs}, n, e.logger.Named("corpus"))
	if err := cp.Refresh(ctx); err != nil {
		return nil, fmt.Errorf("failed to load idf corpus: %w", err)
	}

	vocab := e.vocabulary(n)
	e.logger.Debug("matching engine ready",
		zap.String("corpus_mode", string(cp.Mode())),
		zap.Int("corpus_docs", cp.Current().Len()),
		zap.Int("skills", vocab.Size()),
	)

	m := e.cfg.Matching
	return match.New(match.Options{
		Jobs:       st,
		Resumes:    resumes,
		Corpus:     cp,
		Normalizer: n,
		Vocabulary: vocab,
		Weights:    rank.Weights{Cosine: e.cfg.Scoring.WeightCosine, Overlap: e.cfg.Scoring.WeightOverlap},
		Defaults: match.Defaults{
			Filters: rank.Filters{
				RemoteOK:       m.RemoteOK,
				LocationsAllow: m.LocationsAllow,
				LocationsBlock: m.LocationsBlock,
				MaxAge:         time.Duration(m.MaxAgeDays) * 24 * time.Hour,
			},
			TopK:     m.TopK,
			MinScore: m.MinScore,
		},
		Logger: e.logger.Named("match"),
	})
}
