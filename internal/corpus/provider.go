package corpus

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"jobmatch-engine/internal/normalize"
)

// Mode selects where IDF statistics come from.
type Mode string

const (
	// ModeBackground reads a frozen snapshot file. Scores stay stable between
	// refreshes.
	ModeBackground Mode = "background"
	// ModeLive rebuilds from stored jobs on every Refresh, so scores drift as
	// ingestion adds postings.
	ModeLive Mode = "live"
	// ModeNone disables IDF: vectors are L2-normalized term frequencies.
	ModeNone Mode = "none"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeBackground, ModeLive, ModeNone:
		return Mode(s), nil
	case "":
		return ModeBackground, nil
	default:
		return "", fmt.Errorf("unknown idf corpus source %q", s)
	}
}

// Provider hands out the current snapshot. Readers never block; Refresh
// swaps the snapshot atomically.
type Provider struct {
	mode   Mode
	path   string
	jobs   JobLister
	norm   *normalize.Normalizer
	logger *zap.Logger
	now    func() time.Time

	cur atomic.Pointer[Stats]
}

func NewProvider(mode Mode, path string, jobs JobLister, n *normalize.Normalizer, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if n == nil {
		n = normalize.Default()
	}
	p := &Provider{mode: mode, path: path, jobs: jobs, norm: n, logger: logger, now: time.Now}
	p.cur.Store(&Stats{DF: map[string]int{}})
	return p
}

// Current never returns nil.
func (p *Provider) Current() *Stats { return p.cur.Load() }

// Set installs a snapshot directly.
func (p *Provider) Set(s *Stats) {
	if s == nil {
		s = &Stats{DF: map[string]int{}}
	}
	p.cur.Store(s)
}

// Refresh reloads the snapshot for the configured mode. A missing background
// file is not an error: the provider stays on TF-only weighting and logs it.
func (p *Provider) Refresh(ctx context.Context) error {
	switch p.mode {
	case ModeNone:
		p.Set(nil)
		return nil

	case ModeLive:
		if p.jobs == nil {
			return errors.New("live corpus needs a job store")
		}
		s, err := Build(ctx, p.jobs, p.norm, p.now())
		if err != nil {
			return err
		}
		p.Set(s)
		p.logger.Debug("corpus rebuilt", zap.Int("docs", s.Len()), zap.Int("terms", len(s.DF)))
		return nil

	default:
		s, err := Load(p.path)
		if errors.Is(err, fs.ErrNotExist) {
			p.logger.Warn("corpus snapshot missing, using tf weighting", zap.String("path", p.path))
			p.Set(nil)
			return nil
		}
		if err != nil {
			return err
		}
		p.Set(s)
		p.logger.Debug("corpus loaded", zap.String("path", p.path), zap.Int("docs", s.Len()))
		return nil
	}
}

// Mode is the IDF source the provider was built for.
func (p *Provider) Mode() Mode { return p.mode }
