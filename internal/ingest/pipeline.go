// Package ingest runs one pass over every configured source: fetch pages,
// map payloads onto canonical jobs and upsert them by (source, native id).
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"jobmatch-engine/internal/domain"
	"jobmatch-engine/internal/logger"
	"jobmatch-engine/internal/normalize"
	"jobmatch-engine/internal/source"
)

// Store is the part of storage the pipeline writes through.
type Store interface {
	FindJobByKey(ctx context.Context, source, nativeID string) (domain.Job, bool, error)
	UpsertJob(ctx context.Context, j domain.Job) (domain.UpsertOutcome, error)
}

// Source is an adapter plus its paging. Zero values fall back to Options.
type Source struct {
	Adapter      source.Adapter
	PageSize     int
	MaxPages     int
	FetchTimeout time.Duration
}

type Options struct {
	Concurrency      int
	PageSize         int
	MaxPages         int
	FetchTimeout     time.Duration
	RateLimitMaxWait time.Duration
}

func (o Options) withDefaults() Options {
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	if o.PageSize <= 0 {
		o.PageSize = 50
	}
	if o.MaxPages <= 0 {
		o.MaxPages = 5
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = 5 * time.Second
	}
	return o
}

// titleLogLimit caps job titles in debug logs.
const titleLogLimit = 60

type Pipeline struct {
	sources []Source
	store   Store
	tagger  *Tagger
	opts    Options
	logger  *zap.Logger

	// OnChange fires for every inserted or updated job. It is called from
	// the source goroutines and must be safe for concurrent use.
	OnChange func(j domain.Job, outcome domain.UpsertOutcome)
	// NewRunID names each run. Defaults to a random UUID.
	NewRunID func() string

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func New(sources []Source, store Store, tagger *Tagger, opts Options, log *zap.Logger) *Pipeline {
	return &Pipeline{
		sources:  sources,
		store:    store,
		tagger:   tagger,
		opts:     opts.withDefaults(),
		logger:   logger.WithFields(log),
		NewRunID: uuid.NewString,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// run is the state shared by the source goroutines of one Run.
type run struct {
	start time.Time

	mu         sync.Mutex
	storageErr error
}

func (r *run) failStorage(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.storageErr == nil {
		r.storageErr = err
	}
}

func (r *run) halted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.storageErr != nil
}

// Run ingests every source once.
//
// Source-level and record-level failures are reported in the summary and
// never fail the run. Cancelling ctx stops sources that have not started yet;
// sources already running finish on a detached context. Storage failures
// stop the run and are returned, wrapping domain.ErrStorageUnavailable,
// together with the partial summary.
func (p *Pipeline) Run(ctx context.Context) (RunSummary, error) {
	r := &run{start: p.now().UTC()}
	sum := RunSummary{
		RunID:     p.NewRunID(),
		StartedAt: r.start,
		Sources:   make([]SourceSummary, len(p.sources)),
	}
	log := p.logger.With(zap.String(logger.FieldRunID, sum.RunID))
	log.Info("ingest started", zap.Int("sources", len(p.sources)))

	work := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.SetLimit(p.opts.Concurrency)

	for i, s := range p.sources {
		sum.Sources[i].Source = s.Adapter.Name()
		if ctx.Err() != nil || r.halted() {
			sum.Sources[i].Aborted = true
			continue
		}
		g.Go(func() error {
			// The slot may have freed up after a cancel.
			if ctx.Err() != nil || r.halted() {
				sum.Sources[i].Aborted = true
				return nil
			}
			sum.Sources[i] = p.runSource(work, s, r, logger.ForSource(log, s.Adapter.Name()))
			return nil
		})
	}
	_ = g.Wait()

	sum.FinishedAt = p.now().UTC()
	failedSources := 0
	for _, s := range sum.Sources {
		if s.Aborted {
			sum.Aborted = true
		}
		if !s.OK() {
			failedSources++
		}
	}

	t := sum.Totals()
	log.Info("ingest finished",
		zap.Int("fetched", t.Fetched),
		zap.Int("inserted", t.Inserted),
		zap.Int("updated", t.Updated),
		zap.Int("skipped", t.Skipped),
		zap.Int("failed", t.Failed),
		zap.Int("failed_sources", failedSources),
		zap.Bool("aborted", sum.Aborted),
		zap.Duration("took", sum.Duration()),
	)

	if r.storageErr != nil {
		return sum, r.storageErr
	}
	return sum, nil
}

func (p *Pipeline) runSource(ctx context.Context, s Source, r *run, log *zap.Logger) SourceSummary {
	name := s.Adapter.Name()
	ss := SourceSummary{Source: name}

	pageSize, maxPages := p.paging(s)
	for n := 0; n < maxPages; n++ {
		if r.halted() {
			ss.Aborted = true
			break
		}

		batch, err := p.fetch(ctx, s, source.Page{Number: n, Size: pageSize}, log)
		if err != nil {
			ss.Error = err.Error()
			ss.ErrorKind = domain.ErrorKind(err)
			var rl *domain.RateLimitedError
			if errors.As(err, &rl) {
				ss.RetryAfter = rl.RetryAfter
			}
			log.Warn("fetch failed", zap.Int("page", n), zap.String("kind", ss.ErrorKind), zap.Error(err))
			break
		}
		ss.Pages++
		ss.Fetched += len(batch.Payloads)

		jobs, failures := source.MapAll(s.Adapter, batch.Payloads)
		ss.addFailures(n, failures)
		for _, f := range failures {
			log.Debug("record skipped", zap.Int("page", n), zap.Int("index", f.Index), zap.String("error", f.Err))
		}

		for _, j := range jobs {
			outcome, err := p.save(ctx, j, r.start, log)
			if err != nil {
				r.failStorage(err)
				ss.Error = err.Error()
				ss.ErrorKind = domain.ErrorKind(err)
				ss.Aborted = true
				log.Error("storage failed", zap.Error(err))
				return ss
			}
			switch outcome {
			case domain.UpsertInserted:
				ss.Inserted++
			case domain.UpsertUpdated:
				ss.Updated++
			default:
				ss.Skipped++
			}
		}

		if !batch.HasMore {
			break
		}
	}

	log.Info("source done",
		zap.Int("pages", ss.Pages),
		zap.Int("fetched", ss.Fetched),
		zap.Int("inserted", ss.Inserted),
		zap.Int("updated", ss.Updated),
		zap.Int("skipped", ss.Skipped),
		zap.Int("failed", ss.Failed),
	)
	return ss
}

// pager is implemented by adapters with one page per configured board.
type pager interface {
	Pages() int
}

func (p *Pipeline) paging(s Source) (size, pages int) {
	size, pages = s.PageSize, s.MaxPages
	if size <= 0 {
		size = p.opts.PageSize
	}
	if pages <= 0 {
		if pg, ok := s.Adapter.(pager); ok {
			pages = pg.Pages()
		} else {
			pages = p.opts.MaxPages
		}
	}
	return size, pages
}

// fetch reads one page under the fetch timeout. A rate limit whose hint is
// within RateLimitMaxWait is waited out and retried once.
func (p *Pipeline) fetch(ctx context.Context, s Source, page source.Page, log *zap.Logger) (source.Batch, error) {
	b, err := p.fetchOnce(ctx, s, page)
	wait, ok := source.IsRetryable(err, p.opts.RateLimitMaxWait)
	if !ok {
		return b, err
	}
	if wait <= 0 {
		wait = time.Second
	}
	if p.opts.RateLimitMaxWait > 0 && wait > p.opts.RateLimitMaxWait {
		wait = p.opts.RateLimitMaxWait
	}
	log.Info("rate limited, retrying", zap.Int("page", page.Number), zap.Duration("wait", wait))
	if err := p.sleep(ctx, wait); err != nil {
		return source.Batch{}, err
	}
	return p.fetchOnce(ctx, s, page)
}

func (p *Pipeline) fetchOnce(ctx context.Context, s Source, page source.Page) (source.Batch, error) {
	timeout := s.FetchTimeout
	if timeout <= 0 {
		timeout = p.opts.FetchTimeout
	}
	fctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	b, err := s.Adapter.Fetch(fctx, page)
	if err == nil {
		return b, nil
	}
	if errors.Is(err, domain.ErrSourceUnavailable) || errors.Is(err, domain.ErrRateLimited) {
		return b, err
	}
	if errors.Is(fctx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("fetch timed out after %s: %w", timeout, err)
	}
	return b, &domain.SourceUnavailableError{Source: s.Adapter.Name(), Err: err}
}

// save fills in the derived fields of j and upserts it. An equal checksum in
// storage skips the write.
//
// A payload without a provider timestamp keeps the stored PostedAt, even on
// a revision; only a new job falls back to the run start.
func (p *Pipeline) save(ctx context.Context, j domain.Job, runStart time.Time, log *zap.Logger) (domain.UpsertOutcome, error) {
	plain := normalize.PlainText(j.Description)
	j.ID = domain.JobID(j.Source, j.SourceNativeID)
	j.Tags = p.tagger.Tag(j, plain)
	j.Checksum = domain.ComputeChecksum(j.Title, j.Company, j.Location, plain)

	existing, found, err := p.store.FindJobByKey(ctx, j.Source, j.SourceNativeID)
	if err != nil {
		return domain.UpsertUnchanged, asStorageError("find job", err)
	}
	if j.PostedAt.IsZero() {
		j.PostedAt = runStart
		if found && !existing.PostedAt.IsZero() {
			j.PostedAt = existing.PostedAt
		}
	}
	if found && existing.Checksum == j.Checksum {
		return domain.UpsertUnchanged, nil
	}

	outcome, err := p.store.UpsertJob(ctx, j)
	if err != nil {
		return domain.UpsertUnchanged, asStorageError("upsert job", err)
	}
	if outcome == domain.UpsertUnchanged {
		return outcome, nil
	}
	log.Debug("job saved",
		zap.String(logger.FieldJobID, j.ID),
		zap.String("title", logger.Truncate(j.Title, titleLogLimit)),
		zap.Bool("revised", outcome == domain.UpsertUpdated),
	)
	if p.OnChange != nil {
		p.OnChange(j, outcome)
	}
	return outcome, nil
}

func asStorageError(op string, err error) error {
	if errors.Is(err, domain.ErrStorageUnavailable) {
		return err
	}
	return domain.StorageError(op, err)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
