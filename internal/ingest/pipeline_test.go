package ingest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"jobmatch-engine/internal/domain"
	"jobmatch-engine/internal/logger"
	"jobmatch-engine/internal/source"
	"jobmatch-engine/internal/store"
)

// fakeAdapter serves fixed pages. errs holds an error per call, consumed in
// order before pages are served.
type fakeAdapter struct {
	name  string
	pages [][]source.RawPayload

	mu      sync.Mutex
	errs    []error
	calls   int
	onFetch func(ctx context.Context)
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) Fetch(ctx context.Context, page source.Page) (source.Batch, error) {
	f.mu.Lock()
	f.calls++
	var err error
	if len(f.errs) > 0 {
		err, f.errs = f.errs[0], f.errs[1:]
	}
	hook := f.onFetch
	f.mu.Unlock()

	if hook != nil {
		hook(ctx)
	}
	if err != nil {
		return source.Batch{}, err
	}
	if page.Number >= len(f.pages) {
		return source.Batch{}, nil
	}
	return source.Batch{Payloads: f.pages[page.Number], HasMore: page.Number+1 < len(f.pages)}, nil
}

func (f *fakeAdapter) Map(raw source.RawPayload) (domain.Job, error) {
	id, _ := raw["id"].(string)
	title, _ := raw["title"].(string)
	if id == "" || title == "" {
		return domain.Job{}, domain.Malformed(f.name, id, "missing id or title")
	}
	desc, _ := raw["description"].(string)
	posted, _ := raw["posted_at"].(time.Time)
	return domain.Job{
		Source:         f.name,
		SourceNativeID: id,
		Title:          title,
		Company:        "Acme",
		Location:       "Berlin",
		WorkMode:       domain.WorkModeHybrid,
		Description:    desc,
		URL:            "https://example.com/" + id,
		PostedAt:       posted,
	}, nil
}

func (f *fakeAdapter) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func payloads(n int, desc string) []source.RawPayload {
	out := make([]source.RawPayload, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, source.RawPayload{
			"id":          fmt.Sprintf("job-%d", i),
			"title":       fmt.Sprintf("Go Engineer %d", i),
			"description": desc,
			"posted_at":   time.Date(2025, 1, 1+i, 0, 0, 0, 0, time.UTC),
		})
	}
	return out
}

func openStore(t *testing.T, path string) *store.DB {
	t.Helper()
	if path == "" {
		path = filepath.Join(t.TempDir(), "jobs.db")
	}
	db, err := store.Open(context.Background(), path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func findSource(sum RunSummary, name string) (SourceSummary, bool) {
	for _, s := range sum.Sources {
		if s.Source == name {
			return s, true
		}
	}
	return SourceSummary{}, false
}

func newPipeline(st Store, opts Options, adapters ...source.Adapter) *Pipeline {
	srcs := make([]Source, 0, len(adapters))
	for _, a := range adapters {
		srcs = append(srcs, Source{Adapter: a})
	}
	p := New(srcs, st, NewTagger(nil, nil), opts, nil)
	p.sleep = func(context.Context, time.Duration) error { return nil }
	return p
}

func TestRunIsIdempotent(t *testing.T) {
	t.Parallel()

	db := openStore(t, "")
	a := &fakeAdapter{name: "fake", pages: [][]source.RawPayload{payloads(10, "<p>Go and <b>Kubernetes</b></p>")}}
	p := newPipeline(db, Options{}, a)

	first, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, first.Totals().Inserted)
	assert.NotEmpty(t, first.RunID)

	second, err := p.Run(context.Background())
	require.NoError(t, err)
	tot := second.Totals()
	assert.Equal(t, 0, tot.Inserted)
	assert.Equal(t, 0, tot.Updated)
	assert.Equal(t, 10, tot.Skipped)
	assert.NotEqual(t, first.RunID, second.RunID)

	n, err := db.CountJobs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, n)
}

func TestRunLogsSavedJobs(t *testing.T) {
	t.Parallel()

	core, observed := observer.New(zapcore.DebugLevel)
	db := openStore(t, "")
	a := &fakeAdapter{name: "fake", pages: [][]source.RawPayload{payloads(2, "Go")}}
	a.pages[0][1]["title"] = "Staff Go Engineer for the Distributed Systems Platform Team in Berlin and Remote"
	p := New([]Source{{Adapter: a}}, db, NewTagger(nil, nil), Options{}, zap.New(core))

	sum, err := p.Run(context.Background())
	require.NoError(t, err)

	saved := observed.FilterMessage("job saved").All()
	require.Len(t, saved, 2)
	fields := saved[1].ContextMap()
	assert.Equal(t, domain.JobID("fake", "job-1"), fields[logger.FieldJobID])
	assert.Equal(t, logger.Truncate(a.pages[0][1]["title"].(string), titleLogLimit), fields["title"])
	assert.Equal(t, sum.RunID, fields[logger.FieldRunID])

	finished := observed.FilterMessage("ingest finished").All()
	require.Len(t, finished, 1)
	assert.EqualValues(t, 0, finished[0].ContextMap()["failed_sources"])

	// A second run changes nothing and logs no saves.
	_, err = p.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, observed.FilterMessage("job saved").All(), 2)
}

func TestRunRevisedPayloadUpdatesOnce(t *testing.T) {
	t.Parallel()

	db := openStore(t, "")
	a := &fakeAdapter{name: "fake", pages: [][]source.RawPayload{payloads(3, "Go")}}
	p := newPipeline(db, Options{}, a)

	var changed []domain.UpsertOutcome
	var mu sync.Mutex
	p.OnChange = func(_ domain.Job, o domain.UpsertOutcome) {
		mu.Lock()
		changed = append(changed, o)
		mu.Unlock()
	}

	_, err := p.Run(context.Background())
	require.NoError(t, err)

	revised := payloads(3, "Go")
	revised[1]["description"] = "Go and Rust"
	a.pages = [][]source.RawPayload{revised}

	sum, err := p.Run(context.Background())
	require.NoError(t, err)
	tot := sum.Totals()
	assert.Equal(t, 1, tot.Updated)
	assert.Equal(t, 2, tot.Skipped)

	j, ok, err := db.FindJobByKey(context.Background(), "fake", "job-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, j.Revision)
	assert.Equal(t, "Go and Rust", j.Description)

	assert.Equal(t, []domain.UpsertOutcome{
		domain.UpsertInserted, domain.UpsertInserted, domain.UpsertInserted, domain.UpsertUpdated,
	}, changed)
}

func TestRunPostedAtOnRevision(t *testing.T) {
	t.Parallel()

	db := openStore(t, "")
	first := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	a := &fakeAdapter{name: "fake", pages: [][]source.RawPayload{{{"id": "x", "title": "Go Engineer", "description": "v1"}}}}
	p := newPipeline(db, Options{}, a)
	p.now = func() time.Time { return first }

	_, err := p.Run(context.Background())
	require.NoError(t, err)

	p.now = func() time.Time { return first.Add(48 * time.Hour) }
	a.pages = [][]source.RawPayload{{{"id": "x", "title": "Go Engineer", "description": "v2"}}}
	_, err = p.Run(context.Background())
	require.NoError(t, err)

	j, _, err := db.FindJobByKey(context.Background(), "fake", "x")
	require.NoError(t, err)
	assert.Equal(t, 2, j.Revision)
	assert.True(t, first.Equal(j.PostedAt), "no provider timestamp keeps the stored one: %s", j.PostedAt)

	fresh := time.Date(2026, 2, 5, 0, 0, 0, 0, time.UTC)
	a.pages = [][]source.RawPayload{{{"id": "x", "title": "Go Engineer", "description": "v3", "posted_at": fresh}}}
	_, err = p.Run(context.Background())
	require.NoError(t, err)

	j, _, err = db.FindJobByKey(context.Background(), "fake", "x")
	require.NoError(t, err)
	assert.Equal(t, 3, j.Revision)
	assert.True(t, fresh.Equal(j.PostedAt))
}

func TestRunMalformedRecordDoesNotAbortBatch(t *testing.T) {
	t.Parallel()

	db := openStore(t, "")
	batch := payloads(10, "Go")
	delete(batch[4], "title")
	a := &fakeAdapter{name: "fake", pages: [][]source.RawPayload{batch}}

	sum, err := newPipeline(db, Options{}, a).Run(context.Background())
	require.NoError(t, err)

	ss, ok := findSource(sum, "fake")
	require.True(t, ok)
	assert.Equal(t, 10, ss.Fetched)
	assert.Equal(t, 9, ss.Inserted)
	assert.Equal(t, 1, ss.Failed)
	require.Len(t, ss.Failures, 1)
	assert.Equal(t, 4, ss.Failures[0].Index)
	assert.True(t, ss.OK())
}

func TestRunSourceFailureIsIsolated(t *testing.T) {
	t.Parallel()

	db := openStore(t, "")
	down := &fakeAdapter{name: "down", errs: []error{&domain.SourceUnavailableError{Source: "down", Err: errors.New("503")}}}
	up := &fakeAdapter{name: "up", pages: [][]source.RawPayload{payloads(2, "Go")}}

	sum, err := newPipeline(db, Options{}, down, up).Run(context.Background())
	require.NoError(t, err)

	d, _ := findSource(sum, "down")
	assert.Equal(t, "source_unavailable", d.ErrorKind)
	assert.False(t, d.OK())

	u, _ := findSource(sum, "up")
	assert.Equal(t, 2, u.Inserted)
	assert.False(t, sum.Aborted)
}

func TestRunFollowsPagesUntilNoMore(t *testing.T) {
	t.Parallel()

	db := openStore(t, "")
	all := payloads(5, "Go")
	a := &fakeAdapter{name: "fake", pages: [][]source.RawPayload{all[:2], all[2:4], all[4:]}}

	sum, err := newPipeline(db, Options{MaxPages: 10}, a).Run(context.Background())
	require.NoError(t, err)
	ss, _ := findSource(sum, "fake")
	assert.Equal(t, 3, ss.Pages)
	assert.Equal(t, 5, ss.Inserted)
	assert.Equal(t, 3, a.Calls())

	a2 := &fakeAdapter{name: "capped", pages: [][]source.RawPayload{all[:2], all[2:4], all[4:]}}
	sum, err = newPipeline(db, Options{MaxPages: 2}, a2).Run(context.Background())
	require.NoError(t, err)
	ss, _ = findSource(sum, "capped")
	assert.Equal(t, 2, ss.Pages)
	assert.Equal(t, 4, ss.Inserted)
}

func TestRunRetriesShortRateLimitOnce(t *testing.T) {
	t.Parallel()

	db := openStore(t, "")
	a := &fakeAdapter{
		name:  "fake",
		pages: [][]source.RawPayload{payloads(2, "Go")},
		errs:  []error{&domain.RateLimitedError{Source: "fake", RetryAfter: 2 * time.Second}},
	}
	p := newPipeline(db, Options{RateLimitMaxWait: 5 * time.Second}, a)
	var waited []time.Duration
	p.sleep = func(_ context.Context, d time.Duration) error {
		waited = append(waited, d)
		return nil
	}

	sum, err := p.Run(context.Background())
	require.NoError(t, err)
	ss, _ := findSource(sum, "fake")
	assert.True(t, ss.OK())
	assert.Equal(t, 2, ss.Inserted)
	assert.Equal(t, []time.Duration{2 * time.Second}, waited)
	assert.Equal(t, 2, a.Calls())
}

func TestRunLongRateLimitIsReported(t *testing.T) {
	t.Parallel()

	db := openStore(t, "")
	a := &fakeAdapter{
		name: "fake",
		errs: []error{&domain.RateLimitedError{Source: "fake", RetryAfter: time.Hour}},
	}
	sum, err := newPipeline(db, Options{RateLimitMaxWait: 5 * time.Second}, a).Run(context.Background())
	require.NoError(t, err)

	ss, _ := findSource(sum, "fake")
	assert.Equal(t, "rate_limited", ss.ErrorKind)
	assert.Equal(t, time.Hour, ss.RetryAfter)
	assert.Equal(t, 1, a.Calls())
}

func TestRunFetchTimeoutIsSourceUnavailable(t *testing.T) {
	t.Parallel()

	db := openStore(t, "")
	a := &fakeAdapter{name: "slow"}
	a.onFetch = func(ctx context.Context) { <-ctx.Done() }
	a.errs = []error{context.DeadlineExceeded}

	sum, err := newPipeline(db, Options{FetchTimeout: 20 * time.Millisecond}, a).Run(context.Background())
	require.NoError(t, err)
	ss, _ := findSource(sum, "slow")
	assert.Equal(t, "source_unavailable", ss.ErrorKind)
	assert.Contains(t, ss.Error, "timed out")
}

func TestRunCancelledBeforeStart(t *testing.T) {
	t.Parallel()

	db := openStore(t, "")
	a := &fakeAdapter{name: "a", pages: [][]source.RawPayload{payloads(1, "Go")}}
	b := &fakeAdapter{name: "b", pages: [][]source.RawPayload{payloads(1, "Go")}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sum, err := newPipeline(db, Options{}, a, b).Run(ctx)
	require.NoError(t, err)

	assert.True(t, sum.Aborted)
	for _, s := range sum.Sources {
		assert.True(t, s.Aborted, s.Source)
	}
	assert.Zero(t, a.Calls()+b.Calls())
}

func TestRunCancelMidRunFinishesStartedSources(t *testing.T) {
	t.Parallel()

	db := openStore(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := &fakeAdapter{name: "first", pages: [][]source.RawPayload{payloads(3, "Go")}}
	first.onFetch = func(context.Context) { cancel() }
	second := &fakeAdapter{name: "second", pages: [][]source.RawPayload{payloads(3, "Go")}}

	sum, err := newPipeline(db, Options{Concurrency: 1}, first, second).Run(ctx)
	require.NoError(t, err)

	f, _ := findSource(sum, "first")
	assert.Equal(t, 3, f.Inserted, "a running source finishes on a detached context")
	assert.False(t, f.Aborted)

	s, _ := findSource(sum, "second")
	assert.True(t, s.Aborted)
	assert.Zero(t, second.Calls())
	assert.True(t, sum.Aborted)
}

type brokenStore struct{}

func (brokenStore) FindJobByKey(context.Context, string, string) (domain.Job, bool, error) {
	return domain.Job{}, false, nil
}

func (brokenStore) UpsertJob(context.Context, domain.Job) (domain.UpsertOutcome, error) {
	return domain.UpsertUnchanged, errors.New("disk I/O error")
}

func TestRunStorageFailureIsReturned(t *testing.T) {
	t.Parallel()

	a := &fakeAdapter{name: "fake", pages: [][]source.RawPayload{payloads(3, "Go")}}
	sum, err := newPipeline(brokenStore{}, Options{}, a).Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)

	ss, _ := findSource(sum, "fake")
	assert.Equal(t, "storage_unavailable", ss.ErrorKind)
	assert.Equal(t, 3, ss.Fetched)
	assert.Zero(t, ss.Inserted)
}

func TestConcurrentRunsDoNotDuplicate(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "jobs.db")
	dbs := []*store.DB{openStore(t, path), openStore(t, path)}

	var inserted atomic.Int64
	var wg sync.WaitGroup
	for _, db := range dbs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a := &fakeAdapter{name: "fake", pages: [][]source.RawPayload{payloads(10, "Go")}}
			sum, err := newPipeline(db, Options{}, a).Run(context.Background())
			assert.NoError(t, err)
			inserted.Add(int64(sum.Totals().Inserted))
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(10), inserted.Load())
	n, err := dbs[0].CountJobs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, n)
}

func TestRunFillsDerivedFields(t *testing.T) {
	t.Parallel()

	db := openStore(t, "")
	batch := payloads(1, "<p>We use <b>Kubernetes</b> &amp; Go.</p>")
	delete(batch[0], "posted_at")
	a := &fakeAdapter{name: "fake", pages: [][]source.RawPayload{batch}}

	p := newPipeline(db, Options{}, a)
	start := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return start }
	p.tagger = NewTagger([]Rule{{Tag: "platform", Any: []string{"KUBERNETES"}}}, func(string) []string { return []string{"Go"} })

	_, err := p.Run(context.Background())
	require.NoError(t, err)

	j, ok, err := db.GetJob(context.Background(), domain.JobID("fake", "job-0"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, j.PostedAt.Equal(start))
	assert.Equal(t, []string{"go", "platform"}, j.Tags)
	assert.Equal(t, domain.ComputeChecksum(j.Title, "Acme", "Berlin", "We use Kubernetes & Go."), j.Checksum)
}
