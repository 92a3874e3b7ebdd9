// Package postgres is the PostgreSQL job store. It has the same semantics as
// the SQLite store and is selected with storage.driver: postgres.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"jobmatch-engine/internal/domain"
	"jobmatch-engine/internal/store"
)

type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// New connects, pings and migrates.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, domain.StorageError("failed to create connection pool", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, domain.StorageError("failed to ping database", err)
	}
	s := &Store{pool: pool, now: time.Now}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, domain.StorageError("failed to migrate", err)
	}
	return s, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		source_native_id TEXT NOT NULL,
		title TEXT NOT NULL,
		company TEXT NOT NULL DEFAULT '',
		location TEXT NOT NULL DEFAULT '',
		work_mode TEXT NOT NULL DEFAULT 'Unknown',
		description TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL DEFAULT '',
		tags TEXT[] NOT NULL DEFAULT '{}',
		posted_at TIMESTAMPTZ NOT NULL,
		checksum TEXT NOT NULL,
		revision INTEGER NOT NULL DEFAULT 1,
		first_seen_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		UNIQUE (source, source_native_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_posted_at ON jobs (posted_at DESC)`,
	`CREATE TABLE IF NOT EXISTS ingest_runs (
		id TEXT PRIMARY KEY,
		started_at TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ NOT NULL,
		aborted BOOLEAN NOT NULL DEFAULT FALSE,
		summary JSONB NOT NULL
	)`,
}

func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

const jobColumns = `id, source, source_native_id, title, company, location, work_mode, description, url, tags, posted_at, checksum, revision, first_seen_at, updated_at`

func scanJob(row pgx.Row) (domain.Job, error) {
	var j domain.Job
	err := row.Scan(
		&j.ID,
		&j.Source,
		&j.SourceNativeID,
		&j.Title,
		&j.Company,
		&j.Location,
		&j.WorkMode,
		&j.Description,
		&j.URL,
		&j.Tags,
		&j.PostedAt,
		&j.Checksum,
		&j.Revision,
		&j.FirstSeenAt,
		&j.UpdatedAt,
	)
	if err != nil {
		return domain.Job{}, err
	}
	if j.Tags == nil {
		j.Tags = []string{}
	}
	j.PostedAt = j.PostedAt.UTC()
	j.FirstSeenAt = j.FirstSeenAt.UTC()
	j.UpdatedAt = j.UpdatedAt.UTC()
	return j, nil
}

func (s *Store) FindJobByKey(ctx context.Context, source, nativeID string) (domain.Job, bool, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE source = $1 AND source_native_id = $2`
	j, err := scanJob(s.pool.QueryRow(ctx, query, source, nativeID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Job{}, false, nil
	}
	if err != nil {
		return domain.Job{}, false, domain.StorageError("failed to find job", err)
	}
	return j, true, nil
}

func (s *Store) GetJob(ctx context.Context, id string) (domain.Job, bool, error) {
	j, err := scanJob(s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Job{}, false, nil
	}
	if err != nil {
		return domain.Job{}, false, domain.StorageError("failed to get job", err)
	}
	return j, true, nil
}

const upsertJobSQL = `
	INSERT INTO jobs (id, source, source_native_id, title, company, location, work_mode, description, url, tags, posted_at, checksum, revision, first_seen_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 1, $13, $13)
	ON CONFLICT (source, source_native_id) DO UPDATE SET
		title = EXCLUDED.title,
		company = EXCLUDED.company,
		location = EXCLUDED.location,
		work_mode = EXCLUDED.work_mode,
		description = EXCLUDED.description,
		url = EXCLUDED.url,
		tags = EXCLUDED.tags,
		posted_at = EXCLUDED.posted_at,
		checksum = EXCLUDED.checksum,
		revision = jobs.revision + 1,
		updated_at = EXCLUDED.updated_at
	WHERE jobs.checksum <> EXCLUDED.checksum
	RETURNING revision
`

func (s *Store) UpsertJob(ctx context.Context, j domain.Job) (domain.UpsertOutcome, error) {
	if j.Source == "" || j.SourceNativeID == "" {
		return domain.UpsertUnchanged, fmt.Errorf("upsert job: empty key (%q, %q)", j.Source, j.SourceNativeID)
	}
	if j.ID == "" {
		j.ID = domain.JobID(j.Source, j.SourceNativeID)
	}
	tags := j.Tags
	if tags == nil {
		tags = []string{}
	}

	var revision int
	err := s.pool.QueryRow(ctx, upsertJobSQL,
		j.ID,
		j.Source,
		j.SourceNativeID,
		j.Title,
		j.Company,
		j.Location,
		j.WorkMode,
		j.Description,
		j.URL,
		tags,
		j.PostedAt.UTC(),
		j.Checksum,
		s.now().UTC(),
	).Scan(&revision)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return domain.UpsertUnchanged, nil
	case err != nil:
		return domain.UpsertUnchanged, domain.StorageError("failed to upsert job", err)
	case revision == 1:
		return domain.UpsertInserted, nil
	default:
		return domain.UpsertUpdated, nil
	}
}

func (s *Store) QueryJobs(ctx context.Context, q domain.JobQuery) ([]domain.Job, error) {
	var (
		where []string
		args  []any
	)
	if !q.Since.IsZero() {
		args = append(args, q.Since.UTC())
		where = append(where, fmt.Sprintf("posted_at >= $%d", len(args)))
	}
	if len(q.Sources) > 0 {
		args = append(args, q.Sources)
		where = append(where, fmt.Sprintf("source = ANY($%d)", len(args)))
	}

	query := `SELECT ` + jobColumns + ` FROM jobs`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY posted_at DESC, id ASC`
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, domain.StorageError("failed to query jobs", err)
	}
	defer rows.Close()

	var out []domain.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, domain.StorageError("failed to scan job", err)
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StorageError("failed to query jobs", err)
	}
	return out, nil
}

func (s *Store) CountJobs(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM jobs`).Scan(&n); err != nil {
		return 0, domain.StorageError("failed to count jobs", err)
	}
	return n, nil
}

func (s *Store) RecordRun(ctx context.Context, r store.Run) error {
	summary := r.Summary
	if len(summary) == 0 {
		summary = []byte("{}")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ingest_runs (id, started_at, finished_at, aborted, summary)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			finished_at = EXCLUDED.finished_at,
			aborted = EXCLUDED.aborted,
			summary = EXCLUDED.summary
	`, r.ID, r.StartedAt.UTC(), r.FinishedAt.UTC(), r.Aborted, string(summary))
	if err != nil {
		return domain.StorageError("failed to record run", err)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]store.Run, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, started_at, finished_at, aborted, summary::text
		FROM ingest_runs
		ORDER BY started_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, domain.StorageError("failed to list runs", err)
	}
	defer rows.Close()

	var out []store.Run
	for rows.Next() {
		var (
			r       store.Run
			summary string
		)
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.Aborted, &summary); err != nil {
			return nil, domain.StorageError("failed to scan run", err)
		}
		r.StartedAt = r.StartedAt.UTC()
		r.FinishedAt = r.FinishedAt.UTC()
		r.Summary = []byte(summary)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StorageError("failed to list runs", err)
	}
	return out, nil
}
