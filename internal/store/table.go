package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"jobmatch-engine/internal/domain"
)

const schemaVersion = 2

func Migrate(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var v int
	if err := tx.QueryRowContext(ctx, `PRAGMA user_version;`).Scan(&v); err != nil {
		return err
	}
	if v >= schemaVersion {
		return tx.Commit()
	}

	if v < 1 {
		if _, err := tx.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS jobs (
  id TEXT PRIMARY KEY,
  source TEXT NOT NULL,
  source_native_id TEXT NOT NULL,
  title TEXT NOT NULL,
  company TEXT NOT NULL DEFAULT '',
  location TEXT NOT NULL DEFAULT '',
  work_mode TEXT NOT NULL DEFAULT 'Unknown',
  description TEXT NOT NULL DEFAULT '',
  url TEXT NOT NULL DEFAULT '',
  tags TEXT NOT NULL DEFAULT '[]',
  posted_at TEXT NOT NULL,
  checksum TEXT NOT NULL,
  revision INTEGER NOT NULL DEFAULT 1,
  first_seen_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);
`); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
CREATE UNIQUE INDEX IF NOT EXISTS idx_jobs_source_key
ON jobs(source, source_native_id);
`); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
CREATE INDEX IF NOT EXISTS idx_jobs_posted_at
ON jobs(posted_at);
`); err != nil {
			return err
		}
	}

	// v2: run history.
	if _, err := tx.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS ingest_runs (
  id TEXT PRIMARY KEY,
  started_at TEXT NOT NULL,
  finished_at TEXT NOT NULL,
  aborted INTEGER NOT NULL DEFAULT 0,
  summary TEXT NOT NULL
);
`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`PRAGMA user_version = %d;`, schemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

const jobColumns = `id, source, source_native_id, title, company, location, work_mode, description, url, tags, posted_at, checksum, revision, first_seen_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(r rowScanner) (domain.Job, error) {
	var (
		j                        domain.Job
		tagsJSON                 string
		posted, first, updatedAt string
	)
	if err := r.Scan(
		&j.ID,
		&j.Source,
		&j.SourceNativeID,
		&j.Title,
		&j.Company,
		&j.Location,
		&j.WorkMode,
		&j.Description,
		&j.URL,
		&tagsJSON,
		&posted,
		&j.Checksum,
		&j.Revision,
		&first,
		&updatedAt,
	); err != nil {
		return domain.Job{}, err
	}
	if tagsJSON != "" {
		if err := json.Unmarshal([]byte(tagsJSON), &j.Tags); err != nil {
			return domain.Job{}, fmt.Errorf("failed to decode tags of job %s: %w", j.ID, err)
		}
	}
	if j.Tags == nil {
		j.Tags = []string{}
	}
	j.PostedAt = parseTime(posted)
	j.FirstSeenAt = parseTime(first)
	j.UpdatedAt = parseTime(updatedAt)
	return j, nil
}

// FindJobByKey looks a job up by its unique (source, native id) pair.
func (d *DB) FindJobByKey(ctx context.Context, source, nativeID string) (domain.Job, bool, error) {
	row := d.Pool.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE source = ? AND source_native_id = ? LIMIT 1;`,
		source, nativeID)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Job{}, false, nil
	}
	if err != nil {
		return domain.Job{}, false, domain.StorageError("find job", err)
	}
	return j, true, nil
}

func (d *DB) GetJob(ctx context.Context, id string) (domain.Job, bool, error) {
	row := d.Pool.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ? LIMIT 1;`, id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Job{}, false, nil
	}
	if err != nil {
		return domain.Job{}, false, domain.StorageError("get job", err)
	}
	return j, true, nil
}

// QueryJobs returns jobs newest first (posted_at desc, id asc).
func (d *DB) QueryJobs(ctx context.Context, q domain.JobQuery) ([]domain.Job, error) {
	var (
		where []string
		args  []any
	)
	if !q.Since.IsZero() {
		where = append(where, "posted_at >= ?")
		args = append(args, formatTime(q.Since))
	}
	if len(q.Sources) > 0 {
		where = append(where, "source IN (?"+strings.Repeat(",?", len(q.Sources)-1)+")")
		for _, s := range q.Sources {
			args = append(args, s)
		}
	}

	query := `SELECT ` + jobColumns + ` FROM jobs`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY posted_at DESC, id ASC`
	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	}

	rows, err := d.Pool.QueryContext(ctx, query+";", args...)
	if err != nil {
		return nil, domain.StorageError("query jobs", err)
	}
	defer rows.Close()

	var out []domain.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, domain.StorageError("scan job", err)
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StorageError("query jobs", err)
	}
	return out, nil
}

// CountJobs returns the number of stored jobs.
func (d *DB) CountJobs(ctx context.Context) (int, error) {
	var n int
	if err := d.Pool.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs;`).Scan(&n); err != nil {
		return 0, domain.StorageError("count jobs", err)
	}
	return n, nil
}
