package store

import (
	"context"
	"time"

	"jobmatch-engine/internal/domain"
)

// Run is one recorded ingestion run. Summary is the run summary as JSON.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Aborted    bool
	Summary    []byte
}

func (d *DB) RecordRun(ctx context.Context, r Run) error {
	aborted := 0
	if r.Aborted {
		aborted = 1
	}
	_, err := d.Pool.ExecContext(ctx, `
INSERT INTO ingest_runs(id, started_at, finished_at, aborted, summary)
VALUES(?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET
  finished_at = excluded.finished_at,
  aborted = excluded.aborted,
  summary = excluded.summary;
`, r.ID, formatTime(r.StartedAt), formatTime(r.FinishedAt), aborted, string(r.Summary))
	if err != nil {
		return domain.StorageError("record run", err)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (d *DB) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := d.Pool.QueryContext(ctx, `
SELECT id, started_at, finished_at, aborted, summary
FROM ingest_runs
ORDER BY started_at DESC
LIMIT ?;`, limit)
	if err != nil {
		return nil, domain.StorageError("recent runs", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			r                 Run
			started, finished string
			aborted           int
			summary           string
		)
		if err := rows.Scan(&r.ID, &started, &finished, &aborted, &summary); err != nil {
			return nil, domain.StorageError("scan run", err)
		}
		r.StartedAt = parseTime(started)
		r.FinishedAt = parseTime(finished)
		r.Aborted = aborted != 0
		r.Summary = []byte(summary)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StorageError("recent runs", err)
	}
	return out, nil
}
