package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"jobmatch-engine/internal/domain"
)

// The DO UPDATE only fires when the content changed, and RETURNING yields no
// row when it doesn't, so one statement both decides and writes.
const upsertJobSQL = `
INSERT INTO jobs (id, source, source_native_id, title, company, location, work_mode, description, url, tags, posted_at, checksum, revision, first_seen_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
ON CONFLICT (source, source_native_id) DO UPDATE SET
  title = excluded.title,
  company = excluded.company,
  location = excluded.location,
  work_mode = excluded.work_mode,
  description = excluded.description,
  url = excluded.url,
  tags = excluded.tags,
  posted_at = excluded.posted_at,
  checksum = excluded.checksum,
  revision = jobs.revision + 1,
  updated_at = excluded.updated_at
WHERE jobs.checksum <> excluded.checksum
RETURNING revision;`

// UpsertJob inserts j or, when a job with the same key exists and its
// checksum differs, overwrites its content. Equal checksums write nothing.
func (d *DB) UpsertJob(ctx context.Context, j domain.Job) (domain.UpsertOutcome, error) {
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
	tagsB, err := json.Marshal(tags)
	if err != nil {
		return domain.UpsertUnchanged, fmt.Errorf("marshal tags: %w", err)
	}
	now := formatTime(d.now())

	var revision int
	err = d.Pool.QueryRowContext(ctx, upsertJobSQL,
		j.ID,
		j.Source,
		j.SourceNativeID,
		j.Title,
		j.Company,
		j.Location,
		j.WorkMode,
		j.Description,
		j.URL,
		string(tagsB),
		formatTime(j.PostedAt),
		j.Checksum,
		now,
		now,
	).Scan(&revision)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return domain.UpsertUnchanged, nil
	case err != nil:
		return domain.UpsertUnchanged, domain.StorageError("upsert job", err)
	case revision == 1:
		return domain.UpsertInserted, nil
	default:
		d.Logger.Debug("job revised", zap.String("id", j.ID), zap.Int("revision", revision))
		return domain.UpsertUpdated, nil
	}
}
