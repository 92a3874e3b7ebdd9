package ingest

import (
	"time"

	"jobmatch-engine/internal/source"
)

// maxFailures caps the per-record failures a summary keeps for one source.
const maxFailures = 20

// Failure is a payload the source's adapter could not map.
type Failure struct {
	Page  int    `json:"page"`
	Index int    `json:"index"`
	Err   string `json:"error"`
}

// SourceSummary counts what one source contributed to a run.
type SourceSummary struct {
	Source   string `json:"source"`
	Pages    int    `json:"pages"`
	Fetched  int    `json:"fetched"`
	Inserted int    `json:"inserted"`
	Updated  int    `json:"updated"`
	Skipped  int    `json:"skipped"`
	Failed   int    `json:"failed"`

	// Aborted is set when the run was cancelled before this source started,
	// or when storage failed while it was running.
	Aborted    bool          `json:"aborted,omitempty"`
	Error      string        `json:"error,omitempty"`
	ErrorKind  string        `json:"error_kind,omitempty"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
	Failures   []Failure     `json:"failures,omitempty"`
}

func (s *SourceSummary) addFailures(page int, fs []source.Failure) {
	s.Failed += len(fs)
	for _, f := range fs {
		if len(s.Failures) >= maxFailures {
			return
		}
		s.Failures = append(s.Failures, Failure{Page: page, Index: f.Index, Err: f.Err})
	}
}

// OK reports whether the source finished without a source-level error.
func (s SourceSummary) OK() bool { return s.Error == "" && !s.Aborted }

// RunSummary is the result of one ingestion run.
type RunSummary struct {
	RunID      string          `json:"run_id"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Aborted    bool            `json:"aborted"`
	Sources    []SourceSummary `json:"sources"`
}

// Totals sums the counters of every source.
func (r RunSummary) Totals() SourceSummary {
	t := SourceSummary{Source: "total"}
	for _, s := range r.Sources {
		t.Pages += s.Pages
		t.Fetched += s.Fetched
		t.Inserted += s.Inserted
		t.Updated += s.Updated
		t.Skipped += s.Skipped
		t.Failed += s.Failed
	}
	return t
}

func (r RunSummary) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }
