// Package events streams job changes as JSON lines.
package events

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	"jobmatch-engine/internal/domain"
)

const (
	TypeJobCreated = "job_created"
	TypeJobUpdated = "job_updated"
)

type Event struct {
	Type    string          `json:"type"`
	Version int             `json:"v"`
	At      time.Time       `json:"at"`
	RunID   string          `json:"run_id,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// JobData is the payload of job events.
type JobData struct {
	ID       string    `json:"id"`
	Source   string    `json:"source"`
	Title    string    `json:"title"`
	Company  string    `json:"company"`
	Location string    `json:"location"`
	WorkMode string    `json:"work_mode"`
	URL      string    `json:"url"`
	Tags     []string  `json:"tags"`
	PostedAt time.Time `json:"posted_at"`
}

func MakeEvent(runID, typ string, v int, data any) (Event, error) {
	e := Event{
		Type:    typ,
		Version: v,
		At:      time.Now().UTC(),
		RunID:   runID,
	}
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return e, err
		}
		e.Data = b
	}
	return e, nil
}

// Writer encodes events to w, one per line. It is safe for concurrent use.
type Writer struct {
	mu  sync.Mutex
	enc *json.Encoder
	n   int
	err error
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{enc: json.NewEncoder(w)}
}

func (w *Writer) Publish(e Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	if err := w.enc.Encode(e); err != nil {
		w.err = err
		return err
	}
	w.n++
	return nil
}

// JobChanged matches ingest.Pipeline.OnChange. Unchanged outcomes are not
// published.
func (w *Writer) JobChanged(runID string) func(domain.Job, domain.UpsertOutcome) {
	return func(j domain.Job, outcome domain.UpsertOutcome) {
		typ := TypeJobUpdated
		switch outcome {
		case domain.UpsertInserted:
			typ = TypeJobCreated
		case domain.UpsertUnchanged:
			return
		}
		e, err := MakeEvent(runID, typ, 1, jobData(j))
		if err != nil {
			return
		}
		_ = w.Publish(e)
	}
}

// Count is the number of events written so far.
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.n
}

// Err returns the first write error, after which the writer drops events.
func (w *Writer) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

func jobData(j domain.Job) JobData {
	tags := j.Tags
	if tags == nil {
		tags = []string{}
	}
	return JobData{
		ID:       j.ID,
		Source:   j.Source,
		Title:    j.Title,
		Company:  j.Company,
		Location: j.Location,
		WorkMode: j.WorkMode,
		URL:      j.URL,
		Tags:     tags,
		PostedAt: j.PostedAt,
	}
}
