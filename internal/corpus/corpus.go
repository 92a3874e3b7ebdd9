// Package corpus keeps the document-frequency statistics that weight terms in
// feature vectors.
package corpus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"jobmatch-engine/internal/domain"
	"jobmatch-engine/internal/normalize"
)

// Stats is an immutable snapshot of document frequencies. The zero value and
// nil both behave as an empty corpus, where every IDF is 1.
type Stats struct {
	Docs    int            `json:"docs"`
	DF      map[string]int `json:"df"`
	BuiltAt time.Time      `json:"built_at"`
}

// IDF is the smoothed inverse document frequency ln((1+N)/(1+df)) + 1.
func (s *Stats) IDF(term string) float64 {
	if s == nil || s.Docs == 0 {
		return 1
	}
	df := s.DF[term]
	return math.Log(float64(1+s.Docs)/float64(1+df)) + 1
}

// Len is the number of documents behind the snapshot.
func (s *Stats) Len() int {
	if s == nil {
		return 0
	}
	return s.Docs
}

// Builder accumulates document frequencies.
type Builder struct {
	docs int
	df   map[string]int
}

func NewBuilder() *Builder {
	return &Builder{df: make(map[string]int)}
}

// Add counts each distinct token of one document once.
func (b *Builder) Add(tokens []string) {
	if len(tokens) == 0 {
		return
	}
	seen := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		if seen[t] {
			continue
		}
		seen[t] = true
		b.df[t]++
	}
	b.docs++
}

// Stats freezes the builder into a snapshot.
func (b *Builder) Stats(at time.Time) *Stats {
	df := make(map[string]int, len(b.df))
	for k, v := range b.df {
		df[k] = v
	}
	return &Stats{Docs: b.docs, DF: df, BuiltAt: at.UTC()}
}

// JobText is the text of a job that feeds both the corpus and the job's
// feature vector.
func JobText(j domain.Job) string {
	return strings.TrimSpace(j.Title + "\n" + normalize.PlainText(j.Description))
}

// JobLister is the read side of job storage.
type JobLister interface {
	QueryJobs(ctx context.Context, q domain.JobQuery) ([]domain.Job, error)
}

// Build computes a snapshot over every stored job.
func Build(ctx context.Context, jobs JobLister, n *normalize.Normalizer, now time.Time) (*Stats, error) {
	all, err := jobs.QueryJobs(ctx, domain.JobQuery{})
	if err != nil {
		return nil, fmt.Errorf("list jobs for corpus: %w", err)
	}
	b := NewBuilder()
	for _, j := range all {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		b.Add(n.Normalize(JobText(j)))
	}
	return b.Stats(now), nil
}

// Save writes the snapshot as JSON, replacing path atomically.
func Save(path string, s *Stats) error {
	if s == nil {
		return errors.New("nil corpus stats")
	}
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Load reads a snapshot written by Save.
func Load(path string) (*Stats, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s Stats
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("decode corpus %s: %w", path, err)
	}
	if s.DF == nil {
		s.DF = map[string]int{}
	}
	if s.Docs < 0 {
		return nil, fmt.Errorf("decode corpus %s: negative document count", path)
	}
	return &s, nil
}
