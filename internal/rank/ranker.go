// Package rank scores job vectors against a profile vector and orders the
// results.
package rank

import (
	"container/heap"
	"sort"
	"time"

	"jobmatch-engine/internal/domain"
	"jobmatch-engine/internal/feature"
)

// Candidate is a job paired with its feature vector.
type Candidate struct {
	Job    domain.Job
	Vector feature.Vector
}

// MatchResult is one ranked job.
type MatchResult struct {
	JobID     string     `json:"job_id"`
	Score     float64    `json:"score"`
	Breakdown Breakdown  `json:"breakdown"`
	PostedAt  time.Time  `json:"posted_at"`
	Job       domain.Job `json:"job"`
}

// Options control one ranking pass.
type Options struct {
	Filters Filters
	// TopK > 0 keeps only the best K results.
	TopK int
	// MinScore drops results scoring below it.
	MinScore float64
}

type Ranker struct {
	scorer Scorer
}

func NewRanker(s Scorer) Ranker { return Ranker{scorer: s} }

func (r Ranker) Scorer() Scorer { return r.scorer }

// Rank filters, scores and orders candidates by score descending, then
// PostedAt descending, then JobID ascending. A zero profile yields no
// results. Rank never mutates its inputs.
func (r Ranker) Rank(profile feature.Vector, cands []Candidate, opts Options) []MatchResult {
	if profile.IsZero() {
		return []MatchResult{}
	}

	var h *resultHeap
	if opts.TopK > 0 {
		h = &resultHeap{}
	}
	out := []MatchResult{}

	for _, c := range cands {
		if ok, _ := opts.Filters.Allows(c.Job); !ok {
			continue
		}
		score, bd := r.scorer.Score(profile, c.Vector)
		if score < opts.MinScore {
			continue
		}
		res := MatchResult{JobID: c.Job.ID, Score: score, Breakdown: bd, PostedAt: c.Job.PostedAt, Job: c.Job}

		if h == nil {
			out = append(out, res)
			continue
		}
		if h.Len() < opts.TopK {
			heap.Push(h, res)
		} else if Less(res, (*h)[0]) {
			(*h)[0] = res
			heap.Fix(h, 0)
		}
	}

	if h != nil {
		out = append(out, (*h)...)
	}
	sort.Slice(out, func(i, j int) bool { return Less(out[i], out[j]) })
	return out
}

// Less is the total order of results: true if a ranks before b.
func Less(a, b MatchResult) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if !a.PostedAt.Equal(b.PostedAt) {
		return a.PostedAt.After(b.PostedAt)
	}
	return a.JobID < b.JobID
}

// resultHeap keeps the worst retained result at the root.
type resultHeap []MatchResult

func (h resultHeap) Len() int           { return len(h) }
func (h resultHeap) Less(i, j int) bool { return Less(h[j], h[i]) }
func (h resultHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *resultHeap) Push(x any) { *h = append(*h, x.(MatchResult)) }

func (h *resultHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
