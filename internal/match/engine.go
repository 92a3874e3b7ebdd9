// Package match answers the two questions the engine exists for: which
// stored jobs suit a profile, and how well one resume fits one job.
package match

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"jobmatch-engine/internal/corpus"
	"jobmatch-engine/internal/domain"
	"jobmatch-engine/internal/feature"
	"jobmatch-engine/internal/logger"
	"jobmatch-engine/internal/normalize"
	"jobmatch-engine/internal/rank"
)

var (
	ErrJobNotFound   = errors.New("job not found")
	ErrNoResumeStore = errors.New("no resume source configured")
)

// JobStore is the read side of storage.
type JobStore interface {
	QueryJobs(ctx context.Context, q domain.JobQuery) ([]domain.Job, error)
	GetJob(ctx context.Context, id string) (domain.Job, bool, error)
}

// Profile is what the user tells us about themselves. ResumeText wins over
// ResumeRef when both are set. A profile with neither scores zero against
// every job.
type Profile struct {
	ResumeText   string   `json:"resume_text,omitempty"`
	ResumeRef    string   `json:"resume_ref,omitempty"`
	DesiredRoles []string `json:"desired_roles,omitempty"`
	Locations    []string `json:"locations,omitempty"`
	// RemoteOK is nil when the profile states no preference.
	RemoteOK *bool    `json:"remote_ok,omitempty"`
	Skills   []string `json:"skills,omitempty"`
}

// Query pages through suggestions. Zero values take the engine defaults.
type Query struct {
	TopK     int
	Offset   int
	MinScore float64
	Sources  []string
	// MaxCandidates bounds how many stored jobs are scored, newest first.
	MaxCandidates int
}

type Suggestions struct {
	Results []rank.MatchResult `json:"results"`
	Total   int                `json:"total"`
	Offset  int                `json:"offset"`
}

// Defaults are the matching settings used when a request leaves them out.
type Defaults struct {
	Filters       rank.Filters
	TopK          int
	MinScore      float64
	MaxCandidates int
}

type Engine struct {
	jobs     JobStore
	resumes  ResumeSource
	corpus   *corpus.Provider
	norm     *normalize.Normalizer
	vocab    *feature.Vocabulary
	ranker   rank.Ranker
	defaults Defaults
	logger   *zap.Logger
	now      func() time.Time
}

// Options wires an Engine. Corpus, Normalizer and Vocabulary may be nil.
type Options struct {
	Jobs       JobStore
	Resumes    ResumeSource
	Corpus     *corpus.Provider
	Normalizer *normalize.Normalizer
	Vocabulary *feature.Vocabulary
	Weights    rank.Weights
	Defaults   Defaults
	Logger     *zap.Logger
}

func New(opts Options) (*Engine, error) {
	if opts.Jobs == nil {
		return nil, errors.New("match engine needs a job store")
	}
	scorer, err := rank.NewScorer(opts.Weights)
	if err != nil {
		return nil, err
	}
	n := opts.Normalizer
	if n == nil {
		n = normalize.Default()
	}
	vocab := opts.Vocabulary
	if vocab == nil {
		vocab = feature.NewVocabulary(n, feature.DefaultSkills)
	}
	cp := opts.Corpus
	if cp == nil {
		cp = corpus.NewProvider(corpus.ModeNone, "", nil, n, opts.Logger)
	}
	return &Engine{
		jobs:     opts.Jobs,
		resumes:  opts.Resumes,
		corpus:   cp,
		norm:     n,
		vocab:    vocab,
		ranker:   rank.NewRanker(scorer),
		defaults: opts.Defaults,
		logger:   logger.WithFields(opts.Logger),
		now:      time.Now,
	}, nil
}

// extractor binds the current corpus snapshot for one request, so every
// vector of the request is weighted by the same statistics.
func (e *Engine) extractor() *feature.Extractor {
	return feature.NewExtractor(e.norm, e.vocab, e.corpus.Current())
}

func (e *Engine) resumeText(ctx context.Context, p Profile) (string, error) {
	if strings.TrimSpace(p.ResumeText) != "" {
		return p.ResumeText, nil
	}
	if strings.TrimSpace(p.ResumeRef) == "" {
		return "", nil
	}
	if e.resumes == nil {
		return "", ErrNoResumeStore
	}
	text, err := e.resumes.ResumeText(ctx, p.ResumeRef)
	if err != nil {
		return "", fmt.Errorf("failed to load resume %q: %w", p.ResumeRef, err)
	}
	return text, nil
}

// ProfileVector turns a profile into exactly one vector. Desired roles are
// appended to the resume text; declared skills that the vocabulary knows are
// added to the skill set.
func (e *Engine) ProfileVector(ctx context.Context, ex *feature.Extractor, p Profile) (feature.Vector, error) {
	text, err := e.resumeText(ctx, p)
	if err != nil {
		return feature.Vector{}, err
	}
	if len(p.DesiredRoles) > 0 {
		text += "\n" + strings.Join(p.DesiredRoles, "\n")
	}
	v := ex.ExtractText(text)

	if len(p.Skills) > 0 {
		set := make(map[string]bool, len(v.Skills)+len(p.Skills))
		for _, s := range v.Skills {
			set[s] = true
		}
		for _, s := range p.Skills {
			if c, ok := e.vocab.Canonical(e.norm, s); ok {
				set[c] = true
			}
		}
		v.Skills = sortedSet(set)
	}
	return v, nil
}

// filters merges the profile preferences over the defaults.
func (e *Engine) filters(p Profile, q Query) rank.Filters {
	f := e.defaults.Filters
	if len(p.Locations) > 0 {
		f.LocationsAllow = p.Locations
	}
	if p.RemoteOK != nil {
		f.RemoteOK = *p.RemoteOK
	}
	if len(q.Sources) > 0 {
		f.Sources = q.Sources
	}
	f.Now = e.now()
	return f
}

// SuggestJobs ranks stored jobs against the profile and returns one page of
// results plus the number of jobs that matched at all.
func (e *Engine) SuggestJobs(ctx context.Context, p Profile, q Query) (Suggestions, error) {
	if q.TopK <= 0 {
		q.TopK = e.defaults.TopK
	}
	if q.MinScore <= 0 {
		q.MinScore = e.defaults.MinScore
	}
	if q.MaxCandidates <= 0 {
		q.MaxCandidates = e.defaults.MaxCandidates
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	out := Suggestions{Results: []rank.MatchResult{}, Offset: q.Offset}

	ex := e.extractor()
	pv, err := e.ProfileVector(ctx, ex, p)
	if err != nil {
		return out, err
	}
	if pv.IsZero() {
		return out, nil
	}

	f := e.filters(p, q)
	jq := domain.JobQuery{Sources: f.Sources, Limit: q.MaxCandidates}
	if f.MaxAge > 0 {
		jq.Since = f.Now.Add(-f.MaxAge)
	}
	jobs, err := e.jobs.QueryJobs(ctx, jq)
	if err != nil {
		return out, fmt.Errorf("failed to load candidate jobs: %w", err)
	}

	// Filter before extracting so rejected jobs are never vectorized.
	cands := make([]rank.Candidate, 0, len(jobs))
	for _, j := range jobs {
		if ok, _ := f.Allows(j); !ok {
			continue
		}
		cands = append(cands, rank.Candidate{Job: j, Vector: ex.ExtractText(corpus.JobText(j))})
	}

	all := e.ranker.Rank(pv, cands, rank.Options{MinScore: q.MinScore})
	out.Total = len(all)
	if q.Offset < len(all) {
		end := len(all)
		if q.TopK > 0 && q.Offset+q.TopK < end {
			end = q.Offset + q.TopK
		}
		out.Results = all[q.Offset:end]
	}

	e.logger.Debug("suggested jobs",
		zap.Int("candidates", len(jobs)),
		zap.Int("filtered", len(cands)),
		zap.Int("matched", out.Total),
		zap.Int("returned", len(out.Results)),
	)
	return out, nil
}

// Report explains how one resume fits one job.
type Report struct {
	JobID           string         `json:"job_id"`
	Title           string         `json:"title"`
	Company         string         `json:"company"`
	Score           float64        `json:"score"`
	Breakdown       rank.Breakdown `json:"breakdown"`
	ResumeSkills    []string       `json:"identified_skills"`
	JobSkills       []string       `json:"job_skills"`
	ResumeSeniority string         `json:"resume_seniority,omitempty"`
	JobSeniority    string         `json:"job_seniority,omitempty"`
	// SharedTerms are the heaviest terms both sides have in common.
	SharedTerms []string `json:"shared_terms"`
}

const sharedTermsMax = 10

// AnalyzeResume scores the referenced resume against one job.
func (e *Engine) AnalyzeResume(ctx context.Context, resumeRef, jobID string) (Report, error) {
	return e.Analyze(ctx, Profile{ResumeRef: resumeRef}, jobID)
}

// Analyze is AnalyzeResume for a full profile.
func (e *Engine) Analyze(ctx context.Context, p Profile, jobID string) (Report, error) {
	job, ok, err := e.jobs.GetJob(ctx, jobID)
	if err != nil {
		return Report{}, fmt.Errorf("failed to load job %s: %w", jobID, err)
	}
	if !ok {
		return Report{}, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}

	ex := e.extractor()
	pv, err := e.ProfileVector(ctx, ex, p)
	if err != nil {
		return Report{}, err
	}
	jv := ex.ExtractText(corpus.JobText(job))
	score, bd := e.ranker.Scorer().Score(pv, jv)

	return Report{
		JobID:           job.ID,
		Title:           job.Title,
		Company:         job.Company,
		Score:           score,
		Breakdown:       bd,
		ResumeSkills:    nonNil(pv.Skills),
		JobSkills:       nonNil(jv.Skills),
		ResumeSeniority: pv.Seniority,
		JobSeniority:    jv.Seniority,
		SharedTerms:     sharedTerms(pv, jv, sharedTermsMax),
	}, nil
}

// sharedTerms lists terms present in both vectors, heaviest product first.
func sharedTerms(a, b feature.Vector, n int) []string {
	var shared feature.Vector
	for _, tw := range a.Terms {
		if w := b.Weight(tw.Term); w > 0 {
			shared.Terms = append(shared.Terms, feature.TermWeight{Term: tw.Term, Weight: tw.Weight * w})
		}
	}
	out := []string{}
	for _, tw := range shared.TopTerms(n) {
		out = append(out, tw.Term)
	}
	return out
}

func nonNil(xs []string) []string {
	if xs == nil {
		return []string{}
	}
	return xs
}
