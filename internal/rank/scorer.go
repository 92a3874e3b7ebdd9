package rank

import (
	"fmt"
	"math"

	"jobmatch-engine/internal/feature"
)

// scorePrecision is the grid final scores are rounded to. Rounding is
// monotone and absorbs last-ulp noise so that self-similarity is exactly 1.
const scorePrecision = 1e9

// Weights blends the two score components. They must sum to 1.
type Weights struct {
	Cosine  float64 `yaml:"weight_cosine" json:"cosine"`
	Overlap float64 `yaml:"weight_overlap" json:"overlap"`
}

// DefaultWeights favours skill coverage over raw text similarity.
func DefaultWeights() Weights {
	return Weights{Cosine: 0.3, Overlap: 0.7}
}

func (w Weights) Validate() error {
	if w.Cosine < 0 || w.Overlap < 0 {
		return fmt.Errorf("score weights must be non-negative (cosine=%v overlap=%v)", w.Cosine, w.Overlap)
	}
	if math.Abs(w.Cosine+w.Overlap-1) > 1e-9 {
		return fmt.Errorf("score weights must sum to 1 (cosine=%v overlap=%v)", w.Cosine, w.Overlap)
	}
	return nil
}

// Breakdown explains a score.
type Breakdown struct {
	Cosine         float64  `json:"cosine"`
	Overlap        float64  `json:"overlap"`
	OverlapApplies bool     `json:"overlap_applies"`
	MatchedSkills  []string `json:"matched_skills"`
	MissingSkills  []string `json:"missing_skills"`
}

// Scorer compares a profile vector (a) against a job vector (b).
type Scorer struct {
	weights Weights
}

func NewScorer(w Weights) (Scorer, error) {
	if err := w.Validate(); err != nil {
		return Scorer{}, err
	}
	return Scorer{weights: w}, nil
}

func (s Scorer) Weights() Weights { return s.weights }

// Cosine is symmetric and lies in [0,1]. A zero vector on either side gives 0.
func Cosine(a, b feature.Vector) float64 {
	na, nb := a.Norm(), b.Norm()
	if na == 0 || nb == 0 {
		return 0
	}
	return clamp01(feature.Dot(a, b) / (na * nb))
}

// Score blends cosine similarity with skill overlap, the share of the job's
// skills that the profile has. When the job names no vocabulary skills the
// overlap component does not apply and the score is the cosine alone.
// Degenerate input never errors: a zero profile scores 0.
func (s Scorer) Score(a, b feature.Vector) (float64, Breakdown) {
	matched, missing := compareSkills(a.Skills, b.Skills)
	bd := Breakdown{MatchedSkills: matched, MissingSkills: missing}
	if a.IsZero() {
		return 0, bd
	}

	bd.Cosine = Cosine(a, b)
	final := bd.Cosine
	if len(b.Skills) > 0 {
		bd.OverlapApplies = true
		bd.Overlap = float64(len(matched)) / float64(len(b.Skills))
		final = s.weights.Cosine*bd.Cosine + s.weights.Overlap*bd.Overlap
	}
	return round(final), bd
}

// compareSkills splits the job's skills into those the profile has and those
// it lacks. Both inputs are sorted.
func compareSkills(profile, job []string) (matched, missing []string) {
	matched, missing = []string{}, []string{}
	i := 0
	for _, s := range job {
		for i < len(profile) && profile[i] < s {
			i++
		}
		if i < len(profile) && profile[i] == s {
			matched = append(matched, s)
		} else {
			missing = append(missing, s)
		}
	}
	return matched, missing
}

func round(x float64) float64 {
	return clamp01(math.Round(x*scorePrecision) / scorePrecision)
}

func clamp01(x float64) float64 {
	switch {
	case math.IsNaN(x) || x < 0:
		return 0
	case x > 1:
		return 1
	default:
		return x
	}
}
