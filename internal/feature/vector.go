// Package feature converts normalized tokens into weighted term vectors plus
// structured entities (skills, seniority).
package feature

import (
	"math"
	"sort"
)

// TermWeight is one non-zero coordinate of a Vector.
type TermWeight struct {
	Term   string  `json:"term"`
	Weight float64 `json:"weight"`
}

// Vector is sparse and sorted by term so that every reduction over it runs in
// the same order and yields bit-identical results.
type Vector struct {
	Terms     []TermWeight `json:"terms"`
	Skills    []string     `json:"skills"`
	Seniority string       `json:"seniority,omitempty"`
}

// IsZero reports whether the vector has no positive weight.
func (v Vector) IsZero() bool {
	for _, tw := range v.Terms {
		if tw.Weight > 0 {
			return false
		}
	}
	return true
}

// Weight returns the weight of term, 0 if absent.
func (v Vector) Weight(term string) float64 {
	i := sort.Search(len(v.Terms), func(i int) bool { return v.Terms[i].Term >= term })
	if i < len(v.Terms) && v.Terms[i].Term == term {
		return v.Terms[i].Weight
	}
	return 0
}

// Norm is the L2 norm, accumulated in term order.
func (v Vector) Norm() float64 {
	var sum float64
	for _, tw := range v.Terms {
		sum += tw.Weight * tw.Weight
	}
	return math.Sqrt(sum)
}

// Dot is a merge-join over both sorted term lists.
func Dot(a, b Vector) float64 {
	var sum float64
	i, j := 0, 0
	for i < len(a.Terms) && j < len(b.Terms) {
		switch {
		case a.Terms[i].Term < b.Terms[j].Term:
			i++
		case a.Terms[i].Term > b.Terms[j].Term:
			j++
		default:
			sum += a.Terms[i].Weight * b.Terms[j].Weight
			i++
			j++
		}
	}
	return sum
}

// TopTerms returns up to n terms by descending weight, ties by term.
func (v Vector) TopTerms(n int) []TermWeight {
	out := append([]TermWeight(nil), v.Terms...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		return out[i].Term < out[j].Term
	})
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
