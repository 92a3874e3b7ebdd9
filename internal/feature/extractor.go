package feature

import (
	"math"
	"sort"
	"strings"

	"jobmatch-engine/internal/corpus"
	"jobmatch-engine/internal/normalize"
)

// Seniority levels, lowest first.
var seniorityLevels = []struct {
	level    string
	keywords []string
}{
	{"intern", []string{"intern", "internship", "trainee"}},
	{"junior", []string{"junior", "jr", "entry level", "graduate"}},
	{"mid", []string{"mid level", "intermediate"}},
	{"senior", []string{"senior", "sr"}},
	{"lead", []string{"lead", "team lead", "tech lead"}},
	{"principal", []string{"principal", "staff engineer", "architect", "distinguished"}},
}

// Extractor builds vectors. It is pure: equal tokens and the same corpus
// snapshot always give bit-identical vectors.
type Extractor struct {
	norm      *normalize.Normalizer
	vocab     *Vocabulary
	stats     *corpus.Stats
	seniority [][]string // per level, normalized keyword phrases joined by a space
}

func NewExtractor(n *normalize.Normalizer, vocab *Vocabulary, stats *corpus.Stats) *Extractor {
	if n == nil {
		n = normalize.Default()
	}
	if vocab == nil {
		vocab = NewVocabulary(n, DefaultSkills)
	}
	e := &Extractor{norm: n, vocab: vocab, stats: stats}
	for _, lvl := range seniorityLevels {
		var kws []string
		for _, kw := range lvl.keywords {
			if toks := n.Normalize(kw); len(toks) > 0 {
				kws = append(kws, normalize.Join(toks))
			}
		}
		e.seniority = append(e.seniority, kws)
	}
	return e
}

// ExtractText normalizes text and extracts its vector.
func (e *Extractor) ExtractText(text string) Vector {
	return e.Extract(e.norm.Normalize(text))
}

// Extract computes raw term frequency times IDF, L2-normalized, plus skills
// and seniority. Empty input yields the zero vector.
func (e *Extractor) Extract(tokens []string) Vector {
	v := Vector{Skills: e.vocab.Match(tokens), Seniority: e.detectSeniority(tokens)}
	if len(tokens) == 0 {
		return v
	}

	counts := make(map[string]int, len(tokens))
	for _, t := range tokens {
		counts[t]++
	}
	terms := make([]string, 0, len(counts))
	for t := range counts {
		terms = append(terms, t)
	}
	sort.Strings(terms)

	v.Terms = make([]TermWeight, 0, len(terms))
	var sum float64
	for _, t := range terms {
		w := float64(counts[t]) * e.stats.IDF(t)
		if w <= 0 {
			continue
		}
		v.Terms = append(v.Terms, TermWeight{Term: t, Weight: w})
		sum += w * w
	}
	if sum == 0 {
		v.Terms = nil
		return v
	}
	norm := math.Sqrt(sum)
	for i := range v.Terms {
		v.Terms[i].Weight /= norm
	}
	return v
}

// Skills returns the vocabulary skills present in text.
func (e *Extractor) Skills(text string) []string {
	return e.vocab.Match(e.norm.Normalize(text))
}

// detectSeniority returns the highest level whose keyword appears.
func (e *Extractor) detectSeniority(tokens []string) string {
	if len(tokens) == 0 {
		return ""
	}
	joined := " " + normalize.Join(tokens) + " "
	found := ""
	for i, kws := range e.seniority {
		for _, kw := range kws {
			if strings.Contains(joined, " "+kw+" ") {
				found = seniorityLevels[i].level
				break
			}
		}
	}
	return found
}
