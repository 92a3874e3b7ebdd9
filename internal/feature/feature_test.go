package feature

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobmatch-engine/internal/corpus"
	"jobmatch-engine/internal/normalize"
)

var corpusTime = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestExtractor(stats *corpus.Stats) *Extractor {
	n := normalize.Default()
	return NewExtractor(n, NewVocabulary(n, DefaultSkills), stats)
}

func TestExtractUnitNormAndSorted(t *testing.T) {
	t.Parallel()

	e := newTestExtractor(nil)
	v := e.ExtractText("Python developer. Python, Django, AWS and Docker on Kubernetes.")

	require.NotEmpty(t, v.Terms)
	assert.InDelta(t, 1.0, v.Norm(), 1e-12)
	for i := 1; i < len(v.Terms); i++ {
		assert.Less(t, v.Terms[i-1].Term, v.Terms[i].Term)
	}
	assert.Greater(t, v.Weight("python"), v.Weight("django"))
}

func TestExtractIsBitIdentical(t *testing.T) {
	t.Parallel()

	b := corpus.NewBuilder()
	b.Add(normalize.Normalize("python developer"))
	b.Add(normalize.Normalize("graphic designer photoshop"))
	e := newTestExtractor(b.Stats(corpusTime))

	text := "Senior Python engineer with machine learning and data science background"
	first := e.ExtractText(text)
	for i := 0; i < 20; i++ {
		again := e.ExtractText(text)
		require.Equal(t, len(first.Terms), len(again.Terms))
		for k := range first.Terms {
			assert.Equal(t, math.Float64bits(first.Terms[k].Weight), math.Float64bits(again.Terms[k].Weight))
		}
	}
}

func TestExtractEmptyIsZero(t *testing.T) {
	t.Parallel()

	v := newTestExtractor(nil).ExtractText("")
	assert.True(t, v.IsZero())
	assert.Empty(t, v.Skills)
	assert.Equal(t, 0.0, Dot(v, v))
}

func TestIDFDownweightsCommonTerms(t *testing.T) {
	t.Parallel()

	b := corpus.NewBuilder()
	for i := 0; i < 5; i++ {
		b.Add(normalize.Normalize("engineer team"))
	}
	b.Add(normalize.Normalize("rust"))
	e := newTestExtractor(b.Stats(corpusTime))

	v := e.ExtractText("engineer rust")
	assert.Greater(t, v.Weight("rust"), v.Weight(normalize.Normalize("engineer")[0]))
}

func TestSkillsAndSeniority(t *testing.T) {
	t.Parallel()

	e := newTestExtractor(nil)
	v := e.ExtractText("Senior backend engineer: Golang, Postgres, k8s, CI/CD pipelines and machine learning")
	assert.Equal(t, []string{"CI/CD", "Go", "Kubernetes", "Machine Learning", "PostgreSQL"}, v.Skills)
	assert.Equal(t, "senior", v.Seniority)

	assert.Equal(t, "intern", e.ExtractText("Summer internship for students").Seniority)
	assert.Equal(t, "", e.ExtractText("Graphic designer").Seniority)
}

func TestSkillsKeepTechTokens(t *testing.T) {
	t.Parallel()

	e := newTestExtractor(nil)
	assert.Equal(t, []string{"C#", "C++", "Node.js"}, e.Skills("C++ and C# with Node.js"))
	assert.Equal(t, []string{".NET"}, e.Skills("Senior .NET developer"))
	assert.Equal(t, []string{".NET"}, e.Skills("dotnet core services"))
	assert.Empty(t, e.Skills("Adobe Photoshop, Illustrator, typography"))
}

func TestVocabularyCanonical(t *testing.T) {
	t.Parallel()

	n := normalize.Default()
	v := NewVocabulary(n, DefaultSkills)
	got, ok := v.Canonical(n, "golang")
	require.True(t, ok)
	assert.Equal(t, "Go", got)

	_, ok = v.Canonical(n, "basket weaving")
	assert.False(t, ok)
}

func TestDotIsSymmetric(t *testing.T) {
	t.Parallel()

	e := newTestExtractor(nil)
	a := e.ExtractText("python aws docker")
	b := e.ExtractText("aws lambda python flask")
	assert.Equal(t, math.Float64bits(Dot(a, b)), math.Float64bits(Dot(b, a)))
}
