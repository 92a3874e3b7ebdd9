package corpus

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobmatch-engine/internal/domain"
	"jobmatch-engine/internal/normalize"
)

type stubJobs struct {
	jobs []domain.Job
}

func (s stubJobs) QueryJobs(_ context.Context, _ domain.JobQuery) ([]domain.Job, error) {
	return s.jobs, nil
}

func TestIDF(t *testing.T) {
	t.Parallel()

	var empty *Stats
	assert.Equal(t, 1.0, empty.IDF("python"))

	b := NewBuilder()
	b.Add([]string{"python", "python", "aw"})
	b.Add([]string{"python"})
	b.Add(nil)
	s := b.Stats(time.Unix(0, 0))

	assert.Equal(t, 2, s.Docs)
	assert.Equal(t, 2, s.DF["python"])
	assert.InDelta(t, math.Log(3.0/3.0)+1, s.IDF("python"), 1e-12)
	assert.Greater(t, s.IDF("aw"), s.IDF("python"))
	assert.Greater(t, s.IDF("unseen"), s.IDF("aw"))
}

func TestSaveLoadSnapshot(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "corpus", "idf.json")
	b := NewBuilder()
	b.Add([]string{"go", "kubernet"})
	want := b.Stats(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))

	require.NoError(t, Save(path, want))
	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, want.Docs, got.Docs)
	assert.Equal(t, want.DF, got.DF)
	assert.True(t, want.BuiltAt.Equal(got.BuiltAt))
}

func TestProviderModes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	jobs := stubJobs{jobs: []domain.Job{
		{Title: "Python Developer", Description: "<p>Django and AWS</p>"},
		{Title: "Graphic Designer", Description: "Photoshop"},
	}}

	live := NewProvider(ModeLive, "", jobs, normalize.Default(), nil)
	assert.Equal(t, 0, live.Current().Len())
	require.NoError(t, live.Refresh(ctx))
	assert.Equal(t, 2, live.Current().Len())
	assert.Equal(t, 1, live.Current().DF["django"])

	missing := NewProvider(ModeBackground, filepath.Join(t.TempDir(), "none.json"), nil, nil, nil)
	require.NoError(t, missing.Refresh(ctx))
	assert.Equal(t, 1.0, missing.Current().IDF("python"))

	path := filepath.Join(t.TempDir(), "idf.json")
	require.NoError(t, Save(path, live.Current()))
	bg := NewProvider(ModeBackground, path, nil, nil, nil)
	require.NoError(t, bg.Refresh(ctx))
	assert.Equal(t, live.Current().DF, bg.Current().DF)

	none := NewProvider(ModeNone, "", jobs, nil, nil)
	require.NoError(t, none.Refresh(ctx))
	assert.Equal(t, 0, none.Current().Len())
}

func TestParseMode(t *testing.T) {
	t.Parallel()

	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeBackground, m)

	_, err = ParseMode("weekly")
	assert.Error(t, err)
}
