package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	t.Parallel()

	_, res := NormalizeAndValidate(Default())
	assert.True(t, res.OK(), "errors: %v", res.Errors)
	assert.NoError(t, Validate(Default()))
}

func TestLoadKeepsDefaultsForMissingKeys(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
ingest:
  fetch_timeout: 3s
  page_size: 20
sources:
  lever:
    enabled: true
    companies:
      - slug: acme
        name: Acme
  headhunter:
    enabled: true
    text: golang
    max_pages: 2
scoring:
  weight_cosine: 0.5
  weight_overlap: 0.5
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cfg.Ingest.FetchTimeout)
	assert.Equal(t, 20, cfg.Ingest.PageSize)
	assert.Equal(t, 5, cfg.Ingest.MaxPages, "default kept")
	assert.Equal(t, []Company{{Slug: "acme", Name: "Acme"}}, cfg.Sources.Lever.Companies)
	assert.Equal(t, 2, cfg.Sources.HeadHunter.MaxPages)
	assert.Equal(t, "background", cfg.Scoring.IDFCorpusSource)
	assert.NoError(t, Validate(cfg))
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestNormalizeAndValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"weights must sum to one", func(c *Config) { c.Scoring.WeightCosine = 0.5 }, "must equal 1"},
		{"negative weight", func(c *Config) { c.Scoring.WeightCosine, c.Scoring.WeightOverlap = -0.5, 1.5 }, "must be >= 0"},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "mysql" }, "storage.driver"},
		{"postgres needs dsn", func(c *Config) { c.Storage.Driver = "postgres" }, "storage.dsn"},
		{"bad idf source", func(c *Config) { c.Scoring.IDFCorpusSource = "web" }, "idf_corpus_source"},
		{"zero timeout", func(c *Config) { c.Ingest.FetchTimeout = 0 }, "fetch_timeout"},
		{"adzuna needs app id", func(c *Config) { c.Sources.Adzuna.Enabled = true }, "app_id"},
		{"company slug", func(c *Config) {
			c.Sources.Greenhouse.Enabled = true
			c.Sources.Greenhouse.Companies = []Company{{Name: "x"}}
		}, "slug is required"},
		{"workday needs board url", func(c *Config) {
			c.Sources.Workday.Enabled = true
			c.Sources.Workday.Companies = []Company{{Slug: "acme"}}
		}, "full board url"},
		{"email needs username", func(c *Config) { c.Sources.Email.Enabled = true }, "username"},
		{"min score range", func(c *Config) { c.Matching.MinScore = 2 }, "min_score"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			_, res := NormalizeAndValidate(cfg)
			require.False(t, res.OK())
			assert.Contains(t, res.Err().Error(), tt.wantErr)
		})
	}
}

func TestNormalizeTrimsLists(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Matching.LocationsAllow = []string{" Berlin ", "berlin", "", "Remote"}
	cfg.Matching.LocationsBlock = []string{"remote"}

	out, res := NormalizeAndValidate(cfg)
	assert.True(t, res.OK())
	assert.Equal(t, []string{"Berlin", "Remote"}, out.Matching.LocationsAllow)
	assert.NotEmpty(t, res.Warnings)
}

func TestSaveAtomicKeepsBackup(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")

	cfg := Default()
	cfg.Matching.TopK = 7
	require.NoError(t, SaveAtomic(path, cfg))

	cfg.Matching.TopK = 9
	require.NoError(t, SaveAtomic(path, cfg))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9, got.Matching.TopK)

	bak, err := Load(path + ".bak")
	require.NoError(t, err)
	assert.Equal(t, 7, bak.Matching.TopK)

	bad := Default()
	bad.Scoring.WeightOverlap = 0
	assert.Error(t, SaveAtomic(path, bad))
}

func TestEnsureUserConfig(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "data")
	path, err := EnsureUserConfig(dir, "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "config.yml"), path)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.App.DataDir)

	again, err := EnsureUserConfig(dir, "/does/not/matter")
	require.NoError(t, err)
	assert.Equal(t, path, again)
}

func TestResolvePath(t *testing.T) {
	t.Parallel()

	assert.Equal(t, filepath.Join("/data", "jobs.db"), ResolvePath("/data", "jobs.db"))
	assert.Equal(t, "/abs/jobs.db", ResolvePath("/data", "/abs/jobs.db"))
	assert.Equal(t, "", ResolvePath("/data", ""))
}
