package lever

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobmatch-engine/internal/domain"
	"jobmatch-engine/internal/source"
)

func TestFetchAndMap(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/initech", r.URL.Path)
		assert.Equal(t, "json", r.URL.Query().Get("mode"))
		_, _ = w.Write([]byte(`[
			{"id":"aa-11","text":"Senior Data Scientist","hostedUrl":"https://jobs.lever.co/initech/aa-11",
			 "createdAt":1736496000000,"descriptionPlain":"Machine learning with Python","workplaceType":"hybrid",
			 "categories":{"location":"Austin, TX","team":"Data","commitment":"Full-time"}},
			{"id":"bb-22","text":"   "}
		]`))
	}))
	t.Cleanup(srv.Close)

	a := New(Config{BaseURL: srv.URL, Companies: []Company{{Slug: "initech", Name: "Initech"}}}, source.NewClient(time.Second, nil, nil))

	batch, err := a.Fetch(context.Background(), source.Page{})
	require.NoError(t, err)
	assert.False(t, batch.HasMore)

	jobs, failures := source.MapAll(a, batch.Payloads)
	require.Len(t, jobs, 1)
	require.Len(t, failures, 1)
	assert.Equal(t, 1, failures[0].Index)

	j := jobs[0]
	assert.Equal(t, "initech:aa-11", j.SourceNativeID)
	assert.Equal(t, "Initech", j.Company)
	assert.Equal(t, domain.WorkModeHybrid, j.WorkMode)
	assert.Equal(t, "Machine learning with Python", j.Description)
	assert.Equal(t, []string{"Data", "Full-time"}, j.Tags)
	assert.Equal(t, time.UnixMilli(1736496000000).UTC(), j.PostedAt)
}

func TestFetchSurvivesNullRecords(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[null,{"id":"cc-33","text":"Go Engineer"}]`))
	}))
	t.Cleanup(srv.Close)

	a := New(Config{BaseURL: srv.URL, Companies: []Company{{Slug: "initech", Name: "Initech"}}}, source.NewClient(time.Second, nil, nil))
	batch, err := a.Fetch(context.Background(), source.Page{})
	require.NoError(t, err)

	jobs, failures := source.MapAll(a, batch.Payloads)
	require.Len(t, jobs, 1)
	assert.Equal(t, "initech:cc-33", jobs[0].SourceNativeID)
	require.Len(t, failures, 1)
	assert.Equal(t, 0, failures[0].Index)
}
