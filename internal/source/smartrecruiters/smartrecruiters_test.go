package smartrecruiters

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobmatch-engine/internal/domain"
	"jobmatch-engine/internal/source"
)

func TestFetchPagesThroughOffsets(t *testing.T) {
	t.Parallel()

	const total = 5
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/umbrella/postings", r.URL.Path)
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

		var items []string
		for i := offset; i < total && i < offset+limit; i++ {
			items = append(items, fmt.Sprintf(`{"id":"p%d","name":"Engineer %d","releasedDate":"2025-01-0%dT00:00:00.000Z",
				"location":{"city":"Denver","region":"CO","country":"us","remote":%t},"department":{"label":"R&D"}}`, i, i, i+1, i == 0))
		}
		_, _ = fmt.Fprintf(w, `{"content":[%s],"totalFound":%d}`, strings.Join(items, ","), total)
	}))
	t.Cleanup(srv.Close)

	a := New(Config{BaseURL: srv.URL, Companies: []Company{{Slug: "umbrella", Name: "Umbrella"}}}, source.NewClient(time.Second, nil, nil))

	batch, err := a.Fetch(context.Background(), source.Page{Number: 0, Size: 2})
	require.NoError(t, err)
	assert.Len(t, batch.Payloads, total)
	assert.Equal(t, int32(3), calls.Load())
	assert.False(t, batch.HasMore)

	j, err := a.Map(batch.Payloads[0])
	require.NoError(t, err)
	assert.Equal(t, "umbrella:p0", j.SourceNativeID)
	assert.Equal(t, "Denver, CO, us", j.Location)
	assert.Equal(t, domain.WorkModeRemote, j.WorkMode)
	assert.Equal(t, "https://jobs.smartrecruiters.com/umbrella/p0", j.URL)
	assert.Equal(t, []string{"R&D"}, j.Tags)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), j.PostedAt)
}

func TestFetchEmptySlug(t *testing.T) {
	t.Parallel()

	a := New(Config{Companies: []Company{{Name: "NoSlug"}}}, source.NewClient(time.Second, nil, nil))
	_, err := a.Fetch(context.Background(), source.Page{})
	assert.ErrorIs(t, err, domain.ErrSourceUnavailable)
}

func TestFetchSurvivesNullRecords(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"content":[null,{"id":"p9","name":"Go Engineer"}],"totalFound":2}`))
	}))
	t.Cleanup(srv.Close)

	a := New(Config{BaseURL: srv.URL, Companies: []Company{{Slug: "umbrella", Name: "Umbrella"}}}, source.NewClient(time.Second, nil, nil))
	batch, err := a.Fetch(context.Background(), source.Page{Size: 10})
	require.NoError(t, err)

	jobs, failures := source.MapAll(a, batch.Payloads)
	require.Len(t, jobs, 1)
	assert.Equal(t, "umbrella:p9", jobs[0].SourceNativeID)
	require.Len(t, failures, 1)
	assert.Equal(t, 0, failures[0].Index)
}
