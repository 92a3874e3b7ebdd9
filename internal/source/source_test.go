package source

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobmatch-engine/internal/domain"
)

func TestGetJSONErrorMapping(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"items":[{"id":12345678901234567890}]}`))
	})
	mux.HandleFunc("/gzip", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		_, _ = gz.Write([]byte(`{"items":[]}`))
		_ = gz.Close()
	})
	mux.HandleFunc("/limited", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	})
	mux.HandleFunc("/down", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	mux.HandleFunc("/garbage", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>`))
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c := NewClient(time.Second, nil, nil)
	ctx := context.Background()

	var out struct {
		Items []RawPayload `json:"items"`
	}
	require.NoError(t, c.GetJSON(ctx, "test", srv.URL+"/ok", nil, &out))
	require.Len(t, out.Items, 1)
	assert.Equal(t, json.Number("12345678901234567890"), out.Items[0]["id"])

	require.NoError(t, c.GetJSON(ctx, "test", srv.URL+"/gzip", nil, &out))

	err := c.GetJSON(ctx, "test", srv.URL+"/limited", nil, &out)
	var rl *domain.RateLimitedError
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, 7*time.Second, rl.RetryAfter)

	assert.ErrorIs(t, c.GetJSON(ctx, "test", srv.URL+"/down", nil, &out), domain.ErrSourceUnavailable)
	assert.ErrorIs(t, c.GetJSON(ctx, "test", srv.URL+"/garbage", nil, &out), domain.ErrSourceUnavailable)

	short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.GetJSON(short, "test", srv.URL+"/slow", nil, &out), domain.ErrSourceUnavailable)
}

func TestParseRetryAfter(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, 30*time.Second, ParseRetryAfter("30", now))
	assert.Equal(t, 90*time.Second, ParseRetryAfter(now.Add(90*time.Second).Format(http.TimeFormat), now))
	assert.Equal(t, time.Duration(0), ParseRetryAfter("soon", now))
	assert.Equal(t, time.Duration(0), ParseRetryAfter("-5", now))

	d, ok := IsRetryable(&domain.RateLimitedError{RetryAfter: time.Second}, 2*time.Second)
	assert.True(t, ok)
	assert.Equal(t, time.Second, d)
	_, ok = IsRetryable(&domain.RateLimitedError{RetryAfter: time.Minute}, 2*time.Second)
	assert.False(t, ok)
	_, ok = IsRetryable(errors.New("boom"), time.Minute)
	assert.False(t, ok)
}

type fakeAdapter struct{}

func (fakeAdapter) Name() string { return "fake" }

func (fakeAdapter) Fetch(context.Context, Page) (Batch, error) { return Batch{}, nil }

func (fakeAdapter) Map(raw RawPayload) (domain.Job, error) {
	var p struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	}
	if err := Decode("fake", raw, &p); err != nil {
		return domain.Job{}, err
	}
	if p.Title == "boom" {
		panic("unexpected shape")
	}
	if strings.TrimSpace(p.Title) == "" {
		return domain.Job{}, domain.Malformed("fake", p.ID, "missing title")
	}
	return domain.Job{Source: "fake", SourceNativeID: p.ID, Title: p.Title}, nil
}

func TestMapAllIsolatesFailures(t *testing.T) {
	t.Parallel()

	payloads := []RawPayload{
		{"id": "1", "title": "Go Engineer"},
		{"id": "2"},
		{"id": "3", "title": map[string]any{"nested": true}},
		{"id": json.Number("4"), "title": "Rust Engineer"},
		{"id": "5", "title": "boom"},
	}
	jobs, failures := MapAll(fakeAdapter{}, payloads)
	require.Len(t, jobs, 2)
	assert.Equal(t, "4", jobs[1].SourceNativeID)
	require.Len(t, failures, 3)
	assert.Equal(t, []int{1, 2, 4}, []int{failures[0].Index, failures[1].Index, failures[2].Index})
}

func TestRawPayloadDecodesOddElements(t *testing.T) {
	t.Parallel()

	var items []RawPayload
	require.NoError(t, json.Unmarshal([]byte(`[null, 7, "x", [1], {"id": 9, "title": "Go Engineer"}]`), &items))
	require.Len(t, items, 5)
	for i := 0; i < 4; i++ {
		assert.NotNil(t, items[i])
		assert.Empty(t, items[i])
	}
	assert.Equal(t, json.Number("9"), items[4]["id"])

	items[0]["_company"] = "Acme"

	jobs, failures := MapAll(fakeAdapter{}, items)
	require.Len(t, jobs, 1)
	assert.Equal(t, "9", jobs[0].SourceNativeID)
	assert.Len(t, failures, 4)
}

func TestParseTime(t *testing.T) {
	t.Parallel()

	assert.Equal(t, time.Date(2024, 1, 2, 7, 0, 0, 0, time.UTC), ParseTime("2024-01-02T10:00:00+0300"))
	assert.Equal(t, time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC), ParseTime("2024-01-02T10:00:00Z"))
	assert.True(t, ParseTime("yesterday").IsZero())
}
