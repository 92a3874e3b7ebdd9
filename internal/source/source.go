// Package source defines the adapter contract every job provider implements,
// plus the HTTP and decoding helpers the adapters share.
package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"

	"jobmatch-engine/internal/domain"
)

// Page addresses one slice of a provider's listing. Number is zero-based.
type Page struct {
	Number int
	Size   int
}

// RawPayload is one provider record as decoded from JSON.
type RawPayload map[string]any

// UnmarshalJSON never fails on a well-formed value: null, scalars and arrays
// decode to an empty payload, which Map then rejects as malformed. One odd
// element in a listing must not sink the whole page.
func (p *RawPayload) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil || m == nil {
		*p = RawPayload{}
		return nil
	}
	*p = m
	return nil
}

// Batch is what one Fetch returns.
type Batch struct {
	Payloads []RawPayload
	HasMore  bool
}

// Adapter pulls raw postings from one provider and maps them onto the
// canonical Job.
//
// Fetch returns *domain.SourceUnavailableError or *domain.RateLimitedError on
// failure. Map never panics and returns *domain.MalformedRecordError when a
// payload lacks its identity or title; other missing fields map to defaults.
type Adapter interface {
	Name() string
	Fetch(ctx context.Context, page Page) (Batch, error)
	Map(raw RawPayload) (domain.Job, error)
}

// Failure is one payload that could not be mapped.
type Failure struct {
	Index int    `json:"index"`
	Err   string `json:"error"`
}

// MapAll maps every payload of a batch. Jobs and failures are returned side
// by side; a bad record never hides the good ones.
func MapAll(a Adapter, payloads []RawPayload) ([]domain.Job, []Failure) {
	jobs := make([]domain.Job, 0, len(payloads))
	var failures []Failure
	for i, raw := range payloads {
		j, err := mapOne(a, raw)
		if err != nil {
			failures = append(failures, Failure{Index: i, Err: err.Error()})
			continue
		}
		jobs = append(jobs, j)
	}
	return jobs, failures
}

func mapOne(a Adapter, raw RawPayload) (j domain.Job, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = domain.Malformed(a.Name(), "", "panic while mapping: %v", r)
		}
	}()
	return a.Map(raw)
}

// Decode copies a payload into a provider struct using its json tags.
// Scalars are converted loosely (numbers to strings and back) since providers
// are inconsistent about id types.
func Decode(source string, raw RawPayload, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(map[string]any(raw)); err != nil {
		return domain.Malformed(source, Ref(raw), "decode: %v", err)
	}
	return nil
}

// Ref best-effort identifies a payload for error messages.
func Ref(raw RawPayload) string {
	for _, k := range []string{"id", "slug", "message_id", "uuid"} {
		switch v := raw[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case fmt.Stringer:
			return v.String()
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTime accepts the timestamp layouts the providers use. Unparseable
// input yields the zero time.
func ParseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
