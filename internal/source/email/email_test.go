package email

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobmatch-engine/internal/domain"
	"jobmatch-engine/internal/source"
)

type fakeMailbox struct {
	msgs   []Message
	seen   []uint32
	closed bool
}

func (f *fakeMailbox) Unseen(_ context.Context, _ time.Time, max int) ([]Message, error) {
	if len(f.msgs) > max {
		return f.msgs[:max], nil
	}
	return f.msgs, nil
}

func (f *fakeMailbox) MarkSeen(_ context.Context, uids []uint32) error {
	f.seen = append(f.seen, uids...)
	return nil
}

func (f *fakeMailbox) Close() error {
	f.closed = true
	return nil
}

func crlf(s string) []byte {
	return []byte(strings.ReplaceAll(strings.TrimPrefix(s, "\n"), "\n", "\r\n"))
}

var singleAlert = crlf(`
From: "Acme Careers" <careers@acme.example>
Subject: Acme Corp is hiring for Senior Go Engineer in Austin, TX
Message-Id: <single-1@acme.example>
Content-Type: text/plain; charset=utf-8

We think you'd be a great fit for Go and Kubernetes work.
Apply: https://boards.greenhouse.io/acme/jobs/123?utm_source=alert
Unsubscribe: https://acme.example/unsubscribe?u=42
`)

var digestAlert = crlf(`
From: Job Alerts <alerts@jobs.example>
Subject: Your job alert for engineer
Message-Id: <digest-1@jobs.example>
Content-Type: multipart/alternative; boundary="b1"

--b1
Content-Type: text/plain; charset=utf-8

https://jobs.lever.co/globex/abc
https://initech.wd1.myworkdayjobs.com/en-US/careers/job/Berlin/Data-Scientist_R1

--b1
Content-Type: text/html; charset=utf-8

<html><body>
<a href="https://jobs.lever.co/globex/abc">Backend Engineer · Globex · Remote</a>
<a href="https://initech.wd1.myworkdayjobs.com/en-US/careers/job/Berlin/Data-Scientist_R1">Data Scientist · Initech · Berlin, Germany</a>
<a href="https://jobs.example/unsubscribe">Unsubscribe</a>
</body></html>
--b1--
`)

var newsletter = crlf(`
From: news@example.com
Subject: Weekly newsletter
Content-Type: text/plain

https://example.com/careers/jobs/1
`)

func newTestAdapter(t *testing.T, mb *fakeMailbox, cfg Config) *Adapter {
	t.Helper()
	a := New(cfg, func(context.Context, IMAPConfig) (Mailbox, error) { return mb, nil }, nil)
	a.now = func() time.Time { return time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC) }
	return a
}

func TestFetchSingleAlert(t *testing.T) {
	t.Parallel()

	date := time.Date(2025, 2, 27, 9, 30, 0, 0, time.UTC)
	mb := &fakeMailbox{msgs: []Message{{UID: 7, From: `"Acme Careers" <careers@acme.example>`, Date: date, Raw: singleAlert}}}
	a := newTestAdapter(t, mb, Config{MarkSeen: true})

	batch, err := a.Fetch(context.Background(), source.Page{Number: 0})
	require.NoError(t, err)
	assert.False(t, batch.HasMore)
	require.Len(t, batch.Payloads, 1)
	assert.True(t, mb.closed)
	assert.Equal(t, []uint32{7}, mb.seen)

	job, err := a.Map(batch.Payloads[0])
	require.NoError(t, err)
	assert.Equal(t, Name, job.Source)
	assert.Equal(t, "Senior Go Engineer", job.Title)
	assert.Equal(t, "Acme Corp", job.Company)
	assert.Equal(t, "Austin, TX", job.Location)
	assert.Equal(t, domain.WorkModeUnknown, job.WorkMode)
	assert.Equal(t, "https://boards.greenhouse.io/acme/jobs/123", job.URL)
	assert.Equal(t, date, job.PostedAt)
	assert.Contains(t, job.Description, "Kubernetes")
	assert.Len(t, job.SourceNativeID, 40)
}

func TestFetchDigestUsesAnchorText(t *testing.T) {
	t.Parallel()

	mb := &fakeMailbox{msgs: []Message{{UID: 3, Raw: digestAlert}}}
	a := newTestAdapter(t, mb, Config{})

	batch, err := a.Fetch(context.Background(), source.Page{})
	require.NoError(t, err)
	require.Len(t, batch.Payloads, 2)
	assert.Empty(t, mb.seen, "MarkSeen disabled")

	jobs, failures := source.MapAll(a, batch.Payloads)
	require.Empty(t, failures)
	require.Len(t, jobs, 2)

	assert.Equal(t, "Backend Engineer", jobs[0].Title)
	assert.Equal(t, "Globex", jobs[0].Company)
	assert.Equal(t, domain.WorkModeRemote, jobs[0].WorkMode)
	assert.Empty(t, jobs[0].Location)

	assert.Equal(t, "Data Scientist", jobs[1].Title)
	assert.Equal(t, "Initech", jobs[1].Company)
	assert.Equal(t, "Berlin, Germany", jobs[1].Location)
	assert.NotEqual(t, jobs[0].SourceNativeID, jobs[1].SourceNativeID)
}

func TestFetchSubjectFilter(t *testing.T) {
	t.Parallel()

	mb := &fakeMailbox{msgs: []Message{
		{UID: 1, Raw: newsletter},
		{UID: 2, Raw: singleAlert},
	}}
	a := newTestAdapter(t, mb, Config{SubjectAny: []string{"HIRING"}, MarkSeen: true})

	batch, err := a.Fetch(context.Background(), source.Page{})
	require.NoError(t, err)
	assert.Len(t, batch.Payloads, 1)
	assert.Equal(t, []uint32{1, 2}, mb.seen, "filtered messages are still marked seen")
}

func TestFetchIdempotentIDs(t *testing.T) {
	t.Parallel()

	mb := &fakeMailbox{msgs: []Message{{UID: 1, Raw: digestAlert}}}
	a := newTestAdapter(t, mb, Config{})

	first, err := a.Fetch(context.Background(), source.Page{})
	require.NoError(t, err)
	second, err := a.Fetch(context.Background(), source.Page{})
	require.NoError(t, err)
	assert.Equal(t, first.Payloads, second.Payloads)
}

func TestFetchLaterPagesAreEmpty(t *testing.T) {
	t.Parallel()

	a := New(Config{}, func(context.Context, IMAPConfig) (Mailbox, error) {
		t.Fatal("dial must not be called")
		return nil, nil
	}, nil)
	batch, err := a.Fetch(context.Background(), source.Page{Number: 1})
	require.NoError(t, err)
	assert.Empty(t, batch.Payloads)
}

func TestFetchDialErrorIsSourceUnavailable(t *testing.T) {
	t.Parallel()

	a := New(Config{}, func(context.Context, IMAPConfig) (Mailbox, error) {
		return nil, errors.New("imap login: bad credentials")
	}, nil)
	_, err := a.Fetch(context.Background(), source.Page{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSourceUnavailable)
}

func TestMapRejectsMissingFields(t *testing.T) {
	t.Parallel()

	a := New(Config{}, nil, nil)
	_, err := a.Map(source.RawPayload{"title": "Engineer", "url": "https://x.example/jobs/1"})
	assert.ErrorIs(t, err, domain.ErrMalformedRecord)

	_, err = a.Map(source.RawPayload{"id": "abc", "url": "https://x.example/jobs/1"})
	assert.ErrorIs(t, err, domain.ErrMalformedRecord)

	job, err := a.Map(source.RawPayload{
		"id":    "abc",
		"title": "Engineer",
		"url":   "https://x.example/jobs/1",
		"from":  "alerts@linkedin.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "Linkedin", job.Company)
}

func TestParseFromSubject(t *testing.T) {
	t.Parallel()

	tests := []struct {
		subject string
		want    subjectFields
	}{
		{
			subject: `“software engineer”: Centro - Software Engineer - Remote and more`,
			want:    subjectFields{Company: "Centro", Title: "Software Engineer", WorkMode: domain.WorkModeRemote},
		},
		{
			subject: "Christus Health and others are hiring for Data Engineer II in and around Irving, TX",
			want:    subjectFields{Company: "Christus Health", Title: "Data Engineer II", Location: "Irving, TX", WorkMode: domain.WorkModeUnknown},
		},
		{
			subject: "Acme is hiring for Go Developer in Remote",
			want:    subjectFields{Company: "Acme", Title: "Go Developer", WorkMode: domain.WorkModeRemote},
		},
		{
			subject: "Globex - Platform Engineer - Denver, CO",
			want:    subjectFields{Company: "Globex", Title: "Platform Engineer", Location: "Denver, CO", WorkMode: domain.WorkModeUnknown},
		},
		{
			subject: "Fwd: Great opportunity",
			want:    subjectFields{Title: "Great opportunity", WorkMode: domain.WorkModeUnknown},
		},
	}
	for _, tt := range tests {
		t.Run(tt.subject, func(t *testing.T) {
			assert.Equal(t, tt.want, parseFromSubject(tt.subject))
		})
	}
}

func TestGuessCompanyFromFrom(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Hiring Team", guessCompanyFromFrom(`"Hiring Team" <jobs@acme.com>`))
	assert.Equal(t, "Linkedin", guessCompanyFromFrom("alerts@linkedin.com"))
	assert.Equal(t, "Unknown", guessCompanyFromFrom(""))
}

func TestDecodeRFC2047(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Développeur Go", decodeRFC2047("=?UTF-8?Q?D=C3=A9veloppeur_Go?="))
	assert.Equal(t, "plain", decodeRFC2047("plain"))
}
