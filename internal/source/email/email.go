// Package email turns job-alert emails in an IMAP mailbox into postings.
// Every job link in an unseen alert becomes one payload.
package email

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"jobmatch-engine/internal/domain"
	"jobmatch-engine/internal/normalize"
	"jobmatch-engine/internal/source"
	"jobmatch-engine/internal/source/util"
)

const Name = "email"

const maxDescription = 16 << 10

type Config struct {
	IMAP IMAPConfig
	// SubjectAny keeps only messages whose subject contains one of these
	// (case-insensitive). Empty keeps everything.
	SubjectAny      []string
	Lookback        time.Duration
	MaxMessages     int
	MaxLinksPerMail int
	// MarkSeen flags processed messages \Seen so the next run skips them.
	MarkSeen bool
}

// DialFunc opens a mailbox session.
type DialFunc func(ctx context.Context, cfg IMAPConfig) (Mailbox, error)

type Adapter struct {
	cfg    Config
	dial   DialFunc
	logger *zap.Logger
	now    func() time.Time
}

func New(cfg Config, dial DialFunc, logger *zap.Logger) *Adapter {
	if dial == nil {
		dial = DialIMAP
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = 14 * 24 * time.Hour
	}
	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = 20
	}
	if cfg.MaxLinksPerMail <= 0 {
		cfg.MaxLinksPerMail = 10
	}
	return &Adapter{cfg: cfg, dial: dial, logger: logger, now: time.Now}
}

func (a *Adapter) Name() string { return Name }

// Fetch reads the unseen alerts. The mailbox is a single page; page numbers
// above zero return an empty batch.
func (a *Adapter) Fetch(ctx context.Context, page source.Page) (source.Batch, error) {
	if page.Number > 0 {
		return source.Batch{}, nil
	}
	mb, err := a.dial(ctx, a.cfg.IMAP)
	if err != nil {
		return source.Batch{}, &domain.SourceUnavailableError{Source: Name, Err: err}
	}
	defer func() {
		if err := mb.Close(); err != nil {
			a.logger.Debug("imap close", zap.Error(err))
		}
	}()

	since := a.now().Add(-a.cfg.Lookback)
	msgs, err := mb.Unseen(ctx, since, a.cfg.MaxMessages)
	if err != nil {
		return source.Batch{}, &domain.SourceUnavailableError{Source: Name, Err: err}
	}

	var payloads []source.RawPayload
	processed := make([]uint32, 0, len(msgs))
	for _, m := range msgs {
		processed = append(processed, m.UID)
		payloads = append(payloads, a.payloadsFor(m)...)
	}

	if a.cfg.MarkSeen && len(processed) > 0 {
		if err := mb.MarkSeen(ctx, processed); err != nil {
			a.logger.Warn("mark seen failed", zap.Int("messages", len(processed)), zap.Error(err))
		}
	}
	a.logger.Debug("email alerts read",
		zap.Int("messages", len(msgs)),
		zap.Int("postings", len(payloads)),
	)
	return source.Batch{Payloads: payloads}, nil
}

func (a *Adapter) payloadsFor(m Message) []source.RawPayload {
	b := parseRFC822(m.Raw, m.Subject)
	if len(a.cfg.SubjectAny) > 0 && !containsAnyCI(b.Subject, a.cfg.SubjectAny) {
		return nil
	}

	links := filterJobLinks(extractLinks(b), a.cfg.MaxLinksPerMail)
	if len(links) == 0 {
		return nil
	}

	subj := parseFromSubject(b.Subject)
	bodyText := b.Plain
	if b.HTML != "" {
		bodyText = normalize.PlainText(b.HTML)
	}
	if len(bodyText) > maxDescription {
		bodyText = bodyText[:maxDescription]
	}

	date := ""
	if !m.Date.IsZero() {
		date = m.Date.UTC().Format(time.RFC3339)
	}

	out := make([]source.RawPayload, 0, len(links))
	for _, l := range links {
		f := subj
		// Digest emails list several postings; anchor text describes each one
		// better than the shared subject does.
		if len(links) > 1 && l.Context != "" {
			f = merge(parseFromContext(l.Context), subj)
		} else if l.Context != "" {
			f = merge(subj, parseFromContext(l.Context))
		}

		desc := bodyText
		if len(links) > 1 {
			desc = l.Context
		}

		out = append(out, source.RawPayload{
			"id":         makeNativeID(b.MessageID, l.URL, b.Subject, m.From),
			"message_id": b.MessageID,
			"subject":    b.Subject,
			"from":       m.From,
			"date":       date,
			"company":    f.Company,
			"title":      f.Title,
			"location":   f.Location,
			"work_mode":  f.WorkMode,
			"url":        l.URL,
			"body":       desc,
		})
	}
	return out
}

// merge fills the empty fields of primary from secondary.
func merge(primary, secondary subjectFields) subjectFields {
	if primary.Company == "" {
		primary.Company = secondary.Company
	}
	if primary.Title == "" {
		primary.Title = secondary.Title
	}
	if primary.Location == "" {
		primary.Location = secondary.Location
	}
	if primary.WorkMode == "" || primary.WorkMode == domain.WorkModeUnknown {
		primary.WorkMode = secondary.WorkMode
	}
	return primary
}

type alert struct {
	ID       string `json:"id"`
	Subject  string `json:"subject"`
	From     string `json:"from"`
	Date     string `json:"date"`
	Company  string `json:"company"`
	Title    string `json:"title"`
	Location string `json:"location"`
	WorkMode string `json:"work_mode"`
	URL      string `json:"url"`
	Body     string `json:"body"`
}

func (a *Adapter) Map(raw source.RawPayload) (domain.Job, error) {
	var p alert
	if err := source.Decode(Name, raw, &p); err != nil {
		return domain.Job{}, err
	}
	if p.ID == "" {
		return domain.Job{}, domain.Malformed(Name, "", "missing id")
	}
	title := util.CleanText(p.Title)
	if title == "" {
		return domain.Job{}, domain.Malformed(Name, p.ID, "missing title")
	}
	if p.URL == "" {
		return domain.Job{}, domain.Malformed(Name, p.ID, "missing url")
	}

	company := util.CleanText(p.Company)
	if company == "" {
		company = guessCompanyFromFrom(p.From)
	}
	mode := util.NormalizeWorkMode(p.WorkMode)
	if mode == domain.WorkModeUnknown {
		mode = util.InferWorkModeFromText(p.Location, title, "")
	}

	return domain.Job{
		Source:         Name,
		SourceNativeID: p.ID,
		Title:          title,
		Company:        company,
		Location:       util.NormalizeLocation(p.Location),
		WorkMode:       mode,
		Description:    p.Body,
		URL:            p.URL,
		PostedAt:       source.ParseTime(p.Date),
	}, nil
}

func (a *Adapter) String() string {
	return fmt.Sprintf("%s(%s/%s)", Name, a.cfg.IMAP.Addr, a.cfg.IMAP.Mailbox)
}
