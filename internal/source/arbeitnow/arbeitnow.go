// Package arbeitnow reads the public Arbeitnow job board API.
package arbeitnow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"jobmatch-engine/internal/domain"
	"jobmatch-engine/internal/source"
	"jobmatch-engine/internal/source/util"
)

const (
	Name           = "arbeitnow"
	defaultBaseURL = "https://www.arbeitnow.com/api/job-board-api"
)

type Config struct {
	BaseURL string
}

type Adapter struct {
	cfg    Config
	client *source.Client
}

func New(cfg Config, client *source.Client) *Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	return &Adapter{cfg: cfg, client: client}
}

func (a *Adapter) Name() string { return Name }

type boardResponse struct {
	Data  []source.RawPayload `json:"data"`
	Links struct {
		Next string `json:"next"`
	} `json:"links"`
}

// Fetch reads one board page. The API fixes its own page size, so page.Size
// is not sent.
func (a *Adapter) Fetch(ctx context.Context, page source.Page) (source.Batch, error) {
	u := fmt.Sprintf("%s?page=%d", strings.TrimRight(a.cfg.BaseURL, "/"), page.Number+1)

	var resp boardResponse
	if err := a.client.GetJSON(ctx, Name, u, nil, &resp); err != nil {
		return source.Batch{}, err
	}
	return source.Batch{
		Payloads: resp.Data,
		HasMore:  len(resp.Data) > 0 && resp.Links.Next != "",
	}, nil
}

type posting struct {
	Slug        string   `json:"slug"`
	Title       string   `json:"title"`
	CompanyName string   `json:"company_name"`
	Description string   `json:"description"`
	Location    string   `json:"location"`
	URL         string   `json:"url"`
	Remote      bool     `json:"remote"`
	Tags        []string `json:"tags"`
	JobTypes    []string `json:"job_types"`
	CreatedAt   int64    `json:"created_at"`
}

func (a *Adapter) Map(raw source.RawPayload) (domain.Job, error) {
	var p posting
	if err := source.Decode(Name, raw, &p); err != nil {
		return domain.Job{}, err
	}
	slug := strings.TrimSpace(p.Slug)
	if slug == "" {
		return domain.Job{}, domain.Malformed(Name, "", "missing slug")
	}
	title := util.CleanText(p.Title)
	if title == "" {
		return domain.Job{}, domain.Malformed(Name, slug, "missing title")
	}

	loc := util.NormalizeLocation(p.Location)
	mode := util.InferWorkModeFromText(loc, title, "")
	if p.Remote {
		mode = domain.WorkModeRemote
	}

	var posted time.Time
	if p.CreatedAt > 0 {
		posted = time.Unix(p.CreatedAt, 0).UTC()
	}

	return domain.Job{
		Source:         Name,
		SourceNativeID: slug,
		Title:          title,
		Company:        util.CleanText(p.CompanyName),
		Location:       loc,
		WorkMode:       mode,
		Description:    p.Description,
		URL:            util.CanonicalizeURL(p.URL),
		Tags:           append(append([]string(nil), p.Tags...), p.JobTypes...),
		PostedAt:       posted,
	}, nil
}
