// Package lever reads Lever postings, one company per page.
package lever

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"jobmatch-engine/internal/domain"
	"jobmatch-engine/internal/source"
	"jobmatch-engine/internal/source/util"
)

const (
	Name           = "lever"
	defaultBaseURL = "https://api.lever.co/v0/postings"
)

type Config struct {
	BaseURL   string
	Companies []Company
}

type Company struct {
	Slug string // api.lever.co/v0/postings/<slug>
	Name string
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

func (a *Adapter) Pages() int { return len(a.cfg.Companies) }

func (a *Adapter) Fetch(ctx context.Context, page source.Page) (source.Batch, error) {
	if page.Number < 0 || page.Number >= len(a.cfg.Companies) {
		return source.Batch{}, nil
	}
	co := a.cfg.Companies[page.Number]
	u := fmt.Sprintf("%s/%s?mode=json", strings.TrimRight(a.cfg.BaseURL, "/"), url.PathEscape(co.Slug))

	var postings []source.RawPayload
	if err := a.client.GetJSON(ctx, Name, u, nil, &postings); err != nil {
		return source.Batch{}, err
	}
	for _, p := range postings {
		p["_company"] = co.Name
		p["_slug"] = co.Slug
	}
	return source.Batch{
		Payloads: postings,
		HasMore:  page.Number+1 < len(a.cfg.Companies),
	}, nil
}

type posting struct {
	ID               string `json:"id"`
	Text             string `json:"text"` // title
	HostedURL        string `json:"hostedUrl"`
	CreatedAt        int64  `json:"createdAt"` // ms epoch
	Description      string `json:"description"`
	DescriptionPlain string `json:"descriptionPlain"`
	WorkplaceType    string `json:"workplaceType"`
	Categories       struct {
		Location   string `json:"location"`
		Team       string `json:"team"`
		Commitment string `json:"commitment"`
	} `json:"categories"`
	Company string `json:"_company"`
	Slug    string `json:"_slug"`
}

func (a *Adapter) Map(raw source.RawPayload) (domain.Job, error) {
	var p posting
	if err := source.Decode(Name, raw, &p); err != nil {
		return domain.Job{}, err
	}
	if p.ID == "" {
		return domain.Job{}, domain.Malformed(Name, "", "missing id")
	}
	title := util.CleanText(p.Text)
	if title == "" {
		return domain.Job{}, domain.Malformed(Name, p.ID, "missing title")
	}

	var posted time.Time
	if p.CreatedAt > 0 {
		posted = time.UnixMilli(p.CreatedAt).UTC()
	}
	loc := util.NormalizeLocation(p.Categories.Location)
	desc := util.FirstNonEmpty(p.Description, p.DescriptionPlain)

	mode := util.NormalizeWorkMode(p.WorkplaceType)
	if mode == domain.WorkModeUnknown {
		mode = util.InferWorkModeFromText(loc, title, "")
	}

	var tags []string
	for _, t := range []string{p.Categories.Team, p.Categories.Commitment} {
		if t != "" {
			tags = append(tags, t)
		}
	}

	return domain.Job{
		Source:         Name,
		SourceNativeID: fmt.Sprintf("%s:%s", p.Slug, p.ID),
		Title:          title,
		Company:        util.FirstNonEmpty(p.Company, p.Slug),
		Location:       loc,
		WorkMode:       mode,
		Description:    desc,
		URL:            util.CanonicalizeURL(p.HostedURL),
		Tags:           tags,
		PostedAt:       posted,
	}, nil
}
