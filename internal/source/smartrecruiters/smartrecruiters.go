// Package smartrecruiters reads the SmartRecruiters public postings API, one
// company per page.
package smartrecruiters

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"jobmatch-engine/internal/domain"
	"jobmatch-engine/internal/source"
	"jobmatch-engine/internal/source/util"
)

const (
	Name           = "smartrecruiters"
	defaultBaseURL = "https://api.smartrecruiters.com/v1/companies"
	maxOffset      = 5000
)

type Config struct {
	BaseURL   string
	Companies []Company
}

type Company struct {
	// Slug is the SmartRecruiters company identifier used in URLs, e.g.
	// https://jobs.smartrecruiters.com/<slug>
	Slug string
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

// Response schema (public API) is typically:
// { "content": [...], "totalFound": N, "offset": O, "limit": L }
type postingsResponse struct {
	Content    []source.RawPayload `json:"content"`
	TotalFound int                 `json:"totalFound"`
}

// Fetch walks the page.Number-th company's postings with offset paging,
// page.Size at a time, and returns them all as one batch.
func (a *Adapter) Fetch(ctx context.Context, page source.Page) (source.Batch, error) {
	if page.Number < 0 || page.Number >= len(a.cfg.Companies) {
		return source.Batch{}, nil
	}
	co := a.cfg.Companies[page.Number]
	slug := strings.TrimSpace(co.Slug)
	if slug == "" {
		return source.Batch{}, &domain.SourceUnavailableError{Source: Name, Err: fmt.Errorf("company %q has an empty slug", co.Name)}
	}

	limit := page.Size
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	base := fmt.Sprintf("%s/%s/postings", strings.TrimRight(a.cfg.BaseURL, "/"), url.PathEscape(slug))

	var out []source.RawPayload
	for offset := 0; offset <= maxOffset; offset += limit {
		u := fmt.Sprintf("%s?limit=%d&offset=%d", base, limit, offset)
		var pr postingsResponse
		if err := a.client.GetJSON(ctx, Name, u, nil, &pr); err != nil {
			return source.Batch{}, err
		}
		for _, p := range pr.Content {
			p["_company"] = co.Name
			p["_slug"] = slug
		}
		out = append(out, pr.Content...)
		if len(pr.Content) < limit || (pr.TotalFound > 0 && offset+limit >= pr.TotalFound) {
			break
		}
	}

	return source.Batch{
		Payloads: out,
		HasMore:  page.Number+1 < len(a.cfg.Companies),
	}, nil
}

type posting struct {
	ID           string `json:"id"`
	UUID         string `json:"uuid"`
	Name         string `json:"name"`
	ReleasedDate string `json:"releasedDate"`
	Ref          string `json:"ref"`
	Location     struct {
		City    string `json:"city"`
		Region  string `json:"region"`
		Country string `json:"country"`
		Remote  bool   `json:"remote"`
	} `json:"location"`
	Department struct {
		Label string `json:"label"`
	} `json:"department"`
	Company string `json:"_company"`
	Slug    string `json:"_slug"`
}

func (a *Adapter) Map(raw source.RawPayload) (domain.Job, error) {
	var p posting
	if err := source.Decode(Name, raw, &p); err != nil {
		return domain.Job{}, err
	}
	id := util.FirstNonEmpty(p.ID, p.UUID)
	if id == "" {
		return domain.Job{}, domain.Malformed(Name, "", "missing id")
	}
	title := util.CleanText(p.Name)
	if title == "" {
		return domain.Job{}, domain.Malformed(Name, id, "missing title")
	}

	loc := util.NormalizeLocation(util.JoinNonEmpty(", ", p.Location.City, p.Location.Region, p.Location.Country))
	mode := util.InferWorkModeFromText(loc, title, "")
	if p.Location.Remote {
		mode = domain.WorkModeRemote
	}

	var tags []string
	if p.Department.Label != "" {
		tags = append(tags, p.Department.Label)
	}

	return domain.Job{
		Source:         Name,
		SourceNativeID: fmt.Sprintf("%s:%s", p.Slug, id),
		Title:          title,
		Company:        util.FirstNonEmpty(p.Company, p.Slug),
		Location:       loc,
		WorkMode:       mode,
		URL:            fmt.Sprintf("https://jobs.smartrecruiters.com/%s/%s", p.Slug, id),
		Tags:           tags,
		PostedAt:       source.ParseTime(p.ReleasedDate),
	}, nil
}
