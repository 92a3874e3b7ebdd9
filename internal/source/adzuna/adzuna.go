// Package adzuna reads the Adzuna job search API.
package adzuna

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"jobmatch-engine/internal/domain"
	"jobmatch-engine/internal/source"
	"jobmatch-engine/internal/source/util"
)

const (
	Name           = "adzuna"
	defaultBaseURL = "https://api.adzuna.com/v1/api/jobs"
)

type Config struct {
	BaseURL string
	Country string // gb, us, de, ...
	AppID   string
	AppKey  string
	What    string // free-text search, optional
	Where   string
}

type Adapter struct {
	cfg    Config
	client *source.Client
}

func New(cfg Config, client *source.Client) *Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Country == "" {
		cfg.Country = "gb"
	}
	return &Adapter{cfg: cfg, client: client}
}

func (a *Adapter) Name() string { return Name }

type searchResponse struct {
	Results []source.RawPayload `json:"results"`
	Count   int                 `json:"count"`
}

// Fetch reads one search page. Adzuna pages are 1-based.
func (a *Adapter) Fetch(ctx context.Context, page source.Page) (source.Batch, error) {
	q := url.Values{}
	q.Set("app_id", a.cfg.AppID)
	q.Set("app_key", a.cfg.AppKey)
	if page.Size > 0 {
		q.Set("results_per_page", strconv.Itoa(page.Size))
	}
	if a.cfg.What != "" {
		q.Set("what", a.cfg.What)
	}
	if a.cfg.Where != "" {
		q.Set("where", a.cfg.Where)
	}
	u := fmt.Sprintf("%s/%s/search/%d?%s",
		strings.TrimRight(a.cfg.BaseURL, "/"), url.PathEscape(a.cfg.Country), page.Number+1, q.Encode())

	var resp searchResponse
	if err := a.client.GetJSON(ctx, Name, u, nil, &resp); err != nil {
		return source.Batch{}, err
	}

	seen := (page.Number + 1) * page.Size
	return source.Batch{
		Payloads: resp.Results,
		HasMore:  len(resp.Results) > 0 && page.Size > 0 && seen < resp.Count,
	}, nil
}

type posting struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Created     string `json:"created"`
	RedirectURL string `json:"redirect_url"`
	Company     struct {
		DisplayName string `json:"display_name"`
	} `json:"company"`
	Location struct {
		DisplayName string `json:"display_name"`
	} `json:"location"`
	Category struct {
		Label string `json:"label"`
	} `json:"category"`
	ContractTime string `json:"contract_time"`
}

func (a *Adapter) Map(raw source.RawPayload) (domain.Job, error) {
	var p posting
	if err := source.Decode(Name, raw, &p); err != nil {
		return domain.Job{}, err
	}
	id := strings.TrimSpace(p.ID)
	if id == "" {
		return domain.Job{}, domain.Malformed(Name, "", "missing id")
	}
	title := util.CleanText(p.Title)
	if title == "" {
		return domain.Job{}, domain.Malformed(Name, id, "missing title")
	}
	loc := util.NormalizeLocation(p.Location.DisplayName)

	var tags []string
	if p.Category.Label != "" {
		tags = append(tags, p.Category.Label)
	}
	if p.ContractTime != "" {
		tags = append(tags, p.ContractTime)
	}

	return domain.Job{
		Source:         Name,
		SourceNativeID: id,
		Title:          title,
		Company:        util.CleanText(p.Company.DisplayName),
		Location:       loc,
		WorkMode:       util.InferWorkModeFromText(loc, title, p.Description),
		Description:    p.Description,
		URL:            util.CanonicalizeURL(p.RedirectURL),
		Tags:           tags,
		PostedAt:       source.ParseTime(p.Created),
	}, nil
}
