// Package greenhouse reads Greenhouse job boards through the public
// boards API, one company board per page.
package greenhouse

import (
	"context"
	"fmt"
	"html"
	"net/url"
	"strings"

	"jobmatch-engine/internal/domain"
	"jobmatch-engine/internal/source"
	"jobmatch-engine/internal/source/util"
)

const (
	Name           = "greenhouse"
	defaultBaseURL = "https://boards-api.greenhouse.io/v1/boards"
)

type Config struct {
	BaseURL   string
	Companies []Company // list of boards
}

type Company struct {
	Slug string // boards.greenhouse.io/<slug>
	Name string // display name
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

// Pages is the number of pages a full sweep takes.
func (a *Adapter) Pages() int { return len(a.cfg.Companies) }

type boardResponse struct {
	Jobs []source.RawPayload `json:"jobs"`
}

// Fetch reads the board of the page.Number-th company. Boards are returned
// whole, so page.Size does not apply.
func (a *Adapter) Fetch(ctx context.Context, page source.Page) (source.Batch, error) {
	if page.Number < 0 || page.Number >= len(a.cfg.Companies) {
		return source.Batch{}, nil
	}
	co := a.cfg.Companies[page.Number]
	u := fmt.Sprintf("%s/%s/jobs?content=true", strings.TrimRight(a.cfg.BaseURL, "/"), url.PathEscape(co.Slug))

	var resp boardResponse
	if err := a.client.GetJSON(ctx, Name, u, nil, &resp); err != nil {
		return source.Batch{}, err
	}
	for _, p := range resp.Jobs {
		p["_company"] = co.Name
		p["_slug"] = co.Slug
	}
	return source.Batch{
		Payloads: resp.Jobs,
		HasMore:  page.Number+1 < len(a.cfg.Companies),
	}, nil
}

type posting struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	AbsoluteURL string `json:"absolute_url"`
	UpdatedAt   string `json:"updated_at"`
	FirstPub    string `json:"first_published"`
	Content     string `json:"content"`
	Location    struct {
		Name string `json:"name"`
	} `json:"location"`
	Departments []struct {
		Name string `json:"name"`
	} `json:"departments"`
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
	title := util.CleanText(p.Title)
	if title == "" {
		return domain.Job{}, domain.Malformed(Name, p.ID, "missing title")
	}

	// The boards API HTML-escapes content once more on top of the markup.
	desc := html.UnescapeString(p.Content)
	loc := util.NormalizeLocation(p.Location.Name)

	var tags []string
	for _, d := range p.Departments {
		if d.Name != "" {
			tags = append(tags, d.Name)
		}
	}

	return domain.Job{
		Source:         Name,
		SourceNativeID: fmt.Sprintf("%s:%s", p.Slug, p.ID),
		Title:          title,
		Company:        util.FirstNonEmpty(p.Company, p.Slug),
		Location:       loc,
		WorkMode:       util.InferWorkModeFromText(loc, title, ""),
		Description:    desc,
		URL:            util.CanonicalizeURL(p.AbsoluteURL),
		Tags:           tags,
		PostedAt:       source.ParseTime(util.FirstNonEmpty(p.FirstPub, p.UpdatedAt)),
	}, nil
}
