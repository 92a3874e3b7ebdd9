// Package headhunter reads vacancies from the HeadHunter (hh.ru) API.
package headhunter

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"jobmatch-engine/internal/domain"
	"jobmatch-engine/internal/source"
	"jobmatch-engine/internal/source/util"
)

const (
	Name       = "headhunter"
	apiURL     = "https://api.hh.ru"
	searchPath = "/vacancies"
	// Max value for search per page.
	maxPerPage = 100
)

type Config struct {
	APIURL string
	Token  string // optional; anonymous search works with lower limits
	Text   string
	Area   string
	// Schedule narrows the search, e.g. "remote".
	Schedule string
}

type Adapter struct {
	cfg    Config
	client *source.Client
}

func New(cfg Config, client *source.Client) *Adapter {
	if cfg.APIURL == "" {
		cfg.APIURL = apiURL
	}
	return &Adapter{cfg: cfg, client: client}
}

func (a *Adapter) Name() string { return Name }

type itemResponse struct {
	Items   []source.RawPayload `json:"items"`
	Found   int                 `json:"found"`
	Pages   int                 `json:"pages"`
	Page    int                 `json:"page"`
	PerPage int                 `json:"per_page"`
}

func (a *Adapter) Fetch(ctx context.Context, page source.Page) (source.Batch, error) {
	perPage := page.Size
	if perPage <= 0 || perPage > maxPerPage {
		perPage = maxPerPage
	}
	q := url.Values{}
	q.Set("page", strconv.Itoa(page.Number))
	q.Set("per_page", strconv.Itoa(perPage))
	if a.cfg.Text != "" {
		q.Set("text", a.cfg.Text)
	}
	if a.cfg.Area != "" {
		q.Set("area", a.cfg.Area)
	}
	if a.cfg.Schedule != "" {
		q.Set("schedule", a.cfg.Schedule)
	}
	u := fmt.Sprintf("%s%s?%s", strings.TrimRight(a.cfg.APIURL, "/"), searchPath, q.Encode())

	header := http.Header{}
	if a.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+a.cfg.Token)
	}

	var resp itemResponse
	if err := a.client.GetJSON(ctx, Name, u, header, &resp); err != nil {
		return source.Batch{}, err
	}
	return source.Batch{
		Payloads: resp.Items,
		HasMore:  resp.Page < resp.Pages-1,
	}, nil
}

type vacancy struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Area struct {
		Name string `json:"name"`
	} `json:"area"`
	Employer struct {
		Name string `json:"name"`
	} `json:"employer"`
	Schedule struct {
		ID string `json:"id"`
	} `json:"schedule"`
	Snippet struct {
		Requirement    string `json:"requirement"`
		Responsibility string `json:"responsibility"`
	} `json:"snippet"`
	Description  string `json:"description"`
	AlternateURL string `json:"alternate_url"`
	PublishedAt  string `json:"published_at"`
	KeySkills    []struct {
		Name string `json:"name"`
	} `json:"key_skills"`
	ProfessionalRoles []struct {
		Name string `json:"name"`
	} `json:"professional_roles"`
}

func (a *Adapter) Map(raw source.RawPayload) (domain.Job, error) {
	var v vacancy
	if err := source.Decode(Name, raw, &v); err != nil {
		return domain.Job{}, err
	}
	if v.ID == "" {
		return domain.Job{}, domain.Malformed(Name, "", "missing id")
	}
	title := util.CleanText(v.Name)
	if title == "" {
		return domain.Job{}, domain.Malformed(Name, v.ID, "missing name")
	}

	// Search results only carry a snippet; full descriptions need one request
	// per vacancy.
	desc := v.Description
	if desc == "" {
		desc = util.JoinNonEmpty("\n", v.Snippet.Responsibility, v.Snippet.Requirement)
	}

	loc := util.NormalizeLocation(v.Area.Name)
	mode := domain.WorkModeUnknown
	switch v.Schedule.ID {
	case "remote":
		mode = domain.WorkModeRemote
	case "fullDay", "shift", "flexible":
		mode = domain.WorkModeOnsite
	}

	var tags []string
	for _, s := range v.KeySkills {
		tags = append(tags, s.Name)
	}
	for _, r := range v.ProfessionalRoles {
		tags = append(tags, r.Name)
	}

	return domain.Job{
		Source:         Name,
		SourceNativeID: v.ID,
		Title:          title,
		Company:        util.CleanText(v.Employer.Name),
		Location:       loc,
		WorkMode:       mode,
		Description:    desc,
		URL:            util.CanonicalizeURL(v.AlternateURL),
		Tags:           tags,
		PostedAt:       source.ParseTime(v.PublishedAt),
	}, nil
}
