// Package workday reads Workday career sites through the JSON endpoint their
// own front end uses, one board per page.
package workday

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"jobmatch-engine/internal/domain"
	"jobmatch-engine/internal/source"
	"jobmatch-engine/internal/source/util"
)

const (
	Name = "workday"
	// Workday rejects list requests above 20 postings.
	maxLimit    = 20
	maxPostings = 2000
	csrfCookie  = "CALYPSO_CSRF_TOKEN"
)

var ErrBlocked = errors.New("workday blocked by cloudflare")

type Config struct {
	Companies []Company
}

type Company struct {
	// Slug is the full board URL, e.g.
	// https://acme.wd5.myworkdayjobs.com/en-US/External
	Slug string
	Name string
}

type Adapter struct {
	cfg    Config
	client *source.Client
	now    func() time.Time

	mu      sync.Mutex
	blocked map[string]bool
}

// New keeps its own cookie jar on a copy of client, since boards hand out
// the CSRF token as a cookie. Rate limiting stays shared.
func New(cfg Config, client *source.Client) *Adapter {
	jar, _ := cookiejar.New(nil)
	c := *client
	c.HTTP = &http.Client{Jar: jar, Timeout: client.HTTP.Timeout}
	return &Adapter{cfg: cfg, client: &c, now: time.Now, blocked: map[string]bool{}}
}

func (a *Adapter) Name() string { return Name }

func (a *Adapter) Pages() int { return len(a.cfg.Companies) }

type board struct {
	Scheme string
	Host   string
	Tenant string
	Site   string
	Locale string
}

func parseBoardURL(raw string) (board, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return board{}, errors.New("empty board url")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return board{}, err
	}
	if u.Scheme == "" {
		u.Scheme = "https"
	}
	if u.Host == "" {
		return board{}, fmt.Errorf("missing host in %q", raw)
	}
	labels := strings.Split(u.Hostname(), ".")
	if len(labels) < 3 {
		return board{}, fmt.Errorf("unexpected host %q", u.Host)
	}

	segs := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segs) == 0 || segs[0] == "" {
		return board{}, fmt.Errorf("unexpected path %q", u.Path)
	}
	locale := ""
	if len(segs) >= 2 && looksLikeLocale(segs[0]) {
		locale = strings.ToLower(segs[0][:2]) + "-" + strings.ToUpper(segs[0][3:])
		segs = segs[1:]
	}

	return board{
		Scheme: u.Scheme,
		Host:   u.Host,
		Tenant: labels[0],
		Site:   segs[len(segs)-1],
		Locale: locale,
	}, nil
}

// looksLikeLocale accepts en-US, en-us and the like.
func looksLikeLocale(s string) bool {
	if len(s) != 5 || s[2] != '-' {
		return false
	}
	for _, c := range s[:2] + s[3:] {
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')) {
			return false
		}
	}
	return true
}

func (b board) origin() string { return b.Scheme + "://" + b.Host }

func (b board) jobsEndpoint() string {
	u := fmt.Sprintf("%s/wday/cxs/%s/%s/jobs", b.origin(), b.Tenant, b.Site)
	if b.Locale != "" {
		u += "?locale=" + url.QueryEscape(b.Locale)
	}
	return u
}

type listRequest struct {
	AppliedFacets map[string]any `json:"appliedFacets"`
	Limit         int            `json:"limit"`
	Offset        int            `json:"offset"`
	SearchText    string         `json:"searchText"`
}

type listResponse struct {
	Total       int                 `json:"total"`
	JobPostings []source.RawPayload `json:"jobPostings"`
}

// Fetch lists the postings of the page.Number-th board, page.Size (at most
// 20) per request.
func (a *Adapter) Fetch(ctx context.Context, page source.Page) (source.Batch, error) {
	if page.Number < 0 || page.Number >= len(a.cfg.Companies) {
		return source.Batch{}, nil
	}
	co := a.cfg.Companies[page.Number]
	more := page.Number+1 < len(a.cfg.Companies)
	unavailable := func(err error) error {
		return &domain.SourceUnavailableError{Source: Name, Err: fmt.Errorf("%s: %w", util.FirstNonEmpty(co.Name, co.Slug), err)}
	}

	b, err := parseBoardURL(co.Slug)
	if err != nil {
		return source.Batch{}, unavailable(err)
	}
	if a.isBlocked(b.Host) {
		return source.Batch{}, unavailable(ErrBlocked)
	}

	csrf, err := a.bootstrap(ctx, co.Slug)
	if errors.Is(err, ErrBlocked) {
		a.block(b.Host)
		return source.Batch{}, unavailable(err)
	}
	// Many tenants answer without the token, so a failed bootstrap is only
	// fatal once the list request fails too.
	bootErr := err

	header := http.Header{}
	header.Set("Origin", b.origin())
	header.Set("Referer", strings.TrimRight(co.Slug, "/"))
	header.Set("Accept-Language", util.FirstNonEmpty(b.Locale, "en-US"))
	if csrf != "" {
		header.Set("X-Calypso-Csrf-Token", csrf)
	}

	limit := page.Size
	if limit <= 0 || limit > maxLimit {
		limit = maxLimit
	}

	var out []source.RawPayload
	for offset := 0; offset < maxPostings; offset += limit {
		var lr listResponse
		req := listRequest{AppliedFacets: map[string]any{}, Limit: limit, Offset: offset}
		if err := a.client.PostJSON(ctx, Name, b.jobsEndpoint(), header, req, &lr); err != nil {
			if errors.Is(err, domain.ErrRateLimited) {
				return source.Batch{}, err
			}
			var se *source.StatusError
			if errors.As(err, &se) && (se.Code == http.StatusForbidden || strings.Contains(strings.ToLower(se.Server), "cloudflare")) {
				a.block(b.Host)
			}
			if bootErr != nil {
				err = fmt.Errorf("%w (bootstrap: %v)", err, bootErr)
			}
			return source.Batch{}, err
		}
		for _, p := range lr.JobPostings {
			p["_company"] = util.FirstNonEmpty(co.Name, b.Tenant)
			p["_tenant"] = b.Tenant
			p["_site"] = b.Site
			p["_origin"] = b.origin()
		}
		out = append(out, lr.JobPostings...)
		if len(lr.JobPostings) < limit || (lr.Total > 0 && offset+limit >= lr.Total) {
			break
		}
	}
	return source.Batch{Payloads: out, HasMore: more}, nil
}

func (a *Adapter) isBlocked(host string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.blocked[host]
}

func (a *Adapter) block(host string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.blocked[host] = true
}

// bootstrap loads the board page so the jar picks up the session cookies,
// and returns the CSRF token.
func (a *Adapter) bootstrap(ctx context.Context, boardURL string) (string, error) {
	if err := a.client.Limiter.WaitURL(ctx, boardURL); err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, boardURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", a.client.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := a.client.HTTP.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	preview, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	if looksLikeCloudflareBlock(resp, string(preview)) {
		return "", ErrBlocked
	}

	for _, c := range a.client.HTTP.Jar.Cookies(req.URL) {
		if c.Name == csrfCookie && c.Value != "" {
			return c.Value, nil
		}
	}
	return "", fmt.Errorf("missing %s cookie (status %d)", csrfCookie, resp.StatusCode)
}

func looksLikeCloudflareBlock(resp *http.Response, preview string) bool {
	server := strings.ToLower(resp.Header.Get("Server"))
	if strings.Contains(server, "cloudflare") && resp.Header.Get("CF-RAY") != "" {
		return true
	}
	low := strings.ToLower(preview)
	if strings.Contains(low, "/cdn-cgi/") ||
		(strings.Contains(low, "cloudflare") && strings.Contains(low, "checking your browser")) {
		return true
	}
	return resp.StatusCode == http.StatusForbidden
}

type posting struct {
	Title            string   `json:"title"`
	ExternalPath     string   `json:"externalPath"`
	ExternalURL      string   `json:"externalUrl"`
	LocationsText    string   `json:"locationsText"`
	Location         string   `json:"location"`
	PostedOn         string   `json:"postedOn"`
	PostedOnDate     string   `json:"postedOnDate"`
	BulletFields     []string `json:"bulletFields"`
	JobReqID         string   `json:"jobRequisitionId"`
	JobRequisitionID string   `json:"jobRequisitionID"`
	ID               string   `json:"id"`
	Company          string   `json:"_company"`
	Tenant           string   `json:"_tenant"`
	Site             string   `json:"_site"`
	Origin           string   `json:"_origin"`
}

func (a *Adapter) Map(raw source.RawPayload) (domain.Job, error) {
	var p posting
	if err := source.Decode(Name, raw, &p); err != nil {
		return domain.Job{}, err
	}
	jobURL := absoluteURL(p.Origin, p.ExternalURL, p.ExternalPath)
	// The list view carries the requisition id as the first bullet field.
	var bullet string
	if len(p.BulletFields) > 0 {
		bullet = p.BulletFields[0]
	}
	id := strings.TrimSpace(util.FirstNonEmpty(p.JobReqID, p.JobRequisitionID, p.ID, bullet, p.ExternalPath))
	if id == "" {
		return domain.Job{}, domain.Malformed(Name, "", "missing requisition id and path")
	}
	title := util.CleanText(p.Title)
	if title == "" {
		return domain.Job{}, domain.Malformed(Name, id, "missing title")
	}

	loc := util.NormalizeLocation(util.FirstNonEmpty(p.LocationsText, p.Location))
	posted := parsePostedOnDate(p.PostedOnDate)
	if posted.IsZero() {
		posted = parsePostedOn(p.PostedOn, a.now())
	}

	return domain.Job{
		Source:         Name,
		SourceNativeID: fmt.Sprintf("%s:%s:%s", p.Tenant, p.Site, id),
		Title:          title,
		Company:        p.Company,
		Location:       loc,
		WorkMode:       util.InferWorkModeFromText(loc, title, ""),
		URL:            util.CanonicalizeURL(jobURL),
		PostedAt:       posted,
	}, nil
}

func absoluteURL(origin, externalURL, path string) string {
	if u := strings.TrimSpace(externalURL); u != "" {
		return u
	}
	path = strings.TrimSpace(path)
	if path == "" || strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return origin + path
}

// parsePostedOnDate handles RFC 3339, plain dates and epoch seconds or
// milliseconds.
func parsePostedOnDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n >= 1_000_000_000_000 {
			return time.UnixMilli(n).UTC()
		}
		return time.Unix(n, 0).UTC()
	}
	return source.ParseTime(s)
}

// parsePostedOn reads the relative labels of the list view: "Posted Today",
// "Posted Yesterday", "Posted 3 Days Ago", "Posted 30+ Days Ago".
func parsePostedOn(s string, now time.Time) time.Time {
	s = strings.ToLower(strings.TrimSpace(s))
	day := now.UTC().Truncate(24 * time.Hour)
	switch {
	case s == "":
		return time.Time{}
	case strings.Contains(s, "today"):
		return day
	case strings.Contains(s, "yesterday"):
		return day.AddDate(0, 0, -1)
	}
	for _, f := range strings.Fields(s) {
		if n, err := strconv.Atoi(strings.TrimSuffix(f, "+")); err == nil && strings.Contains(s, "day") {
			return day.AddDate(0, 0, -n)
		}
	}
	return time.Time{}
}
