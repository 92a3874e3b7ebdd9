package source

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"jobmatch-engine/internal/domain"
	"jobmatch-engine/internal/source/util"
)

const (
	userAgent       = "jobmatch-engine/1.0 (+local)"
	acceptEncoding  = "gzip"
	maxResponseBody = 32 << 20
)

// Client is the HTTP client shared by the JSON adapters. It applies the
// per-host rate limit and translates transport failures into the domain
// error taxonomy.
type Client struct {
	HTTP      *http.Client
	Limiter   *util.HostLimiter
	UserAgent string
	Logger    *zap.Logger
	Now       func() time.Time
}

func NewClient(timeout time.Duration, limiter *util.HostLimiter, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		HTTP:      &http.Client{Timeout: timeout},
		Limiter:   limiter,
		UserAgent: userAgent,
		Logger:    logger,
		Now:       time.Now,
	}
}

// GetJSON fetches rawURL and decodes the JSON body into out.
//
// HTTP 429 becomes *domain.RateLimitedError carrying Retry-After. Network
// errors, timeouts, non-2xx statuses and undecodable bodies become
// *domain.SourceUnavailableError.
func (c *Client) GetJSON(ctx context.Context, source, rawURL string, header http.Header, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return &domain.SourceUnavailableError{Source: source, Err: err}
	}
	return c.do(req, source, header, out)
}

// PostJSON sends body as JSON and decodes the response like GetJSON.
func (c *Client) PostJSON(ctx context.Context, source, rawURL string, header http.Header, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return &domain.SourceUnavailableError{Source: source, Err: fmt.Errorf("encode: %w", err)}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(b))
	if err != nil {
		return &domain.SourceUnavailableError{Source: source, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, source, header, out)
}

func (c *Client) do(req *http.Request, source string, header http.Header, out any) error {
	unavailable := func(err error) error {
		return &domain.SourceUnavailableError{Source: source, Err: err}
	}

	if err := c.Limiter.WaitURL(req.Context(), req.URL.String()); err != nil {
		return unavailable(fmt.Errorf("rate limiter: %w", err))
	}

	req.Header.Set("User-Agent", c.UserAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", acceptEncoding)
	for k, vs := range header {
		req.Header.Del(k)
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	c.Logger.Debug("make request",
		zap.String("source", source),
		zap.String("method", req.Method),
		zap.String("url", req.URL.Redacted()),
	)
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return unavailable(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return &domain.RateLimitedError{
			Source:     source,
			RetryAfter: ParseRetryAfter(resp.Header.Get("Retry-After"), c.now()),
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return unavailable(&StatusError{Code: resp.StatusCode, Status: resp.Status, Server: resp.Header.Get("Server")})
	}

	var body io.Reader = resp.Body
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return unavailable(fmt.Errorf("gzip: %w", err))
		}
		defer gz.Close()
		body = gz
	}

	dec := json.NewDecoder(io.LimitReader(body, maxResponseBody))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return unavailable(fmt.Errorf("decode: %w", err))
	}
	return nil
}

// StatusError is a non-2xx response other than 429.
type StatusError struct {
	Code   int
	Status string
	Server string
}

func (e *StatusError) Error() string { return "bad status: " + e.Status }

func (c *Client) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

// ParseRetryAfter understands both delay-seconds and HTTP-date forms.
// Unparseable or past values give 0.
func ParseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

// IsRetryable reports whether err is a rate limit whose hint is within max.
func IsRetryable(err error, max time.Duration) (time.Duration, bool) {
	var rl *domain.RateLimitedError
	if !errors.As(err, &rl) {
		return 0, false
	}
	if rl.RetryAfter > max {
		return rl.RetryAfter, false
	}
	return rl.RetryAfter, true
}
