// Package jira implements the TrackerClient port against the Jira REST API.
package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"
	"github.com/gregjones/httpcache"

	"github.com/ericfisherdev/jiradl/internal/domain/model"
	"github.com/ericfisherdev/jiradl/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.TrackerClient = (*Client)(nil)

const (
	defaultPageSize    = 100
	defaultMaxRetries  = 3 // 4 attempts in total.
	defaultBackoff     = 500 * time.Millisecond
	defaultMaxBackoff  = 8 * time.Second
	maxJSONBody        = 32 << 20
	maxErrorSnippet    = 300
	lowRateLimitMargin = 10
)

// Client implements the driven.TrackerClient port for Jira Cloud and
// Jira Server / Data Center.
type Client struct {
	api      *http.Client // JSON endpoints; cached and rate-limit aware in production.
	download *http.Client // Attachment bodies; never cached.
	baseURL  string
	email    string
	token    string

	pageSize       int
	maxRetries     uint64
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// Option customizes a Client.
type Option func(*Client)

// WithRetryPolicy overrides the retry budget and backoff bounds.
func WithRetryPolicy(maxRetries uint64, initial, maxInterval time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = maxRetries
		c.initialBackoff = initial
		c.maxBackoff = maxInterval
	}
}

// WithPageSize overrides the search page size.
func WithPageSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// NewClient creates a Jira client with the following transport stack for API
// calls:
//  1. httpcache (ETag-based conditional request caching)
//  2. go-github-ratelimit (sleeps when the server signals a rate limit reset)
//
// Attachment downloads use a separate uncached client.
func NewClient(baseURL, email, token string, opts ...Option) (*Client, error) {
	cacheTransport := httpcache.NewMemoryCacheTransport()
	apiClient := github_ratelimit.NewClient(cacheTransport)
	apiClient.Timeout = 30 * time.Second

	downloadTransport := http.DefaultTransport.(*http.Transport).Clone()
	downloadTransport.ResponseHeaderTimeout = 60 * time.Second

	return newClient(apiClient, &http.Client{Transport: downloadTransport}, baseURL, email, token, opts...)
}

// NewClientWithHTTPClient creates a Client that sends every request through
// httpClient. This constructor is intended for testing, allowing injection of
// an httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL, email, token string, opts ...Option) (*Client, error) {
	return newClient(httpClient, httpClient, baseURL, email, token, opts...)
}

func newClient(api, download *http.Client, baseURL, email, token string, opts ...Option) (*Client, error) {
	base, err := NormalizeBaseURL(baseURL)
	if err != nil {
		return nil, err
	}

	c := &Client{
		api:            api,
		download:       download,
		baseURL:        base,
		email:          email,
		token:          token,
		pageSize:       defaultPageSize,
		maxRetries:     defaultMaxRetries,
		initialBackoff: defaultBackoff,
		maxBackoff:     defaultMaxBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NormalizeBaseURL reduces a pasted Jira URL to scheme, host, optional port
// and optional context path ("https://host/jira" for Jira Server).
func NormalizeBaseURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parsing jira URL %q: %w", raw, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("invalid jira URL %q: expected http(s)://host", raw)
	}

	base := u.Scheme + "://" + u.Host
	if path := strings.TrimRight(u.Path, "/"); path != "" {
		base += path
	}
	return base, nil
}

// BaseURL returns the normalized base URL the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Myself returns the display name of the authenticated user. API v3 is tried
// first, then v2 for Jira Server.
func (c *Client) Myself(ctx context.Context) (string, error) {
	var lastErr error
	for _, version := range []string{"3", "2"} {
		var me myselfResponse
		err := c.getJSON(ctx, "/rest/api/"+version+"/myself", nil, &me)
		if err == nil {
			if me.DisplayName == "" {
				return "unknown", nil
			}
			return me.DisplayName, nil
		}
		if !errors.Is(err, driven.ErrNotFound) {
			return "", fmt.Errorf("checking credentials: %w", err)
		}
		lastErr = err
	}
	return "", fmt.Errorf("checking credentials: %w", lastErr)
}

// ListRelevantIssues returns every issue matching jql. It uses the token-paged
// /rest/api/3/search/jql endpoint and falls back to the offset-paged
// /rest/api/2/search endpoint when the former is absent (404/410).
func (c *Client) ListRelevantIssues(ctx context.Context, jql string) ([]model.Issue, error) {
	issues, err := c.searchJQL(ctx, jql)
	if errors.Is(err, driven.ErrNotFound) {
		slog.Debug("jira search/jql endpoint unavailable, falling back to v2 search")
		issues, err = c.searchOffset(ctx, jql)
	}
	if err != nil {
		return nil, fmt.Errorf("searching issues: %w", err)
	}
	return issues, nil
}

// searchJQL pages through /rest/api/3/search/jql using nextPageToken.
func (c *Client) searchJQL(ctx context.Context, jql string) ([]model.Issue, error) {
	var all []model.Issue
	token := ""
	page := 0

	for {
		page++
		q := url.Values{}
		q.Set("jql", jql)
		q.Set("fields", "summary,status")
		q.Set("maxResults", strconv.Itoa(c.pageSize))
		if token != "" {
			q.Set("nextPageToken", token)
		}

		var resp searchJQLResponse
		if err := c.getJSON(ctx, "/rest/api/3/search/jql", q, &resp); err != nil {
			return nil, fmt.Errorf("page %d: %w", page, err)
		}

		for _, is := range resp.Issues {
			all = append(all, mapIssue(is))
		}

		slog.Debug("jira search page", "endpoint", "search/jql", "page", page, "count", len(resp.Issues))

		if resp.IsLast || resp.NextPageToken == "" {
			break
		}
		if resp.NextPageToken == token {
			return nil, fmt.Errorf("page %d: server repeated page token %q", page, token)
		}
		token = resp.NextPageToken
	}

	if all == nil {
		all = []model.Issue{}
	}
	return all, nil
}

// searchOffset pages through /rest/api/2/search using startAt/total.
func (c *Client) searchOffset(ctx context.Context, jql string) ([]model.Issue, error) {
	var all []model.Issue
	startAt := 0

	for {
		q := url.Values{}
		q.Set("jql", jql)
		q.Set("fields", "summary,status")
		q.Set("maxResults", strconv.Itoa(c.pageSize))
		q.Set("startAt", strconv.Itoa(startAt))

		var resp searchResponse
		if err := c.getJSON(ctx, "/rest/api/2/search", q, &resp); err != nil {
			return nil, fmt.Errorf("startAt %d: %w", startAt, err)
		}

		for _, is := range resp.Issues {
			all = append(all, mapIssue(is))
		}

		slog.Debug("jira search page", "endpoint", "search", "start_at", startAt, "count", len(resp.Issues), "total", resp.Total)

		startAt += len(resp.Issues)
		if len(resp.Issues) == 0 || startAt >= resp.Total {
			break
		}
	}

	if all == nil {
		all = []model.Issue{}
	}
	return all, nil
}

// GetIssue returns a single issue with its attachments, trying API v3 first
// and v2 on 404.
func (c *Client) GetIssue(ctx context.Context, issueKey string) (*model.Issue, error) {
	q := url.Values{}
	q.Set("fields", "summary,status,attachment")

	var lastErr error
	for _, version := range []string{"3", "2"} {
		var resp issueJSON
		err := c.getJSON(ctx, "/rest/api/"+version+"/issue/"+url.PathEscape(issueKey), q, &resp)
		if err == nil {
			issue := mapIssue(resp)
			if issue.Key == "" {
				issue.Key = issueKey
			}
			return &issue, nil
		}
		if !errors.Is(err, driven.ErrNotFound) {
			return nil, fmt.Errorf("fetching issue %s: %w", issueKey, err)
		}
		lastErr = err
	}
	return nil, fmt.Errorf("fetching issue %s: %w", issueKey, lastErr)
}

// ListAttachments returns the attachment metadata of an issue.
func (c *Client) ListAttachments(ctx context.Context, issueKey string) ([]model.Attachment, error) {
	issue, err := c.GetIssue(ctx, issueKey)
	if err != nil {
		return nil, err
	}
	return issue.Attachments, nil
}

// OpenAttachment requests the attachment body. Only establishing the response
// is retried; a failure while the caller reads the body is final.
func (c *Client) OpenAttachment(ctx context.Context, att model.Attachment) (io.ReadCloser, error) {
	if att.ContentURL == "" {
		return nil, fmt.Errorf("attachment %s has no content URL: %w", att.ID, driven.ErrNotFound)
	}

	var body io.ReadCloser
	err := c.retry(ctx, att.ContentURL, func() error {
		resp, err := c.send(ctx, c.download, att.ContentURL, "*/*")
		if err != nil {
			return err
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			body = resp.Body
			return nil
		}
		defer resp.Body.Close()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorSnippet))
		return classifyStatus(resp, snippet, att.ContentURL)
	})
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w", att.Filename, err)
	}
	return body, nil
}

// getJSON issues a GET against an API path and decodes the JSON body into v.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, v any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	return c.retry(ctx, target, func() error {
		resp, err := c.send(ctx, c.api, target, "application/json")
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxJSONBody))
		if err != nil {
			return fmt.Errorf("%w: reading %s: %w", driven.ErrNetwork, target, err)
		}

		logRateLimit(resp, path)

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return classifyStatus(resp, body, target)
		}
		if isHTML(resp, body) {
			return backoff.Permanent(htmlError(resp.StatusCode, target))
		}
		if err := json.Unmarshal(body, v); err != nil {
			return backoff.Permanent(fmt.Errorf("%w: decoding response from %s: %w (body: %s)", driven.ErrNetwork, target, err, snippet(body)))
		}
		return nil
	})
}

// send performs a single authenticated GET. Transport failures are retryable
// unless the context is done.
func (c *Client) send(ctx context.Context, client *http.Client, target, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("building request for %s: %w", target, err))
	}
	req.SetBasicAuth(c.email, c.token)
	req.Header.Set("Accept", accept)

	resp, err := client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, backoff.Permanent(ctxErr)
		}
		return nil, fmt.Errorf("%w: GET %s: %w", driven.ErrNetwork, target, err)
	}
	return resp, nil
}

// classifyStatus maps a non-2xx response to the driven error taxonomy.
// 401/403 and 404/410 are permanent; 429 and 5xx are retryable.
func classifyStatus(resp *http.Response, body []byte, target string) error {
	status := resp.StatusCode
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return backoff.Permanent(fmt.Errorf("%w: HTTP %d from %s", driven.ErrAuth, status, target))
	case status == http.StatusTooManyRequests:
		return &retryAfterError{
			err:  fmt.Errorf("%w: HTTP 429 from %s", driven.ErrRateLimited, target),
			wait: parseRetryAfter(resp.Header),
		}
	case status >= 500:
		return &retryAfterError{
			err:  fmt.Errorf("%w: HTTP %d from %s", driven.ErrNetwork, status, target),
			wait: parseRetryAfter(resp.Header),
		}
	case status == http.StatusNotFound || status == http.StatusGone:
		return backoff.Permanent(fmt.Errorf("%w: HTTP %d from %s", driven.ErrNotFound, status, target))
	case isHTML(resp, body):
		return backoff.Permanent(htmlError(status, target))
	default:
		return backoff.Permanent(fmt.Errorf("unexpected HTTP %d from %s: %s", status, target, snippet(body)))
	}
}

// isHTML detects a login or error page served instead of JSON.
func isHTML(resp *http.Response, body []byte) bool {
	if strings.Contains(resp.Header.Get("Content-Type"), "text/html") {
		return true
	}
	head := bytes.ToLower(bytes.TrimSpace(body[:min(len(body), 64)]))
	return bytes.HasPrefix(head, []byte("<!doctype")) || bytes.HasPrefix(head, []byte("<html"))
}

func htmlError(status int, target string) error {
	return fmt.Errorf("%w: got an HTML page instead of JSON (HTTP %d) from %s; "+
		"this usually means an SSO/login redirect or a wrong Jira URL "+
		"(use only the base URL, e.g. https://company.atlassian.net)", driven.ErrAuth, status, target)
}

func snippet(body []byte) string {
	if len(body) > maxErrorSnippet {
		body = body[:maxErrorSnippet]
	}
	return strings.TrimSpace(string(body))
}

// logRateLimit logs Jira's rate limit headers when the server sends them.
func logRateLimit(resp *http.Response, endpoint string) {
	remaining := resp.Header.Get("X-RateLimit-Remaining")

	slog.Debug("jira api call",
		"endpoint", endpoint,
		"status", resp.StatusCode,
		"rate_remaining", remaining,
	)

	if n, err := strconv.Atoi(remaining); err == nil && n < lowRateLimitMargin {
		slog.Warn("jira rate limit low",
			"remaining", n,
			"reset", resp.Header.Get("X-RateLimit-Reset"),
		)
	}
}
