// Package ripedb is a client for the full-text search endpoint of the RIPE
// database web UI.
//
// The service tolerates roughly three requests per second, so every request
// goes through a ratelimit.Limiter and pages are fetched one after another.
package ripedb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"ripeipsearch/ratelimit"
)

const (
	DefaultBaseURL        = "https://apps.db.ripe.net/db-web-ui/api/rest"
	DefaultRequestDelay   = 300 * time.Millisecond
	DefaultPageSize       = 10
	DefaultTimeout        = 30 * time.Second
	DefaultAcceptLanguage = "en-US,en;q=0.9"
	DefaultUserAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"

	selectPath  = "/fulltextsearch/select"
	refererPath = "/db-web-ui/fulltextsearch"
)

// Client talks to the search endpoint. It is meant for one search at a time.
type Client struct {
	baseURL        string
	referer        string
	userAgent      string
	acceptLanguage string
	pageSize       int

	httpClient *http.Client
	limiter    *ratelimit.Limiter
	logger     *log.Logger
}

type Option func(*Client)

// WithBaseURL sets the REST API root, DefaultBaseURL by default.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func WithLimiter(l *ratelimit.Limiter) Option {
	return func(c *Client) {
		c.limiter = l
	}
}

func WithLogger(logger *log.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithPageSize changes the largest page the client accepts. The service
// always pages by DefaultPageSize; tests use this to simulate other sizes.
func WithPageSize(n int) Option {
	return func(c *Client) {
		c.pageSize = n
	}
}

func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

func WithAcceptLanguage(lang string) Option {
	return func(c *Client) {
		c.acceptLanguage = lang
	}
}

// WithReferer overrides the Referer header, which otherwise points at the
// full-text search page of the web UI.
func WithReferer(ref string) Option {
	return func(c *Client) {
		c.referer = ref
	}
}

// NewClient returns a Client with the defaults of the public RIPE web UI.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:        DefaultBaseURL,
		userAgent:      DefaultUserAgent,
		acceptLanguage: DefaultAcceptLanguage,
		pageSize:       DefaultPageSize,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		c.logger = log.New(io.Discard)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	if c.limiter == nil {
		c.limiter = ratelimit.New(DefaultRequestDelay)
		c.limiter.SetLogger(c.logger)
	}
	if c.pageSize <= 0 {
		c.pageSize = DefaultPageSize
	}
	if c.referer == "" {
		c.referer = resolveReferer(c.baseURL)
	}
	return c
}

func resolveReferer(base string) string {
	u, err := url.Parse(base)
	if err != nil || !u.IsAbs() {
		return ""
	}
	return u.ResolveReference(&url.URL{Path: refererPath}).String()
}

// PageSize is the largest number of items a page may hold.
func (c *Client) PageSize() int {
	return c.pageSize
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Accept-Language", c.acceptLanguage)
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	if c.referer != "" {
		req.Header.Set("Referer", c.referer)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
}

// Select performs a single search request. It does not wait for the rate
// limiter; Search does.
func (c *Client) Select(ctx context.Context, params url.Values) (*Page, error) {
	endpoint := c.baseURL + selectPath + "?" + params.Encode()
	c.logger.Debug("search", "params", params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	var data selectResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		apiErr := &APIError{Message: "undecodable search response", Err: err}
		if resp.StatusCode >= http.StatusBadRequest {
			apiErr.StatusCode = resp.StatusCode
		}
		return nil, apiErr
	}
	if data.Result == nil {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: "search response has no result"}
	}
	if data.Result.Name != "response" {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("unexpected result name %q", data.Result.Name),
		}
	}

	return data.Result.page(), nil
}
