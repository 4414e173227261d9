// Package firecrawl is a small client for the Firecrawl v2 scrape API, used
// to fetch energy offer pages as markdown or HTML.
package firecrawl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Default base URL for the Firecrawl v2 API.
const defaultBaseURL = "https://api.firecrawl.dev/v2"

// Output formats accepted by the scrape endpoints.
const (
	FormatMarkdown = "markdown"
	FormatHTML     = "html"
)

// Client defines the Firecrawl operations the offer catalog uses.
type Client interface {
	Scrape(ctx context.Context, req ScrapeRequest) (*ScrapeResponse, error)
	BatchScrape(ctx context.Context, req BatchScrapeRequest) (*BatchScrapeResponse, error)
	GetBatchScrapeStatus(ctx context.Context, id string) (*BatchScrapeStatusResponse, error)
}

// ScrapeRequest is the body for POST /scrape.
type ScrapeRequest struct {
	URL             string   `json:"url"`
	Formats         []string `json:"formats,omitempty"`
	OnlyMainContent bool     `json:"onlyMainContent,omitempty"`
	WaitFor         int      `json:"waitFor,omitempty"` // milliseconds
}

// ScrapeResponse is the response from POST /scrape.
type ScrapeResponse struct {
	Success bool     `json:"success"`
	Data    PageData `json:"data"`
}

// BatchScrapeRequest is the body for POST /batch/scrape.
type BatchScrapeRequest struct {
	URLs            []string `json:"urls"`
	Formats         []string `json:"formats,omitempty"`
	OnlyMainContent bool     `json:"onlyMainContent,omitempty"`
}

// BatchScrapeResponse is the response from POST /batch/scrape.
type BatchScrapeResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
}

// BatchScrapeStatusResponse is the response from GET /batch/scrape/{id}.
type BatchScrapeStatusResponse struct {
	Status    string     `json:"status"` // scraping | completed | failed
	Total     int        `json:"total"`
	Completed int        `json:"completed"`
	Data      []PageData `json:"data"`
}

// PageData is one scraped page.
type PageData struct {
	Markdown string   `json:"markdown"`
	HTML     string   `json:"html"`
	Metadata Metadata `json:"metadata"`
}

// Metadata describes the scraped page.
type Metadata struct {
	Title      string `json:"title"`
	SourceURL  string `json:"sourceURL"`
	StatusCode int    `json:"statusCode"`
}

// APIError is returned when Firecrawl responds with a non-2xx status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("firecrawl: HTTP %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the request may succeed if sent again.
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode == http.StatusRequestTimeout ||
		e.StatusCode >= 500
}

// IsRetryable reports whether err wraps a retryable APIError.
func IsRetryable(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Retryable()
}

// Option configures the httpClient.
type Option func(*httpClient)

// WithBaseURL overrides the default base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		if url != "" {
			c.baseURL = url
		}
	}
}

// WithHTTPClient sets a custom *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit caps outgoing requests per second. Zero or negative
// disables the limiter.
func WithRateLimit(perSec float64) Option {
	return func(c *httpClient) {
		if perSec <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSec), 1)
	}
}

// httpClient implements Client using net/http.
type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a new Firecrawl client. Requests are limited to two per
// second unless WithRateLimit says otherwise.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(2), 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Scrape(ctx context.Context, req ScrapeRequest) (*ScrapeResponse, error) {
	var resp ScrapeResponse
	if err := c.post(ctx, "/scrape", req, &resp); err != nil {
		return nil, eris.Wrapf(err, "firecrawl: scrape %s", req.URL)
	}
	if !resp.Success {
		return nil, eris.Errorf("firecrawl: scrape %s reported failure", req.URL)
	}
	return &resp, nil
}

func (c *httpClient) BatchScrape(ctx context.Context, req BatchScrapeRequest) (*BatchScrapeResponse, error) {
	var resp BatchScrapeResponse
	if err := c.post(ctx, "/batch/scrape", req, &resp); err != nil {
		return nil, eris.Wrap(err, "firecrawl: start batch scrape")
	}
	return &resp, nil
}

func (c *httpClient) GetBatchScrapeStatus(ctx context.Context, id string) (*BatchScrapeStatusResponse, error) {
	var resp BatchScrapeStatusResponse
	if err := c.get(ctx, "/batch/scrape/"+id, &resp); err != nil {
		return nil, eris.Wrapf(err, "firecrawl: get batch scrape status %s", id)
	}
	return &resp, nil
}

func (c *httpClient) post(ctx context.Context, path string, body any, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return eris.Wrap(err, "marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	return c.do(req, out)
}

func (c *httpClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	return c.do(req, out)
}

func (c *httpClient) do(req *http.Request, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return eris.Wrap(err, "rate limit wait")
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "execute request")
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{
			StatusCode: resp.StatusCode,
			Body:       string(data),
		}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return eris.Wrap(err, "decode response")
	}

	return nil
}
