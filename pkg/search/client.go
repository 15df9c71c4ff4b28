// Package search adapts a Firecrawl-style search+scrape API into the
// SearchDoc slices the research pipeline consumes.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/deepresearch/deepresearch/pkg/config"
	"github.com/deepresearch/deepresearch/pkg/models"
	"github.com/deepresearch/deepresearch/pkg/ratelimit"
)

// Retry budgets per Search call.
const (
	maxTransientRetries = 2
	maxRateRetries      = 3
)

var (
	// ErrBadResponse indicates the provider returned an unparseable body.
	ErrBadResponse = errors.New("search: malformed provider response")

	// ErrRateLimited indicates 429s persisted past the retry budget.
	ErrRateLimited = errors.New("search: rate limited")
)

// Client is the search contract the engine depends on.
type Client interface {
	Search(ctx context.Context, query string) ([]models.SearchDoc, error)
}

// HTTPClient implements Client over the provider's /search endpoint.
type HTTPClient struct {
	cfg     config.SearchProviderConfig
	limiter *ratelimit.Limiter
	hc      *http.Client
	log     *slog.Logger
}

// NewHTTPClient creates a search client. The limiter is shared with the
// LLM client so both respect one provider-call budget.
func NewHTTPClient(cfg config.SearchProviderConfig, limiter *ratelimit.Limiter) *HTTPClient {
	if cfg.TimeoutMs <= 0 {
		cfg.TimeoutMs = config.DefaultSearchTimeoutMs
	}
	if cfg.Limit <= 0 {
		cfg.Limit = config.DefaultSearchLimit
	}
	return &HTTPClient{
		cfg:     cfg,
		limiter: limiter,
		hc:      &http.Client{},
		log:     slog.With("component", "search_client"),
	}
}

// searchRequest mirrors the provider's request body.
type searchRequest struct {
	Query         string        `json:"query"`
	Limit         int           `json:"limit"`
	Country       string        `json:"country,omitempty"`
	Lang          string        `json:"lang,omitempty"`
	Timeout       int           `json:"timeout,omitempty"`
	ScrapeOptions scrapeOptions `json:"scrapeOptions"`
}

type scrapeOptions struct {
	Formats         []string `json:"formats"`
	OnlyMainContent bool     `json:"onlyMainContent"`
}

// searchResponse projects only the fields the pipeline uses. Providers
// vary on snippet naming, so both forms are accepted.
type searchResponse struct {
	Data []struct {
		URL         string `json:"url"`
		Title       string `json:"title"`
		Description string `json:"description"`
		Snippet     string `json:"snippet"`
		Markdown    string `json:"markdown"`
	} `json:"data"`
}

// Search runs one query against the provider, retrying rate limits via
// the shared limiter and transient failures with exponential backoff.
// Result documents missing a parseable URL are dropped.
func (c *HTTPClient) Search(ctx context.Context, query string) ([]models.SearchDoc, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("search: empty query")
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 10 * time.Second

	transientLeft := maxTransientRetries
	rateLeft := maxRateRetries

	for {
		if err := c.limiter.Acquire(ctx); err != nil {
			return nil, err
		}

		docs, status, retryAfter, err := c.do(ctx, query)
		if err == nil {
			c.limiter.Reset()
			return docs, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		switch {
		case status == http.StatusTooManyRequests:
			if rateLeft == 0 {
				return nil, fmt.Errorf("%w: %v", ErrRateLimited, err)
			}
			rateLeft--
			c.limiter.SignalRateLimit(retryAfter)
			c.log.Warn("Search provider rate limited, backing off",
				"query", query, "retry_after", retryAfter)
			continue

		case isTransient(status, err):
			if transientLeft == 0 {
				return nil, fmt.Errorf("search failed after retries: %w", err)
			}
			transientLeft--
			c.log.Warn("Transient search error, retrying",
				"query", query, "status", status, "error", err)
			if serr := sleep(ctx, bo.NextBackOff()); serr != nil {
				return nil, serr
			}
			continue

		default:
			return nil, err
		}
	}
}

// do performs a single HTTP round trip and projects the result list.
func (c *HTTPClient) do(ctx context.Context, query string) (docs []models.SearchDoc, status int, retryAfter time.Duration, err error) {
	reqBody := searchRequest{
		Query:   query,
		Limit:   c.cfg.Limit,
		Country: c.cfg.Country,
		Lang:    c.cfg.Lang,
		Timeout: c.cfg.TimeoutMs,
		ScrapeOptions: scrapeOptions{
			Formats:         []string{"markdown", "links"},
			OnlyMainContent: true,
		},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("marshal search request: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost,
		c.cfg.BaseURL+"/search", bytes.NewReader(payload))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, 0, fmt.Errorf("read search response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, parseRetryAfter(resp.Header.Get("Retry-After")),
			fmt.Errorf("search provider returned status %d: %s", resp.StatusCode, truncateBody(body))
	}

	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, resp.StatusCode, 0, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}

	docs = make([]models.SearchDoc, 0, len(parsed.Data))
	for _, item := range parsed.Data {
		if _, err := models.DomainOf(item.URL); err != nil {
			c.log.Debug("Dropping result without usable URL", "url", item.URL)
			continue
		}
		snippet := item.Description
		if snippet == "" {
			snippet = item.Snippet
		}
		docs = append(docs, models.SearchDoc{
			URL:      item.URL,
			Title:    item.Title,
			Snippet:  snippet,
			MainText: item.Markdown,
			Rank:     len(docs),
		})
	}
	return docs, resp.StatusCode, 0, nil
}

// isTransient classifies retryable failures: 5xx responses, transport
// errors, and parse failures on an otherwise OK response.
func isTransient(status int, err error) bool {
	if status >= 500 {
		return true
	}
	if status == 0 && err != nil {
		return true
	}
	return status == http.StatusOK && err != nil
}

// parseRetryAfter handles the delta-seconds form of the header.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

func truncateBody(b []byte) string {
	const limit = 512
	if len(b) <= limit {
		return string(b)
	}
	return string(b[:limit]) + "..."
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
