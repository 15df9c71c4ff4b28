// Package llm adapts an OpenAI-compatible chat-completions endpoint.
// One call in, one completion out; retries, rate-limit signalling, and
// credential reloads are handled inside the client.
package llm

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
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/deepresearch/deepresearch/pkg/config"
	"github.com/deepresearch/deepresearch/pkg/ratelimit"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Request defaults.
const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 4000
)

// Retry budgets per Chat call.
const (
	maxTransientRetries = 2
	maxRateRetries      = 3
)

var (
	// ErrBadResponse indicates the provider returned no usable content.
	ErrBadResponse = errors.New("llm: empty or malformed completion")

	// ErrUnauthenticated indicates a 401 that survived the credential
	// reload retry.
	ErrUnauthenticated = errors.New("llm: unauthenticated")

	// ErrRateLimited indicates 429s persisted past the retry budget.
	ErrRateLimited = errors.New("llm: rate limited")
)

// Message is a single role-tagged chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Params tunes one completion request. Zero values use the defaults.
type Params struct {
	Temperature  *float64
	MaxTokens    int
	JSONResponse bool
}

// Client is the chat-completion contract the research stages depend on.
type Client interface {
	Chat(ctx context.Context, modelID string, messages []Message, params Params) (string, error)
}

// ReloadCredentialsFunc supplies a fresh API key after a 401.
type ReloadCredentialsFunc func() (string, error)

// HTTPClient implements Client over an OpenAI-style HTTP API.
type HTTPClient struct {
	baseURL      string
	timeout      time.Duration
	defaultModel string
	limiter      *ratelimit.Limiter
	hc           *http.Client
	reload       ReloadCredentialsFunc
	usage        *UsageTracker
	log          *slog.Logger

	mu     sync.RWMutex
	apiKey string
}

// Option customizes an HTTPClient.
type Option func(*HTTPClient)

// WithReloadCredentials installs the 401 credential-reload hook.
func WithReloadCredentials(fn ReloadCredentialsFunc) Option {
	return func(c *HTTPClient) { c.reload = fn }
}

// WithUsageTracker records token usage on the given tracker.
func WithUsageTracker(t *UsageTracker) Option {
	return func(c *HTTPClient) { c.usage = t }
}

// NewHTTPClient creates a client for the configured provider. The
// limiter is shared with the search client so both respect one budget.
func NewHTTPClient(cfg config.LLMProviderConfig, limiter *ratelimit.Limiter, opts ...Option) *HTTPClient {
	c := &HTTPClient{
		baseURL:      cfg.BaseURL,
		apiKey:       cfg.APIKey,
		timeout:      cfg.Timeout(),
		defaultModel: cfg.DefaultModel,
		limiter:      limiter,
		hc:           &http.Client{},
		log:          slog.With("component", "llm_client"),
	}
	if c.timeout <= 0 {
		c.timeout = time.Duration(config.DefaultLLMTimeoutMs) * time.Millisecond
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DefaultModel returns the model used when callers pass an empty id.
func (c *HTTPClient) DefaultModel() string {
	return c.defaultModel
}

// Chat sends one completion request, retrying transient failures, rate
// limits (via the shared limiter), and a single credential reload.
func (c *HTTPClient) Chat(ctx context.Context, modelID string, messages []Message, params Params) (string, error) {
	if modelID == "" {
		modelID = c.defaultModel
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 10 * time.Second

	transientLeft := maxTransientRetries
	rateLeft := maxRateRetries
	reloadLeft := 1

	for {
		if err := c.limiter.Acquire(ctx); err != nil {
			return "", err
		}

		text, status, retryAfter, err := c.do(ctx, modelID, messages, params)
		if err == nil {
			c.limiter.Reset()
			return text, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		switch {
		case status == http.StatusUnauthorized:
			if reloadLeft > 0 && c.reload != nil {
				reloadLeft--
				key, rerr := c.reload()
				if rerr == nil && key != "" {
					c.setAPIKey(key)
					c.log.Warn("Reloaded credentials after 401, retrying")
					continue
				}
			}
			return "", fmt.Errorf("%w: %v", ErrUnauthenticated, err)

		case status == http.StatusTooManyRequests:
			if rateLeft == 0 {
				return "", fmt.Errorf("%w: %v", ErrRateLimited, err)
			}
			rateLeft--
			c.limiter.SignalRateLimit(retryAfter)
			c.log.Warn("LLM provider rate limited, backing off",
				"model", modelID, "retry_after", retryAfter)
			continue // the hold is served by the next Acquire

		case isTransient(status, err):
			if transientLeft == 0 {
				return "", fmt.Errorf("llm call failed after retries: %w", err)
			}
			transientLeft--
			c.log.Warn("Transient LLM error, retrying",
				"model", modelID, "status", status, "error", err)
			if serr := sleep(ctx, bo.NextBackOff()); serr != nil {
				return "", serr
			}
			continue

		default:
			return "", err
		}
	}
}

// chatRequest mirrors the provider's request body.
type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

// chatResponse mirrors the provider's response body. Decoded
// permissively; only the fields used below are projected.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *Usage `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// do performs a single HTTP round trip.
func (c *HTTPClient) do(ctx context.Context, modelID string, messages []Message, params Params) (text string, status int, retryAfter time.Duration, err error) {
	temp := DefaultTemperature
	if params.Temperature != nil {
		temp = *params.Temperature
	}
	maxTokens := params.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	reqBody := chatRequest{
		Model:       modelID,
		Messages:    messages,
		Temperature: temp,
		MaxTokens:   maxTokens,
	}
	if params.JSONResponse {
		reqBody.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", 0, 0, fmt.Errorf("marshal chat request: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", 0, 0, fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.getAPIKey())

	resp, err := c.hc.Do(req)
	if err != nil {
		return "", 0, 0, fmt.Errorf("llm request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", resp.StatusCode, 0, fmt.Errorf("read llm response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", resp.StatusCode, parseRetryAfter(resp.Header.Get("Retry-After")),
			fmt.Errorf("llm provider returned status %d: %s", resp.StatusCode, truncateBody(body))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", resp.StatusCode, 0, fmt.Errorf("decode llm response: %w", err)
	}
	if parsed.Error != nil {
		return "", resp.StatusCode, 0, fmt.Errorf("llm provider error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return "", resp.StatusCode, 0, ErrBadResponse
	}

	if c.usage != nil && parsed.Usage != nil {
		c.usage.Record(modelID, *parsed.Usage)
	}
	return parsed.Choices[0].Message.Content, resp.StatusCode, 0, nil
}

func (c *HTTPClient) getAPIKey() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.apiKey
}

func (c *HTTPClient) setAPIKey(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.apiKey = key
}

// isTransient classifies retryable failures: 5xx responses and
// transport-level errors (timeouts, refused connections). Decode
// failures also count; a garbled body on one attempt is not fatal.
func isTransient(status int, err error) bool {
	if status >= 500 {
		return true
	}
	if status == 0 && err != nil {
		return true
	}
	// A 200 that failed to parse, or one with empty content, is a
	// per-call glitch worth one more attempt.
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
