// Package config loads and validates the deepresearch configuration:
// a YAML file with {{.ENV_VAR}} expansion merged over built-in defaults.
package config

import "time"

// Config is the fully resolved configuration.
type Config struct {
	Search    SearchProviderConfig `yaml:"search_provider"`
	LLM       LLMProviderConfig    `yaml:"llm_provider"`
	RateLimit RateLimitConfig      `yaml:"rate_limit"`
	Engine    EngineConfig         `yaml:"engine"`
}

// SearchProviderConfig configures the web search+scrape provider.
type SearchProviderConfig struct {
	APIKey    string `yaml:"api_key"`
	BaseURL   string `yaml:"base_url"`
	TimeoutMs int    `yaml:"timeout_ms"`
	// Limit is the number of results requested per query.
	Limit   int    `yaml:"limit"`
	Country string `yaml:"country"`
	Lang    string `yaml:"lang"`
}

// Timeout returns the per-request search deadline.
func (c SearchProviderConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// LLMProviderConfig configures the chat-completions provider.
type LLMProviderConfig struct {
	APIKey    string `yaml:"api_key"`
	BaseURL   string `yaml:"base_url"`
	TimeoutMs int    `yaml:"timeout_ms"`
	// DefaultModel is used when a request does not name a model.
	DefaultModel string `yaml:"default_model"`
}

// Timeout returns the per-request LLM deadline.
func (c LLMProviderConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// RateLimitConfig tunes the shared provider-call limiter.
type RateLimitConfig struct {
	RPM              int     `yaml:"rpm"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier"`
}

// InitialBackoff returns the starting backoff duration.
func (c RateLimitConfig) InitialBackoff() time.Duration {
	return time.Duration(c.InitialBackoffMs) * time.Millisecond
}

// MaxBackoff returns the backoff ceiling.
func (c RateLimitConfig) MaxBackoff() time.Duration {
	return time.Duration(c.MaxBackoffMs) * time.Millisecond
}

// EngineConfig bounds research sessions.
type EngineConfig struct {
	MaxConcurrency  int `yaml:"max_concurrency"`
	MaxDepth        int `yaml:"max_depth"`
	MaxBreadth      int `yaml:"max_breadth"`
	EventBufferSize int `yaml:"event_buffer_size"`
}
