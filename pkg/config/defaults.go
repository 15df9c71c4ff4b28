package config

// Built-in defaults. API keys intentionally have no default; they come
// from the YAML file via {{.VAR}} expansion or from the environment.
const (
	DefaultSearchBaseURL   = "https://api.firecrawl.dev/v1"
	DefaultSearchTimeoutMs = 45000
	DefaultSearchLimit     = 5

	DefaultLLMBaseURL   = "https://openrouter.ai/api/v1"
	DefaultLLMTimeoutMs = 60000
	DefaultModel        = "openai/gpt-4o-mini"

	DefaultRPM              = 5
	DefaultInitialBackoffMs = 1000
	DefaultMaxBackoffMs     = 60000
	DefaultMultiplier       = 2.0

	DefaultMaxConcurrency  = 2
	DefaultMaxDepth        = 5
	DefaultMaxBreadth      = 5
	DefaultEventBufferSize = 64
)

// DefaultConfig returns the built-in configuration that user YAML is
// merged over.
func DefaultConfig() *Config {
	return &Config{
		Search: SearchProviderConfig{
			BaseURL:   DefaultSearchBaseURL,
			TimeoutMs: DefaultSearchTimeoutMs,
			Limit:     DefaultSearchLimit,
		},
		LLM: LLMProviderConfig{
			BaseURL:      DefaultLLMBaseURL,
			TimeoutMs:    DefaultLLMTimeoutMs,
			DefaultModel: DefaultModel,
		},
		RateLimit: RateLimitConfig{
			RPM:              DefaultRPM,
			InitialBackoffMs: DefaultInitialBackoffMs,
			MaxBackoffMs:     DefaultMaxBackoffMs,
			Multiplier:       DefaultMultiplier,
		},
		Engine: EngineConfig{
			MaxConcurrency:  DefaultMaxConcurrency,
			MaxDepth:        DefaultMaxDepth,
			MaxBreadth:      DefaultMaxBreadth,
			EventBufferSize: DefaultEventBufferSize,
		},
	}
}
