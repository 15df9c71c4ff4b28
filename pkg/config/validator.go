package config

import (
	"fmt"
	"net/url"
	"strings"
)

// validate checks the resolved configuration before use. Violations are
// collected per field so operators see all problems at once.
func validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateProvider("search_provider", cfg.Search.APIKey, cfg.Search.BaseURL, cfg.Search.TimeoutMs)...)
	errs = append(errs, validateProvider("llm_provider", cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.LLM.TimeoutMs)...)

	if cfg.LLM.DefaultModel == "" {
		errs = append(errs, NewValidationError("llm_provider", "default_model", ErrMissingRequiredField))
	}
	if cfg.Search.Limit < 1 {
		errs = append(errs, NewValidationError("search_provider", "limit", ErrInvalidValue))
	}

	if cfg.RateLimit.RPM < 1 {
		errs = append(errs, NewValidationError("rate_limit", "rpm", ErrInvalidValue))
	}
	if cfg.RateLimit.InitialBackoffMs < 1 || cfg.RateLimit.MaxBackoffMs < cfg.RateLimit.InitialBackoffMs {
		errs = append(errs, NewValidationError("rate_limit", "initial_backoff_ms", ErrInvalidValue))
	}
	if cfg.RateLimit.Multiplier <= 1 {
		errs = append(errs, NewValidationError("rate_limit", "multiplier", ErrInvalidValue))
	}

	if cfg.Engine.MaxConcurrency < 1 {
		errs = append(errs, NewValidationError("engine", "max_concurrency", ErrInvalidValue))
	}
	if cfg.Engine.MaxDepth < 1 || cfg.Engine.MaxDepth > 5 {
		errs = append(errs, NewValidationError("engine", "max_depth", ErrInvalidValue))
	}
	if cfg.Engine.MaxBreadth < 1 || cfg.Engine.MaxBreadth > 5 {
		errs = append(errs, NewValidationError("engine", "max_breadth", ErrInvalidValue))
	}
	if cfg.Engine.EventBufferSize < 1 {
		errs = append(errs, NewValidationError("engine", "event_buffer_size", ErrInvalidValue))
	}

	if len(errs) == 0 {
		return nil
	}

	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return fmt.Errorf("%w:\n  %s", ErrValidationFailed, strings.Join(msgs, "\n  "))
}

// validateProvider checks the fields common to both provider sections.
func validateProvider(section, apiKey, baseURL string, timeoutMs int) []error {
	var errs []error
	if apiKey == "" {
		errs = append(errs, NewValidationError(section, "api_key", ErrMissingRequiredField))
	}
	if baseURL == "" {
		errs = append(errs, NewValidationError(section, "base_url", ErrMissingRequiredField))
	} else if u, err := url.Parse(baseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, NewValidationError(section, "base_url", ErrInvalidValue))
	}
	if timeoutMs < 1 {
		errs = append(errs, NewValidationError(section, "timeout_ms", ErrInvalidValue))
	}
	return errs
}
