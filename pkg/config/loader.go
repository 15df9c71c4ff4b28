package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// ConfigFileName is the expected YAML file inside the config directory.
const ConfigFileName = "deepresearch.yaml"

// Initialize loads, merges, and validates configuration from configDir.
// The YAML file is optional: when absent, built-in defaults apply with
// API keys taken from the environment (FIRECRAWL_API_KEY, LLM_API_KEY).
//
// Steps performed:
//  1. Read deepresearch.yaml (if present)
//  2. Expand {{.ENV_VAR}} references
//  3. Parse YAML and merge over built-in defaults
//  4. Fill API keys from the environment when the file left them empty
//  5. Validate everything
func Initialize(configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)

	cfg := DefaultConfig()

	path := filepath.Join(configDir, ConfigFileName)
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Info("No config file found, using built-in defaults", "path", path)
	case err != nil:
		return nil, NewLoadError(ConfigFileName, err)
	default:
		var user Config
		if err := yaml.Unmarshal(ExpandEnv(data), &user); err != nil {
			return nil, NewLoadError(ConfigFileName, fmt.Errorf("%w: %v", ErrInvalidYAML, err))
		}
		// User-provided non-zero values override defaults.
		if err := mergo.Merge(cfg, &user, mergo.WithOverride); err != nil {
			return nil, NewLoadError(ConfigFileName, err)
		}
		log.Info("Loaded configuration file", "path", path)
	}

	fillKeysFromEnv(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}

	log.Info("Configuration initialized",
		"search_base_url", cfg.Search.BaseURL,
		"llm_base_url", cfg.LLM.BaseURL,
		"default_model", cfg.LLM.DefaultModel,
		"rpm", cfg.RateLimit.RPM,
		"max_concurrency", cfg.Engine.MaxConcurrency)
	return cfg, nil
}

// fillKeysFromEnv applies the conventional environment variables for
// credentials the YAML file did not set.
func fillKeysFromEnv(cfg *Config) {
	if cfg.Search.APIKey == "" {
		cfg.Search.APIKey = os.Getenv("FIRECRAWL_API_KEY")
	}
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("LLM_API_KEY")
	}
}
