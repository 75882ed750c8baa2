package config

import "time"

// GeminiConfig configures the generation provider.
type GeminiConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	Timeout string `yaml:"timeout"` // per generation call
}

// Ready reports whether a usable API key is configured.
func (g GeminiConfig) Ready() bool {
	return !IsPlaceholderKey(g.APIKey)
}

// GetTimeout returns the per-call timeout as a duration.
func (g GeminiConfig) GetTimeout() time.Duration {
	return parseDuration(g.Timeout, 30*time.Second)
}

// PexelsConfig configures the image search provider.
type PexelsConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	PerPage int    `yaml:"per_page"`
	Timeout string `yaml:"timeout"`
}

// Ready reports whether a usable API key is configured.
func (p PexelsConfig) Ready() bool {
	return !IsPlaceholderKey(p.APIKey)
}

// GetTimeout returns the per-call timeout as a duration.
func (p PexelsConfig) GetTimeout() time.Duration {
	return parseDuration(p.Timeout, 30*time.Second)
}
