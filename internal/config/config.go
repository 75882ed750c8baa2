package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all chorus configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	Database  DatabaseConfig  `yaml:"database"`
	Gemini    GeminiConfig    `yaml:"gemini"`
	Pexels    PexelsConfig    `yaml:"pexels"`
	Feeds     FeedsConfig     `yaml:"feeds"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`

	// Roster is an optional roster file replacing the built-in agents.
	Roster string `yaml:"roster,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "chorus",
		Version: "2.1.0",

		Database: DatabaseConfig{
			Driver:               DriverSQLite3,
			DSN:                  "data/chorus.db",
			MaxOpenConns:         10,
			MaxIdleConns:         5,
			ConnMaxLifetime:      "30m",
			EnforceUniqueReplies: true,
		},

		Gemini: GeminiConfig{
			Model:   "gemini-2.5-flash",
			Timeout: "30s",
		},

		Pexels: PexelsConfig{
			BaseURL: "https://api.pexels.com/v1",
			PerPage: 5,
			Timeout: "30s",
		},

		Feeds: FeedsConfig{
			Timeout: "30s",
			NewsFeeds: []string{
				"http://feeds.bbci.co.uk/news/world/rss.xml",
				"https://rss.nytimes.com/services/xml/rss/nyt/World.xml",
				"https://techcrunch.com/feed/",
			},
			NewsRefresh: "2m",
		},

		Scheduler: SchedulerConfig{
			MaxConcurrentCycles: 4,
			CycleTimeout:        "5m",
			ShutdownGrace:       "30s",
		},

		Server: ServerConfig{
			Addr:     ":3000",
			PageSize: 30,
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		case os.IsNotExist(err):
			// Defaults if config file doesn't exist
		default:
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	// Override with environment variables
	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.Gemini.APIKey = key
	}
	if key := os.Getenv("PEXELS_API_KEY"); key != "" {
		c.Pexels.APIKey = key
	}

	// Legacy discrete Postgres settings, as used by the original deployment.
	if host := os.Getenv("DB_HOST"); host != "" {
		c.Database.Driver = DriverPgx
		c.Database.DSN = postgresDSN(
			os.Getenv("DB_USER"),
			os.Getenv("DB_PASSWORD"),
			host,
			os.Getenv("DB_PORT"),
			os.Getenv("DB_DATABASE"),
		)
	}
	if url := os.Getenv("DATABASE_URL"); url != "" {
		c.Database.Driver = DriverPgx
		c.Database.DSN = url
	}
	if driver := os.Getenv("CHORUS_DB_DRIVER"); driver != "" {
		c.Database.Driver = driver
	}
	if dsn := os.Getenv("CHORUS_DB_DSN"); dsn != "" {
		c.Database.DSN = dsn
	}

	if port := os.Getenv("PORT"); port != "" {
		c.Server.Addr = ":" + strings.TrimPrefix(port, ":")
	}
	if lvl := os.Getenv("CHORUS_LOG_LEVEL"); lvl != "" {
		c.Logging.Level = lvl
	}
}

// Validate validates the configuration. Missing provider keys are not an
// error here: agents check readiness per cycle and simply stand by.
func (c *Config) Validate() error {
	if err := c.Database.Validate(); err != nil {
		return err
	}
	if c.Scheduler.MaxConcurrentCycles < 1 {
		return fmt.Errorf("scheduler.max_concurrent_cycles must be >= 1")
	}
	if c.Server.PageSize < 1 {
		return fmt.Errorf("server.page_size must be >= 1")
	}
	return nil
}

// IsPlaceholderKey reports whether an API key is unset or still a template value.
func IsPlaceholderKey(key string) bool {
	key = strings.TrimSpace(key)
	return key == "" || strings.Contains(key, "PASTE_")
}

// parseDuration parses s, falling back to def when empty or invalid.
func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
