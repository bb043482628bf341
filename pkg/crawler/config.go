package crawler

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/docs-hound/docshound/internal/fetch"
	"github.com/docs-hound/docshound/internal/scope"
)

// DiscoveryLimit is the page cap ceiling for discovery runs.
const DiscoveryLimit = 1000

// Config holds the settings for one crawl run.
type Config struct {
	// Maximum link depth followed from a seed. 0 fetches the seeds only.
	MaxDepth int `json:"max_depth" yaml:"max_depth"`

	// Maximum number of pages visited in a run
	MaxPages int `json:"max_pages" yaml:"max_pages"`

	// Number of fetches in flight at once
	Concurrency int `json:"concurrency" yaml:"concurrency"`

	// Minimum spacing between two fetch starts
	Delay time.Duration `json:"delay" yaml:"delay"`

	// Exact hostnames that may be crawled. Empty means any host.
	AllowedDomains []string `json:"allowed_domains" yaml:"allowed_domains"`

	// Regular expressions; matching URLs are never scheduled
	ExcludePatterns []string `json:"exclude_patterns" yaml:"exclude_patterns"`

	// Regular expressions applied by callers to the crawl output
	IncludePatterns []string `json:"include_patterns" yaml:"include_patterns"`

	// Collect URLs only; HTML is not kept
	DiscoveryMode bool `json:"discovery_mode" yaml:"discovery_mode"`

	// Per-request timeout
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	UserAgent   string `json:"user_agent" yaml:"user_agent"`
	MaxBodySize int64  `json:"max_body_size" yaml:"max_body_size"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		MaxDepth:    3,
		MaxPages:    DiscoveryLimit,
		Concurrency: 5,
		Delay:       500 * time.Millisecond,
		Timeout:     fetch.DefaultTimeout,
		UserAgent:   fetch.DefaultUserAgent,
		MaxBodySize: fetch.DefaultMaxBodySize,
	}
}

// DiscoveryConfig returns the configuration used to map a documentation site.
func DiscoveryConfig(domain string) *Config {
	c := DefaultConfig()
	c.MaxDepth = 5
	c.MaxPages = DiscoveryLimit
	c.Concurrency = 5
	c.Delay = 300 * time.Millisecond
	c.AllowedDomains = []string{domain}
	c.DiscoveryMode = true
	return c
}

// IndexConfig returns the configuration used to fetch an explicit list of
// pages. No links are followed.
func IndexConfig(domain string, pages int) *Config {
	c := DefaultConfig()
	c.MaxDepth = 0
	c.MaxPages = pages
	c.Concurrency = 3
	c.Delay = 500 * time.Millisecond
	c.AllowedDomains = []string{domain}
	return c
}

// EffectiveMaxPages returns the page cap, clamped to DiscoveryLimit in
// discovery mode.
func (c *Config) EffectiveMaxPages() int {
	if c.DiscoveryMode && c.MaxPages > DiscoveryLimit {
		return DiscoveryLimit
	}
	return c.MaxPages
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.MaxDepth < 0 {
		return fmt.Errorf("max depth must not be negative")
	}
	if c.MaxPages < 1 {
		return fmt.Errorf("max pages must be at least 1")
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1")
	}
	if c.Delay < 0 {
		return fmt.Errorf("delay must not be negative")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	if c.MaxBodySize < 0 {
		return fmt.Errorf("max body size must not be negative")
	}
	for _, domain := range c.AllowedDomains {
		if strings.TrimSpace(domain) == "" {
			return fmt.Errorf("allowed domains must not contain empty entries")
		}
	}
	if err := scope.ValidatePatterns(c.ExcludePatterns); err != nil {
		return fmt.Errorf("exclude patterns: %w", err)
	}
	if err := scope.ValidatePatterns(c.IncludePatterns); err != nil {
		return fmt.Errorf("include patterns: %w", err)
	}
	return nil
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	clone.AllowedDomains = append([]string(nil), c.AllowedDomains...)
	clone.ExcludePatterns = append([]string(nil), c.ExcludePatterns...)
	clone.IncludePatterns = append([]string(nil), c.IncludePatterns...)
	return &clone
}

// LoadConfig loads configuration from a YAML or JSON file on top of the
// defaults. Files ending in .json are read as JSON, everything else as YAML.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, config)
	} else {
		err = yaml.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file: %w", err)
	}
	return config, nil
}
