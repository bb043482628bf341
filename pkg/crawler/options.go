package crawler

import (
	"fmt"
	"time"

	"github.com/docs-hound/docshound/internal/logger"
	"github.com/docs-hound/docshound/internal/metrics"
	"github.com/docs-hound/docshound/internal/progress"
)

// Option is a functional option for configuring the Crawler.
type Option func(*Crawler) error

// WithConfig replaces the whole configuration. Options applied after it
// still take effect.
func WithConfig(config *Config) Option {
	return func(c *Crawler) error {
		if config == nil {
			return fmt.Errorf("config must not be nil")
		}
		c.config = config.Clone()
		return nil
	}
}

// WithMaxDepth sets the maximum crawl depth.
func WithMaxDepth(depth int) Option {
	return func(c *Crawler) error {
		c.config.MaxDepth = depth
		return nil
	}
}

// WithMaxPages sets the page cap.
func WithMaxPages(n int) Option {
	return func(c *Crawler) error {
		c.config.MaxPages = n
		return nil
	}
}

// WithConcurrency sets the number of concurrent fetches.
func WithConcurrency(n int) Option {
	return func(c *Crawler) error {
		if n < 1 {
			n = 1
		}
		c.config.Concurrency = n
		return nil
	}
}

// WithDelay sets the minimum spacing between fetch starts.
func WithDelay(d time.Duration) Option {
	return func(c *Crawler) error {
		c.config.Delay = d
		return nil
	}
}

// WithAllowedDomains adds exact hostnames to the allow-list.
func WithAllowedDomains(domains ...string) Option {
	return func(c *Crawler) error {
		c.config.AllowedDomains = append(c.config.AllowedDomains, domains...)
		return nil
	}
}

// WithExcludePatterns adds URL patterns to exclude.
func WithExcludePatterns(patterns ...string) Option {
	return func(c *Crawler) error {
		c.config.ExcludePatterns = append(c.config.ExcludePatterns, patterns...)
		return nil
	}
}

// WithIncludePatterns adds URL patterns for caller-side filtering.
func WithIncludePatterns(patterns ...string) Option {
	return func(c *Crawler) error {
		c.config.IncludePatterns = append(c.config.IncludePatterns, patterns...)
		return nil
	}
}

// WithDiscoveryMode enables or disables discovery mode.
func WithDiscoveryMode(enabled bool) Option {
	return func(c *Crawler) error {
		c.config.DiscoveryMode = enabled
		return nil
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Crawler) error {
		c.config.Timeout = timeout
		return nil
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Crawler) error {
		c.config.UserAgent = ua
		return nil
	}
}

// WithMaxBodySize caps the bytes read per response.
func WithMaxBodySize(n int64) Option {
	return func(c *Crawler) error {
		c.config.MaxBodySize = n
		return nil
	}
}

// WithFetcher replaces the HTTP page client.
func WithFetcher(f Fetcher) Option {
	return func(c *Crawler) error {
		if f == nil {
			return fmt.Errorf("fetcher must not be nil")
		}
		c.fetcher = f
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *Crawler) error {
		c.logger = l
		return nil
	}
}

// WithMetrics sets a metrics collector shared with the caller.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Crawler) error {
		c.metrics = m
		return nil
	}
}

// WithProgress renders a progress line to d while a run is active.
func WithProgress(d *progress.Display) Option {
	return func(c *Crawler) error {
		c.progress = d
		return nil
	}
}

// WithStatusInterval sets how often run statistics are reported. Zero
// disables periodic reports.
func WithStatusInterval(interval time.Duration) Option {
	return func(c *Crawler) error {
		c.statusInterval = interval
		return nil
	}
}
