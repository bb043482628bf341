// Package scope decides which candidate URLs may enter the crawl frontier.
package scope

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/docs-hound/docshound/internal/state"
)

// Checker validates URLs against admission rules and the current frontier.
// It never mutates the frontier.
type Checker struct {
	rules          Rules
	ledger         Ledger
	includeRegexps []*regexp.Regexp
	excludeRegexps []*regexp.Regexp
	allowedDomains map[string]struct{}
}

// NewChecker compiles rules into a checker reading from ledger.
func NewChecker(rules Rules, ledger Ledger) (*Checker, error) {
	include, err := CompilePatterns(rules.IncludePatterns)
	if err != nil {
		return nil, fmt.Errorf("include patterns: %w", err)
	}
	exclude, err := CompilePatterns(rules.ExcludePatterns)
	if err != nil {
		return nil, fmt.Errorf("exclude patterns: %w", err)
	}

	c := &Checker{
		rules:          rules,
		ledger:         ledger,
		includeRegexps: include,
		excludeRegexps: exclude,
		allowedDomains: make(map[string]struct{}, len(rules.AllowedDomains)),
	}
	for _, domain := range rules.AllowedDomains {
		c.allowedDomains[strings.ToLower(domain)] = struct{}{}
	}

	return c, nil
}

// ShouldCrawl reports whether rawURL may be scheduled. When baseURL is
// non-empty the candidate must also share its hostname.
func (c *Checker) ShouldCrawl(rawURL, baseURL string) bool {
	return c.Rejection(rawURL, baseURL) == ReasonNone
}

// Rejection returns the first rule rawURL fails, or ReasonNone.
func (c *Checker) Rejection(rawURL, baseURL string) Reason {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ReasonInvalid
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return ReasonScheme
	}
	if parsed.Host == "" {
		return ReasonInvalid
	}

	if c.ledger != nil && c.ledger.Seen(state.Normalize(rawURL)) {
		return ReasonSeen
	}

	host := strings.ToLower(parsed.Hostname())
	if len(c.allowedDomains) > 0 {
		if _, ok := c.allowedDomains[host]; !ok {
			return ReasonDomain
		}
	}

	if baseURL != "" && !SameHost(rawURL, baseURL) {
		return ReasonBase
	}

	if c.Excluded(rawURL) {
		return ReasonExcluded
	}

	if c.rules.MaxPages > 0 && c.ledger != nil && c.ledger.VisitedCount() >= c.rules.MaxPages {
		return ReasonCapacity
	}

	return ReasonNone
}

// Excluded reports whether rawURL matches any exclude pattern.
func (c *Checker) Excluded(rawURL string) bool {
	for _, re := range c.excludeRegexps {
		if re.MatchString(rawURL) {
			return true
		}
	}
	return false
}

// Included reports whether rawURL matches the include patterns. With no
// include patterns every URL is included.
func (c *Checker) Included(rawURL string) bool {
	if len(c.includeRegexps) == 0 {
		return true
	}
	for _, re := range c.includeRegexps {
		if re.MatchString(rawURL) {
			return true
		}
	}
	return false
}

// FilterIncluded returns the URLs that pass the include and exclude
// patterns, preserving order.
func (c *Checker) FilterIncluded(urls []string) []string {
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if c.Included(u) && !c.Excluded(u) {
			out = append(out, u)
		}
	}
	return out
}

// Rules returns the rules the checker was built from.
func (c *Checker) Rules() Rules {
	return c.rules
}
