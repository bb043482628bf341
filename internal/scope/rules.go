package scope

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// CompilePatterns compiles regular expressions, reporting the first
// invalid one.
func CompilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

// ValidatePatterns checks that every pattern is a valid regular expression.
func ValidatePatterns(patterns []string) error {
	_, err := CompilePatterns(patterns)
	return err
}

// SameHost reports whether two URLs have exactly the same hostname.
// Unparseable input never matches.
func SameHost(a, b string) bool {
	pa, err := url.Parse(a)
	if err != nil {
		return false
	}
	pb, err := url.Parse(b)
	if err != nil {
		return false
	}
	return strings.EqualFold(pa.Hostname(), pb.Hostname())
}

// ExtractDomain returns the lowercased hostname of a URL.
func ExtractDomain(urlStr string) (string, error) {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return "", err
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("no host in %q", urlStr)
	}
	return strings.ToLower(parsed.Hostname()), nil
}
