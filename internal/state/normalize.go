// Package state holds the per-run URL frontier: the visited, queued and
// overflow sets, keyed by normalized URL.
package state

import (
	"net/url"
	"strings"
)

// Normalize returns the canonical dedup key for rawURL: fragment and query
// removed, one trailing slash stripped from the path (the root path stays
// "/"), scheme and host lowercased and default ports dropped.
//
// Inputs that are not absolute URLs are returned unchanged.
func Normalize(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || !parsed.IsAbs() {
		return rawURL
	}

	parsed.Fragment = ""
	parsed.RawFragment = ""
	parsed.RawQuery = ""
	parsed.ForceQuery = false

	// Opaque URLs (mailto:, javascript:) have no path to canonicalize.
	if parsed.Opaque != "" {
		return parsed.String()
	}

	parsed.Host = strings.ToLower(parsed.Host)
	if (parsed.Scheme == "http" && strings.HasSuffix(parsed.Host, ":80")) ||
		(parsed.Scheme == "https" && strings.HasSuffix(parsed.Host, ":443")) {
		parsed.Host = parsed.Host[:strings.LastIndex(parsed.Host, ":")]
	}

	parsed.Path = trimTrailingSlash(parsed.Path)
	if parsed.RawPath != "" {
		parsed.RawPath = trimTrailingSlash(parsed.RawPath)
	}

	return parsed.String()
}

func trimTrailingSlash(path string) string {
	path = strings.TrimSuffix(path, "/")
	if path == "" {
		return "/"
	}
	return path
}

// Hostname returns the lowercased host of rawURL without port, or "" if it
// does not parse.
func Hostname(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Hostname())
}
