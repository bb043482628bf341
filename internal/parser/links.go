// Package parser extracts crawlable links from HTML documents.
package parser

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/docs-hound/docshound/internal/logger"
	"github.com/docs-hound/docshound/internal/state"
)

// LinkParser extracts anchor links from HTML.
type LinkParser struct {
	logger *logger.Logger
}

// NewLinkParser creates a link parser. A nil logger discards warnings.
func NewLinkParser(log *logger.Logger) *LinkParser {
	return &LinkParser{logger: logger.OrNop(log).WithComponent("parser")}
}

// ExtractLinks parses html with a discarding logger.
func ExtractLinks(html, baseURL string) []string {
	return NewLinkParser(nil).ExtractLinks(html, baseURL)
}

// ExtractLinks returns the absolute target of every a[href] in html, resolved
// against baseURL. A <base href> in the document is ignored. Links that
// normalize to the same URL are reported once, in document order, in the form
// they first appeared. Schemes are not filtered here. On failure it returns an
// empty slice and logs a warning.
func (p *LinkParser) ExtractLinks(html, baseURL string) []string {
	links := make([]string, 0)

	base, err := url.Parse(baseURL)
	if err != nil {
		p.logger.WithURL(baseURL).WithError(err).Warn("Failed to extract links: invalid base URL")
		return links
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		p.logger.WithURL(baseURL).WithError(err).Warn("Failed to extract links")
		return links
	}

	seen := make(map[string]bool)
	doc.Find("a[href]").Each(func(i int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		resolved := resolve(base, href)
		if resolved == "" {
			return
		}

		normalized := state.Normalize(resolved)
		if seen[normalized] {
			return
		}
		seen[normalized] = true
		links = append(links, resolved)
	})

	return links
}

// resolve resolves href against base. It returns "" for empty or unparsable hrefs.
func resolve(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}
