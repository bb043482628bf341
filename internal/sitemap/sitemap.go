// Package sitemap finds page URLs listed in a site's sitemaps.
package sitemap

import (
	"bufio"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/docs-hound/docshound/internal/logger"
	"github.com/docs-hound/docshound/internal/state"
)

// Getter fetches a file body.
type Getter interface {
	GetFile(ctx context.Context, targetURL string) ([]byte, error)
}

// ErrInvalidBase is returned when the base URL is not absolute.
var ErrInvalidBase = errors.New("sitemap: base URL must be absolute")

// DefaultMaxURLs caps the URLs returned by one Discover call.
const DefaultMaxURLs = 5000

// Common sitemap locations, tried in order before robots.txt.
var defaultPaths = []string{
	"/sitemap.xml",
	"/sitemap_index.xml",
	"/sitemap-index.xml",
	"/docs/sitemap.xml",
}

// Finder reads sitemaps and sitemap indexes.
type Finder struct {
	client   Getter
	logger   *logger.Logger
	maxDepth int
	maxURLs  int
}

// urlSet is a sitemap.
type urlSet struct {
	XMLName xml.Name `xml:"urlset"`
	URLs    []struct {
		Loc string `xml:"loc"`
	} `xml:"url"`
}

// index is a sitemap index.
type index struct {
	XMLName  xml.Name `xml:"sitemapindex"`
	Sitemaps []struct {
		Loc string `xml:"loc"`
	} `xml:"sitemap"`
}

// New creates a finder. maxURLs <= 0 means DefaultMaxURLs.
func New(client Getter, maxURLs int, log *logger.Logger) *Finder {
	if maxURLs <= 0 {
		maxURLs = DefaultMaxURLs
	}
	return &Finder{
		client:   client,
		logger:   logger.OrNop(log).WithComponent("sitemap"),
		maxDepth: 3,
		maxURLs:  maxURLs,
	}
}

// Discover returns the page URLs the sitemaps of baseURL's host list, in
// sitemap order, deduplicated by normalized URL. Only URLs on the same
// host are returned. Missing or malformed sitemaps are skipped; the only
// error returned is a bad baseURL or ctx's.
func (f *Finder) Discover(ctx context.Context, baseURL string) ([]string, error) {
	base, err := url.Parse(baseURL)
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBase, baseURL)
	}
	root := base.Scheme + "://" + base.Host

	w := &walk{
		finder:  f,
		host:    base.Hostname(),
		visited: make(map[string]bool),
		seen:    make(map[string]bool),
	}

	for _, path := range defaultPaths {
		w.read(ctx, root+path, 0)
	}
	for _, loc := range f.robotsSitemaps(ctx, root+"/robots.txt") {
		w.read(ctx, loc, 0)
	}

	if err := ctx.Err(); err != nil {
		return w.urls, err
	}
	f.logger.Debugf("Found %d sitemap URLs for %s", len(w.urls), base.Host)
	return w.urls, nil
}

// walk is the state of one Discover call.
type walk struct {
	finder  *Finder
	host    string
	visited map[string]bool
	seen    map[string]bool
	urls    []string
}

func (w *walk) full() bool {
	return len(w.urls) >= w.finder.maxURLs
}

// read fetches one sitemap or index and collects its URLs.
func (w *walk) read(ctx context.Context, sitemapURL string, depth int) {
	if depth > w.finder.maxDepth || w.visited[sitemapURL] || w.full() || ctx.Err() != nil {
		return
	}
	w.visited[sitemapURL] = true

	body, err := w.finder.client.GetFile(ctx, sitemapURL)
	if err != nil {
		w.finder.logger.WithURL(sitemapURL).Debugf("No sitemap: %v", err)
		return
	}

	var idx index
	if err := xml.Unmarshal(body, &idx); err == nil && len(idx.Sitemaps) > 0 {
		for _, entry := range idx.Sitemaps {
			w.read(ctx, strings.TrimSpace(entry.Loc), depth+1)
		}
		return
	}

	var set urlSet
	if err := xml.Unmarshal(body, &set); err != nil {
		w.finder.logger.WithURL(sitemapURL).Debugf("Malformed sitemap: %v", err)
		return
	}
	for _, u := range set.URLs {
		w.add(strings.TrimSpace(u.Loc))
	}
}

func (w *walk) add(loc string) {
	if loc == "" || w.full() {
		return
	}
	u, err := url.Parse(loc)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() != w.host {
		return
	}
	key := state.Normalize(loc)
	if w.seen[key] {
		return
	}
	w.seen[key] = true
	w.urls = append(w.urls, loc)
}

// robotsSitemaps returns the Sitemap: entries of a robots.txt.
func (f *Finder) robotsSitemaps(ctx context.Context, robotsURL string) []string {
	body, err := f.client.GetFile(ctx, robotsURL)
	if err != nil {
		return nil
	}
	return parseRobots(body)
}

func parseRobots(body []byte) []string {
	var sitemaps []string
	scanner := bufio.NewScanner(bytes.NewReader(body))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if len(line) < 8 || !strings.EqualFold(line[:8], "sitemap:") {
			continue
		}
		if loc := strings.TrimSpace(line[8:]); loc != "" {
			sitemaps = append(sitemaps, loc)
		}
	}
	return sitemaps
}
