package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/docs-hound/docshound/internal/docstore"
	"github.com/docs-hound/docshound/internal/extract"
	"github.com/docs-hound/docshound/internal/fetch"
	"github.com/docs-hound/docshound/internal/registry"
	"github.com/docs-hound/docshound/pkg/crawler"
)

const longText = "This page explains the feature in enough detail to be worth indexing for search."

// docsSite serves a small documentation site and counts requests per path.
type docsSite struct {
	server *httptest.Server
	mu     sync.Mutex
	hits   map[string]int
}

func newDocsSite(t *testing.T) *docsSite {
	t.Helper()
	pages := map[string]string{
		"/": `<html><body><nav>
			<a href="/guide">Guide</a> <a href="/api">API</a> <a href="/blog/post">Blog</a>
			<a href="https://elsewhere.example.org/">Elsewhere</a>
			</nav><main><p>Welcome</p></main></body></html>`,
		"/guide":          `<html><body><main><h1>Guide</h1><p>` + longText + `</p><a href="/guide/advanced">Advanced</a></main></body></html>`,
		"/guide/advanced": `<html><body><main><h1>Advanced configuration</h1><p>Advanced configuration of crawl depth. ` + longText + `</p></main></body></html>`,
		"/api":            `<html><body><main><p>Short.</p></main></body></html>`,
		"/blog/post":      `<html><body><article><h1>Release notes</h1><p>` + longText + `</p></article></body></html>`,
		"/orphan":         `<html><body><main><h1>Unlinked</h1><p>` + longText + `</p></main></body></html>`,
	}

	s := &docsSite{hits: make(map[string]int)}
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.URL.Path]++
		s.mu.Unlock()

		body, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(s.server.Close)
	return s
}

func (s *docsSite) url(path string) string {
	return s.server.URL + path
}

func (s *docsSite) hitCount(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

type fixture struct {
	site     *docsSite
	registry *registry.Registry
	store    *docstore.MemoryStore
	pipeline *Pipeline
	domain   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	site := newDocsSite(t)
	reg := registry.NewMemory(nil)
	store := docstore.NewMemoryStore()

	p, err := New(Config{
		Registry:     reg,
		Store:        store,
		CrawlOptions: []crawler.Option{crawler.WithDelay(0)},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	added, err := reg.AddSite(context.Background(), site.url("/"), "Docs", "")
	if err != nil {
		t.Fatalf("AddSite() error = %v", err)
	}

	return &fixture{site: site, registry: reg, store: store, pipeline: p, domain: added.Domain}
}

func (f *fixture) status(t *testing.T) *registry.Site {
	t.Helper()
	site, err := f.registry.GetSite(context.Background(), f.domain)
	if err != nil {
		t.Fatal(err)
	}
	return site
}

func sorted(urls []string) []string {
	out := append([]string(nil), urls...)
	sort.Strings(out)
	return out
}

func TestNew_RequiresCollaborators(t *testing.T) {
	if _, err := New(Config{Store: docstore.NewMemoryStore()}); !errors.Is(err, ErrNoRegistry) {
		t.Errorf("New() without registry error = %v", err)
	}
	if _, err := New(Config{Registry: registry.NewMemory(nil)}); !errors.Is(err, ErrNoStore) {
		t.Errorf("New() without store error = %v", err)
	}
}

func TestDiscover(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.pipeline.Discover(ctx, f.domain)
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}

	want := sorted([]string{
		f.site.url("/"),
		f.site.url("/api"),
		f.site.url("/blog/post"),
		f.site.url("/guide"),
		f.site.url("/guide/advanced"),
	})
	got := sorted(res.URLs)
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("URLs = %v, want %v", got, want)
	}
	if res.HitLimit {
		t.Error("HitLimit should be false")
	}

	site := f.status(t)
	if site.Status != registry.StatusDiscovered {
		t.Errorf("Status = %s, want discovered", site.Status)
	}
	if site.DiscoveredCount != 5 || site.LastDiscoveredAt == nil {
		t.Errorf("DiscoveredCount = %d, LastDiscoveredAt = %v", site.DiscoveredCount, site.LastDiscoveredAt)
	}

	stored, _ := f.registry.DiscoveredURLs(ctx, f.domain)
	if len(stored) != 5 {
		t.Errorf("stored %d URLs, want 5", len(stored))
	}
}

func TestDiscover_AppliesSiteFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.registry.SetURLFilters(ctx, f.domain, registry.URLFilters{
		IncludePatterns: []string{"/guide"},
		ExcludePatterns: []string{"/blog/"},
	})
	if err != nil {
		t.Fatal(err)
	}

	res, err := f.pipeline.Discover(ctx, f.domain)
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}

	want := sorted([]string{f.site.url("/guide"), f.site.url("/guide/advanced")})
	if got := sorted(res.URLs); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("URLs = %v, want %v", got, want)
	}
	if f.site.hitCount("/blog/post") != 0 {
		t.Error("excluded page was fetched")
	}
	if f.site.hitCount("/api") != 1 {
		t.Error("include patterns must not restrict crawling")
	}
}

type stubSitemaps struct {
	urls []string
	err  error
}

func (s stubSitemaps) Discover(ctx context.Context, baseURL string) ([]string, error) {
	return s.urls, s.err
}

func TestDiscover_SitemapSeeds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registry.SetURLFilters(ctx, f.domain, registry.URLFilters{ExcludePatterns: []string{"/blog/"}})
	f.pipeline.sitemaps = stubSitemaps{urls: []string{
		f.site.url("/orphan"),
		f.site.url("/blog/post"),
		f.site.url("/guide"),
	}}

	res, err := f.pipeline.Discover(ctx, f.domain)
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}

	want := sorted([]string{
		f.site.url("/"),
		f.site.url("/api"),
		f.site.url("/guide"),
		f.site.url("/guide/advanced"),
		f.site.url("/orphan"),
	})
	if got := sorted(res.URLs); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("URLs = %v, want %v", got, want)
	}
	if f.site.hitCount("/blog/post") != 0 {
		t.Error("excluded sitemap URL was fetched")
	}
	if f.site.hitCount("/guide") != 1 {
		t.Errorf("/guide fetched %d times, want 1", f.site.hitCount("/guide"))
	}
}

func TestDiscover_SitemapFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.pipeline.sitemaps = stubSitemaps{err: errors.New("robots.txt unreachable")}

	res, err := f.pipeline.Discover(context.Background(), f.domain)
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(res.URLs) != 5 {
		t.Errorf("URLs = %v, want the 5 linked pages", res.URLs)
	}
}

func TestDiscover_UnknownSite(t *testing.T) {
	f := newFixture(t)
	if _, err := f.pipeline.Discover(context.Background(), "missing.example.com"); !errors.Is(err, registry.ErrSiteNotFound) {
		t.Errorf("Discover() error = %v, want ErrSiteNotFound", err)
	}
}

// failingRegistry fails to persist discovered URLs.
type failingRegistry struct {
	*registry.Registry
}

func (r failingRegistry) SetDiscoveredURLs(context.Context, string, []string) error {
	return errors.New("disk full")
}

func TestDiscover_FailureSetsErrorStatus(t *testing.T) {
	f := newFixture(t)
	p, err := New(Config{
		Registry:     failingRegistry{f.registry},
		Store:        f.store,
		CrawlOptions: []crawler.Option{crawler.WithDelay(0)},
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := p.Discover(context.Background(), f.domain); err == nil {
		t.Fatal("Discover() should fail")
	}

	site := f.status(t)
	if site.Status != registry.StatusError {
		t.Errorf("Status = %s, want error", site.Status)
	}
	if !strings.Contains(site.ErrorMessage, "disk full") {
		t.Errorf("ErrorMessage = %q", site.ErrorMessage)
	}
}

func TestIndex_DiscoveredSet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stale := docstore.Document{URL: f.site.url("/removed"), Title: "Stale", Content: "stale page content"}
	if err := f.store.Upsert(ctx, []docstore.Document{stale}, f.domain); err != nil {
		t.Fatal(err)
	}

	if _, err := f.pipeline.Discover(ctx, f.domain); err != nil {
		t.Fatal(err)
	}

	res, err := f.pipeline.Index(ctx, f.domain, nil)
	if err != nil {
		t.Fatalf("Index() error = %v", err)
	}
	if res.Requested != 5 || res.Crawled != 5 {
		t.Errorf("Requested/Crawled = %d/%d, want 5/5", res.Requested, res.Crawled)
	}
	if res.Indexed != 3 || res.Skipped != 2 {
		t.Errorf("Indexed/Skipped = %d/%d, want 3/2", res.Indexed, res.Skipped)
	}

	site := f.status(t)
	if site.Status != registry.StatusIndexed || site.PageCount != 3 || site.LastIndexedAt == nil {
		t.Errorf("site after index = %+v", site)
	}
	pages, _ := f.registry.IndexedPages(ctx, f.domain)
	if len(pages) != 3 {
		t.Errorf("IndexedPages() = %v", pages)
	}

	stats, _ := f.store.Stats(ctx)
	if stats.TotalDocuments != 3 {
		t.Errorf("TotalDocuments = %d, want 3 (stale document removed)", stats.TotalDocuments)
	}
	if got := f.pipeline.Metrics().Snapshot().PagesStored; got != 3 {
		t.Errorf("PagesStored = %d, want 3", got)
	}

	results, err := f.pipeline.Search(ctx, "advanced configuration", f.domain, 5)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) == 0 || results[0].Document.URL != f.site.url("/guide/advanced") {
		t.Errorf("Search() top result = %+v", results)
	}
	if results[0].Document.Source != f.domain || results[0].Document.Title != "Advanced configuration" {
		t.Errorf("document = %+v", results[0].Document)
	}
}

func TestIndex_ExplicitURLsDoNotFollowLinks(t *testing.T) {
	f := newFixture(t)

	res, err := f.pipeline.Index(context.Background(), f.domain, []string{f.site.url("/guide")})
	if err != nil {
		t.Fatalf("Index() error = %v", err)
	}
	if res.Indexed != 1 {
		t.Errorf("Indexed = %d, want 1", res.Indexed)
	}
	if f.site.hitCount("/guide/advanced") != 0 {
		t.Error("index run followed links")
	}
}

func TestIndex_NoURLs(t *testing.T) {
	f := newFixture(t)

	_, err := f.pipeline.Index(context.Background(), f.domain, nil)
	if !errors.Is(err, ErrNoURLs) {
		t.Fatalf("Index() error = %v, want ErrNoURLs", err)
	}
	if site := f.status(t); site.Status != registry.StatusPending {
		t.Errorf("Status = %s, want unchanged pending", site.Status)
	}
}

type brokenExtractor struct{}

func (brokenExtractor) Extract(string, string) (*extract.Article, error) {
	return nil, extract.ErrNoContent
}

func TestIndex_ExtractionFailuresAreSkipped(t *testing.T) {
	f := newFixture(t)
	p, err := New(Config{
		Registry:     f.registry,
		Store:        f.store,
		Extractor:    brokenExtractor{},
		CrawlOptions: []crawler.Option{crawler.WithDelay(0)},
	})
	if err != nil {
		t.Fatal(err)
	}

	res, err := p.Index(context.Background(), f.domain, []string{f.site.url("/guide"), f.site.url("/blog/post")})
	if err != nil {
		t.Fatalf("Index() error = %v", err)
	}
	if res.Indexed != 0 || res.Skipped != 2 {
		t.Errorf("Indexed/Skipped = %d/%d, want 0/2", res.Indexed, res.Skipped)
	}
	if site := f.status(t); site.Status != registry.StatusIndexed || site.PageCount != 0 {
		t.Errorf("site = %+v", site)
	}
}

func TestIndex_CancelledSetsErrorStatus(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	p, err := New(Config{
		Registry: f.registry,
		Store:    f.store,
		CrawlOptions: []crawler.Option{
			crawler.WithDelay(0),
			crawler.WithFetcher(cancellingFetcher{cancel: cancel}),
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := p.Index(ctx, f.domain, []string{f.site.url("/guide")}); err == nil {
		t.Fatal("Index() should fail when cancelled")
	}
	if site := f.status(t); site.Status != registry.StatusError {
		t.Errorf("Status = %s, want error", site.Status)
	}
}

// cancellingFetcher cancels the run on its first request.
type cancellingFetcher struct {
	cancel context.CancelFunc
}

func (f cancellingFetcher) Get(ctx context.Context, url string) (*fetch.Page, error) {
	f.cancel()
	<-ctx.Done()
	return nil, ctx.Err()
}
