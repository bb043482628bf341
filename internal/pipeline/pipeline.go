// Package pipeline runs the two-stage workflow for a registered site:
// discovery of its pages, then indexing of the approved ones.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/docs-hound/docshound/internal/docstore"
	"github.com/docs-hound/docshound/internal/extract"
	"github.com/docs-hound/docshound/internal/logger"
	"github.com/docs-hound/docshound/internal/metrics"
	"github.com/docs-hound/docshound/internal/registry"
	"github.com/docs-hound/docshound/internal/scope"
	"github.com/docs-hound/docshound/pkg/crawler"
)

// MinContentLength is the shortest extracted content that gets indexed.
const MinContentLength = 50

var (
	// ErrNoURLs is returned by Index when there is nothing to index.
	ErrNoURLs = errors.New("no URLs to index")
	// ErrNoStore is returned when the pipeline has no document store.
	ErrNoStore = errors.New("pipeline: document store is required")
	// ErrNoRegistry is returned when the pipeline has no site registry.
	ErrNoRegistry = errors.New("pipeline: site registry is required")
)

// SiteRegistry is the registry view the pipeline needs.
type SiteRegistry interface {
	GetSite(ctx context.Context, domain string) (*registry.Site, error)
	UpdateStatus(ctx context.Context, domain string, status registry.Status, errorMessage string) error
	SetDiscoveredURLs(ctx context.Context, domain string, urls []string) error
	DiscoveredURLs(ctx context.Context, domain string) ([]string, error)
	SetIndexedPages(ctx context.Context, domain string, urls []string) error
}

// Extractor turns a fetched page into an article.
type Extractor interface {
	Extract(pageURL, html string) (*extract.Article, error)
}

// SitemapFinder lists the page URLs of a site's sitemaps.
type SitemapFinder interface {
	Discover(ctx context.Context, baseURL string) ([]string, error)
}

// Config wires the pipeline's collaborators.
type Config struct {
	Registry  SiteRegistry
	Store     docstore.Store
	Extractor Extractor
	Logger    *logger.Logger
	Metrics   *metrics.Collector

	// Sitemaps, when set, adds the URLs listed in the site's sitemaps to
	// the discovery seeds.
	Sitemaps SitemapFinder

	// CrawlOptions are appended to every crawler the pipeline creates,
	// after the stage's own configuration.
	CrawlOptions []crawler.Option

	// ExtractWorkers bounds concurrent extraction. Zero means GOMAXPROCS.
	ExtractWorkers int
}

// Pipeline triggers discovery, indexing and search. Each stage creates its
// own crawler, so stages for different sites may run concurrently.
type Pipeline struct {
	registry       SiteRegistry
	store          docstore.Store
	extractor      Extractor
	baseLogger     *logger.Logger
	logger         *logger.Logger
	metrics        *metrics.Collector
	sitemaps       SitemapFinder
	crawlOptions   []crawler.Option
	extractWorkers int
	now            func() time.Time
}

// DiscoverResult summarizes a discovery run.
type DiscoverResult struct {
	Domain   string             `json:"domain"`
	URLs     []string           `json:"urls"`
	HitLimit bool               `json:"hit_limit"`
	Stats    crawler.CrawlStats `json:"stats"`
}

// IndexResult summarizes an indexing run.
type IndexResult struct {
	Domain    string   `json:"domain"`
	Requested int      `json:"requested"`
	Crawled   int      `json:"crawled"`
	Indexed   int      `json:"indexed"`
	Skipped   int      `json:"skipped"`
	URLs      []string `json:"urls"`
}

// New creates a pipeline.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Registry == nil {
		return nil, ErrNoRegistry
	}
	if cfg.Store == nil {
		return nil, ErrNoStore
	}

	log := logger.OrNop(cfg.Logger)
	p := &Pipeline{
		registry:       cfg.Registry,
		store:          cfg.Store,
		extractor:      cfg.Extractor,
		baseLogger:     log,
		logger:         log.WithComponent("pipeline"),
		metrics:        cfg.Metrics,
		sitemaps:       cfg.Sitemaps,
		crawlOptions:   cfg.CrawlOptions,
		extractWorkers: cfg.ExtractWorkers,
		now:            func() time.Time { return time.Now().UTC() },
	}
	if p.extractor == nil {
		p.extractor = extract.New(log)
	}
	if p.metrics == nil {
		p.metrics = metrics.New()
	}
	if p.extractWorkers <= 0 {
		p.extractWorkers = runtime.GOMAXPROCS(0)
	}
	return p, nil
}

// Metrics returns the collector shared by every crawl the pipeline runs.
func (p *Pipeline) Metrics() *metrics.Collector {
	return p.metrics
}

// Discover crawls the site from its base URL in discovery mode and stores
// the URLs found, filtered by the site's include patterns, for review.
func (p *Pipeline) Discover(ctx context.Context, domain string) (*DiscoverResult, error) {
	site, err := p.registry.GetSite(ctx, domain)
	if err != nil {
		return nil, err
	}

	log := p.logger.WithDomain(domain)
	if err := p.registry.UpdateStatus(ctx, domain, registry.StatusDiscovering, ""); err != nil {
		return nil, err
	}
	log.Infof("Starting discovery from %s", site.BaseURL)

	res, err := p.discover(ctx, site)
	if err != nil {
		return nil, p.fail(ctx, domain, "discovery", err)
	}

	if res.HitLimit {
		log.Warnf("Hit %d page limit", crawler.DiscoveryLimit)
	}
	log.Infof("Discovery complete: %d URLs", len(res.URLs))
	return res, nil
}

func (p *Pipeline) discover(ctx context.Context, site *registry.Site) (*DiscoverResult, error) {
	cfg := crawler.DiscoveryConfig(site.Domain)
	cfg.IncludePatterns = site.URLFilters.IncludePatterns
	cfg.ExcludePatterns = site.URLFilters.ExcludePatterns

	filter, err := scope.NewChecker(scope.Rules{
		IncludePatterns: site.URLFilters.IncludePatterns,
		ExcludePatterns: site.URLFilters.ExcludePatterns,
	}, nil)
	if err != nil {
		return nil, err
	}

	seeds, err := p.seeds(ctx, site, filter)
	if err != nil {
		return nil, err
	}

	c, err := p.newCrawler(cfg)
	if err != nil {
		return nil, err
	}

	results, err := c.Discover(ctx, seeds)
	if err != nil {
		return nil, err
	}

	urls := make([]string, 0, len(results))
	for _, r := range results {
		urls = append(urls, r.URL)
	}
	urls = filter.FilterIncluded(urls)

	if err := p.registry.SetDiscoveredURLs(ctx, site.Domain, urls); err != nil {
		return nil, err
	}
	if err := p.registry.UpdateStatus(ctx, site.Domain, registry.StatusDiscovered, ""); err != nil {
		return nil, err
	}

	return &DiscoverResult{
		Domain:   site.Domain,
		URLs:     urls,
		HitLimit: c.DidHitLimit(),
		Stats:    c.Stats(),
	}, nil
}

// seeds returns the base URL followed by the site's sitemap URLs that no
// exclude pattern rejects. A missing sitemap is not an error.
func (p *Pipeline) seeds(ctx context.Context, site *registry.Site, filter *scope.Checker) ([]string, error) {
	seeds := []string{site.BaseURL}
	if p.sitemaps == nil {
		return seeds, nil
	}

	listed, err := p.sitemaps.Discover(ctx, site.BaseURL)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		p.logger.WithDomain(site.Domain).WithError(err).Warn("Sitemap lookup failed")
	}
	for _, u := range listed {
		if !filter.Excluded(u) {
			seeds = append(seeds, u)
		}
	}
	p.logger.WithDomain(site.Domain).Debugf("Seeding discovery with %d sitemap URLs", len(seeds)-1)
	return seeds, nil
}

// Index replaces the site's documents with the content of urls. With no
// urls it indexes the stored discovered set.
func (p *Pipeline) Index(ctx context.Context, domain string, urls []string) (*IndexResult, error) {
	if _, err := p.registry.GetSite(ctx, domain); err != nil {
		return nil, err
	}

	if len(urls) == 0 {
		stored, err := p.registry.DiscoveredURLs(ctx, domain)
		if err != nil {
			return nil, err
		}
		urls = stored
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("%s: %w", domain, ErrNoURLs)
	}

	log := p.logger.WithDomain(domain)
	if err := p.registry.UpdateStatus(ctx, domain, registry.StatusIndexing, ""); err != nil {
		return nil, err
	}
	log.Infof("Starting indexing of %d pages", len(urls))

	res, err := p.index(ctx, domain, urls)
	if err != nil {
		return nil, p.fail(ctx, domain, "indexing", err)
	}

	log.Infof("Indexing complete: %d pages indexed, %d skipped", res.Indexed, res.Skipped)
	return res, nil
}

func (p *Pipeline) index(ctx context.Context, domain string, urls []string) (*IndexResult, error) {
	if _, err := p.store.DeleteBySource(ctx, domain); err != nil {
		return nil, fmt.Errorf("clear documents: %w", err)
	}

	c, err := p.newCrawler(crawler.IndexConfig(domain, len(urls)))
	if err != nil {
		return nil, err
	}

	results, err := c.Crawl(ctx, urls)
	if err != nil {
		return nil, err
	}
	p.logger.WithDomain(domain).Infof("Crawled %d pages", len(results))

	docs := p.extractAll(ctx, domain, results)

	if len(docs) > 0 {
		if err := p.store.Upsert(ctx, docs, domain); err != nil {
			return nil, fmt.Errorf("store documents: %w", err)
		}
		p.metrics.RecordPagesStored(len(docs))
	}

	indexed := make([]string, 0, len(docs))
	for _, d := range docs {
		indexed = append(indexed, d.URL)
	}
	if err := p.registry.SetIndexedPages(ctx, domain, indexed); err != nil {
		return nil, err
	}
	if err := p.registry.UpdateStatus(ctx, domain, registry.StatusIndexed, ""); err != nil {
		return nil, err
	}

	return &IndexResult{
		Domain:    domain,
		Requested: len(urls),
		Crawled:   len(results),
		Indexed:   len(docs),
		Skipped:   len(results) - len(docs),
		URLs:      indexed,
	}, nil
}

// extractAll extracts every crawled page, keeping crawl order. Pages that
// fail extraction or are too short are skipped.
func (p *Pipeline) extractAll(ctx context.Context, domain string, results []crawler.CrawlResult) []docstore.Document {
	articles := make([]*extract.Article, len(results))

	var g errgroup.Group
	g.SetLimit(p.extractWorkers)
	for i, r := range results {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			article, err := p.extractor.Extract(r.URL, r.HTML)
			if err != nil {
				p.logger.PageError(err, r.URL, "extract")
				return nil
			}
			if len(article.Content) <= MinContentLength {
				p.logger.WithURL(r.URL).Debug("Skipping page with no content")
				return nil
			}
			articles[i] = article
			return nil
		})
	}
	g.Wait()

	scrapedAt := p.now()
	docs := make([]docstore.Document, 0, len(results))
	for i, a := range articles {
		if a == nil {
			continue
		}
		docs = append(docs, docstore.Document{
			ID:        fmt.Sprintf("%s-%d", domain, len(docs)),
			URL:       results[i].URL,
			Title:     a.Title,
			Content:   a.Content,
			Excerpt:   a.Excerpt,
			Source:    domain,
			ScrapedAt: scrapedAt,
		})
	}
	return docs
}

// Search queries the document store. An empty source searches every site.
func (p *Pipeline) Search(ctx context.Context, query, source string, limit int) ([]docstore.SearchResult, error) {
	results, err := p.store.Search(ctx, query, source, limit)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return results, nil
}

func (p *Pipeline) newCrawler(cfg *crawler.Config) (*crawler.Crawler, error) {
	opts := []crawler.Option{
		crawler.WithConfig(cfg),
		crawler.WithLogger(p.baseLogger),
		crawler.WithMetrics(p.metrics),
	}
	return crawler.New(append(opts, p.crawlOptions...)...)
}

// fail records err on the site and returns it. The status write outlives
// ctx so an interrupted run is still marked as failed.
func (p *Pipeline) fail(ctx context.Context, domain, stage string, err error) error {
	p.logger.StageEvent(logger.ErrorLevel, domain, stage).Err(err).Msg("Stage failed")
	if uerr := p.registry.UpdateStatus(context.WithoutCancel(ctx), domain, registry.StatusError, err.Error()); uerr != nil {
		p.logger.StageEvent(logger.ErrorLevel, domain, stage).Err(uerr).Msg("Failed to record error status")
	}
	return fmt.Errorf("%s of %s: %w", stage, domain, err)
}
