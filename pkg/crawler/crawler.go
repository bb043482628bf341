package crawler

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/docs-hound/docshound/internal/errors"
	"github.com/docs-hound/docshound/internal/fetch"
	"github.com/docs-hound/docshound/internal/logger"
	"github.com/docs-hound/docshound/internal/metrics"
	"github.com/docs-hound/docshound/internal/parser"
	"github.com/docs-hound/docshound/internal/progress"
	"github.com/docs-hound/docshound/internal/queue"
	"github.com/docs-hound/docshound/internal/scope"
	"github.com/docs-hound/docshound/internal/state"
)

// Fetcher retrieves a single HTML page.
type Fetcher interface {
	Get(ctx context.Context, url string) (*fetch.Page, error)
}

// Crawler runs breadth-first crawls bounded by depth, page cap and host.
// A Crawler runs one crawl at a time; each run starts from empty state.
type Crawler struct {
	config         *Config
	fetcher        Fetcher
	links          *parser.LinkParser
	frontier       *state.Frontier
	logger         *logger.Logger
	metrics        *metrics.Collector
	progress       *progress.Display
	statusInterval time.Duration

	running atomic.Bool

	mu               sync.Mutex
	maxPages         int
	queue            *queue.WorkQueue
	results          []CrawlResult
	discoveryResults []DiscoveryResult
	errorCount       int
}

// New creates a new crawler with the given options.
func New(opts ...Option) (*Crawler, error) {
	c := &Crawler{config: DefaultConfig()}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if err := c.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	c.logger = logger.OrNop(c.logger).WithComponent("crawler")
	if c.metrics == nil {
		c.metrics = metrics.New()
	}
	if c.fetcher == nil {
		c.fetcher = fetch.NewClient(fetch.Config{
			Timeout:     c.config.Timeout,
			UserAgent:   c.config.UserAgent,
			MaxBodySize: c.config.MaxBodySize,
			Logger:      c.logger,
			Metrics:     c.metrics,
		})
	}
	c.links = parser.NewLinkParser(c.logger)
	c.maxPages = c.config.EffectiveMaxPages()
	c.frontier = state.NewFrontier(c.maxPages)

	if c.config.DiscoveryMode && c.config.MaxPages > DiscoveryLimit {
		c.logger.Infof("Discovery mode: limiting max pages from %d to %d", c.config.MaxPages, DiscoveryLimit)
	}

	return c, nil
}

// Crawl fetches the seeds and follows links breadth-first until the queue
// is idle. The first seed sets the host every discovered link must share.
// Seeds are always fetched, whatever the admission rules say.
//
// In discovery mode the returned slice is empty; use Discover instead.
// If ctx is cancelled, tasks that have not started are dropped, running
// fetches are aborted and the pages gathered so far are returned with the
// context error.
func (c *Crawler) Crawl(ctx context.Context, seeds []string) ([]CrawlResult, error) {
	err := c.run(ctx, seeds, false)
	if stderrors.Is(err, ErrAlreadyRunning) || stderrors.Is(err, ErrNoSeeds) {
		return nil, err
	}

	c.mu.Lock()
	results := append([]CrawlResult(nil), c.results...)
	c.mu.Unlock()
	return results, err
}

// Discover runs a crawl in discovery mode and returns the pages reached.
// The page cap is clamped to DiscoveryLimit. Discovery mode stays on for
// later runs of this crawler.
func (c *Crawler) Discover(ctx context.Context, seeds []string) ([]DiscoveryResult, error) {
	err := c.run(ctx, seeds, true)
	if stderrors.Is(err, ErrAlreadyRunning) || stderrors.Is(err, ErrNoSeeds) {
		return nil, err
	}

	c.mu.Lock()
	results := append([]DiscoveryResult(nil), c.discoveryResults...)
	c.mu.Unlock()
	return results, err
}

// Stats returns statistics for the current or most recent run.
func (c *Crawler) Stats() CrawlStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := CrawlStats{
		PagesVisited: c.frontier.VisitedCount(),
		Discovered:   len(c.frontier.Discovered()),
		HitLimit:     c.frontier.HitLimit(),
		MaxPages:     c.maxPages,
	}
	if c.config.DiscoveryMode {
		stats.PagesCrawled = len(c.discoveryResults)
	} else {
		stats.PagesCrawled = len(c.results)
	}
	if c.queue != nil {
		qs := c.queue.Stats()
		stats.QueueSize = qs.Size
		stats.Pending = qs.Pending
		stats.Dispatched = qs.Dispatched
		stats.Dropped = qs.Dropped
	}
	return stats
}

// DidHitLimit reports whether the most recent run reached the page cap.
func (c *Crawler) DidHitLimit() bool {
	return c.frontier.HitLimit()
}

// DiscoveredURLs returns in-scope URLs found after the page cap was
// reached, in the order they were found. They are suitable seeds for a
// follow-up run.
func (c *Crawler) DiscoveredURLs() []string {
	return c.frontier.Discovered()
}

// Metrics returns the metrics collector.
func (c *Crawler) Metrics() *metrics.Collector {
	return c.metrics
}

// Config returns a copy of the configuration.
func (c *Crawler) Config() *Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.config.Clone()
}

// IsRunning reports whether a run is in progress.
func (c *Crawler) IsRunning() bool {
	return c.running.Load()
}

func (c *Crawler) run(ctx context.Context, seeds []string, discovery bool) error {
	if len(seeds) == 0 {
		return ErrNoSeeds
	}
	if !c.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer c.running.Store(false)

	c.mu.Lock()
	if discovery {
		c.config.DiscoveryMode = true
	}
	c.maxPages = c.config.EffectiveMaxPages()
	cfg := c.config.Clone()
	maxPages := c.maxPages
	c.mu.Unlock()

	checker, err := scope.NewChecker(scope.Rules{
		AllowedDomains:  cfg.AllowedDomains,
		ExcludePatterns: cfg.ExcludePatterns,
		IncludePatterns: cfg.IncludePatterns,
		MaxPages:        maxPages,
	}, c.frontier)
	if err != nil {
		return fmt.Errorf("invalid scope rules: %w", err)
	}

	q := queue.New(queue.Config{
		Concurrency: cfg.Concurrency,
		Interval:    cfg.Delay,
		Logger:      c.logger,
	})

	c.frontier.Reset()
	c.mu.Lock()
	c.results = nil
	c.discoveryResults = nil
	c.errorCount = 0
	c.queue = q
	c.mu.Unlock()

	c.logger.Event(logger.InfoLevel).
		Int("seeds", len(seeds)).
		Int("max_depth", cfg.MaxDepth).
		Int("max_pages", maxPages).
		Int("concurrency", cfg.Concurrency).
		Dur("delay", cfg.Delay).
		Bool("discovery_mode", cfg.DiscoveryMode).
		Msg("Starting crawl")

	r := &run{
		crawler:  c,
		config:   cfg,
		maxPages: maxPages,
		baseURL:  seeds[0],
		checker:  checker,
		queue:    q,
	}

	for _, seed := range seeds {
		c.frontier.TryQueue(state.Normalize(seed))
		if err := q.Add(r.task(seed, 0)); err != nil {
			return fmt.Errorf("failed to queue seed %s: %w", seed, err)
		}
	}

	if err := q.Start(ctx); err != nil {
		return fmt.Errorf("failed to start queue: %w", err)
	}
	defer q.Close()

	stopReporter := c.startReporter(seeds[0])
	// The queue drains on cancellation, so waiting without a deadline ends.
	err = q.OnIdle(context.Background())
	stopReporter()
	if err != nil {
		return fmt.Errorf("failed waiting for queue: %w", err)
	}

	stats := c.Stats()
	c.logger.StatsEvent("Crawl complete", stats.Map())

	if ctx.Err() != nil {
		return fmt.Errorf("crawl interrupted: %w", ctx.Err())
	}
	return nil
}

// run holds the per-run collaborators a fetch task needs.
type run struct {
	crawler  *Crawler
	config   *Config
	maxPages int
	baseURL  string
	checker  *scope.Checker
	queue    *queue.WorkQueue
}

func (r *run) task(rawURL string, depth int) queue.Task {
	return func(ctx context.Context) {
		r.crawlPage(ctx, rawURL, depth)
	}
}

// crawlPage fetches one page, records it and schedules its links.
func (r *run) crawlPage(ctx context.Context, rawURL string, depth int) {
	c := r.crawler
	normalized := state.Normalize(rawURL)
	log := c.logger.WithURL(rawURL).WithDepth(depth)

	c.frontier.Dequeue(normalized)

	switch c.frontier.Claim(normalized, r.maxPages) {
	case state.AlreadyVisited:
		log.Debug("Skipping, already visited")
		return
	case state.LimitReached:
		log.Debug("Skipping, page cap reached")
		return
	}

	log.Debugf("Crawling [%d/%d]", c.frontier.VisitedCount(), r.maxPages)

	page, err := c.fetcher.Get(ctx, rawURL)
	if err != nil {
		c.handleFetchError(log, rawURL, err)
		return
	}

	c.metrics.RecordPageCrawled()
	c.record(normalized, page.HTML, depth, r.config.DiscoveryMode)
	c.logger.PageEvent(logger.DebugLevel, rawURL, depth).
		Int("bytes", len(page.HTML)).
		Int("queue_size", r.queue.Size()).
		Int("pending", r.queue.Pending()).
		Msg("Page stored")

	if depth >= r.config.MaxDepth {
		return
	}
	if c.frontier.VisitedCount() >= r.maxPages {
		log.Debugf("Reached %d pages, skipping link extraction", r.maxPages)
		c.frontier.SetHitLimit()
		return
	}

	r.scheduleLinks(ctx, log, rawURL, page.HTML, depth)
}

func (r *run) scheduleLinks(ctx context.Context, log *logger.Logger, pageURL, html string, depth int) {
	c := r.crawler
	links := c.links.ExtractLinks(html, pageURL)
	c.metrics.RecordLinksFound(len(links))

	added, duplicates, overflow := 0, 0, 0
	for _, link := range links {
		if ctx.Err() != nil {
			return
		}
		normalized := state.Normalize(link)

		// Queued tasks count toward the cap; the running task is already visited.
		if c.frontier.VisitedCount()+r.queue.Size() >= r.maxPages {
			if r.checker.ShouldCrawl(link, r.baseURL) {
				c.frontier.AddDiscovered(normalized)
			}
			c.frontier.SetHitLimit()
			c.metrics.RecordOverflow()
			overflow++
			continue
		}

		switch r.checker.Rejection(link, r.baseURL) {
		case scope.ReasonNone:
			if !c.frontier.TryQueue(normalized) {
				continue
			}
			if err := r.queue.Add(r.task(link, depth+1)); err != nil {
				c.frontier.Dequeue(normalized)
				log.Debugf("Could not queue %s: %v", link, err)
				continue
			}
			added++
		case scope.ReasonSeen:
			if c.frontier.IsVisited(normalized) {
				c.metrics.RecordDuplicate()
				duplicates++
			}
		}
	}

	if added > 0 || overflow > 0 {
		log.Event(logger.DebugLevel).
			Int("links", len(links)).
			Int("added", added).
			Int("duplicates", duplicates).
			Int("overflow", overflow).
			Int("queue_size", r.queue.Size()).
			Msg("Scheduled links")
	}
}

func (c *Crawler) record(normalized, html string, depth int, discovery bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if discovery {
		c.discoveryResults = append(c.discoveryResults, DiscoveryResult{URL: normalized, Depth: depth})
		return
	}
	c.results = append(c.results, CrawlResult{URL: normalized, HTML: html, Depth: depth})
}

// handleFetchError logs a failed fetch. Failures never stop the run.
func (c *Crawler) handleFetchError(log *logger.Logger, rawURL string, err error) {
	c.mu.Lock()
	c.errorCount++
	c.mu.Unlock()

	switch errors.GetErrorType(err) {
	case errors.NotFound, errors.ClientError, errors.ServerError:
		log.Warnf("HTTP %d, skipping", errors.GetStatusCode(err))
	case errors.Content:
		log.Debug("Skipping non-HTML content")
	case errors.Cancelled:
		log.Debug("Fetch cancelled")
	default:
		log.PageError(err, rawURL, "fetch")
	}
}

// startReporter periodically publishes run statistics to the progress
// display, the metrics gauges and the log. It returns a stop function.
func (c *Crawler) startReporter(target string) func() {
	if c.progress == nil && c.statusInterval <= 0 {
		return func() {}
	}

	interval := c.statusInterval
	if interval <= 0 {
		interval = time.Second
	}
	if c.progress != nil {
		c.progress.Start(target)
	}

	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				c.report()
			}
		}
	}()

	return func() {
		close(done)
		<-finished
		c.report()
		if c.progress != nil {
			c.progress.Stop()
		}
	}
}

func (c *Crawler) report() {
	stats := c.Stats()
	c.mu.Lock()
	errorCount := c.errorCount
	c.mu.Unlock()

	c.metrics.SetQueueDepth(int64(stats.QueueSize))
	c.metrics.SetActiveWorkers(int64(stats.Pending))

	if c.progress != nil {
		c.progress.Update(progress.Stats{
			Visited:    stats.PagesVisited,
			Crawled:    stats.PagesCrawled,
			Discovered: stats.Discovered,
			Queued:     stats.QueueSize,
			Running:    stats.Pending,
			Errors:     errorCount,
			MaxPages:   stats.MaxPages,
		})
		return
	}
	c.logger.StatsEvent("Crawl progress", stats.Map())
}
