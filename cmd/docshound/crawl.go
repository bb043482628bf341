package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/docs-hound/docshound/internal/output"
	"github.com/docs-hound/docshound/internal/progress"
	"github.com/docs-hound/docshound/internal/scope"
	"github.com/docs-hound/docshound/pkg/crawler"
)

// crawlFlags are the ad-hoc crawl settings; set flags override the
// config file.
type crawlFlags struct {
	discover        bool
	maxDepth        int
	maxPages        int
	concurrency     int
	delay           time.Duration
	timeout         time.Duration
	userAgent       string
	allowedDomains  []string
	includePatterns []string
	excludePatterns []string
	includeHTML     bool
}

func newCrawlCmd() *cobra.Command {
	var f crawlFlags

	cmd := &cobra.Command{
		Use:   "crawl [url...]",
		Short: "Crawl URLs without registering a site",
		Long: `Crawl from the given seed URLs and report the pages found. The first
seed is the base URL; links to other hosts are not followed.

With --discover only URLs are collected, and the page cap is limited to
1000.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, false, func(a *app) error {
				return runCrawl(cmd, a, &f, args)
			})
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&f.discover, "discover", false, "Collect URLs only")
	flags.IntVarP(&f.maxDepth, "max-depth", "d", 3, "Maximum link depth")
	flags.IntVarP(&f.maxPages, "max-pages", "m", crawler.DiscoveryLimit, "Maximum pages visited")
	flags.IntVarP(&f.concurrency, "concurrency", "w", 5, "Concurrent requests")
	flags.DurationVar(&f.delay, "delay", 500*time.Millisecond, "Minimum spacing between requests")
	flags.DurationVarP(&f.timeout, "timeout", "t", 30*time.Second, "Request timeout")
	flags.StringVar(&f.userAgent, "user-agent", "", "User-Agent header")
	flags.StringArrayVar(&f.allowedDomains, "allow-domain", nil, "Hostname that may be crawled (repeatable)")
	flags.StringArrayVar(&f.includePatterns, "include", nil, "URL patterns to keep in the report (regex)")
	flags.StringArrayVar(&f.excludePatterns, "exclude", nil, "URL patterns to skip (regex)")
	flags.BoolVar(&f.includeHTML, "html", false, "Include page HTML in the report")

	return cmd
}

// crawlConfig merges the flags that were set into base.
func crawlConfig(cmd *cobra.Command, base *crawler.Config, f *crawlFlags) (*crawler.Config, error) {
	config := base.Clone()
	flags := cmd.Flags()

	if flags.Changed("discover") {
		config.DiscoveryMode = f.discover
	}
	if flags.Changed("max-depth") {
		config.MaxDepth = f.maxDepth
	}
	if flags.Changed("max-pages") {
		config.MaxPages = f.maxPages
	}
	if flags.Changed("concurrency") {
		config.Concurrency = f.concurrency
	}
	if flags.Changed("delay") {
		config.Delay = f.delay
	}
	if flags.Changed("timeout") {
		config.Timeout = f.timeout
	}
	if flags.Changed("user-agent") {
		config.UserAgent = f.userAgent
	}
	if flags.Changed("allow-domain") {
		config.AllowedDomains = f.allowedDomains
	}
	if flags.Changed("include") {
		config.IncludePatterns = f.includePatterns
	}
	if flags.Changed("exclude") {
		config.ExcludePatterns = f.excludePatterns
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid crawl settings: %w", err)
	}
	return config, nil
}

func runCrawl(cmd *cobra.Command, a *app, f *crawlFlags, seeds []string) error {
	config, err := crawlConfig(cmd, a.config.Crawl, f)
	if err != nil {
		return err
	}

	m := a.metrics
	opts := []crawler.Option{
		crawler.WithConfig(config),
		crawler.WithLogger(a.log),
		crawler.WithMetrics(m),
	}
	var display *progress.Display
	if showProgress {
		display = progress.New(os.Stderr)
		opts = append(opts, crawler.WithProgress(display))
	}

	c, err := crawler.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create crawler: %w", err)
	}

	mode := output.ModeCrawl
	if config.DiscoveryMode {
		mode = output.ModeDiscover
	}
	report := output.NewCrawlReport(seeds[0], mode, time.Now())

	// Include patterns select what is reported, not what is crawled.
	filter, err := scope.NewChecker(scope.Rules{IncludePatterns: config.IncludePatterns}, nil)
	if err != nil {
		return err
	}

	ctx := a.ctx()
	if config.DiscoveryMode {
		var results []crawler.DiscoveryResult
		results, err = c.Discover(ctx, seeds)
		report.AddDiscoveryResults(filterDiscovery(filter, results))
	} else {
		var results []crawler.CrawlResult
		results, err = c.Crawl(ctx, seeds)
		report.AddCrawlResults(filterCrawl(filter, results), f.includeHTML)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("crawl failed: %w", err)
	}
	report.Interrupted = a.shutdown.Interrupted()

	report.Complete(time.Now(), c.Stats(), c.DiscoveredURLs(), m.Snapshot())
	if display != nil {
		display.PrintSummary(os.Stderr)
	}
	for i := range report.Pages {
		if err := a.out.WritePage(&report.Pages[i]); err != nil {
			return err
		}
	}
	return a.out.WriteReport(report)
}

// filterDiscovery keeps the results matching the include patterns.
func filterDiscovery(filter *scope.Checker, results []crawler.DiscoveryResult) []crawler.DiscoveryResult {
	kept := results[:0]
	for _, r := range results {
		if filter.Included(r.URL) {
			kept = append(kept, r)
		}
	}
	return kept
}

func filterCrawl(filter *scope.Checker, results []crawler.CrawlResult) []crawler.CrawlResult {
	kept := results[:0]
	for _, r := range results {
		if filter.Included(r.URL) {
			kept = append(kept, r)
		}
	}
	return kept
}
