package output

import (
	"time"

	"github.com/docs-hound/docshound/internal/metrics"
	"github.com/docs-hound/docshound/pkg/crawler"
)

// Report modes.
const (
	ModeCrawl    = "crawl"
	ModeDiscover = "discover"
)

// CrawlReport is the result of an ad-hoc crawl or discovery run.
type CrawlReport struct {
	Target      string             `json:"target"`
	Mode        string             `json:"mode"`
	StartedAt   time.Time          `json:"started_at"`
	CompletedAt time.Time          `json:"completed_at,omitempty"`
	Duration    time.Duration      `json:"duration"`
	Stats       crawler.CrawlStats `json:"stats"`
	Pages       []Page             `json:"pages"`
	Discovered  []string           `json:"discovered,omitempty"`
	Interrupted bool               `json:"interrupted,omitempty"`
	Metrics     *metrics.Snapshot  `json:"metrics,omitempty"`
}

// Page is one crawled page in a report.
type Page struct {
	URL   string `json:"url"`
	Depth int    `json:"depth"`
	Bytes int    `json:"bytes,omitempty"`
	HTML  string `json:"html,omitempty"`
}

// NewCrawlReport starts a report for target.
func NewCrawlReport(target, mode string, startedAt time.Time) *CrawlReport {
	return &CrawlReport{
		Target:    target,
		Mode:      mode,
		StartedAt: startedAt,
		Pages:     make([]Page, 0),
	}
}

// AddCrawlResults appends fetched pages. HTML is kept only when includeHTML is set.
func (r *CrawlReport) AddCrawlResults(results []crawler.CrawlResult, includeHTML bool) {
	for _, res := range results {
		p := Page{URL: res.URL, Depth: res.Depth, Bytes: len(res.HTML)}
		if includeHTML {
			p.HTML = res.HTML
		}
		r.Pages = append(r.Pages, p)
	}
}

// AddDiscoveryResults appends pages found in discovery mode.
func (r *CrawlReport) AddDiscoveryResults(results []crawler.DiscoveryResult) {
	for _, res := range results {
		r.Pages = append(r.Pages, Page{URL: res.URL, Depth: res.Depth})
	}
}

// Complete stamps the end of the run and attaches its statistics.
func (r *CrawlReport) Complete(completedAt time.Time, stats crawler.CrawlStats, discovered []string, snap *metrics.Snapshot) {
	r.CompletedAt = completedAt
	r.Duration = completedAt.Sub(r.StartedAt)
	r.Stats = stats
	r.Discovered = discovered
	r.Metrics = snap
}

// StreamEvent wraps a value written in streaming mode.
type StreamEvent struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}
