// Package crawler provides the bounded, depth-limited, host-scoped crawler
// behind the discovery and indexing pipelines.
package crawler

import "errors"

var (
	// ErrAlreadyRunning is returned when a run starts while another is active.
	ErrAlreadyRunning = errors.New("crawler is already running")
	// ErrNoSeeds is returned when a run is started without seed URLs.
	ErrNoSeeds = errors.New("at least one seed URL is required")
)

// CrawlResult is a fetched page. URL is the normalized form.
type CrawlResult struct {
	URL   string `json:"url"`
	HTML  string `json:"html"`
	Depth int    `json:"depth"`
}

// DiscoveryResult is a page found in discovery mode. URL is the normalized form.
type DiscoveryResult struct {
	URL   string `json:"url"`
	Depth int    `json:"depth"`
}

// CrawlStats is a snapshot of the current or most recent run.
type CrawlStats struct {
	PagesVisited int  `json:"pages_visited"`
	PagesCrawled int  `json:"pages_crawled"`
	QueueSize    int  `json:"queue_size"`
	Pending      int  `json:"pending"`
	Discovered   int  `json:"discovered"`
	HitLimit     bool `json:"hit_limit"`
	MaxPages     int  `json:"max_pages"`
	// Dispatched and Dropped count queue tasks started and discarded on close.
	Dispatched int64 `json:"dispatched"`
	Dropped    int64 `json:"dropped"`
}

// Map returns the stats as log fields.
func (s CrawlStats) Map() map[string]interface{} {
	return map[string]interface{}{
		"pages_visited": s.PagesVisited,
		"pages_crawled": s.PagesCrawled,
		"queue_size":    s.QueueSize,
		"pending":       s.Pending,
		"discovered":    s.Discovered,
		"hit_limit":     s.HitLimit,
		"max_pages":     s.MaxPages,
		"dispatched":    s.Dispatched,
		"dropped":       s.Dropped,
	}
}
