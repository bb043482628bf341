// Package metrics provides in-process metrics collection for crawl runs.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// histogramBuckets are the upper bounds, in milliseconds, of the response
// time histogram. The last bucket holds everything slower.
var histogramBuckets = [...]int64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

const bucketCount = len(histogramBuckets) + 1

// Collector collects and aggregates metrics.
type Collector struct {
	// Counters
	requestsTotal     atomic.Int64
	errorsTotal       atomic.Int64
	pagesCrawled      atomic.Int64
	pagesStored       atomic.Int64
	linksFound        atomic.Int64
	duplicatesSkipped atomic.Int64
	overflowURLs      atomic.Int64
	bytesTotal        atomic.Int64

	// Response time tracking
	responseTimesSum atomic.Int64
	responseTimesNum atomic.Int64

	// Gauges
	queueDepth    atomic.Int64
	activeWorkers atomic.Int64

	responseTimeBuckets [bucketCount]atomic.Int64

	errorCounts map[string]*atomic.Int64
	errorMu     sync.RWMutex

	statusCodes map[int]*atomic.Int64
	statusMu    sync.RWMutex

	startMu   sync.RWMutex
	startTime time.Time
}

// New creates a new metrics collector.
func New() *Collector {
	return &Collector{
		errorCounts: make(map[string]*atomic.Int64),
		statusCodes: make(map[int]*atomic.Int64),
		startTime:   time.Now(),
	}
}

// RecordRequest records an HTTP request.
func (c *Collector) RecordRequest() {
	c.requestsTotal.Add(1)
}

// RecordError records an error of the given type.
func (c *Collector) RecordError(errorType string) {
	c.errorsTotal.Add(1)

	c.errorMu.Lock()
	if c.errorCounts[errorType] == nil {
		c.errorCounts[errorType] = &atomic.Int64{}
	}
	c.errorCounts[errorType].Add(1)
	c.errorMu.Unlock()
}

// RecordResponseTime records a response time.
func (c *Collector) RecordResponseTime(d time.Duration) {
	ms := d.Milliseconds()
	c.responseTimesSum.Add(ms)
	c.responseTimesNum.Add(1)
	c.responseTimeBuckets[bucketFor(ms)].Add(1)
}

func bucketFor(ms int64) int {
	for i, upper := range histogramBuckets {
		if ms < upper {
			return i
		}
	}
	return bucketCount - 1
}

// RecordStatusCode records an HTTP status code.
func (c *Collector) RecordStatusCode(code int) {
	c.statusMu.Lock()
	if c.statusCodes[code] == nil {
		c.statusCodes[code] = &atomic.Int64{}
	}
	c.statusCodes[code].Add(1)
	c.statusMu.Unlock()
}

// RecordPageCrawled increments pages fetched successfully.
func (c *Collector) RecordPageCrawled() {
	c.pagesCrawled.Add(1)
}

// RecordPagesStored adds n to the count of documents written to the store.
func (c *Collector) RecordPagesStored(n int) {
	c.pagesStored.Add(int64(n))
}

// RecordLinksFound adds n extracted links.
func (c *Collector) RecordLinksFound(n int) {
	c.linksFound.Add(int64(n))
}

// RecordDuplicate increments links skipped because they were already visited.
func (c *Collector) RecordDuplicate() {
	c.duplicatesSkipped.Add(1)
}

// RecordOverflow increments links seen after the page cap was reached.
func (c *Collector) RecordOverflow() {
	c.overflowURLs.Add(1)
}

// RecordBytes records transferred bytes.
func (c *Collector) RecordBytes(n int64) {
	c.bytesTotal.Add(n)
}

// SetQueueDepth sets the current queue depth.
func (c *Collector) SetQueueDepth(depth int64) {
	c.queueDepth.Store(depth)
}

// SetActiveWorkers sets the number of running tasks.
func (c *Collector) SetActiveWorkers(n int64) {
	c.activeWorkers.Store(n)
}

// GetAverageResponseTime returns the average response time.
func (c *Collector) GetAverageResponseTime() time.Duration {
	sum := c.responseTimesSum.Load()
	num := c.responseTimesNum.Load()
	if num == 0 {
		return 0
	}
	return time.Duration(sum/num) * time.Millisecond
}

// GetRequestsPerSecond returns the average request rate since start.
func (c *Collector) GetRequestsPerSecond() float64 {
	c.startMu.RLock()
	elapsed := time.Since(c.startTime)
	c.startMu.RUnlock()

	if elapsed <= 0 {
		return 0
	}
	return float64(c.requestsTotal.Load()) / elapsed.Seconds()
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() *Snapshot {
	c.startMu.RLock()
	uptime := time.Since(c.startTime)
	c.startMu.RUnlock()

	s := &Snapshot{
		Timestamp:           time.Now(),
		Uptime:              uptime,
		RequestsTotal:       c.requestsTotal.Load(),
		ErrorsTotal:         c.errorsTotal.Load(),
		PagesCrawled:        c.pagesCrawled.Load(),
		PagesStored:         c.pagesStored.Load(),
		LinksFound:          c.linksFound.Load(),
		DuplicatesSkipped:   c.duplicatesSkipped.Load(),
		OverflowURLs:        c.overflowURLs.Load(),
		BytesTotal:          c.bytesTotal.Load(),
		QueueDepth:          c.queueDepth.Load(),
		ActiveWorkers:       c.activeWorkers.Load(),
		RequestsPerSecond:   c.GetRequestsPerSecond(),
		AverageResponseTime: c.GetAverageResponseTime(),
		ErrorCounts:         make(map[string]int64),
		StatusCodes:         make(map[int]int64),
		ResponseTimeHist:    make([]int64, bucketCount),
	}

	c.errorMu.RLock()
	for k, v := range c.errorCounts {
		s.ErrorCounts[k] = v.Load()
	}
	c.errorMu.RUnlock()

	c.statusMu.RLock()
	for k, v := range c.statusCodes {
		s.StatusCodes[k] = v.Load()
	}
	c.statusMu.RUnlock()

	for i := range c.responseTimeBuckets {
		s.ResponseTimeHist[i] = c.responseTimeBuckets[i].Load()
	}

	return s
}

// Reset resets all metrics.
func (c *Collector) Reset() {
	c.requestsTotal.Store(0)
	c.errorsTotal.Store(0)
	c.pagesCrawled.Store(0)
	c.pagesStored.Store(0)
	c.linksFound.Store(0)
	c.duplicatesSkipped.Store(0)
	c.overflowURLs.Store(0)
	c.bytesTotal.Store(0)
	c.responseTimesSum.Store(0)
	c.responseTimesNum.Store(0)
	c.queueDepth.Store(0)
	c.activeWorkers.Store(0)

	for i := range c.responseTimeBuckets {
		c.responseTimeBuckets[i].Store(0)
	}

	c.errorMu.Lock()
	c.errorCounts = make(map[string]*atomic.Int64)
	c.errorMu.Unlock()

	c.statusMu.Lock()
	c.statusCodes = make(map[int]*atomic.Int64)
	c.statusMu.Unlock()

	c.startMu.Lock()
	c.startTime = time.Now()
	c.startMu.Unlock()
}

// Snapshot represents a point-in-time view of metrics.
type Snapshot struct {
	Timestamp           time.Time        `json:"timestamp"`
	Uptime              time.Duration    `json:"uptime"`
	RequestsTotal       int64            `json:"requests_total"`
	ErrorsTotal         int64            `json:"errors_total"`
	PagesCrawled        int64            `json:"pages_crawled"`
	PagesStored         int64            `json:"pages_stored"`
	LinksFound          int64            `json:"links_found"`
	DuplicatesSkipped   int64            `json:"duplicates_skipped"`
	OverflowURLs        int64            `json:"overflow_urls"`
	BytesTotal          int64            `json:"bytes_total"`
	QueueDepth          int64            `json:"queue_depth"`
	ActiveWorkers       int64            `json:"active_workers"`
	RequestsPerSecond   float64          `json:"requests_per_second"`
	AverageResponseTime time.Duration    `json:"average_response_time"`
	ErrorCounts         map[string]int64 `json:"error_counts"`
	StatusCodes         map[int]int64    `json:"status_codes"`
	ResponseTimeHist    []int64          `json:"response_time_histogram"`
}

// ErrorRate returns the error rate (errors/requests).
func (s *Snapshot) ErrorRate() float64 {
	if s.RequestsTotal == 0 {
		return 0
	}
	return float64(s.ErrorsTotal) / float64(s.RequestsTotal)
}

// Summary returns the headline numbers, suitable for a stats log line.
func (s *Snapshot) Summary() map[string]interface{} {
	return map[string]interface{}{
		"uptime":               s.Uptime.String(),
		"requests_total":       s.RequestsTotal,
		"errors_total":         s.ErrorsTotal,
		"error_rate":           s.ErrorRate(),
		"pages_crawled":        s.PagesCrawled,
		"pages_stored":         s.PagesStored,
		"duplicates_skipped":   s.DuplicatesSkipped,
		"overflow_urls":        s.OverflowURLs,
		"requests_per_second":  s.RequestsPerSecond,
		"avg_response_time_ms": s.AverageResponseTime.Milliseconds(),
	}
}
