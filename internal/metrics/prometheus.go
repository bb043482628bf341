package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "docshound"

var (
	requestsDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "fetch", "requests_total"),
		"Total number of page requests issued.", nil, nil)
	statusDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "fetch", "responses_total"),
		"Responses received, labeled by HTTP status code.", []string{"code"}, nil)
	errorsDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "fetch", "errors_total"),
		"Failed fetches, labeled by error type.", []string{"type"}, nil)
	bytesDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "fetch", "bytes_total"),
		"Decoded response bytes read.", nil, nil)
	durationDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "fetch", "duration_seconds"),
		"Page fetch latency.", nil, nil)
	pagesCrawledDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "crawl", "pages_total"),
		"Pages fetched successfully.", nil, nil)
	pagesStoredDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "index", "documents_stored_total"),
		"Documents written to the store.", nil, nil)
	linksDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "crawl", "links_found_total"),
		"Links extracted from fetched pages.", nil, nil)
	duplicatesDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "crawl", "duplicates_skipped_total"),
		"Links skipped because the page was already seen.", nil, nil)
	overflowDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "crawl", "overflow_urls_total"),
		"Links recorded after the page cap was reached.", nil, nil)
	queueDepthDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "crawl", "queue_depth"),
		"Tasks scheduled but not started.", nil, nil)
	activeWorkersDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "crawl", "active_workers"),
		"Tasks currently running.", nil, nil)
)

// exporter adapts a Collector to the prometheus.Collector interface. Values
// are read at scrape time.
type exporter struct {
	c *Collector
}

func (e exporter) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		requestsDesc, statusDesc, errorsDesc, bytesDesc, durationDesc,
		pagesCrawledDesc, pagesStoredDesc, linksDesc, duplicatesDesc,
		overflowDesc, queueDepthDesc, activeWorkersDesc,
	} {
		ch <- d
	}
}

func (e exporter) Collect(ch chan<- prometheus.Metric) {
	s := e.c.Snapshot()

	counter := func(d *prometheus.Desc, v int64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}
	gauge := func(d *prometheus.Desc, v int64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, float64(v))
	}

	counter(requestsDesc, s.RequestsTotal)
	counter(bytesDesc, s.BytesTotal)
	counter(pagesCrawledDesc, s.PagesCrawled)
	counter(pagesStoredDesc, s.PagesStored)
	counter(linksDesc, s.LinksFound)
	counter(duplicatesDesc, s.DuplicatesSkipped)
	counter(overflowDesc, s.OverflowURLs)
	gauge(queueDepthDesc, s.QueueDepth)
	gauge(activeWorkersDesc, s.ActiveWorkers)

	for code, n := range s.StatusCodes {
		counter(statusDesc, n, strconv.Itoa(code))
	}
	for typ, n := range s.ErrorCounts {
		counter(errorsDesc, n, typ)
	}

	// Prometheus buckets are cumulative; the overflow bucket is +Inf.
	buckets := make(map[float64]uint64, len(histogramBuckets))
	var cumulative uint64
	for i, upper := range histogramBuckets {
		cumulative += uint64(s.ResponseTimeHist[i])
		buckets[float64(upper)/1000] = cumulative
	}
	cumulative += uint64(s.ResponseTimeHist[bucketCount-1])
	sum := float64(e.c.responseTimesSum.Load()) / 1000
	ch <- prometheus.MustNewConstHistogram(durationDesc, cumulative, sum, buckets)
}

// Registry returns a Prometheus registry exposing c together with the Go
// runtime collector.
func (c *Collector) Registry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(exporter{c: c}, collectors.NewGoCollector())
	return reg
}

// Handler serves c in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.Registry(), promhttp.HandlerOpts{})
}

// WriteTextfile writes c to path in the node_exporter textfile format.
// Runtime metrics are not included.
func (c *Collector) WriteTextfile(path string) error {
	reg := prometheus.NewRegistry()
	if err := reg.Register(exporter{c: c}); err != nil {
		return err
	}
	return prometheus.WriteToTextfile(path, reg)
}
