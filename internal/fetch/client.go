// Package fetch retrieves HTML pages over HTTP.
package fetch

import (
	"bufio"
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"context"
	"crypto/tls"
	stderrors "errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/net/html/charset"

	"github.com/docs-hound/docshound/internal/errors"
	"github.com/docs-hound/docshound/internal/logger"
	"github.com/docs-hound/docshound/internal/metrics"
)

const (
	// DefaultUserAgent identifies the crawler to the sites it visits.
	DefaultUserAgent = "Mozilla/5.0 (compatible; DocsHound/1.0; +https://github.com/docs-hound)"
	// DefaultTimeout bounds a single request, body included.
	DefaultTimeout = 30 * time.Second
	// DefaultMaxBodySize caps how much of a response body is read.
	DefaultMaxBodySize int64 = 10 << 20

	maxRedirects = 10
)

// Config holds configuration for the page client.
type Config struct {
	Timeout             time.Duration
	UserAgent           string
	MaxBodySize         int64
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	SkipTLSVerify       bool
	Logger              *logger.Logger
	Metrics             *metrics.Collector
}

// DefaultConfig returns the defaults used by the crawler.
func DefaultConfig() Config {
	return Config{
		Timeout:             DefaultTimeout,
		UserAgent:           DefaultUserAgent,
		MaxBodySize:         DefaultMaxBodySize,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
	}
}

// Page is a fetched HTML document.
type Page struct {
	URL         string
	FinalURL    string
	StatusCode  int
	ContentType string
	// Response body; raw for GetFile
	HTML string
	// Truncated is set when the body was cut at MaxBodySize.
	Truncated bool
	Duration  time.Duration
}

// Client fetches pages. It is safe for concurrent use.
type Client struct {
	client      *http.Client
	userAgent   string
	maxBodySize int64
	logger      *logger.Logger
	metrics     *metrics.Collector
}

// NewClient creates a page client. Zero values in config take the defaults.
func NewClient(config Config) *Client {
	defaults := DefaultConfig()
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.UserAgent == "" {
		config.UserAgent = defaults.UserAgent
	}
	if config.MaxBodySize <= 0 {
		config.MaxBodySize = defaults.MaxBodySize
	}
	if config.MaxIdleConns <= 0 {
		config.MaxIdleConns = defaults.MaxIdleConns
	}
	if config.MaxIdleConnsPerHost <= 0 {
		config.MaxIdleConnsPerHost = defaults.MaxIdleConnsPerHost
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          config.MaxIdleConns,
		MaxIdleConnsPerHost:   config.MaxIdleConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: config.SkipTLSVerify,
		},
	}

	return &Client{
		client: &http.Client{
			Transport: transport,
			Timeout:   config.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		userAgent:   config.UserAgent,
		maxBodySize: config.MaxBodySize,
		logger:      logger.OrNop(config.Logger).WithComponent("fetch"),
		metrics:     config.Metrics,
	}
}

// Get fetches targetURL. A non-2xx status or a non-HTML content type is
// returned as a *errors.CrawlError. Requests are never retried.
func (c *Client) Get(ctx context.Context, targetURL string) (*Page, error) {
	return c.get(ctx, targetURL, htmlAccept, true)
}

// GetFile fetches targetURL whatever its content type and returns the
// body. It is used for sitemaps and robots.txt.
func (c *Client) GetFile(ctx context.Context, targetURL string) ([]byte, error) {
	page, err := c.get(ctx, targetURL, "*/*", false)
	if err != nil {
		return nil, err
	}
	return []byte(page.HTML), nil
}

const htmlAccept = "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8"

func (c *Client) get(ctx context.Context, targetURL, accept string, htmlOnly bool) (*Page, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, c.fail(errors.NewCrawlError(errors.Parse, targetURL, "request", "failed to create request", err))
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", accept)
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")

	c.recordRequest()
	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, c.fail(errors.NewCancelledError(targetURL, "fetch", err))
		}
		return nil, c.fail(errors.Categorize(err, targetURL))
	}
	defer resp.Body.Close()

	page := &Page{
		URL:         targetURL,
		FinalURL:    resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
	}
	c.recordStatus(resp.StatusCode)

	if httpErr := errors.CategorizeHTTPStatus(resp.StatusCode, targetURL); httpErr != nil {
		c.logger.RequestEvent(http.MethodGet, targetURL, resp.StatusCode, time.Since(start))
		return nil, c.fail(httpErr)
	}

	if htmlOnly && !IsHTML(page.ContentType) {
		c.logger.RequestEvent(http.MethodGet, targetURL, resp.StatusCode, time.Since(start))
		return nil, c.fail(errors.NewContentTypeError(targetURL, page.ContentType))
	}

	body, truncated, err := c.readBody(resp, htmlOnly)
	if err != nil {
		if ce, ok := err.(*errors.CrawlError); ok {
			return nil, c.fail(ce)
		}
		if ctx.Err() != nil {
			return nil, c.fail(errors.NewCancelledError(targetURL, "body_read", err))
		}
		return nil, c.fail(errors.NewNetworkError(targetURL, "body_read", err))
	}
	if truncated {
		c.logger.WithURL(targetURL).Warnf("Body exceeds %d bytes, truncated", c.maxBodySize)
	}
	page.HTML = string(body)
	page.Truncated = truncated
	page.Duration = time.Since(start)

	if c.metrics != nil {
		c.metrics.RecordBytes(int64(len(body)))
		c.metrics.RecordResponseTime(page.Duration)
	}
	c.logger.RequestEvent(http.MethodGet, targetURL, resp.StatusCode, page.Duration)

	return page, nil
}

// readBody decodes the Content-Encoding and, for pages, converts the
// declared charset to UTF-8. At most maxBodySize decoded bytes are kept; a
// longer body is cut and reported as truncated.
func (c *Client) readBody(resp *http.Response, htmlOnly bool) ([]byte, bool, error) {
	targetURL := resp.Request.URL.String()
	encoding := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))

	reader, err := decodeReader(resp.Body, encoding)
	if err != nil {
		return nil, false, errors.NewDecodeError(targetURL, "invalid "+encoding+" body", err)
	}
	if closer, ok := reader.(io.Closer); ok && reader != io.Reader(resp.Body) {
		defer closer.Close()
	}

	body, err := io.ReadAll(io.LimitReader(reader, c.maxBodySize+1))
	if err != nil {
		var netErr net.Error
		if encoding != "" && !stderrors.As(err, &netErr) && !stderrors.Is(err, context.Canceled) && !stderrors.Is(err, context.DeadlineExceeded) {
			return nil, false, errors.NewDecodeError(targetURL, "corrupt "+encoding+" body", err)
		}
		return nil, false, err
	}

	truncated := int64(len(body)) > c.maxBodySize
	if truncated {
		body = body[:c.maxBodySize]
	}

	if htmlOnly {
		decoded, err := charset.NewReader(bytes.NewReader(body), resp.Header.Get("Content-Type"))
		if err != nil {
			return nil, false, errors.NewDecodeError(targetURL, "unsupported charset", err)
		}
		if body, err = io.ReadAll(decoded); err != nil {
			return nil, false, errors.NewDecodeError(targetURL, "unsupported charset", err)
		}
	}

	return body, truncated, nil
}

// decodeReader wraps body for the given Content-Encoding. HTTP deflate is
// zlib-wrapped, but some servers send raw DEFLATE, so the zlib header is
// checked before choosing.
func decodeReader(body io.Reader, encoding string) (io.Reader, error) {
	switch encoding {
	case "gzip", "x-gzip":
		return gzip.NewReader(body)
	case "deflate":
		br := bufio.NewReader(body)
		if header, err := br.Peek(2); err == nil && isZlibHeader(header) {
			return zlib.NewReader(br)
		}
		return flate.NewReader(br), nil
	case "br":
		return brotli.NewReader(body), nil
	}
	return body, nil
}

func isZlibHeader(h []byte) bool {
	return h[0]&0x0f == 8 && (uint16(h[0])<<8|uint16(h[1]))%31 == 0
}

// Close releases idle connections.
func (c *Client) Close() {
	c.client.CloseIdleConnections()
}

// IsHTML reports whether a Content-Type header names an HTML document.
func IsHTML(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "text/html")
}

func (c *Client) fail(err *errors.CrawlError) *errors.CrawlError {
	if c.metrics != nil {
		c.metrics.RecordError(err.Type.String())
	}
	return err
}

func (c *Client) recordRequest() {
	if c.metrics != nil {
		c.metrics.RecordRequest()
	}
}

func (c *Client) recordStatus(code int) {
	if c.metrics != nil {
		c.metrics.RecordStatusCode(code)
	}
}
