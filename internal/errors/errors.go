// Package errors classifies page fetch failures.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// ErrorType categorizes errors for logging and metrics.
type ErrorType int

const (
	// Unknown is an uncategorized error.
	Unknown ErrorType = iota
	// Network represents network-related errors (DNS, connection).
	Network
	// Timeout represents timeout errors.
	Timeout
	// NotFound represents 404 errors.
	NotFound
	// ClientError represents 4xx errors other than 404.
	ClientError
	// ServerError represents 5xx errors.
	ServerError
	// Parse represents bodies that could not be decoded or requests that
	// could not be built.
	Parse
	// Content represents a response whose body is not a page (wrong content type).
	Content
	// Cancelled represents context cancellation.
	Cancelled
)

var typeNames = [...]string{
	Unknown:     "unknown",
	Network:     "network",
	Timeout:     "timeout",
	NotFound:    "not_found",
	ClientError: "client_error",
	ServerError: "server_error",
	Parse:       "parse",
	Content:     "content",
	Cancelled:   "cancelled",
}

// String returns the metric label for t.
func (t ErrorType) String() string {
	if t < 0 || int(t) >= len(typeNames) {
		return typeNames[Unknown]
	}
	return typeNames[t]
}

// CrawlError is a failure to fetch or decode one page.
type CrawlError struct {
	Type       ErrorType
	URL        string
	Op         string // fetch, decode, body_read, ...
	Message    string
	StatusCode int
	Err        error
}

// Error formats as "op url: message: cause".
func (e *CrawlError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.URL != "" {
		b.WriteString(" ")
		b.WriteString(e.URL)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error.
func (e *CrawlError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a CrawlError of the same type.
func (e *CrawlError) Is(target error) bool {
	t, ok := target.(*CrawlError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// Sentinels usable with errors.Is.
var (
	ErrNotHTML   = &CrawlError{Type: Content}
	ErrNotFound  = &CrawlError{Type: NotFound}
	ErrCancelled = &CrawlError{Type: Cancelled}
)

// NewCrawlError creates a new CrawlError.
func NewCrawlError(errType ErrorType, url, op, message string, cause error) *CrawlError {
	return &CrawlError{
		Type:    errType,
		URL:     url,
		Op:      op,
		Message: message,
		Err:     cause,
	}
}

// NewNetworkError creates a network error.
func NewNetworkError(url, op string, cause error) *CrawlError {
	return NewCrawlError(Network, url, op, "network failure", cause)
}

// NewTimeoutError creates a timeout error.
func NewTimeoutError(url, op string, cause error) *CrawlError {
	return NewCrawlError(Timeout, url, op, "request timed out", cause)
}

// NewDecodeError reports a response body that could not be turned into
// UTF-8 text.
func NewDecodeError(url, message string, cause error) *CrawlError {
	return NewCrawlError(Parse, url, "decode", message, cause)
}

// NewContentTypeError reports a response that is not an HTML page.
func NewContentTypeError(url, contentType string) *CrawlError {
	if contentType == "" {
		contentType = "none"
	}
	return NewCrawlError(Content, url, "fetch", "unexpected content type "+contentType, nil)
}

// NewCancelledError creates a cancelled error.
func NewCancelledError(url, op string, cause error) *CrawlError {
	return NewCrawlError(Cancelled, url, op, "operation cancelled", cause)
}

// Categorize determines the error type from a transport error.
// CrawlErrors are returned unchanged.
func Categorize(err error, url string) *CrawlError {
	if err == nil {
		return nil
	}

	var crawlErr *CrawlError
	switch {
	case errors.As(err, &crawlErr):
		return crawlErr
	case errors.Is(err, context.Canceled):
		return NewCancelledError(url, "fetch", err)
	case isTimeout(err):
		return NewTimeoutError(url, "fetch", err)
	case isNetworkError(err):
		return NewNetworkError(url, "fetch", err)
	}
	return NewCrawlError(Unknown, url, "fetch", "request failed", err)
}

// CategorizeHTTPStatus creates an error from a non-2xx HTTP status code.
// It returns nil for 2xx codes.
func CategorizeHTTPStatus(statusCode int, url string) *CrawlError {
	typ := Unknown
	switch {
	case statusCode >= 200 && statusCode < 300:
		return nil
	case statusCode == 404:
		typ = NotFound
	case statusCode >= 500:
		typ = ServerError
	case statusCode >= 400:
		typ = ClientError
	}
	err := NewCrawlError(typ, url, "fetch", fmt.Sprintf("HTTP %d", statusCode), nil)
	err.StatusCode = statusCode
	return err
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded")
}

var (
	networkErrnos = []error{
		syscall.ECONNREFUSED,
		syscall.ECONNRESET,
		syscall.EHOSTUNREACH,
		syscall.ENETUNREACH,
	}
	networkMessages = []string{
		"connection refused",
		"connection reset",
		"no such host",
		"dial tcp",
	}
)

func isNetworkError(err error) bool {
	var opErr *net.OpError
	var dnsErr *net.DNSError
	if errors.As(err, &opErr) || errors.As(err, &dnsErr) {
		return true
	}
	for _, errno := range networkErrnos {
		if errors.Is(err, errno) {
			return true
		}
	}
	msg := err.Error()
	for _, m := range networkMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// GetStatusCode extracts the HTTP status code from err, or 0.
func GetStatusCode(err error) int {
	var crawlErr *CrawlError
	if errors.As(err, &crawlErr) {
		return crawlErr.StatusCode
	}
	return 0
}

// GetErrorType extracts the error type from err.
func GetErrorType(err error) ErrorType {
	var crawlErr *CrawlError
	if errors.As(err, &crawlErr) {
		return crawlErr.Type
	}
	return Unknown
}
