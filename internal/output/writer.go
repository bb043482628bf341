// Package output renders crawl reports, sites and search results.
package output

import (
	"fmt"
	"io"

	"github.com/docs-hound/docshound/internal/docstore"
	"github.com/docs-hound/docshound/internal/pipeline"
	"github.com/docs-hound/docshound/internal/registry"
)

// Formats.
const (
	FormatJSON     = "json"
	FormatText     = "text"
	FormatMarkdown = "markdown"
)

// Writer defines the interface for output writers.
type Writer interface {
	// WriteReport writes a complete crawl report.
	WriteReport(report *CrawlReport) error

	// WritePage writes a single page (streaming only).
	WritePage(page *Page) error

	// WriteSites writes the registered sites.
	WriteSites(sites []*registry.Site) error

	// WriteSite writes one site.
	WriteSite(site *registry.Site) error

	// WriteDiscover writes the outcome of a discovery run.
	WriteDiscover(res *pipeline.DiscoverResult) error

	// WriteIndex writes the outcome of an indexing run.
	WriteIndex(res *pipeline.IndexResult) error

	// WriteSearch writes ranked search results.
	WriteSearch(query string, results []docstore.SearchResult) error

	// WriteDocument writes one stored document with its content.
	WriteDocument(doc *docstore.Document) error

	// Flush flushes any buffered output.
	Flush() error

	// Close closes the writer.
	Close() error
}

// Config holds output configuration.
type Config struct {
	Format string `yaml:"format"`
	Pretty bool   `yaml:"pretty"`
	Stream bool   `yaml:"stream"`
}

// NewWriter creates a writer for config.Format.
func NewWriter(w io.Writer, config Config) (Writer, error) {
	switch config.Format {
	case FormatJSON:
		return NewJSONWriter(w, config.Pretty, config.Stream), nil
	case FormatText, "":
		return NewTextWriter(w, config.Stream), nil
	case FormatMarkdown, "md":
		return NewMarkdownWriter(w, config.Stream), nil
	default:
		return nil, fmt.Errorf("unknown output format %q", config.Format)
	}
}
