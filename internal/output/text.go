package output

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/docs-hound/docshound/internal/docstore"
	"github.com/docs-hound/docshound/internal/pipeline"
	"github.com/docs-hound/docshound/internal/registry"
)

// TextWriter writes human-readable output.
type TextWriter struct {
	mu     sync.Mutex
	writer io.Writer
	stream bool
	closed bool
}

// NewTextWriter creates a new text writer.
func NewTextWriter(w io.Writer, stream bool) *TextWriter {
	return &TextWriter{writer: w, stream: stream}
}

// WriteReport writes a summary and the page list.
func (t *TextWriter) WriteReport(r *CrawlReport) error {
	return t.render(func(w io.Writer) {
		fmt.Fprintf(w, "Target:     %s (%s)\n", r.Target, r.Mode)
		fmt.Fprintf(w, "Duration:   %s\n", r.Duration.Round(time.Millisecond))
		fmt.Fprintf(w, "Pages:      %d visited, %d returned\n", r.Stats.PagesVisited, len(r.Pages))
		if r.Stats.HitLimit {
			fmt.Fprintf(w, "Page cap:   %d reached, %d URLs left for later\n", r.Stats.MaxPages, len(r.Discovered))
		}
		if r.Interrupted {
			fmt.Fprintln(w, "Run was interrupted; results are partial")
		}
		if !t.stream && len(r.Pages) > 0 {
			fmt.Fprintln(w)
			for _, p := range r.Pages {
				fmt.Fprintf(w, "  [%d] %s\n", p.Depth, p.URL)
			}
		}
		if m := r.Metrics; m != nil {
			fmt.Fprintln(w)
			fmt.Fprintf(w, "Requests:   %d (%d errors, %.1f%%)\n", m.RequestsTotal, m.ErrorsTotal, m.ErrorRate()*100)
			fmt.Fprintf(w, "Avg time:   %s\n", m.AverageResponseTime.Round(time.Millisecond))
			fmt.Fprintf(w, "Duplicates: %d skipped\n", m.DuplicatesSkipped)
		}
	})
}

// WritePage writes a page line in streaming mode.
func (t *TextWriter) WritePage(p *Page) error {
	if !t.stream {
		return nil
	}
	return t.render(func(w io.Writer) {
		fmt.Fprintf(w, "  [%d] %s\n", p.Depth, p.URL)
	})
}

// WriteSites writes the sites as a table.
func (t *TextWriter) WriteSites(sites []*registry.Site) error {
	return t.render(func(w io.Writer) {
		if len(sites) == 0 {
			fmt.Fprintln(w, "No sites registered")
			return
		}
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "DOMAIN\tSTATUS\tPAGES\tDISCOVERED\tLAST INDEXED\tNAME")
		for _, s := range sites {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%s\n",
				s.Domain, s.Status, s.PageCount, s.DiscoveredCount, formatTime(s.LastIndexedAt), s.Name)
		}
		tw.Flush()
	})
}

// WriteSite writes the details of one site.
func (t *TextWriter) WriteSite(s *registry.Site) error {
	return t.render(func(w io.Writer) {
		fmt.Fprintf(w, "Domain:          %s\n", s.Domain)
		fmt.Fprintf(w, "Name:            %s\n", s.Name)
		if s.Description != "" {
			fmt.Fprintf(w, "Description:     %s\n", s.Description)
		}
		fmt.Fprintf(w, "Base URL:        %s\n", s.BaseURL)
		fmt.Fprintf(w, "Status:          %s\n", s.Status)
		if s.ErrorMessage != "" {
			fmt.Fprintf(w, "Error:           %s\n", s.ErrorMessage)
		}
		fmt.Fprintf(w, "Discovered:      %d (%s)\n", s.DiscoveredCount, formatTime(s.LastDiscoveredAt))
		fmt.Fprintf(w, "Indexed:         %d (%s)\n", s.PageCount, formatTime(s.LastIndexedAt))
		if len(s.URLFilters.IncludePatterns) > 0 {
			fmt.Fprintf(w, "Include:         %s\n", strings.Join(s.URLFilters.IncludePatterns, ", "))
		}
		if len(s.URLFilters.ExcludePatterns) > 0 {
			fmt.Fprintf(w, "Exclude:         %s\n", strings.Join(s.URLFilters.ExcludePatterns, ", "))
		}
	})
}

// WriteDiscover writes the discovered URLs.
func (t *TextWriter) WriteDiscover(res *pipeline.DiscoverResult) error {
	return t.render(func(w io.Writer) {
		fmt.Fprintf(w, "Discovered %d URLs for %s\n", len(res.URLs), res.Domain)
		if res.HitLimit {
			fmt.Fprintf(w, "Stopped at the page cap of %d\n", res.Stats.MaxPages)
		}
		for _, u := range res.URLs {
			fmt.Fprintf(w, "  %s\n", u)
		}
	})
}

// WriteIndex writes an indexing summary.
func (t *TextWriter) WriteIndex(res *pipeline.IndexResult) error {
	return t.render(func(w io.Writer) {
		fmt.Fprintf(w, "Indexed %d of %d pages for %s (%d crawled, %d skipped)\n",
			res.Indexed, res.Requested, res.Domain, res.Crawled, res.Skipped)
	})
}

// WriteSearch writes numbered results.
func (t *TextWriter) WriteSearch(query string, results []docstore.SearchResult) error {
	return t.render(func(w io.Writer) {
		if len(results) == 0 {
			fmt.Fprintf(w, "No results for %q\n", query)
			return
		}
		for i, r := range results {
			fmt.Fprintf(w, "%d. %s (%.3f)\n   %s\n", i+1, r.Document.Title, r.Score, r.Document.URL)
			if r.Document.Excerpt != "" {
				fmt.Fprintf(w, "   %s\n", r.Document.Excerpt)
			}
		}
	})
}

// WriteDocument writes a document header followed by its content.
func (t *TextWriter) WriteDocument(doc *docstore.Document) error {
	return t.render(func(w io.Writer) {
		fmt.Fprintf(w, "Title:   %s\n", doc.Title)
		fmt.Fprintf(w, "URL:     %s\n", doc.URL)
		fmt.Fprintf(w, "Source:  %s\n", doc.Source)
		fmt.Fprintf(w, "Scraped: %s\n\n", doc.ScrapedAt.Local().Format("2006-01-02 15:04"))
		fmt.Fprintln(w, doc.Content)
	})
}

// render runs fn under the lock unless the writer is closed.
func (t *TextWriter) render(fn func(w io.Writer)) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}

	ew := &errWriter{w: t.writer}
	fn(ew)
	return ew.err
}

// Flush flushes the writer.
func (t *TextWriter) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if flusher, ok := t.writer.(interface{ Flush() error }); ok {
		return flusher.Flush()
	}
	return nil
}

// Close closes the writer.
func (t *TextWriter) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true

	if closer, ok := t.writer.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// errWriter remembers the first write error and drops later writes.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) Write(p []byte) (int, error) {
	if e.err != nil {
		return 0, e.err
	}
	n, err := e.w.Write(p)
	e.err = err
	return n, err
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Local().Format("2006-01-02 15:04")
}
