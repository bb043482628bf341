package output

import (
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/nao1215/markdown"

	"github.com/docs-hound/docshound/internal/docstore"
	"github.com/docs-hound/docshound/internal/pipeline"
	"github.com/docs-hound/docshound/internal/registry"
)

// MarkdownWriter writes Markdown, suited to pasting search results and
// stored pages into notes or prompts.
type MarkdownWriter struct {
	mu     sync.Mutex
	writer io.Writer
	stream bool
	closed bool
}

// NewMarkdownWriter creates a new Markdown writer.
func NewMarkdownWriter(w io.Writer, stream bool) *MarkdownWriter {
	return &MarkdownWriter{writer: w, stream: stream}
}

// WriteReport writes a crawl report.
func (m *MarkdownWriter) WriteReport(r *CrawlReport) error {
	return m.build(func(md *markdown.Markdown) {
		md.H1("Crawl of " + r.Target)
		md.Table(markdown.TableSet{
			Header: []string{"Property", "Value"},
			Rows: [][]string{
				{"Mode", r.Mode},
				{"Duration", r.Duration.Round(time.Millisecond).String()},
				{"Pages visited", strconv.Itoa(r.Stats.PagesVisited)},
				{"Pages returned", strconv.Itoa(len(r.Pages))},
				{"Left for later", strconv.Itoa(len(r.Discovered))},
			},
		})
		if r.Interrupted {
			md.Warningf("The run was interrupted; results are partial.")
		}
		if !m.stream && len(r.Pages) > 0 {
			md.H2("Pages")
			md.BulletList(pageItems(r.Pages)...)
		}
	})
}

// WritePage writes a page item in streaming mode.
func (m *MarkdownWriter) WritePage(p *Page) error {
	if !m.stream {
		return nil
	}
	return m.build(func(md *markdown.Markdown) {
		md.BulletList(pageItems([]Page{*p})...)
	})
}

// WriteSites writes the sites as a table.
func (m *MarkdownWriter) WriteSites(sites []*registry.Site) error {
	return m.build(func(md *markdown.Markdown) {
		md.H1("Sites")
		if len(sites) == 0 {
			md.PlainText("No sites registered.")
			return
		}
		rows := make([][]string, 0, len(sites))
		for _, s := range sites {
			rows = append(rows, []string{
				markdown.Link(s.Domain, s.BaseURL),
				string(s.Status),
				strconv.Itoa(s.PageCount),
				strconv.Itoa(s.DiscoveredCount),
				formatTime(s.LastIndexedAt),
			})
		}
		md.Table(markdown.TableSet{
			Header: []string{"Site", "Status", "Pages", "Discovered", "Last indexed"},
			Rows:   rows,
		})
	})
}

// WriteSite writes the details of one site.
func (m *MarkdownWriter) WriteSite(s *registry.Site) error {
	return m.build(func(md *markdown.Markdown) {
		md.H1(s.Name)
		if s.Description != "" {
			md.PlainText(s.Description)
		}
		md.Table(markdown.TableSet{
			Header: []string{"Property", "Value"},
			Rows: [][]string{
				{"Domain", s.Domain},
				{"Base URL", s.BaseURL},
				{"Status", string(s.Status)},
				{"Discovered", fmt.Sprintf("%d (%s)", s.DiscoveredCount, formatTime(s.LastDiscoveredAt))},
				{"Indexed", fmt.Sprintf("%d (%s)", s.PageCount, formatTime(s.LastIndexedAt))},
			},
		})
		if s.ErrorMessage != "" {
			md.Cautionf("%s", s.ErrorMessage)
		}
	})
}

// WriteDiscover writes the discovered URLs as a list.
func (m *MarkdownWriter) WriteDiscover(res *pipeline.DiscoverResult) error {
	return m.build(func(md *markdown.Markdown) {
		md.H1(fmt.Sprintf("Discovered %d URLs for %s", len(res.URLs), res.Domain))
		if res.HitLimit {
			md.Note(fmt.Sprintf("Stopped at the page cap of %d.", res.Stats.MaxPages))
		}
		if len(res.URLs) > 0 {
			md.BulletList(res.URLs...)
		}
	})
}

// WriteIndex writes an indexing summary.
func (m *MarkdownWriter) WriteIndex(res *pipeline.IndexResult) error {
	return m.build(func(md *markdown.Markdown) {
		md.H1("Indexed " + res.Domain)
		md.Table(markdown.TableSet{
			Header: []string{"Requested", "Crawled", "Indexed", "Skipped"},
			Rows: [][]string{{
				strconv.Itoa(res.Requested),
				strconv.Itoa(res.Crawled),
				strconv.Itoa(res.Indexed),
				strconv.Itoa(res.Skipped),
			}},
		})
	})
}

// WriteSearch writes one section per result.
func (m *MarkdownWriter) WriteSearch(query string, results []docstore.SearchResult) error {
	return m.build(func(md *markdown.Markdown) {
		md.H1("Results for " + strconv.Quote(query))
		if len(results) == 0 {
			md.PlainText("No results.")
			return
		}
		for i, r := range results {
			md.H2(fmt.Sprintf("%d. %s", i+1, r.Document.Title))
			md.PlainText(markdown.Link(r.Document.URL, r.Document.URL) + fmt.Sprintf(" (score %.3f)", r.Score))
			if r.Document.Excerpt != "" {
				md.PlainText("")
				md.PlainText(r.Document.Excerpt)
			}
			md.PlainText("")
		}
	})
}

// WriteDocument writes the document content under its title.
func (m *MarkdownWriter) WriteDocument(doc *docstore.Document) error {
	return m.build(func(md *markdown.Markdown) {
		md.H1(doc.Title)
		md.PlainText("Source: " + markdown.Link(doc.URL, doc.URL))
		md.PlainText("")
		md.PlainText(doc.Content)
	})
}

// build renders one document under the lock unless the writer is closed.
func (m *MarkdownWriter) build(fn func(md *markdown.Markdown)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}

	md := markdown.NewMarkdown(m.writer)
	fn(md)
	return md.Build()
}

// Flush flushes the writer.
func (m *MarkdownWriter) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if flusher, ok := m.writer.(interface{ Flush() error }); ok {
		return flusher.Flush()
	}
	return nil
}

// Close closes the writer.
func (m *MarkdownWriter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true

	if closer, ok := m.writer.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func pageItems(pages []Page) []string {
	items := make([]string, 0, len(pages))
	for _, p := range pages {
		items = append(items, fmt.Sprintf("%s (depth %d)", markdown.Link(p.URL, p.URL), p.Depth))
	}
	return items
}
