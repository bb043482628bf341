package output

import (
	"encoding/json"
	"io"
	"sync"

	"github.com/docs-hound/docshound/internal/docstore"
	"github.com/docs-hound/docshound/internal/pipeline"
	"github.com/docs-hound/docshound/internal/registry"
)

// JSONWriter writes output in JSON format, one value per line.
type JSONWriter struct {
	mu     sync.Mutex
	writer io.Writer
	pretty bool
	stream bool
	closed bool
}

// NewJSONWriter creates a new JSON writer.
func NewJSONWriter(w io.Writer, pretty, stream bool) *JSONWriter {
	return &JSONWriter{
		writer: w,
		pretty: pretty,
		stream: stream,
	}
}

// WriteReport writes the complete crawl report.
func (j *JSONWriter) WriteReport(report *CrawlReport) error {
	return j.write(report)
}

// WritePage writes a single page in streaming mode.
func (j *JSONWriter) WritePage(page *Page) error {
	if !j.stream {
		return nil
	}
	return j.write(StreamEvent{Type: "page", Data: page})
}

// WriteSites writes the site list.
func (j *JSONWriter) WriteSites(sites []*registry.Site) error {
	if sites == nil {
		sites = []*registry.Site{}
	}
	return j.write(sites)
}

// WriteSite writes one site.
func (j *JSONWriter) WriteSite(site *registry.Site) error {
	return j.write(site)
}

// WriteDiscover writes a discovery result.
func (j *JSONWriter) WriteDiscover(res *pipeline.DiscoverResult) error {
	return j.write(res)
}

// WriteIndex writes an indexing result.
func (j *JSONWriter) WriteIndex(res *pipeline.IndexResult) error {
	return j.write(res)
}

// WriteSearch writes search results with their query.
func (j *JSONWriter) WriteSearch(query string, results []docstore.SearchResult) error {
	if results == nil {
		results = []docstore.SearchResult{}
	}
	return j.write(struct {
		Query   string                  `json:"query"`
		Results []docstore.SearchResult `json:"results"`
	}{query, results})
}

// WriteDocument writes a document.
func (j *JSONWriter) WriteDocument(doc *docstore.Document) error {
	return j.write(doc)
}

func (j *JSONWriter) write(v interface{}) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}

	var data []byte
	var err error

	if j.pretty {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}

	if err != nil {
		return err
	}

	_, err = j.writer.Write(append(data, '\n'))
	return err
}

// Flush flushes the writer.
func (j *JSONWriter) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if flusher, ok := j.writer.(interface{ Flush() error }); ok {
		return flusher.Flush()
	}
	return nil
}

// Close closes the writer.
func (j *JSONWriter) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.closed = true

	if closer, ok := j.writer.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
