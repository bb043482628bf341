// Package docstore stores extracted documentation pages and answers
// relevance-ranked queries over them.
package docstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

// DefaultSearchLimit is used when Search is called with a non-positive limit.
const DefaultSearchLimit = 5

// upsertBatchSize bounds the number of documents written per transaction.
const upsertBatchSize = 100

var (
	// ErrEmptySource is returned when documents are written without a source.
	ErrEmptySource = errors.New("docstore: source is required")
	// ErrNotFound is returned by Get for a URL that is not stored.
	ErrNotFound = errors.New("docstore: document not found")
)

// Document is one indexed page.
type Document struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Excerpt   string    `json:"excerpt,omitempty"`
	Source    string    `json:"source"`
	ScrapedAt time.Time `json:"scraped_at"`
}

// SearchResult is a ranked match.
type SearchResult struct {
	ID       string   `json:"id"`
	Document Document `json:"document"`
	Score    float64  `json:"score"`
}

// Stats describes the store contents.
type Stats struct {
	TotalDocuments int            `json:"total_documents"`
	Sources        map[string]int `json:"sources"`
}

// Store is a document index keyed by (url, source).
type Store interface {
	// Upsert writes docs under source, replacing documents with the same URL
	// in that source.
	Upsert(ctx context.Context, docs []Document, source string) error
	// Get returns the document stored for url under source, or ErrNotFound.
	Get(ctx context.Context, url, source string) (*Document, error)
	// Search ranks documents against query. An empty source searches all.
	Search(ctx context.Context, query, source string, limit int) ([]SearchResult, error)
	// DeleteBySource removes every document of source and reports how many.
	DeleteBySource(ctx context.Context, source string) (int, error)
	// Stats summarizes the store.
	Stats(ctx context.Context) (Stats, error)
	// Close releases resources.
	Close() error
}

// DocumentID returns the storage key of url within source.
func DocumentID(source, url string) string {
	sum := sha256.Sum256([]byte(source + "\x00" + url))
	return hex.EncodeToString(sum[:])
}

// record is a document with its precomputed term vector.
type record struct {
	Document Document       `json:"document"`
	Terms    map[string]int `json:"terms"`
	Norm     float64        `json:"norm"`
}

func newRecord(doc Document, source string) record {
	doc.Source = source
	if doc.ScrapedAt.IsZero() {
		doc.ScrapedAt = time.Now().UTC()
	}
	terms := termFrequencies(doc.Title + " " + doc.Title + " " + doc.Content)
	return record{Document: doc, Terms: terms, Norm: norm(terms)}
}
