package docstore

import (
	"context"
	"sync"
)

// MemoryStore implements Store in memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]record)}
}

// Upsert stores docs under source.
func (s *MemoryStore) Upsert(ctx context.Context, docs []Document, source string) error {
	if source == "" {
		return ErrEmptySource
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, doc := range docs {
		s.records[DocumentID(source, doc.URL)] = newRecord(doc, source)
	}
	return nil
}

// Get returns the document stored for url under source.
func (s *MemoryStore) Get(ctx context.Context, url, source string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[DocumentID(source, url)]
	if !ok {
		return nil, ErrNotFound
	}
	doc := rec.Document
	return &doc, nil
}

// Search ranks stored documents against query.
func (s *MemoryStore) Search(ctx context.Context, query, source string, limit int) ([]SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r := newRanker(query, source)
	if r.empty() {
		return []SearchResult{}, nil
	}

	s.mu.RLock()
	for id, rec := range s.records {
		r.consider(id, rec)
	}
	s.mu.RUnlock()

	return r.top(limit), nil
}

// DeleteBySource removes the documents of source.
func (s *MemoryStore) DeleteBySource(ctx context.Context, source string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for id, rec := range s.records {
		if rec.Document.Source == source {
			delete(s.records, id)
			deleted++
		}
	}
	return deleted, nil
}

// Stats counts documents per source.
func (s *MemoryStore) Stats(ctx context.Context) (Stats, error) {
	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := Stats{TotalDocuments: len(s.records), Sources: make(map[string]int)}
	for _, rec := range s.records {
		stats.Sources[rec.Document.Source]++
	}
	return stats, nil
}

// Close is a no-op for MemoryStore.
func (s *MemoryStore) Close() error {
	return nil
}
