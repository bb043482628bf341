package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/docs-hound/docshound/internal/logger"
)

var bucketDocuments = []byte("documents")

// BoltStore implements Store using BoltDB.
type BoltStore struct {
	db     *bolt.DB
	path   string
	logger *logger.Logger
}

// NewBoltStore opens or creates the document database at path.
func NewBoltStore(path string, log *logger.Logger) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return OpenBoltStore(db, log)
}

// OpenBoltStore uses an already open database, creating the documents
// bucket if needed. Closing the store closes db.
func OpenBoltStore(db *bolt.DB, log *logger.Logger) (*BoltStore, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketDocuments)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	return &BoltStore{
		db:     db,
		path:   db.Path(),
		logger: logger.OrNop(log).WithComponent("docstore"),
	}, nil
}

// Upsert writes docs in batches, one transaction per batch.
func (s *BoltStore) Upsert(ctx context.Context, docs []Document, source string) error {
	if source == "" {
		return ErrEmptySource
	}
	if len(docs) == 0 {
		s.logger.Debugf("No documents to upsert for %s", source)
		return nil
	}

	batches := (len(docs) + upsertBatchSize - 1) / upsertBatchSize
	for i := 0; i < len(docs); i += upsertBatchSize {
		if err := ctx.Err(); err != nil {
			return err
		}

		end := i + upsertBatchSize
		if end > len(docs) {
			end = len(docs)
		}
		batch := docs[i:end]

		err := s.db.Update(func(tx *bolt.Tx) error {
			b := tx.Bucket(bucketDocuments)
			for _, doc := range batch {
				data, err := json.Marshal(newRecord(doc, source))
				if err != nil {
					return fmt.Errorf("failed to marshal document %s: %w", doc.URL, err)
				}
				if err := b.Put([]byte(DocumentID(source, doc.URL)), data); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("upsert batch %d/%d: %w", i/upsertBatchSize+1, batches, err)
		}
		s.logger.Debugf("Upserted batch %d/%d (%d docs)", i/upsertBatchSize+1, batches, len(batch))
	}

	s.logger.Infof("Upserted %d documents for %s", len(docs), source)
	return nil
}

// Get reads the document stored for url under source.
func (s *BoltStore) Get(ctx context.Context, url, source string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var doc *Document
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketDocuments).Get([]byte(DocumentID(source, url)))
		if data == nil {
			return ErrNotFound
		}
		var rec record
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("failed to unmarshal document: %w", err)
		}
		doc = &rec.Document
		return nil
	})
	return doc, err
}

// Search scans the documents and ranks them by cosine similarity.
func (s *BoltStore) Search(ctx context.Context, query, source string, limit int) ([]SearchResult, error) {
	r := newRanker(query, source)
	if r.empty() {
		return []SearchResult{}, nil
	}

	err := s.forEach(ctx, func(id string, rec record) error {
		r.consider(id, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}

	results := r.top(limit)
	s.logger.Debugf("Search %q found %d results", query, len(results))
	return results, nil
}

// DeleteBySource removes all documents of source.
func (s *BoltStore) DeleteBySource(ctx context.Context, source string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	deleted := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDocuments)
		var keys [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var rec record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("failed to unmarshal document: %w", err)
			}
			if rec.Document.Source == source {
				keys = append(keys, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range keys {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		deleted = len(keys)
		return nil
	})
	if err != nil {
		return 0, err
	}

	if deleted > 0 {
		s.logger.Infof("Deleted %d documents for %s", deleted, source)
	}
	return deleted, nil
}

// Stats counts documents per source.
func (s *BoltStore) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{Sources: make(map[string]int)}
	err := s.forEach(ctx, func(_ string, rec record) error {
		stats.TotalDocuments++
		stats.Sources[rec.Document.Source]++
		return nil
	})
	return stats, err
}

// Path returns the database file path.
func (s *BoltStore) Path() string {
	return s.path
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) forEach(ctx context.Context, fn func(id string, rec record) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDocuments).ForEach(func(k, v []byte) error {
			var rec record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("failed to unmarshal document: %w", err)
			}
			return fn(string(k), rec)
		})
	})
}
