// Package registry keeps the durable per-site state of the discover and
// index workflow.
package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/docs-hound/docshound/internal/logger"
	"github.com/docs-hound/docshound/internal/scope"
)

// Registry manages registered sites.
type Registry struct {
	backend backend
	logger  *logger.Logger
	now     func() time.Time
}

// NewBolt opens or creates a BoltDB-backed registry at path.
func NewBolt(path string, log *logger.Logger) (*Registry, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	r, err := OpenBolt(db, log)
	if err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

// OpenBolt builds a registry on an open database. Closing the registry
// closes db.
func OpenBolt(db *bolt.DB, log *logger.Logger) (*Registry, error) {
	b, err := newBoltBackend(db)
	if err != nil {
		return nil, err
	}
	return newRegistry(b, log), nil
}

// NewMemory creates an in-memory registry.
func NewMemory(log *logger.Logger) *Registry {
	return newRegistry(newMemoryBackend(), log)
}

func newRegistry(b backend, log *logger.Logger) *Registry {
	return &Registry{
		backend: b,
		logger:  logger.OrNop(log).WithComponent("registry"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// AddSite registers the site rooted at rawURL. The domain is the URL's
// hostname; name defaults to the domain.
func (r *Registry) AddSite(ctx context.Context, rawURL, name, description string) (*Site, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	domain, err := scope.ExtractDomain(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid site URL %q: %w", rawURL, err)
	}
	if name == "" {
		name = domain
	}

	site := &Site{
		Domain:      domain,
		Name:        name,
		Description: description,
		BaseURL:     rawURL,
		Status:      StatusPending,
		CreatedAt:   r.now(),
	}
	if err := r.backend.create(site); err != nil {
		return nil, fmt.Errorf("add %s: %w", domain, err)
	}

	r.logger.Infof("Added site: %s", domain)
	return site, nil
}

// GetSite returns the site for domain or ErrSiteNotFound.
func (r *Registry) GetSite(ctx context.Context, domain string) (*Site, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.backend.get(domain)
}

// SiteExists reports whether domain is registered.
func (r *Registry) SiteExists(ctx context.Context, domain string) (bool, error) {
	_, err := r.GetSite(ctx, domain)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrSiteNotFound):
		return false, nil
	default:
		return false, err
	}
}

// ListSites returns all sites, newest first.
func (r *Registry) ListSites(ctx context.Context) ([]*Site, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sites, err := r.backend.all()
	if err != nil {
		return nil, err
	}
	sort.Slice(sites, func(i, j int) bool {
		if !sites[i].CreatedAt.Equal(sites[j].CreatedAt) {
			return sites[i].CreatedAt.After(sites[j].CreatedAt)
		}
		return sites[i].Domain < sites[j].Domain
	})
	return sites, nil
}

// UpdateStatus moves domain to status. Entering discovered or indexed stamps
// the matching timestamp. The error message is kept only for StatusError.
func (r *Registry) UpdateStatus(ctx context.Context, domain string, status Status, errorMessage string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	err := r.backend.update(domain, func(s *Site) error {
		s.Status = status
		s.ErrorMessage = ""
		now := r.now()
		switch status {
		case StatusDiscovered:
			s.LastDiscoveredAt = &now
		case StatusIndexed:
			s.LastIndexedAt = &now
		case StatusError:
			s.ErrorMessage = errorMessage
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("update status of %s: %w", domain, err)
	}

	r.logger.Infof("Updated %s status to: %s", domain, status)
	return nil
}

// UpdateSite applies fn to the stored site. The domain cannot be changed.
func (r *Registry) UpdateSite(ctx context.Context, domain string, fn func(*Site)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := r.backend.update(domain, func(s *Site) error {
		fn(s)
		s.Domain = domain
		return nil
	})
	if err != nil {
		return fmt.Errorf("update %s: %w", domain, err)
	}

	r.logger.Debugf("Updated %s metadata", domain)
	return nil
}

// SetURLFilters replaces the site's URL filters after checking that every
// pattern compiles.
func (r *Registry) SetURLFilters(ctx context.Context, domain string, filters URLFilters) error {
	if err := scope.ValidatePatterns(filters.IncludePatterns); err != nil {
		return fmt.Errorf("include patterns: %w", err)
	}
	if err := scope.ValidatePatterns(filters.ExcludePatterns); err != nil {
		return fmt.Errorf("exclude patterns: %w", err)
	}

	return r.UpdateSite(ctx, domain, func(s *Site) {
		s.URLFilters = URLFilters{
			IncludePatterns: append([]string(nil), filters.IncludePatterns...),
			ExcludePatterns: append([]string(nil), filters.ExcludePatterns...),
		}
	})
}

// RemoveSite deletes the site and its URL lists.
func (r *Registry) RemoveSite(ctx context.Context, domain string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := r.backend.remove(domain); err != nil {
		return fmt.Errorf("remove %s: %w", domain, err)
	}

	r.logger.Infof("Removed site: %s", domain)
	return nil
}

// SetDiscoveredURLs replaces the discovered URLs awaiting review and
// updates DiscoveredCount. Duplicates are dropped, order is kept.
func (r *Registry) SetDiscoveredURLs(ctx context.Context, domain string, urls []string) error {
	return r.setList(ctx, listDiscovered, domain, urls, func(s *Site, n int) {
		s.DiscoveredCount = n
	})
}

// DiscoveredURLs returns the stored discovered URLs.
func (r *Registry) DiscoveredURLs(ctx context.Context, domain string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.backend.getList(listDiscovered, domain)
}

// SetIndexedPages replaces the indexed page URLs and updates PageCount.
func (r *Registry) SetIndexedPages(ctx context.Context, domain string, urls []string) error {
	return r.setList(ctx, listPages, domain, urls, func(s *Site, n int) {
		s.PageCount = n
	})
}

// IndexedPages returns the stored indexed page URLs.
func (r *Registry) IndexedPages(ctx context.Context, domain string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.backend.getList(listPages, domain)
}

// Close releases the underlying storage.
func (r *Registry) Close() error {
	return r.backend.close()
}

func (r *Registry) setList(ctx context.Context, l list, domain string, urls []string, count func(*Site, int)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	unique := dedupe(urls)
	err := r.backend.putList(l, domain, unique, func(s *Site) {
		count(s, len(unique))
	})
	if err != nil {
		return fmt.Errorf("store %s URLs for %s: %w", l, domain, err)
	}

	r.logger.Infof("Stored %d %s URLs for %s", len(unique), l, domain)
	return nil
}

func dedupe(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
