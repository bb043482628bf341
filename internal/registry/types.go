package registry

import (
	"errors"
	"time"
)

// Status is a site's position in the discover/index workflow.
type Status string

// Site statuses. The normal progression is pending, discovering,
// discovered, indexing, indexed; either running stage may end in error.
const (
	StatusPending     Status = "pending"
	StatusDiscovering Status = "discovering"
	StatusDiscovered  Status = "discovered"
	StatusIndexing    Status = "indexing"
	StatusIndexed     Status = "indexed"
	StatusError       Status = "error"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusDiscovering, StatusDiscovered, StatusIndexing, StatusIndexed, StatusError:
		return true
	}
	return false
}

var (
	// ErrSiteNotFound is returned for operations on unknown domains.
	ErrSiteNotFound = errors.New("site not found")
	// ErrSiteExists is returned when adding a domain twice.
	ErrSiteExists = errors.New("site already exists")
	// ErrInvalidStatus is returned for unknown statuses.
	ErrInvalidStatus = errors.New("invalid site status")
)

// URLFilters narrows which pages of a site are crawled. Include patterns
// select URLs after discovery; exclude patterns are applied during the crawl.
type URLFilters struct {
	IncludePatterns []string `json:"include_patterns,omitempty" yaml:"include_patterns"`
	ExcludePatterns []string `json:"exclude_patterns,omitempty" yaml:"exclude_patterns"`
}

// Empty reports whether no patterns are set.
func (f URLFilters) Empty() bool {
	return len(f.IncludePatterns) == 0 && len(f.ExcludePatterns) == 0
}

// Site is a registered documentation site.
type Site struct {
	Domain           string     `json:"domain"`
	Name             string     `json:"name"`
	Description      string     `json:"description,omitempty"`
	BaseURL          string     `json:"base_url"`
	Status           Status     `json:"status"`
	PageCount        int        `json:"page_count"`
	DiscoveredCount  int        `json:"discovered_count"`
	LastIndexedAt    *time.Time `json:"last_indexed_at,omitempty"`
	LastDiscoveredAt *time.Time `json:"last_discovered_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	ErrorMessage     string     `json:"error_message,omitempty"`
	URLFilters       URLFilters `json:"url_filters"`
}

func (s *Site) clone() *Site {
	c := *s
	c.URLFilters.IncludePatterns = append([]string(nil), s.URLFilters.IncludePatterns...)
	c.URLFilters.ExcludePatterns = append([]string(nil), s.URLFilters.ExcludePatterns...)
	if s.LastIndexedAt != nil {
		t := *s.LastIndexedAt
		c.LastIndexedAt = &t
	}
	if s.LastDiscoveredAt != nil {
		t := *s.LastDiscoveredAt
		c.LastDiscoveredAt = &t
	}
	return &c
}

// list names one of the per-site URL lists.
type list string

const (
	listDiscovered list = "discovered"
	listPages      list = "pages"
)

// backend persists sites and their URL lists. Every method is atomic.
type backend interface {
	get(domain string) (*Site, error)
	all() ([]*Site, error)
	create(site *Site) error
	update(domain string, fn func(*Site) error) error
	remove(domain string) error
	putList(l list, domain string, urls []string, fn func(*Site)) error
	getList(l list, domain string) ([]string, error)
	close() error
}
