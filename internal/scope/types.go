package scope

// Rules defines the admission rules for one crawl run.
type Rules struct {
	// AllowedDomains lists hostnames that may be crawled. Matching is exact
	// (no subdomain or suffix matching). Empty means unrestricted.
	AllowedDomains []string

	// ExcludePatterns are regular expressions matched against the raw URL.
	ExcludePatterns []string

	// IncludePatterns are regular expressions for caller-side filtering.
	// Admission does not consult them; see Checker.Included.
	IncludePatterns []string

	// MaxPages is the page cap. Zero or negative means no cap.
	MaxPages int
}

// Ledger is the frontier view admission needs.
type Ledger interface {
	// Seen reports whether a normalized URL is visited or queued.
	Seen(normalizedURL string) bool
	// VisitedCount returns the number of claimed URLs.
	VisitedCount() int
}

// Reason explains why a URL was rejected.
type Reason int

// Rejection reasons, in the order they are checked.
const (
	ReasonNone Reason = iota
	ReasonInvalid
	ReasonScheme
	ReasonSeen
	ReasonDomain
	ReasonBase
	ReasonExcluded
	ReasonCapacity
)

// String returns the string representation of Reason.
func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "admitted"
	case ReasonInvalid:
		return "invalid_url"
	case ReasonScheme:
		return "unsupported_scheme"
	case ReasonSeen:
		return "already_seen"
	case ReasonDomain:
		return "domain_not_allowed"
	case ReasonBase:
		return "outside_base_host"
	case ReasonExcluded:
		return "excluded_pattern"
	case ReasonCapacity:
		return "page_cap_reached"
	default:
		return "unknown"
	}
}
