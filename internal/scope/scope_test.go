package scope

import (
	"testing"

	"github.com/docs-hound/docshound/internal/state"
)

// fakeLedger is a static frontier view.
type fakeLedger struct {
	seen    map[string]bool
	visited int
}

func (f *fakeLedger) Seen(u string) bool { return f.seen[u] }
func (f *fakeLedger) VisitedCount() int  { return f.visited }

// =============================================================================
// Checker Tests
// =============================================================================

func TestNewChecker(t *testing.T) {
	tests := []struct {
		name    string
		rules   Rules
		wantErr bool
	}{
		{"empty rules", Rules{}, false},
		{"valid patterns", Rules{ExcludePatterns: []string{`/blog/`}, IncludePatterns: []string{`^https://a\.com/docs`}}, false},
		{"invalid exclude", Rules{ExcludePatterns: []string{`[invalid`}}, true},
		{"invalid include", Rules{IncludePatterns: []string{`(unclosed`}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker, err := NewChecker(tt.rules, nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewChecker() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && checker == nil {
				t.Error("NewChecker() returned nil without error")
			}
		})
	}
}

func TestChecker_Rejection(t *testing.T) {
	ledger := &fakeLedger{
		seen: map[string]bool{
			"https://docs.example.com/seen": true,
		},
		visited: 1,
	}

	tests := []struct {
		name    string
		rules   Rules
		url     string
		baseURL string
		want    Reason
	}{
		{
			name: "admitted",
			url:  "https://docs.example.com/guide",
			want: ReasonNone,
		},
		{
			name: "mailto",
			url:  "mailto:a@b.com",
			want: ReasonScheme,
		},
		{
			name: "javascript",
			url:  "javascript:void(0)",
			want: ReasonScheme,
		},
		{
			name: "tel",
			url:  "tel:+15551234",
			want: ReasonScheme,
		},
		{
			name: "ftp",
			url:  "ftp://docs.example.com/file",
			want: ReasonScheme,
		},
		{
			name: "relative is not a URL",
			url:  "/docs/intro",
			want: ReasonScheme,
		},
		{
			name: "unparseable",
			url:  "http://[::1",
			want: ReasonInvalid,
		},
		{
			name: "seen after normalization",
			url:  "https://docs.example.com/seen/?tab=2#x",
			want: ReasonSeen,
		},
		{
			name:  "allowed domain exact",
			rules: Rules{AllowedDomains: []string{"docs.example.com"}},
			url:   "https://docs.example.com/x",
			want:  ReasonNone,
		},
		{
			name:  "sibling subdomain rejected",
			rules: Rules{AllowedDomains: []string{"docs.example.com"}},
			url:   "https://other.example.com/page",
			want:  ReasonDomain,
		},
		{
			name:  "parent domain rejected",
			rules: Rules{AllowedDomains: []string{"example.com"}},
			url:   "https://docs.example.com/page",
			want:  ReasonDomain,
		},
		{
			name:  "allowed domain ignores port",
			rules: Rules{AllowedDomains: []string{"127.0.0.1"}},
			url:   "http://127.0.0.1:8080/x",
			want:  ReasonNone,
		},
		{
			name:    "base host mismatch",
			url:     "https://cdn.example.com/x",
			baseURL: "https://docs.example.com/",
			want:    ReasonBase,
		},
		{
			name:    "base host match",
			url:     "https://docs.example.com/x",
			baseURL: "https://docs.example.com/start",
			want:    ReasonNone,
		},
		{
			name:  "excluded",
			rules: Rules{ExcludePatterns: []string{`/blog/`}},
			url:   "https://docs.example.com/blog/post",
			want:  ReasonExcluded,
		},
		{
			name:  "exclude sees raw query",
			rules: Rules{ExcludePatterns: []string{`\?print=1`}},
			url:   "https://docs.example.com/x?print=1",
			want:  ReasonExcluded,
		},
		{
			name:  "capacity reached",
			rules: Rules{MaxPages: 1},
			url:   "https://docs.example.com/new",
			want:  ReasonCapacity,
		},
		{
			name:  "capacity remaining",
			rules: Rules{MaxPages: 2},
			url:   "https://docs.example.com/new",
			want:  ReasonNone,
		},
		{
			name:  "include patterns do not gate admission",
			rules: Rules{IncludePatterns: []string{`/api/`}},
			url:   "https://docs.example.com/guide",
			want:  ReasonNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker, err := NewChecker(tt.rules, ledger)
			if err != nil {
				t.Fatalf("NewChecker() error = %v", err)
			}
			if got := checker.Rejection(tt.url, tt.baseURL); got != tt.want {
				t.Errorf("Rejection(%q) = %v, want %v", tt.url, got, tt.want)
			}
			if got := checker.ShouldCrawl(tt.url, tt.baseURL); got != (tt.want == ReasonNone) {
				t.Errorf("ShouldCrawl(%q) = %v, want %v", tt.url, got, tt.want == ReasonNone)
			}
		})
	}
}

func TestChecker_UsesLiveFrontier(t *testing.T) {
	frontier := state.NewFrontier(10)
	checker, err := NewChecker(Rules{MaxPages: 2}, frontier)
	if err != nil {
		t.Fatalf("NewChecker() error = %v", err)
	}

	if !checker.ShouldCrawl("https://a.com/x", "") {
		t.Fatal("fresh URL rejected")
	}

	frontier.TryQueue(state.Normalize("https://a.com/x"))
	if got := checker.Rejection("https://a.com/x/", ""); got != ReasonSeen {
		t.Errorf("queued URL rejection = %v, want already_seen", got)
	}

	frontier.Claim(state.Normalize("https://a.com/1"), 2)
	frontier.Claim(state.Normalize("https://a.com/2"), 2)
	if got := checker.Rejection("https://a.com/3", ""); got != ReasonCapacity {
		t.Errorf("rejection at cap = %v, want page_cap_reached", got)
	}
}

func TestChecker_Included(t *testing.T) {
	checker, err := NewChecker(Rules{
		IncludePatterns: []string{`/docs/`, `/api/`},
		ExcludePatterns: []string{`/docs/legacy/`},
	}, nil)
	if err != nil {
		t.Fatalf("NewChecker() error = %v", err)
	}

	if !checker.Included("https://a.com/docs/intro") {
		t.Error("docs URL should be included")
	}
	if checker.Included("https://a.com/blog/intro") {
		t.Error("blog URL should not be included")
	}

	got := checker.FilterIncluded([]string{
		"https://a.com/docs/intro",
		"https://a.com/blog/x",
		"https://a.com/docs/legacy/old",
		"https://a.com/api/ref",
	})
	want := []string{"https://a.com/docs/intro", "https://a.com/api/ref"}
	if len(got) != len(want) {
		t.Fatalf("FilterIncluded() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("FilterIncluded()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestChecker_IncludedWithoutPatterns(t *testing.T) {
	checker, _ := NewChecker(Rules{}, nil)
	if !checker.Included("https://anything.example/x") {
		t.Error("everything is included when no include patterns are set")
	}
}

// =============================================================================
// Helper Tests
// =============================================================================

func TestSameHost(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"https://a.com/x", "https://a.com/", true},
		{"http://a.com/x", "https://A.com/", true},
		{"https://a.com:8443/x", "https://a.com/", true},
		{"https://b.a.com/x", "https://a.com/", false},
		{"http://[::1", "https://a.com/", false},
	}
	for _, tt := range tests {
		if got := SameHost(tt.a, tt.b); got != tt.want {
			t.Errorf("SameHost(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestValidatePatterns(t *testing.T) {
	if err := ValidatePatterns([]string{`^/docs`, `\.pdf$`}); err != nil {
		t.Errorf("ValidatePatterns() error = %v", err)
	}
	if err := ValidatePatterns([]string{`ok`, `[bad`}); err == nil {
		t.Error("ValidatePatterns() should reject invalid regex")
	}
}

func TestExtractDomain(t *testing.T) {
	got, err := ExtractDomain("https://Docs.Example.com:443/x")
	if err != nil || got != "docs.example.com" {
		t.Errorf("ExtractDomain() = %q, %v", got, err)
	}
	if _, err := ExtractDomain("not-a-url"); err == nil {
		t.Error("ExtractDomain() should fail without a host")
	}
}

func TestReason_String(t *testing.T) {
	if ReasonSeen.String() != "already_seen" {
		t.Errorf("ReasonSeen.String() = %q", ReasonSeen.String())
	}
	if Reason(99).String() != "unknown" {
		t.Errorf("Reason(99).String() = %q", Reason(99).String())
	}
}
