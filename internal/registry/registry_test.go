package registry

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newRegistries(t *testing.T) map[string]*Registry {
	t.Helper()
	br, err := NewBolt(filepath.Join(t.TempDir(), "registry.db"), nil)
	if err != nil {
		t.Fatalf("NewBolt() error = %v", err)
	}
	t.Cleanup(func() { br.Close() })
	return map[string]*Registry{
		"bolt":   br,
		"memory": NewMemory(nil),
	}
}

// fakeClock returns a clock that advances one minute per call.
func fakeClock() func() time.Time {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		now = now.Add(time.Minute)
		return now
	}
}

func TestRegistry_AddAndGet(t *testing.T) {
	ctx := context.Background()
	for name, r := range newRegistries(t) {
		t.Run(name, func(t *testing.T) {
			site, err := r.AddSite(ctx, "https://Docs.Example.com/guide/", "", "Example docs")
			if err != nil {
				t.Fatalf("AddSite() error = %v", err)
			}
			if site.Domain != "docs.example.com" {
				t.Errorf("Domain = %q", site.Domain)
			}
			if site.Name != "docs.example.com" {
				t.Errorf("Name = %q, want domain as default", site.Name)
			}
			if site.Status != StatusPending {
				t.Errorf("Status = %q, want pending", site.Status)
			}

			got, err := r.GetSite(ctx, "docs.example.com")
			if err != nil {
				t.Fatalf("GetSite() error = %v", err)
			}
			if got.BaseURL != "https://Docs.Example.com/guide/" || got.Description != "Example docs" {
				t.Errorf("GetSite() = %+v", got)
			}
			if got.CreatedAt.IsZero() {
				t.Error("CreatedAt not set")
			}

			if _, err := r.AddSite(ctx, "https://docs.example.com/other", "Dup", ""); !errors.Is(err, ErrSiteExists) {
				t.Errorf("duplicate AddSite() error = %v, want ErrSiteExists", err)
			}

			ok, err := r.SiteExists(ctx, "docs.example.com")
			if err != nil || !ok {
				t.Errorf("SiteExists() = %v, %v", ok, err)
			}
			ok, err = r.SiteExists(ctx, "nope.com")
			if err != nil || ok {
				t.Errorf("SiteExists(missing) = %v, %v", ok, err)
			}
		})
	}
}

func TestRegistry_AddSite_InvalidURL(t *testing.T) {
	r := NewMemory(nil)
	for _, raw := range []string{"", "not a url", "/relative/path", "://bad"} {
		if _, err := r.AddSite(context.Background(), raw, "", ""); err == nil {
			t.Errorf("AddSite(%q) should fail", raw)
		}
	}
}

func TestRegistry_GetSite_NotFound(t *testing.T) {
	ctx := context.Background()
	for name, r := range newRegistries(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := r.GetSite(ctx, "missing.com"); !errors.Is(err, ErrSiteNotFound) {
				t.Errorf("GetSite() error = %v, want ErrSiteNotFound", err)
			}
			if err := r.UpdateStatus(ctx, "missing.com", StatusIndexed, ""); !errors.Is(err, ErrSiteNotFound) {
				t.Errorf("UpdateStatus() error = %v, want ErrSiteNotFound", err)
			}
			if err := r.RemoveSite(ctx, "missing.com"); !errors.Is(err, ErrSiteNotFound) {
				t.Errorf("RemoveSite() error = %v, want ErrSiteNotFound", err)
			}
			if _, err := r.DiscoveredURLs(ctx, "missing.com"); !errors.Is(err, ErrSiteNotFound) {
				t.Errorf("DiscoveredURLs() error = %v, want ErrSiteNotFound", err)
			}
			if err := r.SetIndexedPages(ctx, "missing.com", []string{"x"}); !errors.Is(err, ErrSiteNotFound) {
				t.Errorf("SetIndexedPages() error = %v, want ErrSiteNotFound", err)
			}
		})
	}
}

func TestRegistry_ListSites_NewestFirst(t *testing.T) {
	ctx := context.Background()
	for name, r := range newRegistries(t) {
		t.Run(name, func(t *testing.T) {
			r.now = fakeClock()
			for _, u := range []string{"https://a.com", "https://b.com", "https://c.com"} {
				if _, err := r.AddSite(ctx, u, "", ""); err != nil {
					t.Fatal(err)
				}
			}

			sites, err := r.ListSites(ctx)
			if err != nil {
				t.Fatalf("ListSites() error = %v", err)
			}
			want := []string{"c.com", "b.com", "a.com"}
			if len(sites) != len(want) {
				t.Fatalf("got %d sites, want %d", len(sites), len(want))
			}
			for i, w := range want {
				if sites[i].Domain != w {
					t.Errorf("sites[%d] = %s, want %s", i, sites[i].Domain, w)
				}
			}
		})
	}
}

func TestRegistry_UpdateStatus(t *testing.T) {
	ctx := context.Background()
	for name, r := range newRegistries(t) {
		t.Run(name, func(t *testing.T) {
			r.now = fakeClock()
			r.AddSite(ctx, "https://a.com", "", "")

			steps := []struct {
				status         Status
				msg            string
				wantDiscovered bool
				wantIndexed    bool
				wantMsg        string
			}{
				{StatusDiscovering, "", false, false, ""},
				{StatusError, "crawl failed", false, false, "crawl failed"},
				{StatusDiscovering, "ignored", false, false, ""},
				{StatusDiscovered, "", true, false, ""},
				{StatusIndexing, "", true, false, ""},
				{StatusIndexed, "", true, true, ""},
			}

			for _, step := range steps {
				if err := r.UpdateStatus(ctx, "a.com", step.status, step.msg); err != nil {
					t.Fatalf("UpdateStatus(%s) error = %v", step.status, err)
				}
				site, _ := r.GetSite(ctx, "a.com")
				if site.Status != step.status {
					t.Errorf("Status = %s, want %s", site.Status, step.status)
				}
				if (site.LastDiscoveredAt != nil) != step.wantDiscovered {
					t.Errorf("after %s LastDiscoveredAt = %v", step.status, site.LastDiscoveredAt)
				}
				if (site.LastIndexedAt != nil) != step.wantIndexed {
					t.Errorf("after %s LastIndexedAt = %v", step.status, site.LastIndexedAt)
				}
				if site.ErrorMessage != step.wantMsg {
					t.Errorf("after %s ErrorMessage = %q, want %q", step.status, site.ErrorMessage, step.wantMsg)
				}
			}

			if err := r.UpdateStatus(ctx, "a.com", Status("paused"), ""); !errors.Is(err, ErrInvalidStatus) {
				t.Errorf("UpdateStatus(invalid) error = %v, want ErrInvalidStatus", err)
			}
		})
	}
}

func TestRegistry_UpdateSite(t *testing.T) {
	ctx := context.Background()
	for name, r := range newRegistries(t) {
		t.Run(name, func(t *testing.T) {
			r.AddSite(ctx, "https://a.com", "", "")

			err := r.UpdateSite(ctx, "a.com", func(s *Site) {
				s.Name = "Renamed"
				s.Domain = "hijack.com"
			})
			if err != nil {
				t.Fatalf("UpdateSite() error = %v", err)
			}

			site, err := r.GetSite(ctx, "a.com")
			if err != nil {
				t.Fatal(err)
			}
			if site.Name != "Renamed" {
				t.Errorf("Name = %q, want Renamed", site.Name)
			}
			if site.Domain != "a.com" {
				t.Errorf("Domain changed to %q", site.Domain)
			}
		})
	}
}

func TestRegistry_SetURLFilters(t *testing.T) {
	ctx := context.Background()
	for name, r := range newRegistries(t) {
		t.Run(name, func(t *testing.T) {
			r.AddSite(ctx, "https://a.com", "", "")

			filters := URLFilters{IncludePatterns: []string{"/docs/"}, ExcludePatterns: []string{`\.pdf$`}}
			if err := r.SetURLFilters(ctx, "a.com", filters); err != nil {
				t.Fatalf("SetURLFilters() error = %v", err)
			}
			filters.IncludePatterns[0] = "mutated"

			site, _ := r.GetSite(ctx, "a.com")
			if len(site.URLFilters.IncludePatterns) != 1 || site.URLFilters.IncludePatterns[0] != "/docs/" {
				t.Errorf("IncludePatterns = %v", site.URLFilters.IncludePatterns)
			}
			if len(site.URLFilters.ExcludePatterns) != 1 {
				t.Errorf("ExcludePatterns = %v", site.URLFilters.ExcludePatterns)
			}

			if err := r.SetURLFilters(ctx, "a.com", URLFilters{IncludePatterns: []string{"("}}); err == nil {
				t.Error("invalid include pattern should be rejected")
			}
			if err := r.SetURLFilters(ctx, "a.com", URLFilters{ExcludePatterns: []string{"[z-a]"}}); err == nil {
				t.Error("invalid exclude pattern should be rejected")
			}
			site, _ = r.GetSite(ctx, "a.com")
			if site.URLFilters.IncludePatterns[0] != "/docs/" {
				t.Error("rejected filters overwrote stored ones")
			}
		})
	}
}

func TestRegistry_URLLists(t *testing.T) {
	ctx := context.Background()
	for name, r := range newRegistries(t) {
		t.Run(name, func(t *testing.T) {
			r.AddSite(ctx, "https://a.com", "", "")

			discovered := []string{"https://a.com/b", "https://a.com/a", "https://a.com/b"}
			if err := r.SetDiscoveredURLs(ctx, "a.com", discovered); err != nil {
				t.Fatalf("SetDiscoveredURLs() error = %v", err)
			}
			got, err := r.DiscoveredURLs(ctx, "a.com")
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != 2 || got[0] != "https://a.com/b" || got[1] != "https://a.com/a" {
				t.Errorf("DiscoveredURLs() = %v", got)
			}

			if err := r.SetIndexedPages(ctx, "a.com", []string{"https://a.com/a"}); err != nil {
				t.Fatal(err)
			}
			pages, _ := r.IndexedPages(ctx, "a.com")
			if len(pages) != 1 {
				t.Errorf("IndexedPages() = %v", pages)
			}

			site, _ := r.GetSite(ctx, "a.com")
			if site.DiscoveredCount != 2 || site.PageCount != 1 {
				t.Errorf("counts = %d/%d, want 2/1", site.DiscoveredCount, site.PageCount)
			}

			r.SetDiscoveredURLs(ctx, "a.com", nil)
			got, _ = r.DiscoveredURLs(ctx, "a.com")
			if got == nil || len(got) != 0 {
				t.Errorf("DiscoveredURLs() after clear = %v, want empty", got)
			}
			site, _ = r.GetSite(ctx, "a.com")
			if site.DiscoveredCount != 0 {
				t.Errorf("DiscoveredCount = %d, want 0", site.DiscoveredCount)
			}
		})
	}
}

func TestRegistry_RemoveSite(t *testing.T) {
	ctx := context.Background()
	for name, r := range newRegistries(t) {
		t.Run(name, func(t *testing.T) {
			r.AddSite(ctx, "https://a.com", "", "")
			r.SetDiscoveredURLs(ctx, "a.com", []string{"https://a.com/x"})
			r.SetIndexedPages(ctx, "a.com", []string{"https://a.com/x"})

			if err := r.RemoveSite(ctx, "a.com"); err != nil {
				t.Fatalf("RemoveSite() error = %v", err)
			}
			if _, err := r.GetSite(ctx, "a.com"); !errors.Is(err, ErrSiteNotFound) {
				t.Errorf("GetSite() after remove error = %v", err)
			}

			r.AddSite(ctx, "https://a.com", "", "")
			urls, err := r.DiscoveredURLs(ctx, "a.com")
			if err != nil || len(urls) != 0 {
				t.Errorf("re-added site inherited URLs: %v, %v", urls, err)
			}
		})
	}
}

func TestRegistry_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	r := NewMemory(nil)
	r.AddSite(ctx, "https://a.com", "", "")
	r.SetURLFilters(ctx, "a.com", URLFilters{IncludePatterns: []string{"x"}})

	site, _ := r.GetSite(ctx, "a.com")
	site.Name = "changed"
	site.URLFilters.IncludePatterns[0] = "changed"

	again, _ := r.GetSite(ctx, "a.com")
	if again.Name != "a.com" || again.URLFilters.IncludePatterns[0] != "x" {
		t.Errorf("caller mutation leaked into registry: %+v", again)
	}
}

func TestBoltRegistry_Persists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "registry.db")

	r, err := NewBolt(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	r.AddSite(ctx, "https://a.com", "A", "")
	r.UpdateStatus(ctx, "a.com", StatusDiscovered, "")
	r.SetDiscoveredURLs(ctx, "a.com", []string{"https://a.com/1"})
	r.Close()

	r, err = NewBolt(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	site, err := r.GetSite(ctx, "a.com")
	if err != nil {
		t.Fatal(err)
	}
	if site.Name != "A" || site.Status != StatusDiscovered || site.LastDiscoveredAt == nil {
		t.Errorf("reloaded site = %+v", site)
	}
	urls, _ := r.DiscoveredURLs(ctx, "a.com")
	if len(urls) != 1 {
		t.Errorf("DiscoveredURLs() = %v", urls)
	}
}

func TestStatus(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusDiscovering, StatusDiscovered, StatusIndexing, StatusIndexed, StatusError} {
		if !s.Valid() {
			t.Errorf("%s should be valid", s)
		}
	}
	if Status("").Valid() {
		t.Error("empty status should be invalid")
	}
}
