package sitemap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/docs-hound/docshound/internal/fetch"
)

func newServer(t *testing.T, files map[string]string) *httptest.Server {
	t.Helper()
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprintf(w, body, server.URL)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestFinder_Discover(t *testing.T) {
	server := newServer(t, map[string]string{
		"/sitemap.xml": `<?xml version="1.0"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>%[1]s/guide</loc></url>
  <url><loc>%[1]s/guide/</loc></url>
  <url><loc>https://elsewhere.example.org/page</loc></url>
  <url><loc>%[1]s/api</loc></url>
</urlset>`,
	})

	got, err := New(fetch.NewClient(fetch.Config{}), 0, nil).Discover(context.Background(), server.URL+"/docs")
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	want := []string{server.URL + "/guide", server.URL + "/api"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Discover() = %v, want %v", got, want)
	}
}

func TestFinder_IndexAndRobots(t *testing.T) {
	server := newServer(t, map[string]string{
		"/sitemap_index.xml": `<sitemapindex>
  <sitemap><loc>%[1]s/sitemaps/a.xml</loc></sitemap>
  <sitemap><loc>%[1]s/sitemaps/missing.xml</loc></sitemap>
</sitemapindex>`,
		"/sitemaps/a.xml": `<urlset><url><loc>%[1]s/a</loc></url></urlset>`,
		"/robots.txt":     "User-agent: *\nDisallow: /private\nSitemap: %[1]s/extra.xml\n",
		"/extra.xml":      `<urlset><url><loc>%[1]s/b</loc></url><url><loc>%[1]s/a#top</loc></url></urlset>`,
	})

	got, err := New(fetch.NewClient(fetch.Config{}), 0, nil).Discover(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	want := []string{server.URL + "/a", server.URL + "/b"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Discover() = %v, want %v", got, want)
	}
}

func TestFinder_MaxURLs(t *testing.T) {
	server := newServer(t, map[string]string{
		"/sitemap.xml": `<urlset>
  <url><loc>%[1]s/1</loc></url><url><loc>%[1]s/2</loc></url><url><loc>%[1]s/3</loc></url>
</urlset>`,
	})

	got, _ := New(fetch.NewClient(fetch.Config{}), 2, nil).Discover(context.Background(), server.URL)
	if len(got) != 2 {
		t.Errorf("Discover() returned %d URLs, want 2", len(got))
	}
}

func TestFinder_NoSitemaps(t *testing.T) {
	server := newServer(t, map[string]string{"/sitemap.xml": "not xml at all"})

	got, err := New(fetch.NewClient(fetch.Config{}), 0, nil).Discover(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Discover() = %v, want nothing", got)
	}
}

func TestFinder_InvalidBase(t *testing.T) {
	_, err := New(fetch.NewClient(fetch.Config{}), 0, nil).Discover(context.Background(), "/relative")
	if !errors.Is(err, ErrInvalidBase) {
		t.Errorf("Discover() error = %v, want ErrInvalidBase", err)
	}
}

func TestParseRobots(t *testing.T) {
	body := []byte("User-agent: *\nsitemap: https://a.com/one.xml\n# Sitemap: commented\nSITEMAP:https://a.com/two.xml\nSitemap:\n")
	want := []string{"https://a.com/one.xml", "https://a.com/two.xml"}
	if got := parseRobots(body); !reflect.DeepEqual(got, want) {
		t.Errorf("parseRobots() = %v, want %v", got, want)
	}
}
