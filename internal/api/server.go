// Package api exposes the site registry, the pipeline triggers and search
// over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/docs-hound/docshound/internal/docstore"
	"github.com/docs-hound/docshound/internal/logger"
	"github.com/docs-hound/docshound/internal/metrics"
	"github.com/docs-hound/docshound/internal/pipeline"
	"github.com/docs-hound/docshound/internal/registry"
	"github.com/docs-hound/docshound/internal/scope"
	"github.com/docs-hound/docshound/internal/state"
)

// DefaultRequestTimeout bounds synchronous handlers. Discovery and indexing
// run in the background and are not subject to it.
const DefaultRequestTimeout = 60 * time.Second

// SiteRegistry is the part of the registry the API serves.
type SiteRegistry interface {
	AddSite(ctx context.Context, rawURL, name, description string) (*registry.Site, error)
	GetSite(ctx context.Context, domain string) (*registry.Site, error)
	ListSites(ctx context.Context) ([]*registry.Site, error)
	SetURLFilters(ctx context.Context, domain string, filters registry.URLFilters) error
	RemoveSite(ctx context.Context, domain string) error
	DiscoveredURLs(ctx context.Context, domain string) ([]string, error)
	IndexedPages(ctx context.Context, domain string) ([]string, error)
}

// Runner runs the pipeline stages.
type Runner interface {
	Discover(ctx context.Context, domain string) (*pipeline.DiscoverResult, error)
	Index(ctx context.Context, domain string, urls []string) (*pipeline.IndexResult, error)
	Search(ctx context.Context, query, source string, limit int) ([]docstore.SearchResult, error)
}

// Config wires the server's collaborators.
type Config struct {
	Registry SiteRegistry
	Pipeline Runner
	Store    docstore.Store
	Metrics  *metrics.Collector
	Logger   *logger.Logger

	// RequestTimeout defaults to DefaultRequestTimeout.
	RequestTimeout time.Duration
}

// Server serves the HTTP API. Discovery and indexing requests start a
// background run and return immediately; at most one run per site is
// active at a time.
type Server struct {
	router   chi.Router
	registry SiteRegistry
	pipeline Runner
	store    docstore.Store
	logger   *logger.Logger

	// ctx bounds background runs.
	ctx     context.Context
	mu      sync.Mutex
	running map[string]string
	wg      sync.WaitGroup
}

// NewServer constructs a Server with middleware and routes. Background runs
// stop when ctx is cancelled.
func NewServer(ctx context.Context, cfg Config) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}

	s := &Server{
		registry: cfg.Registry,
		pipeline: cfg.Pipeline,
		store:    cfg.Store,
		logger:   logger.OrNop(cfg.Logger).WithComponent("api"),
		ctx:      ctx,
		running:  make(map[string]string),
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))

	r.Get("/healthz", s.healthz)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(timeoutMiddleware(cfg.RequestTimeout))

		r.Route("/sites", func(r chi.Router) {
			r.Get("/", s.listSites)
			r.Post("/", s.addSite)
			r.Route("/{domain}", func(r chi.Router) {
				r.Get("/", s.getSite)
				r.Delete("/", s.removeSite)
				r.Put("/filters", s.setFilters)
				r.Get("/urls", s.siteURLs)
			})
		})
		r.Post("/discover", s.discover)
		r.Post("/index", s.index)
		r.Get("/runs", s.runs)
		r.Get("/search", s.search)
		r.Get("/pages", s.page)
		r.Get("/pages/markdown", s.pageMarkdown)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Wait blocks until every background run has returned.
func (s *Server) Wait() {
	s.wg.Wait()
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type addSiteRequest struct {
	URL         string `json:"url"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (s *Server) listSites(w http.ResponseWriter, r *http.Request) {
	sites, err := s.registry.ListSites(r.Context())
	if err != nil {
		s.writeErr(w, err)
		return
	}
	if sites == nil {
		sites = []*registry.Site{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sites": sites})
}

func (s *Server) addSite(w http.ResponseWriter, r *http.Request) {
	var req addSiteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	if !validSiteURL(req.URL) {
		writeError(w, http.StatusBadRequest, "invalid url")
		return
	}

	site, err := s.registry.AddSite(r.Context(), req.URL, req.Name, req.Description)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, site)
}

func (s *Server) getSite(w http.ResponseWriter, r *http.Request) {
	site, err := s.registry.GetSite(r.Context(), chi.URLParam(r, "domain"))
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, site)
}

// removeSite deletes the site's documents, then the site. A failure to
// delete documents is logged and does not stop the removal.
func (s *Server) removeSite(w http.ResponseWriter, r *http.Request) {
	domain := chi.URLParam(r, "domain")
	if _, err := s.registry.GetSite(r.Context(), domain); err != nil {
		s.writeErr(w, err)
		return
	}
	if s.busy(domain) {
		writeError(w, http.StatusConflict, "a run is in progress for "+domain)
		return
	}

	removed, err := s.store.DeleteBySource(r.Context(), domain)
	if err != nil {
		s.logger.WithDomain(domain).WithError(err).Warn("Failed to delete documents")
	}
	if err := s.registry.RemoveSite(r.Context(), domain); err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "documents_removed": removed})
}

func (s *Server) setFilters(w http.ResponseWriter, r *http.Request) {
	domain := chi.URLParam(r, "domain")
	var filters registry.URLFilters
	if err := json.NewDecoder(r.Body).Decode(&filters); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if err := s.registry.SetURLFilters(r.Context(), domain, filters); err != nil {
		if errors.Is(err, registry.ErrSiteNotFound) {
			s.writeErr(w, err)
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	site, err := s.registry.GetSite(r.Context(), domain)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, site)
}

func (s *Server) siteURLs(w http.ResponseWriter, r *http.Request) {
	domain := chi.URLParam(r, "domain")
	discovered, err := s.registry.DiscoveredURLs(r.Context(), domain)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	indexed, err := s.registry.IndexedPages(r.Context(), domain)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"domain":     domain,
		"discovered": nonNil(discovered),
		"indexed":    nonNil(indexed),
	})
}

type runRequest struct {
	Domain string   `json:"domain"`
	URLs   []string `json:"urls"`
}

func (s *Server) discover(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Domain == "" {
		writeError(w, http.StatusBadRequest, "domain is required")
		return
	}
	if _, err := s.registry.GetSite(r.Context(), req.Domain); err != nil {
		s.writeErr(w, err)
		return
	}

	started := s.start(req.Domain, string(registry.StatusDiscovering), func(ctx context.Context) error {
		_, err := s.pipeline.Discover(ctx, req.Domain)
		return err
	})
	if !started {
		writeError(w, http.StatusConflict, "a run is in progress for "+req.Domain)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"success": true,
		"domain":  req.Domain,
		"status":  registry.StatusDiscovering,
	})
}

func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Domain == "" {
		writeError(w, http.StatusBadRequest, "domain is required")
		return
	}
	if len(req.URLs) == 0 {
		writeError(w, http.StatusBadRequest, "urls are required")
		return
	}
	if _, err := s.registry.GetSite(r.Context(), req.Domain); err != nil {
		s.writeErr(w, err)
		return
	}

	urls := append([]string(nil), req.URLs...)
	started := s.start(req.Domain, string(registry.StatusIndexing), func(ctx context.Context) error {
		_, err := s.pipeline.Index(ctx, req.Domain, urls)
		return err
	})
	if !started {
		writeError(w, http.StatusConflict, "a run is in progress for "+req.Domain)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"success": true,
		"domain":  req.Domain,
		"status":  registry.StatusIndexing,
		"urls":    len(urls),
	})
}

func (s *Server) runs(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	running := make(map[string]string, len(s.running))
	for domain, stage := range s.running {
		running[domain] = stage
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"running": running})
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := strings.TrimSpace(q.Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	limit := docstore.DefaultSearchLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	results, err := s.pipeline.Search(r.Context(), query, q.Get("source"), limit)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	if results == nil {
		results = []docstore.SearchResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"query": query, "results": results})
}

func (s *Server) page(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) pageMarkdown(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.lookup(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(doc.Content)); err != nil {
		s.logger.WithError(err).Debug("Write markdown failed")
	}
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*docstore.Document, bool) {
	pageURL := r.URL.Query().Get("url")
	if pageURL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return nil, false
	}
	source := r.URL.Query().Get("source")
	if source == "" {
		domain, err := scope.ExtractDomain(pageURL)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid url")
			return nil, false
		}
		source = domain
	}
	doc, err := s.store.Get(r.Context(), state.Normalize(pageURL), source)
	if err != nil {
		s.writeErr(w, err)
		return nil, false
	}
	return doc, true
}

// start launches run for domain unless one is already active.
func (s *Server) start(domain, stage string, run func(ctx context.Context) error) bool {
	s.mu.Lock()
	if _, ok := s.running[domain]; ok {
		s.mu.Unlock()
		return false
	}
	s.running[domain] = stage
	s.wg.Add(1)
	s.mu.Unlock()

	log := s.logger.WithDomain(domain)
	log.Infof("Started %s run", stage)

	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.running, domain)
			s.mu.Unlock()
		}()

		if err := run(s.ctx); err != nil {
			log.WithError(err).Errorf("Background %s run failed", stage)
			return
		}
		log.Infof("Finished %s run", stage)
	}()
	return true
}

func (s *Server) busy(domain string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.running[domain]
	return ok
}

func (s *Server) writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, registry.ErrSiteNotFound):
		writeError(w, http.StatusNotFound, "site not found")
	case errors.Is(err, docstore.ErrNotFound):
		writeError(w, http.StatusNotFound, "document not found")
	case errors.Is(err, registry.ErrSiteExists):
		writeError(w, http.StatusConflict, "site already exists")
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "request timed out")
	default:
		s.logger.WithError(err).Error("Request failed")
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func validSiteURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Hostname() != ""
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
