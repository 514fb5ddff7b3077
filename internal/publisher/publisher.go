// Package publisher serves the aggregated catalog as RSS and OPML feeds.
// Feeds are rendered from active records only, most recently seen first,
// and cached briefly so feed readers polling in lockstep don't hammer the
// store.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/feeds"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/larsks/hamrss/internal/catalog"
	"github.com/larsks/hamrss/internal/config"
	"github.com/larsks/hamrss/internal/observability"
	"github.com/larsks/hamrss/internal/storage"
)

const rssContentType = "application/rss+xml; charset=utf-8"

// Server renders feed endpoints backed by a storage.Store.
type Server struct {
	cfg     config.PublisherConfig
	store   storage.Store
	metrics *observability.Metrics
	logger  *slog.Logger
	cache   *expirable.LRU[string, string]
}

// New builds a feed server. metrics may be nil when no registry is wired
// (tests, one-shot CLI use).
func New(cfg config.PublisherConfig, store storage.Store, metrics *observability.Metrics, logger *slog.Logger) *Server {
	size := cfg.CacheSize
	if size <= 0 {
		size = 64
	}
	return &Server{
		cfg:     cfg,
		store:   store,
		metrics: metrics,
		logger:  logger.With("component", "publisher"),
		cache:   expirable.NewLRU[string, string](size, nil, cfg.CacheTTL),
	}
}

// Router assembles the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.observe)

	r.Get("/", s.handleIndex)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/feed", s.handleAllFeed)
	r.Get("/feed/{source}", s.handleSourceFeed)
	r.Get("/feed/{source}/{category}", s.handleCategoryFeed)
	r.Get("/opml", s.handleOPML)

	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))
	}

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("feed server listening", "addr", s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down feed server: %w", err)
		}
		return nil
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("feed server: %w", err)
		}
		return nil
	}
}

// observe records one FeedRequestsTotal sample per request, labeled with
// the chi route pattern so path parameters don't explode cardinality.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		if s.metrics == nil {
			return
		}
		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		s.metrics.FeedRequestsTotal.WithLabelValues(route, strconv.Itoa(ww.Status())).Inc()
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	sources, err := s.store.ActiveSources(r.Context())
	if err != nil {
		s.serverError(w, "listing sources", err)
		return
	}

	body := map[string]any{
		"service": "hamrss",
		"version": config.Version,
		"endpoints": map[string]string{
			"/feed":                    "all items",
			"/feed/{source}":           "one source",
			"/feed/{source}/{category}": "one source category",
			"/opml":                    "feed directory",
			"/healthz":                 "liveness probe",
		},
		"sources": sources,
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn("writing index response", "error", err)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if _, err := s.store.ActiveSources(r.Context()); err != nil {
		http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ok")
}

func (s *Server) handleAllFeed(w http.ResponseWriter, r *http.Request) {
	s.serveFeed(w, r, storage.ProductFilter{}, s.cfg.FeedTitle, s.cfg.FeedDescription, func() string {
		return "no active products"
	})
}

func (s *Server) handleSourceFeed(w http.ResponseWriter, r *http.Request) {
	source := chi.URLParam(r, "source")
	title := fmt.Sprintf("%s - %s", s.cfg.FeedTitle, strings.ToUpper(source))
	desc := fmt.Sprintf("Items from %s", source)

	s.serveFeed(w, r, storage.ProductFilter{Source: source}, title, desc, func() string {
		available, err := s.store.ActiveSources(r.Context())
		if err != nil {
			return fmt.Sprintf("no active products for source %q", source)
		}
		return fmt.Sprintf("no active products for source %q (available: %s)", source, strings.Join(available, ", "))
	})
}

func (s *Server) handleCategoryFeed(w http.ResponseWriter, r *http.Request) {
	source := chi.URLParam(r, "source")
	category := chi.URLParam(r, "category")
	title := fmt.Sprintf("%s - %s %s", s.cfg.FeedTitle, strings.ToUpper(source), category)
	desc := fmt.Sprintf("%s items from %s", category, source)

	s.serveFeed(w, r, storage.ProductFilter{Source: source, Category: category}, title, desc, func() string {
		available, err := s.store.ActiveCategories(r.Context(), source)
		if err != nil || len(available) == 0 {
			return fmt.Sprintf("no active products for %s/%s", source, category)
		}
		return fmt.Sprintf("no active products for %s/%s (available categories: %s)", source, category, strings.Join(available, ", "))
	})
}

// serveFeed renders one RSS feed, consulting the response cache first.
// Only successful renders are cached; an empty result set is a 404 carrying
// the notFound message and is always recomputed.
func (s *Server) serveFeed(w http.ResponseWriter, r *http.Request, filter storage.ProductFilter, title, description string, notFound func() string) {
	key := r.URL.Path
	if body, ok := s.cache.Get(key); ok {
		w.Header().Set("Content-Type", rssContentType)
		fmt.Fprint(w, body)
		return
	}

	filter.Limit = s.cfg.MaxFeedItems
	products, err := s.store.ActiveProducts(r.Context(), filter)
	if err != nil {
		s.serverError(w, "querying products", err)
		return
	}
	if len(products) == 0 {
		http.Error(w, notFound(), http.StatusNotFound)
		return
	}

	body, err := s.renderFeed(products, title, description, key)
	if err != nil {
		s.serverError(w, "rendering feed", err)
		return
	}

	s.cache.Add(key, body)
	w.Header().Set("Content-Type", rssContentType)
	fmt.Fprint(w, body)
}

func (s *Server) renderFeed(products []storage.StoredProduct, title, description, path string) (string, error) {
	updated := time.Now().UTC()
	if len(products) > 0 {
		updated = products[0].LastSeen
	}

	feed := &feeds.Feed{
		Title:       title,
		Link:        &feeds.Link{Href: s.cfg.FeedLink + path},
		Description: description,
		Updated:     updated,
	}

	for _, p := range products {
		feed.Items = append(feed.Items, feedItem(p))
	}

	rss, err := feed.ToRss()
	if err != nil {
		return "", fmt.Errorf("encoding rss: %w", err)
	}
	return rss, nil
}

// feedItem maps one stored product to one RSS entry. The entry title is
// synthesized as "[source] title - price"; the body carries the remaining
// fields as an HTML table so feed readers show everything at a glance.
func feedItem(p storage.StoredProduct) *feeds.Item {
	titleParts := []string{fmt.Sprintf("[%s] %s", p.SourceName, p.Title)}
	if price := catalog.Deref(p.Price); price != "" {
		titleParts = append(titleParts, "-", price)
	}

	item := &feeds.Item{
		Title:       strings.Join(titleParts, " "),
		Link:        &feeds.Link{Href: p.URL},
		Id:          p.URL,
		Description: itemBody(p),
		Created:     p.FirstSeen,
		Updated:     p.LastSeen,
	}
	if author := catalog.Deref(p.Author); author != "" {
		item.Author = &feeds.Author{Name: author}
	}
	return item
}

func itemBody(p storage.StoredProduct) string {
	var b strings.Builder
	b.WriteString("<table border='1' cellpadding='5' cellspacing='0'>\n")

	row := func(label, value string) {
		if value == "" {
			return
		}
		fmt.Fprintf(&b, "<tr><td><strong>%s:</strong></td><td>%s</td></tr>\n",
			html.EscapeString(label), html.EscapeString(value))
	}

	row("Description", catalog.Deref(p.Description))
	row("Manufacturer", catalog.Deref(p.Manufacturer))
	row("Model", catalog.Deref(p.Model))
	row("Price", catalog.Deref(p.Price))
	row("Location", catalog.Deref(p.Location))
	row("Date Added", catalog.Deref(p.DateAdded))
	row("Source", p.SourceName)
	row("Category", p.CategoryName)
	row("First Seen", p.FirstSeen.UTC().Format("2006-01-02 15:04:05 UTC"))
	row("Last Seen", p.LastSeen.UTC().Format("2006-01-02 15:04:05 UTC"))

	if p.URL != "" {
		fmt.Fprintf(&b, "<tr><td><strong>Link:</strong></td><td><a href=%q>View Item</a></td></tr>\n",
			p.URL)
	}
	b.WriteString("</table>")

	if img := catalog.Deref(p.ImageURL); img != "" {
		fmt.Fprintf(&b, "<br><img src=%q alt=\"Product Image\" style=\"max-width: 300px;\">", img)
	}
	return b.String()
}

func (s *Server) serverError(w http.ResponseWriter, action string, err error) {
	s.logger.Error(action, "error", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}
