package publisher

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/larsks/hamrss/internal/catalog"
	"github.com/larsks/hamrss/internal/config"
	"github.com/larsks/hamrss/internal/observability"
	"github.com/larsks/hamrss/internal/storage"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func testConfig() config.PublisherConfig {
	return config.PublisherConfig{
		Listen:          ":0",
		FeedTitle:       "Ham Radio Equipment",
		FeedLink:        "http://feeds.example.test",
		FeedDescription: "Used ham radio equipment",
		MaxFeedItems:    100,
		CacheTTL:        time.Minute,
		CacheSize:       8,
	}
}

// seededStore returns an in-memory store holding three active products:
// two from hro/used and one from qth/Towers.
func seededStore(t *testing.T) storage.Store {
	t.Helper()
	ctx := context.Background()

	store, err := storage.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	run, err := store.CreateRun(ctx, nil)
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	hro := []catalog.Product{
		{
			URL:          "https://www.hamradio.com/detail.cfm?pid=1",
			Title:        "YAESU FT-991A",
			Manufacturer: catalog.Str("YAESU"),
			Model:        catalog.Str("FT-991A"),
			Price:        catalog.Str("$899.95"),
			Location:     catalog.Str("Anaheim, CA"),
		},
		{
			URL:      "https://www.hamradio.com/detail.cfm?pid=2",
			Title:    "ICOM IC-7300",
			Price:    catalog.Str("$749.00"),
			ImageURL: catalog.Str("https://www.hamradio.com/images/7300.jpg"),
		},
	}
	if _, err := store.UpsertProducts(ctx, run.ID, "hro", "used", hro); err != nil {
		t.Fatalf("UpsertProducts hro: %v", err)
	}

	qth := []catalog.Product{
		{
			URL:    "https://swap.qth.com/view_ad.php?counter=100",
			Title:  "Rohn 25G Tower",
			Price:  catalog.Str("$300"),
			Author: catalog.Str("W1AW"),
		},
	}
	if _, err := store.UpsertProducts(ctx, run.ID, "qth", "Towers", qth); err != nil {
		t.Fatalf("UpsertProducts qth: %v", err)
	}

	return store
}

func get(t *testing.T, handler http.Handler, path string) (int, string, http.Header) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	body, _ := io.ReadAll(rec.Result().Body)
	return rec.Code, string(body), rec.Header()
}

func TestAllItemsFeed(t *testing.T) {
	srv := New(testConfig(), seededStore(t), nil, testLogger)
	router := srv.Router()

	code, body, headers := get(t, router, "/feed")
	if code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body: %s)", code, body)
	}
	if ct := headers.Get("Content-Type"); ct != rssContentType {
		t.Errorf("Content-Type = %q, want %q", ct, rssContentType)
	}
	if !strings.HasPrefix(body, "<?xml") {
		t.Errorf("body does not start with XML declaration: %.60q", body)
	}

	for _, want := range []string{
		"[hro] YAESU FT-991A - $899.95",
		"[hro] ICOM IC-7300 - $749.00",
		"[qth] Rohn 25G Tower - $300",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing entry title %q", want)
		}
	}
	if !strings.Contains(body, "W1AW") {
		t.Error("body missing author callsign")
	}
	if !strings.Contains(body, "7300.jpg") {
		t.Error("body missing product image")
	}
}

func TestSourceFeedFiltered(t *testing.T) {
	srv := New(testConfig(), seededStore(t), nil, testLogger)
	router := srv.Router()

	code, body, _ := get(t, router, "/feed/hro")
	if code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}
	if !strings.Contains(body, "[hro]") {
		t.Error("body missing hro entries")
	}
	if strings.Contains(body, "[qth]") {
		t.Error("hro feed leaked qth entries")
	}
	if !strings.Contains(body, "Ham Radio Equipment - HRO") {
		t.Error("body missing source-specific feed title")
	}
}

func TestCategoryFeedFiltered(t *testing.T) {
	srv := New(testConfig(), seededStore(t), nil, testLogger)
	router := srv.Router()

	code, body, _ := get(t, router, "/feed/qth/Towers")
	if code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}
	if !strings.Contains(body, "Rohn 25G Tower") {
		t.Error("body missing category entry")
	}
}

func TestUnknownSourceLists404(t *testing.T) {
	srv := New(testConfig(), seededStore(t), nil, testLogger)
	router := srv.Router()

	code, body, _ := get(t, router, "/feed/nope")
	if code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", code)
	}
	if !strings.Contains(body, "hro") || !strings.Contains(body, "qth") {
		t.Errorf("404 body does not name available sources: %q", body)
	}
}

func TestUnknownCategoryLists404(t *testing.T) {
	srv := New(testConfig(), seededStore(t), nil, testLogger)
	router := srv.Router()

	code, body, _ := get(t, router, "/feed/hro/nope")
	if code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", code)
	}
	if !strings.Contains(body, "used") {
		t.Errorf("404 body does not name available categories: %q", body)
	}
}

func TestFeedServedFromCache(t *testing.T) {
	store := seededStore(t)
	srv := New(testConfig(), store, nil, testLogger)
	router := srv.Router()

	if code, _, _ := get(t, router, "/feed"); code != http.StatusOK {
		t.Fatalf("warmup status = %d, want 200", code)
	}

	// With the store gone, only the cache can answer.
	store.Close()

	code, body, _ := get(t, router, "/feed")
	if code != http.StatusOK {
		t.Fatalf("cached status = %d, want 200 (body: %s)", code, body)
	}
	if !strings.Contains(body, "[hro] YAESU FT-991A") {
		t.Error("cached body missing entry")
	}
}

func TestErrorResponsesNotCached(t *testing.T) {
	srv := New(testConfig(), seededStore(t), nil, testLogger)
	router := srv.Router()

	if code, _, _ := get(t, router, "/feed/nope"); code != http.StatusNotFound {
		t.Fatal("expected 404 for unknown source")
	}
	if _, ok := srv.cache.Get("/feed/nope"); ok {
		t.Error("404 response was cached")
	}
}

func TestOPMLListsFeeds(t *testing.T) {
	srv := New(testConfig(), seededStore(t), nil, testLogger)
	router := srv.Router()

	code, body, headers := get(t, router, "/opml")
	if code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}
	if ct := headers.Get("Content-Type"); !strings.Contains(ct, "application/xml") {
		t.Errorf("Content-Type = %q", ct)
	}

	for _, want := range []string{
		`xmlUrl="http://feeds.example.test/feed"`,
		`xmlUrl="http://feeds.example.test/feed/hro"`,
		`xmlUrl="http://feeds.example.test/feed/hro/used"`,
		`xmlUrl="http://feeds.example.test/feed/qth/Towers"`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("opml missing %s", want)
		}
	}
}

func TestHealthz(t *testing.T) {
	srv := New(testConfig(), seededStore(t), nil, testLogger)
	router := srv.Router()

	code, _, _ := get(t, router, "/healthz")
	if code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}
}

func TestMetricsEndpointAndCounter(t *testing.T) {
	metrics := observability.New()
	srv := New(testConfig(), seededStore(t), metrics, testLogger)
	router := srv.Router()

	if code, _, _ := get(t, router, "/feed"); code != http.StatusOK {
		t.Fatal("feed request failed")
	}

	code, body, _ := get(t, router, "/metrics")
	if code != http.StatusOK {
		t.Fatalf("metrics status = %d, want 200", code)
	}
	if !strings.Contains(body, "hamrss_feed_requests_total") {
		t.Error("metrics output missing feed request counter")
	}
}
