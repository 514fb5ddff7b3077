package fetcher

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"testing"

	"github.com/jarcoal/httpmock"

	"github.com/larsks/hamrss/internal/config"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func newTestFetcher(t *testing.T) *HTTPFetcher {
	t.Helper()
	f, err := NewHTTPFetcher(config.DefaultConfig(), testLogger)
	if err != nil {
		t.Fatalf("NewHTTPFetcher: %v", err)
	}
	httpmock.ActivateNonDefault(f.Client())
	t.Cleanup(httpmock.DeactivateAndReset)
	return f
}

func TestHTTPFetcherGet(t *testing.T) {
	f := newTestFetcher(t)
	httpmock.RegisterResponder("GET", "https://example.com/page",
		httpmock.NewStringResponder(200, "<html><body>hello</body></html>"))

	resp, err := f.Get(context.Background(), "https://example.com/page")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if string(resp.Body) != "<html><body>hello</body></html>" {
		t.Errorf("unexpected body: %q", resp.Body)
	}
}

func TestHTTPFetcherErrorStatus(t *testing.T) {
	f := newTestFetcher(t)
	httpmock.RegisterResponder("GET", "https://example.com/missing",
		httpmock.NewStringResponder(404, "not here"))

	_, err := f.Get(context.Background(), "https://example.com/missing")
	if err == nil {
		t.Fatal("expected error for 404")
	}
	fe, ok := err.(*FetchError)
	if !ok {
		t.Fatalf("expected *FetchError, got %T", err)
	}
	if fe.StatusCode != 404 {
		t.Errorf("status = %d, want 404", fe.StatusCode)
	}
	if fe.Retryable {
		t.Error("404 should not be retryable")
	}
}

func TestHTTPFetcherServerErrorRetryable(t *testing.T) {
	f := newTestFetcher(t)
	httpmock.RegisterResponder("GET", "https://example.com/boom",
		httpmock.NewStringResponder(503, "overloaded"))

	_, err := f.Get(context.Background(), "https://example.com/boom")
	fe, ok := err.(*FetchError)
	if !ok {
		t.Fatalf("expected *FetchError, got %T", err)
	}
	if !fe.Retryable {
		t.Error("503 should be retryable")
	}
}

func TestHTTPFetcherPostForm(t *testing.T) {
	f := newTestFetcher(t)
	var gotBody string
	httpmock.RegisterResponder("POST", "https://example.com/login",
		func(req *http.Request) (*http.Response, error) {
			b, _ := io.ReadAll(req.Body)
			gotBody = string(b)
			return httpmock.NewStringResponse(200, "welcome"), nil
		})

	data := map[string][]string{"username": {"w1aw"}, "password": {"secret"}}
	resp, err := f.PostForm(context.Background(), "https://example.com/login", data)
	if err != nil {
		t.Fatalf("PostForm: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if gotBody != "password=secret&username=w1aw" {
		t.Errorf("form body = %q", gotBody)
	}
}
