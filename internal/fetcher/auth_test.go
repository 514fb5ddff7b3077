package fetcher

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/jarcoal/httpmock"
)

const loginPage = `<html><body>
<form action="/do-login" method="post">
  <input type="hidden" name="csrf_token" value="tok123">
  <input type="text" name="username">
  <input type="password" name="password">
  <input type="checkbox" name="remember" value="1">
  <input type="submit" value="Log in">
</form>
</body></html>`

func TestFormAuthSuccess(t *testing.T) {
	f := newTestFetcher(t)
	httpmock.RegisterResponder("GET", "https://example.com/login",
		httpmock.NewStringResponder(200, loginPage))

	var submitted string
	httpmock.RegisterResponder("POST", "https://example.com/do-login",
		func(req *http.Request) (*http.Response, error) {
			b, _ := io.ReadAll(req.Body)
			submitted = string(b)
			return httpmock.NewStringResponse(200, "<html>Welcome back</html>"), nil
		})

	auth := NewFormAuth(f, "https://example.com/login", "w1aw", "secret", testLogger)
	if err := auth.Authenticate(context.Background()); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	for _, want := range []string{"csrf_token=tok123", "username=w1aw", "password=secret"} {
		if !strings.Contains(submitted, want) {
			t.Errorf("form body %q missing %q", submitted, want)
		}
	}

	// Second call is a no-op.
	httpmock.Reset()
	if err := auth.Authenticate(context.Background()); err != nil {
		t.Fatalf("second Authenticate: %v", err)
	}
}

func TestFormAuthFailurePhrase(t *testing.T) {
	f := newTestFetcher(t)
	httpmock.RegisterResponder("GET", "https://example.com/login",
		httpmock.NewStringResponder(200, loginPage))
	httpmock.RegisterResponder("POST", "https://example.com/do-login",
		httpmock.NewStringResponder(200, "<html>Sorry, invalid password.</html>"))

	auth := NewFormAuth(f, "https://example.com/login", "w1aw", "wrong", testLogger)
	err := auth.Authenticate(context.Background())
	if err == nil {
		t.Fatal("expected auth error")
	}
	var ae *AuthError
	if !errors.As(err, &ae) {
		t.Fatalf("expected *AuthError, got %T", err)
	}
}

func TestFormAuthSkippedWithoutCredentials(t *testing.T) {
	f := newTestFetcher(t)
	// No responders registered: any request would fail the test.
	auth := NewFormAuth(f, "https://example.com/login", "", "", testLogger)
	if err := auth.Authenticate(context.Background()); err != nil {
		t.Fatalf("Authenticate without credentials should be a no-op, got %v", err)
	}
}

func TestFormAuthNoForm(t *testing.T) {
	f := newTestFetcher(t)
	httpmock.RegisterResponder("GET", "https://example.com/login",
		httpmock.NewStringResponder(200, "<html><body>nothing here</body></html>"))

	auth := NewFormAuth(f, "https://example.com/login", "w1aw", "secret", testLogger)
	if err := auth.Authenticate(context.Background()); err == nil {
		t.Fatal("expected error when no form present")
	}
}
