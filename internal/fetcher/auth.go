package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/larsks/hamrss/internal/heuristics"
)

// failurePhrases are the exact strings a login response is scanned for to
// detect a rejected login. Sites report failures in prose, not status codes.
var failurePhrases = []string{
	"no user found with the argument",
	"we could not log you in",
	"login failed",
	"invalid username",
	"invalid password",
	"incorrect username",
	"incorrect password",
}

// FormAuth performs a best-effort HTML login-form handshake: fetch the login
// page, locate the first form, carry over its hidden fields, substitute the
// credentials, submit, and sniff the response for known failure phrases.
type FormAuth struct {
	LoginURL string
	Username string
	Password string

	// UsernameField and PasswordField default to "username" and "password".
	UsernameField string
	PasswordField string

	fetcher       *HTTPFetcher
	logger        *slog.Logger
	authenticated bool
}

// NewFormAuth builds a FormAuth bound to a driver's HTTP fetcher, so the
// session cookies land in the same jar the content fetches use.
func NewFormAuth(f *HTTPFetcher, loginURL, username, password string, logger *slog.Logger) *FormAuth {
	return &FormAuth{
		LoginURL:      loginURL,
		Username:      username,
		Password:      password,
		UsernameField: "username",
		PasswordField: "password",
		fetcher:       f,
		logger:        logger.With("component", "form_auth"),
	}
}

// Authenticate runs the handshake once. Missing credentials skip the whole
// attempt without error. A failed attempt returns *AuthError; callers log
// and continue, because the content may be served anonymously anyway.
func (a *FormAuth) Authenticate(ctx context.Context) error {
	if a.authenticated {
		return nil
	}
	if a.Username == "" || a.Password == "" {
		a.logger.Info("credentials not provided, authentication skipped", "login_url", a.LoginURL)
		return nil
	}

	resp, err := a.fetcher.Get(ctx, a.LoginURL)
	if err != nil {
		return &AuthError{Site: a.LoginURL, Err: fmt.Errorf("fetch login page: %w", err)}
	}

	doc, err := resp.Document()
	if err != nil {
		return &AuthError{Site: a.LoginURL, Err: fmt.Errorf("parse login page: %w", err)}
	}

	form := doc.Find("form").First()
	if form.Length() == 0 {
		return &AuthError{Site: a.LoginURL, Err: fmt.Errorf("no login form found")}
	}

	action, _ := form.Attr("action")
	submitURL := a.resolveAction(action)

	data := url.Values{}
	form.Find("input").Each(func(_ int, input *goquery.Selection) {
		name, ok := input.Attr("name")
		if !ok || name == "" {
			return
		}
		inputType, _ := input.Attr("type")
		value, _ := input.Attr("value")

		switch {
		case name == a.UsernameField:
			data.Set(name, a.Username)
		case name == a.PasswordField:
			data.Set(name, a.Password)
		case strings.EqualFold(inputType, "hidden") || strings.EqualFold(inputType, "checkbox"):
			data.Set(name, value)
		}
	})

	loginResp, err := a.fetcher.PostForm(ctx, submitURL, data)
	if err != nil {
		return &AuthError{Site: a.LoginURL, Err: fmt.Errorf("submit login form: %w", err)}
	}

	body := strings.ToLower(string(loginResp.Body))
	for _, phrase := range failurePhrases {
		if strings.Contains(body, phrase) {
			return &AuthError{Site: a.LoginURL, Err: fmt.Errorf("login rejected: %q", phrase)}
		}
	}

	a.authenticated = true
	a.logger.Info("authenticated", "login_url", a.LoginURL)
	return nil
}

// resolveAction turns the form action into an absolute URL relative to the
// login page. Protocol-relative actions ("//host/path") inherit https.
func (a *FormAuth) resolveAction(action string) string {
	if action == "" {
		return a.LoginURL
	}
	if strings.HasPrefix(action, "//") {
		return "https:" + action
	}
	return heuristics.NormalizeURL(action, a.LoginURL)
}
