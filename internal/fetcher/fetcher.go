// Package fetcher provides the transport layer drivers use to talk to
// their sources: a cookie-carrying HTTP client per driver and a headless
// browser for JS-rendered catalogs.
package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Response is the result of a fetch.
type Response struct {
	StatusCode int
	Body       []byte
	FinalURL   string
	Duration   time.Duration
}

// Document parses the response body as HTML.
func (r *Response) Document() (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(bytes.NewReader(r.Body))
}

// Fetcher retrieves the content at a URL.
type Fetcher interface {
	Get(ctx context.Context, url string) (*Response, error)
	Close() error
}

// FetchError wraps errors that occur during fetching.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
	Retryable  bool
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch error for %s (status %d): %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch error for %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// AuthError wraps a failed login handshake. Drivers log it and proceed
// anonymously; some feeds are public even when browsing is not.
type AuthError struct {
	Site string
	Err  error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication with %s failed: %v", e.Site, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// IsFetchError reports whether err is (or wraps) a FetchError.
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}
