package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/larsks/hamrss/internal/config"
)

// BrowserFetcher drives a headless browser via Rod for sources that render
// their catalogs with JavaScript. Connects to an external browser when
// control_url is set, otherwise launches its own Chromium.
type BrowserFetcher struct {
	browser *rod.Browser
	cfg     *config.BrowserConfig
	logger  *slog.Logger

	mu sync.Mutex
}

// NewBrowserFetcher connects to (or launches) the browser.
func NewBrowserFetcher(cfg *config.Config, logger *slog.Logger) (*BrowserFetcher, error) {
	bf := &BrowserFetcher{
		cfg:    &cfg.Browser,
		logger: logger.With("component", "browser_fetcher"),
	}

	controlURL := cfg.Browser.ControlURL
	if controlURL == "" {
		l := launcher.New().
			Headless(true).
			Set("disable-gpu").
			Set("disable-dev-shm-usage").
			Set("no-sandbox")
		var err error
		controlURL, err = l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch browser: %w", err)
		}
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	bf.browser = browser

	bf.logger.Info("browser fetcher ready", "stealth", cfg.Browser.Stealth)
	return bf, nil
}

// Page navigates a fresh page to url and waits for it to settle. The caller
// owns the page and must Close it.
func (bf *BrowserFetcher) Page(ctx context.Context, url string) (*rod.Page, error) {
	bf.mu.Lock()
	defer bf.mu.Unlock()

	var page *rod.Page
	var err error
	if bf.cfg.Stealth {
		page, err = stealth.Page(bf.browser)
	} else {
		page, err = bf.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	}
	if err != nil {
		return nil, &FetchError{URL: url, Err: fmt.Errorf("create page: %w", err), Retryable: true}
	}

	page = page.Context(ctx)
	if err := page.Timeout(bf.cfg.WaitTimeout).Navigate(url); err != nil {
		_ = page.Close()
		return nil, &FetchError{URL: url, Err: err, Retryable: true}
	}
	if err := page.Timeout(bf.cfg.WaitTimeout).WaitLoad(); err != nil {
		bf.logger.Warn("page load timeout, continuing", "url", url, "error", err)
	}

	return page, nil
}

// Get implements Fetcher by returning the rendered HTML of url.
func (bf *BrowserFetcher) Get(ctx context.Context, url string) (*Response, error) {
	page, err := bf.Page(ctx, url)
	if err != nil {
		return nil, err
	}
	defer page.Close()

	html, err := page.HTML()
	if err != nil {
		return nil, &FetchError{URL: url, Err: err, Retryable: true}
	}

	finalURL := url
	if info, err := page.Info(); err == nil && info != nil {
		finalURL = info.URL
	}

	return &Response{StatusCode: 200, Body: []byte(html), FinalURL: finalURL}, nil
}

// Close shuts down the browser connection, and the browser itself when this
// process launched it.
func (bf *BrowserFetcher) Close() error {
	if bf.browser == nil {
		return nil
	}
	return bf.browser.Close()
}
