// Package hro scrapes the Ham Radio Outlet bargain pages (used, open-box,
// consignment). The listings are rendered client-side and paginated through
// a page-jump select control, so scraping runs in the headless browser.
package hro

import (
	"bytes"
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-rod/rod"

	"github.com/larsks/hamrss/internal/catalog"
	"github.com/larsks/hamrss/internal/config"
	"github.com/larsks/hamrss/internal/fetcher"
	"github.com/larsks/hamrss/internal/heuristics"
	"github.com/larsks/hamrss/internal/pagination"
)

const (
	baseURL = "https://www.hamradio.com"

	jumpSelector    = `select[name="jumpPage"]`
	totalSelector   = `select[name="jumpPage"] + span`
	contentSelector = ".hero-feature"
)

var categoryURLs = map[string]string{
	"used":        baseURL + "/used.cfm",
	"open":        baseURL + "/open_item.cfm",
	"consignment": baseURL + "/consignment.cfm",
}

// Catalog scrapes Ham Radio Outlet.
type Catalog struct {
	browser *fetcher.BrowserFetcher
	cfg     *config.Config
	logger  *slog.Logger
}

// New creates the HRO driver on top of the shared headless browser.
func New(cfg *config.Config, bf *fetcher.BrowserFetcher, logger *slog.Logger) *Catalog {
	return &Catalog{
		browser: bf,
		cfg:     cfg,
		logger:  logger.With("driver", "hro"),
	}
}

func (c *Catalog) Categories(_ context.Context) []string {
	names := make([]string, 0, len(categoryURLs))
	for name := range categoryURLs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *Catalog) Items(ctx context.Context, category string, maxItems int) ([]catalog.Product, error) {
	url, ok := categoryURLs[category]
	if !ok {
		return nil, &catalog.UnknownCategoryError{Category: category, Valid: c.Categories(ctx)}
	}

	page, err := c.browser.Page(ctx, url)
	if err != nil {
		return nil, err
	}
	defer page.Close()

	if _, err := page.Timeout(c.cfg.Browser.WaitTimeout).Element(jumpSelector); err != nil {
		c.logger.Warn("page-jump control not found, assuming single page", "error", err)
	}

	return pagination.Control(ctx, page, pagination.ControlConfig{
		JumpSelector:    jumpSelector,
		TotalSelector:   totalSelector,
		ContentSelector: contentSelector,
		WaitTimeout:     c.cfg.Browser.WaitTimeout,
	}, c.extractPage, maxItems, c.logger)
}

func (c *Catalog) extractPage(page *rod.Page) ([]catalog.Product, error) {
	html, err := page.HTML()
	if err != nil {
		return nil, err
	}
	return ExtractProducts([]byte(html))
}

// ExtractProducts parses the .hero-feature product cards out of a rendered
// bargain page.
func ExtractProducts(body []byte) ([]catalog.Product, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var products []catalog.Product
	doc.Find(".hero-feature").Each(func(_ int, container *goquery.Selection) {
		products = append(products, productFromCard(container))
	})
	return products, nil
}

func productFromCard(container *goquery.Selection) catalog.Product {
	var p catalog.Product

	var manufacturer, model string
	h4s := container.Find(".prod-caption h4")
	if h4s.Length() >= 2 {
		manufacturer = strings.TrimSpace(h4s.Eq(0).Find("strong").Text())
		model = strings.TrimSpace(h4s.Eq(1).Text())
		p.Manufacturer = catalog.Str(manufacturer)
		p.Model = catalog.Str(model)
	}
	p.Title = cardTitle(manufacturer, model)

	if href, ok := container.Find(".prod-caption a").First().Attr("href"); ok {
		p.URL = heuristics.NormalizeURL(href, baseURL)
		if idx := strings.Index(href, "pid="); idx >= 0 {
			p.ProductID = catalog.Str(href[idx+len("pid="):])
		}
	}

	if desc := strings.TrimSpace(container.Find(".prod-caption h6").First().Text()); desc != "" {
		p.Description = catalog.Str(desc)
	}
	locText := container.Find(`.prod-caption h6 a[href*="locations.cfm"]`).First().Text()
	if strings.Contains(locText, "Located:") {
		p.Location = catalog.Str(strings.TrimSpace(strings.ReplaceAll(locText, "Located:", "")))
	}
	container.Find(".prod-caption p").Each(func(_ int, para *goquery.Selection) {
		text := strings.TrimSpace(para.Text())
		if strings.Contains(text, "Added:") {
			p.DateAdded = catalog.Str(strings.TrimSpace(strings.ReplaceAll(text, "Added:", "")))
		}
	})

	if price := heuristics.ExtractPrice(priceText(container)); price != "" {
		p.Price = catalog.Str(price)
	}
	if src, ok := container.Find("img").First().Attr("src"); ok && src != "" {
		p.ImageURL = catalog.Str(heuristics.NormalizeURL(src, baseURL))
	}
	return p
}

func cardTitle(manufacturer, model string) string {
	parts := make([]string, 0, 2)
	if manufacturer != "" {
		parts = append(parts, manufacturer)
	}
	if model != "" {
		parts = append(parts, model)
	}
	if len(parts) == 0 {
		return "Ham Radio Equipment"
	}
	return strings.Join(parts, " ")
}

// priceText finds the price button. Used pages carry it on a white button,
// open-box pages on an orange one; anything else falls back to the first
// button in the group.
func priceText(container *goquery.Selection) string {
	for _, sel := range []string{
		`.btn-primary[style*="background-color:#FFF"]`,
		`.btn-primary[style*="background-color:#FF9900"]`,
		".btn-group .btn-primary:first-child",
	} {
		if el := container.Find(sel).First(); el.Length() > 0 {
			return el.Text()
		}
	}
	return ""
}
