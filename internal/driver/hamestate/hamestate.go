// Package hamestate reads HamEstate's per-category WooCommerce RSS feeds.
// Categories are discovered by scraping the equipment index for category
// slugs; each category then has a /feed/ endpoint.
package hamestate

import (
	"bytes"
	"context"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/larsks/hamrss/internal/catalog"
	"github.com/larsks/hamrss/internal/config"
	"github.com/larsks/hamrss/internal/fetcher"
	"github.com/larsks/hamrss/internal/heuristics"
)

const (
	baseURL       = "https://www.hamestate.com"
	categoriesURL = baseURL + "/product-category/ham_equipment/"
)

var categoryHref = regexp.MustCompile(`/product-category/ham_equipment/[^/]+/$`)

// Catalog reads HamEstate's category feeds.
type Catalog struct {
	fetcher fetcher.Fetcher
	logger  *slog.Logger
	parser  *gofeed.Parser

	mu    sync.Mutex
	slugs []string // sorted category slugs, nil until discovered
}

// New creates the HamEstate driver.
func New(_ *config.Config, f fetcher.Fetcher, logger *slog.Logger) *Catalog {
	return &Catalog{
		fetcher: f,
		logger:  logger.With("driver", "hamestate"),
		parser:  gofeed.NewParser(),
	}
}

// Categories scrapes the equipment index for category slugs. Cached on
// success, retried on failure.
func (c *Catalog) Categories(ctx context.Context) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.slugs != nil {
		return c.slugs
	}

	slugs, err := c.discover(ctx)
	if err != nil {
		c.logger.Warn("category discovery failed", "error", err)
		return nil
	}
	c.slugs = slugs
	return c.slugs
}

func (c *Catalog) discover(ctx context.Context) ([]string, error) {
	resp, err := c.fetcher.Get(ctx, categoriesURL)
	if err != nil {
		return nil, err
	}
	doc, err := resp.Document()
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var slugs []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		if !categoryHref.MatchString(href) {
			return
		}
		parts := strings.Split(strings.TrimSuffix(href, "/"), "/")
		if len(parts) < 2 || parts[len(parts)-2] != "ham_equipment" {
			return
		}
		slug := parts[len(parts)-1]
		if slug != "" && !seen[slug] {
			seen[slug] = true
			slugs = append(slugs, slug)
		}
	})
	sort.Strings(slugs)
	return slugs, nil
}

func (c *Catalog) Items(ctx context.Context, category string, maxItems int) ([]catalog.Product, error) {
	valid := c.Categories(ctx)
	if !catalog.Contains(valid, category) {
		return nil, &catalog.UnknownCategoryError{Category: category, Valid: valid}
	}

	feedURL := categoriesURL + category + "/feed/"
	resp, err := c.fetcher.Get(ctx, feedURL)
	if err != nil {
		return nil, err
	}
	feed, err := c.parser.Parse(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, err
	}

	products := extractProducts(feed)
	c.logger.Info("feed parsed", "category", category, "entries", len(feed.Items), "products", len(products))
	return catalog.Cap(products, maxItems), nil
}

func extractProducts(feed *gofeed.Feed) []catalog.Product {
	var products []catalog.Product
	for _, item := range feed.Items {
		title := strings.TrimSpace(item.Title)
		link := strings.TrimSpace(item.Link)
		if title == "" || link == "" {
			continue
		}

		p := catalog.Product{URL: link, Title: title}
		if mfr, model := heuristics.SplitManufacturerModel(title); mfr != "" {
			p.Manufacturer = catalog.Str(mfr)
			p.Model = catalog.Str(model)
		}
		if desc := strings.TrimSpace(item.Description); desc != "" {
			p.Description = catalog.Str(desc)
		} else if content := strings.TrimSpace(item.Content); content != "" {
			p.Description = catalog.Str(content)
		}
		if item.Published != "" {
			p.DateAdded = catalog.Str(item.Published)
		}
		if len(item.Authors) > 0 && item.Authors[0] != nil {
			if name := strings.TrimSpace(item.Authors[0].Name); name != "" {
				p.Author = catalog.Str(name)
			}
		}
		products = append(products, p)
	}
	return products
}
