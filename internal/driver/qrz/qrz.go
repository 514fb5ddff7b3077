// Package qrz reads the QRZ swapmeet forum's RSS feed. The feed itself is
// public, but an authenticated session sees more entries, so the driver
// attempts a form login first and shrugs off failures.
package qrz

import (
	"bytes"
	"context"
	"log/slog"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/larsks/hamrss/internal/catalog"
	"github.com/larsks/hamrss/internal/config"
	"github.com/larsks/hamrss/internal/fetcher"
)

const (
	loginURL = "https://www.qrz.com/login"
	feedURL  = "https://forums.qrz.com/index.php?forums/ham-radio-gear-for-sale.7/index.rss"
)

var categories = []string{"ham-radio-gear-for-sale"}

// Catalog reads the QRZ gear-for-sale forum feed.
type Catalog struct {
	fetcher *fetcher.HTTPFetcher
	auth    *fetcher.FormAuth
	logger  *slog.Logger
	parser  *gofeed.Parser
}

// New creates the QRZ driver. Empty credentials mean the feed is fetched
// anonymously.
func New(cfg *config.Config, f *fetcher.HTTPFetcher, logger *slog.Logger) *Catalog {
	logger = logger.With("driver", "qrz")
	return &Catalog{
		fetcher: f,
		auth:    fetcher.NewFormAuth(f, loginURL, cfg.Drivers.QRZ.Username, cfg.Drivers.QRZ.Password, logger),
		logger:  logger,
		parser:  gofeed.NewParser(),
	}
}

func (c *Catalog) Categories(_ context.Context) []string {
	return categories
}

func (c *Catalog) Items(ctx context.Context, category string, maxItems int) ([]catalog.Product, error) {
	if !catalog.Contains(categories, category) {
		return nil, &catalog.UnknownCategoryError{Category: category, Valid: categories}
	}

	if err := c.auth.Authenticate(ctx); err != nil {
		c.logger.Warn("authentication failed, fetching feed anonymously", "error", err)
	}

	resp, err := c.fetcher.Get(ctx, feedURL)
	if err != nil {
		return nil, err
	}
	feed, err := c.parser.Parse(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, err
	}

	products := extractProducts(feed)
	c.logger.Info("feed parsed", "entries", len(feed.Items), "products", len(products))
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

		p := catalog.Product{
			URL:         link,
			Title:       title,
			Description: catalog.Str(title),
		}
		if item.Published != "" {
			p.DateAdded = catalog.Str(item.Published)
		}
		if mfr, model := splitForumTitle(title); mfr != "" {
			p.Manufacturer = catalog.Str(mfr)
			p.Model = catalog.Str(model)
		}
		products = append(products, p)
	}
	return products
}

// splitForumTitle handles the forum's loose title conventions: a
// "Brand Model - condition notes" form with a dash separator, or a bare
// "Brand Model ..." run of words.
func splitForumTitle(title string) (manufacturer, model string) {
	head := title
	if idx := strings.Index(title, " - "); idx >= 0 {
		head = strings.TrimSpace(title[:idx])
	}
	parts := strings.Fields(head)
	if len(parts) < 2 {
		return "", ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}
