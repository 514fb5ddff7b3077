// Package randl scrapes the R&L Electronics used-equipment table. The page
// is plain server-rendered HTML: one table, one row per listing, no
// pagination.
package randl

import (
	"bytes"
	"context"
	"log/slog"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/larsks/hamrss/internal/catalog"
	"github.com/larsks/hamrss/internal/config"
	"github.com/larsks/hamrss/internal/fetcher"
	"github.com/larsks/hamrss/internal/heuristics"
)

const (
	baseURL = "https://www2.randl.com"
	usedURL = baseURL + "/index.php?main_page=usedbrand"
)

var categories = []string{"used"}

// Catalog lists R&L's used gear.
type Catalog struct {
	fetcher fetcher.Fetcher
	logger  *slog.Logger
}

// New creates the R&L driver.
func New(_ *config.Config, f fetcher.Fetcher, logger *slog.Logger) *Catalog {
	return &Catalog{
		fetcher: f,
		logger:  logger.With("driver", "randl"),
	}
}

func (c *Catalog) Categories(_ context.Context) []string {
	return categories
}

func (c *Catalog) Items(ctx context.Context, category string, maxItems int) ([]catalog.Product, error) {
	if !catalog.Contains(categories, category) {
		return nil, &catalog.UnknownCategoryError{Category: category, Valid: categories}
	}

	resp, err := c.fetcher.Get(ctx, usedURL)
	if err != nil {
		return nil, err
	}

	products, err := ExtractProducts(resp.Body)
	if err != nil {
		return nil, err
	}
	c.logger.Info("scrape complete", "category", category, "products", len(products))
	return catalog.Cap(products, maxItems), nil
}

// ExtractProducts parses the used-equipment table. Rows with fewer than
// three cells (headers, spacers) are skipped.
func ExtractProducts(body []byte) ([]catalog.Product, error) {
	doc, err := htmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	rows := htmlquery.Find(doc, `//table[@border='1' and @bordercolor='#000000']//tr`)
	var products []catalog.Product
	for _, row := range rows {
		cells := htmlquery.Find(row, `./td`)
		if len(cells) < 3 {
			continue
		}
		if p, ok := productFromRow(cells); ok {
			products = append(products, p)
		}
	}
	return products, nil
}

func productFromRow(cells []*html.Node) (catalog.Product, bool) {
	manufacturer := strings.TrimSpace(htmlquery.InnerText(cells[0]))
	descText := strings.Join(strings.Fields(htmlquery.InnerText(cells[1])), " ")

	var p catalog.Product
	p.Manufacturer = catalog.Str(manufacturer)
	p.Description = catalog.Str(descText)

	if link := htmlquery.FindOne(cells[1], `.//a`); link != nil {
		href := htmlquery.SelectAttr(link, "href")
		p.URL = heuristics.NormalizeURL(href, baseURL)
		if idx := strings.Index(href, "products_id="); idx >= 0 {
			id := href[idx+len("products_id="):]
			if amp := strings.Index(id, "&"); amp >= 0 {
				id = id[:amp]
			}
			p.ProductID = catalog.Str(id)
		}
	}

	// The description splits better than the brand cell: it carries the
	// model right after the "Used" prefix.
	var model string
	if descText != "" {
		_, model = heuristics.SplitManufacturerModel(descText)
		p.Model = catalog.Str(model)
	}

	if p.URL == "" {
		return catalog.Product{}, false
	}
	p.Title = buildTitle(manufacturer, model, descText)

	if price := heuristics.ExtractPrice(htmlquery.InnerText(cells[2])); price != "" {
		p.Price = catalog.Str(price)
	}
	return p, true
}

func buildTitle(manufacturer, model, descText string) string {
	var parts []string
	if manufacturer != "" {
		parts = append(parts, manufacturer)
	}
	switch {
	case model != "":
		parts = append(parts, model)
	case descText != "":
		cleaned := strings.TrimSpace(strings.TrimPrefix(descText, "Used "))
		words := strings.Fields(cleaned)
		if len(words) > 3 {
			words = words[:3]
		}
		if len(words) > 0 {
			parts = append(parts, strings.Join(words, " "))
		}
	}
	if len(parts) == 0 {
		return "Ham Radio Equipment"
	}
	return strings.Join(parts, " ")
}
