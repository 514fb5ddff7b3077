// Package mtc scrapes the MTC Radio used-gear catalog. The storefront
// renders its product grid with JavaScript, so pages go through the
// headless browser; pagination is plain ?page=N links.
package mtc

import (
	"bytes"
	"context"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/larsks/hamrss/internal/catalog"
	"github.com/larsks/hamrss/internal/config"
	"github.com/larsks/hamrss/internal/fetcher"
	"github.com/larsks/hamrss/internal/heuristics"
	"github.com/larsks/hamrss/internal/pagination"
)

const (
	baseURL = "https://www.mtcradio.com"
	usedURL = baseURL + "/used-gear/"

	pagingSelector = ".CategoryPagination .PagingList li a"
)

var categories = []string{"used"}

// Catalog scrapes MTC Radio.
type Catalog struct {
	fetcher fetcher.Fetcher
	logger  *slog.Logger
}

// New creates the MTC Radio driver on top of the shared headless browser.
func New(_ *config.Config, f fetcher.Fetcher, logger *slog.Logger) *Catalog {
	return &Catalog{
		fetcher: f,
		logger:  logger.With("driver", "mtc"),
	}
}

func (c *Catalog) Categories(_ context.Context) []string {
	return categories
}

func (c *Catalog) Items(ctx context.Context, category string, maxItems int) ([]catalog.Product, error) {
	if !catalog.Contains(categories, category) {
		return nil, &catalog.UnknownCategoryError{Category: category, Valid: categories}
	}

	return pagination.QueryParam(ctx, c.fetcher, usedURL, pagingSelector, func(resp *fetcher.Response) ([]catalog.Product, error) {
		return ExtractProducts(resp.Body)
	}, maxItems, c.logger)
}

// ExtractProducts parses one rendered catalog page. Only the main product
// list under #CategoryContent counts; sidebar product lists are ignored.
func ExtractProducts(body []byte) ([]catalog.Product, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var products []catalog.Product
	doc.Find("#CategoryContent .ProductList").First().Find("li").Each(func(_ int, item *goquery.Selection) {
		if p, ok := productFromItem(item); ok {
			products = append(products, p)
		}
	})
	return products, nil
}

func productFromItem(item *goquery.Selection) (catalog.Product, bool) {
	titleLink := item.Find(".ProductDetails strong a").First()
	if titleLink.Length() == 0 {
		return catalog.Product{}, false
	}

	href, _ := titleLink.Attr("href")
	title := strings.TrimSpace(titleLink.Text())
	if href == "" || title == "" {
		return catalog.Product{}, false
	}

	p := catalog.Product{
		URL:         heuristics.NormalizeURL(href, baseURL),
		Title:       title,
		Description: catalog.Str(title),
	}
	if mfr, model := heuristics.SplitManufacturerModel(title); mfr != "" {
		p.Manufacturer = catalog.Str(mfr)
		p.Model = catalog.Str(model)
	}

	if price := heuristics.ExtractPrice(item.Find(".ProductPriceRating em").First().Text()); price != "" {
		p.Price = catalog.Str(price)
	}
	if src, ok := item.Find(".ProductImage a img").First().Attr("src"); ok && src != "" {
		p.ImageURL = catalog.Str(src)
	}
	if cartHref, ok := item.Find(".ProductActionAdd a").First().Attr("href"); ok {
		if idx := strings.Index(cartHref, "product_id="); idx >= 0 {
			id := cartHref[idx+len("product_id="):]
			if amp := strings.Index(id, "&"); amp >= 0 {
				id = id[:amp]
			}
			p.ProductID = catalog.Str(id)
		}
	}
	return p, true
}
