package pagination

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"

	"github.com/PuerkitoBio/goquery"

	"github.com/larsks/hamrss/internal/catalog"
	"github.com/larsks/hamrss/internal/fetcher"
)

var pageParam = regexp.MustCompile(`page=(\d+)`)

// QueryParam walks a result set whose pages are addressed by a ?page=N
// query parameter. The total page count is the highest page number found in
// the pagination links of the first page; page 1 reuses the already-fetched
// content rather than re-fetching.
//
// linkSelector scopes the pagination-link scan (e.g.
// ".CategoryPagination .PagingList a").
func QueryParam(ctx context.Context, f fetcher.Fetcher, baseURL, linkSelector string, extract Extractor, maxItems int, logger *slog.Logger) ([]catalog.Product, error) {
	resp, err := f.Get(ctx, baseURL)
	if err != nil {
		return nil, err
	}

	doc, err := resp.Document()
	if err != nil {
		return nil, err
	}
	totalPages := maxPageNumber(doc, linkSelector)
	logger.Info("pagination plan", "url", baseURL, "total_pages", totalPages)

	var all []catalog.Product
	for page := 1; page <= totalPages; page++ {
		if page > 1 {
			resp, err = f.Get(ctx, pageURL(baseURL, page))
			if err != nil {
				logger.Error("page fetch failed, stopping", "page", page, "error", err)
				return all, nil
			}
		}

		batch, err := extract(resp)
		if err != nil {
			logger.Error("page extraction failed, stopping", "page", page, "error", err)
			return all, nil
		}
		logger.Debug("page extracted", "page", page, "items", len(batch))

		var done bool
		all, done = appendCapped(all, batch, maxItems)
		if done {
			logger.Info("item cap reached", "max_items", maxItems)
			return all, nil
		}
	}
	return all, nil
}

// maxPageNumber returns the highest page=N number among the links matched
// by selector, or 1 when no pagination is present.
func maxPageNumber(doc *goquery.Document, selector string) int {
	maxPage := 1
	doc.Find(selector).Each(func(_ int, link *goquery.Selection) {
		href, ok := link.Attr("href")
		if !ok {
			return
		}
		if m := pageParam.FindStringSubmatch(href); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n > maxPage {
				maxPage = n
			}
		}
	})
	return maxPage
}

func pageURL(baseURL string, page int) string {
	if page == 1 {
		return baseURL
	}
	return fmt.Sprintf("%s?page=%d", baseURL, page)
}
