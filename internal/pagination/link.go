package pagination

import (
	"context"
	"log/slog"
	"net/url"
	"regexp"
	"strconv"

	"github.com/PuerkitoBio/goquery"

	"github.com/larsks/hamrss/internal/catalog"
	"github.com/larsks/hamrss/internal/fetcher"
	"github.com/larsks/hamrss/internal/heuristics"
)

var (
	nextLinkText = regexp.MustCompile(`Next|next|>|»`)
	pagingParam  = regexp.MustCompile(`page=|start=`)
)

// LinkFollow walks a result set with no upfront page count by scanning each
// page for a "next" affordance. It stops when no next link exists, when the
// next URL equals the current one (loop guard), or at the hard page ceiling.
func LinkFollow(ctx context.Context, f fetcher.Fetcher, startURL, baseURL string, extract Extractor, maxItems int, logger *slog.Logger) ([]catalog.Product, error) {
	var all []catalog.Product
	currentURL := startURL

	for pageCount := 1; currentURL != ""; pageCount++ {
		if pageCount > maxFollowPages {
			logger.Warn("stopped after page ceiling to prevent infinite loop", "pages", maxFollowPages)
			break
		}

		resp, err := f.Get(ctx, currentURL)
		if err != nil {
			logger.Error("page fetch failed, stopping", "url", currentURL, "error", err)
			return all, nil
		}

		batch, err := extract(resp)
		if err != nil {
			logger.Error("page extraction failed, stopping", "url", currentURL, "error", err)
			return all, nil
		}
		logger.Debug("page extracted", "page", pageCount, "items", len(batch))

		var done bool
		all, done = appendCapped(all, batch, maxItems)
		if done {
			logger.Info("item cap reached", "max_items", maxItems)
			return all, nil
		}

		doc, err := resp.Document()
		if err != nil {
			return all, nil
		}
		nextURL := nextPageURL(doc, baseURL, currentURL)
		if nextURL == "" || nextURL == currentURL {
			break
		}
		currentURL = nextURL
	}
	return all, nil
}

// nextPageURL finds the next page link: first by visible next-marker text,
// then by the pagination link with the smallest page number greater than
// the current page.
func nextPageURL(doc *goquery.Document, baseURL, currentURL string) string {
	var next string
	doc.Find("a").EachWithBreak(func(_ int, link *goquery.Selection) bool {
		if !nextLinkText.MatchString(link.Text()) {
			return true
		}
		if href, ok := link.Attr("href"); ok && href != "" {
			next = heuristics.NormalizeURL(href, baseURL)
			return false
		}
		return true
	})
	if next != "" {
		return next
	}

	currentPage := pageNumberFromURL(currentURL)
	bestPage := 0
	doc.Find("a").Each(func(_ int, link *goquery.Selection) {
		href, ok := link.Attr("href")
		if !ok || !pagingParam.MatchString(href) {
			return
		}
		n := pageNumberFromURL(href)
		if n > currentPage && (bestPage == 0 || n < bestPage) {
			bestPage = n
			next = heuristics.NormalizeURL(href, baseURL)
		}
	})
	return next
}

// pageNumberFromURL extracts the page number from common pagination query
// parameters, defaulting to 1.
func pageNumberFromURL(rawURL string) int {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return 1
	}
	query := parsed.Query()
	for _, param := range []string{"page", "start", "offset"} {
		if v := query.Get(param); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
		}
	}
	return 1
}
