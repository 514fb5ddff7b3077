// Package qth scrapes the Swap QTH classified ads. Categories are
// discovered from the site index, and listing pages use "Next" links for
// pagination. The listing markup is malformed: every ad on a page is
// nested inside one giant DT, so extraction walks the DL subtree in
// document order and cuts it into per-ad segments at each bold title.
package qth

import (
	"bytes"
	"context"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/larsks/hamrss/internal/catalog"
	"github.com/larsks/hamrss/internal/config"
	"github.com/larsks/hamrss/internal/fetcher"
	"github.com/larsks/hamrss/internal/heuristics"
	"github.com/larsks/hamrss/internal/pagination"
)

const baseURL = "https://swap.qth.com"

var (
	categoryHref = regexp.MustCompile(`^c_\w+\.php$`)
	counterRe    = regexp.MustCompile(`counter=(\d+)`)
	listingRe    = regexp.MustCompile(`Listing #(\d+)`)
	dateRe       = regexp.MustCompile(`Submitted on (\d{2}/\d{2}/\d{2})`)
	callsignRe   = regexp.MustCompile(`by Callsign ([A-Z0-9]+)`)
	priceRe      = regexp.MustCompile(`(?i)\$[\d,]+(?:\.\d{2})?(?:\s+(?:shipped|OBO|Firm|plus))?|Free|SOLD`)
	paymentRe    = regexp.MustCompile(`(?i)\b(paypal|check|money order|payment)\b`)
)

// Catalog scrapes swap.qth.com.
type Catalog struct {
	fetcher fetcher.Fetcher
	logger  *slog.Logger

	mu    sync.Mutex
	names []string          // sorted category names, nil until discovered
	urls  map[string]string // category name -> listing URL
}

// New creates the Swap QTH driver.
func New(_ *config.Config, f fetcher.Fetcher, logger *slog.Logger) *Catalog {
	return &Catalog{
		fetcher: f,
		logger:  logger.With("driver", "qth"),
	}
}

// Categories discovers the category list from the site index. The result is
// cached on success; a failed discovery returns an empty slice and retries
// on the next call.
func (c *Catalog) Categories(ctx context.Context) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.names != nil {
		return c.names
	}

	names, urls, err := c.discover(ctx)
	if err != nil {
		c.logger.Warn("category discovery failed", "error", err)
		return nil
	}
	c.names = names
	c.urls = urls
	return c.names
}

func (c *Catalog) discover(ctx context.Context) ([]string, map[string]string, error) {
	resp, err := c.fetcher.Get(ctx, baseURL+"/index.php")
	if err != nil {
		return nil, nil, err
	}
	doc, err := resp.Document()
	if err != nil {
		return nil, nil, err
	}

	urls := make(map[string]string)
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		if !categoryHref.MatchString(href) {
			return
		}
		name := strings.TrimSpace(sel.Text())
		if name == "" {
			return
		}
		urls[name] = heuristics.NormalizeURL(href, baseURL+"/index.php")
	})
	return sortedNames(urls), urls, nil
}

func sortedNames(urls map[string]string) []string {
	names := make([]string, 0, len(urls))
	for name := range urls {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Items scrapes one category, following "Next" links until the listings run
// out or maxItems is reached.
func (c *Catalog) Items(ctx context.Context, category string, maxItems int) ([]catalog.Product, error) {
	valid := c.Categories(ctx)

	c.mu.Lock()
	startURL, ok := c.urls[category]
	c.mu.Unlock()
	if !ok {
		return nil, &catalog.UnknownCategoryError{Category: category, Valid: valid}
	}

	return pagination.LinkFollow(ctx, c.fetcher, startURL, baseURL, func(resp *fetcher.Response) ([]catalog.Product, error) {
		return ExtractProducts(resp.Body)
	}, maxItems, c.logger)
}

// ExtractProducts parses one listing page.
func ExtractProducts(body []byte) ([]catalog.Product, error) {
	doc, err := htmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	dl := htmlquery.FindOne(doc, "//dl")
	if dl == nil {
		return nil, nil
	}

	var products []catalog.Product
	for _, seg := range collectSegments(dl) {
		if p, ok := seg.product(); ok {
			products = append(products, p)
		}
	}
	return products, nil
}

// segment is one ad's slice of the malformed DL: the bold title plus
// everything up to the next bold title.
type segment struct {
	title      string
	detailHref string
	dds        []*html.Node
}

func collectSegments(dl *html.Node) []*segment {
	var segs []*segment
	var cur *segment

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "b":
				title := strings.TrimSpace(htmlquery.InnerText(n))
				cur = &segment{title: title}
				segs = append(segs, cur)
				return
			case "a":
				if cur != nil && cur.detailHref == "" {
					if href := htmlquery.SelectAttr(n, "href"); strings.Contains(href, "view_ad.php") {
						cur.detailHref = href
					}
				}
			case "dd":
				if cur != nil {
					cur.dds = append(cur.dds, n)
				}
			}
		}
		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			walk(ch)
		}
	}
	for ch := dl.FirstChild; ch != nil; ch = ch.NextSibling {
		walk(ch)
	}
	return segs
}

func (s *segment) product() (catalog.Product, bool) {
	if s.title == "" {
		return catalog.Product{}, false
	}

	p := catalog.Product{Title: s.title}
	if mfr, model := heuristics.SplitManufacturerModel(s.title); mfr != "" {
		p.Manufacturer = catalog.Str(mfr)
		p.Model = catalog.Str(model)
	}

	if s.detailHref != "" {
		p.URL = heuristics.NormalizeURL(s.detailHref, baseURL)
		if m := counterRe.FindStringSubmatch(s.detailHref); m != nil {
			p.ProductID = catalog.Str(m[1])
		}
	} else {
		// Ads without a detail link still get published; they share the
		// site root as their URL.
		p.URL = baseURL + "/"
	}

	descDD, metaDD := s.classifyDDs()
	if descDD != nil {
		descText := strings.TrimSpace(htmlquery.InnerText(descDD))
		if m := priceRe.FindString(descText); m != "" {
			p.Price = catalog.Str(strings.TrimSpace(m))
		}
		p.Description = catalog.Str(cleanDescription(descText))
	}
	if metaDD != nil {
		metaText := htmlquery.InnerText(metaDD)
		if m := dateRe.FindStringSubmatch(metaText); m != nil {
			p.DateAdded = catalog.Str(m[1])
		}
		if m := callsignRe.FindStringSubmatch(metaText); m != nil {
			p.Author = catalog.Str(m[1])
		}
		if p.ProductID == nil {
			if m := listingRe.FindStringSubmatch(metaText); m != nil {
				p.ProductID = catalog.Str(m[1])
			}
		}
	}
	return p, true
}

// classifyDDs picks the description DD (first one that is not metadata or an
// action link and carries real text) and the metadata DD that follows it.
func (s *segment) classifyDDs() (desc, meta *html.Node) {
	for i, dd := range s.dds {
		text := strings.TrimSpace(htmlquery.InnerText(dd))
		if strings.HasPrefix(text, "Listing #") || strings.HasPrefix(text, "Click to") {
			continue
		}
		if len(text) <= 10 {
			continue
		}
		desc = dd
		if i+1 < len(s.dds) {
			meta = s.dds[i+1]
		}
		return desc, meta
	}
	return nil, nil
}

// cleanDescription strips price and payment chatter, then trims to the
// first substantial sentence or 200 characters.
func cleanDescription(text string) string {
	cleaned := priceRe.ReplaceAllString(text, "")
	cleaned = paymentRe.ReplaceAllString(cleaned, "")
	cleaned = strings.Join(strings.Fields(cleaned), " ")
	if cleaned == "" {
		return ""
	}

	sentences := strings.SplitN(cleaned, ".", 2)
	if len(sentences[0]) > 20 {
		return strings.TrimSpace(sentences[0])
	}
	if len(cleaned) <= 200 {
		return cleaned
	}
	return cleaned[:200] + "..."
}
