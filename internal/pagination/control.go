package pagination

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"time"

	"github.com/go-rod/rod"

	"github.com/larsks/hamrss/internal/catalog"
)

var ofPages = regexp.MustCompile(`of (\d+)`)

// ControlConfig describes a source's browser pagination controls.
type ControlConfig struct {
	// JumpSelector is the page-jump <select> element.
	JumpSelector string
	// TotalSelector is the element whose text carries the "of N" total.
	TotalSelector string
	// ContentSelector marks the listing content to wait for after each
	// page transition.
	ContentSelector string
	// WaitTimeout bounds each wait-for-element call.
	WaitTimeout time.Duration
}

// PageExtractor turns the current state of a browser page into products.
type PageExtractor func(page *rod.Page) ([]catalog.Product, error)

// Control walks a browser-rendered result set whose pages are advanced by
// selecting entries in a page-jump control. The total page count is read
// from an "of N" indicator. Navigation errors end the walk with partial
// results.
func Control(ctx context.Context, page *rod.Page, cfg ControlConfig, extract PageExtractor, maxItems int, logger *slog.Logger) ([]catalog.Product, error) {
	totalPages := controlTotalPages(page, cfg)
	logger.Info("pagination plan", "total_pages", totalPages)

	var all []catalog.Product
	for pageNum := 0; pageNum < totalPages; pageNum++ {
		batch, err := extract(page)
		if err != nil {
			logger.Error("page extraction failed, stopping", "page", pageNum+1, "error", err)
			return all, nil
		}
		logger.Debug("page extracted", "page", pageNum+1, "items", len(batch))

		var done bool
		all, done = appendCapped(all, batch, maxItems)
		if done {
			logger.Info("item cap reached", "max_items", maxItems)
			return all, nil
		}

		if pageNum < totalPages-1 {
			if err := selectNextPage(page, cfg, pageNum+1); err != nil {
				logger.Error("page navigation failed, stopping", "page", pageNum+2, "error", err)
				return all, nil
			}
		}
	}
	return all, nil
}

// controlTotalPages reads the page total from the "of N" indicator, or 1.
func controlTotalPages(page *rod.Page, cfg ControlConfig) int {
	el, err := page.Timeout(cfg.WaitTimeout).Element(cfg.TotalSelector)
	if err != nil {
		return 1
	}
	text, err := el.Text()
	if err != nil {
		return 1
	}
	return ParseTotalPages(text)
}

// ParseTotalPages extracts N from text like " of 6 ". Returns 1 when no
// total is present.
func ParseTotalPages(text string) int {
	if m := ofPages.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			return n
		}
	}
	return 1
}

// selectNextPage advances the jump control to option index next and waits
// for fresh content.
func selectNextPage(page *rod.Page, cfg ControlConfig, next int) error {
	sel, err := page.Timeout(cfg.WaitTimeout).Element(cfg.JumpSelector)
	if err != nil {
		return err
	}
	options, err := sel.Elements("option")
	if err != nil {
		return err
	}
	values := make([]string, 0, len(options))
	for _, opt := range options {
		value, err := opt.Attribute("value")
		if err != nil {
			return err
		}
		if value == nil {
			values = append(values, "")
			continue
		}
		values = append(values, *value)
	}

	value, err := jumpOption(values, next)
	if err != nil {
		return err
	}
	if err := sel.Select([]string{`[value="` + value + `"]`}, true, rod.SelectorTypeCSSSector); err != nil {
		return err
	}

	// Give the page a moment to start swapping content, then wait for the
	// listing marker to come back.
	time.Sleep(2 * time.Second)
	_, err = page.Timeout(cfg.WaitTimeout).Element(cfg.ContentSelector)
	return err
}

// jumpOption picks the option value for page index next. An "of N" total
// larger than the control's option list ends the walk rather than letting
// it re-read the current page.
func jumpOption(values []string, next int) (string, error) {
	if next >= len(values) {
		return "", fmt.Errorf("jump control has %d options, need index %d", len(values), next)
	}
	if values[next] == "" {
		return "", fmt.Errorf("jump option %d has no value", next)
	}
	return values[next], nil
}
