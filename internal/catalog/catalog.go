// Package catalog defines the canonical Product record and the contract
// every source driver implements.
package catalog

import (
	"context"
	"fmt"
	"strings"
)

// Product is the canonical listing record produced by every driver.
// URL and Title are required; everything else is nullable and populated
// best-effort.
type Product struct {
	URL          string  `json:"url"`
	Title        string  `json:"title"`
	Description  *string `json:"description"`
	Manufacturer *string `json:"manufacturer"`
	Model        *string `json:"model"`
	ProductID    *string `json:"product_id"`
	Location     *string `json:"location"`
	DateAdded    *string `json:"date_added"`
	Price        *string `json:"price"`
	ImageURL     *string `json:"image_url"`
	Author       *string `json:"author"`
}

// Str returns a pointer to s, or nil if s is empty. Drivers use it to map
// "not extracted" to a null field.
func Str(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the string behind p, or "" if p is nil.
func Deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// Catalog is the capability contract implemented by every source driver.
type Catalog interface {
	// Categories enumerates the source's listing categories. Discovery
	// failures yield an empty slice, never an error; a failed discovery is
	// not cached, so the next call retries.
	Categories(ctx context.Context) []string

	// Items fetches and parses all listings in a category, stopping early
	// once maxItems (if > 0) is reached. An unrecognized category fails
	// with *UnknownCategoryError.
	Items(ctx context.Context, category string, maxItems int) ([]Product, error)
}

// UnknownCategoryError reports a request for a category the driver does not
// serve, naming the valid set.
type UnknownCategoryError struct {
	Category string
	Valid    []string
}

func (e *UnknownCategoryError) Error() string {
	return fmt.Sprintf("unknown category %q (valid: %s)", e.Category, strings.Join(e.Valid, ", "))
}

// Contains reports whether category is in the valid set.
func Contains(valid []string, category string) bool {
	for _, v := range valid {
		if v == category {
			return true
		}
	}
	return false
}

// Cap truncates products to maxItems when maxItems > 0.
func Cap(products []Product, maxItems int) []Product {
	if maxItems > 0 && len(products) > maxItems {
		return products[:maxItems]
	}
	return products
}
