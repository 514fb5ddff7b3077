// Package pagination implements the page-walking strategies drivers use to
// cover multi-page result sets: query-parameter stepping, next-link
// following with a loop guard, and browser control pagination.
package pagination

import (
	"github.com/larsks/hamrss/internal/catalog"
	"github.com/larsks/hamrss/internal/fetcher"
)

// maxFollowPages is the hard safety ceiling for link-following pagination.
const maxFollowPages = 100

// Extractor turns one fetched page into products. Implementations absorb
// per-item failures internally and return whatever they could extract.
type Extractor func(resp *fetcher.Response) ([]catalog.Product, error)

// appendCapped appends batch to all, truncating at maxItems. The second
// return value is true once the cap is reached.
func appendCapped(all, batch []catalog.Product, maxItems int) ([]catalog.Product, bool) {
	all = append(all, batch...)
	if maxItems > 0 && len(all) >= maxItems {
		return all[:maxItems], true
	}
	return all, false
}
