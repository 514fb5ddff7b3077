package qth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/larsks/hamrss/internal/catalog"
	"github.com/larsks/hamrss/internal/fetcher"
)

// listingHTML mirrors the site's malformed markup: every ad lives inside
// one DL, titles in bold, detail and body in loose DD elements.
const listingHTML = `<html><body>
<DL>
<DT><B>FS: Yaesu FT-857D</B> <a href="view_ad.php?counter=1712345">photo</a>
<DD>Nice condition Yaesu FT-857D with hand mic. $450 shipped. Paypal accepted.
<DD>Listing #1712345 - Submitted on 08/12/25 by Callsign W1AW
<DD><a href="contact.php">Click to Contact Seller</a>
<DT><B>Heathkit SB-200</B>
<DD>Working amplifier, recently recapped tubes good output. SOLD
<DD>Listing #1712399 - Submitted on 08/10/25 by Callsign K5XYZ
</DL>
</body></html>`

const indexHTML = `<html><body>
<h2>VIEW BY CATEGORY</h2>
<a href="c_radio.php">Radios</a>
<a href="c_amps.php">Amplifiers</a>
<a href="about.php">About Us</a>
<a href="c_radio.php"></a>
</body></html>`

type fakeFetcher struct {
	pages map[string]string
	err   error
}

func (f *fakeFetcher) Get(_ context.Context, url string) (*fetcher.Response, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, ok := f.pages[url]
	if !ok {
		return nil, fmt.Errorf("unexpected fetch: %s", url)
	}
	return &fetcher.Response{StatusCode: 200, Body: []byte(body), FinalURL: url}, nil
}

func (f *fakeFetcher) Close() error { return nil }

func TestExtractProducts(t *testing.T) {
	products, err := ExtractProducts([]byte(listingHTML))
	if err != nil {
		t.Fatalf("ExtractProducts: %v", err)
	}
	if len(products) != 2 {
		t.Fatalf("got %d products, want 2", len(products))
	}

	p := products[0]
	if p.Title != "FS: Yaesu FT-857D" {
		t.Errorf("title = %q", p.Title)
	}
	if got := catalog.Deref(p.Manufacturer); got != "Yaesu" {
		t.Errorf("manufacturer = %q, want Yaesu", got)
	}
	if got := catalog.Deref(p.Model); got != "FT-857D" {
		t.Errorf("model = %q, want FT-857D", got)
	}
	if p.URL != "https://swap.qth.com/view_ad.php?counter=1712345" {
		t.Errorf("url = %q", p.URL)
	}
	if got := catalog.Deref(p.ProductID); got != "1712345" {
		t.Errorf("product_id = %q", got)
	}
	if got := catalog.Deref(p.Price); got != "$450 shipped" {
		t.Errorf("price = %q, want $450 shipped", got)
	}
	if got := catalog.Deref(p.Description); got != "Nice condition Yaesu FT-857D with hand mic" {
		t.Errorf("description = %q", got)
	}
	if got := catalog.Deref(p.DateAdded); got != "08/12/25" {
		t.Errorf("date_added = %q", got)
	}
	if got := catalog.Deref(p.Author); got != "W1AW" {
		t.Errorf("author = %q, want W1AW", got)
	}

	// The second ad has no detail link: it falls back to the site root and
	// takes its product ID from the listing number.
	p = products[1]
	if p.URL != "https://swap.qth.com/" {
		t.Errorf("url = %q", p.URL)
	}
	if got := catalog.Deref(p.ProductID); got != "1712399" {
		t.Errorf("product_id = %q, want 1712399", got)
	}
	if got := catalog.Deref(p.Price); got != "SOLD" {
		t.Errorf("price = %q, want SOLD", got)
	}
	if got := catalog.Deref(p.Author); got != "K5XYZ" {
		t.Errorf("author = %q", got)
	}
}

func TestExtractProductsNoDL(t *testing.T) {
	products, err := ExtractProducts([]byte(`<html><body><p>nothing here</p></body></html>`))
	if err != nil {
		t.Fatalf("ExtractProducts: %v", err)
	}
	if len(products) != 0 {
		t.Errorf("got %d products, want 0", len(products))
	}
}

func TestCategoriesDiscovery(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{
		"https://swap.qth.com/index.php": indexHTML,
	}}
	c := New(nil, f, slog.Default())

	got := c.Categories(context.Background())
	want := []string{"Amplifiers", "Radios"}
	if len(got) != len(want) {
		t.Fatalf("categories = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("categories[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestCategoriesFailureNotCached(t *testing.T) {
	f := &fakeFetcher{err: errors.New("down")}
	c := New(nil, f, slog.Default())

	if got := c.Categories(context.Background()); len(got) != 0 {
		t.Fatalf("categories = %v, want empty on failure", got)
	}

	// The site comes back; the next call retries discovery.
	f.err = nil
	f.pages = map[string]string{"https://swap.qth.com/index.php": indexHTML}
	if got := c.Categories(context.Background()); len(got) != 2 {
		t.Fatalf("categories = %v after recovery, want 2", got)
	}
}

func TestItems(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{
		"https://swap.qth.com/index.php":   indexHTML,
		"https://swap.qth.com/c_radio.php": listingHTML,
	}}
	c := New(nil, f, slog.Default())

	products, err := c.Items(context.Background(), "Radios", 0)
	if err != nil {
		t.Fatalf("Items: %v", err)
	}
	if len(products) != 2 {
		t.Errorf("got %d products, want 2", len(products))
	}
}

func TestItemsUnknownCategory(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{
		"https://swap.qth.com/index.php": indexHTML,
	}}
	c := New(nil, f, slog.Default())

	_, err := c.Items(context.Background(), "Towers", 0)
	var unknown *catalog.UnknownCategoryError
	if !errors.As(err, &unknown) {
		t.Fatalf("err = %v, want UnknownCategoryError", err)
	}
	if len(unknown.Valid) != 2 {
		t.Errorf("valid = %v", unknown.Valid)
	}
}
