package hamestate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/larsks/hamrss/internal/catalog"
	"github.com/larsks/hamrss/internal/fetcher"
)

const equipmentIndexHTML = `<html><body>
<ul class="product-categories">
<li><a href="/product-category/ham_equipment/amps/">Amps</a></li>
<li><a href="https://www.hamestate.com/product-category/ham_equipment/transceivers/">Transceivers</a></li>
<li><a href="/product-category/ham_equipment/amps/">Amps again</a></li>
<li><a href="/product-category/accessories/cables/">Cables</a></li>
<li><a href="/product-category/ham_equipment/amps/page/2/">page 2</a></li>
</ul>
</body></html>`

const ampsFeedXML = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
<title>Amps</title>
<link>https://www.hamestate.com/product-category/ham_equipment/amps/</link>
<item>
  <title>Ameritron AL-811 Amplifier</title>
  <link>https://www.hamestate.com/product/ameritron-al-811/</link>
  <description>Three 811A tubes, 600W output.</description>
  <pubDate>Tue, 12 Aug 2025 09:30:00 +0000</pubDate>
  <author>sales@hamestate.com (HamEstate)</author>
</item>
<item>
  <title>Heathkit</title>
  <link>https://www.hamestate.com/product/heathkit-misc/</link>
</item>
</channel>
</rss>`

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

func TestCategoriesDiscovery(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{categoriesURL: equipmentIndexHTML}}
	c := New(nil, f, slog.Default())

	got := c.Categories(context.Background())
	want := []string{"amps", "transceivers"}
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
	f := &fakeFetcher{err: errors.New("timeout")}
	c := New(nil, f, slog.Default())

	if got := c.Categories(context.Background()); len(got) != 0 {
		t.Fatalf("categories = %v, want empty", got)
	}

	f.err = nil
	f.pages = map[string]string{categoriesURL: equipmentIndexHTML}
	if got := c.Categories(context.Background()); len(got) != 2 {
		t.Fatalf("categories = %v after recovery, want 2", got)
	}
}

func TestItems(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{
		categoriesURL:                equipmentIndexHTML,
		categoriesURL + "amps/feed/": ampsFeedXML,
	}}
	c := New(nil, f, slog.Default())

	products, err := c.Items(context.Background(), "amps", 0)
	if err != nil {
		t.Fatalf("Items: %v", err)
	}
	if len(products) != 2 {
		t.Fatalf("got %d products, want 2", len(products))
	}

	p := products[0]
	if p.Title != "Ameritron AL-811 Amplifier" {
		t.Errorf("title = %q", p.Title)
	}
	if p.URL != "https://www.hamestate.com/product/ameritron-al-811/" {
		t.Errorf("url = %q", p.URL)
	}
	if got := catalog.Deref(p.Manufacturer); got != "Ameritron" {
		t.Errorf("manufacturer = %q", got)
	}
	if got := catalog.Deref(p.Model); got != "AL-811 Amplifier" {
		t.Errorf("model = %q", got)
	}
	if got := catalog.Deref(p.Description); got != "Three 811A tubes, 600W output." {
		t.Errorf("description = %q", got)
	}
	if p.DateAdded == nil {
		t.Error("date_added missing")
	}
	if p.Author == nil {
		t.Error("author missing")
	}

	// One-word title: no manufacturer split, still published.
	if products[1].Manufacturer != nil {
		t.Errorf("manufacturer = %q, want null", *products[1].Manufacturer)
	}
}

func TestItemsUnknownCategory(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{categoriesURL: equipmentIndexHTML}}
	c := New(nil, f, slog.Default())

	_, err := c.Items(context.Background(), "towers", 0)
	var unknown *catalog.UnknownCategoryError
	if !errors.As(err, &unknown) {
		t.Fatalf("err = %v, want UnknownCategoryError", err)
	}
}

func TestItemsMaxItems(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{
		categoriesURL:                equipmentIndexHTML,
		categoriesURL + "amps/feed/": ampsFeedXML,
	}}
	c := New(nil, f, slog.Default())

	products, err := c.Items(context.Background(), "amps", 1)
	if err != nil {
		t.Fatalf("Items: %v", err)
	}
	if len(products) != 1 {
		t.Errorf("got %d products, want 1", len(products))
	}
}
