package qrz

import (
	"context"
	"log/slog"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"

	"github.com/larsks/hamrss/internal/catalog"
	"github.com/larsks/hamrss/internal/config"
	"github.com/larsks/hamrss/internal/fetcher"
)

const forumRSS = `<?xml version="1.0" encoding="utf-8"?>
<rss version="2.0">
<channel>
<title>Ham Radio Gear For Sale</title>
<link>https://forums.qrz.com/</link>
<item>
  <title>Yaesu FT-991A - excellent condition</title>
  <link>https://forums.qrz.com/index.php?threads/yaesu-ft-991a.900001/</link>
  <pubDate>Mon, 11 Aug 2025 14:00:00 +0000</pubDate>
</item>
<item>
  <title>Icom IC-7300 barely used</title>
  <link>https://forums.qrz.com/index.php?threads/icom-ic-7300.900002/</link>
</item>
<item>
  <title>Misc</title>
  <link>https://forums.qrz.com/index.php?threads/misc.900003/</link>
</item>
</channel>
</rss>`

func newTestCatalog(t *testing.T) (*Catalog, *fetcher.HTTPFetcher) {
	t.Helper()
	cfg := config.DefaultConfig()
	f, err := fetcher.NewHTTPFetcher(cfg, slog.Default())
	if err != nil {
		t.Fatalf("NewHTTPFetcher: %v", err)
	}
	httpmock.ActivateNonDefault(f.Client())
	t.Cleanup(httpmock.DeactivateAndReset)
	return New(cfg, f, slog.Default()), f
}

func TestItems(t *testing.T) {
	c, _ := newTestCatalog(t)
	httpmock.RegisterResponder("GET", feedURL,
		httpmock.NewStringResponder(http.StatusOK, forumRSS))

	products, err := c.Items(context.Background(), "ham-radio-gear-for-sale", 0)
	if err != nil {
		t.Fatalf("Items: %v", err)
	}
	if len(products) != 3 {
		t.Fatalf("got %d products, want 3", len(products))
	}

	p := products[0]
	if p.Title != "Yaesu FT-991A - excellent condition" {
		t.Errorf("title = %q", p.Title)
	}
	if got := catalog.Deref(p.Description); got != p.Title {
		t.Errorf("description = %q, want the entry title", got)
	}
	if p.URL != "https://forums.qrz.com/index.php?threads/yaesu-ft-991a.900001/" {
		t.Errorf("url = %q", p.URL)
	}
	if got := catalog.Deref(p.Manufacturer); got != "Yaesu" {
		t.Errorf("manufacturer = %q", got)
	}
	if got := catalog.Deref(p.Model); got != "FT-991A" {
		t.Errorf("model = %q, want FT-991A (dash tail dropped)", got)
	}
	if p.DateAdded == nil {
		t.Error("date_added missing")
	}

	// No dash separator: model takes the whole tail.
	p = products[1]
	if got := catalog.Deref(p.Model); got != "IC-7300 barely used" {
		t.Errorf("model = %q", got)
	}

	// Single-word title yields no manufacturer/model.
	p = products[2]
	if p.Manufacturer != nil || p.Model != nil {
		t.Errorf("manufacturer/model = %v/%v, want null", p.Manufacturer, p.Model)
	}
}

func TestItemsAuthFailureStillFetchesFeed(t *testing.T) {
	c, _ := newTestCatalog(t)
	c.auth = fetcher.NewFormAuth(c.fetcher, loginURL, "w1aw", "wrong", slog.Default())

	httpmock.RegisterResponder("GET", loginURL,
		httpmock.NewStringResponder(http.StatusOK,
			`<html><body><form action="/login"><input name="username"><input name="password"></form></body></html>`))
	httpmock.RegisterResponder("POST", "https://www.qrz.com/login",
		httpmock.NewStringResponder(http.StatusOK, "We could not log you in"))
	httpmock.RegisterResponder("GET", feedURL,
		httpmock.NewStringResponder(http.StatusOK, forumRSS))

	products, err := c.Items(context.Background(), "ham-radio-gear-for-sale", 0)
	if err != nil {
		t.Fatalf("Items: %v", err)
	}
	if len(products) != 3 {
		t.Errorf("got %d products, want 3", len(products))
	}
}

func TestItemsUnknownCategory(t *testing.T) {
	c, _ := newTestCatalog(t)
	_, err := c.Items(context.Background(), "antennas", 0)
	if _, ok := err.(*catalog.UnknownCategoryError); !ok {
		t.Fatalf("err = %v, want UnknownCategoryError", err)
	}
}

func TestSplitForumTitle(t *testing.T) {
	tests := []struct {
		title, mfr, model string
	}{
		{"Kenwood TS-890S - mint", "Kenwood", "TS-890S"},
		{"Elecraft K3 100W loaded", "Elecraft", "K3 100W loaded"},
		{"Amplifier", "", ""},
	}
	for _, tt := range tests {
		mfr, model := splitForumTitle(tt.title)
		if mfr != tt.mfr || model != tt.model {
			t.Errorf("splitForumTitle(%q) = (%q, %q), want (%q, %q)",
				tt.title, mfr, model, tt.mfr, tt.model)
		}
	}
}
