// Package gametest provides an in-memory game site for package tests.
package gametest

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/footley/eos-bot/config"
	"github.com/footley/eos-bot/pkg/page"
)

// Request is one recorded browser call.
type Request struct {
	URL    string
	Form   url.Values
	Cached bool
}

// Browser serves canned pages by URL and records every call.
// Unknown URLs render an empty page.
type Browser struct {
	Pages   map[string]string
	Errors  map[string]error
	Fetches []Request
	Visits  []Request
}

// NewBrowser creates an empty fake site.
func NewBrowser() *Browser {
	return &Browser{Pages: map[string]string{}, Errors: map[string]error{}}
}

func (b *Browser) Document(_ context.Context, rawURL string, form url.Values, cached bool) (*page.Document, error) {
	b.Fetches = append(b.Fetches, Request{URL: rawURL, Form: form, Cached: cached})
	if err := b.Errors[rawURL]; err != nil {
		return nil, err
	}
	return page.ParseString(b.Pages[rawURL])
}

func (b *Browser) Visit(_ context.Context, rawURL string, form url.Values) error {
	b.Visits = append(b.Visits, Request{URL: rawURL, Form: form})
	return b.Errors[rawURL]
}

// Requests counts every page round trip.
func (b *Browser) Requests() int {
	return len(b.Fetches) + len(b.Visits)
}

// VisitedURLs lists visited URLs in order.
func (b *Browser) VisitedURLs() []string {
	out := make([]string, 0, len(b.Visits))
	for _, v := range b.Visits {
		out = append(out, v.URL)
	}
	return out
}

// FetchCount counts document fetches of rawURL.
func (b *Browser) FetchCount(rawURL string) int {
	n := 0
	for _, f := range b.Fetches {
		if f.URL == rawURL {
			n++
		}
	}
	return n
}

// =============================================================================
// CONFIG
// =============================================================================

// Config returns a valid configuration against http://eos.test with a
// "toys" store class (b2b listing 7, import listing 70).
func Config(companies ...config.Company) *config.Config {
	return &config.Config{
		Username: "footley",
		Password: "secret",
		URLs: map[string]string{
			config.URLLogin:         "http://eos.test/login.php",
			config.URLHome:          "http://eos.test/",
			config.URLSwitchCompany: "http://eos.test/switch.php",
			config.URLStoreInv:      "http://eos.test/store.php?id={0}",
			config.URLB2BStore:      "http://eos.test/b2b.php?cat={0}&page={1}",
			config.URLImportStore:   "http://eos.test/import.php?cat={0}&page={1}",
			config.URLB2BBuy:        "http://eos.test/b2b-buy.php?id={0}&qty={1}",
			config.URLImportBuy:     "http://eos.test/import-buy.php?id={0}&qty={1}",
			config.URLStoreBonus:    "http://eos.test/lazy.php?id={0}",
			config.URLResearchPage:  "http://eos.test/rnd.php?id={0}",
		},
		Classes:   map[string]config.ChannelIDs{"toys": {B2B: 7, Import: 70}},
		Companies: companies,
	}
}

// B2BListing is the URL of b2b listing page n for the toys class.
func B2BListing(n int) string {
	return fmt.Sprintf("http://eos.test/b2b.php?cat=7&page=%d", n)
}

// ImportListing is the URL of import listing page n for the toys class.
func ImportListing(n int) string {
	return fmt.Sprintf("http://eos.test/import.php?cat=70&page=%d", n)
}

// StoreURL is the inventory page of a store.
func StoreURL(id string) string {
	return "http://eos.test/store.php?id=" + id
}

// =============================================================================
// PAGES
// =============================================================================

// Listing renders a market listing table.
func Listing(rows ...string) string {
	return `<html><body><table class="market"><tr><th>Product</th><th></th><th></th><th></th><th>Price</th><th></th></tr>` +
		strings.Join(rows, "\n") + `</table></body></html>`
}

// Closed renders the market-closed notice.
func Closed() string {
	return `<html><body><h3>Market Closed</h3><p>Come back tomorrow.</p></body></html>`
}

// B2BRow renders a b2b offer: name | seller | quality | quantity | price | buy.
func B2BRow(name, quality, qty, price, handle string) string {
	return fmt.Sprintf(`<tr><td><a href="#">%s</a></td><td>Seller Co</td><td>%s</td><td>%s</td><td>%s</td>`+
		`<td><a href="#" onclick="mB.buyFromMarket(%s, 'b2b'); return false;">Buy</a></td></tr>`,
		name, quality, qty, price, handle)
}

// ImportRow renders an import offer: name | origin | lead | quality | price | buy.
func ImportRow(name, quality, price, handle string) string {
	return fmt.Sprintf(`<tr><td><a href="#">%s</a></td><td>China</td><td>2 days</td><td>%s</td><td>%s</td>`+
		`<td><a href="#" onclick="mB.buyFromMarket(%s, 'import'); return false;">Buy</a></td></tr>`,
		name, quality, price, handle)
}

// Store renders a store inventory page made of product tiles.
func Store(tiles ...string) string {
	return `<html><body><div id="prod_choices">` + strings.Join(tiles, "\n") + `</div></body></html>`
}

// Tile renders an in-stock product tile.
func Tile(name, qty string) string {
	return fmt.Sprintf(`<div class="prod_choices_item"><img src="p.png" title="%s">`+
		`<a href="#" title="Total Quantity: %s">Stock</a></div>`, name, qty)
}

// OutOfStockTile renders a sold-out product tile.
func OutOfStockTile(name string) string {
	return fmt.Sprintf(`<div class="prod_choices_item"><img src="p.png" title="%s"><span>Out of Stock</span></div>`, name)
}
