package channel

import (
	"fmt"
	"math"
	"strings"

	"github.com/footley/eos-bot/config"
	"github.com/footley/eos-bot/decision/pricing"
	"github.com/footley/eos-bot/pkg/page"
)

// Channel is a supply channel a store can buy from.
type Channel int

const (
	B2B Channel = iota
	Import
)

func (c Channel) String() string {
	switch c {
	case B2B:
		return "b2b"
	case Import:
		return "import"
	default:
		return "unknown"
	}
}

// ListingURLKey is the config url template of the channel's listing pages.
func (c Channel) ListingURLKey() string {
	if c == B2B {
		return config.URLB2BStore
	}
	return config.URLImportStore
}

// BuyURLKey is the config url template of the channel's buy action.
func (c Channel) BuyURLKey() string {
	if c == B2B {
		return config.URLB2BBuy
	}
	return config.URLImportBuy
}

// ListingID is the numeric listing id of the channel for a store class.
func (c Channel) ListingID(ids config.ChannelIDs) int {
	if c == B2B {
		return ids.B2B
	}
	return ids.Import
}

// Shape returns the row layout of the channel's listing table.
func (c Channel) Shape() RowShape {
	if c == B2B {
		return b2bShape{}
	}
	return importShape{}
}

// RowShape extracts an offer from one listing table row.
type RowShape interface {
	Quality(cells []page.Node) (float64, error)
	Quantity(cells []page.Node) (float64, error)
	Price(cells []page.Node) (float64, error)
	Handle(row page.Node) (string, error)
}

// b2b rows: name | seller | quality | quantity | price | buy
type b2bShape struct{}

func (b2bShape) Quality(cells []page.Node) (float64, error) {
	return quantityCell(cells, 2)
}

func (b2bShape) Quantity(cells []page.Node) (float64, error) {
	return quantityCell(cells, 3)
}

func (b2bShape) Price(cells []page.Node) (float64, error) {
	return priceCell(cells, 4)
}

func (b2bShape) Handle(row page.Node) (string, error) {
	return buyHandle(row)
}

// import rows: name | origin | lead time | quality | price | buy.
// Import stock is unlimited.
type importShape struct{}

func (importShape) Quality(cells []page.Node) (float64, error) {
	return quantityCell(cells, 3)
}

func (importShape) Quantity([]page.Node) (float64, error) {
	return math.Inf(1), nil
}

func (importShape) Price(cells []page.Node) (float64, error) {
	return priceCell(cells, 4)
}

func (importShape) Handle(row page.Node) (string, error) {
	return buyHandle(row)
}

func quantityCell(cells []page.Node, i int) (float64, error) {
	if i >= len(cells) {
		return 0, fmt.Errorf("row has %d cells, need column %d", len(cells), i)
	}
	return pricing.ParseQuantity(cells[i].Text())
}

func priceCell(cells []page.Node, i int) (float64, error) {
	if i >= len(cells) {
		return 0, fmt.Errorf("row has %d cells, need column %d", len(cells), i)
	}
	d, err := pricing.ParseMoney(cells[i].Text())
	if err != nil {
		return 0, err
	}
	return d.InexactFloat64(), nil
}

const buyCallPrefix = "mB.buyFromMarket("

// buyHandle pulls the listing id out of onclick="mB.buyFromMarket(123456, ...)".
func buyHandle(row page.Node) (string, error) {
	anchor := row.FindByAttrPrefix("a", "onclick", buyCallPrefix)
	onclick, ok := anchor.Attr("onclick")
	if !ok {
		return "", fmt.Errorf("no buy action in row")
	}
	args := strings.TrimPrefix(onclick, buyCallPrefix)
	id := args
	if i := strings.IndexAny(args, ",)"); i >= 0 {
		id = args[:i]
	}
	id = strings.Trim(strings.TrimSpace(id), `'"`)
	if id == "" {
		return "", fmt.Errorf("empty buy handle in %q", onclick)
	}
	return id, nil
}
