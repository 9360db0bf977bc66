// Package stock reads product stock levels from a store inventory page.
package stock

import (
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/footley/eos-bot/config"
	"github.com/footley/eos-bot/decision/pricing"
	eoserrors "github.com/footley/eos-bot/pkg/errors"
	"github.com/footley/eos-bot/pkg/page"
)

// Level is a product's stock on hand.
type Level int

const (
	// OutOfStock is a sold-out product.
	OutOfStock Level = 0
	// Unknown means the page did not show the product; never restocked.
	Unknown Level = -1
)

const totalQuantityPrefix = "Total Quantity: "

func (l Level) String() string {
	if l == Unknown {
		return "unknown"
	}
	return strconv.Itoa(int(l))
}

// NeedsRestock reports whether stock at this level should be replenished
// for a product with the given minimum.
func (l Level) NeedsRestock(min int) bool {
	if l == Unknown {
		return false
	}
	return l == OutOfStock || int(l) <= min
}

// Inspector reads stock levels.
type Inspector struct {
	logger zerolog.Logger
}

// NewInspector creates an inspector logging to logger.
func NewInspector(logger zerolog.Logger) *Inspector {
	return &Inspector{logger: logger}
}

// Inspect finds the product's tile on the store page. Anything unexpected
// yields Unknown so no purchase is made on a misread page.
func (i *Inspector) Inspect(doc *page.Document, product config.Product) Level {
	img := doc.FindByAttr("img", "title", product.Name)
	if !img.Exists() {
		i.logger.Warn().
			Str("code", eoserrors.ErrCodeProductNotFound).
			Str("product", product.Name).
			Msg("could not find product")
		return Unknown
	}
	tile := img.ParentWithClass("div", "prod_choices_item")
	if !tile.Exists() {
		i.logger.Warn().
			Str("code", eoserrors.ErrCodePageFormat).
			Str("product", product.Name).
			Msg("product image outside a product tile")
		return Unknown
	}
	if tile.HasText("Out of Stock") {
		return OutOfStock
	}

	label, _ := tile.FindByAttrPrefix("*", "title", totalQuantityPrefix).Attr("title")
	qty, err := pricing.ParseCount(strings.TrimPrefix(label, totalQuantityPrefix))
	if err != nil || qty < 0 {
		i.logger.Warn().
			Err(err).
			Str("code", eoserrors.ErrCodePageFormat).
			Str("product", product.Name).
			Str("label", label).
			Msg("unreadable stock quantity")
		return Unknown
	}
	return Level(qty)
}
