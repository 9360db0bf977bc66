// Package pricing turns raw supplier offers into comparable price records.
package pricing

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// GenericQuality marks offers of a channel with no quality dimension.
const GenericQuality = 999

// discountPerQuality is the game's 1% price discount per quality point.
const discountPerQuality = 0.01

// Record is one supplier offer.
type Record struct {
	Quality    float64 `json:"quality"`
	Available  float64 `json:"available"` // +Inf for unlimited stock
	UnitPrice  float64 `json:"unit_price"`
	Normalized float64 `json:"normalized_price"`
	// Handle identifies the listing row to buy from. Valid for the current pass only.
	Handle string `json:"handle"`
}

// Normalize builds a Record, deriving the quality-adjusted price.
func Normalize(quality, available, unitPrice float64) Record {
	return Record{
		Quality:    quality,
		Available:  available,
		UnitPrice:  unitPrice,
		Normalized: NormalizedPrice(quality, unitPrice),
	}
}

// NormalizedPrice is unitPrice less 1% per quality point. The generic tier
// is +Inf so it never outranks a real offer; the linear formula would go
// negative there.
func NormalizedPrice(quality, unitPrice float64) float64 {
	if quality == GenericQuality {
		return math.Inf(1)
	}
	return unitPrice - unitPrice*discountPerQuality*quality
}

// SortByNormalized orders records cheapest first, keeping page order on ties.
func SortByNormalized(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Normalized < records[j].Normalized
	})
}

// UnitPriceDecimal is the offer price as an exact amount.
func (r Record) UnitPriceDecimal() decimal.Decimal {
	return decimal.NewFromFloat(r.UnitPrice)
}

func (r Record) String() string {
	return fmt.Sprintf("%gQ $%g (norm %g, avail %g)", r.Quality, r.UnitPrice, r.Normalized, r.Available)
}

// =============================================================================
// CELL TEXT PARSING
// =============================================================================

func clean(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), ",", "")
}

// ParseMoney reads amounts such as "$1,234.50".
func ParseMoney(s string) (decimal.Decimal, error) {
	v := strings.TrimPrefix(clean(s), "$")
	d, err := decimal.NewFromString(strings.TrimSpace(v))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q", s)
	}
	return d, nil
}

// ParseQuantity reads decimal quantities with thousands separators.
func ParseQuantity(s string) (float64, error) {
	f, err := strconv.ParseFloat(clean(s), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid quantity %q", s)
	}
	return f, nil
}

// ParseCount reads whole counts with thousands separators.
func ParseCount(s string) (int, error) {
	n, err := strconv.Atoi(clean(s))
	if err != nil {
		return 0, fmt.Errorf("invalid count %q", s)
	}
	return n, nil
}
