// Package selector picks the supply channel to restock from.
package selector

import (
	"math"

	"github.com/footley/eos-bot/decision/channel"
	"github.com/footley/eos-bot/decision/pricing"
)

// Choice is the offer selected for purchase.
type Choice struct {
	Channel channel.Channel
	Record  pricing.Record
}

// Select picks b2b's best offer only when it is strictly cheaper than
// import's best; import wins ties and is the default. Both inputs must be
// sorted cheapest first. ok is false when neither channel has an offer.
func Select(b2b, imp []pricing.Record) (Choice, bool) {
	switch {
	case len(b2b) == 0 && len(imp) == 0:
		return Choice{}, false
	case len(b2b) > 0 && (len(imp) == 0 || b2b[0].Normalized < imp[0].Normalized):
		return Choice{Channel: channel.B2B, Record: b2b[0]}, true
	default:
		return Choice{Channel: channel.Import, Record: imp[0]}, true
	}
}

// Quantity is how many units to order for a product that wants buy units.
// b2b listings have finite stock so the order is clipped to it; import
// always gets the full amount.
func (c Choice) Quantity(buy int) int {
	if c.Channel != channel.B2B {
		return buy
	}
	avail := math.Floor(c.Record.Available)
	if avail < float64(buy) {
		if avail < 0 {
			return 0
		}
		return int(avail)
	}
	return buy
}
