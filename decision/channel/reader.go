// Package channel reads supplier listings into sorted price records.
package channel

import (
	"context"
	"fmt"
	"net/url"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/footley/eos-bot/config"
	"github.com/footley/eos-bot/decision/pricing"
	eoserrors "github.com/footley/eos-bot/pkg/errors"
	"github.com/footley/eos-bot/pkg/page"
)

// MaxPages is the number of listing pages the game paginates offers over.
const MaxPages = 15

// Browser fetches rendered game pages.
type Browser interface {
	Document(ctx context.Context, rawURL string, form url.Values, cached bool) (*page.Document, error)
}

// Reader paginates a channel's listing and collects a product's offers.
type Reader struct {
	browser Browser
	cfg     *config.Config
	logger  zerolog.Logger
}

// NewReader creates a channel reader.
func NewReader(browser Browser, cfg *config.Config) *Reader {
	return &Reader{browser: browser, cfg: cfg, logger: log.Logger}
}

// WithLogger replaces the logger.
func (r *Reader) WithLogger(l zerolog.Logger) *Reader {
	r.logger = l
	return r
}

// Read returns every offer of product on the channel, cheapest normalized
// price first. No offers is an empty result, not an error. A closed market
// returns a CHANNEL_CLOSED error.
func (r *Reader) Read(ctx context.Context, store config.Store, product config.Product, ch Channel) ([]pricing.Record, error) {
	ids, ok := r.cfg.Classes[store.Class]
	if !ok {
		return nil, fmt.Errorf("store %s: unknown class %q", store.ID, store.Class)
	}
	shape := ch.Shape()
	records := make([]pricing.Record, 0)

	for pageNo := 1; pageNo <= MaxPages; pageNo++ {
		listingURL := r.cfg.URL(ch.ListingURLKey(), ch.ListingID(ids), pageNo)
		doc, err := r.browser.Document(ctx, listingURL, nil, true)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s listing page %d: %w", ch, pageNo, err)
		}
		if doc.FindByText("h3", "Market Closed").Exists() {
			return nil, eoserrors.NewChannelClosedError(ch.String())
		}

		anchor := doc.FindByText("a", product.Name)
		if !anchor.Exists() {
			if len(records) > 0 {
				break
			}
			continue
		}

		done := false
		for row := anchor.Parent("tr"); row.Exists(); row = row.NextSibling() {
			if !row.FindByText("a", product.Name).Exists() {
				done = true
				break
			}
			rec, err := extract(row, shape)
			if err != nil {
				r.logger.Warn().
					Err(eoserrors.NewPageFormatError("listing row", err)).
					Str("channel", ch.String()).
					Str("product", product.Name).
					Int("page", pageNo).
					Msg("skipping unreadable offer")
				continue
			}
			records = append(records, rec)
		}
		if done {
			break
		}
	}

	pricing.SortByNormalized(records)
	r.logger.Debug().
		Str("channel", ch.String()).
		Str("product", product.Name).
		Int("offers", len(records)).
		Msg("channel read")
	return records, nil
}

func extract(row page.Node, shape RowShape) (pricing.Record, error) {
	cells := row.Children("td")
	quality, err := shape.Quality(cells)
	if err != nil {
		return pricing.Record{}, fmt.Errorf("quality: %w", err)
	}
	qty, err := shape.Quantity(cells)
	if err != nil {
		return pricing.Record{}, fmt.Errorf("quantity: %w", err)
	}
	price, err := shape.Price(cells)
	if err != nil {
		return pricing.Record{}, fmt.Errorf("price: %w", err)
	}
	handle, err := shape.Handle(row)
	if err != nil {
		return pricing.Record{}, err
	}
	rec := pricing.Normalize(quality, qty, price)
	rec.Handle = handle
	return rec, nil
}
