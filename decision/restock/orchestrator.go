// Package restock runs the per-store restock pass: inspect each tracked
// product, source the cheapest offer across channels and place the order.
package restock

import (
	"context"
	"fmt"
	"net/url"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/footley/eos-bot/config"
	"github.com/footley/eos-bot/decision/channel"
	"github.com/footley/eos-bot/decision/policy"
	"github.com/footley/eos-bot/decision/selector"
	"github.com/footley/eos-bot/decision/stock"
	eoserrors "github.com/footley/eos-bot/pkg/errors"
	"github.com/footley/eos-bot/pkg/page"
)

// Browser fetches pages and issues game actions.
type Browser interface {
	Document(ctx context.Context, rawURL string, form url.Values, cached bool) (*page.Document, error)
	Visit(ctx context.Context, rawURL string, form url.Values) error
}

// Journal records placed purchases.
type Journal interface {
	Record(ctx context.Context, p Purchase) error
}

// Outcome is where a product's restock ended.
type Outcome int

const (
	// Idle: stock is sufficient or unknown.
	Idle Outcome = iota
	// Purchased: an order was placed.
	Purchased
	// NoSupply: neither channel lists the product.
	NoSupply
	// Denied: a purchase guardrail blocked the order.
	Denied
	// Failed: a page or action failed for this product only.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Idle:
		return "idle"
	case Purchased:
		return "purchased"
	case NoSupply:
		return "no_supply"
	case Denied:
		return "denied"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Purchase is an order placed (or, in a dry run, decided) for a product.
type Purchase struct {
	CompanyID   string
	CompanyName string
	StoreID     string
	Product     string
	Channel     string
	Quality     float64
	Normalized  float64
	UnitPrice   decimal.Decimal
	Quantity    int
	Handle      string
	DryRun      bool
}

// Cost is the order total.
func (p Purchase) Cost() decimal.Decimal {
	return p.UnitPrice.Mul(decimal.NewFromInt(int64(p.Quantity)))
}

// ProductReport is the result for one tracked product.
type ProductReport struct {
	Product  string
	Level    stock.Level
	Outcome  Outcome
	Purchase *Purchase
	Err      error
}

// StoreReport is the result of one store pass.
type StoreReport struct {
	StoreID  string
	Products []ProductReport
}

// Purchases returns the orders placed in the store.
func (r StoreReport) Purchases() []Purchase {
	var out []Purchase
	for _, p := range r.Products {
		if p.Purchase != nil {
			out = append(out, *p.Purchase)
		}
	}
	return out
}

// Spend is the total of the store's orders.
func (r StoreReport) Spend() decimal.Decimal {
	total := decimal.Zero
	for _, p := range r.Purchases() {
		total = total.Add(p.Cost())
	}
	return total
}

// Orchestrator restocks stores.
type Orchestrator struct {
	browser   Browser
	cfg       *config.Config
	reader    *channel.Reader
	inspector *stock.Inspector
	policies  *policy.Engine
	journal   Journal
	logger    zerolog.Logger
	dryRun    bool
}

// NewOrchestrator creates an orchestrator with no guardrails and no journal.
func NewOrchestrator(browser Browser, cfg *config.Config) *Orchestrator {
	return &Orchestrator{
		browser:   browser,
		cfg:       cfg,
		reader:    channel.NewReader(browser, cfg),
		inspector: stock.NewInspector(log.Logger),
		policies:  policy.NewEngine(),
		logger:    log.Logger,
	}
}

// WithLogger replaces the logger of the orchestrator and its readers.
func (o *Orchestrator) WithLogger(l zerolog.Logger) *Orchestrator {
	o.logger = l
	o.reader.WithLogger(l)
	o.inspector = stock.NewInspector(l)
	return o
}

// WithPolicies installs purchase guardrails.
func (o *Orchestrator) WithPolicies(e *policy.Engine) *Orchestrator {
	o.policies = e
	return o
}

// WithJournal records every purchase to j.
func (o *Orchestrator) WithJournal(j Journal) *Orchestrator {
	o.journal = j
	return o
}

// WithDryRun decides purchases without issuing them.
func (o *Orchestrator) WithDryRun(dryRun bool) *Orchestrator {
	o.dryRun = dryRun
	return o
}

// ProcessStore restocks every tracked product of store in configured order,
// then claims the store bonus. Product-level failures are logged and
// contained in the report. A closed market is returned as a CHANNEL_CLOSED
// error together with the products processed so far.
func (o *Orchestrator) ProcessStore(ctx context.Context, company config.Company, store config.Store) (StoreReport, error) {
	report := StoreReport{StoreID: store.ID}
	logger := o.logger.With().Str("company", company.Name).Str("store", store.ID).Logger()
	logger.Info().Msgf("processing %s", store.Class)

	doc, err := o.browser.Document(ctx, o.cfg.URL(config.URLStoreInv, store.ID), nil, false)
	if err != nil {
		return report, fmt.Errorf("failed to load store %s inventory: %w", store.ID, err)
	}

	for _, product := range store.Products {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		pr, err := o.processProduct(ctx, logger, doc, company, store, product)
		report.Products = append(report.Products, pr)
		if err != nil {
			return report, err
		}
	}

	if o.dryRun {
		return report, nil
	}
	if err := o.browser.Visit(ctx, o.cfg.URL(config.URLStoreBonus, store.ID), nil); err != nil {
		logger.Warn().Err(err).Msg("failed to claim store bonus")
	}
	return report, nil
}

// processProduct walks Inspecting -> Deciding -> Sourcing -> Purchasing.
// Only a closed market escapes as an error.
func (o *Orchestrator) processProduct(ctx context.Context, logger zerolog.Logger, doc *page.Document, company config.Company, store config.Store, product config.Product) (ProductReport, error) {
	pr := ProductReport{Product: product.Name}
	logger = logger.With().Str("product", product.Name).Logger()

	pr.Level = o.inspector.Inspect(doc, product)
	if !pr.Level.NeedsRestock(int(product.Min)) {
		logger.Debug().Str("stock", pr.Level.String()).Int("min", int(product.Min)).Msg("stock ok")
		return pr, nil
	}
	logger.Debug().Str("stock", pr.Level.String()).Int("min", int(product.Min)).Msg("restocking")

	b2b, err := o.reader.Read(ctx, store, product, channel.B2B)
	if err != nil {
		return o.failed(logger, pr, err)
	}
	imp, err := o.reader.Read(ctx, store, product, channel.Import)
	if err != nil {
		return o.failed(logger, pr, err)
	}

	choice, ok := selector.Select(b2b, imp)
	qty := 0
	if ok {
		qty = choice.Quantity(int(product.Buy))
	}
	if !ok || qty <= 0 {
		logger.Warn().
			Str("code", eoserrors.ErrCodeNoSupply).
			Int("b2b_offers", len(b2b)).
			Int("import_offers", len(imp)).
			Msg("no supply for product")
		pr.Outcome = NoSupply
		return pr, nil
	}

	purchase := Purchase{
		CompanyID:   company.ID,
		CompanyName: company.Name,
		StoreID:     store.ID,
		Product:     product.Name,
		Channel:     choice.Channel.String(),
		Quality:     choice.Record.Quality,
		Normalized:  choice.Record.Normalized,
		UnitPrice:   choice.Record.UnitPriceDecimal(),
		Quantity:    qty,
		Handle:      choice.Record.Handle,
		DryRun:      o.dryRun,
	}
	guarded := policy.Purchase{
		Product:    purchase.Product,
		Channel:    purchase.Channel,
		Quality:    purchase.Quality,
		Normalized: purchase.Normalized,
		UnitPrice:  purchase.UnitPrice,
		Quantity:   purchase.Quantity,
	}
	result := o.policies.Evaluate(ctx, guarded)
	for _, v := range result.Violations {
		logger.Warn().Str("policy", v.PolicyID).Str("severity", v.Severity).Msg(v.Message)
	}
	if result.Denied() {
		pr.Outcome = Denied
		return pr, nil
	}

	logger.Info().
		Str("channel", purchase.Channel).
		Str("handle", purchase.Handle).
		Bool("dry_run", o.dryRun).
		Msgf("buying %d of %gQ $%s %s from %s", qty, purchase.Quality, purchase.UnitPrice.String(), product.Name, purchase.Channel)

	if !o.dryRun {
		buyURL := o.cfg.URL(choice.Channel.BuyURLKey(), purchase.Handle, qty)
		if err := o.browser.Visit(ctx, buyURL, nil); err != nil {
			return o.failed(logger, pr, fmt.Errorf("failed to buy %s: %w", product.Name, err))
		}
	}

	o.policies.Commit(guarded)
	if o.journal != nil {
		if err := o.journal.Record(ctx, purchase); err != nil {
			logger.Warn().Err(err).Msg("failed to record purchase")
		}
	}
	pr.Outcome = Purchased
	pr.Purchase = &purchase
	return pr, nil
}

func (o *Orchestrator) failed(logger zerolog.Logger, pr ProductReport, err error) (ProductReport, error) {
	pr.Outcome = Failed
	pr.Err = err
	if eoserrors.IsChannelClosed(err) {
		return pr, err
	}
	logger.Error().Err(err).Msg("product skipped")
	return pr, nil
}
