// Package ingestion records restock runs into a ledger.
// Connects the restock pass to ClickHouse or PostgreSQL storage.
package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/footley/eos-bot/decision/restock"
	"github.com/footley/eos-bot/decision/runner"
)

// Run is one restock pass.
type Run struct {
	ID         uuid.UUID       `json:"id"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Companies  int             `json:"companies"`
	Stores     int             `json:"stores"`
	Purchases  int             `json:"purchases"`
	Skipped    int             `json:"skipped"`
	Requests   int             `json:"requests"`
	Spend      decimal.Decimal `json:"spend"`
	DryRun     bool            `json:"dry_run"`
}

// Purchase is one order placed during a run.
type Purchase struct {
	ID          uuid.UUID       `json:"id"`
	RunID       uuid.UUID       `json:"run_id"`
	CompanyID   string          `json:"company_id"`
	CompanyName string          `json:"company_name"`
	StoreID     string          `json:"store_id"`
	Product     string          `json:"product"`
	Channel     string          `json:"channel"`
	Quality     float64         `json:"quality"`
	Normalized  float64         `json:"normalized"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int             `json:"quantity"`
	Cost        decimal.Decimal `json:"cost"`
	Handle      string          `json:"handle"`
	PurchasedAt time.Time       `json:"purchased_at"`
}

// Ledger persists runs and their purchases.
type Ledger interface {
	SaveRun(ctx context.Context, run *Run, purchases []Purchase) error
	ListRuns(ctx context.Context, limit int) ([]Run, error)
	ListPurchases(ctx context.Context, runID uuid.UUID) ([]Purchase, error)
	Ping(ctx context.Context) error
	Close() error
}

// Recorder collects the purchases of one run and writes them to the ledger
// when the run ends. A Recorder without a ledger only collects.
type Recorder struct {
	ledger    Ledger
	runID     uuid.UUID
	purchases []Purchase
	logger    zerolog.Logger
	now       func() time.Time
}

// NewRecorder creates a recorder for a new run. ledger may be nil.
func NewRecorder(ledger Ledger) *Recorder {
	return &Recorder{
		ledger: ledger,
		runID:  uuid.New(),
		logger: log.Logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithLogger replaces the logger.
func (r *Recorder) WithLogger(l zerolog.Logger) *Recorder {
	r.logger = l
	return r
}

// RunID identifies the run being recorded.
func (r *Recorder) RunID() uuid.UUID {
	return r.runID
}

// Purchases returns the purchases recorded so far.
func (r *Recorder) Purchases() []Purchase {
	return r.purchases
}

// Record adds a purchase to the run.
func (r *Recorder) Record(_ context.Context, p restock.Purchase) error {
	r.purchases = append(r.purchases, Purchase{
		ID:          uuid.New(),
		RunID:       r.runID,
		CompanyID:   p.CompanyID,
		CompanyName: p.CompanyName,
		StoreID:     p.StoreID,
		Product:     p.Product,
		Channel:     p.Channel,
		Quality:     p.Quality,
		Normalized:  p.Normalized,
		UnitPrice:   p.UnitPrice,
		Quantity:    p.Quantity,
		Cost:        p.Cost(),
		Handle:      p.Handle,
		PurchasedAt: r.now(),
	})
	return nil
}

// Flush builds the run record from the summary and saves it together with
// the recorded purchases.
func (r *Recorder) Flush(ctx context.Context, summary runner.Summary) (*Run, error) {
	run := &Run{
		ID:         r.runID,
		StartedAt:  summary.StartedAt,
		FinishedAt: summary.FinishedAt,
		Companies:  summary.Companies,
		Stores:     summary.Stores,
		Purchases:  len(r.purchases),
		Skipped:    summary.Skipped,
		Requests:   summary.Requests,
		Spend:      decimal.Zero,
		DryRun:     summary.DryRun,
	}
	for _, p := range r.purchases {
		run.Spend = run.Spend.Add(p.Cost)
	}
	if r.ledger == nil {
		return run, nil
	}

	start := time.Now()
	if err := r.ledger.SaveRun(ctx, run, r.purchases); err != nil {
		return run, fmt.Errorf("failed to save run %s: %w", run.ID, err)
	}
	r.logger.Info().
		Str("run_id", run.ID.String()).
		Int("purchases", run.Purchases).
		Str("spend", run.Spend.StringFixed(2)).
		Dur("duration", time.Since(start)).
		Msg("run recorded")
	return run, nil
}
