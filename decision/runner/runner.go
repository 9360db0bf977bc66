// Package runner drives one top-to-bottom pass over every configured
// company and store.
package runner

import (
	"context"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/footley/eos-bot/config"
	"github.com/footley/eos-bot/decision/research"
	"github.com/footley/eos-bot/decision/restock"
	eoserrors "github.com/footley/eos-bot/pkg/errors"
	"github.com/footley/eos-bot/pkg/page"
)

// Browser is the game session used by a run.
type Browser interface {
	Document(ctx context.Context, rawURL string, form url.Values, cached bool) (*page.Document, error)
	Visit(ctx context.Context, rawURL string, form url.Values) error
	Requests() int
}

// Summary totals one run.
type Summary struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Companies  int
	Stores     int
	Purchases  int
	// Skipped counts stores never processed. Partial counts stores cut short
	// by a closed market after earlier products were already handled.
	Skipped  int
	Partial  int
	Spend    decimal.Decimal
	Requests int
	DryRun   bool
	// Closed lists companies whose pass was cut short by a closed market.
	Closed   []string
	Research map[string]research.Outcome
}

// Runner iterates companies then stores.
type Runner struct {
	browser      Browser
	cfg          *config.Config
	orchestrator *restock.Orchestrator
	kickstarter  *research.Kickstarter
	logger       zerolog.Logger
	skipResearch bool
	dryRun       bool
}

// NewRunner creates a runner with default restock and R&D components.
func NewRunner(browser Browser, cfg *config.Config) *Runner {
	return &Runner{
		browser:      browser,
		cfg:          cfg,
		orchestrator: restock.NewOrchestrator(browser, cfg),
		kickstarter:  research.NewKickstarter(browser, cfg),
		logger:       log.Logger,
	}
}

// WithOrchestrator replaces the restock orchestrator.
func (r *Runner) WithOrchestrator(o *restock.Orchestrator) *Runner {
	r.orchestrator = o
	return r
}

// WithKickstarter replaces the R&D kickstarter.
func (r *Runner) WithKickstarter(k *research.Kickstarter) *Runner {
	r.kickstarter = k
	return r
}

// WithLogger replaces the logger.
func (r *Runner) WithLogger(l zerolog.Logger) *Runner {
	r.logger = l
	return r
}

// WithSkipResearch disables the R&D kickstart after each company.
func (r *Runner) WithSkipResearch(skip bool) *Runner {
	r.skipResearch = skip
	return r
}

// WithDryRun makes the current orchestrator and kickstarter decide without
// buying or starting anything. Company switches still happen.
func (r *Runner) WithDryRun(dryRun bool) *Runner {
	r.dryRun = dryRun
	r.orchestrator.WithDryRun(dryRun)
	r.kickstarter.WithDryRun(dryRun)
	return r
}

// Run restocks every company in configured order. A closed market ends the
// current company's store loop and the run moves on to the next company.
// Any other store failure skips just that store. Only cancellation of ctx
// aborts the run.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	summary := Summary{
		StartedAt: time.Now().UTC(),
		Spend:     decimal.Zero,
		DryRun:    r.dryRun,
		Research:  make(map[string]research.Outcome),
	}

	for _, company := range r.cfg.Targets() {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		r.processCompany(ctx, company, &summary)
	}
	summary.FinishedAt = time.Now().UTC()
	summary.Requests = r.browser.Requests()
	return summary, ctx.Err()
}

// Research runs only the R&D kickstart for every company.
func (r *Runner) Research(ctx context.Context) (Summary, error) {
	summary := Summary{
		StartedAt: time.Now().UTC(),
		Spend:     decimal.Zero,
		DryRun:    r.dryRun,
		Research:  make(map[string]research.Outcome),
	}
	for _, company := range r.cfg.Targets() {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if len(company.ResearchCenters) == 0 {
			continue
		}
		summary.Companies++
		if err := r.switchCompany(ctx, company); err != nil {
			r.logger.Error().Err(err).Str("company", company.Name).Msg("failed to switch company")
			continue
		}
		r.research(ctx, company, &summary)
	}
	summary.FinishedAt = time.Now().UTC()
	summary.Requests = r.browser.Requests()
	return summary, ctx.Err()
}

func (r *Runner) processCompany(ctx context.Context, company config.Company, summary *Summary) {
	logger := r.logger.With().Str("company", company.Name).Logger()
	logger.Info().Msgf("starting to process company %s", company.Name)
	summary.Companies++

	if err := r.switchCompany(ctx, company); err != nil {
		logger.Error().Err(err).Msg("failed to switch company, skipping its stores")
		summary.Skipped += len(company.Stores)
		return
	}

	for i, store := range company.Stores {
		report, err := r.orchestrator.ProcessStore(ctx, company, store)
		summary.Purchases += len(report.Purchases())
		summary.Spend = summary.Spend.Add(report.Spend())
		if err == nil {
			summary.Stores++
			continue
		}
		if eoserrors.IsChannelClosed(err) {
			logger.Info().Err(err).Str("store", store.ID).Int("skipped_stores", len(company.Stores)-i-1).Msg("market closed, moving to next company")
			summary.Closed = append(summary.Closed, company.Name)
			summary.Partial++
			summary.Skipped += len(company.Stores) - i - 1
			break
		}
		if ctx.Err() != nil {
			return
		}
		logger.Error().Err(err).Str("store", store.ID).Msg("store skipped")
		summary.Skipped++
	}

	if !r.skipResearch {
		r.research(ctx, company, summary)
	}
}

func (r *Runner) research(ctx context.Context, company config.Company, summary *Summary) {
	for id, outcome := range r.kickstarter.Run(ctx, company) {
		summary.Research[id] = outcome
	}
}

// switchCompany makes company the active firm. The implicit company of a
// flat store list has no id and needs no switch.
func (r *Runner) switchCompany(ctx context.Context, company config.Company) error {
	if company.ID == "" {
		return nil
	}
	form := url.Values{"new_active_firm": {company.ID}}
	return r.browser.Visit(ctx, r.cfg.URL(config.URLSwitchCompany), form)
}
