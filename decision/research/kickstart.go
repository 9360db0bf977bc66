// Package research keeps R&D centres busy: an idle centre is started on the
// cheapest of its configured topics.
package research

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/footley/eos-bot/config"
	"github.com/footley/eos-bot/decision/pricing"
	"github.com/footley/eos-bot/pkg/page"
)

var (
	busyRe      = regexp.MustCompile(`Time remaining`)
	expandingRe = regexp.MustCompile(`rnd-expand-status\.php\?frid=`)
	elsewhereRe = regexp.MustCompile(`Currently being researched at another`)
	cashRe      = regexp.MustCompile(`\$[0-9]+,?[0-9]*`)
)

// Browser fetches pages and issues game actions.
type Browser interface {
	Document(ctx context.Context, rawURL string, form url.Values, cached bool) (*page.Document, error)
	Visit(ctx context.Context, rawURL string, form url.Values) error
}

// Outcome is the state a centre was found in.
type Outcome int

const (
	Busy Outcome = iota
	Expanding
	NoTopic
	Started
)

func (o Outcome) String() string {
	switch o {
	case Busy:
		return "busy"
	case Expanding:
		return "expanding"
	case NoTopic:
		return "no_topic"
	case Started:
		return "started"
	default:
		return "unknown"
	}
}

// Candidate is a topic that can be started now.
type Candidate struct {
	Topic string
	Cost  decimal.Decimal
	URL   string
}

// Kickstarter starts research in idle R&D centres.
type Kickstarter struct {
	browser Browser
	cfg     *config.Config
	logger  zerolog.Logger
	dryRun  bool
}

// NewKickstarter creates a kickstarter.
func NewKickstarter(browser Browser, cfg *config.Config) *Kickstarter {
	return &Kickstarter{browser: browser, cfg: cfg, logger: log.Logger}
}

// WithLogger replaces the logger.
func (k *Kickstarter) WithLogger(l zerolog.Logger) *Kickstarter {
	k.logger = l
	return k
}

// WithDryRun picks topics without starting them.
func (k *Kickstarter) WithDryRun(dryRun bool) *Kickstarter {
	k.dryRun = dryRun
	return k
}

// Run processes every centre of company. A failing centre is logged and
// does not stop the others.
func (k *Kickstarter) Run(ctx context.Context, company config.Company) map[string]Outcome {
	outcomes := make(map[string]Outcome, len(company.ResearchCenters))
	for _, center := range company.ResearchCenters {
		if ctx.Err() != nil {
			break
		}
		outcome, err := k.Process(ctx, center)
		if err != nil {
			k.logger.Error().Err(err).Str("center", center.Name).Msg("R&D kickstart failed")
			continue
		}
		outcomes[center.ID] = outcome
	}
	return outcomes
}

// Process inspects one centre and starts its cheapest available topic when
// it is neither researching nor being expanded.
func (k *Kickstarter) Process(ctx context.Context, center config.ResearchCenter) (Outcome, error) {
	doc, err := k.browser.Document(ctx, k.cfg.URL(config.URLResearchPage, center.ID), nil, false)
	if err != nil {
		return NoTopic, fmt.Errorf("failed to load R&D centre %s: %w", center.Name, err)
	}

	if _, ok := doc.MatchText(busyRe); ok {
		k.logger.Info().Msgf("R&D Centre %s already researching", center.Name)
		return Busy, nil
	}
	if expandingRe.MatchString(doc.HTML()) {
		k.logger.Info().Msgf("R&D Centre %s being expanded", center.Name)
		return Expanding, nil
	}

	candidates := k.candidates(doc, center)
	if len(candidates) == 0 {
		k.logger.Info().Msgf("No valid interesting topics for research %s", center.Name)
		return NoTopic, nil
	}

	best := candidates[0]
	k.logger.Info().
		Str("cost", best.Cost.String()).
		Bool("dry_run", k.dryRun).
		Msgf("R&D Centre %s starting to research %s", center.Name, best.Topic)
	if k.dryRun {
		return Started, nil
	}
	if err := k.browser.Visit(ctx, best.URL, nil); err != nil {
		return NoTopic, fmt.Errorf("failed to start %s at %s: %w", best.Topic, center.Name, err)
	}
	return Started, nil
}

// candidates lists startable topics, cheapest first.
func (k *Kickstarter) candidates(doc *page.Document, center config.ResearchCenter) []Candidate {
	var out []Candidate
	for _, topic := range center.Topics {
		logger := k.logger.With().Str("center", center.Name).Str("topic", topic.Name).Logger()

		img := doc.FindByAttr("img", "title", topic.Name)
		if !img.Exists() {
			logger.Warn().Msg("research topic not found")
			continue
		}
		div := img.Parent("div")
		if _, ok := div.MatchText(elsewhereRe); ok {
			continue
		}
		money, ok := div.MatchText(cashRe)
		if !ok {
			logger.Warn().Msg("research topic has no cost")
			continue
		}
		cost, err := pricing.ParseMoney(cashRe.FindString(money))
		if err != nil {
			logger.Warn().Err(err).Msg("unreadable research cost")
			continue
		}
		href, ok := img.Parent("a").Attr("href")
		if !ok {
			logger.Warn().Msg("research topic has no start link")
			continue
		}
		out = append(out, Candidate{
			Topic: topic.Name,
			Cost:  cost,
			URL:   strings.TrimSpace(k.cfg.URLs[config.URLHome]) + href,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Cost.LessThan(out[j].Cost)
	})
	return out
}
