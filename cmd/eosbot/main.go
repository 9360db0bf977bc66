// eosbot - Economies of Scale restocker
//
// Usage:
//
//	eosbot run [--dry-run] [--skip-research]
//	eosbot research
//	eosbot ledger runs --limit 10
//	eosbot ledger purchases --run <id>
//	eosbot serve --port 8080
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/footley/eos-bot/config"
	"github.com/footley/eos-bot/db/ingestion"
	"github.com/footley/eos-bot/decision/policy"
	"github.com/footley/eos-bot/decision/restock"
	"github.com/footley/eos-bot/decision/runner"
	eoserrors "github.com/footley/eos-bot/pkg/errors"
	"github.com/footley/eos-bot/pkg/platform"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	app := &cli.App{
		Name:    "eosbot",
		Usage:   "Keeps Economies of Scale stores stocked at the cheapest quality-adjusted price",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),

		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   config.DefaultPath,
				Usage:   "Path to the JSON configuration file",
				EnvVars: []string{"EOSBOT_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error); overrides the config file",
				EnvVars: []string{"EOSBOT_LOG_LEVEL"},
			},
		}, ledgerFlags()...),

		Commands: []*cli.Command{
			runCommand(),
			researchCommand(),
			ledgerCommand(),
			serveCommand(),
			versionCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		if eoserrors.IsFatal(err) {
			platform.LogFatal("eosbot failed", err)
		}
		log.Error().Err(err).Str("code", eoserrors.Code(err)).Msg("eosbot finished with errors")
		os.Exit(exitCode(err))
	}
}

// exitCode maps a run error to the process status. Fatal errors (bad
// configuration, failed login) exit 1, an interrupted run 130, anything
// else 2.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case eoserrors.IsFatal(err):
		return 1
	case errors.Is(err, context.Canceled):
		return 130
	default:
		return 2
	}
}

// =============================================================================
// RUN COMMAND
// =============================================================================

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Restock every configured store, then kickstart idle R&D centres",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Decide purchases without buying, claiming bonuses or starting research",
			},
			&cli.BoolFlag{
				Name:  "skip-research",
				Usage: "Skip the R&D kickstart",
			},
		},
		Action: runRestock,
	}
}

func runRestock(c *cli.Context) error {
	cfg, closeLog, err := loadConfig(c)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine, err := loadPolicies(ctx, c, cfg)
	if err != nil {
		return err
	}

	ledger, err := openLedger(ctx, c)
	if err != nil {
		return err
	}
	if ledger != nil {
		defer ledger.Close()
	}

	session, err := login(ctx, cfg)
	if err != nil {
		return err
	}

	dryRun := c.Bool("dry-run") || cfg.DryRun
	recorder := ingestion.NewRecorder(ledger)
	orchestrator := restock.NewOrchestrator(session, cfg).
		WithPolicies(engine).
		WithJournal(recorder)
	r := runner.NewRunner(session, cfg).
		WithOrchestrator(orchestrator).
		WithSkipResearch(c.Bool("skip-research")).
		WithDryRun(dryRun)

	summary, runErr := r.Run(ctx)

	run, err := recorder.Flush(context.Background(), summary)
	if err != nil {
		log.Warn().Err(err).Msg("run not recorded")
	}

	log.Info().
		Str("run_id", run.ID.String()).
		Int("companies", summary.Companies).
		Int("stores", summary.Stores).
		Int("skipped", summary.Skipped).
		Int("partial", summary.Partial).
		Int("purchases", summary.Purchases).
		Str("spend", summary.Spend.StringFixed(2)).
		Bool("dry_run", dryRun).
		Msgf("finished, with %d requests", summary.Requests)
	return runErr
}

// =============================================================================
// RESEARCH COMMAND
// =============================================================================

func researchCommand() *cli.Command {
	return &cli.Command{
		Name:  "research",
		Usage: "Only kickstart idle R&D centres",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Pick topics without starting them",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, closeLog, err := loadConfig(c)
			if err != nil {
				return err
			}
			defer closeLog()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			session, err := login(ctx, cfg)
			if err != nil {
				return err
			}
			summary, err := runner.NewRunner(session, cfg).WithDryRun(c.Bool("dry-run") || cfg.DryRun).Research(ctx)
			for id, outcome := range summary.Research {
				log.Info().Str("center", id).Str("outcome", outcome.String()).Msg("R&D centre")
			}
			log.Info().Msgf("finished, with %d requests", summary.Requests)
			return err
		},
	}
}

// =============================================================================
// VERSION COMMAND
// =============================================================================

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print version information",
		Action: func(c *cli.Context) error {
			fmt.Printf("eosbot %s (commit: %s, built: %s)\n", version, commit, date)
			return nil
		},
	}
}

// =============================================================================
// HELPERS
// =============================================================================

// loadConfig reads the configuration and sets up logging from it. A bad
// configuration is fatal before any network activity.
func loadConfig(c *cli.Context) (*config.Config, func(), error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, nil, err
	}
	level := c.String("log-level")
	if level == "" {
		level = cfg.LogLevel
	}
	closer, err := platform.InitLogger(level, cfg.LogFile)
	if err != nil {
		return nil, nil, err
	}
	return cfg, func() { closer.Close() }, nil
}

// loadPolicies builds the purchase guardrails from the configured policies
// and any Rego modules in the policy directory.
func loadPolicies(ctx context.Context, c *cli.Context, cfg *config.Config) (*policy.Engine, error) {
	engine, err := policy.FromConfig(cfg.Policies)
	if err != nil {
		return nil, eoserrors.NewConfigError(c.String("config"), err)
	}
	if cfg.PolicyDir == "" {
		return engine, nil
	}
	ev, err := policy.LoadRegoDir(ctx, cfg.PolicyDir)
	if err != nil {
		return nil, eoserrors.NewConfigError(cfg.PolicyDir, err)
	}
	if ev != nil {
		log.Info().Strs("files", ev.Files()).Msg("loaded rego guardrails")
		engine.WithRego(ev)
	}
	return engine, nil
}

func login(ctx context.Context, cfg *config.Config) (*platform.Session, error) {
	session, err := platform.NewSession(platform.SessionConfig{
		Username: cfg.Username,
		Password: cfg.Password,
		LoginURL: cfg.URLs[config.URLLogin],
		HomeURL:  cfg.URLs[config.URLHome],
		Pacing:   cfg.Pacing(),
	})
	if err != nil {
		return nil, err
	}
	if err := session.Authenticate(ctx, cfg.CookieFile()); err != nil {
		return nil, err
	}
	return session, nil
}
