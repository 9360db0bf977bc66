package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/footley/eos-bot/api"
	"github.com/footley/eos-bot/db/clickhouse"
	"github.com/footley/eos-bot/db/ingestion"
	"github.com/footley/eos-bot/db/postgres"
	"github.com/footley/eos-bot/pkg/platform"
)

// Ledger backends selectable with --ledger.
const (
	ledgerNone       = "none"
	ledgerClickHouse = "clickhouse"
	ledgerPostgres   = "postgres"
)

func ledgerFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "ledger",
			Value:   ledgerNone,
			Usage:   "Run ledger backend (none, clickhouse, postgres)",
			EnvVars: []string{"EOSBOT_LEDGER"},
		},
		&cli.StringFlag{
			Name:    "clickhouse-host",
			Value:   "localhost",
			Usage:   "ClickHouse host",
			EnvVars: []string{"CLICKHOUSE_HOST"},
		},
		&cli.IntFlag{
			Name:    "clickhouse-port",
			Value:   9000,
			Usage:   "ClickHouse native port",
			EnvVars: []string{"CLICKHOUSE_PORT"},
		},
		&cli.StringFlag{
			Name:    "clickhouse-database",
			Value:   "eosbot",
			Usage:   "ClickHouse database",
			EnvVars: []string{"CLICKHOUSE_DATABASE"},
		},
		&cli.StringFlag{
			Name:    "clickhouse-user",
			Value:   "default",
			Usage:   "ClickHouse user",
			EnvVars: []string{"CLICKHOUSE_USER"},
		},
		&cli.StringFlag{
			Name:    "clickhouse-password",
			Usage:   "ClickHouse password",
			EnvVars: []string{"CLICKHOUSE_PASSWORD"},
		},
		&cli.StringFlag{
			Name:    "postgres-host",
			Value:   "localhost",
			Usage:   "PostgreSQL host",
			EnvVars: []string{"POSTGRES_HOST"},
		},
		&cli.IntFlag{
			Name:    "postgres-port",
			Value:   5432,
			Usage:   "PostgreSQL port",
			EnvVars: []string{"POSTGRES_PORT"},
		},
		&cli.StringFlag{
			Name:    "postgres-user",
			Value:   "postgres",
			Usage:   "PostgreSQL user",
			EnvVars: []string{"POSTGRES_USER"},
		},
		&cli.StringFlag{
			Name:    "postgres-password",
			Usage:   "PostgreSQL password",
			EnvVars: []string{"POSTGRES_PASSWORD"},
		},
		&cli.StringFlag{
			Name:    "postgres-dbname",
			Value:   "eosbot",
			Usage:   "PostgreSQL database",
			EnvVars: []string{"POSTGRES_DB"},
		},
		&cli.StringFlag{
			Name:    "postgres-sslmode",
			Value:   "disable",
			Usage:   "PostgreSQL sslmode",
			EnvVars: []string{"POSTGRES_SSLMODE"},
		},
	}
}

func parseLedgerKind(s string) (string, error) {
	switch kind := strings.ToLower(strings.TrimSpace(s)); kind {
	case "", ledgerNone:
		return ledgerNone, nil
	case ledgerClickHouse, "ch":
		return ledgerClickHouse, nil
	case ledgerPostgres, "postgresql", "pg":
		return ledgerPostgres, nil
	default:
		return "", fmt.Errorf("unknown ledger %q (want none, clickhouse or postgres)", s)
	}
}

func clickhouseConfig(c *cli.Context) *clickhouse.Config {
	cfg := clickhouse.DefaultConfig()
	cfg.Host = c.String("clickhouse-host")
	cfg.Port = c.Int("clickhouse-port")
	cfg.Database = c.String("clickhouse-database")
	cfg.Username = c.String("clickhouse-user")
	cfg.Password = c.String("clickhouse-password")
	return cfg
}

func postgresConfig(c *cli.Context) postgres.Config {
	cfg := postgres.DefaultConfig()
	cfg.Host = c.String("postgres-host")
	cfg.Port = c.Int("postgres-port")
	cfg.User = c.String("postgres-user")
	cfg.Password = c.String("postgres-password")
	cfg.DBName = c.String("postgres-dbname")
	cfg.SSLMode = c.String("postgres-sslmode")
	return cfg
}

// openLedger connects to the selected backend and applies its schema. It
// returns a nil ledger for "none".
func openLedger(ctx context.Context, c *cli.Context) (ingestion.Ledger, error) {
	kind, err := parseLedgerKind(c.String("ledger"))
	if err != nil {
		return nil, err
	}

	var ledger interface {
		ingestion.Ledger
		Migrate(context.Context) error
	}
	switch kind {
	case ledgerNone:
		return nil, nil
	case ledgerClickHouse:
		store, err := clickhouse.NewStore(clickhouseConfig(c))
		if err != nil {
			return nil, err
		}
		ledger = store
	case ledgerPostgres:
		store, err := postgres.NewStore(ctx, postgresConfig(c))
		if err != nil {
			return nil, err
		}
		ledger = store
	}

	if err := ledger.Migrate(ctx); err != nil {
		ledger.Close()
		return nil, fmt.Errorf("failed to migrate %s ledger: %w", kind, err)
	}
	log.Debug().Str("ledger", kind).Msg("ledger ready")
	return ledger, nil
}

func requireLedger(ctx context.Context, c *cli.Context) (ingestion.Ledger, error) {
	ledger, err := openLedger(ctx, c)
	if err != nil {
		return nil, err
	}
	if ledger == nil {
		return nil, fmt.Errorf("no ledger configured: pass --ledger clickhouse or --ledger postgres")
	}
	return ledger, nil
}

// =============================================================================
// LEDGER COMMAND
// =============================================================================

func ledgerCommand() *cli.Command {
	return &cli.Command{
		Name:  "ledger",
		Usage: "Inspect recorded runs",
		Subcommands: []*cli.Command{
			{
				Name:  "runs",
				Usage: "List the most recent runs",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Value: 10,
						Usage: "Number of runs to show",
					},
				},
				Action: func(c *cli.Context) error {
					ctx := context.Background()
					ledger, err := requireLedger(ctx, c)
					if err != nil {
						return err
					}
					defer ledger.Close()

					runs, err := ledger.ListRuns(ctx, c.Int("limit"))
					if err != nil {
						return err
					}
					fmt.Printf("%-36s  %-20s  %6s  %9s  %8s  %12s\n", "RUN", "STARTED", "STORES", "PURCHASES", "REQUESTS", "SPEND")
					for _, run := range runs {
						flag := ""
						if run.DryRun {
							flag = " (dry run)"
						}
						fmt.Printf("%-36s  %-20s  %6d  %9d  %8d  %12s%s\n",
							run.ID, run.StartedAt.Format("2006-01-02 15:04:05"),
							run.Stores, run.Purchases, run.Requests, run.Spend.StringFixed(2), flag)
					}
					return nil
				},
			},
			{
				Name:  "purchases",
				Usage: "Show the purchases of one run",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "run",
						Usage:    "Run ID",
						Required: true,
					},
				},
				Action: func(c *cli.Context) error {
					runID, err := uuid.Parse(c.String("run"))
					if err != nil {
						return fmt.Errorf("invalid run id: %w", err)
					}
					ctx := context.Background()
					ledger, err := requireLedger(ctx, c)
					if err != nil {
						return err
					}
					defer ledger.Close()

					purchases, err := ledger.ListPurchases(ctx, runID)
					if err != nil {
						return err
					}
					for _, p := range purchases {
						fmt.Printf("%-20s  store %-8s  %-24s  %-6s  %4d x $%s = $%s\n",
							p.CompanyName, p.StoreID, p.Product, p.Channel,
							p.Quantity, p.UnitPrice.String(), p.Cost.StringFixed(2))
					}
					return nil
				},
			},
		},
	}
}

// =============================================================================
// SERVE COMMAND
// =============================================================================

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the run ledger over HTTP",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Value:   8080,
				Usage:   "Listen port",
				EnvVars: []string{"EOSBOT_PORT"},
			},
			&cli.StringFlag{
				Name:    "api-user",
				Usage:   "Basic auth user for /api/v1 (empty disables auth)",
				EnvVars: []string{"EOSBOT_API_USER"},
			},
			&cli.StringFlag{
				Name:    "api-password",
				Usage:   "Basic auth password for /api/v1",
				EnvVars: []string{"EOSBOT_API_PASSWORD"},
			},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	closer, err := platform.InitLogger(c.String("log-level"), "")
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ledger, err := requireLedger(ctx, c)
	if err != nil {
		return err
	}
	defer ledger.Close()

	cfg := api.DefaultConfig()
	cfg.Port = c.Int("port")
	cfg.AuthUser = c.String("api-user")
	cfg.AuthPassword = c.String("api-password")

	return api.NewServer(ledger, cfg).StartWithGracefulShutdown(ctx)
}
