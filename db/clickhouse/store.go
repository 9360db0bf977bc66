// Package clickhouse provides the ClickHouse implementation of the run ledger
// Optimized for append-only run history and per-product spend analytics
package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/google/uuid"

	"github.com/footley/eos-bot/db/ingestion"
)

// Config holds ClickHouse connection configuration
type Config struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
	Debug    bool
}

// DefaultConfig returns default development configuration
func DefaultConfig() *Config {
	return &Config{
		Host:     "localhost",
		Port:     9000,
		Database: "eosbot",
		Username: "default",
		Password: "",
		Debug:    false,
	}
}

// Store implements ingestion.Ledger using ClickHouse
type Store struct {
	conn clickhouse.Conn
	cfg  *Config
}

var _ ingestion.Ledger = (*Store)(nil)

// NewStore creates a new ClickHouse ledger store
func NewStore(cfg *Config) (*Store, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Debug: cfg.Debug,
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	return &Store{conn: conn, cfg: cfg}, nil
}

// Ping checks database connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.conn.Close()
}

// =============================================================================
// SCHEMA
// =============================================================================

var schema = []string{
	`CREATE TABLE IF NOT EXISTS restock_runs (
		id          UUID,
		started_at  DateTime64(3, 'UTC'),
		finished_at DateTime64(3, 'UTC'),
		companies   Int64,
		stores      Int64,
		purchases   Int64,
		skipped     Int64,
		requests    Int64,
		spend       Decimal(18, 4),
		dry_run     UInt8,
		created_at  DateTime64(3, 'UTC') DEFAULT now64(3)
	) ENGINE = MergeTree()
	ORDER BY (started_at, id)`,
	`CREATE TABLE IF NOT EXISTS restock_purchases (
		id           UUID,
		run_id       UUID,
		company_id   String,
		company_name String,
		store_id     String,
		product      LowCardinality(String),
		channel      LowCardinality(String),
		quality      Float64,
		normalized   Float64,
		unit_price   Decimal(18, 4),
		quantity     Int64,
		cost         Decimal(18, 4),
		handle       String,
		purchased_at DateTime64(3, 'UTC')
	) ENGINE = MergeTree()
	ORDER BY (run_id, purchased_at, id)`,
}

// Migrate creates the ledger tables when missing
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if err := s.conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate ledger schema: %w", err)
		}
	}
	return nil
}

// =============================================================================
// RUN OPERATIONS
// =============================================================================

// SaveRun inserts a run and batch-inserts its purchases
func (s *Store) SaveRun(ctx context.Context, run *ingestion.Run, purchases []ingestion.Purchase) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}

	query := `
		INSERT INTO restock_runs (
			id, started_at, finished_at, companies, stores, purchases,
			skipped, requests, spend, dry_run
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	if err := s.conn.Exec(ctx, query,
		run.ID,
		run.StartedAt,
		run.FinishedAt,
		int64(run.Companies),
		int64(run.Stores),
		int64(run.Purchases),
		int64(run.Skipped),
		int64(run.Requests),
		run.Spend,
		boolToUInt8(run.DryRun),
	); err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	return s.bulkCreatePurchases(ctx, run.ID, purchases)
}

// bulkCreatePurchases inserts purchases efficiently using batch insert
func (s *Store) bulkCreatePurchases(ctx context.Context, runID uuid.UUID, purchases []ingestion.Purchase) error {
	if len(purchases) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO restock_purchases (
			id, run_id, company_id, company_name, store_id, product, channel,
			quality, normalized, unit_price, quantity, cost, handle, purchased_at
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, p := range purchases {
		if p.ID == uuid.Nil {
			p.ID = uuid.New()
		}
		if p.PurchasedAt.IsZero() {
			p.PurchasedAt = time.Now().UTC()
		}
		if err := batch.Append(
			p.ID, runID, p.CompanyID, p.CompanyName, p.StoreID, p.Product, p.Channel,
			p.Quality, p.Normalized, p.UnitPrice, int64(p.Quantity), p.Cost, p.Handle, p.PurchasedAt,
		); err != nil {
			return fmt.Errorf("failed to append to batch: %w", err)
		}
	}

	return batch.Send()
}

// ListRuns lists the most recent runs, newest first
func (s *Store) ListRuns(ctx context.Context, limit int) ([]ingestion.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT id, started_at, finished_at, companies, stores, purchases,
			   skipped, requests, spend, dry_run
		FROM restock_runs
		ORDER BY started_at DESC
		LIMIT ?
	`
	rows, err := s.conn.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []ingestion.Run
	for rows.Next() {
		var (
			run                                             ingestion.Run
			companies, stores, purchases, skipped, requests int64
			dryRun                                          uint8
		)
		if err := rows.Scan(
			&run.ID, &run.StartedAt, &run.FinishedAt, &companies, &stores, &purchases,
			&skipped, &requests, &run.Spend, &dryRun,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run.Companies = int(companies)
		run.Stores = int(stores)
		run.Purchases = int(purchases)
		run.Skipped = int(skipped)
		run.Requests = int(requests)
		run.DryRun = dryRun == 1
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// ListPurchases returns the purchases of a run in the order they were placed
func (s *Store) ListPurchases(ctx context.Context, runID uuid.UUID) ([]ingestion.Purchase, error) {
	query := `
		SELECT id, run_id, company_id, company_name, store_id, product, channel,
			   quality, normalized, unit_price, quantity, cost, handle, purchased_at
		FROM restock_purchases
		WHERE run_id = ?
		ORDER BY purchased_at, id
	`
	rows, err := s.conn.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list purchases: %w", err)
	}
	defer rows.Close()

	var purchases []ingestion.Purchase
	for rows.Next() {
		var (
			p   ingestion.Purchase
			qty int64
		)
		if err := rows.Scan(
			&p.ID, &p.RunID, &p.CompanyID, &p.CompanyName, &p.StoreID, &p.Product, &p.Channel,
			&p.Quality, &p.Normalized, &p.UnitPrice, &qty, &p.Cost, &p.Handle, &p.PurchasedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan purchase: %w", err)
		}
		p.Quantity = int(qty)
		purchases = append(purchases, p)
	}
	return purchases, rows.Err()
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
