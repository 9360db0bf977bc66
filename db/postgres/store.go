// Package postgres provides the PostgreSQL implementation of the run ledger.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/footley/eos-bot/db/ingestion"
)

// Connection pool configuration constants
const (
	DefaultMaxOpenConns    = 5
	DefaultMaxIdleConns    = 2
	DefaultConnMaxLifetime = 5 * time.Minute
	DefaultConnMaxIdleTime = 30 * time.Second
)

// Config holds PostgreSQL connection configuration
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DefaultConfig returns a configuration with development defaults
func DefaultConfig() Config {
	return Config{
		Host:            "localhost",
		Port:            5432,
		User:            "postgres",
		DBName:          "eosbot",
		SSLMode:         "disable",
		MaxOpenConns:    DefaultMaxOpenConns,
		MaxIdleConns:    DefaultMaxIdleConns,
		ConnMaxLifetime: DefaultConnMaxLifetime,
		ConnMaxIdleTime: DefaultConnMaxIdleTime,
	}
}

// BuildConnectionString builds a lib/pq connection string from config
func (c Config) BuildConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// Store implements ingestion.Ledger using PostgreSQL
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

var _ ingestion.Ledger = (*Store)(nil)

// NewStore opens a connection pool and verifies it
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	logger := log.With().Str("component", "postgres").Logger()
	logger.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.DBName).
		Str("ssl_mode", cfg.SSLMode).
		Msg("Establishing database connection")

	db, err := sql.Open("postgres", cfg.BuildConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	configurePool(db, cfg)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

func configurePool(db *sql.DB, cfg Config) {
	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = DefaultMaxOpenConns
	}
	maxIdle := cfg.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = DefaultMaxIdleConns
	}
	lifetime := cfg.ConnMaxLifetime
	if lifetime <= 0 {
		lifetime = DefaultConnMaxLifetime
	}
	idleTime := cfg.ConnMaxIdleTime
	if idleTime <= 0 {
		idleTime = DefaultConnMaxIdleTime
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(lifetime)
	db.SetConnMaxIdleTime(idleTime)
}

// Ping checks database connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the connection pool
func (s *Store) Close() error {
	s.logger.Info().Msg("Closing database connection")
	return s.db.Close()
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS restock_runs (
		id          UUID PRIMARY KEY,
		started_at  TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ NOT NULL,
		companies   INTEGER NOT NULL,
		stores      INTEGER NOT NULL,
		purchases   INTEGER NOT NULL,
		skipped     INTEGER NOT NULL,
		requests    INTEGER NOT NULL,
		spend       NUMERIC(18, 4) NOT NULL,
		dry_run     BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE TABLE IF NOT EXISTS restock_purchases (
		id           UUID PRIMARY KEY,
		run_id       UUID NOT NULL REFERENCES restock_runs(id) ON DELETE CASCADE,
		company_id   TEXT NOT NULL,
		company_name TEXT NOT NULL,
		store_id     TEXT NOT NULL,
		product      TEXT NOT NULL,
		channel      TEXT NOT NULL,
		quality      DOUBLE PRECISION NOT NULL,
		normalized   DOUBLE PRECISION NOT NULL,
		unit_price   NUMERIC(18, 4) NOT NULL,
		quantity     INTEGER NOT NULL,
		cost         NUMERIC(18, 4) NOT NULL,
		handle       TEXT NOT NULL,
		purchased_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS restock_purchases_run_idx ON restock_purchases (run_id, purchased_at)`,
}

// Migrate creates the ledger tables when missing
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate ledger schema: %w", err)
		}
	}
	return nil
}

// SaveRun writes the run and copies its purchases in one transaction
func (s *Store) SaveRun(ctx context.Context, run *ingestion.Run, purchases []ingestion.Purchase) (err error) {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				s.logger.Warn().Err(rbErr).Msg("Transaction rollback failed")
			}
		}
	}()

	if _, err = tx.ExecContext(ctx, `
		INSERT INTO restock_runs (
			id, started_at, finished_at, companies, stores, purchases,
			skipped, requests, spend, dry_run
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		run.ID, run.StartedAt, run.FinishedAt, run.Companies, run.Stores, run.Purchases,
		run.Skipped, run.Requests, run.Spend, run.DryRun,
	); err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	if len(purchases) > 0 {
		if err = copyPurchases(ctx, tx, run.ID, purchases); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

func copyPurchases(ctx context.Context, tx *sql.Tx, runID uuid.UUID, purchases []ingestion.Purchase) error {
	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("restock_purchases",
		"id", "run_id", "company_id", "company_name", "store_id", "product", "channel",
		"quality", "normalized", "unit_price", "quantity", "cost", "handle", "purchased_at",
	))
	if err != nil {
		return fmt.Errorf("failed to prepare purchase copy: %w", err)
	}
	defer stmt.Close()

	for _, p := range purchases {
		if p.ID == uuid.Nil {
			p.ID = uuid.New()
		}
		if p.PurchasedAt.IsZero() {
			p.PurchasedAt = time.Now().UTC()
		}
		if _, err := stmt.ExecContext(ctx,
			p.ID.String(), runID.String(), p.CompanyID, p.CompanyName, p.StoreID, p.Product, p.Channel,
			p.Quality, p.Normalized, p.UnitPrice.String(), p.Quantity, p.Cost.String(), p.Handle, p.PurchasedAt,
		); err != nil {
			return fmt.Errorf("failed to copy purchase: %w", err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		return fmt.Errorf("failed to flush purchase copy: %w", err)
	}
	return nil
}

// ListRuns lists the most recent runs, newest first
func (s *Store) ListRuns(ctx context.Context, limit int) ([]ingestion.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, companies, stores, purchases,
		       skipped, requests, spend, dry_run
		FROM restock_runs
		ORDER BY started_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []ingestion.Run
	for rows.Next() {
		var run ingestion.Run
		if err := rows.Scan(
			&run.ID, &run.StartedAt, &run.FinishedAt, &run.Companies, &run.Stores, &run.Purchases,
			&run.Skipped, &run.Requests, &run.Spend, &run.DryRun,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// ListPurchases returns the purchases of a run in the order they were placed
func (s *Store) ListPurchases(ctx context.Context, runID uuid.UUID) ([]ingestion.Purchase, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, company_id, company_name, store_id, product, channel,
		       quality, normalized, unit_price, quantity, cost, handle, purchased_at
		FROM restock_purchases
		WHERE run_id = $1
		ORDER BY purchased_at, id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list purchases: %w", err)
	}
	defer rows.Close()

	var purchases []ingestion.Purchase
	for rows.Next() {
		var p ingestion.Purchase
		if err := rows.Scan(
			&p.ID, &p.RunID, &p.CompanyID, &p.CompanyName, &p.StoreID, &p.Product, &p.Channel,
			&p.Quality, &p.Normalized, &p.UnitPrice, &p.Quantity, &p.Cost, &p.Handle, &p.PurchasedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan purchase: %w", err)
		}
		purchases = append(purchases, p)
	}
	return purchases, rows.Err()
}
