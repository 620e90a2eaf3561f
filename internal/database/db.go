package database

import (
	"context"
	"fmt"
	"time"

	"ensemble-signal-engine/internal/logging"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps the PostgreSQL connection pool
type DB struct {
	Pool *pgxpool.Pool
}

// Config holds database configuration
type Config struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// NewDB creates a new database connection
func NewDB(cfg Config) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	// Configure connection pool
	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	dbLog := logging.Component("database")
	dbLog.Info().Str("database", cfg.Database).Msg("Connected to PostgreSQL")

	return &DB{Pool: pool}, nil
}

// Close closes the database connection
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		dbLog := logging.Component("database")
		dbLog.Info().Msg("Database connection closed")
	}
}

// RunMigrations executes database migrations
func (db *DB) RunMigrations(ctx context.Context) error {
	migrations := []string{
		// Model registry: which model backs each agent. The partial unique
		// index enforces at most one active row per agent name.
		`CREATE TABLE IF NOT EXISTS model_registry (
			id SERIAL PRIMARY KEY,
			agent_name VARCHAR(100) NOT NULL,
			category VARCHAR(20) NOT NULL DEFAULT 'technical',
			model_path TEXT NOT NULL,
			version VARCHAR(50) NOT NULL,
			weight DOUBLE PRECISION NOT NULL DEFAULT 0.5,
			status VARCHAR(10) NOT NULL DEFAULT 'inactive',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE(agent_name, version)
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_model_registry_active
			ON model_registry(agent_name) WHERE status = 'active'`,

		// Realized trade outcomes reported back by the execution client.
		`CREATE TABLE IF NOT EXISTS trade_outcomes (
			id SERIAL PRIMARY KEY,
			agent_name VARCHAR(100) NOT NULL,
			symbol VARCHAR(20) NOT NULL,
			pnl DOUBLE PRECISION NOT NULL,
			opened_at TIMESTAMPTZ NOT NULL,
			closed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trade_outcomes_agent_closed
			ON trade_outcomes(agent_name, closed_at)`,

		// Audit log of every generated ensemble signal.
		`CREATE TABLE IF NOT EXISTS signal_audit (
			id SERIAL PRIMARY KEY,
			signal_id UUID NOT NULL,
			symbol VARCHAR(20) NOT NULL,
			action VARCHAR(4) NOT NULL,
			confidence DOUBLE PRECISION NOT NULL,
			reason TEXT,
			votes JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_signal_audit_symbol_created
			ON signal_audit(symbol, created_at)`,
	}

	for _, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	dbLog := logging.Component("database")
	dbLog.Info().Msg("Database migrations completed")
	return nil
}
