package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ensemble-signal-engine/internal/ensemble"

	"github.com/jackc/pgx/v5"
)

// ErrNoBackup is returned when no better-scoring inactive model exists.
var ErrNoBackup = errors.New("no backup model available")

// RegistryEntry is one persisted model registry row.
type RegistryEntry struct {
	AgentName string    `json:"agent_name"`
	Category  string    `json:"category"`
	ModelPath string    `json:"model_path"`
	Version   string    `json:"version"`
	Weight    float64   `json:"weight"`
	Status    string    `json:"status"` // "active" or "inactive"
	UpdatedAt time.Time `json:"updated_at"`
}

// OutcomeStats aggregates a trailing window of realized outcomes for one agent.
type OutcomeStats struct {
	WinRate float64 `json:"win_rate"`
	AvgPnl  float64 `json:"avg_pnl"`
	Samples int     `json:"samples"`
}

// Store is the persistence layer for the model registry, outcome aggregates
// and the signal audit log.
type Store struct {
	db *DB
}

// NewStore creates a store over a database connection.
func NewStore(db *DB) *Store {
	return &Store{db: db}
}

// ActiveModels returns all active registry rows, best weight first.
func (s *Store) ActiveModels(ctx context.Context) ([]RegistryEntry, error) {
	rows, err := s.db.Pool.Query(ctx, `
		SELECT agent_name, category, model_path, version, weight, status, updated_at
		FROM model_registry
		WHERE status = 'active'
		ORDER BY weight DESC`)
	if err != nil {
		return nil, fmt.Errorf("query active models: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// UnderperformingActive returns active rows whose weight is below maxWeight
// and whose score was refreshed within the freshness window. Stale scores
// never qualify an agent for a swap.
func (s *Store) UnderperformingActive(ctx context.Context, maxWeight float64, freshness time.Duration) ([]RegistryEntry, error) {
	rows, err := s.db.Pool.Query(ctx, `
		SELECT agent_name, category, model_path, version, weight, status, updated_at
		FROM model_registry
		WHERE status = 'active'
		AND weight < $1
		AND updated_at > NOW() - $2::interval`,
		maxWeight, freshness)
	if err != nil {
		return nil, fmt.Errorf("query underperforming models: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// BackupModel returns the best inactive row for the agent with weight
// strictly above minWeight, or ErrNoBackup.
func (s *Store) BackupModel(ctx context.Context, agentName string, minWeight float64) (*RegistryEntry, error) {
	row := s.db.Pool.QueryRow(ctx, `
		SELECT agent_name, category, model_path, version, weight, status, updated_at
		FROM model_registry
		WHERE agent_name = $1
		AND status = 'inactive'
		AND weight > $2
		ORDER BY weight DESC
		LIMIT 1`,
		agentName, minWeight)

	var e RegistryEntry
	err := row.Scan(&e.AgentName, &e.Category, &e.ModelPath, &e.Version, &e.Weight, &e.Status, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoBackup
	}
	if err != nil {
		return nil, fmt.Errorf("query backup model: %w", err)
	}
	return &e, nil
}

// UpdateWeight writes a new performance weight for the agent's active row.
func (s *Store) UpdateWeight(ctx context.Context, agentName string, weight float64) error {
	_, err := s.db.Pool.Exec(ctx, `
		UPDATE model_registry
		SET weight = $1, updated_at = NOW()
		WHERE agent_name = $2 AND status = 'active'`,
		weight, agentName)
	if err != nil {
		return fmt.Errorf("update weight for %s: %w", agentName, err)
	}
	return nil
}

// SwapActive atomically deactivates the agent's current active row and
// activates the named version. The transaction plus the partial unique index
// guarantee exactly one active row per agent at any observable instant.
func (s *Store) SwapActive(ctx context.Context, agentName, version string) error {
	tx, err := s.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin swap: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		UPDATE model_registry
		SET status = 'inactive', updated_at = NOW()
		WHERE agent_name = $1 AND status = 'active'`,
		agentName); err != nil {
		return fmt.Errorf("deactivate %s: %w", agentName, err)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE model_registry
		SET status = 'active', updated_at = NOW()
		WHERE agent_name = $1 AND version = $2`,
		agentName, version)
	if err != nil {
		return fmt.Errorf("activate %s v%s: %w", agentName, version, err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("activate %s v%s: version not in registry", agentName, version)
	}

	return tx.Commit(ctx)
}

// UpsertEntry inserts or updates a registry row; used by the admin tool.
func (s *Store) UpsertEntry(ctx context.Context, e RegistryEntry) error {
	_, err := s.db.Pool.Exec(ctx, `
		INSERT INTO model_registry (agent_name, category, model_path, version, weight, status, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (agent_name, version)
		DO UPDATE SET category = $2, model_path = $3, weight = $5, status = $6, updated_at = NOW()`,
		e.AgentName, e.Category, e.ModelPath, e.Version, e.Weight, e.Status)
	if err != nil {
		return fmt.Errorf("upsert registry entry %s v%s: %w", e.AgentName, e.Version, err)
	}
	return nil
}

// AllEntries returns every registry row; used by the admin tool.
func (s *Store) AllEntries(ctx context.Context) ([]RegistryEntry, error) {
	rows, err := s.db.Pool.Query(ctx, `
		SELECT agent_name, category, model_path, version, weight, status, updated_at
		FROM model_registry
		ORDER BY agent_name, status, weight DESC`)
	if err != nil {
		return nil, fmt.Errorf("query registry: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// OutcomeStatsByAgent aggregates win rate and average pnl per agent over the
// trailing window.
func (s *Store) OutcomeStatsByAgent(ctx context.Context, window time.Duration) (map[string]OutcomeStats, error) {
	rows, err := s.db.Pool.Query(ctx, `
		SELECT
			agent_name,
			AVG(CASE WHEN pnl > 0 THEN 1.0 ELSE 0.0 END) AS win_rate,
			AVG(pnl) AS avg_pnl,
			COUNT(*) AS samples
		FROM trade_outcomes
		WHERE closed_at > NOW() - $1::interval
		GROUP BY agent_name`,
		window)
	if err != nil {
		return nil, fmt.Errorf("query outcome stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[string]OutcomeStats)
	for rows.Next() {
		var name string
		var st OutcomeStats
		if err := rows.Scan(&name, &st.WinRate, &st.AvgPnl, &st.Samples); err != nil {
			return nil, fmt.Errorf("scan outcome stats: %w", err)
		}
		stats[name] = st
	}
	return stats, rows.Err()
}

// RecordSignal implements ensemble.AuditSink.
func (s *Store) RecordSignal(ctx context.Context, sig *ensemble.Signal) error {
	votes, err := json.Marshal(sig.Votes)
	if err != nil {
		return fmt.Errorf("marshal votes: %w", err)
	}

	_, err = s.db.Pool.Exec(ctx, `
		INSERT INTO signal_audit (signal_id, symbol, action, confidence, reason, votes)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		sig.ID, sig.Symbol, string(sig.Action), sig.Confidence, sig.Reason, votes)
	if err != nil {
		return fmt.Errorf("insert signal audit: %w", err)
	}
	return nil
}

func scanEntries(rows pgx.Rows) ([]RegistryEntry, error) {
	var entries []RegistryEntry
	for rows.Next() {
		var e RegistryEntry
		if err := rows.Scan(&e.AgentName, &e.Category, &e.ModelPath, &e.Version, &e.Weight, &e.Status, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan registry entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
