// Package performance re-scores agents from realized trade outcomes and
// hot-swaps underperformers. Both loops are best-effort: a persistence
// failure is logged and skipped, and the live serving state is never left
// half-updated.
package performance

import (
	"context"
	"time"

	"ensemble-signal-engine/internal/database"
	"ensemble-signal-engine/internal/ensemble"
	"ensemble-signal-engine/internal/events"
	"ensemble-signal-engine/internal/logging"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// ScoreStore is the persistence surface the tracker needs.
type ScoreStore interface {
	OutcomeStatsByAgent(ctx context.Context, window time.Duration) (map[string]database.OutcomeStats, error)
	UpdateWeight(ctx context.Context, agentName string, weight float64) error
}

// MinSamples is the trade count below which outcome stats are not trusted.
const MinSamples = 10

// Score computes the composite performance score from a trailing window:
// 70% win rate, 30% normalized average pnl, clipped to [0,1].
func Score(winRate, avgPnl float64) float64 {
	pnlComponent := avgPnl / 100.0
	if pnlComponent > 1 {
		pnlComponent = 1
	}
	if pnlComponent < -1 {
		pnlComponent = -1
	}

	score := 0.7*winRate + 0.3*pnlComponent
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// TrackerConfig holds scoring cadence tuning.
type TrackerConfig struct {
	Interval   time.Duration // default 1h
	Window     time.Duration // trailing outcome window, default 24h
	ErrBackoff time.Duration // sleep after a failed cycle, default 1m
}

// Tracker periodically recomputes agent weights from realized outcomes and
// writes them to both the registry and the live pool.
type Tracker struct {
	store   ScoreStore
	pool    *ensemble.Pool
	bus     *events.EventBus
	breaker *gobreaker.CircuitBreaker
	cfg     TrackerConfig
	log     zerolog.Logger
}

// NewTracker creates a tracker. bus may be nil.
func NewTracker(store ScoreStore, pool *ensemble.Pool, bus *events.EventBus, cfg TrackerConfig) *Tracker {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.Window <= 0 {
		cfg.Window = 24 * time.Hour
	}
	if cfg.ErrBackoff <= 0 {
		cfg.ErrBackoff = time.Minute
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "performance-store",
		Timeout: 2 * cfg.ErrBackoff,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})

	return &Tracker{
		store:   store,
		pool:    pool,
		bus:     bus,
		breaker: breaker,
		cfg:     cfg,
		log:     logging.Component("performance"),
	}
}

// Run executes the scoring loop until ctx is cancelled. It never touches the
// request path; all communication happens through the pool.
func (t *Tracker) Run(ctx context.Context) {
	t.log.Info().Dur("interval", t.cfg.Interval).Msg("Performance tracker started")

	ticker := time.NewTicker(t.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.log.Info().Msg("Performance tracker stopped")
			return
		case <-ticker.C:
			if err := t.UpdateScores(ctx); err != nil {
				t.log.Error().Err(err).Msg("Score update failed")
				select {
				case <-ctx.Done():
					return
				case <-time.After(t.cfg.ErrBackoff):
				}
			}
		}
	}
}

// UpdateScores pulls the trailing outcome window and rewrites weights for
// every agent with enough samples. Agents with thin history keep their
// current weight.
func (t *Tracker) UpdateScores(ctx context.Context) error {
	statsAny, err := t.breaker.Execute(func() (interface{}, error) {
		return t.store.OutcomeStatsByAgent(ctx, t.cfg.Window)
	})
	if err != nil {
		return err
	}
	stats := statsAny.(map[string]database.OutcomeStats)

	for name, st := range stats {
		if st.Samples < MinSamples {
			t.log.Debug().Str("agent", name).Int("samples", st.Samples).Msg("Too few samples, keeping weight")
			continue
		}

		score := Score(st.WinRate, st.AvgPnl)

		if _, err := t.breaker.Execute(func() (interface{}, error) {
			return nil, t.store.UpdateWeight(ctx, name, score)
		}); err != nil {
			// Registry write failed: skip the in-memory update too so the
			// pool and the registry cannot drift apart.
			t.log.Error().Err(err).Str("agent", name).Msg("Weight persist failed, skipping")
			continue
		}

		t.pool.SetWeight(name, score)
		if t.bus != nil {
			t.bus.PublishScoreUpdated(name, score, st.Samples)
		}
		t.log.Info().Str("agent", name).Float64("score", score).Int("samples", st.Samples).Msg("Agent score updated")
	}

	return nil
}
