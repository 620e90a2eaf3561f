package performance

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"ensemble-signal-engine/internal/database"
	"ensemble-signal-engine/internal/ensemble"
	"ensemble-signal-engine/internal/model"
)

// fakeScoreStore is an in-memory ScoreStore
type fakeScoreStore struct {
	stats     map[string]database.OutcomeStats
	statsErr  error
	weightErr error
	weights   map[string]float64
}

func (s *fakeScoreStore) OutcomeStatsByAgent(_ context.Context, _ time.Duration) (map[string]database.OutcomeStats, error) {
	if s.statsErr != nil {
		return nil, s.statsErr
	}
	return s.stats, nil
}

func (s *fakeScoreStore) UpdateWeight(_ context.Context, name string, weight float64) error {
	if s.weightErr != nil {
		return s.weightErr
	}
	if s.weights == nil {
		s.weights = make(map[string]float64)
	}
	s.weights[name] = weight
	return nil
}

type fixedHandle struct{}

func (fixedHandle) Predict(_ []float64) ([]float64, error) { return []float64{0.5, 0.5}, nil }

var _ model.Handle = fixedHandle{}

func poolWith(names ...string) *ensemble.Pool {
	pool := ensemble.NewPool()
	for _, name := range names {
		pool.Replace(ensemble.NewAgent(name, ensemble.CategoryTechnical, "v1", 0.5, fixedHandle{}, time.Second))
	}
	return pool
}

// TestScoreComposite checks the 70/30 score formula at known points
func TestScoreComposite(t *testing.T) {
	cases := []struct {
		winRate  float64
		avgPnl   float64
		expected float64
	}{
		{0.65, 12.0, 0.7*0.65 + 0.3*0.12},
		{1.0, 200.0, 1.0},  // pnl component clips at 1, total clips at 1
		{0.0, -500.0, 0.0}, // clips at 0
		{0.5, 0.0, 0.35},
	}
	for _, tc := range cases {
		got := Score(tc.winRate, tc.avgPnl)
		if math.Abs(got-tc.expected) > 1e-9 {
			t.Errorf("Score(%f, %f): expected %f, got %f", tc.winRate, tc.avgPnl, tc.expected, got)
		}
	}
}

// TestUpdateScores covers the normal path: enough samples, persisted weight,
// pool updated to match
func TestUpdateScores(t *testing.T) {
	store := &fakeScoreStore{
		stats: map[string]database.OutcomeStats{
			"technical_m1": {WinRate: 0.65, AvgPnl: 12.0, Samples: 40},
		},
	}
	pool := poolWith("technical_m1")
	tracker := NewTracker(store, pool, nil, TrackerConfig{})

	if err := tracker.UpdateScores(context.Background()); err != nil {
		t.Fatalf("UpdateScores failed: %v", err)
	}

	want := Score(0.65, 12.0)
	if math.Abs(store.weights["technical_m1"]-want) > 1e-9 {
		t.Errorf("Expected persisted weight %f, got %f", want, store.weights["technical_m1"])
	}
	if agent := pool.Get("technical_m1"); math.Abs(agent.Weight-want) > 1e-9 {
		t.Errorf("Expected pool weight %f, got %f", want, agent.Weight)
	}
}

// TestUpdateScoresSkipsThinHistory verifies agents under the sample floor keep
// their weight
func TestUpdateScoresSkipsThinHistory(t *testing.T) {
	store := &fakeScoreStore{
		stats: map[string]database.OutcomeStats{
			"technical_m1": {WinRate: 0.9, AvgPnl: 50.0, Samples: MinSamples - 1},
		},
	}
	pool := poolWith("technical_m1")
	tracker := NewTracker(store, pool, nil, TrackerConfig{})

	if err := tracker.UpdateScores(context.Background()); err != nil {
		t.Fatalf("UpdateScores failed: %v", err)
	}

	if len(store.weights) != 0 {
		t.Errorf("No weight should persist below %d samples, got %v", MinSamples, store.weights)
	}
	if agent := pool.Get("technical_m1"); agent.Weight != 0.5 {
		t.Errorf("Pool weight should be untouched, got %f", agent.Weight)
	}
}

// TestUpdateScoresPersistFailureSkipsPool verifies a failed registry write
// leaves the pool weight alone so the two cannot drift
func TestUpdateScoresPersistFailureSkipsPool(t *testing.T) {
	store := &fakeScoreStore{
		stats: map[string]database.OutcomeStats{
			"technical_m1": {WinRate: 0.65, AvgPnl: 12.0, Samples: 40},
		},
		weightErr: errors.New("connection refused"),
	}
	pool := poolWith("technical_m1")
	tracker := NewTracker(store, pool, nil, TrackerConfig{})

	if err := tracker.UpdateScores(context.Background()); err != nil {
		t.Fatalf("UpdateScores should continue past per-agent failures: %v", err)
	}

	if agent := pool.Get("technical_m1"); agent.Weight != 0.5 {
		t.Errorf("Pool weight must not change when the persist fails, got %f", agent.Weight)
	}
}

func TestUpdateScoresStoreError(t *testing.T) {
	store := &fakeScoreStore{statsErr: errors.New("connection refused")}
	tracker := NewTracker(store, poolWith("technical_m1"), nil, TrackerConfig{})

	if err := tracker.UpdateScores(context.Background()); err == nil {
		t.Error("Expected error when outcome stats are unavailable")
	}
}

// TestTrackerBreakerOpens verifies repeated store failures trip the breaker
func TestTrackerBreakerOpens(t *testing.T) {
	store := &fakeScoreStore{statsErr: errors.New("connection refused")}
	tracker := NewTracker(store, poolWith("technical_m1"), nil, TrackerConfig{})

	for i := 0; i < 3; i++ {
		tracker.UpdateScores(context.Background())
	}

	// The breaker is open now: calls fail fast without hitting the store
	store.statsErr = nil
	if err := tracker.UpdateScores(context.Background()); err == nil {
		t.Error("Expected the open breaker to reject the call")
	}
}
