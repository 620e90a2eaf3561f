package performance

import (
	"context"
	"errors"
	"testing"
	"time"

	"ensemble-signal-engine/internal/database"
	"ensemble-signal-engine/internal/model"
)

// fakeSwapStore is an in-memory SwapStore tracking the single-active invariant
type fakeSwapStore struct {
	underperformers []database.RegistryEntry
	backups         map[string]*database.RegistryEntry
	active          map[string]string // agent -> active version
	swapErr         error
}

func (s *fakeSwapStore) UnderperformingActive(_ context.Context, _ float64, _ time.Duration) ([]database.RegistryEntry, error) {
	return s.underperformers, nil
}

func (s *fakeSwapStore) BackupModel(_ context.Context, name string, _ float64) (*database.RegistryEntry, error) {
	if b, ok := s.backups[name]; ok {
		return b, nil
	}
	return nil, database.ErrNoBackup
}

func (s *fakeSwapStore) SwapActive(_ context.Context, name, version string) error {
	if s.swapErr != nil {
		return s.swapErr
	}
	if s.active == nil {
		s.active = make(map[string]string)
	}
	s.active[name] = version
	return nil
}

// fakeLoader returns a fixed handle or an error per path
type fakeLoader struct {
	failPaths map[string]bool
	loads     int
}

func (l *fakeLoader) Load(path string) (model.Handle, error) {
	l.loads++
	if l.failPaths[path] {
		return nil, errors.New("corrupt model file")
	}
	return fixedHandle{}, nil
}

func underperformer(name string) database.RegistryEntry {
	return database.RegistryEntry{
		AgentName: name,
		Category:  "technical",
		ModelPath: name + "_v1.json",
		Version:   "v1",
		Weight:    0.30,
		Status:    "active",
	}
}

func backupFor(name string) *database.RegistryEntry {
	return &database.RegistryEntry{
		AgentName: name,
		Category:  "technical",
		ModelPath: name + "_v2.json",
		Version:   "v2",
		Weight:    0.60,
		Status:    "inactive",
	}
}

// TestCheckOnceSwaps covers the full swap: candidate loaded, registry
// flipped, pool entry replaced
func TestCheckOnceSwaps(t *testing.T) {
	store := &fakeSwapStore{
		underperformers: []database.RegistryEntry{underperformer("technical_m1")},
		backups:         map[string]*database.RegistryEntry{"technical_m1": backupFor("technical_m1")},
	}
	pool := poolWith("technical_m1")
	swapper := NewSwapper(store, pool, &fakeLoader{}, nil, SwapperConfig{})

	if err := swapper.CheckOnce(context.Background()); err != nil {
		t.Fatalf("CheckOnce failed: %v", err)
	}

	if store.active["technical_m1"] != "v2" {
		t.Errorf("Registry should activate v2, got %q", store.active["technical_m1"])
	}

	agent := pool.Get("technical_m1")
	if agent == nil {
		t.Fatal("Agent vanished from the pool during swap")
	}
	if agent.Version != "v2" {
		t.Errorf("Pool should serve v2, got %s", agent.Version)
	}
	if agent.Weight != 0.60 {
		t.Errorf("Replacement should carry the backup weight, got %f", agent.Weight)
	}
}

// TestCheckOnceNoBackup verifies an underperformer with no candidate is left
// serving
func TestCheckOnceNoBackup(t *testing.T) {
	store := &fakeSwapStore{
		underperformers: []database.RegistryEntry{underperformer("technical_m1")},
	}
	pool := poolWith("technical_m1")
	swapper := NewSwapper(store, pool, &fakeLoader{}, nil, SwapperConfig{})

	if err := swapper.CheckOnce(context.Background()); err != nil {
		t.Fatalf("CheckOnce failed: %v", err)
	}

	if agent := pool.Get("technical_m1"); agent.Version != "v1" {
		t.Errorf("Agent should keep serving v1, got %s", agent.Version)
	}
}

// TestCheckOnceLoadFailureLeavesOldAgent verifies the load-first ordering: a
// candidate that fails to load changes neither the registry nor the pool
func TestCheckOnceLoadFailureLeavesOldAgent(t *testing.T) {
	store := &fakeSwapStore{
		underperformers: []database.RegistryEntry{underperformer("technical_m1")},
		backups:         map[string]*database.RegistryEntry{"technical_m1": backupFor("technical_m1")},
	}
	loader := &fakeLoader{failPaths: map[string]bool{"technical_m1_v2.json": true}}
	pool := poolWith("technical_m1")
	swapper := NewSwapper(store, pool, loader, nil, SwapperConfig{})

	if err := swapper.CheckOnce(context.Background()); err != nil {
		t.Fatalf("CheckOnce should continue past per-agent failures: %v", err)
	}

	if len(store.active) != 0 {
		t.Errorf("Registry must not flip when the candidate fails to load: %v", store.active)
	}
	if agent := pool.Get("technical_m1"); agent.Version != "v1" {
		t.Errorf("Previous agent must keep serving, got %s", agent.Version)
	}
}

// TestCheckOnceRegistryFailureLeavesPool verifies a failed registry flip does
// not touch the pool
func TestCheckOnceRegistryFailureLeavesPool(t *testing.T) {
	store := &fakeSwapStore{
		underperformers: []database.RegistryEntry{underperformer("technical_m1")},
		backups:         map[string]*database.RegistryEntry{"technical_m1": backupFor("technical_m1")},
		swapErr:         errors.New("deadlock detected"),
	}
	pool := poolWith("technical_m1")
	swapper := NewSwapper(store, pool, &fakeLoader{}, nil, SwapperConfig{})

	if err := swapper.CheckOnce(context.Background()); err != nil {
		t.Fatalf("CheckOnce should continue past per-agent failures: %v", err)
	}

	if agent := pool.Get("technical_m1"); agent.Version != "v1" {
		t.Errorf("Pool must stay on v1 when the registry flip fails, got %s", agent.Version)
	}
}

// TestCheckOnceMultipleAgents verifies one bad agent does not block the rest
func TestCheckOnceMultipleAgents(t *testing.T) {
	store := &fakeSwapStore{
		underperformers: []database.RegistryEntry{
			underperformer("technical_m1"),
			underperformer("technical_m5"),
		},
		backups: map[string]*database.RegistryEntry{
			"technical_m1": backupFor("technical_m1"),
			"technical_m5": backupFor("technical_m5"),
		},
	}
	loader := &fakeLoader{failPaths: map[string]bool{"technical_m1_v2.json": true}}
	pool := poolWith("technical_m1", "technical_m5")
	swapper := NewSwapper(store, pool, loader, nil, SwapperConfig{})

	if err := swapper.CheckOnce(context.Background()); err != nil {
		t.Fatalf("CheckOnce failed: %v", err)
	}

	if agent := pool.Get("technical_m1"); agent.Version != "v1" {
		t.Errorf("Failed swap should leave v1 serving, got %s", agent.Version)
	}
	if agent := pool.Get("technical_m5"); agent.Version != "v2" {
		t.Errorf("Healthy swap should proceed, got %s", agent.Version)
	}
}
