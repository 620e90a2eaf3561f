package performance

import (
	"context"
	"errors"
	"time"

	"ensemble-signal-engine/internal/database"
	"ensemble-signal-engine/internal/ensemble"
	"ensemble-signal-engine/internal/events"
	"ensemble-signal-engine/internal/logging"
	"ensemble-signal-engine/internal/model"

	"github.com/rs/zerolog"
)

// SwapStore is the persistence surface the hot-swap controller needs.
type SwapStore interface {
	UnderperformingActive(ctx context.Context, maxWeight float64, freshness time.Duration) ([]database.RegistryEntry, error)
	BackupModel(ctx context.Context, agentName string, minWeight float64) (*database.RegistryEntry, error)
	SwapActive(ctx context.Context, agentName, version string) error
}

// Loader loads a model file; *model.Registry satisfies it.
type Loader interface {
	Load(path string) (model.Handle, error)
}

// SwapperConfig holds hot-swap tuning.
type SwapperConfig struct {
	Interval       time.Duration // default 5m
	SwapThreshold  float64       // weight below which a swap is considered, default 0.45
	Freshness      time.Duration // max score age to qualify, default 1h
	PredictTimeout time.Duration // carried onto replacement agents
	ErrBackoff     time.Duration // default 1m
}

// Swapper replaces an underperforming active agent with the best inactive
// candidate for the same name. A swap is one atomic pool replacement: the
// name never resolves to nothing, and a candidate that fails to load leaves
// the previous agent serving.
type Swapper struct {
	store  SwapStore
	pool   *ensemble.Pool
	loader Loader
	bus    *events.EventBus
	cfg    SwapperConfig
	log    zerolog.Logger
}

// NewSwapper creates a hot-swap controller. bus may be nil.
func NewSwapper(store SwapStore, pool *ensemble.Pool, loader Loader, bus *events.EventBus, cfg SwapperConfig) *Swapper {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.SwapThreshold <= 0 {
		cfg.SwapThreshold = 0.45
	}
	if cfg.Freshness <= 0 {
		cfg.Freshness = time.Hour
	}
	if cfg.ErrBackoff <= 0 {
		cfg.ErrBackoff = time.Minute
	}

	return &Swapper{
		store:  store,
		pool:   pool,
		loader: loader,
		bus:    bus,
		cfg:    cfg,
		log:    logging.Component("hotswap"),
	}
}

// Run executes the swap-check loop until ctx is cancelled.
func (s *Swapper) Run(ctx context.Context) {
	s.log.Info().Dur("interval", s.cfg.Interval).Msg("Hot-swap controller started")

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("Hot-swap controller stopped")
			return
		case <-ticker.C:
			if err := s.CheckOnce(ctx); err != nil {
				s.log.Error().Err(err).Msg("Hot-swap check failed")
				select {
				case <-ctx.Done():
					return
				case <-time.After(s.cfg.ErrBackoff):
				}
			}
		}
	}
}

// CheckOnce scans for underperformers with fresh scores and swaps each one
// that has a strictly better inactive candidate.
func (s *Swapper) CheckOnce(ctx context.Context) error {
	underperformers, err := s.store.UnderperformingActive(ctx, s.cfg.SwapThreshold, s.cfg.Freshness)
	if err != nil {
		return err
	}

	for _, entry := range underperformers {
		backup, err := s.store.BackupModel(ctx, entry.AgentName, entry.Weight)
		if errors.Is(err, database.ErrNoBackup) {
			continue
		}
		if err != nil {
			s.log.Error().Err(err).Str("agent", entry.AgentName).Msg("Backup lookup failed")
			continue
		}

		if err := s.swap(ctx, entry, backup); err != nil {
			s.log.Error().Err(err).Str("agent", entry.AgentName).Msg("Swap failed, previous agent keeps serving")
			continue
		}

		s.log.Warn().
			Str("agent", entry.AgentName).
			Str("old_version", entry.Version).
			Str("new_version", backup.Version).
			Float64("old_weight", entry.Weight).
			Float64("new_weight", backup.Weight).
			Msg("Agent hot-swapped due to poor performance")
	}

	return nil
}

// swap loads the candidate first, then flips the registry, then replaces the
// pool entry. Loading first means any failure leaves both the registry and
// the pool exactly as they were.
func (s *Swapper) swap(ctx context.Context, current database.RegistryEntry, backup *database.RegistryEntry) error {
	handle, err := s.loader.Load(backup.ModelPath)
	if err != nil {
		return err
	}

	if err := s.store.SwapActive(ctx, backup.AgentName, backup.Version); err != nil {
		return err
	}

	agent := ensemble.NewAgent(
		backup.AgentName,
		ensemble.Category(backup.Category),
		backup.Version,
		backup.Weight,
		handle,
		s.cfg.PredictTimeout,
	)
	s.pool.Replace(agent)

	if s.bus != nil {
		s.bus.PublishHotSwap(backup.AgentName, current.Version, backup.Version, current.Weight, backup.Weight)
	}
	return nil
}
