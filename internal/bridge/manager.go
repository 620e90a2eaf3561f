package bridge

import (
	"context"
	"errors"
	"sync"
	"time"

	"ensemble-signal-engine/internal/events"
	"ensemble-signal-engine/internal/logging"

	"github.com/rs/zerolog"
)

// ManagerConfig holds failover tuning.
type ManagerConfig struct {
	FailoverEnabled     bool
	HealthCheckInterval time.Duration // default 30s
}

// Status is a point-in-time view of the distribution layer.
type Status struct {
	ActiveBridge    string `json:"active_bridge"`
	FailoverEnabled bool   `json:"failover_enabled"`
	Primary         Health `json:"primary"`
	Fallback        Health `json:"fallback"`
}

// Manager owns both transport bridges. Both run for the whole process
// lifetime; the active flag is the single source of truth for which one
// carries traffic. Two mechanisms move the flag and both do it under the
// same mutex: the edge-triggered retry inside Send and the level-triggered
// health monitor loop.
type Manager struct {
	primary  Bridge
	fallback Bridge
	cfg      ManagerConfig
	bus      *events.EventBus

	mu     sync.Mutex
	active Bridge

	wg      sync.WaitGroup
	running bool
	cancel  context.CancelFunc
	log     zerolog.Logger
}

// NewManager creates a manager over the two bridges; primary starts active.
func NewManager(primary, fallback Bridge, bus *events.EventBus, cfg ManagerConfig) *Manager {
	if cfg.HealthCheckInterval <= 0 {
		cfg.HealthCheckInterval = 30 * time.Second
	}
	return &Manager{
		primary:  primary,
		fallback: fallback,
		cfg:      cfg,
		bus:      bus,
		active:   primary,
		log:      logging.Component("comms"),
	}
}

// Start starts both bridges and the health monitor. A single bridge failing
// to start is tolerated (the other becomes active); both failing is fatal.
func (m *Manager) Start() error {
	primaryErr := m.primary.Start()
	fallbackErr := m.fallback.Start()

	if primaryErr != nil && fallbackErr != nil {
		return errors.Join(primaryErr, fallbackErr)
	}
	if primaryErr != nil {
		m.log.Warn().Err(primaryErr).Msg("Primary bridge failed to start, fallback is active")
		m.mu.Lock()
		m.active = m.fallback
		m.mu.Unlock()
	}
	if fallbackErr != nil {
		m.log.Warn().Err(fallbackErr).Msg("Fallback bridge failed to start")
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.running = true

	m.wg.Add(1)
	go m.healthMonitor(ctx)

	m.log.Info().Str("active", m.ActiveName()).Msg("Communication manager started")
	return nil
}

// Stop halts the monitor and stops both bridges.
func (m *Manager) Stop() error {
	if !m.running {
		return nil
	}
	m.running = false
	m.cancel()
	m.wg.Wait()

	return errors.Join(m.primary.Stop(), m.fallback.Stop())
}

// Send transmits the signal via the active bridge. On failure, with failover
// enabled, the flag flips and the other bridge gets exactly one retry.
func (m *Manager) Send(sig *SignalMessage) bool {
	m.mu.Lock()
	active := m.active
	m.mu.Unlock()

	if active.Send(sig) {
		return true
	}
	if !m.cfg.FailoverEnabled {
		return false
	}

	standby := m.other(active)
	m.log.Warn().
		Str("from", active.Name()).
		Str("to", standby.Name()).
		Msg("Send failed, failing over")

	m.switchTo(standby, "send_failure")
	return standby.Send(sig)
}

// ActiveName returns the active bridge's name.
func (m *Manager) ActiveName() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active.Name()
}

// Healthy reports whether at least one bridge is healthy.
func (m *Manager) Healthy() bool {
	return m.primary.Healthy() || m.fallback.Healthy()
}

// Status returns a snapshot for the ops surface.
func (m *Manager) Status() Status {
	return Status{
		ActiveBridge:    m.ActiveName(),
		FailoverEnabled: m.cfg.FailoverEnabled,
		Primary:         m.primary.Health(),
		Fallback:        m.fallback.Health(),
	}
}

// healthMonitor is the level-triggered failover path: every interval it
// flips the active flag if the current bridge is unhealthy while the other
// is healthy.
func (m *Manager) healthMonitor(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.checkHealth()
		}
	}
}

func (m *Manager) checkHealth() {
	m.mu.Lock()
	active := m.active
	m.mu.Unlock()

	standby := m.other(active)
	activeHealthy := active.Healthy()
	standbyHealthy := standby.Healthy()

	m.log.Debug().
		Str("active", active.Name()).
		Bool("active_healthy", activeHealthy).
		Bool("standby_healthy", standbyHealthy).
		Msg("Bridge health")

	if !activeHealthy && standbyHealthy {
		m.log.Warn().
			Str("from", active.Name()).
			Str("to", standby.Name()).
			Msg("Active bridge unhealthy, failing over")
		m.switchTo(standby, "health_check")
	}
}

// switchTo moves the active flag. Both failover mechanisms funnel through
// here so the flag has exactly one writer discipline.
func (m *Manager) switchTo(target Bridge, trigger string) {
	m.mu.Lock()
	if m.active == target {
		m.mu.Unlock()
		return
	}
	from := m.active
	m.active = target
	m.mu.Unlock()

	if m.bus != nil {
		m.bus.PublishFailover(from.Name(), target.Name(), trigger)
	}
}

func (m *Manager) other(b Bridge) Bridge {
	if b == m.primary {
		return m.fallback
	}
	return m.primary
}
