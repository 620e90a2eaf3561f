package bridge

import (
	"errors"
	"sync"
	"testing"
	"time"
)

var errTest = errors.New("induced failure")

// fakeBridge is a controllable Bridge for manager tests
type fakeBridge struct {
	name string

	mu       sync.Mutex
	healthy  bool
	sendOK   bool
	sent     []*SignalMessage
	startErr error
	started  bool
	stopped  bool
}

func newFakeBridge(name string) *fakeBridge {
	return &fakeBridge{name: name, healthy: true, sendOK: true}
}

func (b *fakeBridge) Name() string { return b.name }

func (b *fakeBridge) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.startErr != nil {
		return b.startErr
	}
	b.started = true
	return nil
}

func (b *fakeBridge) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopped = true
	return nil
}

func (b *fakeBridge) Send(sig *SignalMessage) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.sendOK {
		return false
	}
	b.sent = append(b.sent, sig)
	return true
}

func (b *fakeBridge) Healthy() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.healthy
}

func (b *fakeBridge) Health() Health {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Health{Name: b.name, Running: b.started && !b.stopped, Healthy: b.healthy}
}

func (b *fakeBridge) setHealthy(v bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.healthy = v
}

func (b *fakeBridge) setSendOK(v bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sendOK = v
}

func (b *fakeBridge) sentCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sent)
}

func testSignal() *SignalMessage {
	return &SignalMessage{Symbol: "EURUSD", Action: "BUY", Confidence: 0.9}
}

func TestManagerSendViaPrimary(t *testing.T) {
	primary := newFakeBridge("redis")
	fallback := newFakeBridge("websocket")
	m := NewManager(primary, fallback, nil, ManagerConfig{FailoverEnabled: true, HealthCheckInterval: time.Hour})
	if err := m.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer m.Stop()

	if !m.Send(testSignal()) {
		t.Fatal("Send should succeed")
	}
	if primary.sentCount() != 1 || fallback.sentCount() != 0 {
		t.Errorf("Signal should go via primary only: primary=%d fallback=%d",
			primary.sentCount(), fallback.sentCount())
	}
	if m.ActiveName() != "redis" {
		t.Errorf("Primary should stay active, got %s", m.ActiveName())
	}
}

// TestManagerSendFailover verifies the edge-triggered path: a failed send
// flips the active flag and retries once on the standby
func TestManagerSendFailover(t *testing.T) {
	primary := newFakeBridge("redis")
	fallback := newFakeBridge("websocket")
	m := NewManager(primary, fallback, nil, ManagerConfig{FailoverEnabled: true, HealthCheckInterval: time.Hour})
	if err := m.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer m.Stop()

	primary.setSendOK(false)
	if !m.Send(testSignal()) {
		t.Fatal("Failover retry should deliver the signal")
	}
	if fallback.sentCount() != 1 {
		t.Errorf("Expected 1 signal via fallback, got %d", fallback.sentCount())
	}
	if m.ActiveName() != "websocket" {
		t.Errorf("Fallback should be active after failover, got %s", m.ActiveName())
	}

	// Subsequent sends stay on the new active bridge
	m.Send(testSignal())
	if fallback.sentCount() != 2 {
		t.Errorf("Expected sticky failover, got %d via fallback", fallback.sentCount())
	}
}

func TestManagerSendFailoverDisabled(t *testing.T) {
	primary := newFakeBridge("redis")
	fallback := newFakeBridge("websocket")
	m := NewManager(primary, fallback, nil, ManagerConfig{FailoverEnabled: false, HealthCheckInterval: time.Hour})
	if err := m.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer m.Stop()

	primary.setSendOK(false)
	if m.Send(testSignal()) {
		t.Error("Send should fail with failover disabled")
	}
	if fallback.sentCount() != 0 {
		t.Errorf("Fallback must not be used, got %d", fallback.sentCount())
	}
	if m.ActiveName() != "redis" {
		t.Errorf("Active flag must not move, got %s", m.ActiveName())
	}
}

// TestManagerBothSendsFail verifies Send reports false when the retry also
// fails
func TestManagerBothSendsFail(t *testing.T) {
	primary := newFakeBridge("redis")
	fallback := newFakeBridge("websocket")
	m := NewManager(primary, fallback, nil, ManagerConfig{FailoverEnabled: true, HealthCheckInterval: time.Hour})
	if err := m.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer m.Stop()

	primary.setSendOK(false)
	fallback.setSendOK(false)
	if m.Send(testSignal()) {
		t.Error("Send should report failure when both bridges fail")
	}
}

// TestManagerHealthMonitorFailover verifies the level-triggered path: the
// monitor flips to the healthy standby within one check interval
func TestManagerHealthMonitorFailover(t *testing.T) {
	primary := newFakeBridge("redis")
	fallback := newFakeBridge("websocket")
	m := NewManager(primary, fallback, nil, ManagerConfig{
		FailoverEnabled:     true,
		HealthCheckInterval: 10 * time.Millisecond,
	})
	if err := m.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer m.Stop()

	primary.setHealthy(false)

	deadline := time.After(time.Second)
	for m.ActiveName() != "websocket" {
		select {
		case <-deadline:
			t.Fatal("Health monitor never failed over")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

// TestManagerHealthMonitorStaysWhenBothDown verifies no flapping onto an
// equally unhealthy standby
func TestManagerHealthMonitorStaysWhenBothDown(t *testing.T) {
	primary := newFakeBridge("redis")
	fallback := newFakeBridge("websocket")
	m := NewManager(primary, fallback, nil, ManagerConfig{
		FailoverEnabled:     true,
		HealthCheckInterval: 10 * time.Millisecond,
	})
	if err := m.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer m.Stop()

	primary.setHealthy(false)
	fallback.setHealthy(false)

	time.Sleep(50 * time.Millisecond)
	if m.ActiveName() != "redis" {
		t.Errorf("Active flag should not move when the standby is also down, got %s", m.ActiveName())
	}
	if m.Healthy() {
		t.Error("Manager should report unhealthy when both bridges are down")
	}
}

// TestManagerStartPrimaryFails verifies one bridge failing to start leaves
// the other active
func TestManagerStartPrimaryFails(t *testing.T) {
	primary := newFakeBridge("redis")
	primary.startErr = errTest
	fallback := newFakeBridge("websocket")
	m := NewManager(primary, fallback, nil, ManagerConfig{FailoverEnabled: true, HealthCheckInterval: time.Hour})

	if err := m.Start(); err != nil {
		t.Fatalf("One failed bridge should be tolerated: %v", err)
	}
	defer m.Stop()

	if m.ActiveName() != "websocket" {
		t.Errorf("Fallback should be active, got %s", m.ActiveName())
	}
}

func TestManagerStartBothFail(t *testing.T) {
	primary := newFakeBridge("redis")
	primary.startErr = errTest
	fallback := newFakeBridge("websocket")
	fallback.startErr = errTest
	m := NewManager(primary, fallback, nil, ManagerConfig{FailoverEnabled: true})

	if err := m.Start(); err == nil {
		t.Error("Both bridges failing to start must be fatal")
	}
}

func TestManagerStatus(t *testing.T) {
	primary := newFakeBridge("redis")
	fallback := newFakeBridge("websocket")
	m := NewManager(primary, fallback, nil, ManagerConfig{FailoverEnabled: true, HealthCheckInterval: time.Hour})
	if err := m.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer m.Stop()

	status := m.Status()
	if status.ActiveBridge != "redis" {
		t.Errorf("Expected active redis, got %s", status.ActiveBridge)
	}
	if !status.FailoverEnabled {
		t.Error("Expected failover enabled")
	}
	if status.Primary.Name != "redis" || status.Fallback.Name != "websocket" {
		t.Errorf("Unexpected bridge names: %s / %s", status.Primary.Name, status.Fallback.Name)
	}
}
