package validator

import (
	"errors"
	"fmt"
	"math"
	"testing"
	"time"
)

func newTestValidator(cfg Config) (*Validator, *time.Time) {
	v := New(cfg)
	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	v.now = func() time.Time { return now }
	return v, &now
}

func gateOf(t *testing.T, err error) string {
	t.Helper()
	var gateErr *GateError
	if !errors.As(err, &gateErr) {
		t.Fatalf("Expected a GateError, got %v", err)
	}
	return gateErr.Gate
}

func TestValidatePasses(t *testing.T) {
	v, _ := newTestValidator(DefaultConfig())
	if err := v.Validate("EURUSD", "BUY", 0.9); err != nil {
		t.Errorf("Expected pass, got %v", err)
	}
}

func TestStructureGateInvalidAction(t *testing.T) {
	v, _ := newTestValidator(DefaultConfig())
	err := v.Validate("EURUSD", "LONG", 0.9)
	if gateOf(t, err) != GateStructure {
		t.Errorf("Expected structure gate, got %v", err)
	}
}

func TestStructureGateBadConfidence(t *testing.T) {
	v, _ := newTestValidator(DefaultConfig())
	for _, conf := range []float64{-0.1, 1.1, math.NaN(), math.Inf(1)} {
		err := v.Validate("EURUSD", "BUY", conf)
		if err == nil || gateOf(t, err) != GateStructure {
			t.Errorf("Confidence %f should fail the structure gate, got %v", conf, err)
		}
	}
}

func TestConfidenceGate(t *testing.T) {
	v, _ := newTestValidator(DefaultConfig())
	err := v.Validate("EURUSD", "BUY", 0.5)
	if gateOf(t, err) != GateConfidence {
		t.Errorf("Expected confidence gate, got %v", err)
	}
}

func TestConfidenceGateExactThreshold(t *testing.T) {
	v, _ := newTestValidator(DefaultConfig())
	if err := v.Validate("EURUSD", "BUY", 0.75); err != nil {
		t.Errorf("Confidence equal to threshold should pass, got %v", err)
	}
}

func TestMarketWindowGate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WindowStartHour = 8
	cfg.WindowEndHour = 16
	v, now := newTestValidator(cfg)

	*now = time.Date(2025, 6, 2, 3, 0, 0, 0, time.UTC)
	err := v.Validate("EURUSD", "BUY", 0.9)
	if gateOf(t, err) != GateMarket {
		t.Errorf("Expected market window gate at 03:00, got %v", err)
	}

	*now = time.Date(2025, 6, 2, 16, 59, 0, 0, time.UTC)
	if err := v.Validate("EURUSD", "BUY", 0.9); err != nil {
		t.Errorf("End hour is inclusive, got %v", err)
	}
}

// TestFrequencyGateMaxPerSymbol verifies the per-symbol cap inside the
// look-back window: three recent EURUSD signals block the fourth
func TestFrequencyGateMaxPerSymbol(t *testing.T) {
	v, now := newTestValidator(DefaultConfig())

	for i := 0; i < 3; i++ {
		v.Record("EURUSD", "BUY", 0.9)
		*now = now.Add(2 * time.Minute)
	}

	err := v.Validate("EURUSD", "BUY", 0.9)
	if gateOf(t, err) != GateFrequency {
		t.Errorf("Expected frequency gate after 3 signals, got %v", err)
	}

	// A different symbol is unaffected
	if err := v.Validate("GBPUSD", "BUY", 0.9); err != nil {
		t.Errorf("Other symbols must not be throttled, got %v", err)
	}
}

// TestFrequencyGateLookBack verifies old signals scroll out of the window
func TestFrequencyGateLookBack(t *testing.T) {
	v, now := newTestValidator(DefaultConfig())

	for i := 0; i < 3; i++ {
		v.Record("EURUSD", "BUY", 0.9)
		*now = now.Add(2 * time.Minute)
	}
	// Push 20 signals for other symbols through the look-back window
	for i := 0; i < 20; i++ {
		v.Record(fmt.Sprintf("SYM%d", i), "BUY", 0.9)
		*now = now.Add(2 * time.Minute)
	}

	if err := v.Validate("EURUSD", "BUY", 0.9); err != nil {
		t.Errorf("Signals outside the look-back window must not count, got %v", err)
	}
}

// TestFrequencyGateMinInterval verifies the 60s spacing rule
func TestFrequencyGateMinInterval(t *testing.T) {
	v, now := newTestValidator(DefaultConfig())

	v.Record("EURUSD", "BUY", 0.9)

	*now = now.Add(30 * time.Second)
	err := v.Validate("EURUSD", "BUY", 0.9)
	if gateOf(t, err) != GateFrequency {
		t.Errorf("Expected frequency gate under 60s spacing, got %v", err)
	}

	*now = now.Add(31 * time.Second)
	if err := v.Validate("EURUSD", "BUY", 0.9); err != nil {
		t.Errorf("61s spacing should pass, got %v", err)
	}
}

// TestGateOrder verifies confidence is checked before the market window
func TestGateOrder(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WindowStartHour = 8
	cfg.WindowEndHour = 16
	v, now := newTestValidator(cfg)
	*now = time.Date(2025, 6, 2, 3, 0, 0, 0, time.UTC)

	// Both the confidence and market window gates would fire; the earlier
	// gate must win.
	err := v.Validate("EURUSD", "BUY", 0.1)
	if gateOf(t, err) != GateConfidence {
		t.Errorf("Expected confidence gate to fire first, got %v", err)
	}
}

func TestHistoryCap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HistoryCap = 100
	v, now := newTestValidator(cfg)

	for i := 0; i < 150; i++ {
		v.Record(fmt.Sprintf("SYM%d", i), "BUY", 0.8)
		*now = now.Add(time.Second)
	}

	if stats := v.Stats(); stats.TotalSignals != 100 {
		t.Errorf("History should cap at 100, got %d", stats.TotalSignals)
	}
}

func TestStats(t *testing.T) {
	v, now := newTestValidator(DefaultConfig())
	v.Record("EURUSD", "BUY", 0.8)
	*now = now.Add(time.Minute)
	v.Record("GBPUSD", "SELL", 0.9)

	stats := v.Stats()
	if stats.TotalSignals != 2 {
		t.Errorf("Expected 2 signals, got %d", stats.TotalSignals)
	}
	if math.Abs(stats.AvgConfidence-0.85) > 1e-9 {
		t.Errorf("Expected avg confidence 0.85, got %f", stats.AvgConfidence)
	}
	if stats.Actions["BUY"] != 1 || stats.Actions["SELL"] != 1 {
		t.Errorf("Unexpected action counts: %v", stats.Actions)
	}
}

func TestReset(t *testing.T) {
	v, _ := newTestValidator(DefaultConfig())
	v.Record("EURUSD", "BUY", 0.8)
	v.Reset()
	if stats := v.Stats(); stats.TotalSignals != 0 {
		t.Errorf("Expected empty history after reset, got %d", stats.TotalSignals)
	}
}
