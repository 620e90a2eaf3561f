// Package validator gates ensemble signals before transmission. Gates run in
// a fixed order and short-circuit on the first failure; a rejection is
// expected control flow, not an error condition for the process.
package validator

import (
	"fmt"
	"math"
	"sync"
	"time"

	"ensemble-signal-engine/internal/logging"

	"github.com/rs/zerolog"
)

// Gate names, in pipeline order.
const (
	GateStructure  = "structure"
	GateConfidence = "confidence"
	GateMarket     = "market_window"
	GateRisk       = "risk"
	GateFrequency  = "frequency"
	GateVolatility = "volatility"
	GateSpread     = "spread"
)

// GateError identifies which gate rejected a signal.
type GateError struct {
	Gate   string
	Reason string
}

func (e *GateError) Error() string {
	return fmt.Sprintf("rejected by %s gate: %s", e.Gate, e.Reason)
}

// Config holds validator tuning.
type Config struct {
	ConfidenceThreshold float64       `json:"confidence_threshold"`
	WindowStartHour     int           `json:"window_start_hour"` // inclusive, UTC
	WindowEndHour       int           `json:"window_end_hour"`   // inclusive, UTC
	MaxPerSymbol        int           `json:"max_per_symbol"`    // within the look-back window
	LookBack            int           `json:"look_back"`         // recorded signals inspected
	MinInterval         time.Duration `json:"-"`
	HistoryCap          int           `json:"history_cap"`
}

// DefaultConfig matches a 24/7 market: threshold 0.75, max 3 signals per
// symbol among the last 20, 60s minimum spacing, last 100 signals kept.
func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold: 0.75,
		WindowStartHour:     0,
		WindowEndHour:       23,
		MaxPerSymbol:        3,
		LookBack:            20,
		MinInterval:         time.Minute,
		HistoryCap:          100,
	}
}

type record struct {
	Symbol     string
	Action     string
	Confidence float64
	At         time.Time
}

// Stats summarizes the recorded signal history.
type Stats struct {
	TotalSignals  int            `json:"total_signals"`
	AvgConfidence float64        `json:"avg_confidence"`
	Actions       map[string]int `json:"actions"`
}

// Validator runs the gate pipeline and owns the bounded frequency memory.
// The history is a single serialized resource: concurrent callers observe
// prior validated signals in the order they were recorded.
type Validator struct {
	cfg Config

	mu      sync.Mutex
	history []record

	now func() time.Time
	log zerolog.Logger
}

// New creates a validator.
func New(cfg Config) *Validator {
	if cfg.HistoryCap <= 0 {
		cfg.HistoryCap = 100
	}
	if cfg.LookBack <= 0 {
		cfg.LookBack = 20
	}
	return &Validator{
		cfg: cfg,
		now: time.Now,
		log: logging.Component("validator"),
	}
}

// Validate runs all gates in order and returns the first gate's error, or
// nil when the signal may be transmitted.
func (v *Validator) Validate(symbol, action string, confidence float64) error {
	if err := v.checkStructure(action, confidence); err != nil {
		return err
	}
	if err := v.checkConfidence(confidence); err != nil {
		return err
	}
	if err := v.checkMarketWindow(); err != nil {
		return err
	}
	if err := v.checkRisk(); err != nil {
		return err
	}
	if err := v.checkFrequency(symbol); err != nil {
		return err
	}
	if err := v.checkVolatility(); err != nil {
		return err
	}
	if err := v.checkSpread(); err != nil {
		return err
	}
	return nil
}

func (v *Validator) checkStructure(action string, confidence float64) error {
	switch action {
	case "BUY", "SELL", "HOLD":
	default:
		return &GateError{Gate: GateStructure, Reason: fmt.Sprintf("invalid action %q", action)}
	}
	if math.IsNaN(confidence) || math.IsInf(confidence, 0) || confidence < 0 || confidence > 1 {
		return &GateError{Gate: GateStructure, Reason: "confidence outside [0,1]"}
	}
	return nil
}

func (v *Validator) checkConfidence(confidence float64) error {
	if confidence < v.cfg.ConfidenceThreshold {
		return &GateError{
			Gate:   GateConfidence,
			Reason: fmt.Sprintf("confidence %.2f below threshold %.2f", confidence, v.cfg.ConfidenceThreshold),
		}
	}
	return nil
}

func (v *Validator) checkMarketWindow() error {
	hour := v.now().UTC().Hour()
	if hour < v.cfg.WindowStartHour || hour > v.cfg.WindowEndHour {
		return &GateError{Gate: GateMarket, Reason: "outside trading window"}
	}
	return nil
}

// checkRisk is a pass-through: position sizing and exposure bounds are
// enforced by the downstream execution client.
func (v *Validator) checkRisk() error {
	return nil
}

// checkFrequency rejects overtrading: at most MaxPerSymbol-1 prior signals
// for the symbol among the last LookBack recorded, and MinInterval spacing
// since the symbol's most recent signal.
func (v *Validator) checkFrequency(symbol string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	window := v.history
	if len(window) > v.cfg.LookBack {
		window = window[len(window)-v.cfg.LookBack:]
	}

	count := 0
	for _, r := range window {
		if r.Symbol == symbol {
			count++
		}
	}
	if count >= v.cfg.MaxPerSymbol {
		return &GateError{
			Gate:   GateFrequency,
			Reason: fmt.Sprintf("%d signals for %s in the last %d", count, symbol, v.cfg.LookBack),
		}
	}

	for i := len(v.history) - 1; i >= 0; i-- {
		if v.history[i].Symbol != symbol {
			continue
		}
		if v.now().Sub(v.history[i].At) < v.cfg.MinInterval {
			return &GateError{
				Gate:   GateFrequency,
				Reason: fmt.Sprintf("last signal for %s under %s ago", symbol, v.cfg.MinInterval),
			}
		}
		break
	}
	return nil
}

// checkVolatility is a pass-through; real bounds belong to the execution
// client which sees live tick data.
func (v *Validator) checkVolatility() error {
	return nil
}

// checkSpread is a pass-through for the same reason.
func (v *Validator) checkSpread() error {
	return nil
}

// Record appends a validated signal to the bounded FIFO history.
func (v *Validator) Record(symbol, action string, confidence float64) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.history = append(v.history, record{
		Symbol:     symbol,
		Action:     action,
		Confidence: confidence,
		At:         v.now(),
	})
	if len(v.history) > v.cfg.HistoryCap {
		v.history = v.history[len(v.history)-v.cfg.HistoryCap:]
	}
}

// Stats returns aggregate counts over the recorded history.
func (v *Validator) Stats() Stats {
	v.mu.Lock()
	defer v.mu.Unlock()

	stats := Stats{Actions: make(map[string]int)}
	stats.TotalSignals = len(v.history)
	if len(v.history) == 0 {
		return stats
	}

	var confSum float64
	for _, r := range v.history {
		confSum += r.Confidence
		stats.Actions[r.Action]++
	}
	stats.AvgConfidence = confSum / float64(len(v.history))
	return stats
}

// Reset clears the recorded history.
func (v *Validator) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.history = nil
	v.log.Info().Msg("Signal history reset")
}
