package ensemble

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"ensemble-signal-engine/internal/events"
	"ensemble-signal-engine/internal/logging"
	"ensemble-signal-engine/internal/market"
	"ensemble-signal-engine/internal/validator"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Signal is the aggregated ensemble decision for one symbol.
type Signal struct {
	ID              string             `json:"id"`
	Symbol          string             `json:"symbol"`
	Action          Action             `json:"action"`
	Confidence      float64            `json:"confidence"`
	Reason          string             `json:"reason"`
	Votes           map[Action]float64 `json:"votes"`
	ServerTimestamp int64              `json:"server_timestamp"` // ns epoch
	Decisions       []Decision         `json:"decisions,omitempty"`
}

// AuditSink receives every generated signal for offline analysis. Audit
// failures never affect the decision path.
type AuditSink interface {
	RecordSignal(ctx context.Context, sig *Signal) error
}

// Config holds engine tuning.
type Config struct {
	ConfidenceThreshold float64 `json:"confidence_threshold"`
}

// Engine aggregates agent predictions into one trading decision.
type Engine struct {
	pool      *Pool
	validator *validator.Validator
	audit     AuditSink
	bus       *events.EventBus
	cfg       Config
	log       zerolog.Logger
}

// NewEngine creates an engine over an agent pool. audit and bus may be nil.
func NewEngine(pool *Pool, v *validator.Validator, audit AuditSink, bus *events.EventBus, cfg Config) *Engine {
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = 0.75
	}
	return &Engine{
		pool:      pool,
		validator: v,
		audit:     audit,
		bus:       bus,
		cfg:       cfg,
		log:       logging.Component("ensemble"),
	}
}

// Pool exposes the live agent pool for the tracker and swap controller.
func (e *Engine) Pool() *Pool { return e.pool }

// Evaluate runs one full ensemble pass: concurrent predictions, weighted
// vote, confidence gate, then the validator gate, in that fixed order.
func (e *Engine) Evaluate(ctx context.Context, symbol string, snap *market.Snapshot) *Signal {
	agents := e.pool.Snapshot()
	if len(agents) == 0 {
		return e.emit(ctx, &Signal{
			Symbol:     symbol,
			Action:     ActionHold,
			Confidence: 0.0,
			Reason:     "No active agents",
			Votes:      zeroVotes(),
		}, false)
	}

	decisions := e.predictAll(ctx, agents, snap)
	if len(decisions) == 0 {
		return e.emit(ctx, &Signal{
			Symbol:     symbol,
			Action:     ActionHold,
			Confidence: 0.0,
			Reason:     "No valid predictions",
			Votes:      zeroVotes(),
		}, false)
	}

	sig := e.weightedVote(symbol, agents, decisions)

	// Confidence gate first, validator second. Both append their own reason
	// fragment so the first gate that fired stays visible.
	if sig.Confidence < e.cfg.ConfidenceThreshold {
		sig.Action = ActionHold
		sig.Reason += fmt.Sprintf(" | Confidence below threshold (%.2f)", e.cfg.ConfidenceThreshold)
	}

	validated := true
	if err := e.validator.Validate(symbol, string(sig.Action), sig.Confidence); err != nil {
		validated = false
		sig.Action = ActionHold
		sig.Reason += " | " + err.Error()
		if e.bus != nil {
			gate := ""
			var gateErr *validator.GateError
			if errors.As(err, &gateErr) {
				gate = gateErr.Gate
			}
			e.bus.PublishSignalRejected(symbol, gate, err.Error())
		}
	}

	return e.emit(ctx, sig, validated)
}

// predictAll fans out over every live agent and waits for all of them; no
// late result is folded in after voting starts.
func (e *Engine) predictAll(ctx context.Context, agents map[string]*Agent, snap *market.Snapshot) []Decision {
	var wg sync.WaitGroup
	results := make([]Decision, len(agents))

	i := 0
	for _, agent := range agents {
		wg.Add(1)
		go func(idx int, a *Agent) {
			defer wg.Done()
			results[idx] = a.Predict(ctx, snap)
		}(i, agent)
		i++
	}
	wg.Wait()

	// Agent failures arrive as zero-confidence HOLD decisions with an error
	// reason; those are excluded from the valid set.
	valid := make([]Decision, 0, len(results))
	for _, d := range results {
		if strings.HasPrefix(d.Reason, "Error:") {
			continue
		}
		valid = append(valid, d)
	}
	return valid
}

// weightedVote aggregates decisions: votes[action] += weight * confidence,
// normalized by total weight; final confidence is the unweighted mean.
func (e *Engine) weightedVote(symbol string, agents map[string]*Agent, decisions []Decision) *Signal {
	votes := zeroVotes()
	var totalWeight float64
	var confidences []float64
	var reasons []string

	for _, d := range decisions {
		agent, ok := agents[d.AgentName]
		if !ok {
			continue
		}
		votes[d.Action] += agent.Weight * d.Confidence
		totalWeight += agent.Weight
		confidences = append(confidences, d.Confidence)
		reasons = append(reasons, fmt.Sprintf("%s: %s", d.AgentName, d.Reason))
	}

	if totalWeight > 0 {
		for action := range votes {
			votes[action] /= totalWeight
		}
	}

	// Fixed tie-break: HOLD > SELL > BUY; a later action must strictly exceed
	// the current winner's vote.
	winner := tieBreakOrder[0]
	for _, action := range tieBreakOrder[1:] {
		if votes[action] > votes[winner] {
			winner = action
		}
	}

	return &Signal{
		Symbol:     symbol,
		Action:     winner,
		Confidence: mean(confidences),
		Reason:     strings.Join(reasons, " | "),
		Votes:      votes,
		Decisions:  decisions,
	}
}

// emit stamps, records and publishes the signal. Only validated signals enter
// the validator's frequency memory; every signal is audited.
func (e *Engine) emit(ctx context.Context, sig *Signal, validated bool) *Signal {
	sig.ID = uuid.NewString()
	sig.ServerTimestamp = time.Now().UnixNano()

	if validated {
		e.validator.Record(sig.Symbol, string(sig.Action), sig.Confidence)
	}

	if e.audit != nil {
		if err := e.audit.RecordSignal(ctx, sig); err != nil {
			e.log.Error().Err(err).Str("symbol", sig.Symbol).Msg("Failed to audit signal")
		}
	}

	if e.bus != nil {
		e.bus.PublishSignalGenerated(sig.Symbol, string(sig.Action), sig.Confidence)
	}

	e.log.Info().
		Str("symbol", sig.Symbol).
		Str("action", string(sig.Action)).
		Float64("confidence", sig.Confidence).
		Msg("Ensemble signal generated")

	return sig
}

func zeroVotes() map[Action]float64 {
	return map[Action]float64{ActionBuy: 0, ActionSell: 0, ActionHold: 0}
}
