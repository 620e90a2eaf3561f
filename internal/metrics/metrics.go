package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ensemble-signal-engine/internal/events"
)

// Recorder exposes ensemble engine counters and gauges via Prometheus.
type Recorder struct {
	signalsGenerated *prometheus.CounterVec
	signalsRejected  *prometheus.CounterVec
	failovers        *prometheus.CounterVec
	hotSwaps         *prometheus.CounterVec
	agentScore       *prometheus.GaugeVec
	bridgeLatency    *prometheus.GaugeVec
	connectedPeers   prometheus.Gauge
	evalDuration     prometheus.Histogram
}

// New creates a Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		signalsGenerated: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ensemble_signals_generated_total",
				Help: "Total number of ensemble signals generated",
			},
			[]string{"symbol", "action"},
		),
		signalsRejected: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ensemble_signals_rejected_total",
				Help: "Total number of signals rejected by validation gates",
			},
			[]string{"symbol", "gate"},
		),
		failovers: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_failovers_total",
				Help: "Total number of transport failovers",
			},
			[]string{"from", "to", "trigger"},
		),
		hotSwaps: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_hotswaps_total",
				Help: "Total number of agent model hot-swaps",
			},
			[]string{"agent"},
		),
		agentScore: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "agent_performance_score",
				Help: "Latest composite performance score per agent",
			},
			[]string{"agent"},
		),
		bridgeLatency: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "bridge_avg_latency_ms",
				Help: "Rolling average heartbeat latency per bridge in milliseconds",
			},
			[]string{"bridge"},
		),
		connectedPeers: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "bridge_connected_peers",
				Help: "Number of connected signal consumers",
			},
		),
		evalDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ensemble_evaluate_duration_seconds",
				Help:    "Duration of ensemble evaluations in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
}

// Handler returns the HTTP handler serving the metrics endpoint.
func (r *Recorder) Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveEvaluation records the duration of a single ensemble evaluation.
func (r *Recorder) ObserveEvaluation(seconds float64) {
	r.evalDuration.Observe(seconds)
}

// SetBridgeLatency records the rolling average latency of a bridge.
func (r *Recorder) SetBridgeLatency(bridge string, ms float64) {
	r.bridgeLatency.WithLabelValues(bridge).Set(ms)
}

// BindBus subscribes the recorder to the event bus so counters track
// signal, failover, and hot-swap activity without explicit call sites.
func (r *Recorder) BindBus(bus *events.EventBus) {
	bus.Subscribe(events.EventSignalGenerated, func(e events.Event) {
		symbol, _ := e.Data["symbol"].(string)
		action, _ := e.Data["action"].(string)
		r.signalsGenerated.WithLabelValues(symbol, action).Inc()
	})
	bus.Subscribe(events.EventSignalRejected, func(e events.Event) {
		symbol, _ := e.Data["symbol"].(string)
		gate, _ := e.Data["gate"].(string)
		r.signalsRejected.WithLabelValues(symbol, gate).Inc()
	})
	bus.Subscribe(events.EventBridgeFailover, func(e events.Event) {
		from, _ := e.Data["from"].(string)
		to, _ := e.Data["to"].(string)
		trigger, _ := e.Data["trigger"].(string)
		r.failovers.WithLabelValues(from, to, trigger).Inc()
	})
	bus.Subscribe(events.EventAgentHotSwapped, func(e events.Event) {
		agent, _ := e.Data["agent"].(string)
		r.hotSwaps.WithLabelValues(agent).Inc()
	})
	bus.Subscribe(events.EventAgentScoreUpdated, func(e events.Event) {
		agent, _ := e.Data["agent"].(string)
		if score, ok := e.Data["score"].(float64); ok {
			r.agentScore.WithLabelValues(agent).Set(score)
		}
	})
	bus.Subscribe(events.EventPeerConnected, func(e events.Event) {
		r.connectedPeers.Inc()
	})
	bus.Subscribe(events.EventPeerDisconnected, func(e events.Event) {
		r.connectedPeers.Dec()
	})
}
