package bridge

// Health is a point-in-time snapshot of one bridge.
type Health struct {
	Name           string  `json:"name"`
	Running        bool    `json:"running"`
	Healthy        bool    `json:"healthy"`
	ConnectedPeers int     `json:"connected_peers"`
	AvgLatencyMs   float64 `json:"avg_latency_ms"`
	LatencySamples int     `json:"latency_samples"`
}

// Bridge is the common transport contract. Both implementations run for the
// whole process lifetime; which one carries traffic is the manager's call.
type Bridge interface {
	Name() string
	Start() error
	Stop() error
	Send(sig *SignalMessage) bool
	Healthy() bool
	Health() Health
}
