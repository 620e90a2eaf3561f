// Package bridge implements the signal distribution layer: two transport
// bridges behind one contract and a manager that fails over between them.
package bridge

import (
	"encoding/json"
	"fmt"
)

// Message type discriminators on the wire.
const (
	TypeSignal            = "signal"
	TypeHeartbeat         = "heartbeat"
	TypeHeartbeatResponse = "heartbeat_response"
)

// SignalMessage is the outbound trading signal payload. The schema is shared
// by both transports.
type SignalMessage struct {
	Type            string                 `json:"type"`
	Symbol          string                 `json:"symbol"`
	Action          string                 `json:"action"`
	Confidence      float64                `json:"confidence"`
	Reason          string                 `json:"reason"`
	ServerTimestamp int64                  `json:"server_timestamp"` // ns epoch
	Votes           map[string]float64     `json:"votes"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
}

// Heartbeat is the inbound round-trip probe from an execution client.
type Heartbeat struct {
	Type            string `json:"type"`
	ClientTimestamp int64  `json:"client_timestamp"` // ns epoch
}

// HeartbeatResponse echoes a heartbeat with the rolling average latency.
type HeartbeatResponse struct {
	Type         string  `json:"type"`
	ServerTime   int64   `json:"server_time"` // ns epoch
	AvgLatencyMs float64 `json:"avg_latency_ms"`
}

// envelope is used to peek at the type of an inbound frame.
type envelope struct {
	Type string `json:"type"`
}

// EncodeSignal serializes a signal for transmission.
func EncodeSignal(sig *SignalMessage) ([]byte, error) {
	sig.Type = TypeSignal
	data, err := json.Marshal(sig)
	if err != nil {
		return nil, fmt.Errorf("encode signal: %w", err)
	}
	return data, nil
}

// DecodeType returns the type discriminator of an inbound frame.
func DecodeType(data []byte) (string, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", fmt.Errorf("decode message: %w", err)
	}
	return env.Type, nil
}

// DecodeHeartbeat parses an inbound heartbeat frame.
func DecodeHeartbeat(data []byte) (*Heartbeat, error) {
	var hb Heartbeat
	if err := json.Unmarshal(data, &hb); err != nil {
		return nil, fmt.Errorf("decode heartbeat: %w", err)
	}
	if hb.Type != TypeHeartbeat {
		return nil, fmt.Errorf("unexpected message type %q", hb.Type)
	}
	return &hb, nil
}

func jsonMarshal(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return data, nil
}
