package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventSignalGenerated   EventType = "SIGNAL_GENERATED"
	EventSignalRejected    EventType = "SIGNAL_REJECTED"
	EventBridgeFailover    EventType = "BRIDGE_FAILOVER"
	EventAgentHotSwapped   EventType = "AGENT_HOTSWAPPED"
	EventAgentScoreUpdated EventType = "AGENT_SCORE_UPDATED"
	EventPeerConnected     EventType = "PEER_CONNECTED"
	EventPeerDisconnected  EventType = "PEER_DISCONNECTED"
	EventError             EventType = "ERROR"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// EventBus manages event publishing and subscriptions
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber // Subscribers to all events
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
	}
}

// Subscribe registers a subscriber for a specific event type
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish sends an event to all subscribers
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	// Set timestamp if not provided
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	// Notify specific subscribers
	if subs, ok := eb.subscribers[event.Type]; ok {
		for _, sub := range subs {
			go sub(event) // Run in goroutine to avoid blocking
		}
	}

	// Notify all-event subscribers
	for _, sub := range eb.allSubs {
		go sub(event)
	}
}

// PublishSignalGenerated publishes an ensemble signal event
func (eb *EventBus) PublishSignalGenerated(symbol, action string, confidence float64) {
	eb.Publish(Event{
		Type: EventSignalGenerated,
		Data: map[string]interface{}{
			"symbol":     symbol,
			"action":     action,
			"confidence": confidence,
		},
	})
}

// PublishSignalRejected publishes a validator rejection event
func (eb *EventBus) PublishSignalRejected(symbol, gate, reason string) {
	eb.Publish(Event{
		Type: EventSignalRejected,
		Data: map[string]interface{}{
			"symbol": symbol,
			"gate":   gate,
			"reason": reason,
		},
	})
}

// PublishFailover publishes a bridge failover event
func (eb *EventBus) PublishFailover(from, to, trigger string) {
	eb.Publish(Event{
		Type: EventBridgeFailover,
		Data: map[string]interface{}{
			"from":    from,
			"to":      to,
			"trigger": trigger, // "send_failure" or "health_check"
		},
	})
}

// PublishHotSwap publishes an agent hot-swap event
func (eb *EventBus) PublishHotSwap(agentName, oldVersion, newVersion string, oldWeight, newWeight float64) {
	eb.Publish(Event{
		Type: EventAgentHotSwapped,
		Data: map[string]interface{}{
			"agent":       agentName,
			"old_version": oldVersion,
			"new_version": newVersion,
			"old_weight":  oldWeight,
			"new_weight":  newWeight,
		},
	})
}

// PublishScoreUpdated publishes an agent score update event
func (eb *EventBus) PublishScoreUpdated(agentName string, score float64, samples int) {
	eb.Publish(Event{
		Type: EventAgentScoreUpdated,
		Data: map[string]interface{}{
			"agent":   agentName,
			"score":   score,
			"samples": samples,
		},
	})
}

// PublishError publishes an error event
func (eb *EventBus) PublishError(source, message string, err error) {
	data := map[string]interface{}{
		"source":  source,
		"message": message,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	eb.Publish(Event{
		Type: EventError,
		Data: data,
	})
}
