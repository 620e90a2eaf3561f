package events

import (
	"sync"
	"testing"
	"time"
)

func TestSubscribeReceivesEvent(t *testing.T) {
	bus := NewEventBus()

	var wg sync.WaitGroup
	wg.Add(1)
	var got Event
	bus.Subscribe(EventSignalGenerated, func(e Event) {
		got = e
		wg.Done()
	})

	bus.PublishSignalGenerated("EURUSD", "BUY", 0.9)

	if waitTimeout(&wg, time.Second) {
		t.Fatal("Subscriber never received the event")
	}
	if got.Type != EventSignalGenerated {
		t.Errorf("Expected %s, got %s", EventSignalGenerated, got.Type)
	}
	if got.Data["symbol"] != "EURUSD" {
		t.Errorf("Unexpected payload: %v", got.Data)
	}
	if got.Timestamp.IsZero() {
		t.Error("Timestamp should be stamped on publish")
	}
}

func TestSubscriberFiltering(t *testing.T) {
	bus := NewEventBus()

	var mu sync.Mutex
	received := 0
	bus.Subscribe(EventBridgeFailover, func(e Event) {
		mu.Lock()
		received++
		mu.Unlock()
	})

	bus.PublishSignalGenerated("EURUSD", "BUY", 0.9)
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if received != 0 {
		t.Errorf("Subscriber should not receive other event types, got %d", received)
	}
}

func TestSubscribeAll(t *testing.T) {
	bus := NewEventBus()

	var wg sync.WaitGroup
	wg.Add(2)
	bus.SubscribeAll(func(e Event) { wg.Done() })

	bus.PublishSignalGenerated("EURUSD", "BUY", 0.9)
	bus.PublishFailover("redis", "websocket", "send_failure")

	if waitTimeout(&wg, time.Second) {
		t.Fatal("SubscribeAll did not receive every event")
	}
}

func waitTimeout(wg *sync.WaitGroup, timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return false
	case <-time.After(timeout):
		return true
	}
}
