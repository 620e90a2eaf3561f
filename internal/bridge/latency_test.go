package bridge

import (
	"math"
	"testing"
)

func TestLatencyRingEmpty(t *testing.T) {
	ring := NewLatencyRing(10)
	if ring.Count() != 0 {
		t.Errorf("Expected 0 samples, got %d", ring.Count())
	}
	if ring.Average() != 0 {
		t.Errorf("Expected 0 average with no samples, got %f", ring.Average())
	}
}

func TestLatencyRingAverage(t *testing.T) {
	ring := NewLatencyRing(10)
	ring.Add(10)
	ring.Add(20)
	ring.Add(30)

	if ring.Count() != 3 {
		t.Errorf("Expected 3 samples, got %d", ring.Count())
	}
	if math.Abs(ring.Average()-20) > 1e-9 {
		t.Errorf("Expected average 20, got %f", ring.Average())
	}
}

// TestLatencyRingOverwrite verifies old samples fall out once the ring fills
func TestLatencyRingOverwrite(t *testing.T) {
	ring := NewLatencyRing(3)
	ring.Add(100)
	ring.Add(100)
	ring.Add(100)
	ring.Add(10)

	if ring.Count() != 3 {
		t.Errorf("Count should stay at capacity, got %d", ring.Count())
	}
	want := (10.0 + 100.0 + 100.0) / 3.0
	if math.Abs(ring.Average()-want) > 1e-9 {
		t.Errorf("Expected average %f after overwrite, got %f", want, ring.Average())
	}
}

func TestLatencyRingStats(t *testing.T) {
	ring := NewLatencyRing(10)
	ring.Add(5)
	ring.Add(15)
	ring.Add(40)

	avg, min, max, count := ring.Stats()
	if count != 3 {
		t.Errorf("Expected count 3, got %d", count)
	}
	if min != 5 || max != 40 {
		t.Errorf("Expected min 5 max 40, got %f %f", min, max)
	}
	if math.Abs(avg-20) > 1e-9 {
		t.Errorf("Expected average 20, got %f", avg)
	}
}

func TestLatencyRingDefaultCapacity(t *testing.T) {
	ring := NewLatencyRing(0)
	for i := 0; i < DefaultLatencySamples+50; i++ {
		ring.Add(1)
	}
	if ring.Count() != DefaultLatencySamples {
		t.Errorf("Expected capacity %d, got %d", DefaultLatencySamples, ring.Count())
	}
}
