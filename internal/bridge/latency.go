package bridge

import "sync"

// LatencyRing is a bounded sample buffer for heartbeat round-trip latency.
// Once full, new samples overwrite the oldest.
type LatencyRing struct {
	mu      sync.Mutex
	samples []float64
	next    int
	full    bool
}

// DefaultLatencySamples is the retained sample count.
const DefaultLatencySamples = 100

// NewLatencyRing creates a ring with the given capacity (default 100).
func NewLatencyRing(capacity int) *LatencyRing {
	if capacity <= 0 {
		capacity = DefaultLatencySamples
	}
	return &LatencyRing{samples: make([]float64, capacity)}
}

// Add records one latency sample in milliseconds.
func (r *LatencyRing) Add(ms float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.samples[r.next] = ms
	r.next++
	if r.next == len(r.samples) {
		r.next = 0
		r.full = true
	}
}

// Count returns the number of recorded samples.
func (r *LatencyRing) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.countLocked()
}

func (r *LatencyRing) countLocked() int {
	if r.full {
		return len(r.samples)
	}
	return r.next
}

// Average returns the mean latency in milliseconds, 0 with no samples.
func (r *LatencyRing) Average() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.countLocked()
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += r.samples[i]
	}
	return sum / float64(n)
}

// Stats returns average, min, max and count in one pass.
func (r *LatencyRing) Stats() (avg, min, max float64, count int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.countLocked()
	if n == 0 {
		return 0, 0, 0, 0
	}

	min = r.samples[0]
	max = r.samples[0]
	var sum float64
	for i := 0; i < n; i++ {
		s := r.samples[i]
		sum += s
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
	}
	return sum / float64(n), min, max, n
}
