package gateway

import (
	"sync"
	"time"
)

// sweepThreshold is the key count past which idle keys are dropped.
const sweepThreshold = 4096

// SlidingWindow admits at most capacity events per key in any window.
type SlidingWindow struct {
	window time.Duration
	now    func() time.Time

	mu   sync.Mutex
	hits map[string][]time.Time
}

// NewSlidingWindow creates a limiter over window.
func NewSlidingWindow(window time.Duration) *SlidingWindow {
	return &SlidingWindow{window: window, now: time.Now, hits: make(map[string][]time.Time)}
}

// Allow records an event for key if fewer than capacity events happened in
// the trailing window, and reports whether it was admitted. Check and
// record happen under one lock.
func (w *SlidingWindow) Allow(key string, capacity int) bool {
	if capacity <= 0 {
		return true
	}
	now := w.now()
	cutoff := now.Add(-w.window)

	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.hits) > sweepThreshold {
		w.sweep(cutoff)
	}

	recent := trim(w.hits[key], cutoff)
	if len(recent) >= capacity {
		w.hits[key] = recent
		return false
	}
	w.hits[key] = append(recent, now)
	return true
}

// Keys returns the number of tracked keys.
func (w *SlidingWindow) Keys() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.hits)
}

func (w *SlidingWindow) sweep(cutoff time.Time) {
	for k, v := range w.hits {
		if len(trim(v, cutoff)) == 0 {
			delete(w.hits, k)
		}
	}
}

// trim drops timestamps at or before cutoff. Timestamps are ascending.
func trim(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	return ts[i:]
}
