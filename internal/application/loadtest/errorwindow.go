package loadtest

import (
	"sync"
	"time"
)

// errorWindow counts failures over a rolling one-minute window. It backs the
// automatic stop that keeps a misbehaving test from hammering a failing
// system for its full configured duration.
type errorWindow struct {
	mu     sync.Mutex
	span   time.Duration
	stamps []time.Time
}

func newErrorWindow() *errorWindow {
	return &errorWindow{span: time.Minute}
}

// Record registers one failure and returns the window count including it.
func (w *errorWindow) Record() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := time.Now()
	w.stamps = append(w.stamps, now)
	w.prune(now)
	return len(w.stamps)
}

// Count returns the number of failures inside the window.
func (w *errorWindow) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prune(time.Now())
	return len(w.stamps)
}

func (w *errorWindow) prune(now time.Time) {
	cutoff := now.Add(-w.span)
	i := 0
	for i < len(w.stamps) && w.stamps[i].Before(cutoff) {
		i++
	}
	w.stamps = w.stamps[i:]
}
