package main

import (
	"sync"
	"time"
)

// repeatTracker tracks recent volume key activity so a held or rapidly
// pressed key can step faster.
//
// Safe for concurrent use.
type repeatTracker struct {
	mu     sync.Mutex
	recent []keyStep
	now    func() time.Time
}

// keyStep records a single press or autorepeat of a volume key.
type keyStep struct {
	at        time.Time
	direction int // +1 for up, -1 for down
}

func newRepeatTracker() *repeatTracker {
	return &repeatTracker{
		recent: make([]keyStep, 0, 16),
		now:    time.Now,
	}
}

// addStep records a step and returns how many steps in the same direction
// fall inside the trailing window, including this one.
func (r *repeatTracker) addStep(direction int, window time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	cutoff := now.Add(-window)

	kept := r.recent[:0]
	for _, s := range r.recent {
		if s.at.After(cutoff) {
			kept = append(kept, s)
		}
	}
	kept = append(kept, keyStep{at: now, direction: direction})
	r.recent = kept

	same := 0
	for _, s := range kept {
		if s.direction == direction {
			same++
		}
	}
	return same
}

// reset forgets all recorded steps.
func (r *repeatTracker) reset() {
	r.mu.Lock()
	r.recent = r.recent[:0]
	r.mu.Unlock()
}
