package mcp

import (
	"sync"
	"time"
)

// recallTracker records recent cynic_recall calls so handleRemember can
// detect when a caller skips the recall-before-remember workflow and
// nudge them.
//
// Keyed on subject within a configurable time window. In-memory and
// per-process: it does not survive restarts, which is fine since the
// nudge is advisory, not a hard gate.
type recallTracker struct {
	mu     sync.Mutex
	checks map[string]time.Time
	window time.Duration
}

func newRecallTracker(window time.Duration) *recallTracker {
	return &recallTracker{
		checks: make(map[string]time.Time),
		window: window,
	}
}

// Record notes that subject was recalled.
func (t *recallTracker) Record(subject string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.checks[subject] = time.Now()

	if len(t.checks) > 1000 {
		t.purgeStale()
	}
}

// WasRecalled reports whether subject was recalled within the window.
func (t *recallTracker) WasRecalled(subject string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	ts, ok := t.checks[subject]
	if !ok {
		return false
	}
	if time.Since(ts) > t.window {
		delete(t.checks, subject)
		return false
	}
	return true
}

// purgeStale removes entries older than the window. Must be called with mu held.
func (t *recallTracker) purgeStale() {
	now := time.Now()
	for k, ts := range t.checks {
		if now.Sub(ts) > t.window {
			delete(t.checks, k)
		}
	}
}
