package middleware

import (
	"sync"
	"time"
)

// Throttle drops interactions arriving sooner than a minimum interval after
// the previous admitted one for the same user. Independent of verification
// state; applied before the gate.
type Throttle struct {
	interval time.Duration
	mu       sync.Mutex
	lastSeen map[int64]time.Time
	now      func() time.Time
}

func NewThrottle(interval time.Duration) *Throttle {
	return &Throttle{
		interval: interval,
		lastSeen: make(map[int64]time.Time),
		now:      time.Now,
	}
}

// Allow reports whether an interaction from the user may proceed, updating the
// per-user timestamp when it does. O(1) map touch under one mutex.
func (t *Throttle) Allow(telegramID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	if last, ok := t.lastSeen[telegramID]; ok && now.Sub(last) < t.interval {
		return false
	}
	t.lastSeen[telegramID] = now
	return true
}
