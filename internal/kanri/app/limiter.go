package app

import (
	"sync"
	"time"
)

const (
	// DefaultFloodLimit is the number of messages a user may send per window
	// before Kanri stops answering until the window slides.
	DefaultFloodLimit = 30

	defaultFloodWindow = time.Minute
)

// FloodLimiter is a per-user sliding-window message counter. Time is passed
// in by the caller so the window follows message timestamps.
type FloodLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	seen   map[string][]time.Time
}

// NewFloodLimiter returns a limiter allowing limit messages per window.
// Non-positive arguments select the defaults.
func NewFloodLimiter(limit int, window time.Duration) *FloodLimiter {
	if limit <= 0 {
		limit = DefaultFloodLimit
	}
	if window <= 0 {
		window = defaultFloodWindow
	}
	return &FloodLimiter{limit: limit, window: window, seen: make(map[string][]time.Time)}
}

// Allow records a message from user at now and reports whether it is within
// the limit. Rejected messages are not recorded.
func (f *FloodLimiter) Allow(user string, now time.Time) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.prune(user, now)) >= f.limit {
		return false
	}
	f.seen[user] = append(f.seen[user], now)
	return true
}

// prune drops timestamps outside the window ending at now and returns what
// is left. Callers hold mu.
func (f *FloodLimiter) prune(user string, now time.Time) []time.Time {
	cutoff := now.Add(-f.window)
	kept := f.seen[user][:0]
	for _, t := range f.seen[user] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) == 0 {
		delete(f.seen, user)
		return nil
	}
	f.seen[user] = kept
	return kept
}
