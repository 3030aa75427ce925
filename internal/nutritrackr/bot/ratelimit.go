package bot

import (
	"sync"
	"time"
)

const (
	// DefaultRateLimit is the number of messages a sender may have answered
	// per window when no explicit limit is configured.
	DefaultRateLimit = 20

	defaultRateLimitWindow = time.Minute
)

// RateLimiter enforces a per-sender sliding-window limit on answered
// messages. It is safe for concurrent use.
type RateLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	now    func() time.Time
	calls  map[string][]time.Time
}

// NewRateLimiter allows at most limit messages per sender within window.
// Non-positive arguments select the defaults.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = DefaultRateLimit
	}
	if window <= 0 {
		window = defaultRateLimitWindow
	}
	return &RateLimiter{
		limit:  limit,
		window: window,
		now:    time.Now,
		calls:  make(map[string][]time.Time),
	}
}

// Allow reports whether sender may be answered now and, if so, records the
// call.
func (r *RateLimiter) Allow(sender string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	valid := r.pruneLocked(sender, now)
	if len(valid) >= r.limit {
		return false
	}
	r.calls[sender] = append(valid, now)
	return true
}

// Remaining returns how many more messages sender may send in the current
// window.
func (r *RateLimiter) Remaining(sender string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return max(r.limit-len(r.pruneLocked(sender, r.now())), 0)
}

// Sweep forgets senders with no calls inside the window. Long-running
// servers call it periodically so idle numbers do not accumulate.
func (r *RateLimiter) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	removed := 0
	for sender := range r.calls {
		if len(r.pruneLocked(sender, now)) == 0 {
			removed++
		}
	}
	return removed
}

func (r *RateLimiter) pruneLocked(sender string, now time.Time) []time.Time {
	cutoff := now.Add(-r.window)
	existing := r.calls[sender]
	valid := existing[:0]
	for _, t := range existing {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	if len(valid) == 0 {
		delete(r.calls, sender)
		return nil
	}
	r.calls[sender] = valid
	return valid
}
