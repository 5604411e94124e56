package ratelimit

import (
	"context"
	"sync"
	"time"
)

const (
	// DefaultLimit is the number of requests admitted per window.
	DefaultLimit = 60
	// DefaultWindow is the length of the sliding window.
	DefaultWindow = time.Minute
)

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Admitter decides whether a client may make another request.
type Admitter interface {
	Admit(ctx context.Context, identity string, now time.Time) (Decision, error)
}

// Window is an in-process sliding-window admitter. It keeps the acceptance
// timestamps of each identity for the trailing window; throttled attempts
// are not recorded.
type Window struct {
	mu     sync.Mutex
	hits   map[string][]time.Time
	window time.Duration
	limit  func() int
}

// NewWindow creates an admitter. limit is read on every check so the ceiling
// can change at runtime; a non-positive value means DefaultLimit.
func NewWindow(window time.Duration, limit func() int) *Window {
	if window <= 0 {
		window = DefaultWindow
	}
	if limit == nil {
		limit = func() int { return DefaultLimit }
	}
	return &Window{
		hits:   make(map[string][]time.Time),
		window: window,
		limit:  limit,
	}
}

func (w *Window) Admit(_ context.Context, identity string, now time.Time) (Decision, error) {
	limit := w.limit()
	if limit <= 0 {
		limit = DefaultLimit
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	ts := prune(w.hits[identity], now.Add(-w.window))
	if len(ts) >= limit {
		// A lowered limit can leave more than limit entries; a slot frees up
		// once all but limit-1 of them have aged out.
		w.hits[identity] = ts
		return Decision{
			Allowed:    false,
			Limit:      limit,
			Remaining:  0,
			RetryAfter: ts[len(ts)-limit].Add(w.window).Sub(now),
		}, nil
	}

	ts = append(ts, now)
	w.hits[identity] = ts
	return Decision{Allowed: true, Limit: limit, Remaining: limit - len(ts)}, nil
}

// prune drops timestamps at or before cutoff. ts is in ascending order.
func prune(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return ts
	}
	return append([]time.Time(nil), ts[i:]...)
}

// Sweep removes identities with no timestamps left in the window and
// returns how many were removed.
func (w *Window) Sweep(now time.Time) int {
	cutoff := now.Add(-w.window)
	w.mu.Lock()
	defer w.mu.Unlock()
	removed := 0
	for id, ts := range w.hits {
		ts = prune(ts, cutoff)
		if len(ts) == 0 {
			delete(w.hits, id)
			removed++
			continue
		}
		w.hits[id] = ts
	}
	return removed
}

// Active returns the number of identities currently tracked.
func (w *Window) Active() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.hits)
}
