package ratelimit

import (
	"context"
	"sync"
	"time"
)

// RateLimiter bounds outbound request frequency.
type RateLimiter interface {
	// Wait blocks until a slot is available or the context is done.
	Wait(ctx context.Context) error
	// Allow reports whether a slot is available right now, consuming it if so.
	Allow() bool
	// Remaining returns the number of slots left in the current window.
	Remaining() int
}

// SlidingWindow admits at most limit requests in any trailing window.
//
// Safe for use from multiple goroutines sharing one client. It does not
// coordinate across processes: two independent clients hitting the same
// credentials can still exceed the exchange limit together.
type SlidingWindow struct {
	limit      int
	windowSize time.Duration

	mu       sync.Mutex
	requests []time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewSlidingWindow creates a limiter admitting limit requests per windowSize.
func NewSlidingWindow(limit int, windowSize time.Duration) *SlidingWindow {
	return &SlidingWindow{
		limit:      limit,
		windowSize: windowSize,
		requests:   make([]time.Time, 0, limit),
		now:        time.Now,
		sleep:      sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// evict drops entries older than the window. Callers must hold mu.
func (sw *SlidingWindow) evict(now time.Time) {
	cutoff := now.Add(-sw.windowSize)
	i := 0
	for i < len(sw.requests) && !sw.requests[i].After(cutoff) {
		i++
	}
	if i > 0 {
		sw.requests = append(sw.requests[:0], sw.requests[i:]...)
	}
}

// Allow consumes a slot if the window has room.
func (sw *SlidingWindow) Allow() bool {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	now := sw.now()
	sw.evict(now)
	if len(sw.requests) >= sw.limit {
		return false
	}
	sw.requests = append(sw.requests, now)
	return true
}

// Wait blocks until the window admits a request. When the window is full it
// sleeps for the remainder of the oldest entry's window and retries.
func (sw *SlidingWindow) Wait(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		sw.mu.Lock()
		now := sw.now()
		sw.evict(now)
		if len(sw.requests) < sw.limit {
			sw.requests = append(sw.requests, now)
			sw.mu.Unlock()
			return nil
		}
		wait := sw.windowSize - now.Sub(sw.requests[0])
		sw.mu.Unlock()

		if wait <= 0 {
			continue
		}
		if err := sw.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// Remaining returns how many requests the current window still admits.
func (sw *SlidingWindow) Remaining() int {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.evict(sw.now())
	if n := sw.limit - len(sw.requests); n > 0 {
		return n
	}
	return 0
}
