package valr

import (
	"context"
	"sync"
	"time"
)

// waitBuffer is added to the computed sleep so a request never lands exactly
// on the window boundary.
const waitBuffer = 50 * time.Millisecond

// slidingLimiter enforces a request budget over a sliding time window. At
// capacity, Wait blocks until the oldest recorded request leaves the window.
// All client requests share one limiter.
type slidingLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	stamps []time.Time
	now    func() time.Time
}

func newSlidingLimiter(limit int, window time.Duration) *slidingLimiter {
	return &slidingLimiter{
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Wait blocks until the caller may issue a request, then records it.
func (l *slidingLimiter) Wait(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := l.now()
		cutoff := now.Add(-l.window)
		kept := l.stamps[:0]
		for _, ts := range l.stamps {
			if ts.After(cutoff) {
				kept = append(kept, ts)
			}
		}
		l.stamps = kept

		if len(l.stamps) < l.limit {
			l.stamps = append(l.stamps, now)
			l.mu.Unlock()
			return nil
		}

		sleep := l.stamps[0].Add(l.window).Sub(now) + waitBuffer
		l.mu.Unlock()

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
