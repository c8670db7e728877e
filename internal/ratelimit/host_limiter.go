package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// HostLimiter paces outbound requests to listing sites: a global cap on
// concurrent requests plus a minimum delay (with jitter) per host.
type HostLimiter struct {
	maxInFlight     int
	currentInFlight int
	baseDelay       time.Duration
	jitter          time.Duration
	lastRequest     map[string]time.Time
	mutex           sync.Mutex
}

// NewHostLimiter creates a limiter. maxInFlight below 1 is treated as 1.
func NewHostLimiter(maxInFlight int, baseDelay, jitter time.Duration) *HostLimiter {
	if maxInFlight < 1 {
		maxInFlight = 1
	}
	return &HostLimiter{
		maxInFlight: maxInFlight,
		baseDelay:   baseDelay,
		jitter:      jitter,
		lastRequest: make(map[string]time.Time),
	}
}

// Acquire waits until a request to host may start. It returns ctx.Err() if
// the context ends first; Release must only be called after a nil return.
func (hl *HostLimiter) Acquire(ctx context.Context, host string) error {
	for {
		hl.mutex.Lock()
		if hl.currentInFlight < hl.maxInFlight {
			wait := hl.delayFor(host)
			if wait <= 0 {
				hl.currentInFlight++
				hl.lastRequest[host] = time.Now()
				hl.mutex.Unlock()
				return nil
			}
			hl.mutex.Unlock()
			if err := sleepCtx(ctx, wait); err != nil {
				return err
			}
			continue
		}
		hl.mutex.Unlock()

		if err := sleepCtx(ctx, 100*time.Millisecond); err != nil {
			return err
		}
	}
}

// delayFor is the remaining wait before host may be hit again
func (hl *HostLimiter) delayFor(host string) time.Duration {
	last, ok := hl.lastRequest[host]
	if !ok {
		return 0
	}
	required := hl.baseDelay
	if hl.jitter > 0 {
		required += time.Duration(rand.Int63n(int64(hl.jitter)))
	}
	return required - time.Since(last)
}

// Release marks a request as completed
func (hl *HostLimiter) Release() {
	hl.mutex.Lock()
	if hl.currentInFlight > 0 {
		hl.currentInFlight--
	}
	hl.mutex.Unlock()
}

// GetInFlight returns current in-flight request count
func (hl *HostLimiter) GetInFlight() int {
	hl.mutex.Lock()
	defer hl.mutex.Unlock()
	return hl.currentInFlight
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
