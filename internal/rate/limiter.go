// Package rate paces Gmail API calls.
package rate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrStopped is returned by Wait once the bucket has been stopped.
var ErrStopped = errors.New("rate limiter stopped")

// Limiter gates outbound Gmail API calls so a long archive run stays under quota.
type Limiter interface {
	Wait(ctx context.Context) error
}

// TokenBucket releases rps tokens per second and lets at most rps calls
// through back to back after an idle stretch. It starts with a single token.
// State is the arrival time of the next token, kept in integer time.
type TokenBucket struct {
	mu       sync.Mutex
	interval time.Duration
	window   time.Duration // burst allowance beyond the next token
	next     time.Time
	now      func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

func NewTokenBucket(rps int) *TokenBucket {
	if rps <= 0 {
		rps = 1
	}
	return newBucket(rps, time.Now)
}

func newBucket(rps int, now func() time.Time) *TokenBucket {
	interval := time.Second / time.Duration(rps)
	window := interval * time.Duration(rps-1)
	return &TokenBucket{
		interval: interval,
		window:   window,
		next:     now().Add(window),
		now:      now,
		stop:     make(chan struct{}),
	}
}

// reserve takes a token if one is available, otherwise it returns how long
// until the next one is due.
func (t *TokenBucket) reserve() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if t.next.Before(now) {
		t.next = now
	}
	if allowed := t.next.Add(-t.window); now.Before(allowed) {
		return allowed.Sub(now)
	}
	t.next = t.next.Add(t.interval)
	return 0
}

// Wait blocks until a token is taken, ctx is done or the bucket is stopped.
func (t *TokenBucket) Wait(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("rate wait canceled: %w", err)
		}
		select {
		case <-t.stop:
			return ErrStopped
		default:
		}
		d := t.reserve()
		if d <= 0 {
			return nil
		}
		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("rate wait canceled: %w", ctx.Err())
		case <-t.stop:
			timer.Stop()
			return ErrStopped
		case <-timer.C:
		}
	}
}

// Stop wakes pending waiters with ErrStopped. It is safe to call twice.
func (t *TokenBucket) Stop() {
	t.stopOnce.Do(func() { close(t.stop) })
}

var _ Limiter = (*TokenBucket)(nil)
