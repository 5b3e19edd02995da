package rate

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestTokenBucketFirstWaitIsImmediate(t *testing.T) {
	tb := NewTokenBucket(1)
	defer tb.Stop()

	start := time.Now()
	if err := tb.Wait(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("first wait took %v", elapsed)
	}
}

func TestTokenBucketWaitCanceled(t *testing.T) {
	tb := NewTokenBucket(1)
	defer tb.Stop()
	if err := tb.Wait(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := tb.Wait(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestTokenBucketRefills(t *testing.T) {
	tb := NewTokenBucket(50)
	defer tb.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for i := 0; i < 5; i++ {
		if err := tb.Wait(ctx); err != nil {
			t.Fatalf("wait %d: %v", i, err)
		}
	}
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestTokenBucketReserveFollowsClock(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	tb := newBucket(4, clock.now)

	if d := tb.reserve(); d != 0 {
		t.Fatalf("first token should be free, waited %v", d)
	}
	if d := tb.reserve(); d != 250*time.Millisecond {
		t.Fatalf("expected 250ms until next token, got %v", d)
	}
	clock.advance(100 * time.Millisecond)
	if d := tb.reserve(); d != 150*time.Millisecond {
		t.Fatalf("expected 150ms until next token, got %v", d)
	}
	clock.advance(150 * time.Millisecond)
	if d := tb.reserve(); d != 0 {
		t.Fatalf("token due, got wait %v", d)
	}
}

func TestTokenBucketBurstIsCapped(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	tb := newBucket(3, clock.now)
	clock.advance(time.Minute)

	for i := 0; i < 3; i++ {
		if d := tb.reserve(); d != 0 {
			t.Fatalf("burst token %d: waited %v", i, d)
		}
	}
	if d := tb.reserve(); d == 0 {
		t.Fatalf("burst exceeded rps")
	}
}

func TestTokenBucketStopWakesWaiters(t *testing.T) {
	tb := NewTokenBucket(1)
	if err := tb.Wait(context.Background()); err != nil {
		t.Fatalf("first wait: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- tb.Wait(context.Background()) }()
	time.Sleep(20 * time.Millisecond)
	tb.Stop()
	tb.Stop()

	select {
	case err := <-done:
		if !errors.Is(err, ErrStopped) {
			t.Fatalf("expected ErrStopped, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("waiter not released by Stop")
	}
}
