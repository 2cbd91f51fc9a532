package fetch

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestThrottleWindow(t *testing.T) {
	th := newThrottle(2, 60*time.Millisecond, 4)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		release, err := th.acquire(ctx)
		if err != nil {
			t.Fatal(err)
		}
		release()
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("Expected third request to wait for the window, took %v", elapsed)
	}
}

func TestThrottleUnlimited(t *testing.T) {
	th := newThrottle(0, time.Hour, 1)
	for i := 0; i < 100; i++ {
		release, err := th.acquire(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		release()
		release() // second call is a no-op
	}
}

func TestThrottleCancelled(t *testing.T) {
	th := newThrottle(1, time.Hour, 1)
	release, err := th.acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := th.acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline while slot is held, got %v", err)
	}

	release()
	ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel2()
	if _, err := th.acquire(ctx2); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline while window is full, got %v", err)
	}
}
