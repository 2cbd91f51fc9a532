package fetch

import (
	"context"
	"sync"
	"time"
)

// throttle caps simultaneous requests and the number of requests started
// within a sliding window.
type throttle struct {
	tokens chan struct{}
	limit  int
	window time.Duration

	mu       sync.Mutex
	attempts []time.Time
	now      func() time.Time
}

// newThrottle allows limit requests per window (none when limit <= 0) with
// at most concurrency in flight.
func newThrottle(limit int, window time.Duration, concurrency int) *throttle {
	t := &throttle{
		tokens: make(chan struct{}, max(1, concurrency)),
		limit:  limit,
		window: window,
		now:    time.Now,
	}
	for i := 0; i < cap(t.tokens); i++ {
		t.tokens <- struct{}{}
	}
	return t
}

// acquire blocks until a request may start. The returned func gives the
// concurrency slot back.
func (t *throttle) acquire(ctx context.Context) (func(), error) {
	select {
	case <-t.tokens:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if err := t.wait(ctx); err != nil {
		t.tokens <- struct{}{}
		return nil, err
	}
	var once sync.Once
	return func() {
		once.Do(func() { t.tokens <- struct{}{} })
	}, nil
}

func (t *throttle) wait(ctx context.Context) error {
	if t.limit <= 0 {
		return nil
	}
	for {
		t.mu.Lock()
		now := t.now()
		if len(t.attempts) < t.limit || now.Sub(t.attempts[0]) >= t.window {
			t.attempts = append(t.attempts, now)
			if len(t.attempts) > t.limit {
				t.attempts = t.attempts[1:]
			}
			t.mu.Unlock()
			return nil
		}
		delay := t.window - now.Sub(t.attempts[0])
		t.mu.Unlock()

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}
