package subscription

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"mdcollector/internal/infrastructure/config"
)

func TestWorkerRecoversAfterBackoff(t *testing.T) {
	var failures atomic.Uint64
	var calls atomic.Int64
	done := make(chan struct{})

	backoff := 30 * time.Millisecond
	w := &worker{
		name:     "ticker:TEST",
		backoff:  backoff,
		failures: &failures,
		fetch: func(ctx context.Context) error {
			switch calls.Add(1) {
			case 1, 2:
				return errors.New("transient stream failure")
			case 3:
				close(done)
				return nil
			default:
				return nil
			}
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	start := time.Now()
	go func() {
		<-done
		cancel()
	}()
	w.run(ctx)
	elapsed := time.Since(start)

	if got := failures.Load(); got != 2 {
		t.Errorf("expected 2 recorded failures, got %d", got)
	}
	if calls.Load() < 3 {
		t.Errorf("expected at least 3 fetch attempts, got %d", calls.Load())
	}
	if elapsed < 2*backoff {
		t.Errorf("elapsed %v shorter than two backoff delays (%v)", elapsed, 2*backoff)
	}
}

func TestWorkerThrottleSleepsAfterFetch(t *testing.T) {
	var failures atomic.Uint64
	var calls atomic.Int64

	throttle, err := config.ParseInterval("1s")
	if err != nil {
		t.Fatal(err)
	}
	// scaled down so the test stays fast; policy is sleep-after-fetch
	throttle.Period = 40 * time.Millisecond

	w := &worker{
		name:     "ohlcv:TEST@1m",
		throttle: throttle,
		backoff:  time.Millisecond,
		failures: &failures,
		fetch: func(ctx context.Context) error {
			calls.Add(1)
			return nil
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	w.run(ctx)

	// 100ms window with a 40ms post-fetch sleep allows at most 3 iterations
	if n := calls.Load(); n < 2 || n > 3 {
		t.Errorf("expected 2-3 throttled fetches in window, got %d", n)
	}
}

func TestWorkerStopsPromptlyDuringBackoff(t *testing.T) {
	var failures atomic.Uint64
	w := &worker{
		name:     "trades:TEST",
		backoff:  10 * time.Second,
		failures: &failures,
		fetch: func(ctx context.Context) error {
			return errors.New("boom")
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		w.run(ctx)
		close(stopped)
	}()

	time.Sleep(20 * time.Millisecond) // let it enter backoff
	cancel()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("worker did not observe cancellation during backoff")
	}
}
