package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/JonMunkholm/tickfeed/internal/metrics"
)

func TestLimiter_AcquireRelease(t *testing.T) {
	limiter := NewLimiter(2, time.Second, nil)
	ctx := context.Background()

	if got := limiter.Status(); got.Active != 0 || got.MaxConcurrent != 2 || len(got.Feeds) != 0 {
		t.Errorf("initial Status = %+v", got)
	}

	a, err := limiter.Acquire(ctx, "daily_bars")
	if err != nil {
		t.Fatalf("first Acquire failed: %v", err)
	}
	b, err := limiter.Acquire(ctx, "ric_quotes")
	if err != nil {
		t.Fatalf("second Acquire failed: %v", err)
	}

	got := limiter.Status()
	if got.Active != 2 {
		t.Errorf("Active = %d, want 2", got.Active)
	}
	if got.Feeds["daily_bars"] != 1 || got.Feeds["ric_quotes"] != 1 {
		t.Errorf("Feeds = %v, want one run each", got.Feeds)
	}

	a.Release()
	b.Release()

	if got := limiter.Status(); got.Active != 0 || len(got.Feeds) != 0 {
		t.Errorf("after Release, Status = %+v", got)
	}
}

func TestLimiter_ReleaseTwiceIsNoop(t *testing.T) {
	limiter := NewLimiter(1, time.Second, nil)

	slot, ok := limiter.TryAcquire("daily_bars")
	if !ok {
		t.Fatal("TryAcquire failed")
	}
	slot.Release()
	slot.Release()

	if got := limiter.Status().Active; got != 0 {
		t.Errorf("Active = %d, want 0", got)
	}
	other, ok := limiter.TryAcquire("daily_bars")
	if !ok {
		t.Fatal("TryAcquire after Release failed")
	}
	other.Release()
}

func TestLimiter_StatusCountsPerFeed(t *testing.T) {
	limiter := NewLimiter(3, time.Second, nil)

	var slots []*Slot
	for _, feed := range []string{"daily_bars", "daily_bars", "intraday_trades"} {
		slot, ok := limiter.TryAcquire(feed)
		if !ok {
			t.Fatalf("TryAcquire(%s) failed", feed)
		}
		slots = append(slots, slot)
	}

	got := limiter.Status().Feeds
	if got["daily_bars"] != 2 || got["intraday_trades"] != 1 {
		t.Errorf("Feeds = %v", got)
	}

	// Status returns a copy
	got["daily_bars"] = 99
	if limiter.Status().Feeds["daily_bars"] != 2 {
		t.Error("Status().Feeds aliases limiter state")
	}

	slots[0].Release()
	if n := limiter.Status().Feeds["daily_bars"]; n != 1 {
		t.Errorf("daily_bars after one release = %d, want 1", n)
	}
	for _, s := range slots[1:] {
		s.Release()
	}
}

func TestLimiter_TimesOutWhenFull(t *testing.T) {
	limiter := NewLimiter(1, 50*time.Millisecond, nil)
	ctx := context.Background()

	slot, err := limiter.Acquire(ctx, "daily_bars")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer slot.Release()

	start := time.Now()
	_, err = limiter.Acquire(ctx, "daily_bars")
	if !errors.Is(err, ErrTooManyRuns) {
		t.Errorf("Acquire error = %v, want ErrTooManyRuns", err)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("timeout too fast: %v", elapsed)
	}
}

func TestLimiter_WaitingReported(t *testing.T) {
	limiter := NewLimiter(1, time.Second, nil)
	slot, _ := limiter.TryAcquire("daily_bars")

	done := make(chan error, 1)
	go func() {
		s, err := limiter.Acquire(context.Background(), "ric_quotes")
		if err == nil {
			s.Release()
		}
		done <- err
	}()

	deadline := time.Now().Add(time.Second)
	for limiter.Status().Waiting != 1 {
		if time.Now().After(deadline) {
			t.Fatal("waiter never reported")
		}
		time.Sleep(time.Millisecond)
	}

	slot.Release()
	if err := <-done; err != nil {
		t.Errorf("queued Acquire error = %v", err)
	}
	if got := limiter.Status().Waiting; got != 0 {
		t.Errorf("Waiting = %d, want 0", got)
	}
}

func TestLimiter_CallerCancellation(t *testing.T) {
	limiter := NewLimiter(1, time.Minute, nil)
	slot, ok := limiter.TryAcquire("daily_bars")
	if !ok {
		t.Fatal("TryAcquire should succeed on an empty limiter")
	}
	defer slot.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := limiter.Acquire(ctx, "daily_bars"); !errors.Is(err, context.Canceled) {
		t.Errorf("Acquire error = %v, want context.Canceled", err)
	}
}

func TestLimiter_TryAcquire(t *testing.T) {
	limiter := NewLimiter(1, time.Second, nil)

	slot, ok := limiter.TryAcquire("daily_bars")
	if !ok {
		t.Fatal("first TryAcquire should succeed")
	}
	if _, ok := limiter.TryAcquire("daily_bars"); ok {
		t.Error("second TryAcquire should fail")
	}

	slot.Release()

	slot, ok = limiter.TryAcquire("daily_bars")
	if !ok {
		t.Fatal("TryAcquire after Release should succeed")
	}
	slot.Release()
}

func TestLimiter_ConcurrentAccess(t *testing.T) {
	const maxConcurrent = 3
	limiter := NewLimiter(maxConcurrent, time.Second, nil)

	var wg sync.WaitGroup
	var mu sync.Mutex
	maxObserved := 0

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			slot, err := limiter.Acquire(context.Background(), "daily_bars")
			if err != nil {
				t.Errorf("Acquire failed: %v", err)
				return
			}
			defer slot.Release()

			mu.Lock()
			maxObserved = max(maxObserved, limiter.Status().Active)
			mu.Unlock()

			time.Sleep(5 * time.Millisecond)
		}()
	}
	wg.Wait()

	if maxObserved > maxConcurrent {
		t.Errorf("observed %d active runs, max %d", maxObserved, maxConcurrent)
	}
	if got := limiter.Status().Active; got != 0 {
		t.Errorf("final Active = %d, want 0", got)
	}
}

func TestLimiter_WaitForDrain(t *testing.T) {
	limiter := NewLimiter(2, time.Second, nil)

	// An idle limiter is already drained
	if err := limiter.WaitForDrain(context.Background()); err != nil {
		t.Fatalf("WaitForDrain on idle limiter = %v", err)
	}

	slot, err := limiter.Acquire(context.Background(), "daily_bars")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		slot.Release()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := limiter.WaitForDrain(ctx); err != nil {
		t.Errorf("WaitForDrain error = %v", err)
	}
}

func TestLimiter_WaitForDrainTimeout(t *testing.T) {
	limiter := NewLimiter(1, time.Second, nil)
	slot, ok := limiter.TryAcquire("daily_bars")
	if !ok {
		t.Fatal("TryAcquire failed")
	}
	defer slot.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := limiter.WaitForDrain(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("WaitForDrain error = %v, want DeadlineExceeded", err)
	}
}

func TestLimiter_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	limiter := NewLimiter(1, 20*time.Millisecond, metrics.New(reg))

	slot, err := limiter.Acquire(context.Background(), "daily_bars")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if _, err := limiter.Acquire(context.Background(), "daily_bars"); !errors.Is(err, ErrTooManyRuns) {
		t.Fatalf("Acquire error = %v, want ErrTooManyRuns", err)
	}
	slot.Release()

	// one histogram series per outcome plus the active-runs gauge
	got, err := testutil.GatherAndCount(reg, "tickfeed_limiter_wait_seconds")
	if err != nil {
		t.Fatalf("GatherAndCount: %v", err)
	}
	if got != 2 {
		t.Errorf("limiter wait series = %d, want 2 (acquired, timeout)", got)
	}
	if got, _ := testutil.GatherAndCount(reg, "tickfeed_active_runs"); got != 1 {
		t.Errorf("active run series = %d, want 1", got)
	}
}

func TestNewLimiter_Defaults(t *testing.T) {
	limiter := NewLimiter(0, 0, nil)
	if got := limiter.Status().MaxConcurrent; got != DefaultMaxConcurrentRuns {
		t.Errorf("MaxConcurrent = %d, want %d", got, DefaultMaxConcurrentRuns)
	}
	if limiter.maxWait != DefaultMaxWaitTime {
		t.Errorf("maxWait = %v, want %v", limiter.maxWait, DefaultMaxWaitTime)
	}
}
