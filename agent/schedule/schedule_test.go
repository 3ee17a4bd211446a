package schedule

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestAfterRunsOnceDelayElapsed(t *testing.T) {
	t.Parallel()

	s := New()
	start := time.Now()
	done := make(chan time.Duration, 1)
	if err := s.After("order-1", 20*time.Millisecond, func(ctx context.Context) {
		done <- time.Since(start)
	}); err != nil {
		t.Fatalf("After() error = %v", err)
	}

	select {
	case elapsed := <-done:
		if elapsed < 20*time.Millisecond {
			t.Fatalf("task ran after %s, before its delay", elapsed)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("task did not run")
	}
	s.Wait()
	if n := s.Pending("order-1"); n != 0 {
		t.Fatalf("Pending() = %d after completion", n)
	}
}

func TestCancelStopsPendingSequence(t *testing.T) {
	t.Parallel()

	s := New()
	var ran atomic.Int32
	steps := []Step{
		{Run: func(ctx context.Context) { ran.Add(1) }},
		{Delay: time.Hour, Run: func(ctx context.Context) { ran.Add(1) }},
	}
	if err := s.Sequence("order-1", steps); err != nil {
		t.Fatalf("Sequence() error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for ran.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if !s.Cancel("order-1") {
		t.Fatal("Cancel() = false, want pending owner")
	}
	s.Wait()
	if got := ran.Load(); got != 1 {
		t.Fatalf("steps run = %d, want 1", got)
	}
	if s.Cancel("order-1") {
		t.Fatal("second Cancel() = true, want no owner")
	}
}

func TestCancelLeavesOtherOwners(t *testing.T) {
	t.Parallel()

	s := New()
	var ran atomic.Bool
	_ = s.After("a", time.Hour, func(ctx context.Context) {})
	_ = s.After("b", 10*time.Millisecond, func(ctx context.Context) { ran.Store(true) })
	s.Cancel("a")
	s.Wait()
	if !ran.Load() {
		t.Fatal("owner b task was cancelled with owner a")
	}
}

func TestPanickingStepDoesNotStopSequence(t *testing.T) {
	t.Parallel()

	s := New()
	var ran atomic.Int32
	_ = s.Sequence("x", []Step{
		{Run: func(ctx context.Context) { panic("boom") }},
		{Run: func(ctx context.Context) { ran.Add(1) }},
	})
	s.Wait()
	if ran.Load() != 1 {
		t.Fatal("step after panic did not run")
	}
}

func TestCloseCancelsAndRejects(t *testing.T) {
	t.Parallel()

	s := New()
	cancelled := make(chan struct{})
	_ = s.Go("discovery:s1", func(ctx context.Context) {
		<-ctx.Done()
		close(cancelled)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	select {
	case <-cancelled:
	default:
		t.Fatal("running task did not observe cancellation")
	}
	if err := s.Go("x", func(ctx context.Context) {}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Go() after Close error = %v, want ErrClosed", err)
	}
}

func TestEnqueueRunsLaneInOrder(t *testing.T) {
	t.Parallel()

	s := New()
	var (
		mu    sync.Mutex
		order []string
	)
	record := func(name string) func(ctx context.Context) {
		return func(ctx context.Context) {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
		}
	}

	_ = s.Enqueue("order-1", "order-1:user", []Step{{Delay: 40 * time.Millisecond, Run: record("slow")}})
	_ = s.Enqueue("order-1", "order-1:user", []Step{{Run: record("fast")}})
	_ = s.Enqueue("order-1", "order-1:restaurant", []Step{{Run: record("other lane")}})
	s.Wait()

	want := []string{"other lane", "slow", "fast"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
	if n := s.Pending("order-1"); n != 0 {
		t.Fatalf("Pending() = %d after completion", n)
	}
}

func TestEnqueueCancelDropsQueuedSteps(t *testing.T) {
	t.Parallel()

	s := New()
	var ran atomic.Int32
	_ = s.Enqueue("order-1", "lane", []Step{{Delay: time.Hour, Run: func(ctx context.Context) { ran.Add(1) }}})
	_ = s.Enqueue("order-1", "lane", []Step{{Run: func(ctx context.Context) { ran.Add(1) }}})
	s.Cancel("order-1")
	s.Wait()
	if got := ran.Load(); got != 0 {
		t.Fatalf("steps run = %d after cancel, want 0", got)
	}
}
