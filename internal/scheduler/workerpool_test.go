package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestWorkerPoolRunsAllSubmittedTasks(t *testing.T) {
	pool := NewWorkerPool(context.Background(), 3, nil)
	pool.Start()

	var count int64
	for i := 0; i < 20; i++ {
		pool.Submit(func(ctx context.Context) error {
			atomic.AddInt64(&count, 1)
			return nil
		})
	}
	pool.Wait()

	if got := atomic.LoadInt64(&count); got != 20 {
		t.Errorf("ran %d tasks, want 20", got)
	}
}

func TestWorkerPoolDefaultsToOneWorker(t *testing.T) {
	pool := NewWorkerPool(context.Background(), 0, nil)
	if pool.workerCount != 1 {
		t.Errorf("workerCount = %d, want 1", pool.workerCount)
	}
}

func TestWorkerPoolTaskErrorsDontStopOtherTasks(t *testing.T) {
	pool := NewWorkerPool(context.Background(), 2, nil)
	pool.Start()

	var succeeded int64
	pool.Submit(func(ctx context.Context) error { return context.DeadlineExceeded })
	for i := 0; i < 5; i++ {
		pool.Submit(func(ctx context.Context) error {
			atomic.AddInt64(&succeeded, 1)
			return nil
		})
	}
	pool.Wait()

	if got := atomic.LoadInt64(&succeeded); got != 5 {
		t.Errorf("succeeded = %d, want 5", got)
	}
}

func TestWorkerPoolShutdownStopsInFlightWork(t *testing.T) {
	pool := NewWorkerPool(context.Background(), 1, nil)
	pool.Start()

	started := make(chan struct{})
	release := make(chan struct{})
	pool.Submit(func(ctx context.Context) error {
		close(started)
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	})

	<-started
	done := make(chan struct{})
	go func() {
		pool.Shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected Shutdown to cancel the in-flight task promptly")
	}
}

func TestWorkerPoolSubmitAfterWaitDoesNotPanic(t *testing.T) {
	pool := NewWorkerPool(context.Background(), 1, nil)
	pool.Start()
	pool.Submit(func(ctx context.Context) error { return nil })
	pool.Wait()

	pool.cancel()
	pool.Submit(func(ctx context.Context) error { return nil })
}
