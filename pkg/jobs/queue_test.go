package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueRedeliversFailedTaskWithIncrementedAttempt(t *testing.T) {
	var (
		mu       sync.Mutex
		attempts []int
	)
	done := make(chan struct{})
	handler := func(ctx context.Context, task Task) error {
		mu.Lock()
		attempts = append(attempts, task.Attempt)
		mu.Unlock()
		if task.Attempt == 0 {
			return errors.New("transient")
		}
		close(done)
		return nil
	}

	q := NewQueue("exports", handler, QueueConfig{Workers: 1, RetryDelay: 5 * time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Task{JobID: "job-1", Kind: "totals", Session: "2025"}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task was not redelivered")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 1}, attempts)
}

func TestQueueStopsRedeliveringAfterMaxRetries(t *testing.T) {
	var (
		mu    sync.Mutex
		calls int
	)
	handler := func(ctx context.Context, task Task) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return errors.New("still broken")
	}

	q := NewQueue("exports", handler, QueueConfig{Workers: 1, MaxRetries: 2, RetryDelay: time.Millisecond})
	q.Start(context.Background())

	require.NoError(t, q.Enqueue(Task{JobID: "job-1", Kind: "maxes", Session: "2025"}))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 3
	}, 2*time.Second, 5*time.Millisecond)

	// Give any stray redelivery a chance to land before asserting the cap.
	time.Sleep(20 * time.Millisecond)
	q.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, calls)
}

func TestQueueRejectsEnqueueBeforeStart(t *testing.T) {
	q := NewQueue("exports", func(ctx context.Context, task Task) error { return nil }, QueueConfig{})
	assert.Error(t, q.Enqueue(Task{JobID: "job-1"}))
}
