package utils

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingTask struct {
	n *atomic.Int64
}

func (t countingTask) Process(ctx context.Context) error {
	t.n.Add(1)
	return nil
}

type failingTask struct{}

func (failingTask) Process(ctx context.Context) error {
	return errors.New("boom")
}

func TestWorkerPoolProcessesAllTasks(t *testing.T) {
	pool := NewWorkerPool("test-all", 4)
	pool.Start()

	var n atomic.Int64
	for i := 0; i < 50; i++ {
		require.NoError(t, pool.Submit(countingTask{n: &n}))
	}

	// Stop cancels in-flight work rather than draining, so wait for the
	// queue to empty first.
	require.Eventually(t, func() bool { return n.Load() == 50 }, time.Second, 5*time.Millisecond)
	pool.Stop()
}

func TestWorkerPoolReportsTaskErrors(t *testing.T) {
	pool := NewWorkerPool("test-errors", 1)
	pool.Start()

	require.NoError(t, pool.Submit(failingTask{}))

	select {
	case err := <-pool.Errors():
		assert.EqualError(t, err, "boom")
	case <-time.After(time.Second):
		t.Fatal("no error reported")
	}
	pool.Stop()
}

func TestWorkerPoolSubmitAfterStop(t *testing.T) {
	pool := NewWorkerPool("test-stopped", 1)
	pool.Start()
	pool.Stop()

	err := pool.Submit(noopTask{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBatchProcessCoversEveryItem(t *testing.T) {
	items := make([]int, 23)
	for i := range items {
		items[i] = i
	}

	var seen atomic.Int64
	BatchProcess(items, 5, func(batch []int) {
		assert.LessOrEqual(t, len(batch), 5)
		seen.Add(int64(len(batch)))
	})

	assert.EqualValues(t, len(items), seen.Load())
}

func TestBatchProcessEmpty(t *testing.T) {
	called := false
	BatchProcess(nil, 5, func(batch []string) { called = true })
	assert.False(t, called)
}
