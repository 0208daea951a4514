package workerpool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultWorkers_UsesConfiguredWhenPositive(t *testing.T) {
	assert.Equal(t, 8, DefaultWorkers(8, 2))
}

func TestDefaultWorkers_CapsAtThirtyTwo(t *testing.T) {
	assert.Equal(t, 32, DefaultWorkers(0, 64))
}

func TestDefaultWorkers_FloorsAtOne(t *testing.T) {
	assert.Equal(t, 1, DefaultWorkers(0, 0))
}

func TestPool_SubmitRunsJob(t *testing.T) {
	pool := New(context.Background(), 2, 4)
	defer pool.Close()

	var ran atomic.Bool
	done := make(chan struct{})
	dropped := pool.Submit(func(ctx context.Context) {
		ran.Store(true)
		close(done)
	})
	assert.False(t, dropped)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("job never ran")
	}
	assert.True(t, ran.Load())
}

func TestPool_SubmitDropsOldestOnOverflow(t *testing.T) {
	// Zero workers: nothing drains the queue, so overflow is deterministic.
	pool := New(context.Background(), 0, 1)
	defer pool.Close()

	assert.False(t, pool.Submit(func(context.Context) {}))
	assert.True(t, pool.Submit(func(context.Context) {}))
	assert.Equal(t, int64(1), pool.Dropped())
}

func TestPool_CloseStopsWorkers(t *testing.T) {
	pool := New(context.Background(), 4, 4)
	var wg sync.WaitGroup
	wg.Add(1)
	pool.Submit(func(context.Context) { wg.Done() })
	wg.Wait()
	pool.Close()
}
