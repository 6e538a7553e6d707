package queue_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anthrax3/farmhand/core/queue"
)

// startPool launches the pool in a goroutine and registers a cleanup stop.
func startPool(t *testing.T, pool *queue.Pool) {
	t.Helper()

	go func() { _ = pool.Start(context.Background()) }()
	require.Eventually(t, func() bool {
		return pool.Stats().IsRunning
	}, time.Second, 5*time.Millisecond)
	t.Cleanup(func() {
		if pool.Stats().IsRunning {
			_ = pool.Stop()
		}
	})
}

func TestPool(t *testing.T) {
	t.Parallel()

	t.Run("rejects nil context", func(t *testing.T) {
		t.Parallel()

		_, err := queue.NewPool(nil)
		assert.ErrorIs(t, err, queue.ErrClientNil)
	})

	t.Run("start requires a handler", func(t *testing.T) {
		t.Parallel()

		fctx, _, _ := newTestContext(t)
		pool, err := queue.NewPool(fctx)
		require.NoError(t, err)

		assert.ErrorIs(t, pool.Start(context.Background()), queue.ErrHandlerNil)
	})

	t.Run("stop before start fails", func(t *testing.T) {
		t.Parallel()

		fctx, _, _ := newTestContext(t)
		pool, err := queue.NewPool(fctx)
		require.NoError(t, err)

		assert.Error(t, pool.Stop())
	})

	t.Run("processes a job to completion", func(t *testing.T) {
		t.Parallel()

		handler := func(ctx context.Context, job *queue.Job) (any, error) {
			return map[string]string{"echo": string(job.Payload)}, nil
		}
		fctx, _, client := newTestContext(t, queue.WithHandler(handler))
		ctx := context.Background()

		id, err := fctx.Enqueue(ctx, &queue.Job{Queue: "default", Payload: []byte(`"hi"`)})
		require.NoError(t, err)

		pool, err := queue.NewPool(fctx,
			queue.WithNumWorkers(1),
			queue.WithPollInterval(10*time.Millisecond))
		require.NoError(t, err)
		startPool(t, pool)

		require.Eventually(t, func() bool {
			job, err := fctx.GetJob(ctx, id)
			return err == nil && job.Status == queue.StatusComplete
		}, 2*time.Second, 10*time.Millisecond)

		job, err := fctx.GetJob(ctx, id)
		require.NoError(t, err)
		assert.JSONEq(t, `{"echo":"\"hi\""}`, string(job.Result))
		assert.False(t, job.CompletedAt.IsZero())
		assert.True(t, registryHas(t, client, queue.RegistryCompleted, id))
		assert.Equal(t, 1, locations(t, client, id))

		stats := pool.Stats()
		assert.EqualValues(t, 1, stats.JobsProcessed)
		assert.Zero(t, stats.JobsFailed)
	})

	t.Run("retries a failing job until the budget is spent", func(t *testing.T) {
		t.Parallel()

		var attempts atomic.Int32
		handler := func(ctx context.Context, job *queue.Job) (any, error) {
			attempts.Add(1)
			return nil, errors.New("downstream unavailable")
		}
		fctx, _, client := newTestContext(t,
			queue.WithHandler(handler),
			queue.WithMaxRetries(2))
		ctx := context.Background()

		id, err := fctx.Enqueue(ctx, &queue.Job{Queue: "default"})
		require.NoError(t, err)

		pool, err := queue.NewPool(fctx,
			queue.WithNumWorkers(1),
			queue.WithPollInterval(10*time.Millisecond))
		require.NoError(t, err)
		startPool(t, pool)

		require.Eventually(t, func() bool {
			job, err := fctx.GetJob(ctx, id)
			return err == nil && job.Status == queue.StatusDead
		}, 2*time.Second, 10*time.Millisecond)

		// Budget of 2 means one initial attempt plus two retries.
		assert.EqualValues(t, 3, attempts.Load())

		job, err := fctx.GetJob(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 2, job.Retries)
		assert.Equal(t, "downstream unavailable", job.Reason)
		assert.True(t, registryHas(t, client, queue.RegistryDead, id))
		assert.Equal(t, 1, locations(t, client, id))

		assert.EqualValues(t, 3, pool.Stats().JobsFailed)
	})

	t.Run("a panicking handler dead-letters the job, not the worker", func(t *testing.T) {
		t.Parallel()

		handler := func(ctx context.Context, job *queue.Job) (any, error) {
			if string(job.Payload) == `"boom"` {
				panic("handler exploded")
			}
			return "ok", nil
		}
		fctx, _, _ := newTestContext(t,
			queue.WithHandler(handler),
			queue.WithMaxRetries(0))
		ctx := context.Background()

		badID, err := fctx.Enqueue(ctx, &queue.Job{Queue: "default", Payload: []byte(`"boom"`)})
		require.NoError(t, err)
		goodID, err := fctx.Enqueue(ctx, &queue.Job{Queue: "default"})
		require.NoError(t, err)

		pool, err := queue.NewPool(fctx,
			queue.WithNumWorkers(1),
			queue.WithPollInterval(10*time.Millisecond))
		require.NoError(t, err)
		startPool(t, pool)

		// The surviving worker still processes the job behind the panic.
		require.Eventually(t, func() bool {
			job, err := fctx.GetJob(ctx, goodID)
			return err == nil && job.Status == queue.StatusComplete
		}, 2*time.Second, 10*time.Millisecond)

		bad, err := fctx.GetJob(ctx, badID)
		require.NoError(t, err)
		assert.Equal(t, queue.StatusDead, bad.Status)
		assert.Contains(t, bad.Reason, "panic in handler")
	})

	t.Run("healthcheck reflects running state", func(t *testing.T) {
		t.Parallel()

		handler := func(ctx context.Context, job *queue.Job) (any, error) { return nil, nil }
		fctx, _, _ := newTestContext(t, queue.WithHandler(handler))

		pool, err := queue.NewPool(fctx, queue.WithPollInterval(10*time.Millisecond))
		require.NoError(t, err)

		err = pool.Healthcheck(context.Background())
		assert.ErrorIs(t, err, queue.ErrHealthcheckFailed)
		assert.ErrorIs(t, err, queue.ErrPoolNotRunning)

		startPool(t, pool)
		assert.NoError(t, pool.Healthcheck(context.Background()))

		require.NoError(t, pool.Stop())
		assert.ErrorIs(t, pool.Healthcheck(context.Background()), queue.ErrPoolNotRunning)
	})

	t.Run("run integrates with errgroup-style cancellation", func(t *testing.T) {
		t.Parallel()

		handler := func(ctx context.Context, job *queue.Job) (any, error) { return nil, nil }
		fctx, _, _ := newTestContext(t, queue.WithHandler(handler))

		pool, err := queue.NewPool(fctx, queue.WithPollInterval(10*time.Millisecond))
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		errCh := make(chan error, 1)
		go func() { errCh <- pool.Run(ctx)() }()

		require.Eventually(t, func() bool {
			return pool.Stats().IsRunning
		}, time.Second, 5*time.Millisecond)

		cancel()
		select {
		case err := <-errCh:
			assert.NoError(t, err, "cancellation is a clean shutdown")
		case <-time.After(2 * time.Second):
			t.Fatal("pool did not shut down after context cancellation")
		}
	})
}
