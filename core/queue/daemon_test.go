package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anthrax3/farmhand/core/queue"
)

func TestSweep(t *testing.T) {
	t.Parallel()

	t.Run("requeues stale in-flight jobs", func(t *testing.T) {
		t.Parallel()

		fctx, _, client := newTestContext(t, queue.WithInFlightTimeout(0))
		ctx := context.Background()

		id, err := fctx.Enqueue(ctx, &queue.Job{Queue: "default"})
		require.NoError(t, err)
		_, err = fctx.Dequeue(ctx, []string{"default"})
		require.NoError(t, err)
		require.True(t, registryHas(t, client, queue.RegistryInFlight, id))

		daemon, err := queue.NewDaemon(fctx)
		require.NoError(t, err)
		daemon.Sweep(ctx)

		assert.False(t, registryHas(t, client, queue.RegistryInFlight, id))
		ids, err := client.LRange(ctx, queueKey("default"), 0, -1).Result()
		require.NoError(t, err)
		assert.Equal(t, []string{id}, ids)
		assert.Equal(t, 1, locations(t, client, id))

		// The reclaimed job is claimable again.
		job, err := fctx.Dequeue(ctx, []string{"default"})
		require.NoError(t, err)
		assert.Equal(t, id, job.ID)
	})

	t.Run("drops in-flight entries whose record vanished", func(t *testing.T) {
		t.Parallel()

		fctx, _, client := newTestContext(t, queue.WithInFlightTimeout(0))
		ctx := context.Background()

		require.NoError(t, client.ZAdd(ctx, registryKey(queue.RegistryInFlight), redis.Z{
			Score:  float64(time.Now().Add(-time.Hour).Unix()),
			Member: "ghost",
		}).Err())

		daemon, err := queue.NewDaemon(fctx)
		require.NoError(t, err)
		daemon.Sweep(ctx)

		assert.False(t, registryHas(t, client, queue.RegistryInFlight, "ghost"))
	})

	t.Run("promotes due scheduled jobs onto their queue", func(t *testing.T) {
		t.Parallel()

		fctx, _, client := newTestContext(t)
		ctx := context.Background()

		id, err := fctx.RunAt(ctx, &queue.Job{Queue: "default"}, time.Now().Add(-time.Minute))
		require.NoError(t, err)
		require.True(t, registryHas(t, client, queue.RegistryScheduled, id))

		job, err := fctx.GetJob(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, queue.StatusScheduled, job.Status)

		daemon, err := queue.NewDaemon(fctx)
		require.NoError(t, err)
		daemon.Sweep(ctx)

		assert.False(t, registryHas(t, client, queue.RegistryScheduled, id))
		ids, err := client.LRange(ctx, queueKey("default"), 0, -1).Result()
		require.NoError(t, err)
		assert.Equal(t, []string{id}, ids)

		job, err = fctx.GetJob(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, queue.StatusQueued, job.Status)
		assert.Equal(t, 1, locations(t, client, id))
	})

	t.Run("leaves future scheduled jobs parked", func(t *testing.T) {
		t.Parallel()

		fctx, _, client := newTestContext(t)
		ctx := context.Background()

		id, err := fctx.RunIn(ctx, &queue.Job{Queue: "default"}, time.Hour)
		require.NoError(t, err)

		daemon, err := queue.NewDaemon(fctx)
		require.NoError(t, err)
		daemon.Sweep(ctx)

		assert.True(t, registryHas(t, client, queue.RegistryScheduled, id))
		length, err := client.LLen(ctx, queueKey("default")).Result()
		require.NoError(t, err)
		assert.Zero(t, length)
	})

	t.Run("purges dead-lettered records past retention", func(t *testing.T) {
		t.Parallel()

		fctx, _, client := newTestContext(t)
		ctx := context.Background()

		id, err := fctx.Enqueue(ctx, &queue.Job{Queue: "default"})
		require.NoError(t, err)
		job, err := fctx.Dequeue(ctx, []string{"default"})
		require.NoError(t, err)
		require.NoError(t, fctx.Kill(ctx, job, "handler failed"))

		// Age the registry entry past the dead-letter retention window.
		require.NoError(t, client.ZAdd(ctx, registryKey(queue.RegistryDead), redis.Z{
			Score:  float64(time.Now().Add(-800 * time.Hour).Unix()),
			Member: id,
		}).Err())

		daemon, err := queue.NewDaemon(fctx)
		require.NoError(t, err)
		daemon.Sweep(ctx)

		_, err = fctx.GetJob(ctx, id)
		assert.ErrorIs(t, err, queue.ErrJobNotFound)
		assert.False(t, registryHas(t, client, queue.RegistryDead, id))
		assert.Equal(t, 0, locations(t, client, id))
	})

	t.Run("tracks sweep statistics", func(t *testing.T) {
		t.Parallel()

		fctx, _, _ := newTestContext(t, queue.WithInFlightTimeout(0))
		ctx := context.Background()

		_, err := fctx.Enqueue(ctx, &queue.Job{Queue: "default"})
		require.NoError(t, err)
		_, err = fctx.Dequeue(ctx, []string{"default"})
		require.NoError(t, err)

		daemon, err := queue.NewDaemon(fctx)
		require.NoError(t, err)
		daemon.Sweep(ctx)
		daemon.Sweep(ctx)

		stats := daemon.Stats()
		assert.EqualValues(t, 2, stats.SweepsRun)
		assert.GreaterOrEqual(t, stats.MembersProcessed, int64(1))
		assert.Zero(t, stats.MemberFailures)
		assert.False(t, stats.IsRunning)
	})
}

func TestDaemonLifecycle(t *testing.T) {
	t.Parallel()

	t.Run("rejects nil context", func(t *testing.T) {
		t.Parallel()

		_, err := queue.NewDaemon(nil)
		assert.ErrorIs(t, err, queue.ErrClientNil)
	})

	t.Run("start and stop", func(t *testing.T) {
		t.Parallel()

		fctx, _, _ := newTestContext(t)
		daemon, err := queue.NewDaemon(fctx, queue.WithCleanupInterval(10*time.Millisecond))
		require.NoError(t, err)

		assert.ErrorIs(t, daemon.Healthcheck(context.Background()), queue.ErrDaemonNotRunning)

		errCh := make(chan error, 1)
		go func() { errCh <- daemon.Start(context.Background()) }()

		require.Eventually(t, func() bool {
			return daemon.Stats().IsRunning
		}, time.Second, 5*time.Millisecond)
		assert.NoError(t, daemon.Healthcheck(context.Background()))

		// Let at least one ticker-driven sweep land.
		require.Eventually(t, func() bool {
			return daemon.Stats().SweepsRun > 0
		}, time.Second, 5*time.Millisecond)

		require.NoError(t, daemon.Stop())
		assert.ErrorIs(t, <-errCh, context.Canceled)
		assert.False(t, daemon.Stats().IsRunning)

		assert.Error(t, daemon.Stop(), "second stop must fail")
	})

	t.Run("start twice fails", func(t *testing.T) {
		t.Parallel()

		fctx, _, _ := newTestContext(t)
		daemon, err := queue.NewDaemon(fctx, queue.WithCleanupInterval(time.Minute))
		require.NoError(t, err)

		go func() { _ = daemon.Start(context.Background()) }()
		require.Eventually(t, func() bool {
			return daemon.Stats().IsRunning
		}, time.Second, 5*time.Millisecond)
		t.Cleanup(func() { _ = daemon.Stop() })

		assert.Error(t, daemon.Start(context.Background()))
	})

	t.Run("run integrates with errgroup-style cancellation", func(t *testing.T) {
		t.Parallel()

		fctx, _, _ := newTestContext(t)
		daemon, err := queue.NewDaemon(fctx, queue.WithCleanupInterval(10*time.Millisecond))
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		errCh := make(chan error, 1)
		go func() { errCh <- daemon.Run(ctx)() }()

		require.Eventually(t, func() bool {
			return daemon.Stats().IsRunning
		}, time.Second, 5*time.Millisecond)

		cancel()
		select {
		case err := <-errCh:
			assert.NoError(t, err, "cancellation is a clean shutdown")
		case <-time.After(2 * time.Second):
			t.Fatal("daemon did not shut down after context cancellation")
		}
	})
}
