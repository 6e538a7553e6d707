package queue_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/anthrax3/farmhand/core/queue"
)

const testPrefix = "test:"

// newTestContext spins up an in-process Redis and a queue context around it.
func newTestContext(t *testing.T, opts ...queue.ContextOption) (*queue.Context, *miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	allOpts := append([]queue.ContextOption{queue.WithPrefix(testPrefix)}, opts...)
	fctx, err := queue.NewContext(client, allOpts...)
	require.NoError(t, err)

	return fctx, mr, client
}

func queueKey(name string) string    { return testPrefix + "queue:" + name }
func jobKey(id string) string        { return testPrefix + "job:" + id }
func registryKey(name string) string { return testPrefix + "registry:" + name }

// registryHas reports whether the named registry contains the job identifier.
func registryHas(t *testing.T, client *redis.Client, registry, id string) bool {
	t.Helper()

	err := client.ZScore(context.Background(), registryKey(registry), id).Err()
	if err == redis.Nil {
		return false
	}
	require.NoError(t, err)
	return true
}

// locations counts how many places hold the job identifier: every known queue
// list plus the four registries. A live job must occupy exactly one.
func locations(t *testing.T, client *redis.Client, id string) int {
	t.Helper()
	ctx := context.Background()

	count := 0

	queues, err := client.SMembers(ctx, testPrefix+"queues").Result()
	require.NoError(t, err)
	for _, name := range queues {
		ids, err := client.LRange(ctx, queueKey(name), 0, -1).Result()
		require.NoError(t, err)
		for _, member := range ids {
			if member == id {
				count++
			}
		}
	}

	for _, registry := range []string{
		queue.RegistryInFlight,
		queue.RegistryScheduled,
		queue.RegistryCompleted,
		queue.RegistryDead,
	} {
		if registryHas(t, client, registry, id) {
			count++
		}
	}

	return count
}
