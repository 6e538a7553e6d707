package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Registry names. Each registry is a sorted set of job identifiers scored by
// a timestamp: claim time for in-flight, due time for scheduled, and finish
// time for the terminal registries.
const (
	RegistryInFlight  = "inflight"
	RegistryScheduled = "scheduled"
	RegistryCompleted = "completed"
	RegistryDead      = "dead"
)

// registryPolicy pairs a registry with its cleanup behavior. The cutoff
// bounds which members are due for action at a given instant; cleanup is
// applied per member and must be safe to retry.
type registryPolicy struct {
	name    string
	cutoff  func(now time.Time) time.Time
	cleanup func(ctx context.Context, id string) error
}

func (c *Context) registryPolicies() []registryPolicy {
	return []registryPolicy{
		{
			name:    RegistryInFlight,
			cutoff:  func(now time.Time) time.Time { return now.Add(-c.inFlightTimeout) },
			cleanup: c.requeueStale,
		},
		{
			name:    RegistryScheduled,
			cutoff:  func(now time.Time) time.Time { return now },
			cleanup: c.activateScheduled,
		},
		{
			name:    RegistryCompleted,
			cutoff:  func(now time.Time) time.Time { return now.Add(-c.completedTTL) },
			cleanup: c.purgeExpired,
		},
		{
			name:    RegistryDead,
			cutoff:  func(now time.Time) time.Time { return now.Add(-c.deadTTL) },
			cleanup: c.purgeExpired,
		},
	}
}

// dueMembers returns registry members with score at or below the cutoff,
// ordered by ascending score (oldest first).
func (c *Context) dueMembers(ctx context.Context, name string, cutoff time.Time) ([]string, error) {
	members, err := c.client.ZRangeByScore(ctx, c.registryKey(name), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(cutoff.Unix(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to scan registry %q: %w", name, err)
	}
	return members, nil
}

// requeueStale reclaims a job that was claimed but never finished within the
// staleness threshold, pushing it back onto its original queue. An in-flight
// entry whose job record has vanished is dropped from the registry.
func (c *Context) requeueStale(ctx context.Context, id string) error {
	job, err := c.GetJob(ctx, id)
	if errors.Is(err, ErrJobNotFound) {
		return c.client.ZRem(ctx, c.registryKey(RegistryInFlight), id).Err()
	}
	if err != nil {
		return err
	}
	return c.requeue(ctx, id, job.Queue)
}

// activateScheduled moves a due scheduled job onto its target queue through
// the normal push path, removing it from the scheduled registry in the same
// transaction.
func (c *Context) activateScheduled(ctx context.Context, id string) error {
	job, err := c.GetJob(ctx, id)
	if errors.Is(err, ErrJobNotFound) {
		return c.client.ZRem(ctx, c.registryKey(RegistryScheduled), id).Err()
	}
	if err != nil {
		return err
	}

	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, c.registryKey(RegistryScheduled), id)
		c.pushJob(ctx, pipe, id, job.Queue)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to activate scheduled job %s: %w", id, err)
	}
	return nil
}

// purgeExpired removes a terminal job record whose retention has lapsed.
// The store-level TTL is the primary expiry mechanism; this cleanup covers
// entries whose TTL never fired.
func (c *Context) purgeExpired(ctx context.Context, id string) error {
	return c.DeleteJob(ctx, id)
}
