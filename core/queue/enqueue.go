package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Enqueue validates and persists a job, then makes it visible on its queue.
// The job's identifier is generated when absent and returned.
func (c *Context) Enqueue(ctx context.Context, job *Job) (string, error) {
	if err := validateJob(job); err != nil {
		return "", err
	}
	c.normalizeJob(job)

	if err := c.SaveJob(ctx, job); err != nil {
		return "", err
	}
	if err := c.Push(ctx, job); err != nil {
		return "", err
	}
	return job.ID, nil
}

// RunAt persists the job as scheduled and parks it in the scheduled registry
// scored by the given timestamp instead of pushing it to a queue. The job
// becomes eligible for queueing at the cleanup daemon's first tick after the
// timestamp, so dispatch latency is bounded by the daemon's polling interval.
func (c *Context) RunAt(ctx context.Context, job *Job, at time.Time) (string, error) {
	if err := validateJob(job); err != nil {
		return "", err
	}
	job.Status = StatusScheduled
	job.RunAt = at
	c.normalizeJob(job)

	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, c.jobKey(job.ID), toRecord(job).fields())
		pipe.ZAdd(ctx, c.registryKey(RegistryScheduled), redis.Z{Score: float64(at.Unix()), Member: job.ID})
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to schedule job %s: %w", job.ID, err)
	}
	return job.ID, nil
}

// RunIn schedules the job to run after the given delay. See RunAt.
func (c *Context) RunIn(ctx context.Context, job *Job, delay time.Duration) (string, error) {
	return c.RunAt(ctx, job, time.Now().Add(delay))
}

// Package-level convenience entry points operating on the current context.
// Explicit handle passing through Context methods remains the primary API.

// Enqueue adds a job to its queue using the current context.
func Enqueue(ctx context.Context, job *Job) (string, error) {
	c, err := Current()
	if err != nil {
		return "", err
	}
	return c.Enqueue(ctx, job)
}

// RunAt schedules a job for a point in time using the current context.
func RunAt(ctx context.Context, job *Job, at time.Time) (string, error) {
	c, err := Current()
	if err != nil {
		return "", err
	}
	return c.RunAt(ctx, job, at)
}

// RunIn schedules a job after a delay using the current context.
func RunIn(ctx context.Context, job *Job, delay time.Duration) (string, error) {
	c, err := Current()
	if err != nil {
		return "", err
	}
	return c.RunIn(ctx, job, delay)
}
