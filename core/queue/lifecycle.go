package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Complete marks a claimed job as successfully finished: the result and
// completion timestamp are recorded, the retention expiry is set, and the
// identifier moves from the in-flight registry to the completed registry.
// All mutations commit in one transaction.
func (c *Context) Complete(ctx context.Context, job *Job, result any) error {
	var resultJSON []byte
	if result != nil {
		b, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("failed to marshal result for job %s: %w", job.ID, err)
		}
		resultJSON = b
	}

	now := time.Now()
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, c.jobKey(job.ID), map[string]any{
			"status":       string(StatusComplete),
			"result":       string(resultJSON),
			"completed_at": now.Unix(),
		})
		pipe.Expire(ctx, c.jobKey(job.ID), c.completedTTL)
		pipe.ZRem(ctx, c.registryKey(RegistryInFlight), job.ID)
		pipe.ZAdd(ctx, c.registryKey(RegistryCompleted), redis.Z{Score: float64(now.Unix()), Member: job.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to complete job %s: %w", job.ID, err)
	}

	job.Status = StatusComplete
	job.Result = resultJSON
	job.CompletedAt = now
	return nil
}

// Kill dead-letters a job: the failure reason is recorded, the identifier
// moves from the in-flight registry to the dead-letter registry, and the
// record gets the dead-letter retention expiry.
func (c *Context) Kill(ctx context.Context, job *Job, reason string) error {
	now := time.Now()
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, c.jobKey(job.ID), map[string]any{
			"status":       string(StatusDead),
			"reason":       reason,
			"completed_at": now.Unix(),
		})
		pipe.Expire(ctx, c.jobKey(job.ID), c.deadTTL)
		pipe.ZRem(ctx, c.registryKey(RegistryInFlight), job.ID)
		pipe.ZAdd(ctx, c.registryKey(RegistryDead), redis.Z{Score: float64(now.Unix()), Member: job.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to dead-letter job %s: %w", job.ID, err)
	}

	job.Status = StatusDead
	job.Reason = reason
	return nil
}

// Retry re-pushes a failed job onto its queue with an incremented retry
// counter. The increment, the in-flight removal, and the push commit together.
func (c *Context) Retry(ctx context.Context, job *Job) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, c.jobKey(job.ID), "retries", 1)
		pipe.ZRem(ctx, c.registryKey(RegistryInFlight), job.ID)
		c.pushJob(ctx, pipe, job.ID, job.Queue)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to retry job %s: %w", job.ID, err)
	}

	job.Retries++
	job.Status = StatusQueued
	return nil
}

// requeue moves an orphaned in-flight job back onto its queue. This is the
// only back-edge in the job state machine and models worker-crash recovery.
func (c *Context) requeue(ctx context.Context, id, queueName string) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, c.registryKey(RegistryInFlight), id)
		c.pushJob(ctx, pipe, id, queueName)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to requeue job %s: %w", id, err)
	}
	return nil
}
