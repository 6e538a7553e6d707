package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// jobRecord is the Redis hash representation of a Job. Times are stored as
// unix seconds so registry scores and record fields share one clock format.
type jobRecord struct {
	ID          string `redis:"id"`
	Queue       string `redis:"queue"`
	Status      string `redis:"status"`
	Payload     string `redis:"payload"`
	Result      string `redis:"result"`
	Reason      string `redis:"reason"`
	Retries     int    `redis:"retries"`
	MaxRetries  int    `redis:"max_retries"`
	RunAt       int64  `redis:"run_at"`
	CreatedAt   int64  `redis:"created_at"`
	CompletedAt int64  `redis:"completed_at"`
}

// fields returns the hash field map for HSET. An explicit map keeps partial
// updates and full saves symmetric.
func (r *jobRecord) fields() map[string]any {
	return map[string]any{
		"id":           r.ID,
		"queue":        r.Queue,
		"status":       r.Status,
		"payload":      r.Payload,
		"result":       r.Result,
		"reason":       r.Reason,
		"retries":      r.Retries,
		"max_retries":  r.MaxRetries,
		"run_at":       r.RunAt,
		"created_at":   r.CreatedAt,
		"completed_at": r.CompletedAt,
	}
}

func toRecord(job *Job) *jobRecord {
	rec := &jobRecord{
		ID:         job.ID,
		Queue:      job.Queue,
		Status:     string(job.Status),
		Payload:    string(job.Payload),
		Result:     string(job.Result),
		Reason:     job.Reason,
		Retries:    job.Retries,
		MaxRetries: job.MaxRetries,
		CreatedAt:  job.CreatedAt.Unix(),
	}
	if !job.RunAt.IsZero() {
		rec.RunAt = job.RunAt.Unix()
	}
	if !job.CompletedAt.IsZero() {
		rec.CompletedAt = job.CompletedAt.Unix()
	}
	return rec
}

func fromRecord(rec *jobRecord) *Job {
	job := &Job{
		ID:         rec.ID,
		Queue:      rec.Queue,
		Status:     Status(rec.Status),
		Reason:     rec.Reason,
		Retries:    rec.Retries,
		MaxRetries: rec.MaxRetries,
		CreatedAt:  time.Unix(rec.CreatedAt, 0),
	}
	if rec.Payload != "" {
		job.Payload = json.RawMessage(rec.Payload)
	}
	if rec.Result != "" {
		job.Result = json.RawMessage(rec.Result)
	}
	if rec.RunAt != 0 {
		job.RunAt = time.Unix(rec.RunAt, 0)
	}
	if rec.CompletedAt != 0 {
		job.CompletedAt = time.Unix(rec.CompletedAt, 0)
	}
	return job
}

// normalizeJob fills defaults on a job before it is admitted: a generated
// identifier, initial status, creation timestamp, and the context's retry budget.
func (c *Context) normalizeJob(job *Job) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = StatusQueued
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	if job.MaxRetries == 0 {
		job.MaxRetries = c.maxRetries
	}
}

// validateJob fails fast on malformed jobs before any Redis mutation.
func validateJob(job *Job) error {
	if job.Queue == "" {
		return ErrQueueRequired
	}
	return nil
}

// SaveJob persists the job's full record.
func (c *Context) SaveJob(ctx context.Context, job *Job) error {
	if err := c.client.HSet(ctx, c.jobKey(job.ID), toRecord(job).fields()).Err(); err != nil {
		return fmt.Errorf("failed to save job %s: %w", job.ID, err)
	}
	return nil
}

// GetJob fetches a job record by identifier.
func (c *Context) GetJob(ctx context.Context, id string) (*Job, error) {
	res := c.client.HGetAll(ctx, c.jobKey(id))
	fields, err := res.Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch job %s: %w", id, err)
	}
	if len(fields) == 0 {
		return nil, ErrJobNotFound
	}

	var rec jobRecord
	if err := res.Scan(&rec); err != nil {
		return nil, fmt.Errorf("failed to parse job %s: %w", id, err)
	}
	return fromRecord(&rec), nil
}

// updateJob applies a partial field update to a job record.
func (c *Context) updateJob(ctx context.Context, id string, fields map[string]any) error {
	if err := c.client.HSet(ctx, c.jobKey(id), fields).Err(); err != nil {
		return fmt.Errorf("failed to update job %s: %w", id, err)
	}
	return nil
}

// DeleteJob hard-removes a job record and its registry memberships.
// Used by completed and dead-letter cleanup.
func (c *Context) DeleteJob(ctx context.Context, id string) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, c.jobKey(id))
		pipe.ZRem(ctx, c.registryKey(RegistryCompleted), id)
		pipe.ZRem(ctx, c.registryKey(RegistryDead), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete job %s: %w", id, err)
	}
	return nil
}

// jobTTL returns the retention period appropriate to a terminal status,
// or zero when the status carries no expiry.
func (c *Context) jobTTL(status Status) time.Duration {
	switch status {
	case StatusComplete:
		return c.completedTTL
	case StatusDead:
		return c.deadTTL
	default:
		return 0
	}
}

// SetJobTTL applies the retention expiry appropriate to the job's current status.
func (c *Context) SetJobTTL(ctx context.Context, job *Job) error {
	ttl := c.jobTTL(job.Status)
	if ttl <= 0 {
		return nil
	}
	if err := c.client.Expire(ctx, c.jobKey(job.ID), ttl).Err(); err != nil {
		return fmt.Errorf("failed to set ttl on job %s: %w", job.ID, err)
	}
	return nil
}
