package queue

import (
	"context"
	"encoding/json"
	"time"
)

// DefaultQueueName is the queue used when a job does not name one explicitly.
const DefaultQueueName = "default"

// Status tracks the lifecycle state of a job through the queue system.
type Status string

const (
	// StatusScheduled marks a job parked in the scheduled registry until its run-at time.
	StatusScheduled Status = "scheduled"
	// StatusQueued marks a job waiting in a queue list.
	StatusQueued Status = "queued"
	// StatusInFlight marks a job claimed by a worker but not yet finished.
	StatusInFlight Status = "inflight"
	// StatusComplete marks a successfully finished job, retained until its TTL lapses.
	StatusComplete Status = "complete"
	// StatusDead marks a job whose handler failed beyond its retry budget.
	StatusDead Status = "dead"
)

// Job represents a unit of background work. The payload and result are opaque
// to the queue engine; interpretation belongs entirely to the handler.
type Job struct {
	ID          string          `json:"id"`
	Queue       string          `json:"queue"`
	Status      Status          `json:"status"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	Reason      string          `json:"reason,omitempty"`
	Retries     int             `json:"retries"`
	MaxRetries  int             `json:"max_retries"`
	RunAt       time.Time       `json:"run_at,omitzero"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt time.Time       `json:"completed_at,omitzero"`
}

// QueueConfig describes a queue's scheduling metadata. Queues are not declared
// entities with their own lifecycle; they exist as soon as a job targets them.
// Priority orders queues strictly (higher drains first), weight controls relative
// dequeue frequency among queues of equal priority.
type QueueConfig struct {
	Name     string
	Priority int
	Weight   int
}

// Handler executes a claimed job. The returned result is recorded on the job
// when it completes; it is marshaled to JSON and otherwise opaque to the engine.
type Handler func(ctx context.Context, job *Job) (result any, err error)
