package queue

import "errors"

// Package-level sentinel errors. Check with errors.Is; operations wrap these
// with additional context where useful.
var (
	// ErrClientNil is returned when a component is constructed without a Redis client.
	ErrClientNil = errors.New("redis client cannot be nil")

	// ErrHandlerNil is returned when a worker pool is started without a handler.
	ErrHandlerNil = errors.New("job handler cannot be nil")

	// ErrQueueRequired is returned by validation when a job has no target queue.
	ErrQueueRequired = errors.New("job must have a target queue")

	// ErrNoQueues is returned when a context is created without any queue configuration.
	ErrNoQueues = errors.New("at least one queue must be configured")

	// ErrNoJobAvailable is returned by Dequeue when every candidate queue is empty.
	ErrNoJobAvailable = errors.New("no job available")

	// ErrJobNotFound is returned when a job record does not exist in the store.
	ErrJobNotFound = errors.New("job not found")

	// ErrNoCurrentContext is returned by package-level entry points when no
	// context has been registered as current.
	ErrNoCurrentContext = errors.New("no current queue context")

	// ErrHealthcheckFailed is the base error for all failed health checks.
	ErrHealthcheckFailed = errors.New("healthcheck failed")

	// ErrPoolNotRunning indicates the worker pool is not started.
	ErrPoolNotRunning = errors.New("worker pool is not running")

	// ErrPoolOverloaded indicates every worker slot is busy.
	ErrPoolOverloaded = errors.New("worker pool is overloaded")

	// ErrDaemonNotRunning indicates the cleanup daemon is not started.
	ErrDaemonNotRunning = errors.New("cleanup daemon is not running")
)
