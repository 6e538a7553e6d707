package queue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Pool runs N concurrent workers. Each worker repeatedly claims a job across
// the priority-ordered queues, invokes the handler, and routes the outcome:
// complete on success, retry while budget remains, dead-letter otherwise.
// Workers coordinate exclusively through Redis; there is no shared mutable
// job state in process.
type Pool struct {
	fctx   *Context
	poolID uuid.UUID

	// Configuration
	numWorkers      int
	pollInterval    time.Duration
	shutdownTimeout time.Duration
	logger          *slog.Logger

	// State management
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Observability metrics
	jobsProcessed atomic.Int64
	jobsFailed    atomic.Int64
	activeJobs    atomic.Int32
}

// PoolStats provides observability metrics for monitoring and debugging.
type PoolStats struct {
	JobsProcessed int64 // Total number of successfully completed jobs
	JobsFailed    int64 // Total number of failed handler invocations
	ActiveJobs    int32 // Number of jobs currently being processed
	IsRunning     bool  // Whether the pool is currently running
}

// PoolOption is a functional option for configuring a worker pool.
type PoolOption func(*poolOptions)

type poolOptions struct {
	numWorkers      int
	pollInterval    time.Duration
	shutdownTimeout time.Duration
	logger          *slog.Logger
}

// WithNumWorkers sets the number of concurrent workers.
func WithNumWorkers(n int) PoolOption {
	return func(o *poolOptions) {
		if n > 0 {
			o.numWorkers = n
		}
	}
}

// WithPollInterval sets the idle backoff between dequeue attempts when every
// queue is empty. The idle wait is the worker loop's only interruption point.
func WithPollInterval(d time.Duration) PoolOption {
	return func(o *poolOptions) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithPoolShutdownTimeout sets the graceful shutdown timeout.
func WithPoolShutdownTimeout(d time.Duration) PoolOption {
	return func(o *poolOptions) {
		if d > 0 {
			o.shutdownTimeout = d
		}
	}
}

// WithPoolLogger sets the logger for the pool.
func WithPoolLogger(logger *slog.Logger) PoolOption {
	return func(o *poolOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewPool creates a worker pool bound to the given context. The context must
// carry a handler before the pool is started.
func NewPool(fctx *Context, opts ...PoolOption) (*Pool, error) {
	if fctx == nil {
		return nil, ErrClientNil
	}

	// Default options
	options := &poolOptions{
		numWorkers:      2,
		pollInterval:    time.Second,
		shutdownTimeout: 30 * time.Second,
		logger:          slog.New(slog.NewTextHandler(io.Discard, nil)), // No-op logger by default
	}

	for _, opt := range opts {
		opt(options)
	}

	return &Pool{
		fctx:            fctx,
		poolID:          uuid.New(),
		numWorkers:      options.numWorkers,
		pollInterval:    options.pollInterval,
		shutdownTimeout: options.shutdownTimeout,
		logger:          options.logger,
	}, nil
}

// NewPoolFromConfig creates a Pool from configuration.
// Additional options can override config values.
func NewPoolFromConfig(cfg Config, fctx *Context, opts ...PoolOption) (*Pool, error) {
	allOpts := append([]PoolOption{
		WithNumWorkers(cfg.NumWorkers),
		WithPollInterval(cfg.PollInterval),
		WithPoolShutdownTimeout(cfg.ShutdownTimeout),
	}, opts...)

	return NewPool(fctx, allOpts...)
}

// Start launches the workers and blocks until the context is cancelled.
// Use Run() for errgroup pattern or call this in a goroutine.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.cancel != nil {
		p.mu.Unlock()
		return fmt.Errorf("worker pool already started")
	}
	if p.fctx.handler == nil {
		p.mu.Unlock()
		return ErrHandlerNil
	}
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.mu.Unlock()

	p.logger.InfoContext(p.ctx, "worker pool started",
		slog.String("pool_id", p.poolID.String()),
		slog.Int("workers", p.numWorkers))

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go func(worker int) {
			defer p.wg.Done()
			p.workLoop(worker)
		}(i)
	}

	<-p.ctx.Done()
	p.logger.InfoContext(context.Background(), "worker pool stopping")
	return p.ctx.Err()
}

// Stop gracefully shuts down the pool with a timeout: the cancellation signal
// is broadcast and Stop blocks until every worker has exited its loop.
// Returns an error if the shutdown timeout is exceeded.
func (p *Pool) Stop() error {
	p.mu.Lock()
	if p.cancel == nil {
		p.mu.Unlock()
		return fmt.Errorf("worker pool not started")
	}
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()

	cancel()

	p.logger.InfoContext(context.Background(), "worker pool stopping, waiting for active jobs to complete",
		slog.String("pool_id", p.poolID.String()),
		slog.Duration("timeout", p.shutdownTimeout))

	ctx, ctxCancel := context.WithTimeout(context.Background(), p.shutdownTimeout)
	defer ctxCancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.InfoContext(context.Background(), "worker pool stopped cleanly",
			slog.String("pool_id", p.poolID.String()))
		return nil
	case <-ctx.Done():
		p.logger.WarnContext(context.Background(), "worker pool shutdown timeout exceeded - some jobs may be abandoned",
			slog.String("pool_id", p.poolID.String()),
			slog.Duration("timeout", p.shutdownTimeout))
		return fmt.Errorf("shutdown timeout exceeded after %s", p.shutdownTimeout)
	}
}

// Run provides errgroup compatibility for coordinated lifecycle management.
// Returns a function that starts the pool, monitors context cancellation,
// and performs graceful shutdown when the context is cancelled.
func (p *Pool) Run(ctx context.Context) func() error {
	return func() error {
		errCh := make(chan error, 1)
		go func() {
			errCh <- p.Start(ctx)
		}()

		select {
		case <-ctx.Done():
			_ = p.Stop() // Ignore stop error in normal shutdown
			<-errCh      // Wait for Start() to exit
			return nil
		case err := <-errCh:
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
	}
}

// workLoop is one worker's claim-execute-route cycle. The queue visitation
// order is recomputed on every attempt so weights keep balancing over time.
// Shutdown is observed only at the idle point; a claimed job is always
// carried through to a terminal or requeued state.
func (p *Pool) workLoop(worker int) {
	for {
		select {
		case <-p.ctx.Done():
			return
		default:
		}

		job, err := p.fctx.Dequeue(p.ctx, QueueOrder(p.fctx.queues))
		if err != nil {
			if !errors.Is(err, ErrNoJobAvailable) && !errors.Is(err, context.Canceled) {
				p.logger.ErrorContext(p.ctx, "failed to claim job",
					slog.String("pool_id", p.poolID.String()),
					slog.Int("worker", worker),
					slog.String("error", err.Error()))
			}

			select {
			case <-p.ctx.Done():
				return
			case <-time.After(p.pollInterval):
			}
			continue
		}

		p.process(worker, job)
	}
}

// process executes a claimed job and routes the outcome.
func (p *Pool) process(worker int, job *Job) {
	start := time.Now()

	p.activeJobs.Add(1)
	defer p.activeJobs.Add(-1)

	// A panicking handler must not take the worker down with it; the panic
	// becomes an ordinary job failure.
	var result any
	err := func() (retErr error) {
		defer func() {
			if r := recover(); r != nil {
				retErr = fmt.Errorf("panic in handler: %v", r)
				p.logger.ErrorContext(p.ctx, "handler panicked",
					slog.String("pool_id", p.poolID.String()),
					slog.String("job_id", job.ID),
					slog.Any("panic", r))
			}
		}()

		// Handlers run on an independent context: pool shutdown does not
		// interrupt a job that is already executing. No timeout is imposed at
		// this layer; a stuck handler holds one worker slot until the
		// in-flight staleness threshold triggers crash recovery.
		result, retErr = p.fctx.handler(context.Background(), job)
		return retErr
	}()

	duration := time.Since(start)

	if err != nil {
		p.handleFailure(job, err, duration)
		return
	}

	if err := p.fctx.Complete(context.Background(), job, result); err != nil {
		p.logger.ErrorContext(p.ctx, "failed to mark job complete",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()))
		return
	}

	p.jobsProcessed.Add(1)

	p.logger.InfoContext(p.ctx, "job completed",
		slog.String("pool_id", p.poolID.String()),
		slog.String("job_id", job.ID),
		slog.String("queue", job.Queue),
		slog.Duration("duration", duration))
}

// handleFailure routes a failed job: re-push with an incremented retry count
// while budget remains, dead-letter otherwise.
func (p *Pool) handleFailure(job *Job, execErr error, duration time.Duration) {
	p.jobsFailed.Add(1)

	p.logger.ErrorContext(p.ctx, "job failed",
		slog.String("pool_id", p.poolID.String()),
		slog.String("job_id", job.ID),
		slog.String("queue", job.Queue),
		slog.Int("retries", job.Retries),
		slog.Int("max_retries", job.MaxRetries),
		slog.Duration("duration", duration),
		slog.String("error", execErr.Error()))

	ctx := context.Background()

	if job.Retries >= job.MaxRetries {
		if err := p.fctx.Kill(ctx, job, execErr.Error()); err != nil {
			p.logger.ErrorContext(ctx, "failed to dead-letter job",
				slog.String("job_id", job.ID),
				slog.String("error", err.Error()))
			return
		}

		p.logger.WarnContext(ctx, "job moved to dead-letter registry",
			slog.String("pool_id", p.poolID.String()),
			slog.String("job_id", job.ID),
			slog.String("queue", job.Queue))
		return
	}

	if err := p.fctx.Retry(ctx, job); err != nil {
		p.logger.ErrorContext(ctx, "failed to requeue job for retry",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()))
	}
}

// Stats returns current pool statistics for observability and monitoring.
// This method is thread-safe and can be called at any time.
func (p *Pool) Stats() PoolStats {
	p.mu.RLock()
	isRunning := p.cancel != nil
	p.mu.RUnlock()

	return PoolStats{
		JobsProcessed: p.jobsProcessed.Load(),
		JobsFailed:    p.jobsFailed.Load(),
		ActiveJobs:    p.activeJobs.Load(),
		IsRunning:     isRunning,
	}
}

// Healthcheck validates that the pool is operational and not saturated.
// Returns nil if healthy, or an error describing the health issue.
// This method is thread-safe and suitable for use in health check endpoints.
//
// The returned error can be checked using errors.Is:
//
//	if errors.Is(err, queue.ErrPoolNotRunning) { ... }
//	if errors.Is(err, queue.ErrPoolOverloaded) { ... }
func (p *Pool) Healthcheck(ctx context.Context) error {
	stats := p.Stats()

	if !stats.IsRunning {
		return errors.Join(ErrHealthcheckFailed, ErrPoolNotRunning)
	}

	if stats.ActiveJobs >= int32(p.numWorkers) {
		return errors.Join(ErrHealthcheckFailed, ErrPoolOverloaded,
			fmt.Errorf("%d/%d workers busy", stats.ActiveJobs, p.numWorkers))
	}

	return nil
}
