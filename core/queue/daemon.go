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
)

// Daemon reconciles the registries against wall-clock time: stale in-flight
// jobs are requeued, due scheduled jobs are promoted onto their queues, and
// expired terminal records are purged. It coordinates with workers only
// through Redis state.
type Daemon struct {
	fctx *Context

	// Configuration
	interval        time.Duration
	shutdownTimeout time.Duration
	logger          *slog.Logger

	// State management
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Observability metrics
	sweepsRun        atomic.Int64
	membersProcessed atomic.Int64
	memberFailures   atomic.Int64
	activeSweeps     atomic.Int32
}

// DaemonStats provides observability metrics for monitoring and debugging.
type DaemonStats struct {
	SweepsRun        int64 // Total number of completed registry sweeps
	MembersProcessed int64 // Total registry members a cleanup was applied to
	MemberFailures   int64 // Total per-member cleanup failures (logged, not fatal)
	ActiveSweeps     int32 // Number of sweeps currently running
	IsRunning        bool  // Whether the daemon is currently running
}

// DaemonOption is a functional option for configuring a Daemon.
type DaemonOption func(*daemonOptions)

type daemonOptions struct {
	interval        time.Duration
	shutdownTimeout time.Duration
	logger          *slog.Logger
}

// WithCleanupInterval sets the polling interval between registry sweeps.
func WithCleanupInterval(d time.Duration) DaemonOption {
	return func(o *daemonOptions) {
		if d > 0 {
			o.interval = d
		}
	}
}

// WithDaemonShutdownTimeout sets the graceful shutdown timeout.
func WithDaemonShutdownTimeout(d time.Duration) DaemonOption {
	return func(o *daemonOptions) {
		if d > 0 {
			o.shutdownTimeout = d
		}
	}
}

// WithDaemonLogger sets the logger for the daemon.
func WithDaemonLogger(logger *slog.Logger) DaemonOption {
	return func(o *daemonOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewDaemon creates a cleanup daemon bound to the given context.
func NewDaemon(fctx *Context, opts ...DaemonOption) (*Daemon, error) {
	if fctx == nil {
		return nil, ErrClientNil
	}

	// Default options
	options := &daemonOptions{
		interval:        15 * time.Second,
		shutdownTimeout: 30 * time.Second,
		logger:          slog.New(slog.NewTextHandler(io.Discard, nil)), // No-op logger by default
	}

	for _, opt := range opts {
		opt(options)
	}

	return &Daemon{
		fctx:            fctx,
		interval:        options.interval,
		shutdownTimeout: options.shutdownTimeout,
		logger:          options.logger,
	}, nil
}

// NewDaemonFromConfig creates a Daemon from configuration.
// Additional options can override config values.
func NewDaemonFromConfig(cfg Config, fctx *Context, opts ...DaemonOption) (*Daemon, error) {
	allOpts := append([]DaemonOption{
		WithCleanupInterval(cfg.CleanupInterval),
		WithDaemonShutdownTimeout(cfg.ShutdownTimeout),
	}, opts...)

	return NewDaemon(fctx, allOpts...)
}

// Start begins the daemon's periodic registry sweeps. This is a blocking
// operation that runs until the context is cancelled. Use Run() for errgroup
// pattern or call this in a goroutine.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.cancel != nil {
		d.mu.Unlock()
		return fmt.Errorf("cleanup daemon already started")
	}
	d.ctx, d.cancel = context.WithCancel(ctx)
	d.mu.Unlock()

	d.logger.InfoContext(d.ctx, "cleanup daemon started",
		slog.Duration("interval", d.interval))

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			d.logger.InfoContext(context.Background(), "cleanup daemon stopping")
			return d.ctx.Err()
		case <-ticker.C:
			d.sweepWithWait()
		}
	}
}

// Stop gracefully shuts down the daemon with a timeout.
// Returns an error if the shutdown timeout is exceeded.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if d.cancel == nil {
		d.mu.Unlock()
		return fmt.Errorf("cleanup daemon not started")
	}
	cancel := d.cancel
	d.cancel = nil
	d.mu.Unlock()

	cancel()

	ctx, ctxCancel := context.WithTimeout(context.Background(), d.shutdownTimeout)
	defer ctxCancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.InfoContext(context.Background(), "cleanup daemon stopped cleanly")
		return nil
	case <-ctx.Done():
		d.logger.WarnContext(context.Background(), "cleanup daemon shutdown timeout exceeded",
			slog.Duration("timeout", d.shutdownTimeout))
		return fmt.Errorf("shutdown timeout exceeded after %s", d.shutdownTimeout)
	}
}

// Run provides errgroup compatibility for coordinated lifecycle management.
// Returns a function that starts the daemon, monitors context cancellation,
// and performs graceful shutdown when the context is cancelled.
func (d *Daemon) Run(ctx context.Context) func() error {
	return func() error {
		errCh := make(chan error, 1)
		go func() {
			errCh <- d.Start(ctx)
		}()

		select {
		case <-ctx.Done():
			_ = d.Stop() // Ignore stop error in normal shutdown
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

// sweepWithWait wraps Sweep with WaitGroup tracking for graceful shutdown.
func (d *Daemon) sweepWithWait() {
	// Mutex protects against shutdown race: Must verify daemon is still running
	// AND add to waitgroup atomically, otherwise Stop() might wait on incomplete count
	d.mu.RLock()
	if d.cancel == nil {
		d.mu.RUnlock()
		return
	}
	d.wg.Add(1)
	d.mu.RUnlock()

	defer d.wg.Done()

	d.activeSweeps.Add(1)
	defer d.activeSweeps.Add(-1)

	// Use context.Background() so an in-progress sweep finishes its current
	// atomic step even when d.ctx is cancelled mid-sweep.
	d.Sweep(context.Background())
}

// Sweep runs one pass over every registry, applying each registry's cleanup
// to its due members in ascending score order. A failing member is logged and
// skipped; a single bad entry must not halt recovery.
func (d *Daemon) Sweep(ctx context.Context) {
	now := time.Now()

	for _, policy := range d.fctx.registryPolicies() {
		members, err := d.fctx.dueMembers(ctx, policy.name, policy.cutoff(now))
		if err != nil {
			d.logger.ErrorContext(ctx, "failed to scan registry",
				slog.String("registry", policy.name),
				slog.String("error", err.Error()))
			continue
		}

		for _, id := range members {
			if err := policy.cleanup(ctx, id); err != nil {
				d.memberFailures.Add(1)
				d.logger.ErrorContext(ctx, "registry cleanup failed for member",
					slog.String("registry", policy.name),
					slog.String("job_id", id),
					slog.String("error", err.Error()))
				continue
			}
			d.membersProcessed.Add(1)
		}

		if len(members) > 0 {
			d.logger.DebugContext(ctx, "registry sweep applied",
				slog.String("registry", policy.name),
				slog.Int("members", len(members)))
		}
	}

	d.sweepsRun.Add(1)
}

// Stats returns current daemon statistics for observability and monitoring.
// This method is thread-safe and can be called at any time.
func (d *Daemon) Stats() DaemonStats {
	d.mu.RLock()
	isRunning := d.cancel != nil
	d.mu.RUnlock()

	return DaemonStats{
		SweepsRun:        d.sweepsRun.Load(),
		MembersProcessed: d.membersProcessed.Load(),
		MemberFailures:   d.memberFailures.Load(),
		ActiveSweeps:     d.activeSweeps.Load(),
		IsRunning:        isRunning,
	}
}

// Healthcheck validates that the daemon is running. Returns nil if healthy.
// This method is thread-safe and suitable for use in health check endpoints.
func (d *Daemon) Healthcheck(ctx context.Context) error {
	if !d.Stats().IsRunning {
		return errors.Join(ErrHealthcheckFailed, ErrDaemonNotRunning)
	}
	return nil
}
