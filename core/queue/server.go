package queue

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

// Server bundles the worker pool and the cleanup daemon behind one lifecycle.
// It is the process-level unit: start it once per worker process, stop it to
// drain every concurrent component before the Redis connection pool is released.
type Server struct {
	fctx   *Context
	pool   *Pool
	daemon *Daemon
	logger *slog.Logger

	// Background lifecycle for StartServer/StopServer style usage
	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan error
	ownsRDB bool
}

// ServerOption configures a Server instance.
type ServerOption func(*Server) error

// WithServerLogger sets the logger for the server.
// Components maintain their own loggers (discard by default).
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) error {
		if logger == nil {
			return nil // Just use the default logger
		}
		s.logger = logger
		return nil
	}
}

// WithPoolOptions applies options to the worker pool component.
func WithPoolOptions(opts ...PoolOption) ServerOption {
	return func(s *Server) error {
		pool, err := NewPool(s.fctx, opts...)
		if err != nil {
			return err
		}
		s.pool = pool
		return nil
	}
}

// WithDaemonOptions applies options to the cleanup daemon component.
func WithDaemonOptions(opts ...DaemonOption) ServerOption {
	return func(s *Server) error {
		daemon, err := NewDaemon(s.fctx, opts...)
		if err != nil {
			return err
		}
		s.daemon = daemon
		return nil
	}
}

// WithCloseClientOnStop makes Stop close the context's Redis client after all
// components have exited. Useful when the server owns the connection pool.
func WithCloseClientOnStop() ServerOption {
	return func(s *Server) error {
		s.ownsRDB = true
		return nil
	}
}

// NewServer creates a server around the given context with default pool and
// daemon components. Options may replace either component.
func NewServer(fctx *Context, opts ...ServerOption) (*Server, error) {
	if fctx == nil {
		return nil, ErrClientNil
	}

	s := &Server{
		fctx:   fctx,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	pool, err := NewPool(fctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}
	s.pool = pool

	daemon, err := NewDaemon(fctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create cleanup daemon: %w", err)
	}
	s.daemon = daemon

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, fmt.Errorf("failed to apply server option: %w", err)
		}
	}

	return s, nil
}

// NewServerFromConfig creates a Server using configuration for both components.
// Additional options can override config values.
func NewServerFromConfig(cfg Config, fctx *Context, opts ...ServerOption) (*Server, error) {
	serverOpts := append([]ServerOption{
		WithPoolOptions(
			WithNumWorkers(cfg.NumWorkers),
			WithPollInterval(cfg.PollInterval),
			WithPoolShutdownTimeout(cfg.ShutdownTimeout),
		),
		WithDaemonOptions(
			WithCleanupInterval(cfg.CleanupInterval),
			WithDaemonShutdownTimeout(cfg.ShutdownTimeout),
		),
	}, opts...)

	return NewServer(fctx, serverOpts...)
}

// Run starts the worker pool and the cleanup daemon in an error group and
// blocks until the context is cancelled or a component fails.
func (s *Server) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "queue server starting",
		slog.Int("queues", len(s.fctx.queues)))

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(s.pool.Run(ctx))
	eg.Go(s.daemon.Run(ctx))

	err := eg.Wait()

	if s.ownsRDB {
		if closeErr := s.fctx.client.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close redis client: %w", closeErr)
		}
	}

	return err
}

// Pool returns the worker pool component.
func (s *Server) Pool() *Pool {
	return s.pool
}

// Daemon returns the cleanup daemon component.
func (s *Server) Daemon() *Daemon {
	return s.daemon
}

// Context returns the queue context the server operates on.
func (s *Server) Context() *Context {
	return s.fctx
}

// start launches Run on a background context so the server can be managed
// through the StartServer/StopServer handle style.
func (s *Server) start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan error, 1)

	go func() {
		s.done <- s.Run(ctx)
	}()
}

// Stop broadcasts the shutdown signal and blocks until the worker pool and
// the cleanup daemon have both exited.
func (s *Server) Stop() error {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return fmt.Errorf("queue server not started")
	}

	cancel()
	return <-done
}

// StartServer creates a context from config plus options, then creates and
// launches a server in the background. The returned handle is stopped with
// StopServer or (*Server).Stop.
func StartServer(cfg Config, client redis.UniversalClient, opts ...ContextOption) (*Server, error) {
	fctx, err := NewContextFromConfig(cfg, client, opts...)
	if err != nil {
		return nil, err
	}

	srv, err := NewServerFromConfig(cfg, fctx)
	if err != nil {
		return nil, err
	}

	srv.start()
	return srv, nil
}

// StopServer gracefully stops a server started with StartServer.
func StopServer(s *Server) error {
	return s.Stop()
}
