package queue

import (
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Context is the process-scoped handle bundling the Redis client, queue
// configuration, key namespace prefix, handler reference, and retention
// policy. It is immutable after creation; reconfiguration means creating a
// new Context. Multiple contexts may coexist (for tests or isolation), but
// only one is current for the package-level convenience entry points.
type Context struct {
	client          redis.UniversalClient
	prefix          string
	queues          []QueueConfig
	handler         Handler
	maxRetries      int
	inFlightTimeout time.Duration
	completedTTL    time.Duration
	deadTTL         time.Duration
	logger          *slog.Logger
}

// ContextOption is a functional option for configuring a Context.
type ContextOption func(*Context)

// WithPrefix sets the key namespace prefix applied to every Redis key, so
// multiple logical deployments can share one Redis instance.
func WithPrefix(prefix string) ContextOption {
	return func(c *Context) {
		if prefix != "" {
			c.prefix = prefix
		}
	}
}

// WithQueues sets the queue metadata the context serves.
func WithQueues(queues ...QueueConfig) ContextOption {
	return func(c *Context) {
		if len(queues) > 0 {
			c.queues = queues
		}
	}
}

// WithQueueNames configures queues by name only, with default priority and weight.
func WithQueueNames(names ...string) ContextOption {
	return func(c *Context) {
		if len(names) == 0 {
			return
		}
		queues := make([]QueueConfig, len(names))
		for i, name := range names {
			queues[i] = QueueConfig{Name: name, Weight: 1}
		}
		c.queues = queues
	}
}

// WithHandler sets the job execution callback invoked by workers.
func WithHandler(h Handler) ContextOption {
	return func(c *Context) {
		if h != nil {
			c.handler = h
		}
	}
}

// WithMaxRetries sets the default retry budget for jobs that do not carry their own.
func WithMaxRetries(n int) ContextOption {
	return func(c *Context) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithInFlightTimeout sets the staleness threshold after which a claimed but
// unfinished job is considered orphaned and requeued by the cleanup daemon.
func WithInFlightTimeout(d time.Duration) ContextOption {
	return func(c *Context) {
		if d >= 0 {
			c.inFlightTimeout = d
		}
	}
}

// WithCompletedTTL sets the retention period for completed job records.
func WithCompletedTTL(d time.Duration) ContextOption {
	return func(c *Context) {
		if d > 0 {
			c.completedTTL = d
		}
	}
}

// WithDeadTTL sets the retention period for dead-lettered job records.
// Dead jobs are typically retained longer so failures can be inspected manually.
func WithDeadTTL(d time.Duration) ContextOption {
	return func(c *Context) {
		if d > 0 {
			c.deadTTL = d
		}
	}
}

// WithContextLogger sets the logger used by store and queue operations.
func WithContextLogger(logger *slog.Logger) ContextOption {
	return func(c *Context) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewContext creates an immutable queue context around the given Redis client.
// The new context becomes the process-wide current context.
func NewContext(client redis.UniversalClient, opts ...ContextOption) (*Context, error) {
	if client == nil {
		return nil, ErrClientNil
	}

	defaults := DefaultConfig()
	c := &Context{
		client:          client,
		prefix:          defaults.Prefix,
		queues:          []QueueConfig{{Name: DefaultQueueName, Weight: 1}},
		maxRetries:      defaults.MaxRetries,
		inFlightTimeout: defaults.InFlightTimeout,
		completedTTL:    defaults.CompletedTTL,
		deadTTL:         defaults.DeadTTL,
		logger:          slog.New(slog.NewTextHandler(io.Discard, nil)), // No-op logger by default
	}

	for _, opt := range opts {
		opt(c)
	}

	if len(c.queues) == 0 {
		return nil, ErrNoQueues
	}

	setCurrent(c)
	return c, nil
}

// NewContextFromConfig creates a Context from configuration.
// Additional options can override config values.
func NewContextFromConfig(cfg Config, client redis.UniversalClient, opts ...ContextOption) (*Context, error) {
	// Option functions handle zero/empty values appropriately
	allOpts := append([]ContextOption{
		WithPrefix(cfg.Prefix),
		WithQueueNames(cfg.Queues...),
		WithMaxRetries(cfg.MaxRetries),
		WithInFlightTimeout(cfg.InFlightTimeout),
		WithCompletedTTL(cfg.CompletedTTL),
		WithDeadTTL(cfg.DeadTTL),
	}, opts...)

	return NewContext(client, allOpts...)
}

// Queues returns a copy of the queue configuration served by this context.
func (c *Context) Queues() []QueueConfig {
	queues := make([]QueueConfig, len(c.queues))
	copy(queues, c.queues)
	return queues
}

// Client returns the underlying Redis client.
func (c *Context) Client() redis.UniversalClient {
	return c.client
}

// Key helpers. All keys live under the context's namespace prefix.

func (c *Context) knownQueuesKey() string {
	return c.prefix + "queues"
}

func (c *Context) queueKey(name string) string {
	return c.prefix + "queue:" + name
}

func (c *Context) jobKey(id string) string {
	return c.prefix + "job:" + id
}

func (c *Context) registryKey(name string) string {
	return c.prefix + "registry:" + name
}

// Process-wide current context. Explicit handle passing is the primary API;
// this single slot only serves the package-level convenience entry points.
var (
	currentMu sync.RWMutex
	current   *Context
)

func setCurrent(c *Context) {
	currentMu.Lock()
	defer currentMu.Unlock()
	current = c
}

// Current returns the process-wide current context, set by the most recent
// NewContext call.
func Current() (*Context, error) {
	currentMu.RLock()
	defer currentMu.RUnlock()

	if current == nil {
		return nil, ErrNoCurrentContext
	}
	return current, nil
}
