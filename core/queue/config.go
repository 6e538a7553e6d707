package queue

import "time"

// Config holds the configuration for the queue context, worker pool, and
// cleanup daemon. Designed for environment-based configuration using popular
// env parsing libraries.
type Config struct {
	// Context configuration
	Prefix     string   `env:"FARMHAND_PREFIX" envDefault:"farmhand:"`
	Queues     []string `env:"FARMHAND_QUEUES" envDefault:"default" envSeparator:","`
	MaxRetries int      `env:"FARMHAND_MAX_RETRIES" envDefault:"3"`

	// Worker pool configuration
	NumWorkers      int           `env:"FARMHAND_NUM_WORKERS" envDefault:"2"`
	PollInterval    time.Duration `env:"FARMHAND_POLL_INTERVAL" envDefault:"1s"`
	ShutdownTimeout time.Duration `env:"FARMHAND_SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Cleanup daemon configuration
	CleanupInterval time.Duration `env:"FARMHAND_CLEANUP_INTERVAL" envDefault:"15s"`

	// Recovery and retention policy
	InFlightTimeout time.Duration `env:"FARMHAND_INFLIGHT_TIMEOUT" envDefault:"5m"`
	CompletedTTL    time.Duration `env:"FARMHAND_COMPLETED_TTL" envDefault:"1h"`
	DeadTTL         time.Duration `env:"FARMHAND_DEAD_TTL" envDefault:"720h"`
}

// DefaultConfig returns sensible defaults for production use.
func DefaultConfig() Config {
	return Config{
		Prefix:          "farmhand:",
		Queues:          []string{DefaultQueueName},
		MaxRetries:      3,
		NumWorkers:      2,
		PollInterval:    time.Second,
		ShutdownTimeout: 30 * time.Second,
		CleanupInterval: 15 * time.Second,
		InFlightTimeout: 5 * time.Minute,
		CompletedTTL:    time.Hour,
		DeadTTL:         720 * time.Hour,
	}
}
