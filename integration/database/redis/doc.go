// Package redis provides production-ready Redis client initialization and
// health checking.
//
// It wraps the go-redis client with URL validation, retry logic, and a ping
// verification so a returned client is known to be connected. Both redis://
// and rediss:// (TLS) URL schemes are supported.
//
// # Usage
//
//	cfg := redis.Config{
//		ConnectionURL:  "redis://localhost:6379/0",
//		RetryAttempts:  3,
//		RetryInterval:  5 * time.Second,
//		ConnectTimeout: 30 * time.Second,
//	}
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
// # Health Checking
//
// Healthcheck returns a function suitable for readiness probes or HTTP health
// endpoints; it performs a ping to verify connectivity:
//
//	check := redis.Healthcheck(client)
//	if err := check(ctx); err != nil {
//		// Redis unhealthy
//	}
//
// # Errors
//
// The package defines domain-specific errors checkable with errors.Is:
// ErrFailedToParseRedisConnString, ErrRedisNotReady, ErrEmptyConnectionURL,
// and ErrHealthcheckFailed. They wrap the underlying go-redis errors while
// providing stable types for retry logic and user-facing messages.
package redis
