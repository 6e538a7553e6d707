// Package queue provides a Redis-backed background job queue with priority
// and weight based queue selection, crash recovery, delayed scheduling, and
// dead-lettering. Producers enqueue jobs tagged with a target queue; a pool
// of workers claims and executes them; a cleanup daemon reconciles the
// recovery registries against wall-clock time.
//
// # Features
//
//   - Atomic enqueue and claim built on Redis transactions and a Lua script
//   - Strict priority ordering with weight-proportional selection among equals
//   - At-least-once delivery: orphaned in-flight jobs are requeued automatically
//   - Delayed jobs via a scheduled registry polled by the cleanup daemon
//   - Configurable retry budget with a dead-letter registry for exhausted jobs
//   - Graceful shutdown with proper cleanup
//   - Retention TTLs on terminal job records
//
// # Basic Usage
//
// Create a context around a Redis client, start a server, and enqueue jobs:
//
//	import "github.com/anthrax3/farmhand/core/queue"
//
//	fctx, err := queue.NewContext(client,
//		queue.WithQueues(
//			queue.QueueConfig{Name: "critical", Priority: 10, Weight: 1},
//			queue.QueueConfig{Name: "default", Weight: 2},
//			queue.QueueConfig{Name: "bulk", Weight: 1},
//		),
//		queue.WithHandler(func(ctx context.Context, job *queue.Job) (any, error) {
//			// Execute the job's payload here.
//			return map[string]bool{"ok": true}, nil
//		}),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	srv, err := queue.StartServer(queue.DefaultConfig(), client)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer queue.StopServer(srv)
//
//	id, err := fctx.Enqueue(ctx, &queue.Job{
//		Queue:   "default",
//		Payload: json.RawMessage(`{"email":"user@example.com"}`),
//	})
//
// Delayed jobs park in the scheduled registry until their due time:
//
//	fctx.RunIn(ctx, &queue.Job{Queue: "default", Payload: payload}, 5*time.Minute)
//
// A scheduled job becomes eligible at the cleanup daemon's first tick after
// its due time, so dispatch latency is bounded by the daemon's interval.
//
// # Queue Selection
//
// Queues with strictly higher priority are drained to emptiness before any
// lower-priority queue is considered. Among queues of equal priority the
// selection frequency is proportional to weight, with a random tie-break per
// dequeue attempt. Within one queue, jobs are served strictly FIFO.
//
// # Delivery Semantics
//
// The design provides at-least-once execution, not exactly-once. A worker
// that crashes after claiming a job leaves an orphaned entry in the in-flight
// registry; once the entry's claim time ages past the staleness threshold,
// the cleanup daemon pushes the job back onto its queue. A handler that is
// merely slow can therefore run twice; handlers should be idempotent.
package queue
