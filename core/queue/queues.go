package queue

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// dequeueScript claims a job atomically across an ordered list of candidate
// queues. Plain transactions cannot express "try queue 1, fall through to
// queue 2" under concurrent workers, so the branching runs server-side.
//
// Contract (versioned, tested independently of the worker loop):
//
//	KEYS[1..n-1]  candidate queue lists, in visitation order
//	KEYS[n]       the in-flight registry
//	ARGV[1]       current unix time as a string
//
// Pops the tail of the first non-empty queue (FIFO within a queue) and, in the
// same atomic step, adds the popped identifier to the in-flight registry scored
// by ARGV[1]. Returns the identifier, or nil when every queue is empty.
var dequeueScript = redis.NewScript(`
for i = 1, #KEYS - 1 do
	local id = redis.call('rpop', KEYS[i])
	if id then
		redis.call('zadd', KEYS[#KEYS], ARGV[1], id)
		return id
	end
end
return false
`)

// QueueOrder computes a concrete visitation sequence from queue metadata.
// Each queue expands into weight repeated occurrences, the expanded multiset
// is shuffled, and the result is stable-sorted descending by priority. The
// shuffle happens before the sort so that the stable sort preserves the random
// order among queues of equal priority; any queue with strictly higher
// priority still lands ahead of every lower-priority queue.
//
// Callers must recompute the order on every dequeue attempt so that weights
// keep balancing statistically over time.
func QueueOrder(queues []QueueConfig) []string {
	expanded := make([]QueueConfig, 0, len(queues))
	for _, q := range queues {
		weight := q.Weight
		if weight < 1 {
			weight = 1
		}
		for n := 0; n < weight; n++ {
			expanded = append(expanded, q)
		}
	}

	rand.Shuffle(len(expanded), func(i, j int) {
		expanded[i], expanded[j] = expanded[j], expanded[i]
	})
	sort.SliceStable(expanded, func(i, j int) bool {
		return expanded[i].Priority > expanded[j].Priority
	})

	names := make([]string, len(expanded))
	for i, q := range expanded {
		names[i] = q.Name
	}
	return names
}

// pushJob appends the three mutations that make a job queued: record the queue
// name as known, prepend the identifier to the queue list, and flip the status.
// Callers supply the transaction boundary.
func (c *Context) pushJob(ctx context.Context, pipe redis.Pipeliner, id, queueName string) {
	pipe.SAdd(ctx, c.knownQueuesKey(), queueName)
	pipe.LPush(ctx, c.queueKey(queueName), id)
	pipe.HSet(ctx, c.jobKey(id), "status", string(StatusQueued))
}

// Push makes a persisted job visible on its queue. All three mutations commit
// together or not at all; a job record that exists without being reachable
// from any queue is an invariant violation.
func (c *Context) Push(ctx context.Context, job *Job) error {
	if err := validateJob(job); err != nil {
		return err
	}

	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		c.pushJob(ctx, pipe, job.ID, job.Queue)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to push job %s to queue %q: %w", job.ID, job.Queue, err)
	}

	job.Status = StatusQueued
	return nil
}

// Dequeue scans the candidate queues in order and claims the oldest job from
// the first non-empty one. The pop and the in-flight registration happen in a
// single atomic script so a claimed identifier can never be lost between the
// two; the status field is updated immediately after, once the job is already
// safe in the in-flight registry. Returns ErrNoJobAvailable when every
// candidate queue is empty.
func (c *Context) Dequeue(ctx context.Context, queueNames []string) (*Job, error) {
	if len(queueNames) == 0 {
		return nil, ErrNoJobAvailable
	}

	keys := make([]string, 0, len(queueNames)+1)
	for _, name := range queueNames {
		keys = append(keys, c.queueKey(name))
	}
	keys = append(keys, c.registryKey(RegistryInFlight))

	now := strconv.FormatInt(time.Now().Unix(), 10)
	res, err := dequeueScript.Run(ctx, c.client, keys, now).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoJobAvailable
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue script failed: %w", err)
	}

	id, ok := res.(string)
	if !ok {
		return nil, fmt.Errorf("dequeue script returned unexpected value %v", res)
	}

	if err := c.updateJob(ctx, id, map[string]any{"status": string(StatusInFlight)}); err != nil {
		return nil, err
	}

	return c.GetJob(ctx, id)
}
