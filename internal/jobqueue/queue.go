package jobqueue

import (
	"context"
	"time"

	"github.com/cellsync/reconciler/internal/kv"
)

// queueKey is the KV list the ingress envelope queue is durable on.
const queueKey = "jobqueue:envelopes"

// defaultCapacity bounds the queue the way the teacher's fileEnvelopeQueue
// bounds its in-flight envelope count.
const defaultCapacity = 1024

// Queue is a capacity-bounded, KV-durable FIFO of encoded envelopes. It is
// grounded on the teacher's fileEnvelopeQueue (TryEnqueue/Dequeue/Depth over
// a capacity-bounded backing store), generalized from a JSON file to the
// shared KV's list operations.
type Queue struct {
	kv           kv.Store
	key          string
	capacity     int
	pollInterval time.Duration
}

// New returns a Queue backed by store. capacity <= 0 uses defaultCapacity.
func New(store kv.Store, capacity int) *Queue {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Queue{kv: store, key: queueKey, capacity: capacity, pollInterval: 20 * time.Millisecond}
}

// TryEnqueue appends raw to the tail if under capacity, returning false
// without blocking if the queue is full.
func (q *Queue) TryEnqueue(ctx context.Context, raw string) (bool, error) {
	n, err := q.kv.ListLen(ctx, q.key)
	if err != nil {
		return false, err
	}
	if n >= q.capacity {
		return false, nil
	}
	if err := q.kv.ListPushTail(ctx, q.key, raw); err != nil {
		return false, err
	}
	return true, nil
}

// Dequeue blocks, polling at pollInterval, until an envelope is available or
// ctx is cancelled.
func (q *Queue) Dequeue(ctx context.Context) (string, bool) {
	for {
		raw, ok, err := q.kv.ListPopHead(ctx, q.key)
		if err == nil && ok {
			return raw, true
		}
		select {
		case <-ctx.Done():
			return "", false
		case <-time.After(q.pollInterval):
		}
	}
}

// Requeue puts raw back at the head, used when a dequeued job cannot be
// processed right now and must be retried without losing its place.
func (q *Queue) Requeue(ctx context.Context, raw string) error {
	return q.kv.ListPushHead(ctx, q.key, raw)
}

// Depth reports the current queue length.
func (q *Queue) Depth(ctx context.Context) (int, error) {
	return q.kv.ListLen(ctx, q.key)
}
