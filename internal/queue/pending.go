// Package queue implements the durable offline queue (spec §4.7): two FIFO
// lists in the shared KV, pending:to-remote and pending:to-store, drained on
// connectivity recovery. Grounded on the teacher's file_queue.go shape, with
// the KV's list operations standing in for the teacher's JSON-file-backed
// queue.
package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cellsync/reconciler/internal/cell"
	"github.com/cellsync/reconciler/internal/kv"
)

// entry is the wire form of a PendingChange stored in the KV list.
type entry struct {
	Address   string    `json:"address"`
	Value     string    `json:"value"`
	Origin    string    `json:"origin"`
	Timestamp time.Time `json:"timestamp"`
}

// Pending manages one of the two durable FIFO lists.
type Pending struct {
	store kv.Store
	key   string
}

// NewToRemote returns the pending:to-remote queue.
func NewToRemote(store kv.Store) *Pending {
	return &Pending{store: store, key: kv.PendingToRemoteKey}
}

// NewToStore returns the pending:to-store queue.
func NewToStore(store kv.Store) *Pending {
	return &Pending{store: store, key: kv.PendingToStoreKey}
}

// Enqueue appends a change to the tail of the queue.
func (p *Pending) Enqueue(ctx context.Context, change cell.PendingChange) error {
	e := entry{
		Address:   change.Address.String(),
		Value:     string(change.Value),
		Origin:    string(change.Origin),
		Timestamp: change.Timestamp,
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return p.store.ListPushTail(ctx, p.key, string(payload))
}

// requeue is the re-enqueue-on-failure strategy documented in DESIGN.md:
// push the failed element back onto the tail (not the head), so a
// persistently-failing head element cannot starve the rest of the queue.
func (p *Pending) requeue(ctx context.Context, payload string) error {
	return p.store.ListPushTail(ctx, p.key, payload)
}

// Len reports the current queue depth.
func (p *Pending) Len(ctx context.Context) (int, error) {
	return p.store.ListLen(ctx, p.key)
}

// Drain pops elements one at a time and calls apply on each. On apply
// success it continues to the next element; on apply failure it re-enqueues
// the element (per the documented strategy above) and stops draining,
// matching spec §4.7's "abort the drain" requirement. Drain returns the
// number of elements successfully replayed.
func (p *Pending) Drain(ctx context.Context, apply func(cell.PendingChange) error) (int, error) {
	replayed := 0
	for {
		payload, ok, err := p.store.ListPopHead(ctx, p.key)
		if err != nil {
			return replayed, err
		}
		if !ok {
			return replayed, nil
		}
		var e entry
		if err := json.Unmarshal([]byte(payload), &e); err != nil {
			// Malformed entries cannot succeed by retry; drop and continue.
			continue
		}
		change, err := e.toChange()
		if err != nil {
			continue
		}
		if err := apply(change); err != nil {
			if requeueErr := p.requeue(ctx, payload); requeueErr != nil {
				return replayed, requeueErr
			}
			return replayed, nil
		}
		replayed++
		select {
		case <-ctx.Done():
			return replayed, ctx.Err()
		default:
		}
	}
}

func (e entry) toChange() (cell.PendingChange, error) {
	addr, err := cell.ParseAddress(e.Address)
	if err != nil {
		return cell.PendingChange{}, err
	}
	return cell.PendingChange{
		Address:   addr,
		Value:     cell.Value(e.Value),
		Origin:    cell.Tag(e.Origin),
		Timestamp: e.Timestamp,
	}, nil
}
