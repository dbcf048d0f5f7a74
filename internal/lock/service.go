// Package lock implements the per-cell mutual-exclusion service (spec
// §4.1): atomic acquire-with-retry and check-and-delete release on top of
// the shared KV.
package lock

import (
	"context"
	"time"

	"github.com/cellsync/reconciler/internal/cell"
	"github.com/cellsync/reconciler/internal/errkind"
	"github.com/cellsync/reconciler/internal/kv"
)

// Options configures a Service. Zero values fall back to the spec's
// defaults.
type Options struct {
	LeaseTTL   time.Duration // default 5s
	RetryDelay time.Duration // default 200ms
	MaxAttempts int           // default 15
}

func (o Options) withDefaults() Options {
	if o.LeaseTTL <= 0 {
		o.LeaseTTL = 5 * time.Second
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 200 * time.Millisecond
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 15
	}
	return o
}

// Service is the distributed per-cell lease manager.
type Service struct {
	store kv.Store
	opts  Options
}

// New returns a Service backed by store.
func New(store kv.Store, opts Options) *Service {
	return &Service{store: store, opts: opts.withDefaults()}
}

// Acquire attempts to take the lease on address for owner, retrying on
// contention up to MaxAttempts times with RetryDelay between attempts. When
// every attempt is denied it returns false with an errkind.Contention error;
// a KV failure is returned as-is and a cancelled ctx returns ctx.Err(), so
// callers tell "denied" from a hard failure via errkind.
func (s *Service) Acquire(ctx context.Context, address cell.Address, owner string) (bool, error) {
	key := kv.LeaseKey(address.String())
	for attempt := 1; attempt <= s.opts.MaxAttempts; attempt++ {
		ok, err := s.store.SetNX(ctx, key, owner, s.opts.LeaseTTL)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
		if attempt == s.opts.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(s.opts.RetryDelay):
		}
	}
	return false, errkind.New(errkind.Contention, nil)
}

// Release deletes the lease on address iff it is still held by owner. A
// lease that has since expired or been reassigned is left untouched: this
// is a silent no-op, never an error.
func (s *Service) Release(ctx context.Context, address cell.Address, owner string) error {
	key := kv.LeaseKey(address.String())
	_, err := s.store.CompareAndDelete(ctx, key, owner)
	return err
}
