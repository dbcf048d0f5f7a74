package reconciler

import (
	"context"
	"time"

	"github.com/cellsync/reconciler/internal/cell"
	"github.com/cellsync/reconciler/internal/errkind"
	"github.com/cellsync/reconciler/internal/remote"
)

// bootstrap performs the three-step startup sequence from spec §4.5: warm
// snapshot load, a best-effort initial remote read and sync, then draining
// both pending queues. Per DESIGN.md's resolution of the simultaneous-
// recovery open question, the store queue drains before the remote queue.
func (r *Reconciler) bootstrap(ctx context.Context) error {
	_, _ = r.snapshot.LoadWarm(ctx)

	snap, result, err := r.remote.ReadRange(ctx)
	switch {
	case err != nil:
		r.remoteState.Observe(false)
	case result == remote.ResultOK:
		r.remoteState.Observe(true)
		if err := r.snapshot.Replace(ctx, snap); err != nil {
			r.log.WithError(err).Warn("failed to persist bootstrap snapshot")
		}
		for addr, value := range snap {
			if value.Empty() {
				continue
			}
			if err := r.applyRemoteChange(ctx, addr, value, true); err != nil {
				r.log.WithError(err).WithField("address", addr.String()).Warn("bootstrap sync upsert failed")
			}
		}
	default:
		// rate-limited or unreachable without a hard error: stay in
		// degraded mode on the warm snapshot.
	}

	r.drainPendingToStore(ctx)
	r.drainPendingToRemote(ctx)
	return nil
}

// pollLoop runs the periodic inbound poll on a ticker, skipping a tick if a
// poll is already in flight (spec §4.5 poll loop preamble).
func (r *Reconciler) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(r.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.poll(ctx)
		}
	}
}

// poll performs one inbound reconciliation pass (spec §4.5 steps 1-5).
func (r *Reconciler) poll(ctx context.Context) {
	if !r.pollInFlight.CompareAndSwap(false, true) {
		return
	}
	defer r.pollInFlight.Store(false)

	// Step 1: probe store liveness.
	storeErr := r.store.Ping(ctx)
	r.storeState.Observe(storeErr == nil)

	// Step 2: read the remote range.
	current, result, err := r.remote.ReadRange(ctx)
	if err != nil {
		r.remoteState.Observe(false)
		return
	}
	switch result {
	case remote.ResultRateLimited:
		r.rateLimited.Store(true)
		return
	case remote.ResultUnreachable:
		r.remoteState.Observe(false)
		return
	}
	r.rateLimited.Store(false)
	r.remoteState.Observe(true)

	// Step 3: diff against the previous snapshot.
	previous := r.snapshot.Get()
	entries := cell.Diff(current, previous)

	// Step 4: apply each change to the store, marking it as
	// reconciler-originated before the write so the IgnoreMark is always
	// observable within the write's critical section (invariant 2).
	for _, entry := range entries {
		if entry.Kind == cell.ChangeDelete {
			r.applyRemoteDelete(ctx, entry.Address)
			continue
		}
		if err := r.applyRemoteChange(ctx, entry.Address, entry.Value, true); err != nil {
			r.log.WithError(err).WithField("address", entry.Address.String()).Warn("inbound upsert failed")
		}
	}

	// Step 5: replace and persist the snapshot.
	if err := r.snapshot.Replace(ctx, current); err != nil {
		r.log.WithError(err).Warn("failed to persist snapshot after poll")
	}
}

// applyRemoteChange sets the IgnoreMark (before writing, per invariant 2),
// then upserts the value into the store with origin remote. On store
// offline it enqueues a pending:to-store entry instead of failing the poll.
func (r *Reconciler) applyRemoteChange(ctx context.Context, address cell.Address, value cell.Value, markIgnore bool) error {
	if markIgnore {
		if err := r.marks.Set(ctx, address); err != nil {
			r.log.WithError(err).Warn("failed to set ignore mark")
		}
	}
	origin := cell.NewTag(cell.OriginRemote)
	if err := r.store.Upsert(ctx, address, value, origin); err != nil {
		r.storeState.Observe(false)
		return r.pendingToStore.Enqueue(ctx, cell.PendingChange{
			Address: address, Value: value, Origin: origin, Timestamp: time.Now(),
		})
	}
	r.storeState.Observe(true)
	return nil
}

func (r *Reconciler) applyRemoteDelete(ctx context.Context, address cell.Address) {
	if err := r.marks.Set(ctx, address); err != nil {
		r.log.WithError(err).Warn("failed to set ignore mark")
	}
	if err := r.store.Delete(ctx, address); err != nil {
		r.storeState.Observe(false)
		if enqErr := r.pendingToStore.Enqueue(ctx, cell.PendingChange{
			Address: address, Value: "", Origin: cell.NewTag(cell.OriginRemote), Timestamp: time.Now(),
		}); enqErr != nil {
			r.log.WithError(enqErr).Warn("failed to enqueue pending delete")
		}
		return
	}
	r.storeState.Observe(true)
}

func (r *Reconciler) drainPendingToStore(ctx context.Context) {
	n, err := r.pendingToStore.Drain(ctx, func(change cell.PendingChange) error {
		if change.Value.Empty() {
			return r.store.Delete(ctx, change.Address)
		}
		return r.store.Upsert(ctx, change.Address, change.Value, change.Origin)
	})
	if err != nil {
		r.log.WithError(err).Warn("pending-to-store drain failed")
		return
	}
	if n > 0 {
		r.statsMu.Lock()
		r.stats.pendingToStoreReplayed += n
		r.statsMu.Unlock()
		r.log.WithField("count", n).Info("replayed pending-to-store entries")
	}
}

func (r *Reconciler) drainPendingToRemote(ctx context.Context) {
	n, err := r.pendingToRemote.Drain(ctx, func(change cell.PendingChange) error {
		result, writeErr := r.remote.WriteSingle(ctx, change.Address, change.Value)
		if writeErr == nil && result != remote.ResultOK {
			// A rate-limited write performed no I/O; keep the entry queued.
			return errkind.New(errkind.RateLimited, nil)
		}
		return writeErr
	})
	if err != nil {
		r.log.WithError(err).Warn("pending-to-remote drain failed")
		return
	}
	if n > 0 {
		r.statsMu.Lock()
		r.stats.pendingToRemoteReplayed += n
		r.statsMu.Unlock()
		r.log.WithField("count", n).Info("replayed pending-to-remote entries")
	}
}
