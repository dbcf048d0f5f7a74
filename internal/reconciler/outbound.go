package reconciler

import (
	"context"
	"time"

	"github.com/cellsync/reconciler/internal/cell"
	"github.com/cellsync/reconciler/internal/remote"
)

// runOutboundPass is the debounce timer's callback: the outbound
// synchronizer's single-writer reentrant-locked region (spec §4.6, §5). A
// second call while one is in flight is a no-op, matching "no two outbound
// sync passes execute concurrently."
func (r *Reconciler) runOutboundPass(ctx context.Context) {
	if !r.outboundInFlight.CompareAndSwap(false, true) {
		return
	}
	defer r.outboundInFlight.Store(false)

	if !r.dirty.Swap(false) {
		return
	}

	cells, err := r.store.ReadAll(ctx)
	if err != nil {
		r.storeState.Observe(false)
		cells, err = r.degradedReadFromSnapshotDB(ctx)
		if err != nil {
			r.log.WithError(err).Warn("outbound pass aborted: store offline with no cached snapshot")
			return
		}
	} else {
		r.storeState.Observe(true)
		r.persistStoreSnapshotCache(ctx, cells)
	}

	remoteSnapshot, result, rerr := r.remote.ReadRange(ctx)
	if rerr != nil || result == remote.ResultUnreachable {
		r.remoteState.Observe(false)
		r.enqueueAllNonRemote(ctx, cells)
		return
	}
	if result == remote.ResultRateLimited {
		r.rateLimited.Store(true)
		return
	}
	r.rateLimited.Store(false)
	r.remoteState.Observe(true)

	writes := r.buildOutboundBatch(cells, remoteSnapshot)
	if len(writes) == 0 {
		return
	}

	writeResult, werr := r.remote.WriteBatch(ctx, writes)
	if werr != nil || writeResult == remote.ResultUnreachable {
		r.remoteState.Observe(false)
		r.enqueueWrites(ctx, writes)
		return
	}
	if writeResult == remote.ResultRateLimited {
		r.rateLimited.Store(true)
		return
	}
	r.rateLimited.Store(false)
	r.remoteState.Observe(true)

	for _, w := range writes {
		if err := r.store.UpdateOriginIfNotRemote(ctx, w.Address); err != nil {
			r.log.WithError(err).WithField("address", w.Address.String()).Warn("failed to rewrite origin after push")
		}
		r.snapshot.Overwrite(w.Address, w.Value)
	}
	if err := r.snapshot.Replace(ctx, r.snapshot.Get()); err != nil {
		r.log.WithError(err).Warn("failed to persist snapshot after outbound push")
	}
}

// buildOutboundBatch implements spec §4.6 step 4: push every stored cell
// whose origin is not remote and whose value differs from the remote side,
// plus deletes for addresses present (non-empty) remotely but absent from
// the store read.
func (r *Reconciler) buildOutboundBatch(cells []cell.StoredCell, remoteSnapshot cell.Snapshot) []remote.Write {
	storeAddrs := make(map[cell.Address]struct{}, len(cells))
	var writes []remote.Write
	for _, c := range cells {
		storeAddrs[c.Address] = struct{}{}
		if c.Origin.IsRemote() {
			continue
		}
		if remoteSnapshot[c.Address] == c.Value {
			continue
		}
		writes = append(writes, remote.Write{Address: c.Address, Value: c.Value})
	}
	for addr, value := range remoteSnapshot {
		if value.Empty() {
			continue
		}
		if _, ok := storeAddrs[addr]; ok {
			continue
		}
		writes = append(writes, remote.Write{Address: addr, Value: ""})
	}
	return writes
}

// enqueueAllNonRemote implements spec §4.6 step 3's remote-offline path.
func (r *Reconciler) enqueueAllNonRemote(ctx context.Context, cells []cell.StoredCell) {
	for _, c := range cells {
		if c.Origin.IsRemote() {
			continue
		}
		if err := r.pendingToRemote.Enqueue(ctx, cell.PendingChange{
			Address: c.Address, Value: c.Value, Origin: c.Origin, Timestamp: time.Now(),
		}); err != nil {
			r.log.WithError(err).Warn("failed to enqueue pending-to-remote entry")
		}
	}
}

// enqueueWrites implements spec §4.6 step 7: on batch failure classified as
// remote-offline, enqueue every intended push (all-or-nothing, per the
// DESIGN.md open-question resolution).
func (r *Reconciler) enqueueWrites(ctx context.Context, writes []remote.Write) {
	for _, w := range writes {
		if err := r.pendingToRemote.Enqueue(ctx, cell.PendingChange{
			Address: w.Address, Value: w.Value, Origin: cell.NewTag(cell.OriginLocalTerminal), Timestamp: time.Now(),
		}); err != nil {
			r.log.WithError(err).Warn("failed to enqueue pending-to-remote entry")
		}
	}
}

func (r *Reconciler) degradedReadFromSnapshotDB(ctx context.Context) ([]cell.StoredCell, error) {
	raw, ok, err := r.kv.Get(ctx, cacheKeyDB())
	if err != nil || !ok {
		return nil, errNoStoreCache
	}
	return decodeStoredCells(raw)
}

func (r *Reconciler) persistStoreSnapshotCache(ctx context.Context, cells []cell.StoredCell) {
	payload, err := encodeStoredCells(cells)
	if err != nil {
		return
	}
	if err := r.kv.Set(ctx, cacheKeyDB(), payload, r.opts.SnapshotTTL); err != nil {
		r.log.WithError(err).Warn("failed to persist store snapshot cache")
	}
}
