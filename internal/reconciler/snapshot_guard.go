package reconciler

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cellsync/reconciler/internal/cell"
	"github.com/cellsync/reconciler/internal/kv"
)

// snapshotGuard is the single-owner structure encapsulating the reconciler's
// in-memory Snapshot (spec Design Notes: "never expose the underlying
// map/bool"). It also owns persistence to the KV under a given key with the
// configured TTL.
type snapshotGuard struct {
	mu    sync.Mutex
	data  cell.Snapshot
	kv    kv.Store
	key   string
	ttl   time.Duration
}

func newSnapshotGuard(store kv.Store, key string, ttl time.Duration) *snapshotGuard {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &snapshotGuard{data: cell.Snapshot{}, kv: store, key: key, ttl: ttl}
}

// Get returns a defensive copy of the current snapshot.
func (g *snapshotGuard) Get() cell.Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.data.Clone()
}

// Replace swaps the entire snapshot and persists it.
func (g *snapshotGuard) Replace(ctx context.Context, s cell.Snapshot) error {
	g.mu.Lock()
	g.data = s.Clone()
	snapshot := g.data
	g.mu.Unlock()
	return g.persist(ctx, snapshot)
}

// Overwrite sets a single address's value in the in-memory snapshot without
// a full persist round trip (used by the outbound synchronizer's
// write-through, spec §4.2 layer 3). The caller is responsible for
// triggering a persist if durability of this one change matters before the
// next poll.
func (g *snapshotGuard) Overwrite(address cell.Address, value cell.Value) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if value.Empty() {
		delete(g.data, address)
		return
	}
	g.data[address] = value
}

// LoadWarm attempts to populate the in-memory snapshot from the KV, for the
// bootstrap "fast warm start" path (spec §4.5 step i). Returns false if no
// cached snapshot was present.
func (g *snapshotGuard) LoadWarm(ctx context.Context) (bool, error) {
	raw, ok, err := g.kv.Get(ctx, g.key)
	if err != nil || !ok {
		return false, err
	}
	var snap cell.Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return false, err
	}
	g.mu.Lock()
	g.data = snap
	g.mu.Unlock()
	return true, nil
}

func (g *snapshotGuard) persist(ctx context.Context, snapshot cell.Snapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return g.kv.Set(ctx, g.key, string(payload), g.ttl)
}
