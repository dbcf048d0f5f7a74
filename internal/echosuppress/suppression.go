// Package echosuppress implements the IgnoreMark half of the three-layer
// echo-suppression protocol (spec §4.2, layer 1). The origin-tag layer lives
// in internal/cell (Tag.IsRemote); the snapshot-write-through layer lives in
// internal/reconciler's outbound synchronizer.
package echosuppress

import (
	"context"
	"time"

	"github.com/cellsync/reconciler/internal/cell"
	"github.com/cellsync/reconciler/internal/kv"
)

// DefaultTTL is strictly greater than one poll period plus one outbound
// debounce window under the spec's own defaults (3s poll + 500ms debounce),
// giving headroom before the mark can be stolen by a later, unrelated write.
const DefaultTTL = 10 * time.Second

// Marks manages the lifecycle of IgnoreMark keys.
type Marks struct {
	store kv.Store
	ttl   time.Duration
}

// New returns a Marks manager with ttl, or DefaultTTL if ttl <= 0.
func New(store kv.Store, ttl time.Duration) *Marks {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Marks{store: store, ttl: ttl}
}

// Set marks address as reconciler-originated. Callers MUST call this before
// writing the corresponding value to the store, never after, so the mark is
// observable within the write's critical section.
func (m *Marks) Set(ctx context.Context, address cell.Address) error {
	return m.store.Set(ctx, kv.IgnoreKey(address.String()), "1", m.ttl)
}

// Exists reports whether address currently carries an IgnoreMark.
func (m *Marks) Exists(ctx context.Context, address cell.Address) (bool, error) {
	_, ok, err := m.store.Get(ctx, kv.IgnoreKey(address.String()))
	return ok, err
}
