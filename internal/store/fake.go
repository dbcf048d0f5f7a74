package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cellsync/reconciler/internal/cell"
	"github.com/cellsync/reconciler/internal/errkind"
)

// Fake is an in-memory Client used by tests, mirroring the teacher's
// postgres_backend_integration_test.go pattern of a controllable fake that
// can be flipped offline mid-test.
type Fake struct {
	mu      sync.Mutex
	cells   map[cell.Address]cell.StoredCell
	offline bool
	now     func() time.Time
}

// NewFake returns an empty, online Fake.
func NewFake() *Fake {
	return &Fake{cells: map[cell.Address]cell.StoredCell{}, now: time.Now}
}

// SetOffline flips the fake's connectivity state.
func (f *Fake) SetOffline(offline bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offline = offline
}

// Snapshot returns a plain map of the fake's current contents for
// assertions.
func (f *Fake) Snapshot() map[cell.Address]cell.StoredCell {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[cell.Address]cell.StoredCell, len(f.cells))
	for k, v := range f.cells {
		out[k] = v
	}
	return out
}

func (f *Fake) offlineErr() error {
	if f.offline {
		return errkind.New(errkind.OfflineStore, nil)
	}
	return nil
}

func (f *Fake) ReadAll(_ context.Context) ([]cell.StoredCell, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.offlineErr(); err != nil {
		return nil, err
	}
	out := make([]cell.StoredCell, 0, len(f.cells))
	for _, c := range f.cells {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Address.Row() != out[j].Address.Row() {
			return out[i].Address.Row() < out[j].Address.Row()
		}
		return out[i].Address.Col() < out[j].Address.Col()
	})
	return out, nil
}

func (f *Fake) Upsert(_ context.Context, address cell.Address, value cell.Value, origin cell.Tag) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.offlineErr(); err != nil {
		return err
	}
	f.cells[address] = cell.StoredCell{Address: address, Value: value, Origin: origin, UpdatedAt: f.now()}
	return nil
}

func (f *Fake) Delete(_ context.Context, address cell.Address) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.offlineErr(); err != nil {
		return err
	}
	delete(f.cells, address)
	return nil
}

func (f *Fake) UpdateOriginIfNotRemote(_ context.Context, address cell.Address) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.offlineErr(); err != nil {
		return err
	}
	c, ok := f.cells[address]
	if !ok || c.Origin.IsRemote() {
		return nil
	}
	c.Origin = cell.NewTag(cell.OriginRemote)
	c.UpdatedAt = f.now()
	f.cells[address] = c
	return nil
}

func (f *Fake) Ping(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.offlineErr()
}

func (f *Fake) Close() error { return nil }
