package remote

import (
	"context"
	"sync"

	"github.com/cellsync/reconciler/internal/cell"
	"github.com/cellsync/reconciler/internal/errkind"
)

// Fake is an in-memory API implementation used by tests across packages
// (reconciler, jobqueue) to drive deterministic online/offline/rate-limited
// scenarios, mirroring the teacher's pattern of hand-written fakes
// implementing the same capability interface as the real HTTP client.
type Fake struct {
	mu          sync.Mutex
	snapshot    cell.Snapshot
	offline     bool
	rateLimited bool
	writeErr    error
	onChange    StateListener
	writes      []Write
}

// NewFake returns an empty, online Fake.
func NewFake() *Fake {
	return &Fake{snapshot: cell.Snapshot{}}
}

// SetOnStateChange installs a listener invoked on offline<->online flips.
func (f *Fake) SetOnStateChange(l StateListener) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onChange = l
}

// SetSnapshot replaces the remote's current state, as observed by the next
// ReadRange.
func (f *Fake) SetSnapshot(s cell.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshot = s.Clone()
}

// SetOffline flips the fake's connectivity state and fires the listener on
// change.
func (f *Fake) SetOffline(offline bool) {
	f.mu.Lock()
	changed := f.offline != offline
	f.offline = offline
	listener := f.onChange
	f.mu.Unlock()
	if changed && listener != nil {
		listener(offline)
	}
}

// SetRateLimited flips whether the next call reports ResultRateLimited.
func (f *Fake) SetRateLimited(limited bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rateLimited = limited
}

// Writes returns every write accepted so far, in order.
func (f *Fake) Writes() []Write {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Write, len(f.writes))
	copy(out, f.writes)
	return out
}

func (f *Fake) ReadRange(_ context.Context) (cell.Snapshot, Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offline {
		return nil, ResultUnreachable, errkind.New(errkind.OfflineRemote, nil)
	}
	if f.rateLimited {
		return nil, ResultRateLimited, nil
	}
	return f.snapshot.Clone(), ResultOK, nil
}

func (f *Fake) WriteBatch(_ context.Context, writes []Write) (Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offline {
		return ResultUnreachable, errkind.New(errkind.OfflineRemote, nil)
	}
	if f.rateLimited {
		return ResultRateLimited, nil
	}
	for _, w := range writes {
		if w.Value.Empty() {
			delete(f.snapshot, w.Address)
		} else {
			f.snapshot[w.Address] = w.Value
		}
	}
	f.writes = append(f.writes, writes...)
	return ResultOK, nil
}

func (f *Fake) WriteSingle(ctx context.Context, address cell.Address, value cell.Value) (Result, error) {
	return f.WriteBatch(ctx, []Write{{Address: address, Value: value}})
}

func (f *Fake) IsOffline() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.offline
}
