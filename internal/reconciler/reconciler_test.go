package reconciler

import (
	"context"
	"testing"
	"time"

	"github.com/cellsync/reconciler/internal/cell"
	"github.com/cellsync/reconciler/internal/kv"
	"github.com/cellsync/reconciler/internal/remote"
	"github.com/cellsync/reconciler/internal/store"
)

func newTestReconciler(t *testing.T) (*Reconciler, *remote.Fake, *store.Fake, kv.Store) {
	t.Helper()
	remoteFake := remote.NewFake()
	storeFake := store.NewFake()
	kvStore := kv.NewMemory()
	r := New(remoteFake, storeFake, kvStore, Options{
		PollInterval:     minPollInterval,
		OutboundDebounce: 10 * time.Millisecond,
		LockRetryDelay:   time.Millisecond,
	})
	remoteFake.SetOnStateChange(func(offline bool) { r.onRemoteTransition(offline) })
	return r, remoteFake, storeFake, kvStore
}

// S1: a remote-originated change propagates into the store with origin
// remote, and produces no outbound push.
func TestScenarioRemoteChangePropagatesToStore(t *testing.T) {
	r, remoteFake, storeFake, _ := newTestReconciler(t)
	ctx := context.Background()

	b3, _ := cell.NewAddress(3, "B")
	remoteFake.SetSnapshot(cell.Snapshot{b3: "Hello"})

	r.poll(ctx)

	snap := storeFake.Snapshot()
	stored, ok := snap[b3]
	if !ok || stored.Value != "Hello" || !stored.Origin.IsRemote() {
		t.Fatalf("store state after poll = %+v, want {Hello, remote}", stored)
	}
	if len(remoteFake.Writes()) != 0 {
		t.Fatalf("expected no outbound writes, got %v", remoteFake.Writes())
	}
}

// S2: a local-terminal write in the store gets pushed to the remote and its
// origin is rewritten to remote.
func TestScenarioLocalWritePropagatesToRemote(t *testing.T) {
	r, remoteFake, storeFake, _ := newTestReconciler(t)
	ctx := context.Background()

	c5, _ := cell.NewAddress(5, "C")
	if err := storeFake.Upsert(ctx, c5, "World", cell.NewTag(cell.OriginLocalTerminal)); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	r.RequestSync(ctx)
	time.Sleep(30 * time.Millisecond)

	remoteSnap, _, _ := remoteFake.ReadRange(ctx)
	if remoteSnap[c5] != "World" {
		t.Fatalf("remote snapshot = %+v, want C5=World", remoteSnap)
	}
	storeSnap := storeFake.Snapshot()
	if !storeSnap[c5].Origin.IsRemote() {
		t.Fatalf("store origin after push = %v, want remote", storeSnap[c5].Origin)
	}
}

// S4: while the remote is offline, local writes queue durably and drain in
// FIFO order once the remote recovers.
func TestScenarioOfflineRemoteQueuesAndDrains(t *testing.T) {
	r, remoteFake, storeFake, _ := newTestReconciler(t)
	ctx := context.Background()

	remoteFake.SetOffline(true)

	a1, _ := cell.NewAddress(1, "A")
	b2, _ := cell.NewAddress(2, "B")
	_ = storeFake.Upsert(ctx, a1, "X", cell.NewTag(cell.OriginLocalTerminal))
	_ = storeFake.Upsert(ctx, b2, "Y", cell.NewTag(cell.OriginLocalTerminal))

	r.RequestSync(ctx)
	time.Sleep(30 * time.Millisecond)

	if n, _ := r.pendingToRemote.Len(ctx); n == 0 {
		t.Fatal("expected pending-to-remote entries while remote offline")
	}

	remoteFake.SetOffline(false)
	time.Sleep(30 * time.Millisecond)

	remoteSnap, _, _ := remoteFake.ReadRange(ctx)
	if remoteSnap[a1] != "X" || remoteSnap[b2] != "Y" {
		t.Fatalf("remote snapshot after recovery = %+v", remoteSnap)
	}
	if n, _ := r.pendingToRemote.Len(ctx); n != 0 {
		t.Fatalf("pending-to-remote should be drained, len=%d", n)
	}
}

// S5: two remote edits to the same address within one poll collapse into a
// single diff entry and a single store write.
func TestScenarioRepeatedRemoteEditCollapses(t *testing.T) {
	r, remoteFake, storeFake, _ := newTestReconciler(t)
	ctx := context.Background()

	a1, _ := cell.NewAddress(1, "A")
	remoteFake.SetSnapshot(cell.Snapshot{a1: "E0"})
	r.poll(ctx)
	remoteFake.SetSnapshot(cell.Snapshot{a1: "E1"})
	r.poll(ctx)

	snap := storeFake.Snapshot()
	if len(snap) != 1 || snap[a1].Value != "E1" {
		t.Fatalf("store snapshot = %+v, want single E1 cell", snap)
	}
}

// S6: a store-side delete propagates to the remote as an empty write.
func TestScenarioStoreDeletePropagatesToRemote(t *testing.T) {
	r, remoteFake, storeFake, _ := newTestReconciler(t)
	ctx := context.Background()

	d4, _ := cell.NewAddress(4, "D")
	remoteFake.SetSnapshot(cell.Snapshot{d4: "was-set"})
	r.poll(ctx) // adopt remote state into both the store and the in-memory snapshot

	if err := storeFake.Delete(ctx, d4); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	r.RequestSync(ctx)
	time.Sleep(30 * time.Millisecond)

	remoteSnap, _, _ := remoteFake.ReadRange(ctx)
	if v, ok := remoteSnap[d4]; ok && !v.Empty() {
		t.Fatalf("expected D4 to be deleted remotely, got %q", v)
	}
}

// Testable Property 9: a configured poll interval below the 3s floor is
// clamped up to the floor, never honored as-is.
func TestPollIntervalClampedToFloor(t *testing.T) {
	opts := Options{PollInterval: 10 * time.Millisecond}.withDefaults()
	if opts.PollInterval != minPollInterval {
		t.Fatalf("PollInterval = %v, want floor %v", opts.PollInterval, minPollInterval)
	}

	opts = Options{PollInterval: minPollInterval * 2}.withDefaults()
	if opts.PollInterval != minPollInterval*2 {
		t.Fatalf("PollInterval = %v, want unmodified %v", opts.PollInterval, minPollInterval*2)
	}
}
