// Package reconciler wires together the CDC poller (inbound), the outbound
// synchronizer, the lock service, echo suppression, and the offline queue
// into the single active reconciler process described by the spec. It is
// grounded on the teacher's internal/mountsync.Syncer (poll+push loop shape)
// generalized from a one-shot SyncOnce into the spec's always-on
// poll/debounce pair.
package reconciler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cellsync/reconciler/internal/echosuppress"
	"github.com/cellsync/reconciler/internal/kv"
	"github.com/cellsync/reconciler/internal/lock"
	"github.com/cellsync/reconciler/internal/peerstate"
	"github.com/cellsync/reconciler/internal/queue"
	"github.com/cellsync/reconciler/internal/remote"
	"github.com/cellsync/reconciler/internal/store"
)

// Options configures a Reconciler. Zero-valued durations fall back to the
// spec's documented defaults; PollInterval is clamped to a 3s floor (spec
// Testable Property 9).
type Options struct {
	PollInterval     time.Duration // default/floor 3s
	OutboundDebounce time.Duration // default 500ms
	LeaseTTL         time.Duration
	LockRetryDelay   time.Duration
	LockMaxAttempts  int
	IgnoreMarkTTL    time.Duration
	SnapshotTTL      time.Duration
	OwnerID          string // this process's lease-owner identity
	Logger           *logrus.Logger
}

const minPollInterval = 3 * time.Second

func (o Options) withDefaults() Options {
	if o.PollInterval < minPollInterval {
		o.PollInterval = minPollInterval
	}
	if o.OutboundDebounce <= 0 {
		o.OutboundDebounce = 500 * time.Millisecond
	}
	if o.OwnerID == "" {
		o.OwnerID = "reconciler"
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
	return o
}

// Reconciler is the single active reconciler process (spec §1 non-goal: no
// horizontal consensus between instances is attempted — a single active
// reconciler is assumed).
type Reconciler struct {
	remote remote.API
	store  store.Client
	kv     kv.Store

	locks *lock.Service
	marks *echosuppress.Marks

	pendingToRemote *queue.Pending
	pendingToStore  *queue.Pending

	remoteState *peerstate.Tracker
	storeState  *peerstate.Tracker

	snapshot *snapshotGuard
	dirty    atomic.Bool

	pollInFlight     atomic.Bool
	outboundInFlight atomic.Bool
	rateLimited      atomic.Bool

	opts Options
	log  *logrus.Entry

	mu          sync.Mutex
	timer       *time.Timer
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	statsMu     sync.Mutex
	stats       stats
}

type stats struct {
	pendingToRemoteReplayed int
	pendingToStoreReplayed  int
}

// New wires a Reconciler from its collaborators.
func New(remoteAPI remote.API, storeClient store.Client, kvStore kv.Store, opts Options) *Reconciler {
	opts = opts.withDefaults()
	r := &Reconciler{
		remote:          remoteAPI,
		store:           storeClient,
		kv:              kvStore,
		locks:           lock.New(kvStore, lock.Options{LeaseTTL: opts.LeaseTTL, RetryDelay: opts.LockRetryDelay, MaxAttempts: opts.LockMaxAttempts}),
		marks:           echosuppress.New(kvStore, opts.IgnoreMarkTTL),
		pendingToRemote: queue.NewToRemote(kvStore),
		pendingToStore:  queue.NewToStore(kvStore),
		snapshot:        newSnapshotGuard(kvStore, kv.SnapshotSheetKey, opts.SnapshotTTL),
		opts:            opts,
		log:             logrus.NewEntry(opts.Logger).WithField("component", "reconciler"),
	}
	r.remoteState = peerstate.New(r.onRemoteTransition)
	r.storeState = peerstate.New(r.onStoreTransition)
	return r
}

// RequestSync sets the dirty flag and (re)schedules the debounce timer,
// collapsing repeated calls within the window into one pending timer (spec
// §4.6). Every local write path calls this.
func (r *Reconciler) RequestSync(ctx context.Context) {
	r.dirty.Store(true)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timer != nil {
		r.timer.Stop()
	}
	r.timer = time.AfterFunc(r.opts.OutboundDebounce, func() {
		r.runOutboundPass(ctx)
	})
}

// Status reports the observable state exposed on GET /status (spec §6).
type Status struct {
	RemoteOnline    bool `json:"remoteOnline"`
	StoreOnline     bool `json:"storeOnline"`
	SnapshotSize    int  `json:"snapshotSize"`
	RateLimited     bool `json:"rateLimited"`
	PendingToRemote int  `json:"pendingToRemote"`
	PendingToStore  int  `json:"pendingToStore"`
}

// StatusJSON adapts Status to the httpapi.Reconciler collaborator
// interface, which cannot depend on this package's concrete Status type.
func (r *Reconciler) StatusJSON(ctx context.Context) any {
	return r.Status(ctx)
}

// Status computes a point-in-time status snapshot.
func (r *Reconciler) Status(ctx context.Context) Status {
	toRemote, _ := r.pendingToRemote.Len(ctx)
	toStore, _ := r.pendingToStore.Len(ctx)
	return Status{
		RemoteOnline:    !r.remoteState.Offline(),
		StoreOnline:     !r.storeState.Offline(),
		SnapshotSize:    len(r.snapshot.Get()),
		RateLimited:     r.rateLimited.Load(),
		PendingToRemote: toRemote,
		PendingToStore:  toStore,
	}
}

// Start launches the poll loop and returns once bootstrap has completed.
// The returned context cancellation (via Stop) tears down the poller and
// flushes any in-flight debounce timer.
func (r *Reconciler) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()

	if err := r.bootstrap(ctx); err != nil {
		r.log.WithError(err).Warn("bootstrap continuing in degraded mode")
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.pollLoop(ctx)
	}()
	return nil
}

// Stop cancels the poll loop, flushes any pending debounce timer by running
// it immediately if one was armed, and waits for the poll loop to exit.
func (r *Reconciler) Stop(ctx context.Context) {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	timer := r.timer
	r.timer = nil
	r.mu.Unlock()

	if timer != nil && timer.Stop() {
		r.runOutboundPass(ctx)
	}
	r.wg.Wait()
}

func (r *Reconciler) onRemoteTransition(offline bool) {
	r.log.WithField("peer", "remote").WithField("offline", offline).Info("peer state transition")
	if !offline {
		r.drainPendingToRemote(context.Background())
	}
}

func (r *Reconciler) onStoreTransition(offline bool) {
	r.log.WithField("peer", "store").WithField("offline", offline).Info("peer state transition")
	if !offline {
		r.drainPendingToStore(context.Background())
	}
}
