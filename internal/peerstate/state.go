// Package peerstate implements the online/offline state machine shared by
// the remote and store peers (spec §4.9): a single-owner structure with
// explicit synchronized access and an edge-triggered listener so recovery
// drains fire exactly once per transition.
package peerstate

import "sync"

// Listener is invoked exactly once per offline<->online transition.
type Listener func(offline bool)

// Tracker holds one peer's last-observed connectivity state.
type Tracker struct {
	mu      sync.Mutex
	offline bool
	onEdge  Listener
}

// New returns a Tracker that starts online.
func New(onEdge Listener) *Tracker {
	return &Tracker{onEdge: onEdge}
}

// Observe records the outcome of a liveness probe or I/O call: ok=true
// means success (peer is online), ok=false means the call failed with a
// connectivity-class error. Returns true if this observation caused a state
// transition.
func (t *Tracker) Observe(ok bool) bool {
	t.mu.Lock()
	before := t.offline
	t.offline = !ok
	after := t.offline
	listener := t.onEdge
	t.mu.Unlock()
	changed := before != after
	if changed && listener != nil {
		listener(after)
	}
	return changed
}

// Offline reports the current state.
func (t *Tracker) Offline() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.offline
}
