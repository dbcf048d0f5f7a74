// Package kv models the shared key-value store collaborator (spec §6): the
// transport for leases, ignore marks, snapshot caches, and pending-change
// queues. Store is the capability interface every component depends on;
// concrete backends (Redis, in-memory) implement it identically so tests can
// swap in the fake without touching caller code.
package kv

import (
	"context"
	"time"
)

// Store is the minimal shared-KV contract the reconciler needs: atomic
// set-if-absent with TTL, atomic conditional delete, string get/set with
// TTL, and FIFO list push/pop.
type Store interface {
	// SetNX atomically sets key to value with the given TTL only if key
	// is currently absent. Returns true if the set happened.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// CompareAndDelete atomically deletes key only if its current value
	// equals expected. Returns true if the delete happened; a mismatch
	// is a no-op, not an error.
	CompareAndDelete(ctx context.Context, key, expected string) (bool, error)
	// Get returns the current value of key and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set unconditionally sets key to value with the given TTL. A zero
	// TTL means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Delete removes key unconditionally. Deleting an absent key is not
	// an error.
	Delete(ctx context.Context, key string) error
	// ListPushTail appends value to the tail of the FIFO list at key.
	ListPushTail(ctx context.Context, key, value string) error
	// ListPushHead prepends value to the head of the FIFO list at key,
	// used to put a popped-but-failed element back in front.
	ListPushHead(ctx context.Context, key, value string) error
	// ListPopHead removes and returns the head of the FIFO list at key.
	// ok is false if the list is empty.
	ListPopHead(ctx context.Context, key string) (value string, ok bool, err error)
	// ListLen reports the current length of the FIFO list at key.
	ListLen(ctx context.Context, key string) (int, error)
	// Ping is a cheap liveness probe for the KV backend itself.
	Ping(ctx context.Context) error
	// Close releases any resources held by the backend.
	Close() error
}

// Key helpers centralize the KV namespace so every component addresses the
// same keys (spec §3).

// LeaseKey returns the lock key for address.
func LeaseKey(address string) string { return "lock:" + address }

// IgnoreKey returns the ignore-mark key for address.
func IgnoreKey(address string) string { return "ignore:" + address }

const (
	// SnapshotSheetKey is the KV key under which the remote snapshot is
	// persisted.
	SnapshotSheetKey = "snapshot:sheet"
	// SnapshotDBKey is the KV key under which the store-side degraded
	// read cache is persisted.
	SnapshotDBKey = "snapshot:db"
	// PendingToRemoteKey is the FIFO list of changes awaiting delivery
	// to the remote sheet.
	PendingToRemoteKey = "pending:to-remote"
	// PendingToStoreKey is the FIFO list of changes awaiting delivery to
	// the relational store.
	PendingToStoreKey = "pending:to-store"
)
