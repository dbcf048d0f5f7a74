// Package store implements the relational store collaborator (spec §4.4):
// idempotent upsert, delete, ordered full-table read, origin-conditional
// rewrite, and liveness probing. The Postgres implementation is grounded on
// the teacher's postgres_backend.go (lib/pq, sync.Once-guarded lazy connect,
// ON CONFLICT upsert).
package store

import (
	"context"

	"github.com/cellsync/reconciler/internal/cell"
)

// Client is the capability interface the reconciler depends on.
type Client interface {
	ReadAll(ctx context.Context) ([]cell.StoredCell, error)
	Upsert(ctx context.Context, address cell.Address, value cell.Value, origin cell.Tag) error
	Delete(ctx context.Context, address cell.Address) error
	// UpdateOriginIfNotRemote rewrites address's origin to remote unless
	// it is already remote, used after a successful outbound push.
	UpdateOriginIfNotRemote(ctx context.Context, address cell.Address) error
	Ping(ctx context.Context) error
	Close() error
}
