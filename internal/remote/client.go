// Package remote implements the remote spreadsheet API collaborator (spec
// §4.3 / §6): range read, batched range write, rate-limit backoff, and
// offline detection. The HTTP implementation is grounded on the teacher's
// notion_http_client.go — same backoff shape, same correlation-id header —
// restyled around a Sheets-like range API.
package remote

import (
	"context"

	"github.com/cellsync/reconciler/internal/cell"
)

// Result is the outcome of a single remote call.
type Result int

const (
	// ResultOK means the call succeeded.
	ResultOK Result = iota
	// ResultRateLimited means the remote reported quota exceeded; the
	// caller performed no I/O if this came from a pre-existing backoff
	// window.
	ResultRateLimited
	// ResultUnreachable means a network-level failure occurred.
	ResultUnreachable
)

// Write is one (address, value) pair for a batched write.
type Write struct {
	Address cell.Address
	Value   cell.Value
}

// API is the capability interface every reconciler component depends on;
// HTTPClient and the in-memory fake used by tests both implement it.
type API interface {
	ReadRange(ctx context.Context) (cell.Snapshot, Result, error)
	WriteBatch(ctx context.Context, writes []Write) (Result, error)
	WriteSingle(ctx context.Context, address cell.Address, value cell.Value) (Result, error)
	// IsOffline reports the client's last-observed connectivity state,
	// independent of rate-limit backoff.
	IsOffline() bool
}

// StateListener is notified on every offline<->online transition, letting
// the reconciler trigger pending-queue drains (spec §4.9) without polling.
type StateListener func(offline bool)
