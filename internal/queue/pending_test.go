package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cellsync/reconciler/internal/cell"
	"github.com/cellsync/reconciler/internal/kv"
)

func change(t *testing.T, row int, col, value string) cell.PendingChange {
	addr, err := cell.NewAddress(row, col)
	if err != nil {
		t.Fatalf("NewAddress: %v", err)
	}
	return cell.PendingChange{
		Address:   addr,
		Value:     cell.Value(value),
		Origin:    cell.NewTag(cell.OriginLocalTerminal),
		Timestamp: time.Unix(0, 0),
	}
}

func TestDrainFIFOOrder(t *testing.T) {
	store := kv.NewMemory()
	q := NewToRemote(store)
	ctx := context.Background()

	_ = q.Enqueue(ctx, change(t, 1, "A", "X"))
	_ = q.Enqueue(ctx, change(t, 2, "B", "Y"))

	var applied []string
	n, err := q.Drain(ctx, func(c cell.PendingChange) error {
		applied = append(applied, string(c.Value))
		return nil
	})
	if err != nil || n != 2 {
		t.Fatalf("Drain = (%d, %v), want (2, nil)", n, err)
	}
	if len(applied) != 2 || applied[0] != "X" || applied[1] != "Y" {
		t.Fatalf("applied in wrong order: %v", applied)
	}
	if l, _ := q.Len(ctx); l != 0 {
		t.Fatalf("queue should be empty after drain, len=%d", l)
	}
}

func TestDrainStopsOnFailureAndRequeues(t *testing.T) {
	store := kv.NewMemory()
	q := NewToRemote(store)
	ctx := context.Background()

	_ = q.Enqueue(ctx, change(t, 1, "A", "X"))
	_ = q.Enqueue(ctx, change(t, 2, "B", "Y"))

	failNext := true
	n, err := q.Drain(ctx, func(c cell.PendingChange) error {
		if failNext {
			failNext = false
			return errors.New("boom")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if n != 0 {
		t.Fatalf("Drain replayed = %d, want 0 (first element should fail)", n)
	}
	if l, _ := q.Len(ctx); l != 2 {
		t.Fatalf("queue len after failed drain = %d, want 2 (failed element requeued)", l)
	}
}

func TestReplayIsIdempotentSafe(t *testing.T) {
	store := kv.NewMemory()
	q := NewToRemote(store)
	ctx := context.Background()
	_ = q.Enqueue(ctx, change(t, 1, "A", "X"))

	applyCount := 0
	for i := 0; i < 3; i++ {
		_, _ = q.Drain(ctx, func(c cell.PendingChange) error {
			applyCount++
			return nil
		})
		_ = q.Enqueue(ctx, change(t, 1, "A", "X"))
	}
	if applyCount != 3 {
		t.Fatalf("applyCount = %d, want 3", applyCount)
	}
}
