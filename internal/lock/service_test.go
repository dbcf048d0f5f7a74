package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cellsync/reconciler/internal/cell"
	"github.com/cellsync/reconciler/internal/errkind"
	"github.com/cellsync/reconciler/internal/kv"
)

func testAddress(t *testing.T) cell.Address {
	a, err := cell.NewAddress(3, "B")
	if err != nil {
		t.Fatalf("NewAddress: %v", err)
	}
	return a
}

func TestAcquireReleaseRoundTrip(t *testing.T) {
	svc := New(kv.NewMemory(), Options{RetryDelay: time.Millisecond})
	addr := testAddress(t)
	ctx := context.Background()

	ok, err := svc.Acquire(ctx, addr, "owner-1")
	if err != nil || !ok {
		t.Fatalf("Acquire = (%v, %v), want (true, nil)", ok, err)
	}
	if err := svc.Release(ctx, addr, "owner-1"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	ok, err = svc.Acquire(ctx, addr, "owner-2")
	if err != nil || !ok {
		t.Fatalf("Acquire after release = (%v, %v), want (true, nil)", ok, err)
	}
}

func TestReleaseWithWrongOwnerIsNoop(t *testing.T) {
	svc := New(kv.NewMemory(), Options{RetryDelay: time.Millisecond})
	addr := testAddress(t)
	ctx := context.Background()
	if ok, _ := svc.Acquire(ctx, addr, "owner-1"); !ok {
		t.Fatal("expected acquire to succeed")
	}
	if err := svc.Release(ctx, addr, "owner-2"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	ok, _ := svc.Acquire(ctx, addr, "owner-3")
	if ok {
		t.Fatal("lease should still be held by owner-1 after mismatched release")
	}
}

func TestContentionDeniesAllButOne(t *testing.T) {
	svc := New(kv.NewMemory(), Options{RetryDelay: time.Millisecond, MaxAttempts: 3})
	addr := testAddress(t)
	ctx := context.Background()

	const contenders = 15
	var wg sync.WaitGroup
	results := make([]bool, contenders)
	errs := make([]error, contenders)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := svc.Acquire(ctx, addr, "owner")
			results[i] = ok
			errs[i] = err
		}(i)
	}
	wg.Wait()

	successes := 0
	denials := 0
	for i, ok := range results {
		if ok {
			successes++
			continue
		}
		if !errkind.Is(errs[i], errkind.Contention) {
			t.Errorf("contender %d: expected contention error, got %v", i, errs[i])
		}
		denials++
	}
	if successes != 1 {
		t.Errorf("successes = %d, want exactly 1", successes)
	}
	if denials != contenders-1 {
		t.Errorf("denials = %d, want %d", denials, contenders-1)
	}
}
