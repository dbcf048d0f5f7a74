package kv

import (
	"context"
	"testing"
	"time"
)

func TestMemorySetNXContention(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	ok, err := m.SetNX(ctx, "lock:1:A", "owner-1", time.Second)
	if err != nil || !ok {
		t.Fatalf("first SetNX = (%v, %v), want (true, nil)", ok, err)
	}
	ok, err = m.SetNX(ctx, "lock:1:A", "owner-2", time.Second)
	if err != nil || ok {
		t.Fatalf("second SetNX = (%v, %v), want (false, nil)", ok, err)
	}
}

func TestMemorySetNXExpiresAndAllowsReacquire(t *testing.T) {
	m := NewMemory()
	fixed := time.Now()
	m.now = func() time.Time { return fixed }
	ctx := context.Background()
	if ok, _ := m.SetNX(ctx, "lock:1:A", "owner-1", 5*time.Millisecond); !ok {
		t.Fatal("expected first SetNX to succeed")
	}
	m.now = func() time.Time { return fixed.Add(10 * time.Millisecond) }
	ok, err := m.SetNX(ctx, "lock:1:A", "owner-2", time.Second)
	if err != nil || !ok {
		t.Fatalf("SetNX after expiry = (%v, %v), want (true, nil)", ok, err)
	}
}

func TestMemoryCompareAndDeleteMismatchIsNoop(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	_, _ = m.SetNX(ctx, "lock:1:A", "owner-1", time.Second)
	ok, err := m.CompareAndDelete(ctx, "lock:1:A", "owner-2")
	if err != nil || ok {
		t.Fatalf("CompareAndDelete with wrong owner = (%v, %v), want (false, nil)", ok, err)
	}
	_, present, _ := m.Get(ctx, "lock:1:A")
	if !present {
		t.Error("lease should still be present after mismatched delete")
	}
	ok, err = m.CompareAndDelete(ctx, "lock:1:A", "owner-1")
	if err != nil || !ok {
		t.Fatalf("CompareAndDelete with correct owner = (%v, %v), want (true, nil)", ok, err)
	}
}

func TestMemoryListFIFO(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	_ = m.ListPushTail(ctx, "pending:to-remote", "a")
	_ = m.ListPushTail(ctx, "pending:to-remote", "b")
	head, ok, err := m.ListPopHead(ctx, "pending:to-remote")
	if err != nil || !ok || head != "a" {
		t.Fatalf("ListPopHead = (%q, %v, %v), want (a, true, nil)", head, ok, err)
	}
	_ = m.ListPushHead(ctx, "pending:to-remote", "a-retry")
	head, ok, _ = m.ListPopHead(ctx, "pending:to-remote")
	if !ok || head != "a-retry" {
		t.Fatalf("ListPopHead after push-head = (%q, %v), want a-retry", head, ok)
	}
	n, _ := m.ListLen(ctx, "pending:to-remote")
	if n != 1 {
		t.Fatalf("ListLen = %d, want 1", n)
	}
}
