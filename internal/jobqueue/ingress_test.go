package jobqueue

import (
	"context"
	"testing"

	"github.com/cellsync/reconciler/internal/kv"
)

func TestHandleFrameGeneratesJobIDWhenMissing(t *testing.T) {
	queue := New(kv.NewMemory(), 0)
	ingress := NewIngress(queue, nil)

	ingress.handleFrame(context.Background(), map[string]any{
		"row": float64(1), "col": "A", "value": "x", "sheetId": "s1",
	})

	raw, ok := queue.Dequeue(context.Background())
	if !ok {
		t.Fatal("expected an enqueued envelope")
	}
	env, err := decodeEnvelope([]byte(raw))
	if err != nil {
		t.Fatalf("decodeEnvelope: %v", err)
	}
	if env.JobID == "" {
		t.Fatal("expected a generated jobId")
	}
}

func TestHandleFramePreservesSuppliedJobID(t *testing.T) {
	queue := New(kv.NewMemory(), 0)
	ingress := NewIngress(queue, nil)

	ingress.handleFrame(context.Background(), map[string]any{
		"jobId": "explicit-1", "row": float64(1), "col": "A", "value": "x", "sheetId": "s1",
	})

	raw, ok := queue.Dequeue(context.Background())
	if !ok {
		t.Fatal("expected an enqueued envelope")
	}
	env, err := decodeEnvelope([]byte(raw))
	if err != nil {
		t.Fatalf("decodeEnvelope: %v", err)
	}
	if env.JobID != "explicit-1" {
		t.Fatalf("JobID = %q, want explicit-1", env.JobID)
	}
}
