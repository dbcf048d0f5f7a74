package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cellsync/reconciler/internal/cell"
)

func staticToken(_ context.Context) (string, error) { return "test-token", nil }

func TestReadRangeFlattensValues(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"values": [][]any{
				{"Hello", nil, 42},
				{nil, "World"},
			},
		})
	}))
	defer srv.Close()

	c := NewHTTPClient(HTTPClientOptions{BaseURL: srv.URL, Range: "Sheet1!A1:H20", TokenProvider: staticToken})
	snap, result, err := c.ReadRange(context.Background())
	if err != nil || result != ResultOK {
		t.Fatalf("ReadRange = (%v, %v, %v)", snap, result, err)
	}
	a1, _ := cell.NewAddress(1, "A")
	a3, _ := cell.NewAddress(1, "C")
	b2, _ := cell.NewAddress(2, "B")
	if snap[a1] != "Hello" || snap[a3] != "42" || snap[b2] != "World" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if len(snap) != 3 {
		t.Fatalf("snapshot has %d entries, want 3: %+v", len(snap), snap)
	}
}

func TestRateLimitBackoffDoublesAndResets(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if hits <= 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"values": [][]any{}})
	}))
	defer srv.Close()

	c := NewHTTPClient(HTTPClientOptions{
		BaseURL:        srv.URL,
		Range:          "Sheet1!A1:H20",
		TokenProvider:  staticToken,
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     100 * time.Millisecond,
	})

	_, result, _ := c.ReadRange(context.Background())
	if result != ResultRateLimited {
		t.Fatalf("first ReadRange result = %v, want ResultRateLimited", result)
	}
	if !c.backoffActiveBool() {
		t.Fatal("expected backoff window to be active")
	}
	_, result, _ = c.ReadRange(context.Background())
	if result != ResultRateLimited || hits != 1 {
		t.Fatalf("second ReadRange during backoff should not hit network: result=%v hits=%d", result, hits)
	}

	// The 429 doubled the 10ms initial backoff, so the window is 20ms.
	time.Sleep(30 * time.Millisecond)
	_, result, err := c.ReadRange(context.Background())
	if err != nil || result != ResultOK {
		t.Fatalf("ReadRange after backoff window = (%v, %v)", result, err)
	}
	c.mu.Lock()
	backoff := c.currentBackoff
	c.mu.Unlock()
	if backoff != c.initialBackoff {
		t.Fatalf("currentBackoff after success = %v, want reset to %v", backoff, c.initialBackoff)
	}
}

func (c *HTTPClient) backoffActiveBool() bool {
	active, _ := c.backoffActive()
	return active
}

func TestUnreachableFlipsOfflineAndNotifies(t *testing.T) {
	var transitions []bool
	c := NewHTTPClient(HTTPClientOptions{
		BaseURL:       "http://127.0.0.1:1",
		Range:         "Sheet1!A1:H20",
		TokenProvider: staticToken,
		OnStateChange: func(offline bool) { transitions = append(transitions, offline) },
	})
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, result, _ := c.ReadRange(ctx)
	if result != ResultUnreachable {
		t.Fatalf("result = %v, want ResultUnreachable", result)
	}
	if !c.IsOffline() {
		t.Error("expected client to report offline")
	}
	if len(transitions) != 1 || transitions[0] != true {
		t.Errorf("transitions = %v, want [true]", transitions)
	}
}
