package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type fakeReconciler struct {
	status     any
	syncCalled bool
}

func (f *fakeReconciler) StatusJSON(ctx context.Context) any { return f.status }
func (f *fakeReconciler) RequestSync(ctx context.Context)    { f.syncCalled = true }

type fakeIngress struct {
	lastPayload []byte
	err         error
}

func (f *fakeIngress) SubmitRaw(ctx context.Context, raw []byte) error {
	f.lastPayload = raw
	return f.err
}

func TestStatusRoute(t *testing.T) {
	rec := &fakeReconciler{status: map[string]bool{"remoteOnline": true}}
	srv := NewServer(rec, nil, Config{})
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status code = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "remoteOnline") {
		t.Fatalf("body = %s, want remoteOnline field", w.Body.String())
	}
}

func TestForceSyncRoute(t *testing.T) {
	rec := &fakeReconciler{}
	srv := NewServer(rec, nil, Config{})
	req := httptest.NewRequest(http.MethodPost, "/force-sync", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status code = %d, want 202", w.Code)
	}
	if !rec.syncCalled {
		t.Fatal("expected RequestSync to be called")
	}
}

func TestEditRouteWithoutIngressReturns501(t *testing.T) {
	srv := NewServer(&fakeReconciler{}, nil, Config{})
	req := httptest.NewRequest(http.MethodPost, "/edit", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusNotImplemented {
		t.Fatalf("status code = %d, want 501", w.Code)
	}
}

func TestEditRouteForwardsBodyToIngress(t *testing.T) {
	ing := &fakeIngress{}
	srv := NewServer(&fakeReconciler{}, ing, Config{})
	body := `{"jobId":"j1","row":1,"col":"A","sheetId":"s1"}`
	req := httptest.NewRequest(http.MethodPost, "/edit", strings.NewReader(body))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status code = %d, want 202, body=%s", w.Code, w.Body.String())
	}
	if string(ing.lastPayload) != body {
		t.Fatalf("forwarded payload = %q, want %q", ing.lastPayload, body)
	}
}

func TestEditRouteRejectsWhenIngressErrors(t *testing.T) {
	ing := &fakeIngress{err: errors.New("bad envelope")}
	srv := NewServer(&fakeReconciler{}, ing, Config{})
	req := httptest.NewRequest(http.MethodPost, "/edit", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status code = %d, want 400", w.Code)
	}
}

func TestUnknownRouteReturns404(t *testing.T) {
	srv := NewServer(&fakeReconciler{}, nil, Config{})
	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status code = %d, want 404", w.Code)
	}
}
