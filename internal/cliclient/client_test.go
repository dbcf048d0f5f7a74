package cliclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestForceSyncPostsToForceSyncRoute(t *testing.T) {
	var gotPath, gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "sync-requested"})
	}))
	defer srv.Close()

	require.NoError(t, New(srv.URL).ForceSync(context.Background()))
	require.Equal(t, "/force-sync", gotPath)
	require.Equal(t, http.MethodPost, gotMethod)
}

func TestSubmitEditPostsEnvelopeJSON(t *testing.T) {
	var gotBody editRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{"status": "accepted"})
	}))
	defer srv.Close()

	err := New(srv.URL).SubmitEdit(context.Background(), "job-1", 3, "B", "sheet-1", "42")
	require.NoError(t, err)
	require.Equal(t, "job-1", gotBody.JobID)
	require.Equal(t, 3, gotBody.Row)
	require.Equal(t, "B", gotBody.Col)
	require.Equal(t, "sheet-1", gotBody.SheetID)
	require.Equal(t, "42", gotBody.Value)
}

func TestPrintStatusReturnsErrorOnNonOKResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"code":"fatal"}`))
	}))
	defer srv.Close()

	require.Error(t, New(srv.URL).PrintStatus(context.Background()))
}
