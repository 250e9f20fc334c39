package peer

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ecdemo/backend/internal/application/usersync"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newPeerClient(url string) *Client {
	return NewClient(Options{
		BaseURL:        url,
		RequestTimeout: 2 * time.Second,
		MaxRetries:     3,
		RetryBackoff:   10 * time.Millisecond,
	}, zap.NewNop())
}

func TestClient_ImportSendsPayload(t *testing.T) {
	var received usersync.ExportData
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/users/import", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)

		body := r.Body
		if r.Header.Get("Content-Encoding") == "gzip" {
			zr, err := gzip.NewReader(r.Body)
			require.NoError(t, err)
			body = zr
		}
		require.NoError(t, json.NewDecoder(body).Decode(&received))

		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data":    usersync.ImportResult{Received: received.UserCount, Added: received.UserCount},
		})
	}))
	defer server.Close()

	users := make([]usersync.UserRecord, 30)
	for i := range users {
		users[i] = usersync.UserRecord{
			ID:           uuid.New(),
			Username:     "testuser_x",
			Email:        "testuser_x@example.com",
			PasswordHash: "$2a$10$hashhashhashhashhashhashhashhashhashhashhashhashhash",
			IsTestUser:   true,
		}
	}
	export := &usersync.ExportData{UserCount: len(users), Users: users, DataHash: usersync.ComputeHash(users)}

	result, err := newPeerClient(server.URL).Import(context.Background(), export)
	require.NoError(t, err)
	assert.Equal(t, 30, result.Added)
	assert.Len(t, received.Users, 30)
}

func TestClient_RetriesOn5xx(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"success": true, "data": usersync.Status{CurrentHash: "h"}})
	}))
	defer server.Close()

	status, err := newPeerClient(server.URL).SyncStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "h", status.CurrentHash)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_GivesUpAfterMaxRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := newPeerClient(server.URL).SyncStatus(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "peer unreachable")
}

func TestClient_DoesNotRetry4xx(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"error":   map[string]string{"code": "INVALID_INPUT", "message": "bad batch id"},
		})
	}))
	defer server.Close()

	_, err := newPeerClient(server.URL).CleanupBatch(context.Background(), uuid.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad batch id")
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_CleanupBatch(t *testing.T) {
	batchID := uuid.New()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/users/cleanup", r.URL.Path)
		var req cleanupRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, batchID.String(), req.BatchID)

		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data":    map[string]int{"deleted_count": 7},
		})
	}))
	defer server.Close()

	deleted, err := newPeerClient(server.URL).CleanupBatch(context.Background(), batchID)
	require.NoError(t, err)
	assert.Equal(t, 7, deleted)
}
