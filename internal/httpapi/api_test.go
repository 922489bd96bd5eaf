package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/driftmesh/driftmesh/internal/catalog"
)

// openTestStore mirrors internal/catalog's own integration-test helper:
// these handlers talk to a real postgres instance named by
// DRIFTMESH_TEST_DATABASE_URL, and skip cleanly when none is configured.
func openTestStore(t *testing.T) *catalog.Store {
	t.Helper()
	dsn := os.Getenv("DRIFTMESH_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("DRIFTMESH_TEST_DATABASE_URL not set, skipping httpapi integration test")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	store, err := catalog.Open(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return store
}

func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func newTestServer(store *catalog.Store) *Server {
	log := logrus.NewEntry(logrus.New())
	return New(nil, store, Config{}, log, nil)
}

func TestHandleReadyzReportsCatalogHealth(t *testing.T) {
	store := openTestStore(t)
	srv := newTestServer(store)

	r := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()
	srv.handleReadyz(w, r)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestHandleRegisterNodeUpsertsRow(t *testing.T) {
	store := openTestStore(t)
	srv := newTestServer(store)

	body, _ := json.Marshal(registerNodeRequest{
		PeerID: "12D3KooWTestPeerHTTP", IPAddress: "10.0.0.5", CountryCode: "US",
		StorageCapacityGB: 500, BandwidthCapacityMbps: 100,
	})
	r := httptest.NewRequest(http.MethodPost, "/api/nodes/register", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.handleRegisterNode(w, r)
	require.Equal(t, http.StatusCreated, w.Code)
}

func TestHandleRegisterNodeRejectsMissingPeerID(t *testing.T) {
	store := openTestStore(t)
	srv := newTestServer(store)

	body, _ := json.Marshal(registerNodeRequest{IPAddress: "10.0.0.5"})
	r := httptest.NewRequest(http.MethodPost, "/api/nodes/register", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.handleRegisterNode(w, r)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestHandleSetDedupTogglesBucketFlag(t *testing.T) {
	store := openTestStore(t)
	srv := newTestServer(store)
	require.NoError(t, store.CreateBucket(context.Background(), "dedup-bucket", "owner@example.com", true))

	body, _ := json.Marshal(setDedupRequest{Enabled: false})
	r := httptest.NewRequest(http.MethodPost, "/api/deduplicate/dedup-bucket", bytes.NewReader(body))
	r = withURLParam(r, "bucket", "dedup-bucket")
	w := httptest.NewRecorder()
	srv.handleSetDedup(w, r)
	require.Equal(t, http.StatusNoContent, w.Code)

	enabled, err := store.BucketDedupEnabled(context.Background(), "dedup-bucket")
	require.NoError(t, err)
	require.False(t, enabled)
}

func TestHandleSovereigntyReturnsDistribution(t *testing.T) {
	store := openTestStore(t)
	srv := newTestServer(store)
	ctx := context.Background()
	require.NoError(t, store.CreateBucket(ctx, "sov-bucket", "owner@example.com", true))
	require.NoError(t, store.PutObject(ctx, catalog.Object{
		Bucket: "sov-bucket", Key: "k", ETag: "e", CID: "QmSov", Shards: 1, RecoveryThreshold: 1, Size: 1, MetadataJSON: []byte(`{}`),
	}))
	require.NoError(t, store.InsertShardPlacement(ctx, catalog.ShardPlacement{
		ObjectCID: "QmSov", ShardIndex: 0, ShardCID: "s0", PeerID: "p0", CountryCode: "DE", ReceiptTimestampMs: 1, ReceiptSignatureValid: true,
	}))

	r := httptest.NewRequest(http.MethodGet, "/api/compliance/sovereignty/sov-bucket", nil)
	r = withURLParam(r, "bucket", "sov-bucket")
	w := httptest.NewRecorder()
	srv.handleSovereignty(w, r)
	require.Equal(t, http.StatusOK, w.Code)

	var report []catalog.CountryDistribution
	require.NoError(t, json.NewDecoder(w.Body).Decode(&report))
	require.Contains(t, report, catalog.CountryDistribution{CountryCode: "DE", ShardCount: 1})
}
