package catalog_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/driftmesh/driftmesh/internal/catalog"
)

// openTestStore connects to a real postgres instance named by
// DRIFTMESH_TEST_DATABASE_URL. These tests exercise the hand-written SQL
// against a real server rather than mocking pgx; skip when no instance is
// configured so the package still tests cleanly in environments without one.
func openTestStore(t *testing.T) *catalog.Store {
	t.Helper()
	dsn := os.Getenv("DRIFTMESH_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("DRIFTMESH_TEST_DATABASE_URL not set, skipping catalog integration test")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	store, err := catalog.Open(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return store
}

func TestPutGetDeleteObjectRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_ = store.CreateBucket(ctx, "test-bucket", "owner@example.com", true)

	obj := catalog.Object{
		Bucket: "test-bucket", Key: "a/b/c.bin", ETag: "etag1", CID: "Qmtest1",
		Shards: 6, RecoveryThreshold: 4, Size: 1024, MetadataJSON: []byte(`{}`),
	}
	require.NoError(t, store.PutObject(ctx, obj))

	got, found, err := store.GetObject(ctx, "test-bucket", "a/b/c.bin")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, obj.CID, got.CID)

	require.NoError(t, store.DeleteObject(ctx, "test-bucket", "a/b/c.bin"))
	_, found, err = store.GetObject(ctx, "test-bucket", "a/b/c.bin")
	require.NoError(t, err)
	require.False(t, found)
}

func TestDegradedObjectsReflectsPlacementShortfall(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	_ = store.CreateBucket(ctx, "test-bucket", "owner@example.com", true)

	obj := catalog.Object{Bucket: "test-bucket", Key: "degraded.bin", ETag: "e", CID: "QmDegraded", Shards: 6, RecoveryThreshold: 4, Size: 10, MetadataJSON: []byte(`{}`)}
	require.NoError(t, store.PutObject(ctx, obj))

	require.NoError(t, store.InsertShardPlacement(ctx, catalog.ShardPlacement{ObjectCID: obj.CID, ShardIndex: 0, ShardCID: "s0", PeerID: "p0", CountryCode: "US", ReceiptTimestampMs: 1, ReceiptSignatureValid: true}))

	degraded, err := store.DegradedObjects(ctx, 100)
	require.NoError(t, err)
	require.Contains(t, degraded, obj.CID)
}

func TestWarmReplicationGapsExcludesDegradedAndFullObjects(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	_ = store.CreateBucket(ctx, "test-bucket", "owner@example.com", true)

	obj := catalog.Object{Bucket: "test-bucket", Key: "warm.bin", ETag: "e", CID: "QmWarm", Shards: 6, RecoveryThreshold: 4, Size: 10, MetadataJSON: []byte(`{}`)}
	require.NoError(t, store.PutObject(ctx, obj))
	for i := 0; i < 5; i++ {
		require.NoError(t, store.InsertShardPlacement(ctx, catalog.ShardPlacement{ObjectCID: obj.CID, ShardIndex: i, ShardCID: "s", PeerID: "p", CountryCode: "US", ReceiptTimestampMs: 1, ReceiptSignatureValid: true}))
	}

	warm, err := store.WarmReplicationGaps(ctx, 100)
	require.NoError(t, err)
	require.Contains(t, warm, obj.CID)

	degraded, err := store.DegradedObjects(ctx, 100)
	require.NoError(t, err)
	require.NotContains(t, degraded, obj.CID)
}

func TestGetObjectByCIDFindsAnyMatchingRow(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	_ = store.CreateBucket(ctx, "test-bucket", "owner@example.com", true)

	obj := catalog.Object{Bucket: "test-bucket", Key: "byc.bin", ETag: "e", CID: "QmByCID", Shards: 6, RecoveryThreshold: 4, Size: 10, MetadataJSON: []byte(`{}`)}
	require.NoError(t, store.PutObject(ctx, obj))

	got, found, err := store.GetObjectByCID(ctx, "QmByCID")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, obj.CID, got.CID)

	_, found, err = store.GetObjectByCID(ctx, "QmNoSuchCID")
	require.NoError(t, err)
	require.False(t, found)
}

func TestPeerVerificationStatsCountsResolvedChallenges(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	verified := catalog.Challenge{ChallengeID: "v1", ObjectCID: "Qm1", ShardCID: "s0", ShardIndex: 0, PeerID: "peerStats", CountryCode: "US", ChallengeHex: "aa", NonceHex: "bb", ExpiresAt: time.Now().Add(time.Minute)}
	require.NoError(t, store.InsertChallenge(ctx, verified))
	require.NoError(t, store.CompleteChallenge(ctx, "v1", true, "hash", "sig", "pub", "", time.Now()))

	failed := catalog.Challenge{ChallengeID: "f1", ObjectCID: "Qm1", ShardCID: "s1", ShardIndex: 1, PeerID: "peerStats", CountryCode: "US", ChallengeHex: "cc", NonceHex: "dd", ExpiresAt: time.Now().Add(time.Minute)}
	require.NoError(t, store.InsertChallenge(ctx, failed))
	require.NoError(t, store.CompleteChallenge(ctx, "f1", false, "", "", "", "no response", time.Now()))

	total, verifiedCount, err := store.PeerVerificationStats(ctx, "peerStats", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Equal(t, 2, total)
	require.Equal(t, 1, verifiedCount)
}

func TestChallengeLifecycle(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	c := catalog.Challenge{
		ChallengeID: "chal1", ObjectCID: "QmX", ShardCID: "s0", ShardIndex: 0,
		PeerID: "peer1", CountryCode: "US", ChallengeHex: "aa", NonceHex: "bb",
		ExpiresAt: time.Now().Add(time.Minute),
	}
	require.NoError(t, store.InsertChallenge(ctx, c))

	got, found, err := store.GetChallenge(ctx, "chal1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, catalog.ChallengeStatusPending, got.Status)

	require.NoError(t, store.CompleteChallenge(ctx, "chal1", true, "hash", "sig", "pub", "", time.Now()))
	got, _, err = store.GetChallenge(ctx, "chal1")
	require.NoError(t, err)
	require.Equal(t, catalog.ChallengeStatusVerified, got.Status)
}
