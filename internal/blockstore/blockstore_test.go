package blockstore_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/driftmesh/driftmesh/internal/blockstore"
)

func openTestStore(t *testing.T, capacity uint64) *blockstore.Store {
	t.Helper()
	var key [32]byte
	copy(key[:], []byte("0123456789abcdef0123456789abcdef"))
	s, err := blockstore.Open(filepath.Join(t.TempDir(), "node.db"), capacity, key)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSaveRetrieveRoundTrip(t *testing.T) {
	s := openTestStore(t, 1<<20)
	ok, err := s.Save("cid1", []byte("hello shard"))
	require.NoError(t, err)
	require.True(t, ok)

	got, found, err := s.Retrieve("cid1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("hello shard"), got)
}

func TestRetrieveMissingIsNotFound(t *testing.T) {
	s := openTestStore(t, 1<<20)
	_, found, err := s.Retrieve("missing")
	require.NoError(t, err)
	require.False(t, found)
}

func TestOverCapacityRejectsWithoutError(t *testing.T) {
	s := openTestStore(t, 8)
	ok, err := s.Save("cid1", make([]byte, 1024))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestUsedBytesIdempotentOnReplay(t *testing.T) {
	s := openTestStore(t, 1<<20)
	_, err := s.Save("cid1", []byte("payload"))
	require.NoError(t, err)
	before, err := s.UsedBytes()
	require.NoError(t, err)

	_, err = s.Save("cid1", []byte("payload"))
	require.NoError(t, err)
	after, err := s.UsedBytes()
	require.NoError(t, err)

	require.Equal(t, before, after)
}

func TestDeleteDecrementsUsedBytes(t *testing.T) {
	s := openTestStore(t, 1<<20)
	_, err := s.Save("cid1", []byte("payload"))
	require.NoError(t, err)

	deleted, err := s.Delete("cid1")
	require.NoError(t, err)
	require.True(t, deleted)

	used, err := s.UsedBytes()
	require.NoError(t, err)
	require.Zero(t, used)

	deletedAgain, err := s.Delete("cid1")
	require.NoError(t, err)
	require.False(t, deletedAgain)
}

