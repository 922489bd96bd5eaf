package pipeline

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func smallCfg() Config {
	return Config{ChunkSize: 8, DataShards: 4, ParityShards: 2}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	plaintext := []byte("the quick brown fox jumps over the lazy dog, several times over")
	m, err := Encode(plaintext, "correct horse", smallCfg())
	require.NoError(t, err)

	got, err := Decode(m, "correct horse", m.Shards)
	require.NoError(t, err)
	require.True(t, bytes.Equal(plaintext, got))
}

func TestDecodeWrongPasswordFails(t *testing.T) {
	plaintext := []byte("secret payload")
	m, err := Encode(plaintext, "right-password", smallCfg())
	require.NoError(t, err)

	_, err = Decode(m, "wrong-password", m.Shards)
	require.ErrorIs(t, err, ErrDecrypt)
}

func TestDecodeToleratesParityLoss(t *testing.T) {
	plaintext := bytes.Repeat([]byte("payload-data-"), 10)
	cfg := smallCfg()
	m, err := Encode(plaintext, "pw", cfg)
	require.NoError(t, err)

	n := cfg.DataShards + cfg.ParityShards
	lossy := make([]Shard, 0, len(m.Shards))
	for _, s := range m.Shards {
		// drop the highest-indexed shard per chunk (a parity shard),
		// leaving DataShards+1 present for reconstruction.
		if s.ShardIndex == n-1 {
			continue
		}
		lossy = append(lossy, s)
	}

	got, err := Decode(m, "pw", lossy)
	require.NoError(t, err)
	require.True(t, bytes.Equal(plaintext, got))
}

func TestDecodeFailsBelowDataShardThreshold(t *testing.T) {
	plaintext := bytes.Repeat([]byte("x"), 40)
	cfg := smallCfg()
	m, err := Encode(plaintext, "pw", cfg)
	require.NoError(t, err)

	// keep only DataShards-1 shards for the first chunk.
	var short []Shard
	kept := 0
	for _, s := range m.Shards {
		if s.ChunkIndex != 0 {
			continue
		}
		if kept >= cfg.DataShards-1 {
			continue
		}
		short = append(short, s)
		kept++
	}

	_, err = Decode(m, "pw", short)
	require.Error(t, err)
}

func TestManifestRootStableAndOrderSensitive(t *testing.T) {
	cids := []string{"a", "b", "c", "d", "e"}
	reordered := []string{"e", "d", "c", "b", "a"}
	require.Equal(t, manifestRoot(cids), manifestRoot(cids))
	require.NotEqual(t, manifestRoot(cids), manifestRoot(reordered))
}

func TestManifestTamperDetected(t *testing.T) {
	plaintext := []byte("tamper-detection payload")
	m, err := Encode(plaintext, "pw", smallCfg())
	require.NoError(t, err)

	m.Shards[0].Bytes = append([]byte(nil), m.Shards[0].Bytes...)
	m.Shards[0].Bytes[0] ^= 0xFF

	_, err = Decode(m, "pw", m.Shards)
	require.ErrorIs(t, err, ErrCIDMismatch)
}

func TestEncodeEmptyPlaintext(t *testing.T) {
	m, err := Encode(nil, "pw", smallCfg())
	require.NoError(t, err)
	require.Equal(t, int64(0), m.TotalBytes)
	require.Equal(t, 1, m.ChunkCount)

	got, err := Decode(m, "pw", m.Shards)
	require.NoError(t, err)
	require.Empty(t, got)
}
