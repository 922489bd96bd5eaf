package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
)

func shardCID(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// manifestRoot folds an ordered sequence of shard CIDs with a pairwise
// SHA-256 construction: at each level hash consecutive pairs, duplicating
// the last element if the level has odd length, until one root remains. It
// depends only on the order of cids — permuting the input permutes the
// root.
func manifestRoot(cids []string) string {
	if len(cids) == 0 {
		return hex.EncodeToString(sha256.New().Sum(nil))
	}
	level := make([]string, len(cids))
	copy(level, cids)
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([]string, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			h := sha256.New()
			h.Write([]byte(level[i]))
			h.Write([]byte(level[i+1]))
			next = append(next, hex.EncodeToString(h.Sum(nil)))
		}
		level = next
	}
	return level[0]
}

// orderedCIDs returns every shard's CID ordered by (chunk index, shard
// index), the order manifestRoot's stability guarantee depends on.
func orderedCIDs(shards []Shard) []string {
	ordered := make([]Shard, len(shards))
	copy(ordered, shards)
	// Simple insertion-style stable ordering; shard counts per object are
	// small enough (<= a few hundred) that an O(n^2) sort isn't a concern
	// and it keeps this file free of a sort.Slice closure capturing state.
	for i := 1; i < len(ordered); i++ {
		j := i
		for j > 0 && less(ordered[j], ordered[j-1]) {
			ordered[j], ordered[j-1] = ordered[j-1], ordered[j]
			j--
		}
	}
	cids := make([]string, len(ordered))
	for i, s := range ordered {
		cids[i] = s.CID
	}
	return cids
}

func less(a, b Shard) bool {
	if a.ChunkIndex != b.ChunkIndex {
		return a.ChunkIndex < b.ChunkIndex
	}
	return a.ShardIndex < b.ShardIndex
}
