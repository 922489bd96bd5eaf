package proof

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"io"
)

const (
	chainedEntropySize = 8  // random bytes appended to the previous response hash
	genesisEntropySize = 16 // random bytes used when there is no prior verified response
)

// responseHashLookup is the one catalog method the nonce chain depends on,
// narrowed to an interface so the chaining logic itself can be tested
// without a live database.
type responseHashLookup interface {
	LastVerifiedResponseHash(ctx context.Context, shardCID, peerID string) (string, bool, error)
}

// deriveNonce computes this round's nonce_hex for (shardCID, peerID): the
// SHA-256 of the previous verified response hash for that shard/peer pair
// concatenated with fresh entropy, or of a larger block of fresh entropy
// alone if no prior verified response exists (the genesis case).
func deriveNonce(ctx context.Context, store responseHashLookup, shardCID, peerID string) (string, error) {
	lastHash, found, err := store.LastVerifiedResponseHash(ctx, shardCID, peerID)
	if err != nil {
		return "", err
	}

	var entropy []byte
	if found {
		fresh, err := randomBytes(chainedEntropySize)
		if err != nil {
			return "", err
		}
		entropy = append([]byte(lastHash+"-"), fresh...)
	} else {
		entropy, err = randomBytes(genesisEntropySize)
		if err != nil {
			return "", err
		}
	}

	sum := sha256.Sum256(entropy)
	return hex.EncodeToString(sum[:]), nil
}

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, err
	}
	return b, nil
}

func randomHexBytes(n int) (string, error) {
	b, err := randomBytes(n)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
