package pipeline

import (
	"crypto/aes"
	"crypto/cipher"
)

// Decode is the inverse of Encode: given the manifest, the password, and a
// (possibly partial) set of recovered shards, it reconstructs the original
// plaintext. shards need not include every shard the manifest lists — any
// cfg.DataShards-or-more per chunk, with CIDs matching the manifest, is
// enough.
func Decode(m *Manifest, password string, shards []Shard) ([]byte, error) {
	key := deriveKey(password, m.Salt)

	if computeAuthTag(key, m.ManifestHash) != m.AuthTag {
		return nil, ErrDecrypt
	}
	if computeManifestHash(m) != m.ManifestHash {
		return nil, ErrCIDMismatch
	}

	byCID := make(map[string][]byte, len(shards))
	for _, s := range shards {
		if shardCID(s.Bytes) != s.CID {
			return nil, ErrCIDMismatch
		}
		byCID[s.CID] = s.Bytes
	}

	byChunk := make([][]Shard, m.ChunkCount)
	for _, s := range m.Shards {
		byChunk[s.ChunkIndex] = append(byChunk[s.ChunkIndex], s)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, ErrDecrypt
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, ErrDecrypt
	}

	var out []byte
	for chunkIdx := 0; chunkIdx < m.ChunkCount; chunkIdx++ {
		chunkShards := byChunk[chunkIdx]
		if len(chunkShards) == 0 {
			continue
		}
		k := chunkShards[0].DataShards
		n := k + chunkShards[0].ParityShards
		payloadLen := chunkShards[0].PayloadLen

		present := make([][]byte, n)
		for _, s := range chunkShards {
			if b, ok := byCID[s.CID]; ok {
				present[s.ShardIndex] = b
			}
		}

		codec, err := newRSCodec(k, n)
		if err != nil {
			return nil, err
		}
		padded, err := codec.decode(present)
		if err != nil {
			return nil, err
		}
		if payloadLen > len(padded) {
			return nil, ErrPayloadTooShort
		}
		payload := padded[:payloadLen]

		nonceSize := gcm.NonceSize()
		if len(payload) < nonceSize {
			return nil, ErrPayloadTooShort
		}
		nonce, ciphertext := payload[:nonceSize], payload[nonceSize:]
		plainChunk, err := gcm.Open(nil, nonce, ciphertext, nil)
		if err != nil {
			return nil, ErrDecrypt
		}
		out = append(out, plainChunk...)
	}
	return out, nil
}
