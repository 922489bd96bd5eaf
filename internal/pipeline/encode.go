package pipeline

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"io"

	"golang.org/x/crypto/argon2"
)

const (
	saltSize      = 16
	keySize       = 32 // AES-256
	argon2Time    = 1
	argon2Memory  = 64 * 1024 // KiB
	argon2Threads = 4
)

func deriveKey(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, argon2Time, argon2Memory, argon2Threads, keySize)
}

// Encode splits plaintext into fixed-size chunks, AEAD-encrypts each chunk
// under a key derived from password, erasure-codes the encrypted chunk into
// cfg.DataShards+cfg.ParityShards shares, and returns the manifest needed to
// reconstruct it.
func Encode(plaintext []byte, password string, cfg Config) (*Manifest, error) {
	if cfg.ChunkSize <= 0 || cfg.DataShards <= 0 || cfg.ParityShards < 0 {
		return nil, ErrChunkSize
	}

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, ErrBadSalt
	}
	key := deriveKey(password, salt)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, ErrDecrypt
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, ErrDecrypt
	}

	codec, err := newRSCodec(cfg.DataShards, cfg.DataShards+cfg.ParityShards)
	if err != nil {
		return nil, err
	}

	var allShards []Shard
	totalBytes := int64(len(plaintext))
	chunkCount := 0
	for offset := 0; offset < len(plaintext) || (len(plaintext) == 0 && chunkCount == 0); offset += cfg.ChunkSize {
		end := offset + cfg.ChunkSize
		if end > len(plaintext) {
			end = len(plaintext)
		}
		chunk := plaintext[offset:end]

		nonce := make([]byte, gcm.NonceSize())
		if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
			return nil, ErrBadSalt
		}
		ciphertext := gcm.Seal(nil, nonce, chunk, nil)
		payload := append(append([]byte(nil), nonce...), ciphertext...)
		payloadLen := len(payload)

		padded := payload
		if rem := len(padded) % cfg.DataShards; rem != 0 {
			padded = append(padded, make([]byte, cfg.DataShards-rem)...)
		}

		shares, err := codec.encode(padded)
		if err != nil {
			return nil, err
		}
		for shardIdx, share := range shares {
			allShards = append(allShards, Shard{
				ChunkIndex:   chunkCount,
				ShardIndex:   shardIdx,
				CID:          shardCID(share),
				Bytes:        share,
				PayloadLen:   payloadLen,
				DataShards:   cfg.DataShards,
				ParityShards: cfg.ParityShards,
			})
		}
		chunkCount++
		if len(plaintext) == 0 {
			break
		}
	}

	root := manifestRoot(orderedCIDs(allShards))

	m := &Manifest{
		Version:      1,
		Salt:         salt,
		ManifestRoot: root,
		TotalBytes:   totalBytes,
		ChunkCount:   chunkCount,
		Shards:       allShards,
	}
	m.ManifestHash = computeManifestHash(m)
	m.AuthTag = computeAuthTag(key, m.ManifestHash)
	return m, nil
}

func computeManifestHash(m *Manifest) string {
	h := sha256.New()
	h.Write(m.Salt)
	h.Write([]byte(m.ManifestRoot))
	for _, cid := range orderedCIDs(m.Shards) {
		h.Write([]byte(cid))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// computeAuthTag binds the manifest hash to the derived key so a party
// holding the right password can assert manifest authenticity without
// decrypting any chunk.
func computeAuthTag(key []byte, manifestHash string) string {
	h := sha256.New()
	h.Write(key)
	h.Write([]byte(manifestHash))
	return hex.EncodeToString(h.Sum(nil))
}
