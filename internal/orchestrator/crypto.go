package orchestrator

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"io"

	"github.com/driftmesh/driftmesh/internal/apierr"
)

// sealDeterministic AES-GCM-encrypts plaintext under key using a nonce
// derived from the plaintext itself rather than a random one. This is a
// deliberate simplification for the logical-key column: it must still be
// queryable by exact match (catalog lookups are WHERE key = $1), which a
// randomized nonce would make impossible without decrypting every row. The
// same plaintext always seals to the same ciphertext; that equality leak is
// the accepted tradeoff for point lookups on an encrypted column.
func sealDeterministic(key []byte, plaintext string) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", apierr.Cryptography.Wrap(err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", apierr.Cryptography.Wrap(err)
	}
	sum := sha256.Sum256([]byte(plaintext))
	nonce := sum[:gcm.NonceSize()]
	ciphertext := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(append(append([]byte(nil), nonce...), ciphertext...)), nil
}

// openDeterministic is the inverse of sealDeterministic.
func openDeterministic(key []byte, encoded string) (string, error) {
	raw, err := hex.DecodeString(encoded)
	if err != nil {
		return "", apierr.Cryptography.Wrap(err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", apierr.Cryptography.Wrap(err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", apierr.Cryptography.Wrap(err)
	}
	if len(raw) < gcm.NonceSize() {
		return "", apierr.Cryptography.New("truncated deterministic ciphertext")
	}
	nonce, ciphertext := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", apierr.Cryptography.Wrap(err)
	}
	return string(plain), nil
}

// sealRandom AES-GCM-encrypts plaintext under key with a fresh random
// nonce prefixed to the returned ciphertext. Used for the metadata blob and
// the shadow-manifest pin, neither of which needs to be looked up by value.
func sealRandom(key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, apierr.Cryptography.Wrap(err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, apierr.Cryptography.Wrap(err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, apierr.Cryptography.Wrap(err)
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// openRandom is the inverse of sealRandom.
func openRandom(key, blob []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, apierr.Cryptography.Wrap(err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, apierr.Cryptography.Wrap(err)
	}
	if len(blob) < gcm.NonceSize() {
		return nil, apierr.Cryptography.New("truncated blob")
	}
	nonce, ciphertext := blob[:gcm.NonceSize()], blob[gcm.NonceSize():]
	return gcm.Open(nil, nonce, ciphertext, nil)
}
