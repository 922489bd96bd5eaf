// Package blockstore is the storage node's single-node, content-addressed
// key/value store. Values are encrypted at rest under the node's long-lived
// symmetric key; a legacy-plaintext fallback lets older, unencrypted rows
// keep working after a format upgrade.
package blockstore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"

	bolt "go.etcd.io/bbolt"

	"github.com/driftmesh/driftmesh/internal/apierr"
)

var (
	chunkBucket = []byte("chunks")
	metaBucket  = []byte("meta")
	usedKey     = []byte("used_bytes")
)

const chunkKeyPrefix = "c:"
const nonceSize = 12 // 96 bits, AES-GCM standard nonce size

// Store is a single node's encrypted-at-rest content-addressed block store.
type Store struct {
	db       *bolt.DB
	gcm      cipher.AEAD
	capacity uint64
}

// Open opens (creating if absent) a bbolt database at path, sized to
// capacityBytes, encrypting every value under key (32 bytes, AES-256).
func Open(path string, capacityBytes uint64, key [32]byte) (*Store, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, apierr.Catalog.Wrap(err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(chunkBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(metaBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, apierr.Catalog.Wrap(err)
	}

	block, err := aes.NewCipher(key[:])
	if err != nil {
		db.Close()
		return nil, apierr.Cryptography.Wrap(err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		db.Close()
		return nil, apierr.Cryptography.Wrap(err)
	}

	return &Store{db: db, gcm: gcm, capacity: capacityBytes}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

func chunkKey(cid string) []byte { return []byte(chunkKeyPrefix + cid) }

// Save encrypts bytes under a fresh random nonce and writes them under cid.
// It returns false (never an error) when the write would push used bytes
// over capacity; a replay of the same cid with identical bytes is
// idempotent with respect to the used-bytes accounting.
func (s *Store) Save(cid string, plaintext []byte) (bool, error) {
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return false, apierr.Cryptography.Wrap(err)
	}
	sealed := s.gcm.Seal(nil, nonce, plaintext, nil)
	payload := append(nonce, sealed...)

	var ok bool
	err := s.db.Update(func(tx *bolt.Tx) error {
		cb := tx.Bucket(chunkBucket)
		mb := tx.Bucket(metaBucket)

		existingLen := uint64(0)
		if v := cb.Get(chunkKey(cid)); v != nil {
			existingLen = uint64(len(v))
		}
		used := readUsed(mb)
		projected := saturatingSub(used, existingLen) + uint64(len(payload))
		if projected > s.capacity {
			ok = false
			return nil
		}
		if err := cb.Put(chunkKey(cid), payload); err != nil {
			return err
		}
		ok = true
		return writeUsed(mb, projected)
	})
	if err != nil {
		return false, apierr.Catalog.Wrap(err)
	}
	return ok, nil
}

// Retrieve returns the plaintext stored under cid, or (nil, false) if
// absent. It checks the content-addressed key first, then a legacy
// unprefixed key; a payload under 12 bytes, or one that fails to decrypt, is
// returned as-is under the legacy-plaintext fallback.
func (s *Store) Retrieve(cid string) ([]byte, bool, error) {
	var payload []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		cb := tx.Bucket(chunkBucket)
		if v := cb.Get(chunkKey(cid)); v != nil {
			payload = append([]byte(nil), v...)
			return nil
		}
		if v := cb.Get([]byte(cid)); v != nil {
			payload = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, apierr.Catalog.Wrap(err)
	}
	if payload == nil {
		return nil, false, nil
	}
	if len(payload) < nonceSize {
		return payload, true, nil
	}
	nonce, ciphertext := payload[:nonceSize], payload[nonceSize:]
	plain, err := s.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return payload, true, nil // legacy plaintext fallback
	}
	return plain, true, nil
}

// Delete removes cid and decrements used bytes by its stored length. It
// returns false if the key was absent.
func (s *Store) Delete(cid string) (bool, error) {
	var existed bool
	err := s.db.Update(func(tx *bolt.Tx) error {
		cb := tx.Bucket(chunkBucket)
		mb := tx.Bucket(metaBucket)
		v := cb.Get(chunkKey(cid))
		if v == nil {
			return nil
		}
		existed = true
		removedLen := uint64(len(v))
		if err := cb.Delete(chunkKey(cid)); err != nil {
			return err
		}
		used := readUsed(mb)
		return writeUsed(mb, saturatingSub(used, removedLen))
	})
	if err != nil {
		return false, apierr.Catalog.Wrap(err)
	}
	return existed, nil
}

// UsedBytes returns the current accounted used-bytes counter.
func (s *Store) UsedBytes() (uint64, error) {
	var used uint64
	err := s.db.View(func(tx *bolt.Tx) error {
		used = readUsed(tx.Bucket(metaBucket))
		return nil
	})
	if err != nil {
		return 0, apierr.Catalog.Wrap(err)
	}
	return used, nil
}

func readUsed(mb *bolt.Bucket) uint64 {
	v := mb.Get(usedKey)
	if len(v) != 8 {
		return 0
	}
	return binary.LittleEndian.Uint64(v)
}

func writeUsed(mb *bolt.Bucket, n uint64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], n)
	return mb.Put(usedKey, b[:])
}

func saturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

// PutIdentityKey persists the node's protobuf-encoded long-lived private key
// under the meta bucket, so it survives process restarts.
func (s *Store) PutIdentityKey(b []byte) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(metaBucket).Put([]byte("identity_key"), b)
	})
	if err != nil {
		return apierr.Catalog.Wrap(err)
	}
	return nil
}

// IdentityKey returns the persisted identity key, or (nil, false) if none
// has been stored yet.
func (s *Store) IdentityKey() ([]byte, bool, error) {
	var b []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(metaBucket).Get([]byte("identity_key")); v != nil {
			b = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, apierr.Catalog.Wrap(err)
	}
	return b, b != nil, nil
}
