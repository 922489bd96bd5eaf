package orchestrator

import lru "github.com/hashicorp/golang-lru/v2"

// plaintextCache holds recently-reconstructed object plaintext keyed by
// object CID, so a hot GET never has to re-run erasure decode. Bounded and
// evicted LRU rather than grown unboundedly, since reconstructed objects
// can be large.
type plaintextCache struct {
	inner *lru.Cache[string, []byte]
}

func newPlaintextCache(size int) *plaintextCache {
	if size <= 0 {
		size = 1
	}
	c, _ := lru.New[string, []byte](size)
	return &plaintextCache{inner: c}
}

func (c *plaintextCache) get(objectCID string) ([]byte, bool) {
	return c.inner.Get(objectCID)
}

func (c *plaintextCache) put(objectCID string, plaintext []byte) {
	c.inner.Add(objectCID, plaintext)
}

func (c *plaintextCache) evict(objectCID string) {
	c.inner.Remove(objectCID)
}
