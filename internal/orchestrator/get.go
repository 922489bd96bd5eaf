package orchestrator

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"math/big"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/driftmesh/driftmesh/internal/apierr"
	"github.com/driftmesh/driftmesh/internal/pipeline"
)

// Get implements the object orchestrator's GET sequence: resolve the
// catalog row, race retrieval of the object's shards with a decoy, decode
// off the blocking pool, and AEAD-decrypt under the wrapped content hash.
func (o *Orchestrator) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	encKey, err := sealDeterministic(o.cfg.GatewayKey, key)
	if err != nil {
		return nil, err
	}
	obj, found, err := o.catalog.GetObject(ctx, bucket, encKey)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, apierr.NotFound.New("object %s/%s", bucket, key)
	}

	if cached, ok := o.cache.get(obj.CID); ok {
		if o.onRetrieve != nil {
			o.onRetrieve(obj.CID)
		}
		return cached, nil
	}

	placements, err := o.catalog.ShardsForObject(ctx, obj.CID)
	if err != nil {
		return nil, err
	}
	if len(placements) == 0 {
		return nil, apierr.NotFound.New("no known placements for %s", obj.CID)
	}

	type retrieved struct {
		idx   int
		cid   string
		bytes []byte
	}
	resultCh := make(chan retrieved, len(placements))
	retrieveCtx, cancel := context.WithTimeout(ctx, 8*time.Second)
	defer cancel()

	for _, p := range placements {
		p := p
		go func() {
			jitter(1, 15)
			preferred, _ := peer.Decode(p.PeerID)
			ack, err := o.mux.Retrieve(retrieveCtx, p.ShardCID, preferred)
			if err == nil && ack.Found && ack.Verified {
				resultCh <- retrieved{idx: p.ShardIndex, cid: p.ShardCID, bytes: ack.Bytes}
			} else {
				resultCh <- retrieved{idx: -1}
			}
		}()
	}
	// One decoy retrieve against a random, almost-certainly-nonexistent
	// cid, fired alongside the real ones to break correlated timing
	// between "this peer actually has the shard" and "the gateway asked
	// for it"; its result is discarded.
	go func() {
		decoyCID := randomHex(32)
		_, _ = o.mux.Retrieve(retrieveCtx, decoyCID, "")
	}()

	k := obj.RecoveryThreshold
	collected := make([]pipeline.Shard, 0, k)
	seen := make(map[int]bool, k)
	for i := 0; i < len(placements) && len(collected) < k; i++ {
		select {
		case r := <-resultCh:
			if r.idx < 0 || seen[r.idx] {
				continue
			}
			seen[r.idx] = true
			collected = append(collected, pipeline.Shard{
				ChunkIndex:   0,
				ShardIndex:   r.idx,
				CID:          r.cid,
				Bytes:        r.bytes,
				DataShards:   obj.RecoveryThreshold,
				ParityShards: obj.Shards - obj.RecoveryThreshold,
			})
		case <-retrieveCtx.Done():
			return nil, apierr.Integrity.New("timed out collecting %d of %d required shards for %s", len(collected), k, obj.CID)
		}
	}
	if len(collected) < k {
		return nil, apierr.Integrity.Wrap(pipeline.ErrInsufficientShards)
	}

	meta, err := o.unwrapMetadata(obj.MetadataJSON)
	if err != nil {
		return nil, err
	}
	contentHash, err := hex.DecodeString(meta.ContentHash)
	if err != nil {
		return nil, apierr.Cryptography.Wrap(err)
	}

	payload, err := o.pool.run(ctx, func() ([]byte, error) {
		return pipeline.ErasureDecode(collected, obj.RecoveryThreshold, obj.Shards, meta.PayloadLen)
	})
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(contentHash)
	if err != nil {
		return nil, apierr.Cryptography.Wrap(err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, apierr.Cryptography.Wrap(err)
	}
	if len(payload) < gcm.NonceSize() {
		return nil, apierr.Cryptography.New("reconstructed payload shorter than nonce")
	}
	nonce, ciphertext := payload[:gcm.NonceSize()], payload[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, apierr.Cryptography.Wrap(err)
	}

	o.cache.put(obj.CID, plaintext)
	if o.onRetrieve != nil {
		o.onRetrieve(obj.CID)
	}
	return plaintext, nil
}

func jitter(minMs, maxMs int) {
	n, _ := rand.Int(rand.Reader, big.NewInt(int64(maxMs-minMs+1)))
	time.Sleep(time.Duration(minMs+int(n.Int64())) * time.Millisecond)
}

func randomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func (o *Orchestrator) unwrapMetadata(column json.RawMessage) (objectMetadata, error) {
	var meta objectMetadata
	var wrapper struct {
		Enc string `json:"enc"`
	}
	if err := json.Unmarshal(column, &wrapper); err != nil {
		return meta, apierr.Catalog.Wrap(err)
	}
	sealed, err := hex.DecodeString(wrapper.Enc)
	if err != nil {
		return meta, apierr.Cryptography.Wrap(err)
	}
	plain, err := openRandom(o.cfg.GatewayKey, sealed)
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(plain, &meta); err != nil {
		return meta, apierr.Catalog.Wrap(err)
	}
	return meta, nil
}
