package orchestrator

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"time"

	"github.com/mr-tron/base58"

	"github.com/driftmesh/driftmesh/internal/apierr"
	"github.com/driftmesh/driftmesh/internal/catalog"
	"github.com/driftmesh/driftmesh/internal/pipeline"
)

// PutRequest carries everything the caller controls about one PUT.
type PutRequest struct {
	Bucket      string
	Key         string
	OwnerEmail  string
	Body        io.Reader
	GeofenceTag string
	// PrivateSalt, when non-empty, is the caller-supplied
	// x-neuro-private-salt header value: its presence always produces a
	// private, non-deduplicated content hash regardless of the bucket's
	// dedup setting.
	PrivateSalt []byte
	DedupOptIn  bool // bucket's dedup_enabled value to use on first creation
}

// PutResult is what the orchestrator reports back to the HTTP layer.
type PutResult struct {
	ObjectCID string
	ETag      string
	Size      int64
}

type objectMetadata struct {
	ContentHash string `json:"content_hash"`
	Nonce       string `json:"nonce"`
	PayloadLen  int    `json:"payload_len"`
	Shredded    bool   `json:"shredded,omitempty"`
	ShredNoise  string `json:"shred_noise,omitempty"`
	ShreddedAt  string `json:"shredded_at,omitempty"`
}

// Put implements the object orchestrator's PUT sequence: hash, encrypt,
// erasure-code, dispatch to quorum, persist the catalog row, and pin a
// shadow manifest in the background.
func (o *Orchestrator) Put(ctx context.Context, req PutRequest) (PutResult, error) {
	if err := o.catalog.CreateBucket(ctx, req.Bucket, req.OwnerEmail, req.DedupOptIn); err != nil {
		return PutResult{}, err
	}

	body, err := io.ReadAll(io.LimitReader(req.Body, o.cfg.BodyCapBytes+1))
	if err != nil {
		return PutResult{}, apierr.Transport.Wrap(err)
	}
	if int64(len(body)) > o.cfg.BodyCapBytes {
		return PutResult{}, apierr.Capacity.New("body of %d bytes exceeds cap of %d", len(body), o.cfg.BodyCapBytes)
	}

	contentHash, err := o.computeContentHash(ctx, req.Bucket, body, req.PrivateSalt)
	if err != nil {
		return PutResult{}, err
	}

	block, err := aes.NewCipher(contentHash)
	if err != nil {
		return PutResult{}, apierr.Cryptography.Wrap(err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return PutResult{}, apierr.Cryptography.Wrap(err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return PutResult{}, apierr.Cryptography.Wrap(err)
	}
	ciphertext := gcm.Seal(nil, nonce, body, nil)
	payload := append(append([]byte(nil), nonce...), ciphertext...)

	objectSum := sha256.Sum256(ciphertext)
	objectCID := "Qm" + base58.Encode(objectSum[:])
	etag := hex.EncodeToString(md5sum(body))

	shards, payloadLen, err := pipeline.ErasureEncode(payload, o.cfg.DataShards, o.cfg.DataShards+o.cfg.ParityShards)
	if err != nil {
		return PutResult{}, err
	}

	shardIndices := make([]int, len(shards))
	shardCIDs := make([]string, len(shards))
	shardBytes := make([][]byte, len(shards))
	for i, s := range shards {
		shardIndices[i] = s.ShardIndex
		shardCIDs[i] = s.CID
		shardBytes[i] = s.Bytes
	}

	bgCtx := context.WithoutCancel(ctx)
	results := o.dispatchStores(bgCtx, objectCID, shardIndices, shardCIDs, shardBytes, req.GeofenceTag)

	quorum := o.cfg.DataShards + o.cfg.QuorumDelta
	acked := 0
	deadline := time.After(10 * time.Second)
quorumLoop:
	for acked < quorum {
		select {
		case r, ok := <-results:
			if !ok {
				break quorumLoop
			}
			if r.err == nil && r.ack.Stored && r.ack.SignatureValid {
				acked++
			}
		case <-deadline:
			break quorumLoop
		case <-ctx.Done():
			return PutResult{}, ctx.Err()
		}
	}
	if acked < quorum {
		return PutResult{}, apierr.Capacity.New("only %d of %d required store acks arrived for %s", acked, quorum, objectCID)
	}

	meta := objectMetadata{ContentHash: hex.EncodeToString(contentHash), Nonce: hex.EncodeToString(nonce), PayloadLen: payloadLen}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return PutResult{}, apierr.Catalog.Wrap(err)
	}
	sealedMeta, err := sealRandom(o.cfg.GatewayKey, metaJSON)
	if err != nil {
		return PutResult{}, err
	}
	encMetaColumn, err := json.Marshal(map[string]string{"enc": hex.EncodeToString(sealedMeta)})
	if err != nil {
		return PutResult{}, apierr.Catalog.Wrap(err)
	}

	encKey, err := sealDeterministic(o.cfg.GatewayKey, req.Key)
	if err != nil {
		return PutResult{}, err
	}

	obj := catalog.Object{
		Bucket:            req.Bucket,
		Key:               encKey,
		ETag:              etag,
		CID:               objectCID,
		Shards:            len(shards),
		RecoveryThreshold: o.cfg.DataShards,
		Size:              int64(len(body)),
		MetadataJSON:      encMetaColumn,
	}
	if err := o.catalog.PutObject(ctx, obj); err != nil {
		return PutResult{}, err
	}

	go o.pinShadowManifest(context.WithoutCancel(ctx), req.Bucket, req.Key, obj)

	return PutResult{ObjectCID: objectCID, ETag: etag, Size: int64(len(body))}, nil
}

// computeContentHash implements the dedup opt-in rule: a caller-supplied
// private salt always wins; otherwise dedup only happens when the bucket
// has it enabled, and a freshly generated random salt keeps non-dedup
// objects unique even when no private salt was supplied.
func (o *Orchestrator) computeContentHash(ctx context.Context, bucket string, body, privateSalt []byte) ([]byte, error) {
	if len(privateSalt) > 0 {
		h := sha256.New()
		h.Write(body)
		h.Write(privateSalt)
		return h.Sum(nil), nil
	}
	dedupEnabled, err := o.catalog.BucketDedupEnabled(ctx, bucket)
	if err != nil {
		return nil, err
	}
	if dedupEnabled {
		sum := sha256.Sum256(body)
		return sum[:], nil
	}
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, apierr.Cryptography.Wrap(err)
	}
	h := sha256.New()
	h.Write(body)
	h.Write(salt)
	return h.Sum(nil), nil
}

func md5sum(b []byte) []byte {
	sum := md5.Sum(b)
	return sum[:]
}
