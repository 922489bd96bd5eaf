package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/klauspost/compress/zstd"

	"github.com/driftmesh/driftmesh/internal/apierr"
	"github.com/driftmesh/driftmesh/internal/catalog"
)

// shadowManifestRecord is the durable-outside-the-catalog copy of an
// object's catalog row, pinned into the swarm keyed by a hash of
// bucket+key so the catalog can be re-materialized if the database is
// lost. ManifestAuthTag binds it to the gateway key so a recovered record
// can be trusted without a second round of catalog verification.
type shadowManifestRecord struct {
	Bucket            string          `json:"bucket"`
	Key               string          `json:"key"` // plaintext logical key, only ever exposed inside this sealed record
	ObjectCID         string          `json:"object_cid"`
	ETag              string          `json:"etag"`
	Shards            int             `json:"shards"`
	RecoveryThreshold int             `json:"recovery_threshold"`
	Size              int64           `json:"size"`
	MetadataColumn    json.RawMessage `json:"metadata_column"`
	ManifestAuthTag   string          `json:"manifest_auth_tag"`
}

func shadowLocator(bucket, key string) string {
	sum := sha256.Sum256([]byte(bucket + ":" + key))
	return hex.EncodeToString(sum[:])
}

func manifestAuthTag(gatewayKey []byte, objectCID, etag string) string {
	h := sha256.New()
	h.Write(gatewayKey)
	h.Write([]byte(objectCID))
	h.Write([]byte(etag))
	return hex.EncodeToString(h.Sum(nil))
}

// pinShadowManifest serializes, zstd-compresses, and AEAD-seals obj's
// catalog row under the gateway key, then stores it in the swarm under a
// locator derived from bucket+key. Best-effort: a failure here never fails
// the PUT that triggered it, since the caller always runs this in the
// background.
func (o *Orchestrator) pinShadowManifest(ctx context.Context, bucket, key string, obj catalog.Object) {
	rec := shadowManifestRecord{
		Bucket: bucket, Key: key, ObjectCID: obj.CID, ETag: obj.ETag,
		Shards: obj.Shards, RecoveryThreshold: obj.RecoveryThreshold, Size: obj.Size,
		MetadataColumn:  obj.MetadataJSON,
		ManifestAuthTag: manifestAuthTag(o.cfg.GatewayKey, obj.CID, obj.ETag),
	}
	plain, err := json.Marshal(rec)
	if err != nil {
		o.log.WithError(err).Warn("shadow manifest marshal failed")
		return
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		o.log.WithError(err).Warn("zstd encoder init failed")
		return
	}
	defer enc.Close()
	compressed := enc.EncodeAll(plain, nil)

	sealed, err := sealRandom(o.cfg.GatewayKey, compressed)
	if err != nil {
		o.log.WithError(err).Warn("shadow manifest seal failed")
		return
	}

	locator := shadowLocator(bucket, key)
	if _, err := o.mux.Store(ctx, locator, locator, sealed, "GLOBAL"); err != nil {
		o.log.WithError(err).WithField("locator", locator).Debug("shadow manifest pin failed")
	}
}

// Reconstruct asks the swarm for the shadow manifest pinned under
// bucket+key and, if present and authentic, reinstalls the catalog row.
// Per the advisory-pin decision, a recovered manifest never replaces a
// catalog row that already exists for bucket/key; it only reinstalls a
// missing row, and only when ManifestAuthTag checks out.
func (o *Orchestrator) Reconstruct(ctx context.Context, bucket, key string) error {
	locator := shadowLocator(bucket, key)
	ack, err := o.mux.Retrieve(ctx, locator, "")
	if err != nil {
		return err
	}
	if !ack.Found || !ack.Verified {
		return apierr.NotFound.New("no shadow manifest for %s/%s", bucket, key)
	}

	compressed, err := openRandom(o.cfg.GatewayKey, ack.Bytes)
	if err != nil {
		return err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return apierr.Integrity.Wrap(err)
	}
	defer dec.Close()
	plain, err := dec.DecodeAll(compressed, nil)
	if err != nil {
		return apierr.Integrity.Wrap(err)
	}

	var rec shadowManifestRecord
	if err := json.Unmarshal(plain, &rec); err != nil {
		return apierr.Integrity.Wrap(err)
	}
	if rec.ManifestAuthTag != manifestAuthTag(o.cfg.GatewayKey, rec.ObjectCID, rec.ETag) {
		return apierr.Verification.New("shadow manifest auth tag mismatch for %s/%s", bucket, key)
	}

	encKey, err := sealDeterministic(o.cfg.GatewayKey, key)
	if err != nil {
		return err
	}
	_, exists, err := o.catalog.GetObject(ctx, rec.Bucket, encKey)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return o.catalog.PutObject(ctx, catalog.Object{
		Bucket:            rec.Bucket,
		Key:               encKey,
		ETag:              rec.ETag,
		CID:               rec.ObjectCID,
		Shards:            rec.Shards,
		RecoveryThreshold: rec.RecoveryThreshold,
		Size:              rec.Size,
		MetadataJSON:      rec.MetadataColumn,
	})
}
