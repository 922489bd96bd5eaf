package orchestrator

import (
	"context"
	"math"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/driftmesh/driftmesh/internal/apierr"
	"github.com/driftmesh/driftmesh/internal/catalog"
	"github.com/driftmesh/driftmesh/internal/pipeline"
)

// maxReplicationFactor is the absolute ceiling thundering-herd expansion
// will push an object's shard count to, regardless of how large its
// computed redundancy multiplier is.
const maxReplicationFactor = 100

// RepairObject reconstructs objectCID from any K of its currently-placed
// shards and dispatches fresh store requests for every shard index missing
// from the catalog's placement rows, up to the object's original shard
// count. It is the orchestrator's half of the repair sweeper's contract
// ("re-encode from any K available shards and redistribute") — the
// sweeper decides *when* an object needs this, RepairObject knows *how*
// since it already owns the metadata-unwrap and erasure primitives GET
// uses.
func (o *Orchestrator) RepairObject(ctx context.Context, objectCID string) error {
	obj, found, err := o.catalog.GetObjectByCID(ctx, objectCID)
	if err != nil {
		return err
	}
	if !found {
		return apierr.NotFound.New("no catalog row for object %s", objectCID)
	}

	placements, err := o.catalog.ShardsForObject(ctx, objectCID)
	if err != nil {
		return err
	}
	if len(placements) >= obj.Shards {
		return nil
	}

	payload, present, err := o.collectAndDecode(ctx, objectCID, obj, placements)
	if err != nil {
		return err
	}
	return o.redistribute(ctx, objectCID, payload, obj.RecoveryThreshold, obj.Shards, present, "repair")
}

// ExpandObject widens objectCID's target shard count by multiplier (clamped
// to maxReplicationFactor) and redistributes the additional parity shards,
// implementing the "thundering herd" policy: an object whose GET rate
// crosses the heat tracker's threshold is expanded toward a higher
// replication factor to spread read load across more peers. This is
// RepairObject's counterpart for an object that is already at its baseline
// shard count — RepairObject is a no-op in that case (it never grows an
// object past the count it started with), so a hot-but-healthy object,
// the common case for a popular one, would otherwise never benefit from
// the heat signal at all.
func (o *Orchestrator) ExpandObject(ctx context.Context, objectCID string, multiplier float64) error {
	obj, found, err := o.catalog.GetObjectByCID(ctx, objectCID)
	if err != nil {
		return err
	}
	if !found {
		return apierr.NotFound.New("no catalog row for object %s", objectCID)
	}
	if multiplier < 1 {
		multiplier = 1
	}
	targetShards := int(math.Ceil(float64(obj.Shards) * multiplier))
	if targetShards > maxReplicationFactor {
		targetShards = maxReplicationFactor
	}
	if targetShards <= obj.Shards {
		return nil
	}

	placements, err := o.catalog.ShardsForObject(ctx, objectCID)
	if err != nil {
		return err
	}

	payload, present, err := o.collectAndDecode(ctx, objectCID, obj, placements)
	if err != nil {
		return err
	}

	if err := o.catalog.UpdateObjectShardCount(ctx, objectCID, targetShards); err != nil {
		return err
	}
	return o.redistribute(ctx, objectCID, payload, obj.RecoveryThreshold, targetShards, present, "expand")
}

// collectAndDecode retrieves k of obj's currently-placed shards, verifies
// and reassembles the plaintext payload, and reports which shard indices
// are already placed so the caller knows what it must not re-store.
func (o *Orchestrator) collectAndDecode(ctx context.Context, objectCID string, obj catalog.Object, placements []catalog.ShardPlacement) ([]byte, map[int]bool, error) {
	k := obj.RecoveryThreshold
	if len(placements) < k {
		return nil, nil, apierr.Integrity.New("object %s has only %d of %d required shards, cannot repair", objectCID, len(placements), k)
	}

	meta, err := o.unwrapMetadata(obj.MetadataJSON)
	if err != nil {
		return nil, nil, err
	}

	present := make(map[int]bool, len(placements))
	collected := make([]pipeline.Shard, 0, k)
	for _, p := range placements {
		present[p.ShardIndex] = true
		if len(collected) >= k {
			continue
		}
		preferred, _ := peer.Decode(p.PeerID)
		ack, err := o.mux.Retrieve(ctx, p.ShardCID, preferred)
		if err != nil || !ack.Found || !ack.Verified {
			continue
		}
		collected = append(collected, pipeline.Shard{
			ShardIndex:   p.ShardIndex,
			CID:          p.ShardCID,
			Bytes:        ack.Bytes,
			DataShards:   k,
			ParityShards: obj.Shards - k,
		})
	}
	if len(collected) < k {
		return nil, nil, apierr.Integrity.New("only retrieved %d of %d required shards for %s", len(collected), k, objectCID)
	}

	payload, err := o.pool.run(ctx, func() ([]byte, error) {
		return pipeline.ErasureDecode(collected, k, obj.Shards, meta.PayloadLen)
	})
	if err != nil {
		return nil, nil, err
	}
	return payload, present, nil
}

// redistribute re-encodes payload into n shards (k of them data, matching
// the object's original recovery threshold) and stores every shard index
// not already in present. Every dispatch runs to completion even after the
// first failure; only the first error is returned.
func (o *Orchestrator) redistribute(ctx context.Context, objectCID string, payload []byte, k, n int, present map[int]bool, verb string) error {
	shards, _, err := pipeline.ErasureEncode(payload, k, n)
	if err != nil {
		return err
	}

	var firstErr error
	for _, s := range shards {
		if present[s.ShardIndex] {
			continue
		}
		ack, err := o.mux.Store(ctx, s.CID, objectCID, s.Bytes, "GLOBAL")
		if err != nil || !ack.Stored || !ack.SignatureValid {
			if firstErr == nil {
				if err != nil {
					firstErr = err
				} else {
					firstErr = apierr.Transport.New("%s store for shard %d of %s not acknowledged", verb, s.ShardIndex, objectCID)
				}
			}
			continue
		}
		if perr := o.catalog.InsertShardPlacement(ctx, catalog.ShardPlacement{
			ObjectCID:             objectCID,
			ShardIndex:            s.ShardIndex,
			ShardCID:              s.CID,
			PeerID:                ack.PeerID.String(),
			CountryCode:           ack.Country,
			ReceiptTimestampMs:    ack.TimestampMs,
			ReceiptSignatureValid: ack.SignatureValid,
		}); perr != nil && firstErr == nil {
			firstErr = perr
		}
	}
	return firstErr
}
