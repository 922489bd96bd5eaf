package orchestrator

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"io"
	"time"

	"github.com/driftmesh/driftmesh/internal/apierr"
)

// Delete implements the object orchestrator's DELETE sequence: best-effort
// delete dispatches to every known placement, a cryptographic shred of the
// metadata blob (destroying the only copy of the wrapped content key), and
// finally the catalog row removal.
func (o *Orchestrator) Delete(ctx context.Context, bucket, key string) error {
	encKey, err := sealDeterministic(o.cfg.GatewayKey, key)
	if err != nil {
		return err
	}
	obj, found, err := o.catalog.GetObject(ctx, bucket, encKey)
	if err != nil {
		return err
	}
	if !found {
		return apierr.NotFound.New("object %s/%s", bucket, key)
	}

	placements, err := o.catalog.ShardsForObject(ctx, obj.CID)
	if err != nil {
		return err
	}
	for _, p := range placements {
		p := p
		go func() {
			_, _ = o.mux.Delete(context.WithoutCancel(ctx), p.ShardCID)
		}()
	}

	noise := make([]byte, 32)
	_, _ = io.ReadFull(rand.Reader, noise)
	shredded := objectMetadata{
		Shredded:   true,
		ShredNoise: hex.EncodeToString(noise),
		ShreddedAt: time.Now().UTC().Format(time.RFC3339),
	}
	shreddedJSON, err := json.Marshal(shredded)
	if err != nil {
		return apierr.Catalog.Wrap(err)
	}
	sealedShred, err := sealRandom(o.cfg.GatewayKey, shreddedJSON)
	if err != nil {
		return err
	}
	shredColumn, err := json.Marshal(map[string]string{"enc": hex.EncodeToString(sealedShred)})
	if err != nil {
		return apierr.Catalog.Wrap(err)
	}
	if err := o.catalog.UpdateObjectMetadata(ctx, bucket, encKey, shredColumn); err != nil {
		return err
	}

	o.cache.evict(obj.CID)
	return o.catalog.DeleteObject(ctx, bucket, encKey)
}
