package orchestrator

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/driftmesh/driftmesh/internal/catalog"
	"github.com/driftmesh/driftmesh/internal/multiplexer"
)

// Orchestrator layers per-object PUT/GET/DELETE semantics on top of a
// Multiplexer and a catalog Store. It holds no peer connection state of
// its own; every dispatch goes through the multiplexer's single-writer
// loop.
type Orchestrator struct {
	mux     *multiplexer.Multiplexer
	catalog *catalog.Store
	cfg     Config
	log     *logrus.Entry
	cache   *plaintextCache
	pool    *blockingPool

	// onRetrieve, when set, is called with an object's CID after every
	// successful GET — the hook the repair package's heat tracker attaches
	// to for "thundering herd" detection without the orchestrator needing
	// to know repair exists.
	onRetrieve func(objectCID string)
}

// SetRetrieveHook installs fn to be called after every successful GET.
// Passing nil disables the hook.
func (o *Orchestrator) SetRetrieveHook(fn func(objectCID string)) {
	o.onRetrieve = fn
}

// New constructs an Orchestrator. cfg.GatewayKey must be 32 bytes (AES-256).
func New(mux *multiplexer.Multiplexer, store *catalog.Store, cfg Config, log *logrus.Entry) *Orchestrator {
	return &Orchestrator{
		mux:     mux,
		catalog: store,
		cfg:     cfg,
		log:     log,
		cache:   newPlaintextCache(cfg.CacheSize),
		pool:    newBlockingPool(cfg.DecodeWorkers),
	}
}

// shardAck is one completed store dispatch, paired with the shard it was
// for so the background placement-row writer knows its index and CID.
type shardAck struct {
	shardIndex int
	shardCID   string
	ack        multiplexer.StoreAck
	err        error
}

// dispatchStores fans out one store request per shard and reports each
// outcome on results, writing a placement row into the catalog for every
// one that actually lands. results is buffered to len(shardCIDs) so every
// goroutine's send completes even if the caller stops reading after
// reaching quorum — the remaining dispatches (and their catalog writes)
// still run to completion in the background. This intentionally does not
// use errgroup: errgroup.Wait() blocks until every goroutine returns,
// which is exactly the wait the optimistic-quorum loop in Put needs to
// avoid.
func (o *Orchestrator) dispatchStores(ctx context.Context, objectCID string, shardIndices []int, shardCIDs []string, shardBytes [][]byte, geofenceTag string) <-chan shardAck {
	results := make(chan shardAck, len(shardCIDs))
	for i := range shardCIDs {
		i := i
		go func() {
			ack, err := o.mux.Store(ctx, shardCIDs[i], objectCID, shardBytes[i], geofenceTag)
			if err == nil && ack.Stored && ack.SignatureValid {
				if perr := o.catalog.InsertShardPlacement(ctx, catalog.ShardPlacement{
					ObjectCID:             objectCID,
					ShardIndex:            shardIndices[i],
					ShardCID:              shardCIDs[i],
					PeerID:                ack.PeerID.String(),
					CountryCode:           ack.Country,
					ReceiptTimestampMs:    ack.TimestampMs,
					ReceiptSignatureValid: ack.SignatureValid,
				}); perr != nil {
					o.log.WithError(perr).WithField("cid", objectCID).Warn("placement row insert failed")
				}
			}
			results <- shardAck{shardIndex: shardIndices[i], shardCID: shardCIDs[i], ack: ack, err: err}
		}()
	}
	return results
}
