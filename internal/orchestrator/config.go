// Package orchestrator implements the per-object PUT/GET/DELETE flows that
// sit above the multiplexer and the catalog: hashing and encrypting a
// body, erasure-coding it into a fixed 10-of-20 shard layout, dispatching
// store/retrieve/delete requests, and reconciling the result against the
// relational catalog.
package orchestrator

import "time"

// Config parameterizes one Orchestrator. The shard layout (DataShards,
// ParityShards) is fixed at 10-of-20 for every object, matching the
// dispatch fan-out the multiplexer and catalog schema are sized for.
type Config struct {
	// BodyCapBytes is the hard cap on a PUT body; exceeding it is a 413.
	BodyCapBytes int64

	DataShards   int // K
	ParityShards int // N-K
	QuorumDelta  int // optimistic quorum returns at K+QuorumDelta acks

	// GatewayKey is the AES-256 key used for deterministic logical-key
	// encryption and for sealing metadata blobs and shadow-manifest pins.
	// It never leaves the gateway process.
	GatewayKey []byte

	// VoucherKey signs bandwidth vouchers; may equal GatewayKey or differ.
	VoucherKey []byte
	VoucherTTL time.Duration

	CacheSize int // reconstructed-plaintext in-process cache, entries

	DecodeWorkers int64 // bound on concurrent blocking RS-decode/KDF work
}

// DefaultConfig returns the layout named in the object orchestrator: a
// 500 MiB body cap, 10-of-20 erasure shards, and a quorum of 14 (K+4).
func DefaultConfig(gatewayKey, voucherKey []byte) Config {
	return Config{
		BodyCapBytes:  500 << 20,
		DataShards:    10,
		ParityShards:  10,
		QuorumDelta:   4,
		GatewayKey:    gatewayKey,
		VoucherKey:    voucherKey,
		VoucherTTL:    15 * time.Minute,
		CacheSize:     256,
		DecodeWorkers: 4,
	}
}
