// Package pipeline turns plaintext object bytes plus a password into a
// deterministic shard layout, and reverses the process.
package pipeline

// Profile biases the adaptive chunk/shard sizing toward a client's expected
// network conditions.
type Profile int

const (
	ProfileDefault Profile = iota
	ProfileMobile
	ProfileResilient
)

// Config parameterizes one encode/decode run.
type Config struct {
	ChunkSize    int // bytes per chunk before erasure coding
	DataShards   int // K: shards required to reconstruct
	ParityShards int // N-K: extra shards tolerating node loss
}

// DefaultConfig is the chunk/shard layout used when no adaptive sizing
// applies.
func DefaultConfig() Config {
	return Config{ChunkSize: 256 * 1024, DataShards: 4, ParityShards: 2}
}

const maxTotalShards = 12

// AdaptiveConfig biases toward smaller chunks on mobile and higher parity on
// resilient, and spreads shards so at least two shards per peer are
// possible, up to a hard cap of 12 total shards when many peers are
// available.
func AdaptiveConfig(totalBytes int64, peerCount int, profile Profile) Config {
	cfg := DefaultConfig()

	switch profile {
	case ProfileMobile:
		cfg.ChunkSize = 64 * 1024
	case ProfileResilient:
		cfg.ParityShards = 4
	}

	if peerCount > 0 {
		target := peerCount * 2
		if target > maxTotalShards {
			target = maxTotalShards
		}
		if target > cfg.DataShards+cfg.ParityShards {
			// Grow parity first: widening K without more data changes
			// recoverability semantics more than widening redundancy does.
			extraParity := target - (cfg.DataShards + cfg.ParityShards)
			cfg.ParityShards += extraParity
		}
	}
	total := cfg.DataShards + cfg.ParityShards
	if total > maxTotalShards {
		cfg.ParityShards = maxTotalShards - cfg.DataShards
	}
	return cfg
}
