package pipeline

import "github.com/driftmesh/driftmesh/internal/apierr"

// Typed, non-retryable pipeline failures. The caller decides whether to
// refetch more shards; the pipeline itself never retries.
var (
	ErrChunkSize          = apierr.Integrity.New("chunk_size")
	ErrBadSalt            = apierr.Cryptography.New("bad_salt")
	ErrInsufficientShards = apierr.Integrity.New("insufficient_shards")
	ErrCIDMismatch        = apierr.Integrity.New("cid_mismatch")
	ErrRSInit             = apierr.Integrity.New("rs_init")
	ErrRSDecode           = apierr.Integrity.New("rs_decode")
	ErrPayloadTooShort    = apierr.Integrity.New("payload_too_short")
	ErrDecrypt            = apierr.Cryptography.New("decrypt")
)
