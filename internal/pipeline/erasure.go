package pipeline

// ErasureEncode right-pads ciphertext to a multiple of k, splits it into k
// data shards, and computes n-k parity shards via Reed-Solomon. Unlike
// Encode it performs no encryption or key derivation of its own: callers
// that already own an encryption step keyed by something other than a
// password (the object orchestrator keys each object under its content
// hash) erasure-code their own ciphertext directly instead of going through
// Encode/Decode's Argon2id+AEAD layer.
func ErasureEncode(ciphertext []byte, k, n int) ([]Shard, int, error) {
	if k <= 0 || n <= k {
		return nil, 0, ErrChunkSize
	}
	payloadLen := len(ciphertext)
	padded := ciphertext
	if rem := len(padded) % k; rem != 0 {
		padded = append(append([]byte(nil), padded...), make([]byte, k-rem)...)
	}

	codec, err := newRSCodec(k, n)
	if err != nil {
		return nil, 0, err
	}
	shares, err := codec.encode(padded)
	if err != nil {
		return nil, 0, err
	}

	shards := make([]Shard, len(shares))
	for i, share := range shares {
		shards[i] = Shard{
			ChunkIndex:   0,
			ShardIndex:   i,
			CID:          shardCID(share),
			Bytes:        share,
			PayloadLen:   payloadLen,
			DataShards:   k,
			ParityShards: n - k,
		}
	}
	return shards, payloadLen, nil
}

// ErasureDecode is the inverse of ErasureEncode: given at least k of the n
// shards (each CID-checked against its bytes), it reconstructs and
// truncates back to payloadLen.
func ErasureDecode(shards []Shard, k, n, payloadLen int) ([]byte, error) {
	present := make([][]byte, n)
	for _, s := range shards {
		if shardCID(s.Bytes) != s.CID {
			return nil, ErrCIDMismatch
		}
		present[s.ShardIndex] = s.Bytes
	}

	codec, err := newRSCodec(k, n)
	if err != nil {
		return nil, err
	}
	padded, err := codec.decode(present)
	if err != nil {
		return nil, err
	}
	if payloadLen > len(padded) {
		return nil, ErrPayloadTooShort
	}
	return padded[:payloadLen], nil
}
