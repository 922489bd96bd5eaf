package pipeline

// Shard is one Reed-Solomon codeword segment of one encrypted chunk — the
// smallest unit the orchestrator dispatches to a peer.
type Shard struct {
	ChunkIndex   int
	ShardIndex   int
	CID          string // hex(SHA-256(Bytes)), 64 chars
	Bytes        []byte
	PayloadLen   int // pre-padding length of this chunk's nonce||ciphertext
	DataShards   int // K
	ParityShards int // N-K
}

// Manifest is the client-side record of one pipeline run: everything needed
// to reconstruct the object, plus enough to detect tampering or a wrong
// password without decrypting.
type Manifest struct {
	Version      int
	Salt         []byte
	ManifestRoot string
	TotalBytes   int64
	ChunkCount   int
	Shards       []Shard
	ManifestHash string
	AuthTag      string
}
