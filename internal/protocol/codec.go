package protocol

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"io"

	"github.com/driftmesh/driftmesh/internal/apierr"
)

// Envelope is the outer frame exchanged over a libp2p stream speaking
// ProtocolID: exactly one of the four request (or reply) payloads is set,
// selected by Kind.
type Envelope struct {
	Kind Kind

	Store    *StoreRequest
	Retrieve *RetrieveRequest
	Audit    *AuditRequest
	Delete   *DeleteRequest

	StoreReply    *StoreResponse
	RetrieveReply *RetrieveResponse
	AuditReply    *AuditResponse
	DeleteReply   *DeleteResponse
}

const maxFrameBytes = 64 << 20 // 64 MiB, generous for a single shard plus overhead

// WriteEnvelope gob-encodes env and writes it to w as a 4-byte big-endian
// length prefix followed by the encoded bytes.
func WriteEnvelope(w io.Writer, env *Envelope) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(env); err != nil {
		return apierr.Transport.Wrap(err)
	}
	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(buf.Len()))
	if _, err := w.Write(lenPrefix[:]); err != nil {
		return apierr.Transport.Wrap(err)
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return apierr.Transport.Wrap(err)
	}
	return nil
}

// ReadEnvelope reads one length-prefixed, gob-encoded Envelope from r.
func ReadEnvelope(r io.Reader) (*Envelope, error) {
	br := bufio.NewReader(r)
	var lenPrefix [4]byte
	if _, err := io.ReadFull(br, lenPrefix[:]); err != nil {
		return nil, apierr.Transport.Wrap(err)
	}
	n := binary.BigEndian.Uint32(lenPrefix[:])
	if n > maxFrameBytes {
		return nil, apierr.Capacity.New("frame of %d bytes exceeds max %d", n, maxFrameBytes)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(br, buf); err != nil {
		return nil, apierr.Transport.Wrap(err)
	}
	var env Envelope
	if err := gob.NewDecoder(bytes.NewReader(buf)).Decode(&env); err != nil {
		return nil, apierr.Transport.Wrap(err)
	}
	return &env, nil
}
