// Package protocol defines the four chunk command/reply pairs carried over
// the authenticated peer-to-peer request/response channel, and the
// colon-delimited signed payload formulas both the gateway and the storage
// node must compute byte-identically.
//
package protocol

import (
	"fmt"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/driftmesh/driftmesh/internal/identity"
)

// ProtocolID is the libp2p stream protocol both sides register a handler
// for.
const ProtocolID = "/driftmesh/chunk/2.0.0"

// Kind identifies which of the four command/reply shapes a message carries.
type Kind int

const (
	KindStore Kind = iota
	KindRetrieve
	KindAudit
	KindDelete
)

func (k Kind) String() string {
	switch k {
	case KindStore:
		return "store"
	case KindRetrieve:
		return "retrieve"
	case KindAudit:
		return "audit"
	case KindDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// StoreRequest asks a node to persist shard bytes under cid.
type StoreRequest struct {
	CID   string
	Bytes []byte
}

// StoreResponse is the node's signed receipt for a store request.
type StoreResponse struct {
	Stored      bool
	TimestampMs int64
	Signature   []byte
	PublicKey   []byte
}

// RetrieveRequest asks a node to return the bytes stored under cid.
type RetrieveRequest struct {
	CID string
}

// RetrieveResponse is the node's signed proof-of-possession for a retrieve
// request; Bytes is only meaningful when Found is true.
type RetrieveResponse struct {
	Found       bool
	Bytes       []byte
	TimestampMs int64
	Signature   []byte
	PublicKey   []byte
}

// AuditRequest challenges a node to prove it still holds the shard bytes for
// cid without revealing them.
type AuditRequest struct {
	CID          string
	ChallengeHex string
	NonceHex     string
}

// AuditResponse is the node's signed response to an audit challenge.
// ResponseHash is empty whenever Accepted is false.
type AuditResponse struct {
	Found        bool
	Accepted     bool
	ResponseHash string
	TimestampMs  int64
	Signature    []byte
	PublicKey    []byte
}

// DeleteRequest asks a node to remove the shard bytes stored under cid.
type DeleteRequest struct {
	CID string
}

// DeleteResponse is the node's signed acknowledgement of a delete request.
type DeleteResponse struct {
	Deleted     bool
	TimestampMs int64
	Signature   []byte
	PublicKey   []byte
}

// StorePayload is the canonical, colon-delimited string signed for a store
// receipt. It must be computed byte-identically by both sides.
func StorePayload(cid string, length int, timestampMs int64) []byte {
	return []byte(fmt.Sprintf("store:%s:%d:%d", cid, length, timestampMs))
}

// RetrievePayload is the canonical payload signed for a retrieve proof.
func RetrievePayload(cid string, length int, timestampMs int64) []byte {
	return []byte(fmt.Sprintf("retrieve:%s:%d:%d", cid, length, timestampMs))
}

// AuditPayload is the canonical payload signed for an audit response.
func AuditPayload(cid, challengeHex, nonceHex, responseHash string, timestampMs int64) []byte {
	return []byte(fmt.Sprintf("audit:%s:%s:%s:%s:%d", cid, challengeHex, nonceHex, responseHash, timestampMs))
}

// DeletePayload is the canonical payload signed for a delete acknowledgement.
func DeletePayload(cid string, timestampMs int64) []byte {
	return []byte(fmt.Sprintf("POW:DELETE:%s:%d", cid, timestampMs))
}

// VerifyReceipt checks a store response against the expected signer and the
// request parameters that produced it.
func (r StoreResponse) VerifyReceipt(expected peer.ID, cid string, length int) bool {
	return identity.Verify(expected, r.PublicKey, r.Signature, StorePayload(cid, length, r.TimestampMs))
}

// VerifyProof checks a retrieve response against the expected signer. A
// response with Found == false can never verify: a negative result is not a
// positive proof regardless of signature validity.
func (r RetrieveResponse) VerifyProof(expected peer.ID, cid string) bool {
	if !r.Found {
		return false
	}
	return identity.Verify(expected, r.PublicKey, r.Signature, RetrievePayload(cid, len(r.Bytes), r.TimestampMs))
}

// VerifyAudit checks an audit response against the expected signer and the
// challenge parameters. Found == false or Accepted == false never verifies.
func (r AuditResponse) VerifyAudit(expected peer.ID, cid, challengeHex, nonceHex string) bool {
	if !r.Found || !r.Accepted {
		return false
	}
	return identity.Verify(expected, r.PublicKey, r.Signature,
		AuditPayload(cid, challengeHex, nonceHex, r.ResponseHash, r.TimestampMs))
}

// VerifyDeletion checks a delete response against the expected signer.
func (r DeleteResponse) VerifyDeletion(expected peer.ID, cid string) bool {
	return identity.Verify(expected, r.PublicKey, r.Signature, DeletePayload(cid, r.TimestampMs))
}

// IsFresh reports whether a response's timestamp is within maxAgeMs of now.
// The subtraction saturates at zero so a clock skew that puts ts in the
// future never produces a negative (and therefore always-fresh) age.
func IsFresh(nowMs, timestampMs, maxAgeMs int64) bool {
	age := nowMs - timestampMs
	if age < 0 {
		age = 0
	}
	return age <= maxAgeMs
}
