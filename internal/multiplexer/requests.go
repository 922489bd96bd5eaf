// Package multiplexer owns the gateway's single peer connection table and
// is the only component that issues peer-to-peer chunk requests. Every
// other gateway component submits work by sending a typed request into a
// bounded channel and awaiting a reply on a per-request channel.
package multiplexer

import (
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
)

// StoreCommand carries the parameters of one outbound store dispatch.
// ObjectCID identifies the object this shard belongs to — distinct from
// CID, the shard's own content hash — so the AS cap tracker can count
// shards per object instead of treating every dispatch as a new object.
type StoreCommand struct {
	CID         string
	ObjectCID   string
	Bytes       []byte
	GeofenceTag string
	Reply       chan StoreAck
}

// RetrieveCommand carries the parameters of one outbound retrieve dispatch.
// PreferredPeer is the zero value when the caller has no preference.
type RetrieveCommand struct {
	CID           string
	PreferredPeer peer.ID
	Reply         chan RetrieveAck
}

// DeleteCommand carries the parameters of one outbound delete dispatch.
type DeleteCommand struct {
	CID   string
	Reply chan DeleteAck
}

// AuditCommand carries the parameters of one outbound audit dispatch. The
// target peer is mandatory; audit never picks a peer on the caller's behalf.
type AuditCommand struct {
	PeerID       peer.ID
	CID          string
	ChallengeHex string
	NonceHex     string
	Reply        chan AuditAck
}

// StoreAck is the single message a Store caller ever receives.
type StoreAck struct {
	Stored         bool
	PeerID         peer.ID
	Country        string
	SignatureValid bool
	TimestampMs    int64
}

// RetrieveAck is the single message a Retrieve caller ever receives. Bytes is
// only meaningful when Verified is true.
type RetrieveAck struct {
	Found    bool
	Verified bool
	Bytes    []byte
	PeerID   peer.ID
}

// DeleteAck is the single message a Delete caller ever receives.
type DeleteAck struct {
	Deleted bool
	PeerID  peer.ID
}

// AuditAck is the single message an Audit caller ever receives.
type AuditAck struct {
	Verified     bool
	ResponseHash string
	PeerID       peer.ID
}

const (
	storeDeadline    = 8 * time.Second
	retrieveDeadline = 8 * time.Second
	auditDeadline    = 12 * time.Second
	freshnessMs      = 30_000
	cleanupInterval  = 1 * time.Second
	workChannelDepth = 100
)

type pendingKind int

const (
	pendingStore pendingKind = iota
	pendingRetrieve
	pendingDelete
	pendingAudit
)

func (k pendingKind) String() string {
	switch k {
	case pendingStore:
		return "store"
	case pendingRetrieve:
		return "retrieve"
	case pendingDelete:
		return "delete"
	case pendingAudit:
		return "audit"
	default:
		return "unknown"
	}
}

// pending is one outstanding outbound request awaiting a correlated inbound
// response or a deadline expiry. It is only ever touched from the
// multiplexer's own goroutine.
type pending struct {
	kind      pendingKind
	peerID    peer.ID
	country   string
	cid       string
	length    int // bytes sent, for Store receipt verification
	challenge string
	nonce     string
	started   time.Time
	deadline  time.Time

	storeReply    chan StoreAck
	retrieveReply chan RetrieveAck
	deleteReply   chan DeleteAck
	auditReply    chan AuditAck
}
