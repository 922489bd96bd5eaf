// Package nodeserver drains protocol commands from a peer connection and
// emits signed replies: one goroutine per inbound stream, no shared mutable
// state beyond the replay guard and the underlying block store (which
// serializes its own writes).
package nodeserver

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/sirupsen/logrus"

	"github.com/driftmesh/driftmesh/internal/blockstore"
	"github.com/driftmesh/driftmesh/internal/identity"
	"github.com/driftmesh/driftmesh/internal/protocol"
)

const replayGuardTTL = 10 * time.Minute

// Handler answers store/retrieve/audit/delete commands for one storage
// node. It is safe for concurrent use across multiple inbound streams: the
// replay guard has its own lock and the block store serializes at the
// engine level.
type Handler struct {
	id    *identity.Identity
	store *blockstore.Store
	log   *logrus.Entry

	allowlist map[peer.ID]struct{} // nil means "allow everyone"

	mu     sync.Mutex
	replay map[string]time.Time // "cid:nonce" -> first-seen time
}

// New builds a Handler. allowlist may be nil to accept requests from any
// peer.
func New(id *identity.Identity, store *blockstore.Store, log *logrus.Entry, allowlist []peer.ID) *Handler {
	h := &Handler{
		id:     id,
		store:  store,
		log:    log,
		replay: make(map[string]time.Time),
	}
	if allowlist != nil {
		h.allowlist = make(map[peer.ID]struct{}, len(allowlist))
		for _, p := range allowlist {
			h.allowlist[p] = struct{}{}
		}
	}
	return h
}

func (h *Handler) allowed(requester peer.ID) bool {
	if h.allowlist == nil {
		return true
	}
	_, ok := h.allowlist[requester]
	return ok
}

func nowMs() int64 { return time.Now().UnixMilli() }

// HandleStore persists req.Bytes under req.CID and returns a signed receipt.
// A disallowed requester gets a syntactically valid but unsigned, negative
// reply so it can never be mistaken for an authoritative proof.
func (h *Handler) HandleStore(requester peer.ID, req protocol.StoreRequest) protocol.StoreResponse {
	if !h.allowed(requester) {
		return protocol.StoreResponse{Stored: false}
	}
	ts := nowMs()
	stored, err := h.store.Save(req.CID, req.Bytes)
	if err != nil {
		h.log.WithError(err).WithField("cid", req.CID).Warn("store failed")
		return protocol.StoreResponse{Stored: false}
	}
	if !stored {
		return protocol.StoreResponse{Stored: false}
	}
	payload := protocol.StorePayload(req.CID, len(req.Bytes), ts)
	sig, err := h.id.Sign(payload)
	if err != nil {
		h.log.WithError(err).Warn("sign store receipt failed")
		return protocol.StoreResponse{Stored: false}
	}
	return protocol.StoreResponse{
		Stored:      true,
		TimestampMs: ts,
		Signature:   sig,
		PublicKey:   h.id.PublicKeyBytes(),
	}
}

// HandleRetrieve returns the shard bytes for req.CID, signed as a proof of
// possession.
func (h *Handler) HandleRetrieve(requester peer.ID, req protocol.RetrieveRequest) protocol.RetrieveResponse {
	if !h.allowed(requester) {
		return protocol.RetrieveResponse{Found: false}
	}
	bytes, found, err := h.store.Retrieve(req.CID)
	if err != nil || !found {
		return protocol.RetrieveResponse{Found: false}
	}
	ts := nowMs()
	payload := protocol.RetrievePayload(req.CID, len(bytes), ts)
	sig, err := h.id.Sign(payload)
	if err != nil {
		h.log.WithError(err).Warn("sign retrieve proof failed")
		return protocol.RetrieveResponse{Found: false}
	}
	return protocol.RetrieveResponse{
		Found:       true,
		Bytes:       bytes,
		TimestampMs: ts,
		Signature:   sig,
		PublicKey:   h.id.PublicKeyBytes(),
	}
}

// HandleAudit answers a challenge without ever revealing shard bytes: the
// response carries only a hash. A (cid, nonce) pair already seen within the
// replay TTL is rejected.
func (h *Handler) HandleAudit(requester peer.ID, req protocol.AuditRequest) protocol.AuditResponse {
	if !h.allowed(requester) {
		return protocol.AuditResponse{Found: false, Accepted: false}
	}
	if h.seenRecently(req.CID, req.NonceHex) {
		return protocol.AuditResponse{Found: true, Accepted: false, ResponseHash: ""}
	}

	shardBytes, found, err := h.store.Retrieve(req.CID)
	if err != nil || !found {
		return protocol.AuditResponse{Found: false, Accepted: false}
	}

	challenge, err := hex.DecodeString(req.ChallengeHex)
	if err != nil {
		return protocol.AuditResponse{Found: true, Accepted: false}
	}
	sum := sha256.Sum256(append(append([]byte(nil), challenge...), shardBytes...))
	responseHash := hex.EncodeToString(sum[:])

	ts := nowMs()
	payload := protocol.AuditPayload(req.CID, req.ChallengeHex, req.NonceHex, responseHash, ts)
	sig, err := h.id.Sign(payload)
	if err != nil {
		h.log.WithError(err).Warn("sign audit response failed")
		return protocol.AuditResponse{Found: true, Accepted: false}
	}
	return protocol.AuditResponse{
		Found:        true,
		Accepted:     true,
		ResponseHash: responseHash,
		TimestampMs:  ts,
		Signature:    sig,
		PublicKey:    h.id.PublicKeyBytes(),
	}
}

// HandleDelete removes req.CID and returns a signed deletion receipt.
func (h *Handler) HandleDelete(requester peer.ID, req protocol.DeleteRequest) protocol.DeleteResponse {
	if !h.allowed(requester) {
		return protocol.DeleteResponse{Deleted: false}
	}
	deleted, err := h.store.Delete(req.CID)
	if err != nil {
		h.log.WithError(err).WithField("cid", req.CID).Warn("delete failed")
		return protocol.DeleteResponse{Deleted: false}
	}
	ts := nowMs()
	payload := protocol.DeletePayload(req.CID, ts)
	sig, err := h.id.Sign(payload)
	if err != nil {
		h.log.WithError(err).Warn("sign delete receipt failed")
		return protocol.DeleteResponse{Deleted: false}
	}
	return protocol.DeleteResponse{
		Deleted:     deleted,
		TimestampMs: ts,
		Signature:   sig,
		PublicKey:   h.id.PublicKeyBytes(),
	}
}

func (h *Handler) seenRecently(cid, nonceHex string) bool {
	key := cid + ":" + nonceHex
	now := time.Now()

	h.mu.Lock()
	defer h.mu.Unlock()

	for k, at := range h.replay {
		if now.Sub(at) > replayGuardTTL {
			delete(h.replay, k)
		}
	}
	if at, ok := h.replay[key]; ok && now.Sub(at) <= replayGuardTTL {
		return true
	}
	h.replay[key] = now
	return false
}
