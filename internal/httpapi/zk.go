package httpapi

import (
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/driftmesh/driftmesh/internal/apierr"
	"github.com/driftmesh/driftmesh/internal/catalog"
	"github.com/driftmesh/driftmesh/internal/proof"
)

const adminChallengeDeadline = 90 * time.Second

// issueChallengeRequest is the manual/admin trigger for a single
// proof-of-possession challenge against one known shard placement, the
// same shape the audit loop issues on its own schedule but invoked
// out-of-band — useful for testing a specific peer or re-checking a shard
// right after a repair rather than waiting for the next tick.
type issueChallengeRequest struct {
	ObjectCID  string `json:"object_cid"`
	ShardIndex int    `json:"shard_index"`
}

type issueChallengeResponse struct {
	ChallengeID  string `json:"challenge_id"`
	ChallengeHex string `json:"challenge_hex"`
	NonceHex     string `json:"nonce_hex"`
	ExpiresAt    string `json:"expires_at"`
}

func (s *Server) handleIssueChallenge(w http.ResponseWriter, r *http.Request) {
	var req issueChallengeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, s.log, apierr.Verification.Wrap(err))
		return
	}

	placements, err := s.catalog.ShardsForObject(r.Context(), req.ObjectCID)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	var target *catalog.ShardPlacement
	for i := range placements {
		if placements[i].ShardIndex == req.ShardIndex {
			target = &placements[i]
			break
		}
	}
	if target == nil {
		writeError(w, s.log, apierr.NotFound.New("no placement for object %s shard %d", req.ObjectCID, req.ShardIndex))
		return
	}

	c, err := proof.IssueChallenge(r.Context(), s.catalog, *target, adminChallengeDeadline)
	if err != nil {
		writeError(w, s.log, err)
		return
	}

	writeJSON(w, http.StatusCreated, issueChallengeResponse{
		ChallengeID:  c.ChallengeID,
		ChallengeHex: c.ChallengeHex,
		NonceHex:     c.NonceHex,
		ExpiresAt:    c.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// submitProofRequest is the body a storage node posts to push a proof
// rather than wait to be polled by the audit loop. Both /zk/submit-proof
// and /zk/store/{challengeID} (an alias kept for callers that address the
// challenge in the path rather than the body) route here.
type submitProofRequest struct {
	ChallengeID  string `json:"challenge_id"`
	NodeID       string `json:"node_id"`
	ChallengeHex string `json:"challenge_hex"`
	NonceHex     string `json:"nonce_hex"`
	ResponseHash string `json:"response_hash"`
	TimestampMs  int64  `json:"timestamp_ms"`
	SignatureHex string `json:"signature_hex"`
	PublicKeyHex string `json:"public_key_hex"`
}

func (s *Server) handleSubmitProof(w http.ResponseWriter, r *http.Request) {
	var req submitProofRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, s.log, apierr.Verification.Wrap(err))
		return
	}
	if id := chi.URLParam(r, "challengeID"); id != "" {
		req.ChallengeID = id
	}

	sig, err := decodeHex(req.SignatureHex)
	if err != nil {
		writeError(w, s.log, apierr.Verification.Wrap(err))
		return
	}
	pub, err := decodeHex(req.PublicKeyHex)
	if err != nil {
		writeError(w, s.log, apierr.Verification.Wrap(err))
		return
	}

	sub := proof.Submission{
		ChallengeID:  req.ChallengeID,
		NodeID:       req.NodeID,
		ChallengeHex: req.ChallengeHex,
		NonceHex:     req.NonceHex,
		ResponseHash: req.ResponseHash,
		TimestampMs:  req.TimestampMs,
		Signature:    sig,
		PublicKey:    pub,
	}
	if err := proof.Submit(r.Context(), s.catalog, sub); err != nil {
		writeError(w, s.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodeHex(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	return hex.DecodeString(s)
}
