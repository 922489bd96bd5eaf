package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/driftmesh/driftmesh/internal/apierr"
	"github.com/driftmesh/driftmesh/internal/catalog"
)

// setDedupRequest toggles a bucket's cross-user content-deduplication
// setting. This is the administrative control surface for the dedup rule
// enforced inline by Put: it only affects objects written after the
// change, never retroactively recomputes existing content hashes.
type setDedupRequest struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) handleSetDedup(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	var req setDedupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, s.log, apierr.Catalog.Wrap(err))
		return
	}
	if err := s.catalog.SetBucketDedup(r.Context(), bucket, req.Enabled); err != nil {
		writeError(w, s.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleReconstruct backs POST /api/reconstruct/{bucket}/{key}: recover the
// catalog row for bucket/key from its pinned shadow manifest, for use after
// a catalog loss or a cache-miss race this gateway instance never saw the
// original PUT for.
func (s *Server) handleReconstruct(w http.ResponseWriter, r *http.Request) {
	bucket, key := chi.URLParam(r, "bucket"), chi.URLParam(r, "key")
	if err := s.orch.Reconstruct(r.Context(), bucket, key); err != nil {
		writeError(w, s.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type manifestResponse struct {
	ObjectCID  string          `json:"object_cid"`
	ExpiresAt  string          `json:"expires_at"`
	Voucher    string          `json:"voucher"`
	Placements []placementJSON `json:"placements"`
}

type placementJSON struct {
	ShardIndex  int    `json:"shard_index"`
	ShardCID    string `json:"shard_cid"`
	PeerID      string `json:"peer_id"`
	CountryCode string `json:"country_code"`
}

// handleManifest backs GET /api/manifest/{bucket}/{key}: placement info plus
// a bandwidth voucher a caller can present directly to a storage node,
// bypassing a further gateway round trip for the shard bytes themselves.
func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	bucket, key := chi.URLParam(r, "bucket"), chi.URLParam(r, "key")
	voucher, placements, err := s.orch.PresignedManifest(r.Context(), bucket, key)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, manifestResponse{
		ObjectCID:  voucher.ObjectCID,
		ExpiresAt:  voucher.ExpiresAt.UTC().Format(time.RFC3339),
		Voucher:    voucher.Token,
		Placements: toPlacementJSON(placements),
	})
}

func toPlacementJSON(placements []catalog.ShardPlacement) []placementJSON {
	out := make([]placementJSON, len(placements))
	for i, p := range placements {
		out[i] = placementJSON{ShardIndex: p.ShardIndex, ShardCID: p.ShardCID, PeerID: p.PeerID, CountryCode: p.CountryCode}
	}
	return out
}

// registerNodeRequest is a storage node's self-reported capability
// announcement. The row it upserts is provisional until the audit loop's
// first successful challenge of that peer — see catalog.RegisterNode.
type registerNodeRequest struct {
	PeerID                string  `json:"peer_id"`
	IPAddress             string  `json:"ip_address"`
	CountryCode           string  `json:"country_code"`
	StorageCapacityGB     float64 `json:"storage_capacity_gb"`
	BandwidthCapacityMbps float64 `json:"bandwidth_capacity_mbps"`
}

func (s *Server) handleRegisterNode(w http.ResponseWriter, r *http.Request) {
	var req registerNodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, s.log, apierr.Catalog.Wrap(err))
		return
	}
	if req.PeerID == "" {
		writeError(w, s.log, apierr.Verification.New("peer_id is required"))
		return
	}
	err := s.catalog.RegisterNode(r.Context(), catalog.Node{
		PeerID:                req.PeerID,
		IPAddress:             req.IPAddress,
		CountryCode:           req.CountryCode,
		StorageCapacityGB:     req.StorageCapacityGB,
		BandwidthCapacityMbps: req.BandwidthCapacityMbps,
	})
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// handleSovereignty backs GET /api/compliance/sovereignty/{bucket}: the
// country_code distribution across every shard placement for the bucket's
// objects, the evidence a data-sovereignty audit asks for.
func (s *Server) handleSovereignty(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	report, err := s.catalog.SovereigntyReport(r.Context(), bucket)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
