package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/driftmesh/driftmesh/internal/catalog"
	"github.com/driftmesh/driftmesh/internal/orchestrator"
)

const defaultOwnerEmail = "anonymous@driftmesh.local"

// handleListObjects backs GET /{bucket}: a path-style, prefix/start-after
// paginated listing, the bucket-level analogue of S3's ListObjectsV2. The
// prefix and start-after values are compared against the catalog's sealed
// key column, not the plaintext keys, so they do not select or order by
// plaintext key.
func (s *Server) handleListObjects(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	q := r.URL.Query()
	maxKeys := 1000
	if v := q.Get("max-keys"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			maxKeys = n
		}
	}

	objs, err := s.catalog.ListObjects(r.Context(), bucket, q.Get("prefix"), q.Get("start-after"), maxKeys)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, listObjectsResponse{Bucket: bucket, Objects: s.toObjectSummaries(objs)})
}

type listObjectsResponse struct {
	Bucket  string          `json:"bucket"`
	Objects []objectSummary `json:"objects"`
}

// objectSummary mirrors catalog.Object but recovers the plaintext key from
// the catalog's deterministically-sealed column and omits the metadata
// blob, which is never safe to return verbatim.
type objectSummary struct {
	Key  string `json:"key"`
	ETag string `json:"etag"`
	CID  string `json:"cid"`
	Size int64  `json:"size"`
}

func (s *Server) toObjectSummaries(objs []catalog.Object) []objectSummary {
	out := make([]objectSummary, 0, len(objs))
	for _, o := range objs {
		key, err := s.orch.DecryptKey(o.Key)
		if err != nil {
			s.log.WithError(err).WithField("cid", o.CID).Warn("listing key decrypt failed, omitting row")
			continue
		}
		out = append(out, objectSummary{Key: key, ETag: o.ETag, CID: o.CID, Size: o.Size})
	}
	return out
}

// handleGetObject backs GET /{bucket}/{key...}.
func (s *Server) handleGetObject(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	bucket, key := chi.URLParam(r, "bucket"), chi.URLParam(r, "*")
	body, err := s.orch.Get(r.Context(), bucket, key)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set(headerLatencyMs, strconv.FormatInt(time.Since(start).Milliseconds(), 10))
	_, _ = w.Write(body)
}

// handlePutObject backs PUT /{bucket}/{key...}. Dedup opt-in is governed by
// the bucket's stored setting unless x-neuro-private-salt is present, which
// always forces a private hash — Put itself enforces that rule; this
// handler only needs to forward DedupOptIn for first-time bucket creation.
func (s *Server) handlePutObject(w http.ResponseWriter, r *http.Request) {
	bucket, key := chi.URLParam(r, "bucket"), chi.URLParam(r, "*")

	owner := r.Header.Get("x-neuro-owner-email")
	if owner == "" {
		owner = defaultOwnerEmail
	}

	dedupOptIn := true
	if v := r.URL.Query().Get("dedup"); v != "" {
		dedupOptIn = v != "false"
	}

	result, err := s.orch.Put(r.Context(), orchestrator.PutRequest{
		Bucket:      bucket,
		Key:         key,
		OwnerEmail:  owner,
		Body:        r.Body,
		GeofenceTag: r.Header.Get(headerGeofence),
		PrivateSalt: []byte(r.Header.Get(headerPrivateSalt)),
		DedupOptIn:  dedupOptIn,
	})
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	w.Header().Set("ETag", result.ETag)
	writeJSON(w, http.StatusCreated, putObjectResponse{ObjectCID: result.ObjectCID, ETag: result.ETag, Size: result.Size})
}

type putObjectResponse struct {
	ObjectCID string `json:"object_cid"`
	ETag      string `json:"etag"`
	Size      int64  `json:"size"`
}

// handleDeleteObject backs DELETE /{bucket}/{key...}.
func (s *Server) handleDeleteObject(w http.ResponseWriter, r *http.Request) {
	bucket, key := chi.URLParam(r, "bucket"), chi.URLParam(r, "*")
	if err := s.orch.Delete(r.Context(), bucket, key); err != nil {
		writeError(w, s.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
