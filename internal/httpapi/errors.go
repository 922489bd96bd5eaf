package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/driftmesh/driftmesh/internal/apierr"
)

// errorResponse is the JSON body returned for every non-2xx response.
type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps an apierr class to an HTTP status code and writes the
// response. Unrecognized errors fall back to 500: every error path in this
// module originates from one of the named classes, so an unmapped error is
// itself a bug worth surfacing as a server error rather than guessing a
// client-facing status for it.
func writeError(w http.ResponseWriter, log *logrus.Entry, err error) {
	status := http.StatusInternalServerError
	switch {
	case apierr.NotFound.Has(err):
		status = http.StatusNotFound
	case apierr.Auth.Has(err):
		status = http.StatusUnauthorized
	case apierr.Policy.Has(err):
		status = http.StatusForbidden
	case apierr.Verification.Has(err), apierr.Cryptography.Has(err), apierr.Integrity.Has(err):
		status = http.StatusUnprocessableEntity
	case apierr.Capacity.Has(err):
		status = http.StatusRequestEntityTooLarge
	case apierr.Catalog.Has(err), apierr.Transport.Has(err):
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError && log != nil {
		log.WithError(err).Error("unclassified error reached the HTTP boundary")
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
