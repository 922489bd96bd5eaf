package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/driftmesh/driftmesh/internal/apierr"
)

func TestWriteErrorMapsApierrClassesToStatus(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"not_found", apierr.NotFound.New("missing"), http.StatusNotFound},
		{"auth", apierr.Auth.New("bad creds"), http.StatusUnauthorized},
		{"policy", apierr.Policy.New("denied"), http.StatusForbidden},
		{"verification", apierr.Verification.New("bad sig"), http.StatusUnprocessableEntity},
		{"cryptography", apierr.Cryptography.New("bad decrypt"), http.StatusUnprocessableEntity},
		{"integrity", apierr.Integrity.New("short shards"), http.StatusUnprocessableEntity},
		{"capacity", apierr.Capacity.New("too big"), http.StatusRequestEntityTooLarge},
		{"catalog", apierr.Catalog.New("db down"), http.StatusBadGateway},
		{"transport", apierr.Transport.New("dial failed"), http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			writeError(w, nil, tc.err)
			require.Equal(t, tc.status, w.Code)

			var body errorResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
			require.NotEmpty(t, body.Error)
		})
	}
}

func TestWriteJSONSetsContentTypeAndStatus(t *testing.T) {
	w := httptest.NewRecorder()
	writeJSON(w, http.StatusCreated, map[string]string{"ok": "yes"})
	require.Equal(t, http.StatusCreated, w.Code)
	require.Equal(t, "application/json", w.Header().Get("Content-Type"))
}
