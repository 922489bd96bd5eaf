package httpapi

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/driftmesh/driftmesh/internal/apierr"
	"github.com/driftmesh/driftmesh/internal/orchestrator"
)

// loggingMiddleware is the custom structured-logging wrapper every request
// passes through, grounded on the same request-id/real-ip/custom-logger
// layering pattern as the chi-based server this package is modeled on.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.WithFields(map[string]interface{}{
			"request_id": middleware.GetReqID(r.Context()),
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"duration_ms": time.Since(start).Milliseconds(),
			"remote_ip":  r.RemoteAddr,
		}).Info("request handled")
	})
}

// recoveryMiddleware turns a panic anywhere downstream into a 500 rather
// than killing the connection, logging the recovered value for debugging.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.log.WithField("panic", rec).Error("recovered from panic in handler")
				writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// authMiddleware accepts either a bearer token in Authorization or the
// driftmesh_session cookie carrying the same shared secret. There is no
// per-user session store behind this module (see Config.BearerToken's doc
// comment); this is the entire authentication surface.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.BearerToken == "" {
			next.ServeHTTP(w, r)
			return
		}

		if r.Method == http.MethodGet && s.hasValidProofToken(r) {
			next.ServeHTTP(w, r)
			return
		}

		token := bearerToken(r)
		fromCookie := false
		if token == "" {
			if c, err := r.Cookie(sessionCookieName); err == nil {
				token = c.Value
				fromCookie = true
			}
		}
		if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.BearerToken)) != 1 {
			writeError(w, s.log, apierr.Auth.New("missing or invalid credentials"))
			return
		}

		if fromCookie {
			ensureCSRFCookie(w, r, s.cfg.CSRFKey)
		}

		ctx := withCookieAuth(r.Context(), fromCookie)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ensureCSRFCookie issues a fresh signed csrf cookie for a cookie-session
// caller that doesn't have a valid one yet, so the double-submit check in
// csrfMiddleware has something to compare against on this caller's next
// mutating request.
func ensureCSRFCookie(w http.ResponseWriter, r *http.Request, key []byte) {
	if c, err := r.Cookie(csrfCookieName); err == nil && verifyCSRFCookie(key, c.Value) {
		return
	}
	nonceBytes := make([]byte, 16)
	_, _ = rand.Read(nonceBytes)
	value := signCSRFCookie(key, hex.EncodeToString(nonceBytes))
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    value,
		Path:     "/",
		SameSite: http.SameSiteStrictMode,
		Secure:   true,
	})
}

// hasValidProofToken lets a GET /{bucket}/{key...} caller skip bearer/cookie
// auth entirely by presenting a bandwidth voucher issued by
// PresignedManifest for that exact object — the same capability a storage
// node would check, generalized here so holding the voucher is sufficient
// without a second gateway credential.
func (s *Server) hasValidProofToken(r *http.Request) bool {
	token := r.Header.Get(headerProofToken)
	if token == "" {
		return false
	}
	bucket, key := chi.URLParam(r, "bucket"), chi.URLParam(r, "*")
	if bucket == "" || key == "" {
		return false
	}
	cid, found, err := s.orch.ResolveCID(r.Context(), bucket, key)
	if err != nil || !found {
		return false
	}
	return orchestrator.VerifyVoucher(s.orch.VoucherKey(), cid, token)
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimPrefix(h, prefix)
}

// csrfMiddleware enforces the double-submit cookie pattern, but only for
// cookie-authenticated mutating requests: a bearer-token caller presents its
// credential on every request already, so it cannot be tricked into firing
// one cross-site, and is exempt.
func (s *Server) csrfMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isCookieAuth(r.Context()) || !isMutating(r.Method) {
			next.ServeHTTP(w, r)
			return
		}

		cookie, err := r.Cookie(csrfCookieName)
		if err != nil || cookie.Value == "" {
			writeError(w, s.log, apierr.Auth.New("missing csrf cookie"))
			return
		}
		header := r.Header.Get(headerCSRFToken)
		if header == "" || subtle.ConstantTimeCompare([]byte(header), []byte(cookie.Value)) != 1 {
			writeError(w, s.log, apierr.Auth.New("csrf token mismatch"))
			return
		}
		if !verifyCSRFCookie(s.cfg.CSRFKey, cookie.Value) {
			writeError(w, s.log, apierr.Auth.New("csrf cookie signature invalid"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch:
		return true
	default:
		return false
	}
}

// signCSRFCookie and verifyCSRFCookie bind an issued CSRF cookie value to
// the server's key so a client cannot simply invent its own matching
// header/cookie pair — ensureCSRFCookie calls signCSRFCookie when it sets
// the cookie.
func signCSRFCookie(key []byte, nonce string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(nonce))
	return nonce + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func verifyCSRFCookie(key []byte, value string) bool {
	idx := strings.LastIndexByte(value, '.')
	if idx < 0 {
		return false
	}
	nonce, sig := value[:idx], value[idx+1:]
	expectedSig, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(nonce))
	expected := mac.Sum(nil)
	return subtle.ConstantTimeCompare(expectedSig, expected) == 1
}
