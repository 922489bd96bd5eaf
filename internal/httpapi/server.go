// Package httpapi exposes the gateway's object-storage surface over HTTP:
// path-style bucket/object operations, the proof-of-possession challenge
// endpoints, and a handful of administrative/compliance routes. Routing and
// middleware composition are grounded on the chi-based server pattern used
// elsewhere in the wider storage-service ecosystem this module draws from
// (request-id/real-ip/logging/recovery middleware, nested r.Route groups,
// auth applied only inside the routes that need it).
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"github.com/driftmesh/driftmesh/internal/catalog"
	"github.com/driftmesh/driftmesh/internal/metrics"
	"github.com/driftmesh/driftmesh/internal/orchestrator"
)

// Config carries everything the HTTP layer needs beyond the orchestrator and
// catalog it is handed directly.
type Config struct {
	// BearerToken, when non-empty, is the single shared secret accepted in
	// the Authorization: Bearer header or the driftmesh_session cookie. A
	// real multi-tenant deployment would back this with a session store;
	// this module carries none, so a single operator-configured token is
	// the whole of "auth" — see DESIGN.md.
	BearerToken string
	// CSRFKey signs the csrf cookie's paired token for the double-submit
	// check on cookie-authenticated mutating requests.
	CSRFKey []byte
}

// Server wires the catalog, orchestrator, and proof submission path into an
// http.Handler.
type Server struct {
	cfg     Config
	orch    *orchestrator.Orchestrator
	catalog *catalog.Store
	log     *logrus.Entry
	metrics *metrics.Registry
}

// New constructs a Server. Call Handler to obtain the composed router.
// metricsReg may be nil, in which case GET /metrics answers 404.
func New(orch *orchestrator.Orchestrator, store *catalog.Store, cfg Config, log *logrus.Entry, metricsReg *metrics.Registry) *Server {
	return &Server{cfg: cfg, orch: orch, catalog: store, log: log, metrics: metricsReg}
}

// Handler builds the full chi router: unauthenticated health/readiness and
// proof-submission routes at the top level, and an authenticated,
// CSRF-checked /api and path-style object surface nested under middleware
// that applies only there.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPut, http.MethodPost, http.MethodDelete},
		AllowedHeaders:   []string{"*", headerGeofence, headerPrivateSalt, headerCSRFToken, headerProofToken, headerLatencyMs},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/readyz", s.handleReadyz)
	r.Handle("/metrics", s.metrics.Handler())
	r.Post("/zk/submit-proof", s.handleSubmitProof)
	r.Post("/zk/store/{challengeID}", s.handleSubmitProof)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Use(s.csrfMiddleware)

		r.Route("/api", func(r chi.Router) {
			r.Post("/deduplicate/{bucket}", s.handleSetDedup)
			r.Post("/reconstruct/{bucket}/{key}", s.handleReconstruct)
			r.Get("/manifest/{bucket}/{key}", s.handleManifest)
			r.Post("/nodes/register", s.handleRegisterNode)
			r.Get("/compliance/sovereignty/{bucket}", s.handleSovereignty)
		})
		r.Post("/zk/issue-challenge", s.handleIssueChallenge)

		r.Get("/{bucket}", s.handleListObjects)
		r.Get("/{bucket}/*", s.handleGetObject)
		r.Put("/{bucket}/*", s.handlePutObject)
		r.Delete("/{bucket}/*", s.handleDeleteObject)
	})

	return r
}

const (
	headerGeofence    = "x-neuro-geofence"
	headerPrivateSalt = "x-neuro-private-salt"
	headerCSRFToken   = "x-csrf-token"
	headerProofToken  = "x-neuro-proof-token"
	headerLatencyMs   = "x-neuro-latency-ms"

	csrfCookieName    = "driftmesh_csrf"
	sessionCookieName = "driftmesh_session"

	requestTimeout = 30 * time.Second
)
