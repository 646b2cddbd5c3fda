// Package httpapi implements the HTTP/JSON surface of spec.md §6: the
// endpoint table over logs, jobs, executions, servers, alerts,
// dashboard, and retention, plus the single websocket endpoint for
// real-time fan-out. Grounded on internal/server/server.go's
// setupRoutes (mux.NewRouter, a subrouter under a path prefix, and one
// router.Use(middleware) / api.HandleFunc(path, h).Methods(verb) per
// route) and internal/handlers/*.go's handler-struct-per-resource shape.
package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/fleetwatch/fleetwatch/internal/auth"
	"github.com/fleetwatch/fleetwatch/internal/clock"
	"github.com/fleetwatch/fleetwatch/internal/telemetry"
)

// Dependencies bundles every collaborator a handler needs, each named
// by the narrow interface it actually calls (see deps.go). Construct
// with the concrete services built in cmd/fleetwatchd's composition
// root.
type Dependencies struct {
	Authenticator *auth.Authenticator
	RateLimiter   *auth.KeyedRateLimiter
	Clock         clock.Clock

	Logs       LogStore
	Jobs       JobStore
	Executions ExecutionService
	Servers    HeartbeatService
	Alerts     AlertService
	Dashboard  DashboardService
	Retention  RetentionService
	Realtime   RealtimeHub
}

// NewRouter builds the mux.Router serving spec.md §6's endpoint table.
// Every /api/v1 route runs through auth.Middleware then
// auth.RateLimitMiddleware then the per-route auth.RequireCapability,
// mirroring the teacher's router.Use(SecurityHeadersMiddleware)
// global-middleware idiom. /healthz and /metrics are served without
// authentication; /realtime runs auth.Middleware only.
func NewRouter(deps Dependencies) *mux.Router {
	h := &handlers{deps: deps}

	root := mux.NewRouter()
	root.HandleFunc("/healthz", h.handleHealthz).Methods(http.MethodGet)
	root.Handle("/metrics", telemetry.Handler()).Methods(http.MethodGet)

	api := root.PathPrefix("/api/v1").Subrouter()
	api.Use(auth.Middleware(deps.Authenticator, writeError))
	api.Use(auth.RateLimitMiddleware(deps.RateLimiter, writeError))

	capped := func(route string, capability auth.Capability, fn http.HandlerFunc) http.Handler {
		return telemetry.InstrumentHandler(route, auth.RequireCapability(capability, writeError)(fn))
	}

	api.Handle("/logs", capped("/logs", auth.CapIngestLog, h.handleIngestOne)).Methods(http.MethodPost)
	api.Handle("/logs/batch", capped("/logs/batch", auth.CapIngestLog, h.handleIngestBatch)).Methods(http.MethodPost)
	api.Handle("/logs/search", capped("/logs/search", auth.CapReadOnly, h.handleSearchLogs)).Methods(http.MethodGet)
	api.Handle("/logs/{id:[0-9]+}", capped("/logs/{id}", auth.CapReadOnly, h.handleGetLog)).Methods(http.MethodGet)

	api.Handle("/jobs", capped("/jobs", auth.CapRegisterJob, h.handleUpsertJob)).Methods(http.MethodPut)
	api.Handle("/jobs/{jobId}", capped("/jobs/{jobId}", auth.CapReadOnly, h.handleGetJob)).Methods(http.MethodGet)

	api.Handle("/executions", capped("/executions", auth.CapStartExecution, h.handleStartExecution)).Methods(http.MethodPost)
	api.Handle("/executions/{id:[0-9]+}/complete", capped("/executions/{id}/complete", auth.CapCompleteExecution, h.handleCompleteExecution)).Methods(http.MethodPost)
	api.Handle("/executions/{id:[0-9]+}/cancel", capped("/executions/{id}/cancel", auth.CapCancelExecution, h.handleCancelExecution)).Methods(http.MethodPost)
	api.Handle("/executions/{id:[0-9]+}", capped("/executions/{id}", auth.CapReadOnly, h.handleGetExecution)).Methods(http.MethodGet)

	api.Handle("/servers/heartbeat", capped("/servers/heartbeat", auth.CapHeartbeat, h.handleHeartbeat)).Methods(http.MethodPost)

	api.Handle("/alerts/instances/{id:[0-9]+}/ack", capped("/alerts/instances/{id}/ack", auth.CapAcknowledgeAlert, h.handleAcknowledgeInstance)).Methods(http.MethodPost)
	api.Handle("/alerts/instances/{id:[0-9]+}/resolve", capped("/alerts/instances/{id}/resolve", auth.CapResolveAlert, h.handleResolveInstance)).Methods(http.MethodPost)

	api.Handle("/dashboard/summary", capped("/dashboard/summary", auth.CapReadOnly, h.handleDashboardSummary)).Methods(http.MethodGet)

	api.Handle("/retention/run", capped("/retention/run", auth.CapRunRetention, h.handleRunRetention)).Methods(http.MethodPost)

	root.Handle("/realtime", auth.Middleware(deps.Authenticator, writeError)(http.HandlerFunc(h.handleWebsocket))).Methods(http.MethodGet)

	root.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Debug().Str("path", r.URL.Path).Msg("httpapi: no route matched")
		writeError(w, notFoundRoute())
	})
	return root
}

func (h *handlers) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
