package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// HealthHandler handles health check requests
type HealthHandler interface {
	Health(w http.ResponseWriter, r *http.Request)
	Ready(w http.ResponseWriter, r *http.Request)
	Live(w http.ResponseWriter, r *http.Request)
}

// Routes is the inbound surface of the proxy. Nil members are not routed.
type Routes struct {
	// Status answers GET /
	Status http.Handler
	// Dream answers POST /api/dream
	Dream http.Handler
	// Health serves /health, /ready and /live
	Health HealthHandler
	// Metrics is served on MetricsPath (default /metrics)
	Metrics     http.Handler
	MetricsPath string
	// Admin registers routes below /admin
	Admin func(r chi.Router)
}

// NewRouter builds the chi router for routes. Unknown paths and methods get
// the JSON error envelope.
func NewRouter(routes Routes) chi.Router {
	r := chi.NewRouter()

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, http.StatusNotFound, "Not found.")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, http.StatusMethodNotAllowed, "Method not allowed.")
	})

	if routes.Status != nil {
		r.Method(http.MethodGet, "/", routes.Status)
	}
	if routes.Dream != nil {
		r.Method(http.MethodPost, "/api/dream", routes.Dream)
	}

	if routes.Health != nil {
		r.Get("/health", routes.Health.Health)
		r.Get("/ready", routes.Health.Ready)
		r.Get("/live", routes.Health.Live)
	}

	if routes.Metrics != nil {
		path := routes.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, routes.Metrics)
	}

	if routes.Admin != nil {
		r.Route("/admin", routes.Admin)
	}

	return r
}
