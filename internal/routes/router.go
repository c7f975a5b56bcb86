package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sql-guard/internal/config"
	"sql-guard/internal/gate"
	"sql-guard/internal/middleware"
)

// NewRouter mounts the guard API behind the OTel HTTP middleware, plus the
// Prometheus scrape endpoint for process metrics.
func NewRouter(serviceName string, g *gate.Gate, store *config.PolicyStore, maxBytes int64) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.OTelHTTP(serviceName))

	r.Get("/api/health", HealthHandler(serviceName))
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/api/policy", PolicyHandler(store))
	r.Post("/api/validate", ValidateHandler(g, maxBytes))
	return r
}
