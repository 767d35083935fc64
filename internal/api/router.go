package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rsm-platform/rsm/internal/config"
	mw "github.com/rsm-platform/rsm/internal/middleware"
)

// HandlerSet holds handler functions injected from main.go to avoid import cycles.
type HandlerSet struct {
	// Conversation log
	ListMessages   http.HandlerFunc
	AppendMessages http.HandlerFunc

	// Memory context for the next generation turn
	MemoryContext http.HandlerFunc

	// Auth middleware
	AuthMiddleware func(http.Handler) http.Handler
}

// HealthCheck reports whether a dependency is reachable. A nil check is
// reported as "not configured".
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	CORS config.CORSConfig
	// RateLimiter, when set, wraps every authenticated route.
	RateLimiter  func(http.Handler) http.Handler
	HealthChecks []HealthCheck
}

func NewRouter(cfg RouterConfig, h HandlerSet) http.Handler {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		HandleError(w, ErrNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		JSONErrorMessage(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.SecurityHeaders)
	r.Use(mw.Logging)
	r.Use(mw.Recovery)
	r.Use(mw.Metrics)
	r.Use(cors.Handler(mw.CORS(cfg.CORS)))

	// Liveness: always 200, no dependency checks
	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		JSON(w, http.StatusOK, map[string]string{"status": "alive"})
	})

	readinessHandler := func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		health := map[string]string{"status": "healthy"}
		status := http.StatusOK

		for _, hc := range cfg.HealthChecks {
			if hc.Check == nil {
				health[hc.Name] = "not configured"
				continue
			}
			if err := hc.Check(ctx); err != nil {
				health[hc.Name] = "unhealthy"
				health["status"] = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			health[hc.Name] = "healthy"
		}

		JSON(w, status, health)
	}

	r.Get("/health/ready", readinessHandler)
	r.Get("/health", readinessHandler)

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.AuthMiddleware)
			if cfg.RateLimiter != nil {
				r.Use(cfg.RateLimiter)
			}

			r.Route("/conversations/{sessionID}", func(r chi.Router) {
				r.Get("/messages", h.ListMessages)
				r.Post("/messages", h.AppendMessages)
				r.Post("/context", h.MemoryContext)
			})
		})
	})

	return r
}
