package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/testforge/casegen/internal/api/handlers"
	"github.com/testforge/casegen/internal/api/middleware"
	"github.com/testforge/casegen/internal/observability"
	"github.com/testforge/casegen/pkg/httputil"
)

// HealthChecker is a dependency probed by /ready. *redis.Cache implements it.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Router holds the HTTP router and its dependencies
type Router struct {
	chi.Router
	logger *zap.Logger
}

// RouterConfig contains configuration for the router
type RouterConfig struct {
	Generator      handlers.Pipeline
	Cache          HealthChecker
	Metrics        *observability.Metrics
	Logger         *zap.Logger
	ServiceName    string
	EnableCORS     bool
	AllowedOrigins []string
	MaxRequestSize int64
	// RequestTimeout bounds one request, including every dispatch retry.
	RequestTimeout time.Duration
}

// NewRouter creates a new HTTP router with all routes configured
func NewRouter(cfg RouterConfig) *Router {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "casegen-api"
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 5 * time.Minute
	}

	r := chi.NewRouter()

	// Base middleware stack
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Recoverer(cfg.Logger))
	r.Use(middleware.NewLoggingMiddleware(cfg.Logger).Handler)
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.HTTPMiddleware)
	}

	if cfg.EnableCORS {
		origins := cfg.AllowedOrigins
		if len(origins) == 0 {
			origins = []string{"*"}
		}
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
			ExposedHeaders: []string{"X-Request-ID", "Retry-After"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", healthHandler(cfg.ServiceName))
	r.Get("/ready", readyHandler(cfg.Cache))
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(chimw.Timeout(cfg.RequestTimeout))
		r.Use(middleware.MaxBodySize(cfg.MaxRequestSize))

		gen := handlers.NewGenerationHandler(cfg.Generator, cfg.Logger)

		r.Route("/generations", func(r chi.Router) {
			r.Post("/", gen.Create)
			r.Get("/estimate", gen.Estimate)
			r.Post("/{session_id}/regenerate", gen.Regenerate)
		})
	})

	return &Router{
		Router: r,
		logger: cfg.Logger,
	}
}

// healthHandler returns basic health status
func healthHandler(service string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]string{
			"status":  "healthy",
			"service": service,
		})
	}
}

// readyHandler checks the shared cache when one is configured
func readyHandler(cache HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := make(map[string]string)
		allHealthy := true

		if cache != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := cache.Health(ctx); err != nil {
				checks["redis"] = "unhealthy: " + err.Error()
				allHealthy = false
			} else {
				checks["redis"] = "healthy"
			}
		} else {
			checks["redis"] = "not configured"
		}

		status := http.StatusOK
		statusText := "ready"
		if !allHealthy {
			status = http.StatusServiceUnavailable
			statusText = "not ready"
		}

		httputil.JSON(w, status, map[string]any{
			"status": statusText,
			"checks": checks,
		})
	}
}
