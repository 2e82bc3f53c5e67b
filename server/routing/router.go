// Package routing assembles the chi router of the relay: the global
// middleware stack and the three routes.
package routing

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ivfcopilot/copilot/errors"
	"github.com/ivfcopilot/copilot/server/handlers"
	"github.com/ivfcopilot/copilot/server/metrics"
	"github.com/ivfcopilot/copilot/server/middleware"
	"go.uber.org/zap"
)

// Route paths.
const (
	HealthPath  = "/"
	AnswerPath  = "/api/answer"
	MetricsPath = "/metrics"
)

// Handlers are the endpoint handlers mounted by NewRouter.
type Handlers struct {
	Answer http.Handler
	Health http.Handler
}

// Router handles HTTP routing for the relay.
type Router struct {
	router chi.Router
}

// NewRouter creates the router. Every route gets request IDs, timing,
// logging, panic recovery, CORS and metrics. The rate limiter, when given,
// applies to the answer route only.
func NewRouter(h Handlers, m *metrics.Metrics, limiter *middleware.RateLimiter, logger *zap.Logger) *Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTimer)
	r.Use(middleware.Logging(logger))
	r.Use(errors.ErrorHandler(logger))
	r.Use(middleware.CORS)
	if m != nil {
		r.Use(middleware.PrometheusMetrics(m))
	}

	r.NotFound(handlers.NotFound)
	r.MethodNotAllowed(handlers.MethodNotAllowed)

	r.Method(http.MethodGet, HealthPath, h.Health)

	r.Group(func(router chi.Router) {
		if limiter != nil {
			router.Use(limiter.Handler)
		}
		router.Method(http.MethodPost, AnswerPath, h.Answer)
	})

	if m != nil {
		RegisterMetricsRoutes(r, m)
	}

	return &Router{router: r}
}

// ServeHTTP implements the http.Handler interface.
// Delegates request handling to the underlying Chi router.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.router.ServeHTTP(w, req)
}
