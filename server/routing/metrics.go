package routing

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ivfcopilot/copilot/server/metrics"
)

// RegisterMetricsRoutes adds the Prometheus scrape endpoint.
func RegisterMetricsRoutes(r chi.Router, m *metrics.Metrics) {
	r.Method(http.MethodGet, MetricsPath, m.Handler())
}
