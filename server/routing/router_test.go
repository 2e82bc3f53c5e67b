package routing

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/ivfcopilot/copilot/config"
	"github.com/ivfcopilot/copilot/server/handlers"
	"github.com/ivfcopilot/copilot/server/metrics"
	"github.com/ivfcopilot/copilot/server/middleware"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testHandlers() Handlers {
	return Handlers{
		Answer: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"answer":"ok"}`))
		}),
		Health: handlers.Health("IVF Copilot server is running"),
	}
}

func TestRouterRoutes(t *testing.T) {
	router := NewRouter(testHandlers(), metrics.NewMetrics(), nil, zap.NewNop())

	tests := []struct {
		name         string
		method       string
		path         string
		expectedCode int
		expectedBody string
	}{
		{name: "health", method: http.MethodGet, path: "/", expectedCode: http.StatusOK, expectedBody: "IVF Copilot server is running"},
		{name: "answer", method: http.MethodPost, path: "/api/answer", expectedCode: http.StatusOK, expectedBody: `{"answer":"ok"}`},
		{name: "answer wrong method", method: http.MethodGet, path: "/api/answer", expectedCode: http.StatusMethodNotAllowed, expectedBody: `{"error":"method not allowed"}`},
		{name: "unknown path", method: http.MethodGet, path: "/v1/completions", expectedCode: http.StatusNotFound, expectedBody: `{"error":"not found"}`},
		{name: "preflight", method: http.MethodOptions, path: "/api/answer", expectedCode: http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, strings.NewReader(`{}`)))

			assert.Equal(t, tt.expectedCode, rec.Code)
			assert.Equal(t, tt.expectedBody, strings.TrimSpace(rec.Body.String()))
			assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))
			assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestRouterMetricsEndpoint(t *testing.T) {
	router := NewRouter(testHandlers(), metrics.NewMetrics(), nil, zap.NewNop())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	withoutMetrics := NewRouter(testHandlers(), nil, nil, zap.NewNop())
	rec = httptest.NewRecorder()
	withoutMetrics.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouterRecoversFromPanic(t *testing.T) {
	h := testHandlers()
	h.Answer = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})
	router := NewRouter(h, nil, nil, zap.NewNop())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/answer", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "internal server error", body["error"])
}

func TestRouterRateLimitsAnswerOnly(t *testing.T) {
	m := metrics.NewMetrics()
	limiter := middleware.NewRateLimiter(config.RateLimitConfig{RequestsPerMinute: 1, Burst: 1}, m)
	router := NewRouter(testHandlers(), m, limiter, zap.NewNop())

	send := func(method, path string) int {
		req := httptest.NewRequest(method, path, nil)
		req.RemoteAddr = "198.51.100.7:4000"
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send(http.MethodPost, "/api/answer"))
	assert.Equal(t, http.StatusTooManyRequests, send(http.MethodPost, "/api/answer"))
	assert.Equal(t, http.StatusOK, send(http.MethodGet, "/"))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RateLimitHits.WithLabelValues("198.51.100.7")))
}

func TestRouterMetricsLabelsStayBounded(t *testing.T) {
	m := metrics.NewMetrics()
	router := NewRouter(testHandlers(), m, nil, zap.NewNop())

	for i := 0; i < 300; i++ {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/scan/"+strconv.Itoa(i), nil))
		require.Equal(t, http.StatusNotFound, rec.Code)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, AnswerPath, strings.NewReader(`{}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, 2, testutil.CollectAndCount(m.ActiveRequests))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.ActiveRequests.WithLabelValues(AnswerPath)))
	assert.Equal(t, float64(300), testutil.ToFloat64(m.RequestsTotal.WithLabelValues("unmatched", "404")))
}
