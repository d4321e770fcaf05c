package api

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis/fusion/internal/api/handlers"
	"github.com/wonny/aegis/fusion/internal/calibration"
	"github.com/wonny/aegis/fusion/internal/contracts"
	"github.com/wonny/aegis/fusion/internal/drift"
	"github.com/wonny/aegis/fusion/internal/fusion"
	"github.com/wonny/aegis/fusion/internal/ledger"
	"github.com/wonny/aegis/fusion/internal/pipeline"
	"github.com/wonny/aegis/fusion/internal/timeline"
	"github.com/wonny/aegis/fusion/pkg/config"
	"github.com/wonny/aegis/fusion/pkg/logger"
	"github.com/wonny/aegis/fusion/pkg/metrics"
	"github.com/wonny/aegis/fusion/pkg/redis"
)

func newTestRouter(t *testing.T, deps RouterDeps) http.Handler {
	t.Helper()

	cal := calibration.Default()
	mem := ledger.NewMemoryLedger(zerolog.Nop())

	var evaluators []contracts.PillarEvaluator
	for _, p := range contracts.AllPillars() {
		evaluators = append(evaluators, pipeline.NewPlaceholderEvaluator(p))
	}
	runner, err := pipeline.NewRunner(fusion.NewAggregator(zerolog.Nop()), mem, evaluators, pipeline.Options{Metrics: deps.Metrics}, zerolog.Nop())
	require.NoError(t, err)

	h, err := handlers.NewDecisionHandler(
		runner,
		mem,
		drift.NewEngine(cal.Drift, zerolog.Nop()),
		timeline.NewEngine(cal.Timeline.TrendEpsilon),
		cal,
		deps.Metrics,
		logger.Nop(),
	)
	require.NoError(t, err)

	return NewRouter(h, deps, logger.Nop())
}

func serve(router http.Handler, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRouter_Health(t *testing.T) {
	router := newTestRouter(t, RouterDeps{})

	rec := serve(router, "GET", "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","service":"aegis-fusion-api"}`, rec.Body.String())
}

func TestRouter_Routes(t *testing.T) {
	router := newTestRouter(t, RouterDeps{})

	tests := []struct {
		method string
		path   string
		status int
	}{
		{"POST", "/api/decisions/AAPL/evaluate", http.StatusCreated},
		{"GET", "/api/decisions/AAPL/latest", http.StatusOK},
		{"GET", "/api/decisions/AAPL/history", http.StatusOK},
		{"GET", "/api/decisions/AAPL/statistics", http.StatusOK},
		{"GET", "/api/decisions/AAPL/timeline", http.StatusOK},
		{"GET", "/api/decisions/AAPL/drift", http.StatusNotFound},
		{"GET", "/api/calibration", http.StatusOK},
		{"GET", "/metrics", http.StatusNotFound},
		{"GET", "/ws/decisions", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := serve(router, tt.method, tt.path)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestRouter_MetricsByRouteTemplate(t *testing.T) {
	recorder := metrics.New()
	router := newTestRouter(t, RouterDeps{Metrics: recorder})

	serve(router, "GET", "/api/decisions/AAPL/latest")
	serve(router, "GET", "/api/decisions/MSFT/latest")

	rec := serve(router, "GET", "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body),
		`fusion_http_requests_total{method="GET",route="/api/decisions/{symbol}/latest",status="404"} 2`)
	assert.NotContains(t, string(body), `route="/api/decisions/AAPL/latest"`)
}

func TestRouter_RateLimitHeaders(t *testing.T) {
	client, err := redis.New(&config.Config{})
	require.NoError(t, err)
	router := newTestRouter(t, RouterDeps{RateLimiter: redis.NewRateLimiter(client, "fusion")})

	rec := serve(router, "POST", "/api/decisions/AAPL/evaluate")
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "30", rec.Header().Get("X-RateLimit-Limit"))

	// 조회 경로는 별도 한도
	rec = serve(router, "GET", "/api/decisions/AAPL/latest")
	assert.Equal(t, "20", rec.Header().Get("X-RateLimit-Limit"))

	rec = serve(router, "GET", "/health")
	assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
}

func TestRouter_StreamMounted(t *testing.T) {
	stream := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	router := newTestRouter(t, RouterDeps{Stream: stream})

	rec := serve(router, "GET", "/ws/decisions")
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestRecoveryMiddleware(t *testing.T) {
	panicking := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})
	h := recoveryMiddleware(logger.Nop())(panicking)

	rec := serve(h, "GET", "/")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "Internal server error"))
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.7:51234"
	assert.Equal(t, "10.0.0.7", clientIP(req))

	req.RemoteAddr = "pipe"
	assert.Equal(t, "pipe", clientIP(req))
}
