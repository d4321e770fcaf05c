package api

import (
	"bufio"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/aegis/fusion/internal/api/handlers"
	"github.com/wonny/aegis/fusion/pkg/logger"
	"github.com/wonny/aegis/fusion/pkg/metrics"
	"github.com/wonny/aegis/fusion/pkg/redis"
)

// RouterDeps are the optional collaborators of the router.
// Nil fields disable the matching routes or middleware.
type RouterDeps struct {
	Stream      http.Handler       // GET /ws/decisions
	Metrics     *metrics.Recorder  // GET /metrics + request metrics
	RateLimiter *redis.RateLimiter // evaluate throttle
}

// NewRouter creates and configures the HTTP router
// ⭐ SSOT: 라우팅 설정은 이 함수에서만
func NewRouter(decisionHandler *handlers.DecisionHandler, deps RouterDeps, log *logger.Logger) http.Handler {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", healthCheckHandler).Methods("GET")

	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics.Handler()).Methods("GET")
	}
	if deps.Stream != nil {
		r.Handle("/ws/decisions", deps.Stream).Methods("GET")
	}

	// API
	api := r.PathPrefix("/api").Subrouter()

	// Decision endpoints
	api.HandleFunc("/decisions/{symbol}/evaluate", decisionHandler.Evaluate).Methods("POST")
	api.HandleFunc("/decisions/{symbol}/latest", decisionHandler.GetLatest).Methods("GET")
	api.HandleFunc("/decisions/{symbol}/history", decisionHandler.GetHistory).Methods("GET")
	api.HandleFunc("/decisions/{symbol}/statistics", decisionHandler.GetStatistics).Methods("GET")
	api.HandleFunc("/decisions/{symbol}/timeline", decisionHandler.GetTimeline).Methods("GET")
	api.HandleFunc("/decisions/{symbol}/drift", decisionHandler.GetDrift).Methods("GET")

	// Drift / calibration
	api.HandleFunc("/drift", decisionHandler.CompareDrift).Methods("POST")
	api.HandleFunc("/calibration", decisionHandler.GetCalibration).Methods("GET")

	if deps.RateLimiter != nil {
		api.Use(rateLimitMiddleware(deps.RateLimiter, log))
	}

	// Apply middleware
	r.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))
	if deps.Metrics != nil {
		r.Use(metricsMiddleware(deps.Metrics))
	}

	return r
}

// healthCheckHandler returns server health status
func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"service": "aegis-fusion-api",
	})
}

// statusRecorder captures the response status for logging/metrics
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer (websocket hijack)
func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// Hijack keeps websocket upgrades working behind the middleware chain
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	s.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			// Call next handler
			next.ServeHTTP(rec, r)

			// Log request
			log.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   rec.status,
				"duration": time.Since(start),
			}).Debug("HTTP request")
		})
	}
}

// recoveryMiddleware recovers from panics
func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithFields(map[string]interface{}{
						"error": err,
						"path":  r.URL.Path,
					}).Error("Panic recovered")

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(map[string]string{
						"error": "Internal server error",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// metricsMiddleware records request counts/latency by route template
func metricsMiddleware(recorder *metrics.Recorder) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			// 템플릿 사용 (심볼별 라벨 폭증 방지)
			route := "unmatched"
			if cur := mux.CurrentRoute(r); cur != nil {
				if tpl, err := cur.GetPathTemplate(); err == nil {
					route = tpl
				}
			}
			recorder.RecordHTTP(route, r.Method, strconv.Itoa(rec.status), time.Since(start).Seconds())
		})
	}
}

// rateLimitMiddleware throttles per client IP using the redis sliding window.
// Evaluations (writes) get the tighter budget.
func rateLimitMiddleware(limiter *redis.RateLimiter, log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cfg := redis.QueryRateLimit
			if r.Method == http.MethodPost {
				cfg = redis.EvaluateRateLimit
			}

			allowed, remaining, err := limiter.Allow(r.Context(), cfg.For(clientIP(r)))
			if err != nil {
				// 레이트 리미터 장애 시 요청 허용 (평가 경로 차단 금지)
				log.WithError(err).Warn("Rate limiter unavailable")
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			if !allowed {
				w.Header().Set("Retry-After", strconv.Itoa(int(cfg.Window.Seconds())))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]string{
					"error": "Rate limit exceeded",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
