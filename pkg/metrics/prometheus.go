package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder exposes engine metrics through Prometheus.
// A nil *Recorder is valid and records nothing.
// ⭐ SSOT: 메트릭 이름은 여기서만 정의
type Recorder struct {
	registry *prometheus.Registry

	decisions     *prometheus.CounterVec
	pillarStates  *prometheus.CounterVec
	rejections    *prometheus.CounterVec
	conviction    *prometheus.GaugeVec
	appendLatency *prometheus.HistogramVec
	evalLatency   *prometheus.HistogramVec
	drift         *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	streamClients prometheus.Gauge
}

// New creates a recorder on its own registry (safe to call more than once)
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Recorder{
		registry: reg,
		decisions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fusion_decisions_total",
				Help: "Decisions produced, by directional bias and execution readiness",
			},
			[]string{"bias", "execution_ready"},
		),
		pillarStates: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fusion_pillar_states_total",
				Help: "Pillar results admitted, by pillar and state",
			},
			[]string{"pillar", "state"},
		),
		rejections: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fusion_rejections_total",
				Help: "Evaluation cycles rejected, by error kind",
			},
			[]string{"kind"},
		),
		conviction: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fusion_conviction_score",
				Help: "Latest conviction score per symbol",
			},
			[]string{"symbol"},
		),
		appendLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fusion_ledger_append_duration_seconds",
				Help:    "Ledger append duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		),
		evalLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fusion_pillar_evaluation_duration_seconds",
				Help:    "Pillar evaluator duration in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"pillar", "state"},
		),
		drift: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fusion_drift_measurements_total",
				Help: "Drift measurements, by classification",
			},
			[]string{"classification"},
		),
		httpRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fusion_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"route", "method", "status"},
		),
		httpDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fusion_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"route", "method"},
		),
		streamClients: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "fusion_stream_clients",
				Help: "Connected decision stream clients",
			},
		),
	}
}

// Handler serves the registry in the Prometheus text format
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry (tests, extra collectors)
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// RecordDecision records one produced decision.
// pillars maps pillar name → state for the admitted results.
func (r *Recorder) RecordDecision(symbol, bias string, executionReady bool, conviction float64, pillars map[string]string) {
	if r == nil {
		return
	}
	ready := "false"
	if executionReady {
		ready = "true"
	}
	r.decisions.WithLabelValues(bias, ready).Inc()
	r.conviction.WithLabelValues(symbol).Set(conviction)
	for pillar, state := range pillars {
		r.pillarStates.WithLabelValues(pillar, state).Inc()
	}
}

// RecordRejection records a rejected evaluation cycle
func (r *Recorder) RecordRejection(kind string) {
	if r == nil {
		return
	}
	r.rejections.WithLabelValues(kind).Inc()
}

// RecordAppend records ledger append latency
func (r *Recorder) RecordAppend(seconds float64, err error) {
	if r == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.appendLatency.WithLabelValues(result).Observe(seconds)
}

// RecordEvaluation records a single pillar evaluator run
func (r *Recorder) RecordEvaluation(pillar, state string, seconds float64) {
	if r == nil {
		return
	}
	r.evalLatency.WithLabelValues(pillar, state).Observe(seconds)
}

// RecordDrift records a drift classification
func (r *Recorder) RecordDrift(classification string) {
	if r == nil {
		return
	}
	r.drift.WithLabelValues(classification).Inc()
}

// RecordHTTP records one served request; route should be the template, not the raw path
func (r *Recorder) RecordHTTP(route, method, status string, seconds float64) {
	if r == nil {
		return
	}
	r.httpRequests.WithLabelValues(route, method, status).Inc()
	r.httpDuration.WithLabelValues(route, method).Observe(seconds)
}

// SetStreamClients sets the connected stream client count
func (r *Recorder) SetStreamClients(n int) {
	if r == nil {
		return
	}
	r.streamClients.Set(float64(n))
}
