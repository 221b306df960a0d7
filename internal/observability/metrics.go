package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels shared by the background loops.
const (
	OutcomeInstalled   = "installed"
	OutcomeUnchanged   = "unchanged"
	OutcomeFetchFailed = "fetch_failed"
	OutcomeParseFailed = "parse_failed"
	OutcomeSent        = "sent"
	OutcomeSendFailed  = "send_failed"
	OutcomeEmpty       = "empty"
)

// Metrics holds the client's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	Polls             *prometheus.CounterVec
	PollDuration      prometheus.Histogram
	Features          prometheus.Gauge
	Flushes           *prometheus.CounterVec
	Evaluations       *prometheus.CounterVec
	UnknownStrategies prometheus.Counter

	evalYes prometheus.Counter
	evalNo  prometheus.Counter
}

// New builds the client collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "toggle_client_polls_total",
			Help: "Toggle fetches by outcome",
		}, []string{"outcome"}),
		PollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "toggle_client_poll_duration_seconds",
			Help:    "Toggle fetch latency seconds",
			Buckets: prometheus.DefBuckets,
		}),
		Features: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "toggle_client_features",
			Help: "Features in the installed snapshot",
		}),
		Flushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "toggle_client_metrics_flushes_total",
			Help: "Usage metric flushes by outcome",
		}, []string{"outcome"}),
		Evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "toggle_client_evaluations_total",
			Help: "Feature evaluations by result",
		}, []string{"result"}),
		UnknownStrategies: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "toggle_client_unknown_strategy_total",
			Help: "Strategy references that could not be resolved",
		}),
	}
	m.evalYes = m.Evaluations.WithLabelValues("yes")
	m.evalNo = m.Evaluations.WithLabelValues("no")

	if reg != nil {
		reg.MustRegister(m.Polls, m.PollDuration, m.Features, m.Flushes, m.Evaluations, m.UnknownStrategies)
	}
	return m
}

func (m *Metrics) Poll(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.Polls.WithLabelValues(outcome).Inc()
	m.PollDuration.Observe(took.Seconds())
}

func (m *Metrics) SetFeatures(n int) {
	if m == nil {
		return
	}
	m.Features.Set(float64(n))
}

func (m *Metrics) Flush(outcome string) {
	if m == nil {
		return
	}
	m.Flushes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Evaluation(enabled bool) {
	if m == nil {
		return
	}
	if enabled {
		m.evalYes.Inc()
		return
	}
	m.evalNo.Inc()
}

// UnknownStrategy counts an unresolved strategy reference. The name is
// not a label; it only appears in the log line.
func (m *Metrics) UnknownStrategy() {
	if m == nil {
		return
	}
	m.UnknownStrategies.Inc()
}

// HTTPMetrics instruments the local HTTP surface. A nil *HTTPMetrics is
// valid and records nothing.
type HTTPMetrics struct {
	RequestsTotal *prometheus.CounterVec
	Latency       prometheus.Histogram
	InFlight      prometheus.Gauge
}

func NewHTTP(reg prometheus.Registerer) *HTTPMetrics {
	m := &HTTPMetrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "toggle_http_requests_total",
			Help: "Total local HTTP requests",
		}, []string{"code"}),
		Latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "toggle_http_request_duration_seconds",
			Help:    "Request latency seconds",
			Buckets: prometheus.DefBuckets,
		}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "toggle_http_in_flight",
			Help: "In-flight HTTP requests",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.RequestsTotal, m.Latency, m.InFlight)
	}
	return m
}

// Handler serves g, or the default registry when g is nil.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

type rec struct {
	http.ResponseWriter
	code int
}

func (r *rec) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

// Measure instruments an HTTP handler.
func (m *HTTPMetrics) Measure(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m.InFlight.Inc()
		defer m.InFlight.Dec()

		rr := &rec{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rr, r)

		m.Latency.Observe(time.Since(start).Seconds())
		m.RequestsTotal.WithLabelValues(strconv.Itoa(rr.code)).Inc()
	})
}
