// Package metrics exposes Prometheus collectors for filter decisions,
// generated tasks and notification handling.
//
// A nil *Metrics is valid and records nothing, so components can be built
// without a registry in tests and one-shot CLI commands.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Notification outcomes.
const (
	OutcomeGenerated = "generated"
	OutcomeSkipped   = "skipped"
	OutcomeIgnored   = "ignored"
	OutcomeReplay    = "replay"
	OutcomeFailed    = "failed"
)

// Dedup skip causes.
const (
	CauseConflict = "conflict"
	CauseNotFound = "not_found"
	CauseError    = "error"
)

// Metrics holds the indexgen collectors.
type Metrics struct {
	gatherer prometheus.Gatherer

	filterDecisions    *prometheus.CounterVec
	lookupDuration     *prometheus.HistogramVec
	tasksGenerated     *prometheus.CounterVec
	tasksSuperseded    *prometheus.CounterVec
	dedupSkipped       *prometheus.CounterVec
	notifications      *prometheus.CounterVec
	httpRequestsTotal  *prometheus.CounterVec
	httpRequestLatency *prometheus.HistogramVec
}

// New creates the collectors and registers them on reg.
// A nil reg uses a fresh private registry.
func New(reg *prometheus.Registry) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		gatherer: reg,
		filterDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "indexgen_filter_decisions_total",
			Help: "Index necessity decisions by reason",
		}, []string{"reason", "index"}),
		lookupDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "indexgen_lookup_duration_seconds",
			Help:    "Latency of indexed document lookups",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"backend"}),
		tasksGenerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "indexgen_tasks_generated_total",
			Help: "Index tasks saved by kind",
		}, []string{"kind"}),
		tasksSuperseded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "indexgen_tasks_superseded_total",
			Help: "Pending tasks removed because a newer notification arrived",
		}, []string{"status"}),
		dedupSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "indexgen_dedup_skipped_total",
			Help: "Superseded tasks that could not be removed",
		}, []string{"cause"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "indexgen_notifications_total",
			Help: "Change notifications handled by kind and outcome",
		}, []string{"kind", "outcome"}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "indexgen_http_requests_total",
			Help: "HTTP requests served",
		}, []string{"method", "path", "status"}),
		httpRequestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "indexgen_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}

	var err error
	if m.filterDecisions, err = register(reg, m.filterDecisions); err != nil {
		return nil, err
	}
	if m.lookupDuration, err = register(reg, m.lookupDuration); err != nil {
		return nil, err
	}
	if m.tasksGenerated, err = register(reg, m.tasksGenerated); err != nil {
		return nil, err
	}
	if m.tasksSuperseded, err = register(reg, m.tasksSuperseded); err != nil {
		return nil, err
	}
	if m.dedupSkipped, err = register(reg, m.dedupSkipped); err != nil {
		return nil, err
	}
	if m.notifications, err = register(reg, m.notifications); err != nil {
		return nil, err
	}
	if m.httpRequestsTotal, err = register(reg, m.httpRequestsTotal); err != nil {
		return nil, err
	}
	if m.httpRequestLatency, err = register(reg, m.httpRequestLatency); err != nil {
		return nil, err
	}

	return m, nil
}

// register registers c on reg. When an identical collector is already
// registered, the existing one is returned and shared.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ObserveDecision counts one filter decision.
func (m *Metrics) ObserveDecision(reason string, index bool) {
	if m == nil {
		return
	}
	m.filterDecisions.WithLabelValues(reason, strconv.FormatBool(index)).Inc()
}

// ObserveLookup records the latency of one index lookup.
func (m *Metrics) ObserveLookup(backend string, d time.Duration) {
	if m == nil {
		return
	}
	m.lookupDuration.WithLabelValues(backend).Observe(d.Seconds())
}

// TaskGenerated counts one saved task.
func (m *Metrics) TaskGenerated(kind string) {
	if m == nil {
		return
	}
	m.tasksGenerated.WithLabelValues(kind).Inc()
}

// TaskSuperseded counts one removed pending task.
func (m *Metrics) TaskSuperseded(status string) {
	if m == nil {
		return
	}
	m.tasksSuperseded.WithLabelValues(status).Inc()
}

// DedupSkipped counts one pending task dedup could not remove.
func (m *Metrics) DedupSkipped(cause string) {
	if m == nil {
		return
	}
	m.dedupSkipped.WithLabelValues(cause).Inc()
}

// Notification counts one handled change notification.
func (m *Metrics) Notification(kind, outcome string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(kind, outcome).Inc()
}

// Instrument wraps next with request counters and latency histograms.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := strings.ToUpper(r.Method)
		start := time.Now()

		rec := &statusRecorder{ResponseWriter: w}
		defer func() {
			path := routeLabel(r)
			m.httpRequestLatency.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			m.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
		}()

		next.ServeHTTP(rec, r)
	})
}

// routeLabel prefers the matched chi route pattern so unknown paths do not
// create new series.
func routeLabel(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return r.URL.Path
	}
	if p := rctx.RoutePattern(); p != "" {
		return p
	}
	return "unmatched"
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
