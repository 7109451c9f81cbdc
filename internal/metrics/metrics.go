// Package metrics provides Prometheus instrumentation for the pH adjuster.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aquacalc/ph-adjuster/internal/model"
)

var (
	// DosesTotal counts computed doses, partitioned by direction and chemical.
	DosesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "phadj_doses_total",
		Help: "Total number of dose calculations",
	}, []string{"direction", "chemical"})

	// SplitPlansTotal counts doses that exceeded the single-dose ceiling.
	SplitPlansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "phadj_split_plans_total",
		Help: "Dose calculations that required a split plan",
	}, []string{"chemical"})

	// WarningsTotal counts emitted warnings by code.
	WarningsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "phadj_warnings_total",
		Help: "Warnings attached to dose results",
	}, []string{"code"})

	// EngineLatency tracks time spent inside the dosing engine.
	EngineLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "phadj_engine_latency_seconds",
		Help:    "Dosing engine computation latency in seconds",
		Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
	}, []string{"direction"})

	// LiveSessions tracks open recompute-on-input WebSocket sessions.
	LiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "phadj_live_sessions",
		Help: "Number of open live dosing sessions",
	})

	// FeedClients tracks WebSocket clients watching the dose feed.
	FeedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "phadj_feed_clients",
		Help: "Number of connected dose feed clients",
	})

	// RecordFailures counts calculations that could not be persisted or published.
	RecordFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "phadj_record_failures_total",
		Help: "Calculations that failed to persist or publish",
	}, []string{"stage"})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "phadj_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "phadj_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// ObserveDose records a computed result and how long the engine took.
func ObserveDose(r model.DoseResult, elapsed time.Duration) {
	chem := r.ChemicalID
	if chem == "" {
		chem = "none"
	}
	DosesTotal.WithLabelValues(string(r.Direction), chem).Inc()
	EngineLatency.WithLabelValues(string(r.Direction)).Observe(elapsed.Seconds())
	if r.DosingPlan.IsSplit {
		SplitPlansTotal.WithLabelValues(chem).Inc()
	}
	for _, w := range r.Warnings {
		WarningsTotal.WithLabelValues(string(w.Code)).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the route pattern for path label to avoid high cardinality.
		path := routePattern(r)
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack lets WebSocket upgrades pass through the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
