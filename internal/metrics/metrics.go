// Package metrics exposes Prometheus collectors for the document
// lifecycle service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	TransitionsTotal *prometheus.CounterVec
	DecisionsTotal   *prometheus.CounterVec
	SendJobsTotal    *prometheus.CounterVec
}

// New registers all collectors on reg. Tests pass a fresh registry so
// parallel packages never collide on collector names.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pdfpolish_http_requests_total",
			Help: "HTTP requests by route pattern and status code.",
		}, []string{"route", "code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pdfpolish_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		TransitionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pdfpolish_status_transitions_total",
			Help: "Document status transitions by target status.",
		}, []string{"to"}),
		DecisionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pdfpolish_quote_decisions_total",
			Help: "Applied quote decisions by outcome.",
		}, []string{"decision"}),
		SendJobsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pdfpolish_send_jobs_total",
			Help: "Processed email send jobs by result.",
		}, []string{"result"}),
	}
}

// Middleware records request counts and latency per chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		m.HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(ww.Status())).Inc()
		m.HTTPRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
