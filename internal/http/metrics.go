package httpx

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/splax/peephost/internal/metrics"
)

// Provisioning requests block on package installs and certbot, hence the
// long tail of the buckets.
var latencyBuckets = []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 180, 600}

func (r *Router) initMetrics(reg prometheus.Registerer) {
	opts := func(name, help string) prometheus.Opts {
		return prometheus.Opts{Namespace: "peephost", Subsystem: "dashboard", Name: name, Help: help}
	}
	labels := []string{"method", "route", "status"}

	r.requestTotal = metrics.Register(reg, prometheus.NewCounterVec(
		prometheus.CounterOpts(opts("http_requests_total", "Count of processed HTTP requests")), labels))
	r.requestLatency = metrics.Register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "peephost",
		Subsystem: "dashboard",
		Name:      "http_request_duration_seconds",
		Help:      "Latency distribution of HTTP handlers",
		Buckets:   latencyBuckets,
	}, labels))
	r.rateLimitHits = metrics.Register(reg, prometheus.NewCounterVec(
		prometheus.CounterOpts(opts("rate_limit_hits_total", "Number of rate-limited responses")), []string{"route", "key"}))
}

// instrument records the status and latency of next under a fixed route
// label so path parameters never become label values.
func (r *Router) instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)
		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		observed := prometheus.Labels{"method": req.Method, "route": route, "status": strconv.Itoa(status)}
		r.requestTotal.With(observed).Inc()
		r.requestLatency.With(observed).Observe(time.Since(start).Seconds())
	}
}

func (r *Router) recordRateLimitHit(route, key string) {
	r.rateLimitHits.With(prometheus.Labels{"route": route, "key": key}).Inc()
}
