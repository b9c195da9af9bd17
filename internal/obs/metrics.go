package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	circlesCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "padisave_circles_created_total",
		Help: "Savings circles created.",
	})

	membersJoined = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "padisave_members_joined_total",
		Help: "Memberships added via join code.",
	})

	paymentsRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "padisave_payments_recorded_total",
			Help: "Contribution payments recorded, by settlement outcome.",
		},
		[]string{"outcome"},
	)

	cyclesAdvanced = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "padisave_cycles_advanced_total",
		Help: "Completed contribution cycles across all circles.",
	})
)

// Init registers all metrics with the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		circlesCreated, membersJoined, paymentsRecorded, cyclesAdvanced,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// IncCircleCreated records a newly created circle.
func IncCircleCreated() { circlesCreated.Inc() }

// IncMemberJoined records a membership added through a join code.
func IncMemberJoined() { membersJoined.Inc() }

// IncPaymentRecorded records a settled contribution payment.
func IncPaymentRecorded(outcome string) { paymentsRecorded.WithLabelValues(outcome).Inc() }

// IncCycleAdvanced records a cycle rollover.
func IncCycleAdvanced() { cyclesAdvanced.Inc() }

// Instrument wraps an HTTP handler with RPS, latency and in-flight metrics.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// statusWriter captures the response code for metric labels.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
