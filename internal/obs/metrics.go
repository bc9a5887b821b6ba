package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Общие HTTP-метрики
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
			Buckets: prometheus.DefBuckets, // [0.005..10]
		},
		[]string{"method", "path", "status"},
	)

	serviceReady = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "service_ready",
		Help: "1 once the service is ready to take traffic, 0 otherwise.",
	})
)

// Доменные метрики планировщика
var (
	forecastsBuilt = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "forecasts_built_total",
		Help: "Cashflow forecasts produced.",
	})

	schedulesProcessed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "schedules_processed_total",
		Help: "Schedules marked processed.",
	})

	snapshotsRecorded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "balance_snapshots_recorded_total",
		Help: "Balance snapshots accepted.",
	})
)

// Регистрация метрик в default-регистре.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		serviceReady, forecastsBuilt, schedulesProcessed, snapshotsRecorded,
	)
}

// SetReady flips the readiness gauge; cmd/api calls it after the store
// answers its first ping and again on shutdown.
func SetReady(ready bool) {
	if ready {
		serviceReady.Set(1)
		return
	}
	serviceReady.Set(0)
}

func CountForecast()          { forecastsBuilt.Inc() }
func CountScheduleProcessed() { schedulesProcessed.Inc() }
func CountSnapshotRecorded()  { snapshotsRecorded.Inc() }

// Хэндлер Prometheus.
func Handler() http.Handler {
	return promhttp.Handler()
}

// CanonicalPath collapses resource identifiers so label cardinality stays
// bounded no matter how many accounts exist.
func CanonicalPath(p string) string {
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		return "/"
	}
	parts := strings.Split(strings.TrimPrefix(p, "/"), "/")
	if len(parts) >= 3 && parts[0] == "v1" {
		switch parts[1] {
		case "accounts":
			if len(parts) == 3 {
				return "/v1/accounts/:id"
			}
			if len(parts) == 4 {
				switch parts[3] {
				case "snapshots", "history", "reconciliation":
					return "/v1/accounts/:id/" + parts[3]
				}
			}
		case "schedules":
			if len(parts) == 4 && parts[3] == "processed" {
				return "/v1/schedules/:id/processed"
			}
		}
	}
	return p
}

// Обёртка для измерения RPS/latency/в полёте.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
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

// statusWriter — локальная копия, чтобы знать код ответа.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Unwrap keeps http.ResponseController working through the wrapper.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
