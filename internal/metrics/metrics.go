package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ticksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "musicbox_scheduler_ticks_total",
			Help: "Total number of poll ticks.",
		},
	)

	skippedTicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "musicbox_scheduler_skipped_ticks_total",
			Help: "Ticks skipped without a transit evaluation.",
		},
		[]string{"reason"},
	)

	firesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "musicbox_transit_fires_total",
			Help: "Total number of transit firings.",
		},
	)

	sinkErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "musicbox_sink_errors_total",
			Help: "Action sink failures.",
		},
		[]string{"sink"},
	)

	lstDegrees = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "musicbox_lst_degrees",
			Help: "Local sidereal time at the last tick, in degrees.",
		},
	)

	catalogStars = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "musicbox_catalog_stars",
			Help: "Stars loaded after validation and filtering.",
		},
	)

	cooldownActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "musicbox_cooldown_active",
			Help: "Stars currently inside their cooldown window.",
		},
	)

	tickDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "musicbox_scheduler_tick_duration_seconds",
			Help:    "Poll tick duration in seconds, including sink time.",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
		},
	)

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "musicbox_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "musicbox_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	streamConnectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "musicbox_stream_connections_total",
			Help: "SSE connection lifecycle events.",
		},
		[]string{"event"},
	)

	streamsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "musicbox_streams_active",
			Help: "Currently connected SSE clients.",
		},
	)

	streamMessagesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "musicbox_stream_messages_total",
			Help: "SSE data messages sent.",
		},
	)

	streamBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "musicbox_stream_bytes_total",
			Help: "Bytes written to SSE clients.",
		},
	)

	streamErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "musicbox_stream_errors_total",
			Help: "SSE failures by reason.",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(ticksTotal)
	prometheus.MustRegister(skippedTicksTotal)
	prometheus.MustRegister(firesTotal)
	prometheus.MustRegister(sinkErrorsTotal)
	prometheus.MustRegister(lstDegrees)
	prometheus.MustRegister(catalogStars)
	prometheus.MustRegister(cooldownActive)
	prometheus.MustRegister(tickDurationSeconds)
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpDurationSeconds)
	prometheus.MustRegister(streamConnectionsTotal)
	prometheus.MustRegister(streamsActive)
	prometheus.MustRegister(streamMessagesTotal)
	prometheus.MustRegister(streamBytesTotal)
	prometheus.MustRegister(streamErrorsTotal)
}

// IncTicks counts one poll tick.
func IncTicks() { ticksTotal.Inc() }

// IncSkippedTick counts a tick abandoned for the given reason.
func IncSkippedTick(reason string) { skippedTicksTotal.WithLabelValues(reason).Inc() }

// IncFires counts one transit firing.
func IncFires() { firesTotal.Inc() }

// IncSinkError counts one action sink failure.
func IncSinkError(sink string) { sinkErrorsTotal.WithLabelValues(sink).Inc() }

// SetLSTDegrees records the LST angle of the last tick.
func SetLSTDegrees(deg float64) { lstDegrees.Set(deg) }

// SetCatalogStars records the loaded catalog size.
func SetCatalogStars(n int) { catalogStars.Set(float64(n)) }

// SetCooldownActive records how many stars are inside their cooldown window.
func SetCooldownActive(n int) { cooldownActive.Set(float64(n)) }

// ObserveTickDuration records how long one tick took.
func ObserveTickDuration(d time.Duration) { tickDurationSeconds.Observe(d.Seconds()) }

// IncStreamConnections counts an SSE connect or disconnect.
func IncStreamConnections(event string) { streamConnectionsTotal.WithLabelValues(event).Inc() }

// IncStreamsActive increments the live SSE client gauge.
func IncStreamsActive() { streamsActive.Inc() }

// DecStreamsActive decrements the live SSE client gauge.
func DecStreamsActive() { streamsActive.Dec() }

// IncStreamMessages counts one SSE data message.
func IncStreamMessages() { streamMessagesTotal.Inc() }

// AddStreamBytes counts bytes written to an SSE client.
func AddStreamBytes(n int64) { streamBytesTotal.Add(float64(n)) }

// IncStreamErrors counts an SSE failure by reason.
func IncStreamErrors(reason string) { streamErrorsTotal.WithLabelValues(reason).Inc() }

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush keeps the SSE route streaming through the middleware chain.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the wrapped writer so http.ResponseController can reach
// SetWriteDeadline on the real connection.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// knownRoutes is the full route surface. Anything else gets one shared
// label so scanners and bots cannot inflate series cardinality.
var knownRoutes = map[string]bool{
	"/healthz":         true,
	"/readyz":          true,
	"/metrics":         true,
	"/api/v1/status":   true,
	"/api/v1/upcoming": true,
	"/api/v1/catalog":  true,
	"/api/v1/events":   true,
}

func normalizeRoute(path string) string {
	if knownRoutes[path] {
		return path
	}
	return "other"
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		code := strconv.Itoa(rw.statusCode)
		route := normalizeRoute(r.URL.Path)

		httpRequestsTotal.WithLabelValues(route, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(duration)
	})
}
