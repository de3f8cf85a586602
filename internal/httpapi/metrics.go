package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"elementd/internal/lifecycle"
	"elementd/pkg/types"
)

const metricsNamespace = "elementd"

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"path", "method", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"path", "method", "status"},
	)

	httpInflight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "In-flight HTTP requests",
		},
		[]string{"path"},
	)

	backpressureTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "backpressure_total",
			Help:      "Total backpressure rejections (429)",
		},
		[]string{"reason"},
	)

	contentBytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "content",
			Name:      "served_bytes_total",
			Help:      "Bytes of resolved content written to clients",
		},
		[]string{"media_type", "cache"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal, httpRequestDuration, httpInflight, backpressureTotal, contentBytesTotal)
}

// statusRecorder wraps http.ResponseWriter to capture status code
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// MetricsMiddleware instruments requests for Prometheus
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sr := &statusRecorder{ResponseWriter: w, status: 200}
		start := time.Now()
		next.ServeHTTP(sr, r)
		// The pattern is only known once chi has routed the request.
		path := routePatternOrPath(r)
		method := r.Method
		statusLabel := strconv.Itoa(sr.status)
		dur := time.Since(start).Seconds()
		httpRequestsTotal.WithLabelValues(path, method, statusLabel).Inc()
		httpRequestDuration.WithLabelValues(path, method, statusLabel).Observe(dur)
	})
}

// inflightMiddleware tracks in-flight requests per route. It must run inside
// the router so the route pattern is resolved.
func inflightMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := routePatternOrPath(r)
		httpInflight.WithLabelValues(path).Inc()
		defer httpInflight.WithLabelValues(path).Dec()
		next.ServeHTTP(w, r)
	})
}

// routePatternOrPath returns the chi route pattern if available, otherwise
// falls back to URL path. This avoids high-cardinality label values.
func routePatternOrPath(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

// IncrementBackpressure is called when returning 429 to the client
func IncrementBackpressure(reason string) {
	if reason == "" {
		reason = "unspecified"
	}
	backpressureTotal.WithLabelValues(reason).Inc()
}

// StatusCollector exports a StatusResponse snapshot on every scrape.
type StatusCollector struct {
	status func() types.StatusResponse

	elements     *prometheus.Desc
	states       *prometheus.Desc
	queueLen     *prometheus.Desc
	maxQueueSize *prometheus.Desc
	historyLen   *prometheus.Desc
	events       *prometheus.Desc
	cacheEntries *prometheus.Desc
	cacheLookups *prometheus.Desc
	resolveFails *prometheus.Desc
}

// NewStatusCollector builds a collector over fn, typically Service.Status.
func NewStatusCollector(fn func() types.StatusResponse) *StatusCollector {
	d := func(sub, name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(metricsNamespace, sub, name), help, labels, nil)
	}
	return &StatusCollector{
		status:       fn,
		elements:     d("elements", "registered", "Registered elements"),
		states:       d("elements", "by_state", "Elements per lifecycle state", "state"),
		queueLen:     d("queue", "length", "Events waiting in the queue"),
		maxQueueSize: d("queue", "capacity", "Configured queue capacity"),
		historyLen:   d("events", "history_length", "Entries in the event history buffer"),
		events:       d("events", "total", "Events by outcome", "outcome"),
		cacheEntries: d("cache", "entries", "Content cache entries"),
		cacheLookups: d("cache", "lookups_total", "Content cache lookups", "result"),
		resolveFails: d("content", "resolve_failures_total", "Failed content resolutions"),
	}
}

func (c *StatusCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{c.elements, c.states, c.queueLen, c.maxQueueSize, c.historyLen, c.events, c.cacheEntries, c.cacheLookups, c.resolveFails} {
		ch <- d
	}
}

func (c *StatusCollector) Collect(ch chan<- prometheus.Metric) {
	st := c.status()
	gauge := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, labels...)
	}
	counter := func(d *prometheus.Desc, v uint64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}
	gauge(c.elements, float64(st.Elements))
	for state, n := range st.States {
		gauge(c.states, float64(n), state)
	}
	gauge(c.queueLen, float64(st.QueueLen))
	gauge(c.maxQueueSize, float64(st.MaxQueueSize))
	gauge(c.historyLen, float64(st.HistoryLen))
	counter(c.events, st.EventsProcessed, "processed")
	counter(c.events, st.EventsFailed, "failed")
	counter(c.events, st.EventsRejected, "rejected")
	counter(c.events, st.EventsDeduped, "deduped")
	gauge(c.cacheEntries, float64(st.CacheEntries))
	counter(c.cacheLookups, st.CacheHits, "hit")
	counter(c.cacheLookups, st.CacheMisses, "miss")
	counter(c.resolveFails, st.ResolveFailures)
}

// LifecycleMetrics counts lifecycle transitions. It satisfies
// lifecycle.EventPublisher.
type LifecycleMetrics struct {
	transitions *prometheus.CounterVec
}

// NewLifecycleMetrics registers the transition counter with reg.
func NewLifecycleMetrics(reg prometheus.Registerer) (*LifecycleMetrics, error) {
	cv := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "lifecycle",
		Name:      "transitions_total",
		Help:      "Element lifecycle transitions",
	}, []string{"event", "state"})
	if err := reg.Register(cv); err != nil {
		return nil, err
	}
	return &LifecycleMetrics{transitions: cv}, nil
}

func (m *LifecycleMetrics) Publish(e lifecycle.Event) {
	m.transitions.WithLabelValues(string(e.EventType), string(e.NewState)).Inc()
}
