package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the catalog's Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "appcatalog",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "appcatalog",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "route"},
	)

	Downloads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "appcatalog",
			Subsystem: "catalog",
			Name:      "downloads_total",
			Help:      "Downloads started, by outcome.",
		},
		[]string{"outcome"},
	)

	StreamedBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "appcatalog",
			Subsystem: "catalog",
			Name:      "streamed_bytes_total",
			Help:      "Bytes written to download clients.",
		},
	)

	StoredBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "appcatalog",
			Subsystem: "assets",
			Name:      "stored_bytes_total",
			Help:      "Bytes written to the upload root, by asset kind.",
		},
		[]string{"kind"},
	)

	Views = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "appcatalog",
			Subsystem: "catalog",
			Name:      "views_total",
			Help:      "App detail views counted.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpRequests,
		httpDuration,
		Downloads,
		StreamedBytes,
		StoredBytes,
		Views,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}

// Handler exposes the registry for gin.
func Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
	return gin.WrapH(h)
}

// Middleware records request counts and latency per matched route.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
