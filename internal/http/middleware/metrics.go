// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file exposes Prometheus instrumentation for the REST API and the
// relay handshake. Labels are bounded: path is the registered Gin route,
// and every request that matched no route shares path="unmatched", so
// scanners probing random URLs cannot grow the series count.
//
// Relay connections are not ordinary requests. The Gin handler returns only
// when the WebSocket closes, so upgrades are kept out of the in-flight gauge
// and the latency/size histograms; live sessions are reported by the relay's
// own relay_connections_active gauge instead.
package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
)

const unmatchedRoute = "unmatched"

var (
	httpReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	// Status is omitted to keep histogram cardinality down.
	httpLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	httpInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_inflight",
			Help: "Current number of in-flight HTTP requests, excluding relay sessions.",
		},
	)

	// Buckets sized for user search results and conversation histories.
	httpRespSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "http_response_size_bytes",
			Help: "Size of HTTP responses in bytes.",
			Buckets: []float64{
				200, 500, 1 << 10, 4 << 10, 16 << 10,
				64 << 10, 256 << 10, 1 << 20, 4 << 20,
			},
		},
		[]string{"method", "path"},
	)

	// wsUpgrades is incremented when the upgrade request finishes: at session
	// end for accepted handshakes (status "101"), immediately for rejected ones.
	wsUpgrades = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_websocket_upgrades_total",
			Help: "Total number of WebSocket upgrade requests by outcome status.",
		},
		[]string{"path", "status"},
	)
)

func init() {
	prometheus.MustRegister(httpReqs, httpLat, httpInflight, httpRespSize, wsUpgrades)
}

// Metrics returns a Gin middleware that instruments requests with Prometheus:
//
//	http_requests_total{method,path,status}
//	http_request_duration_seconds{method,path}     (not for upgrades)
//	http_response_size_bytes{method,path}          (not for upgrades)
//	http_requests_inflight                         (not for upgrades)
//	http_websocket_upgrades_total{path,status}
//
// Mount the scrape endpoint next to it:
//
//	r.Use(middleware.Metrics())
//	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		if websocket.IsWebSocketUpgrade(c.Request) {
			c.Next()
			path := routeLabel(c)
			status := c.Writer.Status()
			if c.Writer.Written() && status == http.StatusOK {
				status = http.StatusSwitchingProtocols
			}
			code := strconv.Itoa(status)
			httpReqs.WithLabelValues(c.Request.Method, path, code).Inc()
			wsUpgrades.WithLabelValues(path, code).Inc()
			return
		}

		start := time.Now()
		httpInflight.Inc()
		defer httpInflight.Dec()

		c.Next()

		path := routeLabel(c)
		method := c.Request.Method
		httpReqs.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpLat.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
		// Status-only responses report -1.
		if size := c.Writer.Size(); size >= 0 {
			httpRespSize.WithLabelValues(method, path).Observe(float64(size))
		}
	}
}

// routeLabel is the registered route, or "unmatched" for 404/405 fallbacks.
func routeLabel(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return unmatchedRoute
}
