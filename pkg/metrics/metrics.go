// Package metrics provides Prometheus metrics for the streaming proxy.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamix_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "streamix_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds, including the streamed body",
			Buckets: prometheus.ExponentialBuckets(0.005, 4, 10),
		},
		[]string{"method", "route"},
	)

	connectionLoad = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "streamix_connection_load",
			Help: "Streams currently served by each backend connection",
		},
		[]string{"connection"},
	)

	streamBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "streamix_stream_bytes_total",
			Help: "Total bytes handed to HTTP clients",
		},
	)

	chunkFetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "streamix_chunk_fetch_duration_seconds",
			Help:    "Latency of a single remote chunk fetch",
			Buckets: prometheus.DefBuckets,
		},
	)

	chunkFetchErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamix_chunk_fetch_errors_total",
			Help: "Failed remote chunk fetches",
		},
		[]string{"connection"},
	)

	sessionsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamix_sessions_created_total",
			Help: "Remote sessions established",
		},
		[]string{"connection"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func SetConnectionLoad(connID int, load int64) {
	connectionLoad.WithLabelValues(strconv.Itoa(connID)).Set(float64(load))
}

func RecordStreamBytes(n int) {
	streamBytes.Add(float64(n))
}

func RecordChunkFetch(connID int, duration time.Duration, err error) {
	chunkFetchDuration.Observe(duration.Seconds())
	if err != nil {
		chunkFetchErrors.WithLabelValues(strconv.Itoa(connID)).Inc()
	}
}

func RecordSessionCreated(connID int) {
	sessionsCreated.WithLabelValues(strconv.Itoa(connID)).Inc()
}
