// Package metrics exposes Prometheus metrics for the clouddrive server.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/dmitrijs2005/clouddrive/internal/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clouddrive_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clouddrive_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	bytesStreamed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clouddrive_bytes_streamed_total",
			Help: "Bytes written to clients, by operation",
		},
		[]string{"op"},
	)

	uploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clouddrive_uploads_total",
			Help: "Total number of uploads",
		},
		[]string{"backend", "status"},
	)

	bytesUploaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clouddrive_bytes_uploaded_total",
			Help: "Total bytes stored by uploads",
		},
	)

	tokenValidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clouddrive_token_validations_total",
			Help: "Token validations by kind and result",
		},
		[]string{"kind", "result"},
	)

	tokensPurged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clouddrive_tokens_purged_total",
			Help: "Expired tokens removed by the janitor",
		},
	)
)

func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest records an HTTP request metric.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordBytesStreamed counts bytes sent for op (download, public, video, thumbnail).
func RecordBytesStreamed(op string, n int64) {
	bytesStreamed.WithLabelValues(op).Add(float64(n))
}

func RecordUpload(backend string, size int64, err error) {
	status := "success"
	if err != nil {
		status = "error"
	} else {
		bytesUploaded.Add(float64(size))
	}
	uploadsTotal.WithLabelValues(backend, status).Inc()
}

// RecordTokenValidation has the signature of tokens.Observer.
func RecordTokenValidation[K ~string](kind K, err error) {
	tokenValidations.WithLabelValues(string(kind), validationResult(err)).Inc()
}

func validationResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, common.ErrTokenExpired):
		return "expired"
	case errors.Is(err, common.ErrClientMismatch):
		return "client_mismatch"
	case errors.Is(err, common.ErrorNotFound):
		return "not_found"
	}
	return "invalid"
}

func RecordTokensPurged(n int64) {
	tokensPurged.Add(float64(n))
}
