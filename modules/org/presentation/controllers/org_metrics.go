package controllers

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	apiRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mo",
		Subsystem: "api",
		Name:      "requests_total",
		Help:      "API requests by endpoint and result (ok, invalid, not_found, conflict, error).",
	}, []string{"endpoint", "result"})

	apiLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "mo",
		Subsystem: "api",
		Name:      "latency_seconds",
		Help:      "API request latency by endpoint. Tree and history reads dominate the upper buckets.",
		Buckets:   prometheus.ExponentialBuckets(0.002, 2.5, 10),
	}, []string{"endpoint"})
)

// apiResult folds a status code into the label values of apiRequests.
func apiResult(status int) string {
	switch {
	case status == http.StatusConflict:
		return "conflict"
	case status == http.StatusNotFound:
		return "not_found"
	case status >= http.StatusInternalServerError:
		return "error"
	case status >= http.StatusBadRequest:
		return "invalid"
	default:
		return "ok"
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

func (c *OrgAPIController) instrumentAPI(endpoint string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w}
		next(sw, r)
		if sw.status == 0 {
			sw.status = http.StatusOK
		}
		apiRequests.WithLabelValues(endpoint, apiResult(sw.status)).Inc()
		apiLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}
}
