package loraclient

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/os2mo/mora/modules/org/domain/lora"
)

var (
	loraRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mora",
		Subsystem: "lora",
		Name:      "requests_total",
		Help:      "Total number of requests sent to the LoRa store.",
	}, []string{"operation", "result"})

	loraRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "mora",
		Subsystem: "lora",
		Name:      "request_duration_seconds",
		Help:      "Latency of requests sent to the LoRa store.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})
)

func recordRequest(op string, err error, d time.Duration) {
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, lora.ErrNotFound):
		result = "not_found"
	case errors.Is(err, ErrUnavailable):
		result = "unavailable"
	default:
		result = "error"
	}
	loraRequestsTotal.WithLabelValues(op, result).Inc()
	loraRequestDuration.WithLabelValues(op).Observe(d.Seconds())
}
