package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	moTreeBuilds = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mo",
		Subsystem: "tree",
		Name:      "builds_total",
		Help:      "Total number of unit tree builds broken down by shape and result.",
	}, []string{"shape", "result"})

	moTreeIterations = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "mo",
		Subsystem: "tree",
		Name:      "iterations",
		Help:      "Frontier iterations needed to resolve a unit tree.",
		Buckets:   prometheus.LinearBuckets(1, 2, 10),
	})

	moClassCacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mo",
		Subsystem: "class_cache",
		Name:      "requests_total",
		Help:      "Total number of classification lookups broken down by cache layer and hit/miss.",
	}, []string{"layer", "result"})

	moAmbiguousCurrent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mo",
		Subsystem: "projection",
		Name:      "ambiguous_current_total",
		Help:      "Total number of reads where several versions claimed the reference instant.",
	}, []string{"field"})

	moWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mo",
		Subsystem: "write",
		Name:      "requests_total",
		Help:      "Total number of writes broken down by operation and result.",
	}, []string{"operation", "result"})
)

func recordTreeBuild(siblings bool, iterations int, err error) {
	shape := "search"
	if siblings {
		shape = "ancestors"
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	moTreeBuilds.WithLabelValues(shape, result).Inc()
	if err == nil {
		moTreeIterations.Observe(float64(iterations))
	}
}

func recordClassLookup(layer string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	moClassCacheRequests.WithLabelValues(layer, result).Inc()
}

func recordAmbiguousCurrent(field string) {
	moAmbiguousCurrent.WithLabelValues(field).Inc()
}

func recordWrite(operation string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	moWrites.WithLabelValues(operation, result).Inc()
}
