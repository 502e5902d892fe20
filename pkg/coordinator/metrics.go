package coordinator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "circuit",
			Subsystem: "coordinator",
			Name:      "requests_total",
			Help:      "Coordinator requests by analysis kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "circuit",
		Subsystem: "coordinator",
		Name:      "cache_hits_total",
		Help:      "Requests served from a completed cache entry",
	})

	sharedRuns = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "circuit",
		Subsystem: "coordinator",
		Name:      "shared_runs_total",
		Help:      "Requests that waited on an identical in-flight run",
	})

	timeouts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "circuit",
		Subsystem: "coordinator",
		Name:      "timeouts_total",
		Help:      "Runs abandoned after service_timeout",
	})

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "circuit",
			Subsystem: "coordinator",
			Name:      "request_duration_seconds",
			Help:      "Wall time per request, including waits on shared runs",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		},
		[]string{"kind"},
	)
)
