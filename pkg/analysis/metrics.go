package analysis

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/edp1096/circuit-engine/pkg/simerr"
)

var (
	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "circuit",
			Subsystem: "analysis",
			Name:      "runs_total",
			Help:      "Analyzer runs by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	runDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "circuit",
			Subsystem: "analysis",
			Name:      "run_duration_seconds",
			Help:      "Analyzer wall time",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		},
		[]string{"kind"},
	)

	pointFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "circuit",
			Subsystem: "analysis",
			Name:      "point_failures_total",
			Help:      "Sweep points, frequencies and trials recorded as failed",
		},
		[]string{"kind"},
	)
)

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, simerr.ErrValidation):
		return "validation"
	case errors.Is(err, simerr.ErrSingular):
		return "singular"
	case errors.Is(err, simerr.ErrConvergence):
		return "convergence"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "error"
	}
}
