package matrix

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var linearSolves = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "circuit",
		Subsystem: "matrix",
		Name:      "solves_total",
		Help:      "Linear solves by path (dense/sparse), arithmetic and outcome",
	},
	[]string{"path", "kind", "outcome"},
)
