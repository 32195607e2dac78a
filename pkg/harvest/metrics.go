package harvest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	problemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvest_problems_total",
		Help: "Problems by outcome (completed, already_indexed or the failure kind)",
	}, []string{"outcome"})

	problemDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "harvest_problem_duration_seconds",
		Help:    "Time to fetch and persist one problem, politeness pause excluded",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	})

	inFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "harvest_in_flight_problems",
		Help: "Problems dispatched but not yet released to the index",
	})

	reorderBuffered = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "harvest_reorder_buffered",
		Help: "Finished problems waiting for an earlier one before release",
	})
)
