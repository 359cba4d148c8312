package settings

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Reads by domain and how the value was resolved.
	readsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notesprefs_preference_reads_total",
			Help: "Preference reads by domain and outcome",
		},
		[]string{"key", "outcome"}, // outcome: stored/default/normalized
	)

	writesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notesprefs_preference_writes_total",
			Help: "Preference writes by outcome",
		},
		[]string{"outcome"},
	)
)
