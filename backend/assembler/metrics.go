package assembler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	mEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "listdelta_assembler_events_total",
		Help: "The total number of list events fired to listeners.",
	}, []string{"stream"})

	mTreeFallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "listdelta_assembler_tree_fallbacks_total",
		Help: "The total number of events that couldn't be represented as a linear block sequence.",
	})

	mRollbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "listdelta_assembler_rollbacks_total",
		Help: "The total number of rolled back transactions.",
	})
)
