package rbp

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	mPayloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "listdelta_rbp_payloads_total",
		Help: "The total number of protocol messages sent and received.",
	}, []string{"direction"})

	mSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "listdelta_rbp_subscribers",
		Help: "The number of remote subscribers currently attached to published resources.",
	})

	mOverflowsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "listdelta_rbp_queue_overflows_total",
		Help: "The total number of subscribers disconnected because they couldn't keep up.",
	})
)
