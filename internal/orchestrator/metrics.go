package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsDispatched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "latency_harness_jobs_dispatched_total",
		Help: "Number of test jobs handed to a client.",
	})
	jobsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "latency_harness_jobs_in_flight",
		Help: "Jobs with an outstanding client call.",
	})
	resultsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "latency_harness_results_dropped_total",
		Help: "Results dropped because the queue was at capacity.",
	})
	storageRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "latency_harness_storage_retries_total",
		Help: "Storage write attempts that failed and were retried.",
	})
	storageDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "latency_harness_storage_drops_total",
		Help: "Items dropped after exhausting storage write retries.",
	})
)
