package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// CommandsSentTotal tracks commands submitted to the coordinator.
var CommandsSentTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "streamcoord_commands_sent_total",
		Help: "Total commands submitted",
	},
	[]string{"kind"},
)

// CommandsExecutedTotal tracks executed commands by kind and outcome code.
var CommandsExecutedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "streamcoord_commands_executed_total",
		Help: "Total commands executed, by outcome",
	},
	[]string{"kind", "code", "category"},
)

// LogEntriesTotal tracks audit log entries emitted by the engine.
var LogEntriesTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "streamcoord_log_entries_total",
		Help: "Total audit log entries",
	},
)

// SubmitDuration tracks the wall time of a submitted command, locks included.
var SubmitDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "streamcoord_submit_duration_seconds",
		Help:    "Time spent executing a submitted command",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"kind"},
)

// ReallocationsTotal tracks parallelism reallocations by outcome.
var ReallocationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "streamcoord_reallocations_total",
		Help: "Total parallelism reallocations",
	},
	[]string{"pipeline", "outcome"},
)

// LeftoverExecutorsTotal tracks requested executor deltas that could not be satisfied.
var LeftoverExecutorsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "streamcoord_leftover_executors_total",
		Help: "Total unsatisfied executor deltas",
	},
	[]string{"pipeline"},
)

// ComponentExecutors tracks the current executor count of each component.
var ComponentExecutors = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "streamcoord_component_executors",
		Help: "Current executors per component",
	},
	[]string{"pipeline", "component"},
)

// ReconcileViolationsTotal tracks invariant violations found by reconciliation.
var ReconcileViolationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "streamcoord_reconcile_violations_total",
		Help: "Total invariant violations found by reconciliation",
	},
	[]string{"pipeline"},
)

// ReconcileDuration tracks the duration of a reconciliation pass.
var ReconcileDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "streamcoord_reconcile_duration_seconds",
		Help:    "Time spent in a reconciliation pass",
		Buckets: prometheus.DefBuckets,
	},
)
