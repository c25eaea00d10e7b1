package metrics

import "github.com/getpup/streamcoord"

// Collector wraps metrics and provides helper methods with pre-filled labels.
type Collector struct {
	pipeline string
}

// NewCollector creates a new Collector for the given pipeline.
func NewCollector(pipeline streamcoord.PipelineName) *Collector {
	return &Collector{pipeline: string(pipeline)}
}

// IncReallocations increments the reallocations counter for an outcome.
func (c *Collector) IncReallocations(outcome string) {
	ReallocationsTotal.WithLabelValues(c.pipeline, outcome).Inc()
}

// AddLeftoverExecutors adds the absolute executor deltas of leftover requests.
func (c *Collector) AddLeftoverExecutors(leftover map[string]streamcoord.ParallelismChangeRequest) {
	n := 0
	for _, req := range leftover {
		if req.ExecutorDiff < 0 {
			n -= req.ExecutorDiff
		} else {
			n += req.ExecutorDiff
		}
	}
	if n > 0 {
		LeftoverExecutorsTotal.WithLabelValues(c.pipeline).Add(float64(n))
	}
}

// SetAssignment publishes the executor count of every component of a.
func (c *Collector) SetAssignment(a streamcoord.Assignment) {
	for _, name := range a.ComponentNames() {
		ComponentExecutors.WithLabelValues(c.pipeline, name).Set(float64(a.Executors(name)))
	}
}

// IncReconcileViolations increments the reconcile violations counter.
func (c *Collector) IncReconcileViolations() {
	ReconcileViolationsTotal.WithLabelValues(c.pipeline).Inc()
}
