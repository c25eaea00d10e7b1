// Package reallocation computes new task layouts for parallelism changes.
//
// Reallocate is a pure function of the current assignment, the requested
// per-component executor deltas and a TopologySupport describing the cluster.
// It returns the new assignment (or nil when nothing changed) together with
// the part of each request that could not be granted:
//
//	res, err := reallocation.Reallocate(current, map[string]streamcoord.ParallelismChangeRequest{
//		"process": {ExecutorDiff: -1},
//	}, support)
//	if err != nil {
//		return err
//	}
//	if res.Assignment != nil {
//		// publish res.Assignment
//	}
//
// The caller holds the pipeline's lock across read, reallocate and publish.
package reallocation
