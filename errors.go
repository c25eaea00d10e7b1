package streamcoord

import "errors"

var (
	// ErrInvalidAssignment indicates an assignment violates the continuity invariant.
	// Passing such an assignment to the reallocation algorithm is a programming error.
	ErrInvalidAssignment = errors.New("invalid assignment")

	// ErrPipelineNotFound indicates the pipeline is unknown to the coordinator.
	ErrPipelineNotFound = errors.New("pipeline not found")

	// ErrPipelineNotRunning indicates an operation requires a running pipeline.
	ErrPipelineNotRunning = errors.New("pipeline not running")

	// ErrElementNotFound indicates the pipeline has no element with the given name.
	ErrElementNotFound = errors.New("element not found")

	// ErrHostUnresolved indicates a requested host cannot be mapped to a worker slot.
	ErrHostUnresolved = errors.New("host unresolved")

	// ErrWorkerOversubscribed indicates a worker slot would exceed its executor capacity.
	ErrWorkerOversubscribed = errors.New("worker oversubscribed")
)
