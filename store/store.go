package store

import (
	"context"

	"github.com/getpup/streamcoord"
)

// Store provides persistence for pipeline metadata and task assignments.
// Implementations must be safe for concurrent access.
type Store interface {
	// GetPipeline returns a pipeline by name.
	// Returns streamcoord.ErrPipelineNotFound if the pipeline does not exist.
	GetPipeline(ctx context.Context, name streamcoord.PipelineName) (streamcoord.Pipeline, error)

	// PutPipeline creates or replaces a pipeline.
	PutPipeline(ctx context.Context, pipeline streamcoord.Pipeline) error

	// ListPipelines returns all pipelines ordered by name.
	ListPipelines(ctx context.Context) ([]streamcoord.Pipeline, error)

	// GetAssignment returns the current assignment of a pipeline.
	// Returns ErrAssignmentNotFound if no assignment was ever stored.
	GetAssignment(ctx context.Context, name streamcoord.PipelineName) (streamcoord.Assignment, error)

	// SwapAssignment replaces the assignment of a pipeline if its stored
	// version equals expectedVersion (0 creates the first assignment).
	// The stored assignment gets a fresh Generation and the next Version and
	// is returned. Returns ErrVersionConflict if another writer got there first.
	SwapAssignment(ctx context.Context, name streamcoord.PipelineName, expectedVersion int64, assignment streamcoord.Assignment) (streamcoord.Assignment, error)

	// ListAssignments returns all stored assignments ordered by pipeline name.
	ListAssignments(ctx context.Context) ([]streamcoord.Assignment, error)
}
