package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/getpup/streamcoord"
	"github.com/getpup/streamcoord/store"
	"github.com/google/uuid"
)

// Store is an in-memory implementation of store.Store.
// It provides thread-safe access to pipelines and assignments using a sync.RWMutex.
// Values are copied on the way in and out so callers never share state with the store.
type Store struct {
	mu          sync.RWMutex
	pipelines   map[streamcoord.PipelineName]streamcoord.Pipeline
	assignments map[streamcoord.PipelineName]streamcoord.Assignment
}

// Compile-time check that Store implements store.Store.
var _ store.Store = (*Store)(nil)

// New creates a new in-memory store with initialized maps.
func New() *Store {
	return &Store{
		pipelines:   make(map[streamcoord.PipelineName]streamcoord.Pipeline),
		assignments: make(map[streamcoord.PipelineName]streamcoord.Assignment),
	}
}

// GetPipeline returns a pipeline by name.
// Returns streamcoord.ErrPipelineNotFound if the pipeline does not exist.
func (s *Store) GetPipeline(ctx context.Context, name streamcoord.PipelineName) (streamcoord.Pipeline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.pipelines[name]
	if !ok {
		return streamcoord.Pipeline{}, streamcoord.ErrPipelineNotFound
	}

	return p.Clone(), nil
}

// PutPipeline creates or replaces a pipeline.
func (s *Store) PutPipeline(ctx context.Context, pipeline streamcoord.Pipeline) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pipelines[pipeline.Name] = pipeline.Clone()

	return nil
}

// ListPipelines returns all pipelines ordered by name.
func (s *Store) ListPipelines(ctx context.Context) ([]streamcoord.Pipeline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pipelines := make([]streamcoord.Pipeline, 0, len(s.pipelines))
	for _, p := range s.pipelines {
		pipelines = append(pipelines, p.Clone())
	}
	sort.Slice(pipelines, func(i, j int) bool { return pipelines[i].Name < pipelines[j].Name })

	return pipelines, nil
}

// GetAssignment returns the current assignment of a pipeline.
// Returns store.ErrAssignmentNotFound if none is stored.
func (s *Store) GetAssignment(ctx context.Context, name streamcoord.PipelineName) (streamcoord.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.assignments[name]
	if !ok {
		return streamcoord.Assignment{}, store.ErrAssignmentNotFound
	}

	return a.Clone(), nil
}

// SwapAssignment replaces the assignment of a pipeline if the stored version
// matches expectedVersion.
// Returns store.ErrVersionConflict otherwise.
func (s *Store) SwapAssignment(ctx context.Context, name streamcoord.PipelineName, expectedVersion int64, assignment streamcoord.Assignment) (streamcoord.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current int64
	if a, ok := s.assignments[name]; ok {
		current = a.Version
	}
	if current != expectedVersion {
		return streamcoord.Assignment{}, store.ErrVersionConflict
	}

	next := assignment.Clone()
	next.Pipeline = name
	next.Version = expectedVersion + 1
	next.Generation = uuid.New().String()
	s.assignments[name] = next

	return next.Clone(), nil
}

// ListAssignments returns all stored assignments ordered by pipeline name.
func (s *Store) ListAssignments(ctx context.Context) ([]streamcoord.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	assignments := make([]streamcoord.Assignment, 0, len(s.assignments))
	for _, a := range s.assignments {
		assignments = append(assignments, a.Clone())
	}
	sort.Slice(assignments, func(i, j int) bool { return assignments[i].Pipeline < assignments[j].Pipeline })

	return assignments, nil
}
