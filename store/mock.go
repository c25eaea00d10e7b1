package store

import (
	"context"
	"sync"

	"github.com/getpup/streamcoord"
)

// MockStore is a configurable mock implementation of Store for use in tests.
// It allows setting up expected return values, tracking method calls, and
// injecting errors for testing error paths.
type MockStore struct {
	mu sync.RWMutex

	// GetPipelineFunc is called by GetPipeline if set.
	GetPipelineFunc func(ctx context.Context, name streamcoord.PipelineName) (streamcoord.Pipeline, error)

	// PutPipelineFunc is called by PutPipeline if set.
	PutPipelineFunc func(ctx context.Context, pipeline streamcoord.Pipeline) error

	// ListPipelinesFunc is called by ListPipelines if set.
	ListPipelinesFunc func(ctx context.Context) ([]streamcoord.Pipeline, error)

	// GetAssignmentFunc is called by GetAssignment if set.
	GetAssignmentFunc func(ctx context.Context, name streamcoord.PipelineName) (streamcoord.Assignment, error)

	// SwapAssignmentFunc is called by SwapAssignment if set.
	SwapAssignmentFunc func(ctx context.Context, name streamcoord.PipelineName, expectedVersion int64, assignment streamcoord.Assignment) (streamcoord.Assignment, error)

	// ListAssignmentsFunc is called by ListAssignments if set.
	ListAssignmentsFunc func(ctx context.Context) ([]streamcoord.Assignment, error)

	// Call tracking
	GetPipelineCalls     []streamcoord.PipelineName
	PutPipelineCalls     []streamcoord.Pipeline
	ListPipelinesCalls   int
	GetAssignmentCalls   []streamcoord.PipelineName
	SwapAssignmentCalls  []SwapAssignmentCall
	ListAssignmentsCalls int
}

// SwapAssignmentCall records one SwapAssignment invocation.
type SwapAssignmentCall struct {
	Pipeline        streamcoord.PipelineName
	ExpectedVersion int64
	Assignment      streamcoord.Assignment
}

// Compile-time check that MockStore implements Store.
var _ Store = (*MockStore)(nil)

// NewMockStore creates a new mock store.
func NewMockStore() *MockStore {
	return &MockStore{}
}

// GetPipeline implements Store.
func (m *MockStore) GetPipeline(ctx context.Context, name streamcoord.PipelineName) (streamcoord.Pipeline, error) {
	m.mu.Lock()
	m.GetPipelineCalls = append(m.GetPipelineCalls, name)
	m.mu.Unlock()

	if m.GetPipelineFunc != nil {
		return m.GetPipelineFunc(ctx, name)
	}

	return streamcoord.Pipeline{}, streamcoord.ErrPipelineNotFound
}

// PutPipeline implements Store.
func (m *MockStore) PutPipeline(ctx context.Context, pipeline streamcoord.Pipeline) error {
	m.mu.Lock()
	m.PutPipelineCalls = append(m.PutPipelineCalls, pipeline)
	m.mu.Unlock()

	if m.PutPipelineFunc != nil {
		return m.PutPipelineFunc(ctx, pipeline)
	}

	return nil
}

// ListPipelines implements Store.
func (m *MockStore) ListPipelines(ctx context.Context) ([]streamcoord.Pipeline, error) {
	m.mu.Lock()
	m.ListPipelinesCalls++
	m.mu.Unlock()

	if m.ListPipelinesFunc != nil {
		return m.ListPipelinesFunc(ctx)
	}

	return nil, nil
}

// GetAssignment implements Store.
func (m *MockStore) GetAssignment(ctx context.Context, name streamcoord.PipelineName) (streamcoord.Assignment, error) {
	m.mu.Lock()
	m.GetAssignmentCalls = append(m.GetAssignmentCalls, name)
	m.mu.Unlock()

	if m.GetAssignmentFunc != nil {
		return m.GetAssignmentFunc(ctx, name)
	}

	return streamcoord.Assignment{}, ErrAssignmentNotFound
}

// SwapAssignment implements Store.
func (m *MockStore) SwapAssignment(ctx context.Context, name streamcoord.PipelineName, expectedVersion int64, assignment streamcoord.Assignment) (streamcoord.Assignment, error) {
	m.mu.Lock()
	m.SwapAssignmentCalls = append(m.SwapAssignmentCalls, SwapAssignmentCall{
		Pipeline:        name,
		ExpectedVersion: expectedVersion,
		Assignment:      assignment,
	})
	m.mu.Unlock()

	if m.SwapAssignmentFunc != nil {
		return m.SwapAssignmentFunc(ctx, name, expectedVersion, assignment)
	}

	assignment.Pipeline = name
	assignment.Version = expectedVersion + 1
	return assignment, nil
}

// ListAssignments implements Store.
func (m *MockStore) ListAssignments(ctx context.Context) ([]streamcoord.Assignment, error) {
	m.mu.Lock()
	m.ListAssignmentsCalls++
	m.mu.Unlock()

	if m.ListAssignmentsFunc != nil {
		return m.ListAssignmentsFunc(ctx)
	}

	return nil, nil
}

// Reset clears all call tracking.
func (m *MockStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.GetPipelineCalls = nil
	m.PutPipelineCalls = nil
	m.ListPipelinesCalls = 0
	m.GetAssignmentCalls = nil
	m.SwapAssignmentCalls = nil
	m.ListAssignmentsCalls = 0
}
