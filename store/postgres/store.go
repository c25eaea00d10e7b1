package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/getpup/streamcoord"
	"github.com/getpup/streamcoord/store"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Store is a PostgreSQL implementation of store.Store.
// It provides persistent storage for pipeline metadata and versioned assignments.
type Store struct {
	db                   *sql.DB
	pipelinesTable       string
	assignmentsTable     string
	taskAssignmentsTable string
}

// Compile-time check that Store implements store.Store.
var _ store.Store = (*Store)(nil)

// New creates a new PostgreSQL store with default table names.
func New(db *sql.DB) *Store {
	config := DefaultTableConfig()
	return NewWithConfig(db, config)
}

// NewWithConfig creates a new PostgreSQL store with custom table names.
func NewWithConfig(db *sql.DB, config TableConfig) *Store {
	return &Store{
		db:                   db,
		pipelinesTable:       config.PipelinesTable,
		assignmentsTable:     config.AssignmentsTable,
		taskAssignmentsTable: config.TaskAssignmentsTable,
	}
}

// GetPipeline returns a pipeline by name.
// Returns streamcoord.ErrPipelineNotFound if the pipeline does not exist.
func (s *Store) GetPipeline(ctx context.Context, name streamcoord.PipelineName) (streamcoord.Pipeline, error) {
	query := fmt.Sprintf(`
		SELECT name, state, elements, topology
		FROM %s
		WHERE name = $1
	`, s.pipelinesTable)

	p, err := scanPipeline(s.db.QueryRowContext(ctx, query, string(name)))
	if errors.Is(err, sql.ErrNoRows) {
		return streamcoord.Pipeline{}, streamcoord.ErrPipelineNotFound
	}
	if err != nil {
		return streamcoord.Pipeline{}, fmt.Errorf("failed to get pipeline: %w", err)
	}

	return p, nil
}

// PutPipeline creates or replaces a pipeline.
func (s *Store) PutPipeline(ctx context.Context, pipeline streamcoord.Pipeline) error {
	elements, err := json.Marshal(nonNilElements(pipeline.Elements))
	if err != nil {
		return fmt.Errorf("failed to encode elements: %w", err)
	}
	topology, err := json.Marshal(nonNilTopology(pipeline.Topology))
	if err != nil {
		return fmt.Errorf("failed to encode topology: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (name, state, elements, topology, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (name) DO UPDATE
		SET state = EXCLUDED.state, elements = EXCLUDED.elements, topology = EXCLUDED.topology, updated_at = NOW()
	`, s.pipelinesTable)

	if _, err := s.db.ExecContext(ctx, query, string(pipeline.Name), string(pipeline.State), elements, topology); err != nil {
		return fmt.Errorf("failed to put pipeline: %w", err)
	}

	return nil
}

// ListPipelines returns all pipelines ordered by name.
func (s *Store) ListPipelines(ctx context.Context) ([]streamcoord.Pipeline, error) {
	query := fmt.Sprintf(`
		SELECT name, state, elements, topology
		FROM %s
		ORDER BY name
	`, s.pipelinesTable)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list pipelines: %w", err)
	}
	defer rows.Close()

	var pipelines []streamcoord.Pipeline
	for rows.Next() {
		p, err := scanPipeline(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pipeline: %w", err)
		}
		pipelines = append(pipelines, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pipelines: %w", err)
	}

	return pipelines, nil
}

// GetAssignment returns the current assignment of a pipeline.
// Returns store.ErrAssignmentNotFound if none is stored.
func (s *Store) GetAssignment(ctx context.Context, name streamcoord.PipelineName) (streamcoord.Assignment, error) {
	query := fmt.Sprintf(`
		SELECT pipeline, generation, version, timestamp
		FROM %s
		WHERE pipeline = $1
	`, s.assignmentsTable)

	var a streamcoord.Assignment
	err := s.db.QueryRowContext(ctx, query, string(name)).Scan(&a.Pipeline, &a.Generation, &a.Version, &a.Timestamp)
	if errors.Is(err, sql.ErrNoRows) {
		return streamcoord.Assignment{}, store.ErrAssignmentNotFound
	}
	if err != nil {
		return streamcoord.Assignment{}, fmt.Errorf("failed to get assignment: %w", err)
	}

	components, err := s.taskAssignments(ctx, name)
	if err != nil {
		return streamcoord.Assignment{}, err
	}
	a.Components = components

	return a, nil
}

func (s *Store) taskAssignments(ctx context.Context, name streamcoord.PipelineName) (map[string][]streamcoord.TaskAssignment, error) {
	query := fmt.Sprintf(`
		SELECT component, start_task_id, end_task_id, host_id, port, start_time
		FROM %s
		WHERE pipeline = $1
		ORDER BY component, start_task_id
	`, s.taskAssignmentsTable)

	rows, err := s.db.QueryContext(ctx, query, string(name))
	if err != nil {
		return nil, fmt.Errorf("failed to get task assignments: %w", err)
	}
	defer rows.Close()

	components := make(map[string][]streamcoord.TaskAssignment)
	for rows.Next() {
		var ta streamcoord.TaskAssignment
		if err := rows.Scan(&ta.Component, &ta.StartTaskID, &ta.EndTaskID, &ta.HostID, &ta.Port, &ta.StartTime); err != nil {
			return nil, fmt.Errorf("failed to scan task assignment: %w", err)
		}
		components[ta.Component] = append(components[ta.Component], ta)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task assignments: %w", err)
	}

	return components, nil
}

// SwapAssignment replaces the assignment of a pipeline if the stored version
// matches expectedVersion. The header row is locked for the duration of the
// transaction.
// Returns store.ErrVersionConflict otherwise.
func (s *Store) SwapAssignment(ctx context.Context, name streamcoord.PipelineName, expectedVersion int64, assignment streamcoord.Assignment) (streamcoord.Assignment, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return streamcoord.Assignment{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	lockQuery := fmt.Sprintf(`
		SELECT version
		FROM %s
		WHERE pipeline = $1
		FOR UPDATE
	`, s.assignmentsTable)

	var current int64
	err = tx.QueryRowContext(ctx, lockQuery, string(name)).Scan(&current)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return streamcoord.Assignment{}, fmt.Errorf("failed to lock assignment: %w", err)
	}
	exists := err == nil
	if current != expectedVersion {
		return streamcoord.Assignment{}, store.ErrVersionConflict
	}

	next := assignment.Clone()
	next.Pipeline = name
	next.Version = expectedVersion + 1
	next.Generation = uuid.New().String()

	var upsert string
	if exists {
		upsert = fmt.Sprintf(`
			UPDATE %s
			SET generation = $2, version = $3, timestamp = $4, updated_at = NOW()
			WHERE pipeline = $1
		`, s.assignmentsTable)
	} else {
		upsert = fmt.Sprintf(`
			INSERT INTO %s (pipeline, generation, version, timestamp, updated_at)
			VALUES ($1, $2, $3, $4, NOW())
		`, s.assignmentsTable)
	}
	if _, err := tx.ExecContext(ctx, upsert, string(name), next.Generation, next.Version, next.Timestamp); err != nil {
		if isUniqueViolation(err) {
			return streamcoord.Assignment{}, store.ErrVersionConflict
		}
		return streamcoord.Assignment{}, fmt.Errorf("failed to write assignment: %w", err)
	}

	deleteQuery := fmt.Sprintf(`DELETE FROM %s WHERE pipeline = $1`, s.taskAssignmentsTable)
	if _, err := tx.ExecContext(ctx, deleteQuery, string(name)); err != nil {
		return streamcoord.Assignment{}, fmt.Errorf("failed to clear task assignments: %w", err)
	}

	insertQuery := fmt.Sprintf(`
		INSERT INTO %s (pipeline, component, start_task_id, end_task_id, host_id, port, start_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, s.taskAssignmentsTable)
	for _, component := range next.ComponentNames() {
		for _, ta := range next.Components[component] {
			if _, err := tx.ExecContext(ctx, insertQuery,
				string(name), component, ta.StartTaskID, ta.EndTaskID, ta.HostID, ta.Port, ta.StartTime); err != nil {
				return streamcoord.Assignment{}, fmt.Errorf("failed to insert task assignment: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return streamcoord.Assignment{}, fmt.Errorf("failed to commit assignment: %w", err)
	}

	return next, nil
}

// ListAssignments returns all stored assignments ordered by pipeline name.
func (s *Store) ListAssignments(ctx context.Context) ([]streamcoord.Assignment, error) {
	query := fmt.Sprintf(`SELECT pipeline FROM %s ORDER BY pipeline`, s.assignmentsTable)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}

	var names []streamcoord.PipelineName
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan pipeline name: %w", err)
		}
		names = append(names, streamcoord.PipelineName(name))
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("error iterating assignments: %w", err)
	}
	rows.Close()

	assignments := make([]streamcoord.Assignment, 0, len(names))
	for _, name := range names {
		a, err := s.GetAssignment(ctx, name)
		if errors.Is(err, store.ErrAssignmentNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		assignments = append(assignments, a)
	}

	return assignments, nil
}

// isUniqueViolation reports whether a concurrent writer created the row first.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPipeline(row rowScanner) (streamcoord.Pipeline, error) {
	var (
		p        streamcoord.Pipeline
		elements []byte
		topology []byte
	)
	if err := row.Scan(&p.Name, &p.State, &elements, &topology); err != nil {
		return streamcoord.Pipeline{}, err
	}
	if len(elements) > 0 {
		if err := json.Unmarshal(elements, &p.Elements); err != nil {
			return streamcoord.Pipeline{}, fmt.Errorf("failed to decode elements: %w", err)
		}
	}
	if len(topology) > 0 {
		if err := json.Unmarshal(topology, &p.Topology); err != nil {
			return streamcoord.Pipeline{}, fmt.Errorf("failed to decode topology: %w", err)
		}
	}
	return p, nil
}

func nonNilElements(m map[string]streamcoord.Element) map[string]streamcoord.Element {
	if m == nil {
		return map[string]streamcoord.Element{}
	}
	return m
}

func nonNilTopology(m map[string]streamcoord.ComponentSpec) map[string]streamcoord.ComponentSpec {
	if m == nil {
		return map[string]streamcoord.ComponentSpec{}
	}
	return m
}
