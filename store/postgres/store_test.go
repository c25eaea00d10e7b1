package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/getpup/streamcoord"
	"github.com/getpup/streamcoord/store"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		db.Close()
	})

	return New(db), mock
}

func TestStoreInitialization(t *testing.T) {
	t.Run("New creates store with default table names", func(t *testing.T) {
		s := New(nil)

		assert.Equal(t, "streamcoord_pipelines", s.pipelinesTable)
		assert.Equal(t, "streamcoord_assignments", s.assignmentsTable)
		assert.Equal(t, "streamcoord_task_assignments", s.taskAssignmentsTable)
	})

	t.Run("NewWithConfig creates store with custom table names", func(t *testing.T) {
		s := NewWithConfig(nil, TableConfig{
			PipelinesTable:       "my_pipelines",
			AssignmentsTable:     "my_assignments",
			TaskAssignmentsTable: "my_tasks",
		})

		assert.Equal(t, "my_pipelines", s.pipelinesTable)
		assert.Equal(t, "my_assignments", s.assignmentsTable)
		assert.Equal(t, "my_tasks", s.taskAssignmentsTable)
	})
}

func TestGetPipeline(t *testing.T) {
	t.Run("decodes element metadata", func(t *testing.T) {
		s, mock := newMockStore(t)

		mock.ExpectQuery("SELECT name, state, elements, topology FROM streamcoord_pipelines WHERE name = \\$1").
			WithArgs("traffic").
			WillReturnRows(sqlmock.NewRows([]string{"name", "state", "elements", "topology"}).
				AddRow("traffic", "running",
					[]byte(`{"detector":{"name":"detector","kind":"family","algorithms":["fast","exact"]}}`),
					[]byte(`{"process":{"tasks":4,"executors":2}}`)))

		p, err := s.GetPipeline(context.Background(), "traffic")

		require.NoError(t, err)
		assert.Equal(t, streamcoord.PipelineStateRunning, p.State)
		assert.Equal(t, streamcoord.ElementKindFamily, p.Elements["detector"].Kind)
		assert.Equal(t, []string{"fast", "exact"}, p.Elements["detector"].Algorithms)
		assert.Equal(t, streamcoord.ComponentSpec{Tasks: 4, Executors: 2}, p.Topology["process"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("maps sql.ErrNoRows to ErrPipelineNotFound", func(t *testing.T) {
		s, mock := newMockStore(t)

		mock.ExpectQuery("SELECT name, state, elements, topology").
			WithArgs("missing").
			WillReturnError(sql.ErrNoRows)

		_, err := s.GetPipeline(context.Background(), "missing")

		assert.ErrorIs(t, err, streamcoord.ErrPipelineNotFound)
	})

	t.Run("wraps driver errors", func(t *testing.T) {
		s, mock := newMockStore(t)
		boom := errors.New("connection reset")

		mock.ExpectQuery("SELECT name, state, elements, topology").WillReturnError(boom)

		_, err := s.GetPipeline(context.Background(), "traffic")

		assert.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), "failed to get pipeline")
	})
}

func TestPutPipeline_Upserts(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO streamcoord_pipelines .* ON CONFLICT \\(name\\) DO UPDATE").
		WithArgs("traffic", "created", []byte(`{}`), []byte(`{}`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.PutPipeline(context.Background(), streamcoord.Pipeline{Name: "traffic", State: streamcoord.PipelineStateCreated})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAssignment(t *testing.T) {
	t.Run("loads header and ranges", func(t *testing.T) {
		s, mock := newMockStore(t)

		mock.ExpectQuery("SELECT pipeline, generation, version, timestamp FROM streamcoord_assignments").
			WithArgs("traffic").
			WillReturnRows(sqlmock.NewRows([]string{"pipeline", "generation", "version", "timestamp"}).
				AddRow("traffic", "6f1c", int64(2), int64(40)))
		mock.ExpectQuery("SELECT component, start_task_id, end_task_id, host_id, port, start_time FROM streamcoord_task_assignments").
			WithArgs("traffic").
			WillReturnRows(sqlmock.NewRows([]string{"component", "start_task_id", "end_task_id", "host_id", "port", "start_time"}).
				AddRow("process", 1, 2, "h1", 6700, int64(40)).
				AddRow("process", 3, 4, "h2", 6700, int64(40)))

		a, err := s.GetAssignment(context.Background(), "traffic")

		require.NoError(t, err)
		assert.Equal(t, int64(2), a.Version)
		assert.Equal(t, "6f1c", a.Generation)
		require.Len(t, a.Components["process"], 2)
		assert.Equal(t, "h2", a.Components["process"][1].HostID)
		assert.NoError(t, a.Validate())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("maps sql.ErrNoRows to ErrAssignmentNotFound", func(t *testing.T) {
		s, mock := newMockStore(t)

		mock.ExpectQuery("SELECT pipeline, generation, version, timestamp").WillReturnError(sql.ErrNoRows)

		_, err := s.GetAssignment(context.Background(), "traffic")

		assert.ErrorIs(t, err, store.ErrAssignmentNotFound)
	})
}

func assignmentFixture() streamcoord.Assignment {
	return streamcoord.Assignment{
		Timestamp: 9,
		Components: map[string][]streamcoord.TaskAssignment{
			"process": {{Component: "process", StartTaskID: 1, EndTaskID: 3, HostID: "h1", Port: 6700, StartTime: 9}},
		},
	}
}

func TestSwapAssignment(t *testing.T) {
	t.Run("creates the first assignment", func(t *testing.T) {
		s, mock := newMockStore(t)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT version FROM streamcoord_assignments WHERE pipeline = \\$1 FOR UPDATE").
			WithArgs("traffic").
			WillReturnError(sql.ErrNoRows)
		mock.ExpectExec("INSERT INTO streamcoord_assignments").
			WithArgs("traffic", sqlmock.AnyArg(), int64(1), int64(9)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("DELETE FROM streamcoord_task_assignments WHERE pipeline = \\$1").
			WithArgs("traffic").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("INSERT INTO streamcoord_task_assignments").
			WithArgs("traffic", "process", 1, 3, "h1", 6700, int64(9)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		a, err := s.SwapAssignment(context.Background(), "traffic", 0, assignmentFixture())

		require.NoError(t, err)
		assert.Equal(t, int64(1), a.Version)
		assert.NotEmpty(t, a.Generation)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("updates a matching version", func(t *testing.T) {
		s, mock := newMockStore(t)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT version FROM streamcoord_assignments").
			WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(int64(4)))
		mock.ExpectExec("UPDATE streamcoord_assignments").
			WithArgs("traffic", sqlmock.AnyArg(), int64(5), int64(9)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("DELETE FROM streamcoord_task_assignments").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO streamcoord_task_assignments").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		a, err := s.SwapAssignment(context.Background(), "traffic", 4, assignmentFixture())

		require.NoError(t, err)
		assert.Equal(t, int64(5), a.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back on version conflict", func(t *testing.T) {
		s, mock := newMockStore(t)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT version FROM streamcoord_assignments").
			WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(int64(6)))
		mock.ExpectRollback()

		_, err := s.SwapAssignment(context.Background(), "traffic", 4, assignmentFixture())

		assert.ErrorIs(t, err, store.ErrVersionConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back when a range insert fails", func(t *testing.T) {
		s, mock := newMockStore(t)
		boom := errors.New("disk full")

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT version FROM streamcoord_assignments").WillReturnError(sql.ErrNoRows)
		mock.ExpectExec("INSERT INTO streamcoord_assignments").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("DELETE FROM streamcoord_task_assignments").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("INSERT INTO streamcoord_task_assignments").WillReturnError(boom)
		mock.ExpectRollback()

		_, err := s.SwapAssignment(context.Background(), "traffic", 0, assignmentFixture())

		assert.ErrorIs(t, err, boom)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSwapAssignment_ConcurrentCreateIsConflict(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT version FROM streamcoord_assignments").WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("INSERT INTO streamcoord_assignments").
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})
	mock.ExpectRollback()

	_, err := s.SwapAssignment(context.Background(), "traffic", 0, assignmentFixture())

	assert.ErrorIs(t, err, store.ErrVersionConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListAssignments(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT pipeline FROM streamcoord_assignments ORDER BY pipeline").
		WillReturnRows(sqlmock.NewRows([]string{"pipeline"}).AddRow("traffic"))
	mock.ExpectQuery("SELECT pipeline, generation, version, timestamp").
		WithArgs("traffic").
		WillReturnRows(sqlmock.NewRows([]string{"pipeline", "generation", "version", "timestamp"}).
			AddRow("traffic", "g1", int64(1), int64(0)))
	mock.ExpectQuery("SELECT component, start_task_id").
		WithArgs("traffic").
		WillReturnRows(sqlmock.NewRows([]string{"component", "start_task_id", "end_task_id", "host_id", "port", "start_time"}).
			AddRow("process", 1, 1, "h1", 6700, int64(0)))

	assignments, err := s.ListAssignments(context.Background())

	require.NoError(t, err)
	require.Len(t, assignments, 1)
	assert.Equal(t, streamcoord.PipelineName("traffic"), assignments[0].Pipeline)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrations(t *testing.T) {
	t.Run("MigrationUp generates valid SQL", func(t *testing.T) {
		sql := MigrationUp(DefaultTableConfig())

		assert.Contains(t, sql, "CREATE TABLE streamcoord_pipelines")
		assert.Contains(t, sql, "CREATE TABLE streamcoord_assignments")
		assert.Contains(t, sql, "CREATE TABLE streamcoord_task_assignments")
		assert.Contains(t, sql, "REFERENCES streamcoord_assignments(pipeline) ON DELETE CASCADE")
		assert.Contains(t, sql, "CREATE INDEX idx_streamcoord_task_assignments_slot")
	})

	t.Run("MigrationUp with custom table names", func(t *testing.T) {
		sql := MigrationUp(TableConfig{
			PipelinesTable:       "custom_pipelines",
			AssignmentsTable:     "custom_assignments",
			TaskAssignmentsTable: "custom_tasks",
		})

		assert.Contains(t, sql, "CREATE TABLE custom_pipelines")
		assert.Contains(t, sql, "REFERENCES custom_assignments(pipeline)")
	})

	t.Run("MigrationDown drops task ranges before their headers", func(t *testing.T) {
		sql := MigrationDown(DefaultTableConfig())

		tasksIdx := indexOf(sql, "DROP TABLE IF EXISTS streamcoord_task_assignments")
		headersIdx := indexOf(sql, "DROP TABLE IF EXISTS streamcoord_assignments")

		require.NotEqual(t, -1, tasksIdx)
		require.NotEqual(t, -1, headersIdx)
		assert.True(t, tasksIdx < headersIdx, "task assignments table should be dropped first")
		assert.Contains(t, sql, "DROP TABLE IF EXISTS streamcoord_pipelines")
	})
}

// indexOf returns the index of substr in s, or -1 if not found.
func indexOf(s, substr string) int {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
