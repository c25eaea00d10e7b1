package streamcoord

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	rootpkg "github.com/getpup/streamcoord"
	"github.com/getpup/streamcoord/command"
	"github.com/getpup/streamcoord/executor"
	"github.com/getpup/streamcoord/store/memory"
	"github.com/getpup/streamcoord/store/postgres"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_WithDatabase(t *testing.T) {
	coord, err := New(
		WithDatabase(&sql.DB{}),
		WithSignalChannel(executor.NewMockSignalChannel()),
		WithMetricsEnabled(false),
	)

	require.NoError(t, err)
	assert.NotNil(t, coord)
}

func TestNew_MissingStore(t *testing.T) {
	coord, err := New(WithSignalChannel(executor.NewMockSignalChannel()))

	assert.Error(t, err)
	assert.Nil(t, coord)
	assert.Contains(t, err.Error(), "store is required")
}

func TestNew_MissingSignalChannel(t *testing.T) {
	coord, err := New(WithStore(memory.New()))

	assert.Error(t, err)
	assert.Nil(t, coord)
	assert.Contains(t, err.Error(), "signal channel is required")
}

func TestNew_WorkersBecomeStaticTopology(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	require.NoError(t, s.PutPipeline(ctx, Pipeline{
		Name:     "traffic",
		State:    rootpkg.PipelineStateCreated,
		Topology: map[string]rootpkg.ComponentSpec{"count": {Tasks: 2, Executors: 1}},
	}))

	coord, err := New(
		WithStore(s),
		WithSignalChannel(executor.NewMockSignalChannel()),
		WithWorkers(HostPort{HostID: "h1", Port: 6700}, HostPort{HostID: "h2", Port: 6700}),
		WithMetricsEnabled(false),
	)
	require.NoError(t, err)

	report := coord.Submit(ctx, command.NewSequence(
		command.PipelineCommand{Pipeline: "traffic", Status: command.PipelineStart},
		command.ParallelismChange{Pipeline: "traffic", Requests: map[string]ParallelismChangeRequest{
			"count": {ExecutorDiff: 1, Host: rootpkg.HostName("h2")},
		}},
	))

	require.False(t, report.Result.Failed(), report.Result.String())
	a, err := s.GetAssignment(ctx, "traffic")
	require.NoError(t, err)
	require.Len(t, a.Components["count"], 2)
	assert.Equal(t, "h2", a.Components["count"][1].HostID)
}

func TestRunMigrations(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE streamcoord_pipelines")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, RunMigrations(db))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunMigrationsWithTableNames_WrapsError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE coord_pipelines")).
		WillReturnError(errors.New("permission denied"))

	err = RunMigrationsWithTableNames(db, postgres.TableConfig{
		PipelinesTable:       "coord_pipelines",
		AssignmentsTable:     "coord_assignments",
		TaskAssignmentsTable: "coord_tasks",
	})

	assert.ErrorContains(t, err, "failed to execute migrations")
	assert.NoError(t, mock.ExpectationsWereMet())
}
