package postgres

import "fmt"

// TableConfig configures the table names used by the coordinator.
type TableConfig struct {
	// PipelinesTable is the name of the table storing pipeline metadata.
	PipelinesTable string

	// AssignmentsTable is the name of the table storing one versioned assignment header per pipeline.
	AssignmentsTable string

	// TaskAssignmentsTable is the name of the table storing the task ranges of each assignment.
	TaskAssignmentsTable string
}

// DefaultTableConfig returns the default table configuration.
func DefaultTableConfig() TableConfig {
	return TableConfig{
		PipelinesTable:       "streamcoord_pipelines",
		AssignmentsTable:     "streamcoord_assignments",
		TaskAssignmentsTable: "streamcoord_task_assignments",
	}
}

// MigrationUp returns the SQL to create the coordinator tables.
// Task ranges reference their assignment header and are removed with it.
func MigrationUp(config TableConfig) string {
	return fmt.Sprintf(`-- Create pipelines table
CREATE TABLE %[1]s (
    name TEXT PRIMARY KEY,
    state TEXT NOT NULL DEFAULT 'created',
    elements JSONB NOT NULL DEFAULT '{}',
    topology JSONB NOT NULL DEFAULT '{}',
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

-- Create assignments table
CREATE TABLE %[2]s (
    pipeline TEXT PRIMARY KEY,
    generation UUID NOT NULL,
    version BIGINT NOT NULL,
    timestamp BIGINT NOT NULL DEFAULT 0,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

-- Create task assignments table
CREATE TABLE %[3]s (
    pipeline TEXT NOT NULL REFERENCES %[2]s(pipeline) ON DELETE CASCADE,
    component TEXT NOT NULL,
    start_task_id INTEGER NOT NULL,
    end_task_id INTEGER NOT NULL,
    host_id TEXT NOT NULL,
    port INTEGER NOT NULL,
    start_time BIGINT NOT NULL DEFAULT 0,
    PRIMARY KEY (pipeline, component, start_task_id)
);

-- Index for counting executors per worker slot
CREATE INDEX idx_%[3]s_slot ON %[3]s(host_id, port);
`, config.PipelinesTable, config.AssignmentsTable, config.TaskAssignmentsTable)
}

// MigrationDown returns the SQL to drop the coordinator tables.
// Task ranges are dropped first due to the foreign key constraint.
func MigrationDown(config TableConfig) string {
	return fmt.Sprintf(`-- Drop task assignments table (must be dropped first due to foreign key)
DROP TABLE IF EXISTS %s;

-- Drop assignments table
DROP TABLE IF EXISTS %s;

-- Drop pipelines table
DROP TABLE IF EXISTS %s;
`, config.TaskAssignmentsTable, config.AssignmentsTable, config.PipelinesTable)
}
