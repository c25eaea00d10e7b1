package migrations

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

var identifierRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// validateIdentifier ensures an identifier contains only safe characters for SQL.
// Returns an error if the identifier contains characters that could be used for SQL injection.
func validateIdentifier(name, fieldName string) error {
	if name == "" {
		return fmt.Errorf("%s cannot be empty", fieldName)
	}
	if !identifierRegex.MatchString(name) {
		return fmt.Errorf("%s must start with a letter and contain only letters, numbers, and underscores (got: %s)", fieldName, name)
	}
	return nil
}

// validateConfig validates all configuration values to prevent SQL injection.
func validateConfig(config *Config) error {
	fields := []struct {
		value, name string
	}{
		{config.SchemaName, "SchemaName"},
		{config.PipelinesTable, "PipelinesTable"},
		{config.AssignmentsTable, "AssignmentsTable"},
		{config.TaskAssignmentsTable, "TaskAssignmentsTable"},
	}
	for _, f := range fields {
		if err := validateIdentifier(f.value, f.name); err != nil {
			return err
		}
	}
	return nil
}

// Config configures migration generation for the coordinator tables.
type Config struct {
	// OutputFolder is the directory where the migration file will be written
	OutputFolder string

	// OutputFilename is the name of the migration file
	OutputFilename string

	// SchemaName is the database schema name (PostgreSQL) or database name (MySQL).
	// SQLite has no schemas; it is used as a table name prefix instead.
	SchemaName string

	// PipelinesTable holds pipeline metadata
	PipelinesTable string

	// AssignmentsTable holds one versioned assignment header per pipeline
	AssignmentsTable string

	// TaskAssignmentsTable holds the task ranges of each assignment
	TaskAssignmentsTable string
}

// DefaultConfig returns the default configuration for coordinator migrations.
func DefaultConfig() Config {
	timestamp := time.Now().Format("20060102150405")
	return Config{
		OutputFolder:         "migrations",
		OutputFilename:       fmt.Sprintf("%s_init_streamcoord.sql", timestamp),
		SchemaName:           "streamcoord",
		PipelinesTable:       "pipelines",
		AssignmentsTable:     "assignments",
		TaskAssignmentsTable: "task_assignments",
	}
}

// GeneratePostgres generates a PostgreSQL migration file.
func GeneratePostgres(config *Config) error {
	return generate(config, generatePostgresSQL)
}

// GenerateMySQL generates a MySQL/MariaDB migration file.
func GenerateMySQL(config *Config) error {
	return generate(config, generateMySQLSQL)
}

// GenerateSQLite generates a SQLite migration file.
func GenerateSQLite(config *Config) error {
	return generate(config, generateSQLiteSQL)
}

func generate(config *Config, render func(*Config) string) error {
	// Validate configuration to prevent SQL injection
	if err := validateConfig(config); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := os.MkdirAll(config.OutputFolder, 0o755); err != nil {
		return fmt.Errorf("failed to create output folder: %w", err)
	}

	outputPath := filepath.Join(config.OutputFolder, config.OutputFilename)
	if err := os.WriteFile(outputPath, []byte(render(config)), 0o600); err != nil {
		return fmt.Errorf("failed to write migration file: %w", err)
	}

	return nil
}

func generatePostgresSQL(config *Config) string {
	return fmt.Sprintf(`-- Stream Coordinator Migration
-- Generated: %[1]s
-- Database: PostgreSQL

CREATE SCHEMA IF NOT EXISTS %[2]s;

-- Pipelines known to the coordinator
-- Elements and topology are stored as JSON documents
CREATE TABLE IF NOT EXISTS %[2]s.%[3]s (
    name TEXT PRIMARY KEY,
    state TEXT NOT NULL DEFAULT 'created' CHECK (state IN ('created', 'running', 'stopped')),
    elements JSONB NOT NULL DEFAULT '{}',
    topology JSONB NOT NULL DEFAULT '{}',
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

-- Assignment header, one row per pipeline
-- version is bumped on every compare-and-swap
CREATE TABLE IF NOT EXISTS %[2]s.%[4]s (
    pipeline TEXT PRIMARY KEY,
    generation UUID NOT NULL,
    version BIGINT NOT NULL CHECK (version > 0),
    timestamp BIGINT NOT NULL DEFAULT 0,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

-- Task ranges bound to executor slots
CREATE TABLE IF NOT EXISTS %[2]s.%[5]s (
    pipeline TEXT NOT NULL REFERENCES %[2]s.%[4]s(pipeline) ON DELETE CASCADE,
    component TEXT NOT NULL,
    start_task_id INT NOT NULL,
    end_task_id INT NOT NULL,
    host_id TEXT NOT NULL,
    port INT NOT NULL,
    start_time BIGINT NOT NULL DEFAULT 0,
    PRIMARY KEY (pipeline, component, start_task_id),
    CHECK (start_task_id >= 1 AND end_task_id >= start_task_id)
);

-- Index for counting executors per worker slot
CREATE INDEX IF NOT EXISTS idx_%[5]s_slot
    ON %[2]s.%[5]s (host_id, port);
`,
		time.Now().Format(time.RFC3339),
		config.SchemaName,
		config.PipelinesTable,
		config.AssignmentsTable,
		config.TaskAssignmentsTable,
	)
}

func generateMySQLSQL(config *Config) string {
	return fmt.Sprintf(`-- Stream Coordinator Migration
-- Generated: %[1]s
-- Database: MySQL/MariaDB

-- In MySQL, we use a separate database instead of schema
CREATE DATABASE IF NOT EXISTS %[2]s
    DEFAULT CHARACTER SET utf8mb4
    DEFAULT COLLATE utf8mb4_unicode_ci;

USE %[2]s;

-- Pipelines known to the coordinator
CREATE TABLE IF NOT EXISTS %[3]s (
    name VARCHAR(255) PRIMARY KEY,
    state ENUM('created', 'running', 'stopped') NOT NULL DEFAULT 'created',
    elements JSON NOT NULL,
    topology JSON NOT NULL,
    updated_at TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6) ON UPDATE CURRENT_TIMESTAMP(6)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;

-- Assignment header, one row per pipeline
CREATE TABLE IF NOT EXISTS %[4]s (
    pipeline VARCHAR(255) PRIMARY KEY,
    generation CHAR(36) NOT NULL,
    version BIGINT NOT NULL,
    timestamp BIGINT NOT NULL DEFAULT 0,
    updated_at TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6) ON UPDATE CURRENT_TIMESTAMP(6),

    CHECK (version > 0)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;

-- Task ranges bound to executor slots
CREATE TABLE IF NOT EXISTS %[5]s (
    pipeline VARCHAR(255) NOT NULL,
    component VARCHAR(255) NOT NULL,
    start_task_id INT NOT NULL,
    end_task_id INT NOT NULL,
    host_id VARCHAR(255) NOT NULL,
    port INT NOT NULL,
    start_time BIGINT NOT NULL DEFAULT 0,

    PRIMARY KEY (pipeline, component, start_task_id),
    CHECK (start_task_id >= 1 AND end_task_id >= start_task_id),
    FOREIGN KEY (pipeline) REFERENCES %[4]s(pipeline) ON DELETE CASCADE
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;

-- Index for counting executors per worker slot
CREATE INDEX idx_%[5]s_slot
    ON %[5]s (host_id, port);
`,
		time.Now().Format(time.RFC3339),
		config.SchemaName,
		config.PipelinesTable,
		config.AssignmentsTable,
		config.TaskAssignmentsTable,
	)
}

func generateSQLiteSQL(config *Config) string {
	// SQLite doesn't support schemas, so we use table name prefixes instead
	pipelines := config.SchemaName + "_" + config.PipelinesTable
	assignments := config.SchemaName + "_" + config.AssignmentsTable
	tasks := config.SchemaName + "_" + config.TaskAssignmentsTable

	return fmt.Sprintf(`-- Stream Coordinator Migration
-- Generated: %[1]s
-- Database: SQLite

PRAGMA foreign_keys = ON;

-- Pipelines known to the coordinator
CREATE TABLE IF NOT EXISTS %[2]s (
    name TEXT PRIMARY KEY,
    state TEXT NOT NULL DEFAULT 'created' CHECK (state IN ('created', 'running', 'stopped')),
    elements TEXT NOT NULL DEFAULT '{}',
    topology TEXT NOT NULL DEFAULT '{}',
    updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);

-- Assignment header, one row per pipeline
CREATE TABLE IF NOT EXISTS %[3]s (
    pipeline TEXT PRIMARY KEY,
    generation TEXT NOT NULL,
    version INTEGER NOT NULL CHECK (version > 0),
    timestamp INTEGER NOT NULL DEFAULT 0,
    updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);

-- Task ranges bound to executor slots
CREATE TABLE IF NOT EXISTS %[4]s (
    pipeline TEXT NOT NULL REFERENCES %[3]s(pipeline) ON DELETE CASCADE,
    component TEXT NOT NULL,
    start_task_id INTEGER NOT NULL,
    end_task_id INTEGER NOT NULL,
    host_id TEXT NOT NULL,
    port INTEGER NOT NULL,
    start_time INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (pipeline, component, start_task_id),
    CHECK (start_task_id >= 1 AND end_task_id >= start_task_id)
);

-- Index for counting executors per worker slot
CREATE INDEX IF NOT EXISTS idx_%[4]s_slot
    ON %[4]s (host_id, port);
`,
		time.Now().Format(time.RFC3339),
		pipelines,
		assignments,
		tasks,
	)
}
