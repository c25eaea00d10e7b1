//go:build integration

package migrations_test

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/getpup/streamcoord/pkg/migrations"
)

// NOTE: Integration tests use string interpolation for table names. All of
// them come from the test configuration and were validated by the generator.

func generateAndRead(t *testing.T, config *migrations.Config, generate func(*migrations.Config) error) string {
	t.Helper()

	if err := generate(config); err != nil {
		t.Fatalf("Failed to generate migration: %v", err)
	}
	migrationSQL, err := os.ReadFile(filepath.Join(config.OutputFolder, config.OutputFilename))
	if err != nil {
		t.Fatalf("Failed to read migration file: %v", err)
	}
	return string(migrationSQL)
}

// exerciseTables inserts an assignment with one task range, then checks that
// deleting the header cascades to the ranges.
func exerciseTables(t *testing.T, db *sql.DB, pipelines, assignments, tasks string, placeholder func(int) string) {
	t.Helper()

	p := placeholder
	stmts := []struct {
		query string
		args  []interface{}
	}{
		{fmt.Sprintf("INSERT INTO %s (name, state, elements, topology) VALUES (%s, %s, %s, %s)", pipelines, p(1), p(2), p(3), p(4)),
			[]interface{}{"traffic", "running", "{}", "{}"}},
		{fmt.Sprintf("INSERT INTO %s (pipeline, generation, version, timestamp) VALUES (%s, %s, %s, %s)", assignments, p(1), p(2), p(3), p(4)),
			[]interface{}{"traffic", "6f1c2a8e-3b0d-4a3e-9d7b-2f5e0c1a9b44", 1, 7}},
		{fmt.Sprintf("INSERT INTO %s (pipeline, component, start_task_id, end_task_id, host_id, port, start_time) VALUES (%s, %s, %s, %s, %s, %s, %s)",
			tasks, p(1), p(2), p(3), p(4), p(5), p(6), p(7)),
			[]interface{}{"traffic", "count", 1, 4, "h1", 6700, 7}},
	}
	for _, s := range stmts {
		if _, err := db.Exec(s.query, s.args...); err != nil {
			t.Fatalf("Failed to execute %q: %v", s.query, err)
		}
	}

	if _, err := db.Exec(fmt.Sprintf("DELETE FROM %s WHERE pipeline = %s", assignments, p(1)), "traffic"); err != nil {
		t.Fatalf("Failed to delete assignment: %v", err)
	}
	var remaining int
	if err := db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", tasks)).Scan(&remaining); err != nil {
		t.Fatalf("Failed to count task ranges: %v", err)
	}
	if remaining != 0 {
		t.Errorf("Expected task ranges to cascade, %d left", remaining)
	}
}

func TestIntegrationPostgres(t *testing.T) {
	dbURL := os.Getenv("POSTGRES_URL")
	if dbURL == "" {
		t.Skip("POSTGRES_URL not set, skipping PostgreSQL integration test")
	}

	config := migrations.Config{
		OutputFolder:         t.TempDir(),
		OutputFilename:       "postgres_integration.sql",
		SchemaName:           "streamcoord_test",
		PipelinesTable:       "pipelines",
		AssignmentsTable:     "assignments",
		TaskAssignmentsTable: "task_assignments",
	}
	migrationSQL := generateAndRead(t, &config, migrations.GeneratePostgres)

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		t.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec(string(migrationSQL)); err != nil {
		t.Fatalf("Failed to execute migration: %v", err)
	}
	defer func() {
		_, _ = db.Exec(fmt.Sprintf("DROP SCHEMA %s CASCADE", config.SchemaName))
	}()

	// Running the migration twice must be harmless
	if _, err := db.Exec(string(migrationSQL)); err != nil {
		t.Fatalf("Migration is not idempotent: %v", err)
	}

	exerciseTables(t, db,
		config.SchemaName+"."+config.PipelinesTable,
		config.SchemaName+"."+config.AssignmentsTable,
		config.SchemaName+"."+config.TaskAssignmentsTable,
		func(i int) string { return fmt.Sprintf("$%d", i) })
}

func TestIntegrationMySQL(t *testing.T) {
	dbURL := os.Getenv("MYSQL_URL")
	if dbURL == "" {
		t.Skip("MYSQL_URL not set, skipping MySQL integration test")
	}

	config := migrations.Config{
		OutputFolder:         t.TempDir(),
		OutputFilename:       "mysql_integration.sql",
		SchemaName:           "streamcoord_test",
		PipelinesTable:       "pipelines",
		AssignmentsTable:     "assignments",
		TaskAssignmentsTable: "task_assignments",
	}
	migrationSQL := generateAndRead(t, &config, migrations.GenerateMySQL)

	db, err := sql.Open("mysql", dbURL+"?multiStatements=true")
	if err != nil {
		t.Fatalf("Failed to connect to MySQL: %v", err)
	}
	defer db.Close()
	// USE only applies to the connection it ran on
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(string(migrationSQL)); err != nil {
		t.Fatalf("Failed to execute migration: %v", err)
	}
	defer func() {
		_, _ = db.Exec(fmt.Sprintf("DROP DATABASE IF EXISTS %s", config.SchemaName))
	}()

	if _, err := db.Exec(fmt.Sprintf("USE %s", config.SchemaName)); err != nil {
		t.Fatalf("Failed to switch database: %v", err)
	}

	exerciseTables(t, db, config.PipelinesTable, config.AssignmentsTable, config.TaskAssignmentsTable,
		func(int) string { return "?" })
}

func TestIntegrationSQLite(t *testing.T) {
	tmpDir := t.TempDir()
	config := migrations.Config{
		OutputFolder:         tmpDir,
		OutputFilename:       "sqlite_integration.sql",
		SchemaName:           "streamcoord",
		PipelinesTable:       "pipelines",
		AssignmentsTable:     "assignments",
		TaskAssignmentsTable: "task_assignments",
	}
	migrationSQL := generateAndRead(t, &config, migrations.GenerateSQLite)

	db, err := sql.Open("sqlite3", filepath.Join(tmpDir, "test.db")+"?_foreign_keys=on")
	if err != nil {
		t.Fatalf("Failed to open SQLite database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(string(migrationSQL)); err != nil {
		t.Fatalf("Failed to execute migration: %v", err)
	}

	exerciseTables(t, db,
		config.SchemaName+"_"+config.PipelinesTable,
		config.SchemaName+"_"+config.AssignmentsTable,
		config.SchemaName+"_"+config.TaskAssignmentsTable,
		func(int) string { return "?" })
}
