package main

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/getpup/streamcoord/pkg/migrations"
	"github.com/getpup/streamcoord/pkg/streamcoord"
	"github.com/spf13/cobra"
)

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the coordinator tables or generate migration files",
	}
	cmd.AddCommand(newMigrateUpCommand(opts), newMigrateGenerateCommand())
	return cmd
}

func newMigrateUpCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Create the PostgreSQL store tables in the configured database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if cfg.Database.URL == "" {
				return errors.New("database.url is required for migrate up")
			}

			db, err := sql.Open("postgres", cfg.Database.URL)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer db.Close()

			if err := streamcoord.RunMigrationsWithTableNames(db, tableConfig(cfg)); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied")
			return nil
		},
	}
}

func newMigrateGenerateCommand() *cobra.Command {
	var (
		adapter              string
		outputFilename       string
		pipelinesTable       string
		assignmentsTable     string
		taskAssignmentsTable string
	)
	config := migrations.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a SQL migration file for postgres, mysql or sqlite",
		Example: `  streamcoord migrate generate --output migrations
  streamcoord migrate generate --adapter mysql --schema coord
  streamcoord migrate generate --adapter sqlite --filename init.sql`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if outputFilename != "" {
				config.OutputFilename = outputFilename
			}
			config.PipelinesTable = pipelinesTable
			config.AssignmentsTable = assignmentsTable
			config.TaskAssignmentsTable = taskAssignmentsTable

			var err error
			switch adapter {
			case "postgres":
				err = migrations.GeneratePostgres(&config)
			case "mysql":
				err = migrations.GenerateMySQL(&config)
			case "sqlite":
				err = migrations.GenerateSQLite(&config)
			default:
				return fmt.Errorf("unsupported adapter '%s'. Supported adapters are: postgres, mysql, sqlite", adapter)
			}
			if err != nil {
				return fmt.Errorf("error generating migration: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Generated %s migration: %s/%s\n", adapter, config.OutputFolder, config.OutputFilename)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&adapter, "adapter", "postgres", "Database adapter: postgres, mysql, or sqlite")
	flags.StringVar(&config.OutputFolder, "output", config.OutputFolder, "Output folder for migration file")
	flags.StringVar(&outputFilename, "filename", "", "Output filename (default: timestamp-based)")
	flags.StringVar(&config.SchemaName, "schema", config.SchemaName, "Schema name (PostgreSQL), database name (MySQL) or table prefix (SQLite)")
	flags.StringVar(&pipelinesTable, "pipelines-table", config.PipelinesTable, "Name of pipelines table")
	flags.StringVar(&assignmentsTable, "assignments-table", config.AssignmentsTable, "Name of assignments table")
	flags.StringVar(&taskAssignmentsTable, "task-assignments-table", config.TaskAssignmentsTable, "Name of task assignments table")

	return cmd
}
