package streamcoord

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/getpup/pupsourcing/es"
	rootpkg "github.com/getpup/streamcoord"
	"github.com/getpup/streamcoord/coordinator"
	"github.com/getpup/streamcoord/execution"
	"github.com/getpup/streamcoord/executor"
	"github.com/getpup/streamcoord/reallocation"
	"github.com/getpup/streamcoord/store"
	"github.com/getpup/streamcoord/store/postgres"
)

// Re-export core types from root package
type (
	// PipelineName identifies a running stream-processing pipeline.
	PipelineName = rootpkg.PipelineName

	// Pipeline is the coordinator's view of a pipeline.
	Pipeline = rootpkg.Pipeline

	// Assignment is the full task layout of one pipeline.
	Assignment = rootpkg.Assignment

	// HostPort identifies an executor slot.
	HostPort = rootpkg.HostPort

	// ParallelismChangeRequest is the desired executor delta for one component.
	ParallelismChangeRequest = rootpkg.ParallelismChangeRequest
)

// Option configures a Coordinator.
type Option func(*config)

// config holds the internal configuration for creating a Coordinator.
type config struct {
	db                    *sql.DB
	store                 store.Store
	channel               executor.SignalChannel
	support               reallocation.TopologySupport
	workers               []HostPort
	maxExecutorsPerWorker int
	handlerTimeout        time.Duration
	sendAttempts          int
	reconcileInterval     time.Duration
	tracers               []execution.Tracer
	notifiers             []execution.Notifier
	logger                es.Logger
	metricsEnabled        *bool
	tableConfig           postgres.TableConfig
}

// New creates a new Coordinator with the given options.
//
// Required options:
//   - WithDatabase or WithStore: where pipelines and assignments live
//   - WithSignalChannel: transport to the running pipelines
//
// Optional configuration (with defaults):
//   - WithTopology: placement support for parallelism changes (default: static topology over WithWorkers)
//   - WithWorkers: worker slots for initial layouts (default: none)
//   - WithMaxExecutorsPerWorker: executor cap per slot across pipelines (default: unlimited)
//   - WithHandlerTimeout: deadline of a single handler invocation (default: 30s)
//   - WithSendAttempts: delivery attempts per signal (default: 3)
//   - WithReconcileInterval: how often Run validates assignments (default: 1m)
//   - WithTracers / WithNotifiers: engine observers (default: none)
//   - WithLogger: logger for observability (default: nil)
//   - WithMetricsEnabled: enable Prometheus metrics (default: true)
//   - WithTableNames: custom table names for the PostgreSQL store
//
// Example:
//
//	coord, err := streamcoord.New(
//	    streamcoord.WithDatabase(db),
//	    streamcoord.WithSignalChannel(channel),
//	    streamcoord.WithWorkers(streamcoord.HostPort{HostID: "h1", Port: 6700}),
//	)
//
// Returns an error if any required option is missing.
func New(opts ...Option) (*coordinator.Coordinator, error) {
	cfg := &config{
		tableConfig: postgres.DefaultTableConfig(),
	}

	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.store == nil && cfg.db == nil {
		return nil, fmt.Errorf("store is required: use WithDatabase or WithStore option")
	}
	if cfg.channel == nil {
		return nil, fmt.Errorf("signal channel is required: use WithSignalChannel option")
	}

	if cfg.store == nil {
		cfg.store = postgres.NewWithConfig(cfg.db, cfg.tableConfig)
	}
	if cfg.support == nil && len(cfg.workers) > 0 {
		cfg.support = reallocation.NewStaticTopology(cfg.workers, nil, nil)
	}

	metricsEnabled := true
	if cfg.metricsEnabled != nil {
		metricsEnabled = *cfg.metricsEnabled
	}

	return coordinator.New(coordinator.Config{
		Store:                 cfg.store,
		Channel:               cfg.channel,
		Support:               cfg.support,
		Workers:               cfg.workers,
		MaxExecutorsPerWorker: cfg.maxExecutorsPerWorker,
		HandlerTimeout:        cfg.handlerTimeout,
		SendAttempts:          cfg.sendAttempts,
		ReconcileInterval:     cfg.reconcileInterval,
		Tracers:               cfg.tracers,
		Notifiers:             cfg.notifiers,
		MetricsEnabled:        metricsEnabled,
		Logger:                cfg.logger,
	}), nil
}

// WithDatabase sets the database connection for the PostgreSQL store.
func WithDatabase(db *sql.DB) Option {
	return func(c *config) {
		c.db = db
	}
}

// WithStore sets a custom store.
// Use this if you want to provide your own implementation of store.Store.
func WithStore(s store.Store) Option {
	return func(c *config) {
		c.store = s
	}
}

// WithSignalChannel sets the transport used to signal running pipelines.
func WithSignalChannel(channel executor.SignalChannel) Option {
	return func(c *config) {
		c.channel = channel
	}
}

// WithTopology sets the placement support used by parallelism changes.
func WithTopology(support reallocation.TopologySupport) Option {
	return func(c *config) {
		c.support = support
	}
}

// WithWorkers sets the worker slots used for initial layouts.
func WithWorkers(workers ...HostPort) Option {
	return func(c *config) {
		c.workers = append(c.workers, workers...)
	}
}

// WithMaxExecutorsPerWorker caps the executors bound to one slot across all pipelines.
func WithMaxExecutorsPerWorker(n int) Option {
	return func(c *config) {
		c.maxExecutorsPerWorker = n
	}
}

// WithHandlerTimeout sets the deadline of a single handler invocation.
func WithHandlerTimeout(timeout time.Duration) Option {
	return func(c *config) {
		c.handlerTimeout = timeout
	}
}

// WithSendAttempts sets the number of delivery attempts per signal.
func WithSendAttempts(n int) Option {
	return func(c *config) {
		c.sendAttempts = n
	}
}

// WithReconcileInterval sets how often Run validates stored assignments.
func WithReconcileInterval(interval time.Duration) Option {
	return func(c *config) {
		c.reconcileInterval = interval
	}
}

// WithTracers adds tracers observing every executed command.
func WithTracers(tracers ...execution.Tracer) Option {
	return func(c *config) {
		c.tracers = append(c.tracers, tracers...)
	}
}

// WithNotifiers adds notifiers told about every submitted command.
func WithNotifiers(notifiers ...execution.Notifier) Option {
	return func(c *config) {
		c.notifiers = append(c.notifiers, notifiers...)
	}
}

// WithLogger sets the logger for observability.
func WithLogger(logger es.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithMetricsEnabled enables or disables Prometheus metrics collection.
func WithMetricsEnabled(enabled bool) Option {
	return func(c *config) {
		c.metricsEnabled = &enabled
	}
}

// WithTableNames sets custom table names for the PostgreSQL store.
// The defaults are streamcoord_pipelines, streamcoord_assignments and
// streamcoord_task_assignments.
func WithTableNames(pipelinesTable, assignmentsTable, taskAssignmentsTable string) Option {
	return func(c *config) {
		c.tableConfig = postgres.TableConfig{
			PipelinesTable:       pipelinesTable,
			AssignmentsTable:     assignmentsTable,
			TaskAssignmentsTable: taskAssignmentsTable,
		}
	}
}

// RunMigrations creates the tables of the PostgreSQL store.
//
// This should typically be run once during application deployment or startup.
//
// To run migrations with custom table names, use RunMigrationsWithTableNames.
func RunMigrations(db *sql.DB) error {
	return RunMigrationsWithTableNames(db, postgres.DefaultTableConfig())
}

// RunMigrationsWithTableNames executes database migrations with custom table names.
// Use this if you specified custom table names via WithTableNames option.
func RunMigrationsWithTableNames(db *sql.DB, config postgres.TableConfig) error {
	if _, err := db.Exec(postgres.MigrationUp(config)); err != nil {
		return fmt.Errorf("failed to execute migrations: %w", err)
	}

	return nil
}
