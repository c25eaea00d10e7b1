package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"

	_ "github.com/lib/pq"

	rootpkg "github.com/getpup/streamcoord"
	"github.com/getpup/streamcoord/coordinator"
	"github.com/getpup/streamcoord/executor"
	"github.com/getpup/streamcoord/internal/config"
	"github.com/getpup/streamcoord/internal/logging"
	"github.com/getpup/streamcoord/pkg/streamcoord"
	"github.com/getpup/streamcoord/store"
	"github.com/getpup/streamcoord/store/memory"
	"github.com/getpup/streamcoord/store/postgres"
	"go.uber.org/multierr"
)

// app wires a Coordinator from a Config.
type app struct {
	cfg     *config.Config
	logger  *logging.Logger
	db      *sql.DB
	store   store.Store
	coord   *coordinator.Coordinator
	closers []io.Closer
}

func newApp(ctx context.Context, cfg *config.Config, signalsOut string, stdout io.Writer) (a *app, err error) {
	a = &app{cfg: cfg}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.logger, err = logging.New(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	if cfg.Database.URL != "" {
		a.db, err = sql.Open("postgres", cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		a.closers = append(a.closers, a.db)
		a.store = postgres.NewWithConfig(a.db, tableConfig(cfg))
	} else {
		a.logger.Info(ctx, "no database configured, using in-memory store")
		a.store = memory.New()
	}

	if err := a.seed(ctx); err != nil {
		return nil, err
	}

	signals := stdout
	if signalsOut != "-" {
		f, err := os.OpenFile(signalsOut, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open signal output: %w", err)
		}
		a.closers = append(a.closers, f)
		signals = f
	}

	slots, err := cfg.Slots()
	if err != nil {
		return nil, err
	}

	a.coord, err = streamcoord.New(
		streamcoord.WithStore(a.store),
		streamcoord.WithSignalChannel(executor.NewWriterChannel(signals)),
		streamcoord.WithWorkers(slots...),
		streamcoord.WithMaxExecutorsPerWorker(cfg.MaxExecutorsPerWorker),
		streamcoord.WithHandlerTimeout(cfg.HandlerTimeout),
		streamcoord.WithSendAttempts(cfg.SendAttempts),
		streamcoord.WithReconcileInterval(cfg.ReconcileInterval),
		streamcoord.WithLogger(a.logger),
	)
	if err != nil {
		return nil, err
	}

	return a, nil
}

// seed registers configured pipelines that the store does not know yet.
func (a *app) seed(ctx context.Context) error {
	for _, p := range a.cfg.Pipelines {
		_, err := a.store.GetPipeline(ctx, p.Name)
		if err == nil {
			continue
		}
		if !errors.Is(err, rootpkg.ErrPipelineNotFound) {
			return fmt.Errorf("failed to look up pipeline %s: %w", p.Name, err)
		}
		if err := a.store.PutPipeline(ctx, p); err != nil {
			return fmt.Errorf("failed to register pipeline %s: %w", p.Name, err)
		}
		a.logger.Info(ctx, "pipeline registered", "pipeline", p.Name)
	}
	return nil
}

func (a *app) Close() error {
	var err error
	for i := len(a.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, a.closers[i].Close())
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	return err
}

func tableConfig(cfg *config.Config) postgres.TableConfig {
	tables := postgres.DefaultTableConfig()
	if cfg.Database.PipelinesTable != "" {
		tables.PipelinesTable = cfg.Database.PipelinesTable
	}
	if cfg.Database.AssignmentsTable != "" {
		tables.AssignmentsTable = cfg.Database.AssignmentsTable
	}
	if cfg.Database.TaskAssignmentsTable != "" {
		tables.TaskAssignmentsTable = cfg.Database.TaskAssignmentsTable
	}
	return tables
}
