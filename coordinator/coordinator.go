package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/getpup/pupsourcing/es"
	"github.com/getpup/streamcoord"
	"github.com/getpup/streamcoord/command"
	"github.com/getpup/streamcoord/execution"
	"github.com/getpup/streamcoord/executor"
	"github.com/getpup/streamcoord/lifecycle"
	"github.com/getpup/streamcoord/metrics"
	"github.com/getpup/streamcoord/reallocation"
	"github.com/getpup/streamcoord/store"
	"go.uber.org/multierr"
)

// Config holds configuration for the Coordinator.
type Config struct {
	// Store holds pipelines and their assignments (required).
	Store store.Store

	// Channel delivers signals to running pipelines (required).
	Channel executor.SignalChannel

	// Support answers placement questions for reallocation (required for
	// parallelism changes).
	Support reallocation.TopologySupport

	// Workers lists the worker slots used for initial layouts.
	// If empty and Support is a *reallocation.StaticTopology, its slots are used.
	Workers []streamcoord.HostPort

	// MaxExecutorsPerWorker caps the executors bound to one slot across all
	// pipelines. Zero means unlimited.
	MaxExecutorsPerWorker int

	// HandlerTimeout bounds a single handler invocation (default: 30s).
	HandlerTimeout time.Duration

	// SendAttempts is the number of delivery attempts per signal (default: 3).
	SendAttempts int

	// ReconcileInterval is how often Run validates stored assignments (default: 1m).
	ReconcileInterval time.Duration

	// Tracers and Notifiers observe the engine (optional).
	Tracers   []execution.Tracer
	Notifiers []execution.Notifier

	// MetricsEnabled registers the Prometheus tracer and collectors.
	MetricsEnabled bool

	// Logger is for observability (optional).
	Logger es.Logger
}

// Coordinator accepts commands for running pipelines and enacts them against
// the cluster, keeping the stored assignments consistent.
type Coordinator struct {
	config     Config
	executor   *executor.Executor
	assigner   *Assigner
	cc         *execution.CoordinationContext
	engine     *execution.Engine
	reconciler *lifecycle.PeriodicTask
	start      execution.Handler

	// capacityMu spans the capacity check and the store write of every
	// layout change while MaxExecutorsPerWorker is set.
	capacityMu sync.Mutex

	mu       sync.Mutex
	storeErr error
}

// New creates a new Coordinator with the given configuration.
// Applies default values for ReconcileInterval if zero.
func New(cfg Config) *Coordinator {
	if cfg.ReconcileInterval == 0 {
		cfg.ReconcileInterval = time.Minute
	}

	slots := cfg.Workers
	if len(slots) == 0 {
		if static, ok := cfg.Support.(*reallocation.StaticTopology); ok {
			slots = static.Slots()
		}
	}

	c := &Coordinator{
		config: cfg,
		executor: executor.New(executor.Config{
			Store:        cfg.Store,
			Channel:      cfg.Channel,
			SendAttempts: cfg.SendAttempts,
			Logger:       cfg.Logger,
		}),
		assigner: NewAssigner(slots),
	}
	c.start = c.executor.Handlers()[command.KindPipeline]

	tracers := append([]execution.Tracer(nil), cfg.Tracers...)
	notifiers := append([]execution.Notifier(nil), cfg.Notifiers...)
	if cfg.Logger != nil {
		tracers = append(tracers, &execution.LogTracer{Logger: cfg.Logger})
	}
	if cfg.MetricsEnabled {
		tracers = append(tracers, metrics.Tracer{})
		notifiers = append(notifiers, metrics.Tracer{})
	}

	c.cc = execution.NewCoordinationContext(execution.Config{
		Handlers:       c.Handlers(),
		Tracers:        tracers,
		Notifiers:      notifiers,
		HandlerTimeout: cfg.HandlerTimeout,
		Logger:         cfg.Logger,
	})
	c.engine = execution.NewEngine(c.cc)
	c.reconciler = lifecycle.New(lifecycle.Config{
		Name:   "reconcile",
		Period: cfg.ReconcileInterval,
		Task:   c.Reconcile,
		Logger: cfg.Logger,
	})

	return c
}

// Handlers returns the full handler table: the executor's handlers with
// pipeline start wrapped to lay out the first assignment, plus parallelism
// changes.
func (c *Coordinator) Handlers() execution.Handlers {
	return c.executor.Handlers().Merge(execution.Handlers{
		command.KindPipeline:          execution.HandlerFunc(c.pipeline),
		command.KindParallelismChange: execution.HandlerFunc(c.parallelismChange),
	})
}

// Submit executes cmd and reports its outcome. Commands touching the same
// pipeline are serialized; others run concurrently.
func (c *Coordinator) Submit(ctx context.Context, cmd command.Command) execution.Report {
	start := time.Now()
	report := c.engine.Execute(ctx, cmd)

	if c.config.MetricsEnabled && cmd != nil {
		metrics.SubmitDuration.WithLabelValues(cmd.Kind().String()).Observe(time.Since(start).Seconds())
	}

	return report
}

// Run reconciles stored assignments every ReconcileInterval until ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context) error {
	if c.config.Logger != nil {
		c.config.Logger.Info(ctx, "coordinator started", "reconcileInterval", c.reconciler.Period())
	}

	err := c.reconciler.Run(ctx)

	if c.config.Logger != nil {
		c.config.Logger.Info(ctx, "coordinator stopped")
	}
	return err
}

// SetReconcileInterval re-times the reconciliation loop, also while running.
func (c *Coordinator) SetReconcileInterval(d time.Duration) error {
	return c.reconciler.SetPeriod(d)
}

// Healthy returns the store error of the last reconciliation, if any.
func (c *Coordinator) Healthy() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.storeErr
}

func (c *Coordinator) setStoreErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.storeErr = err
}

// Reconcile validates every stored assignment and the executor load of every
// worker slot. All violations are reported and returned together.
func (c *Coordinator) Reconcile(ctx context.Context) error {
	start := time.Now()

	assignments, err := c.config.Store.ListAssignments(ctx)
	if err != nil {
		c.setStoreErr(err)
		return fmt.Errorf("failed to list assignments: %w", err)
	}
	c.setStoreErr(nil)

	var errs error
	load := make(map[streamcoord.HostPort]int)
	owners := make(map[streamcoord.HostPort][]streamcoord.PipelineName)
	for _, a := range assignments {
		if err := a.Validate(); err != nil {
			err = fmt.Errorf("pipeline %s: %w", a.Pipeline, err)
			errs = multierr.Append(errs, err)
			c.violation(ctx, a.Pipeline, err)
		}
		if c.config.MetricsEnabled {
			metrics.NewCollector(a.Pipeline).SetAssignment(a)
		}
		for slot, n := range a.Workers() {
			load[slot] += n
			owners[slot] = append(owners[slot], a.Pipeline)
		}
	}

	if c.config.MaxExecutorsPerWorker > 0 {
		for _, slot := range sortedSlots(load) {
			if load[slot] <= c.config.MaxExecutorsPerWorker {
				continue
			}
			err := fmt.Errorf("%w: %s runs %d executors, limit %d",
				streamcoord.ErrWorkerOversubscribed, slot, load[slot], c.config.MaxExecutorsPerWorker)
			errs = multierr.Append(errs, err)
			for _, name := range owners[slot] {
				c.violation(ctx, name, err)
			}
		}
	}

	if c.config.MetricsEnabled {
		metrics.ReconcileDuration.Observe(time.Since(start).Seconds())
	}
	if c.config.Logger != nil {
		c.config.Logger.Debug(ctx, "reconciled assignments",
			"pipelines", len(assignments),
			"violations", len(multierr.Errors(errs)))
	}

	return errs
}

func (c *Coordinator) violation(ctx context.Context, pipeline streamcoord.PipelineName, err error) {
	c.cc.Tracer().OnLogEntry(fmt.Sprintf("reconcile: %v", err))
	if c.config.MetricsEnabled {
		metrics.NewCollector(pipeline).IncReconcileViolations()
	}
	if c.config.Logger != nil {
		c.config.Logger.Error(ctx, "assignment violation", "pipeline", pipeline, "error", err)
	}
}

// pipeline lays out the first assignment before a pipeline starts, then
// delegates to the executor.
func (c *Coordinator) pipeline(ctx context.Context, cmd command.Command) command.Result {
	pc := cmd.(command.PipelineCommand)
	if pc.Status != command.PipelineStart {
		return c.start.Handle(ctx, pc)
	}

	a, failed := c.ensureAssignment(ctx, pc)
	if failed != nil {
		return *failed
	}
	if a != nil {
		options := make(map[string]string, len(pc.Options)+2)
		for k, v := range pc.Options {
			options[k] = v
		}
		options["assignment.generation"] = a.Generation
		options["assignment.version"] = strconv.FormatInt(a.Version, 10)
		pc.Options = options
	}

	return c.start.Handle(ctx, pc)
}

// ensureAssignment returns the stored assignment of the pipeline, creating it
// from the pipeline topology if none exists. It returns nil when the pipeline
// declares no topology.
func (c *Coordinator) ensureAssignment(ctx context.Context, cmd command.PipelineCommand) (*streamcoord.Assignment, *command.Result) {
	fail := func(code command.Code, format string, args ...interface{}) (*streamcoord.Assignment, *command.Result) {
		res := command.Failure(cmd, code, format, args...)
		return nil, &res
	}

	existing, err := c.config.Store.GetAssignment(ctx, cmd.Pipeline)
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, store.ErrAssignmentNotFound) {
		return fail(command.CodeInternal, "failed to load assignment of %s: %v", cmd.Pipeline, err)
	}

	p, err := c.config.Store.GetPipeline(ctx, cmd.Pipeline)
	if errors.Is(err, streamcoord.ErrPipelineNotFound) {
		return fail(command.CodeUnknownPipeline, "pipeline %s not found", cmd.Pipeline)
	}
	if err != nil {
		return fail(command.CodeInternal, "failed to load pipeline %s: %v", cmd.Pipeline, err)
	}
	if len(p.Topology) == 0 {
		return nil, nil
	}

	var timestamp int64
	if c.config.Support != nil {
		timestamp = c.config.Support.GetTimestamp()
	}
	layout, err := c.assigner.InitialAssignment(p.Name, p.Topology, timestamp)
	if errors.Is(err, ErrNoWorkers) {
		return fail(command.CodeResourceExhausted, "cannot lay out %s: %v", cmd.Pipeline, err)
	}
	if err != nil {
		return fail(command.CodeInvalidCommand, "cannot lay out %s: %v", cmd.Pipeline, err)
	}

	defer c.lockCapacity()()
	if err := c.checkCapacity(ctx, cmd.Pipeline, layout); err != nil {
		return fail(command.CodeResourceExhausted, "%v", err)
	}

	stored, err := c.config.Store.SwapAssignment(ctx, cmd.Pipeline, 0, layout)
	if err != nil {
		return fail(command.CodeInternal, "failed to store assignment of %s: %v", cmd.Pipeline, err)
	}

	c.cc.Tracer().OnLogEntry(fmt.Sprintf("pipeline %s laid out: %s", cmd.Pipeline, describe(stored)))
	if c.config.MetricsEnabled {
		metrics.NewCollector(cmd.Pipeline).SetAssignment(stored)
	}
	if c.config.Logger != nil {
		c.config.Logger.Info(ctx, "created initial assignment",
			"pipeline", cmd.Pipeline,
			"generation", stored.Generation,
			"components", len(stored.Components))
	}

	return &stored, nil
}

// parallelismChange reallocates the executors of a pipeline, stores the new
// assignment and signals it. If the signal cannot be delivered the previous
// assignment is restored.
func (c *Coordinator) parallelismChange(ctx context.Context, cmd command.Command) command.Result {
	pc := cmd.(command.ParallelismChange)
	collector := metrics.NewCollector(pc.Pipeline)
	record := func(outcome string) {
		if c.config.MetricsEnabled {
			collector.IncReallocations(outcome)
		}
	}

	current, err := c.config.Store.GetAssignment(ctx, pc.Pipeline)
	if errors.Is(err, store.ErrAssignmentNotFound) {
		return command.Failure(pc, command.CodeUnknownPipeline, "pipeline %s has no assignment", pc.Pipeline)
	}
	if err != nil {
		return command.Failure(pc, command.CodeInternal, "failed to load assignment of %s: %v", pc.Pipeline, err)
	}

	res, err := reallocation.Reallocate(current, pc.Requests, c.config.Support)
	if errors.Is(err, reallocation.ErrNoTopologySupport) {
		record("error")
		return command.Failure(pc, command.CodeInternal, "%v", err)
	}
	if err != nil {
		record("error")
		return command.Failure(pc, command.CodeInvalidCommand, "%v", err)
	}
	if c.config.MetricsEnabled {
		collector.AddLeftoverExecutors(res.Leftover)
	}

	if !res.Changed() {
		switch {
		case res.Satisfied():
			record("noop")
			return command.Successf(pc, "nothing to change in %s", pc.Pipeline)
		case onlyUnknown(current, res.Leftover):
			record("unsatisfiable")
			return command.Failure(pc, command.CodeUnsatisfiable, "pipeline %s has none of the components %s",
				pc.Pipeline, describeLeftover(res.Leftover))
		default:
			record("exhausted")
			return command.Failure(pc, command.CodeResourceExhausted, "could not grant %s", describeLeftover(res.Leftover))
		}
	}

	next := *res.Assignment
	// Held through the signal and any restore of the previous layout.
	defer c.lockCapacity()()
	if err := c.checkCapacity(ctx, pc.Pipeline, next); err != nil {
		record("exhausted")
		return command.Failure(pc, command.CodeResourceExhausted, "%v", err)
	}

	stored, err := c.config.Store.SwapAssignment(ctx, pc.Pipeline, current.Version, next)
	if errors.Is(err, store.ErrVersionConflict) {
		record("conflict")
		return command.Failure(pc, command.CodeInternal, "assignment of %s changed concurrently", pc.Pipeline)
	}
	if err != nil {
		record("error")
		return command.Failure(pc, command.CodeInternal, "failed to store assignment of %s: %v", pc.Pipeline, err)
	}

	if err := c.executor.Send(ctx, parallelismSignal(stored)); err != nil {
		record("reverted")
		code := command.CodeSignal
		if ctx.Err() != nil {
			code = command.CodeTimeout
		}
		if _, rerr := c.config.Store.SwapAssignment(context.WithoutCancel(ctx), pc.Pipeline, stored.Version, current); rerr != nil {
			if c.config.Logger != nil {
				c.config.Logger.Error(ctx, "failed to restore assignment",
					"pipeline", pc.Pipeline,
					"generation", stored.Generation,
					"error", rerr)
			}
			return command.Failure(pc, code, "%v; restoring previous assignment failed: %v", err, rerr)
		}
		return command.Failure(pc, code, "%v; previous assignment restored", err)
	}

	record("applied")
	if c.config.MetricsEnabled {
		collector.SetAssignment(stored)
	}
	c.cc.Tracer().OnLogEntry(fmt.Sprintf("pipeline %s reassigned: %s", pc.Pipeline, describe(stored)))
	if c.config.Logger != nil {
		c.config.Logger.Info(ctx, "assignment changed",
			"pipeline", pc.Pipeline,
			"generation", stored.Generation,
			"version", stored.Version,
			"leftover", len(res.Leftover))
	}

	if !res.Satisfied() {
		return command.Successf(pc, "reassigned %s, not granted: %s", pc.Pipeline, describeLeftover(res.Leftover))
	}
	return command.Successf(pc, "reassigned %s (version %d)", pc.Pipeline, stored.Version)
}

// lockCapacity serializes layout changes across pipelines when a per-slot
// limit is configured. It returns the matching unlock.
func (c *Coordinator) lockCapacity() func() {
	if c.config.MaxExecutorsPerWorker <= 0 {
		return func() {}
	}
	c.capacityMu.Lock()
	return c.capacityMu.Unlock
}

// checkCapacity reports whether storing next for pipeline would push a slot it
// uses beyond MaxExecutorsPerWorker. Callers hold lockCapacity until the write.
func (c *Coordinator) checkCapacity(ctx context.Context, pipeline streamcoord.PipelineName, next streamcoord.Assignment) error {
	if c.config.MaxExecutorsPerWorker <= 0 {
		return nil
	}

	all, err := c.config.Store.ListAssignments(ctx)
	if err != nil {
		return fmt.Errorf("failed to list assignments: %w", err)
	}

	load := next.Workers()
	for _, a := range all {
		if a.Pipeline == pipeline {
			continue
		}
		for slot, n := range a.Workers() {
			if _, used := load[slot]; used {
				load[slot] += n
			}
		}
	}

	for _, slot := range sortedSlots(load) {
		if load[slot] > c.config.MaxExecutorsPerWorker {
			return fmt.Errorf("%w: %s would run %d executors, limit %d",
				streamcoord.ErrWorkerOversubscribed, slot, load[slot], c.config.MaxExecutorsPerWorker)
		}
	}
	return nil
}

func parallelismSignal(a streamcoord.Assignment) executor.Signal {
	payload := map[string]string{
		"generation": a.Generation,
		"version":    strconv.FormatInt(a.Version, 10),
	}
	for _, name := range a.ComponentNames() {
		payload["executors."+name] = strconv.Itoa(a.Executors(name))
	}
	return executor.Signal{Pipeline: a.Pipeline, Kind: executor.SignalParallelism, Payload: payload}
}

func onlyUnknown(current streamcoord.Assignment, leftover map[string]streamcoord.ParallelismChangeRequest) bool {
	for name := range leftover {
		if _, ok := current.Components[name]; ok {
			return false
		}
	}
	return true
}

func describe(a streamcoord.Assignment) string {
	parts := make([]string, 0, len(a.Components))
	for _, name := range a.ComponentNames() {
		parts = append(parts, fmt.Sprintf("%s=%d", name, a.Executors(name)))
	}
	return fmt.Sprintf("generation %s [%s]", a.Generation, strings.Join(parts, " "))
}

func describeLeftover(leftover map[string]streamcoord.ParallelismChangeRequest) string {
	names := make([]string, 0, len(leftover))
	for name := range leftover {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s(%s)", name, leftover[name]))
	}
	return strings.Join(parts, ", ")
}

func sortedSlots(m map[streamcoord.HostPort]int) []streamcoord.HostPort {
	slots := make([]streamcoord.HostPort, 0, len(m))
	for s := range m {
		slots = append(slots, s)
	}
	sort.Slice(slots, func(i, j int) bool {
		if slots[i].HostID != slots[j].HostID {
			return slots[i].HostID < slots[j].HostID
		}
		return slots[i].Port < slots[j].Port
	})
	return slots
}
