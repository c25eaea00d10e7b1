package execution

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/getpup/pupsourcing/es"
	"github.com/getpup/streamcoord"
	"github.com/getpup/streamcoord/command"
)

// DefaultHandlerTimeout bounds a single handler invocation.
const DefaultHandlerTimeout = 30 * time.Second

// Config holds configuration for a CoordinationContext.
type Config struct {
	// Handlers maps each leaf kind to its effect handler.
	Handlers Handlers

	// Tracers observe every executed command (optional).
	Tracers []Tracer

	// Notifiers are told about every submitted command (optional).
	Notifiers []Notifier

	// HandlerTimeout bounds a single handler invocation (default: 30s).
	// A negative value disables the deadline.
	HandlerTimeout time.Duration

	// Logger is for observability (optional).
	Logger es.Logger
}

// CoordinationContext holds the collaborators of the execution engine: the
// effect handler table, the observers and the per-pipeline locks. It is
// constructed once and threaded explicitly into every Engine.
type CoordinationContext struct {
	config   Config
	handlers Handlers

	mu    sync.Mutex
	locks map[streamcoord.PipelineName]chan struct{}
}

// NewCoordinationContext creates a context from cfg, applying defaults.
func NewCoordinationContext(cfg Config) *CoordinationContext {
	if cfg.HandlerTimeout == 0 {
		cfg.HandlerTimeout = DefaultHandlerTimeout
	}

	return &CoordinationContext{
		config:   cfg,
		handlers: Handlers{}.Merge(cfg.Handlers),
		locks:    make(map[streamcoord.PipelineName]chan struct{}),
	}
}

// Handler returns the handler registered for kind.
func (c *CoordinationContext) Handler(kind command.Kind) (Handler, bool) {
	h, ok := c.handlers[kind]
	return h, ok
}

// HandlerTimeout returns the per-invocation deadline; <= 0 means none.
func (c *CoordinationContext) HandlerTimeout() time.Duration {
	return c.config.HandlerTimeout
}

// Tracer returns the fan-out of all registered tracers.
func (c *CoordinationContext) Tracer() Tracer {
	return Tracers(c.config.Tracers)
}

// Notifier returns the fan-out of all registered notifiers.
func (c *CoordinationContext) Notifier() Notifier {
	return Notifiers(c.config.Notifiers)
}

func (c *CoordinationContext) lockFor(name streamcoord.PipelineName) chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	l, ok := c.locks[name]
	if !ok {
		l = make(chan struct{}, 1)
		c.locks[name] = l
	}
	return l
}

// LockPipelines acquires the exclusive lock of every named pipeline in sorted
// order. It returns a function releasing all of them, or an error if ctx ends
// before every lock is held.
func (c *CoordinationContext) LockPipelines(ctx context.Context, names []streamcoord.PipelineName) (func(), error) {
	sorted := append([]streamcoord.PipelineName(nil), names...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	held := make([]chan struct{}, 0, len(sorted))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-held[i]
		}
	}

	for i, name := range sorted {
		if i > 0 && sorted[i-1] == name {
			continue
		}
		l := c.lockFor(name)
		select {
		case l <- struct{}{}:
			held = append(held, l)
		case <-ctx.Done():
			release()
			return nil, fmt.Errorf("waiting for pipeline %s: %w", name, ctx.Err())
		}
	}
	return release, nil
}
