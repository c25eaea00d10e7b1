package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/getpup/pupsourcing/es"
)

// ErrInvalidPeriod is returned when a non-positive period is requested.
var ErrInvalidPeriod = errors.New("period must be positive")

// Config holds configuration for a PeriodicTask.
type Config struct {
	// Name identifies the task in log lines.
	Name string

	// Period is the interval between runs (default: 30s).
	Period time.Duration

	// Task is the work run every period (required).
	Task func(ctx context.Context) error

	// StopOnError makes Run return the first task error instead of logging it.
	StopOnError bool

	// Logger is for observability (optional).
	Logger es.Logger
}

// PeriodicTask runs a function at a fixed interval that can be changed while
// the task is running.
type PeriodicTask struct {
	config Config

	mu     sync.Mutex
	period time.Duration
	reset  chan time.Duration
}

// New creates a new PeriodicTask with the given configuration.
// Applies default values for Period if not set.
func New(cfg Config) *PeriodicTask {
	if cfg.Period <= 0 {
		cfg.Period = 30 * time.Second
	}
	if cfg.Name == "" {
		cfg.Name = "periodic task"
	}

	return &PeriodicTask{
		config: cfg,
		period: cfg.Period,
		reset:  make(chan time.Duration, 1),
	}
}

// Period returns the current interval.
func (p *PeriodicTask) Period() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.period
}

// SetPeriod changes the interval. A running loop picks the new period up
// immediately and restarts its ticker.
func (p *PeriodicTask) SetPeriod(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidPeriod, d)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.period = d

	// Replace any pending update so Run only sees the latest.
	select {
	case <-p.reset:
	default:
	}
	p.reset <- d
	return nil
}

// Run executes the task every period until ctx is cancelled.
// Returns nil on cancellation, or the task error when StopOnError is set.
func (p *PeriodicTask) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.Period())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case d := <-p.reset:
			ticker.Reset(d)
			if p.config.Logger != nil {
				p.config.Logger.Debug(ctx, "period changed", "task", p.config.Name, "period", d)
			}
		case <-ticker.C:
			if err := p.RunOnce(ctx); err != nil && p.config.StopOnError {
				return err
			}
		}
	}
}

// RunOnce runs the task immediately, logging a failure.
func (p *PeriodicTask) RunOnce(ctx context.Context) error {
	err := p.config.Task(ctx)
	if err != nil {
		if p.config.Logger != nil {
			p.config.Logger.Error(ctx, "periodic task failed", "task", p.config.Name, "error", err)
		}
		return err
	}

	if p.config.Logger != nil {
		p.config.Logger.Debug(ctx, "periodic task ran", "task", p.config.Name)
	}
	return nil
}
