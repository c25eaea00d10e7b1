package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/getpup/pupsourcing/es"
	"github.com/getpup/streamcoord/store"
)

// Config configures the effect executor.
type Config struct {
	// Store holds pipeline metadata (required).
	Store store.Store

	// Channel delivers signals to running pipelines (required).
	Channel SignalChannel

	// SendAttempts is the number of delivery attempts per signal (default: 3).
	SendAttempts int

	// InitialBackoff is the delay before the first retry (default: 50ms).
	InitialBackoff time.Duration

	// MaxBackoff caps the delay between retries (default: 2s).
	MaxBackoff time.Duration

	// Logger is an optional logger for observability.
	Logger es.Logger
}

// Executor enacts leaf commands: it validates them against the stored
// pipeline metadata, delivers the resulting signal and records the new state.
type Executor struct {
	config Config
}

// New creates a new Executor with the given configuration.
// It applies default values for SendAttempts, InitialBackoff and MaxBackoff if zero.
func New(cfg Config) *Executor {
	if cfg.SendAttempts <= 0 {
		cfg.SendAttempts = 3
	}
	if cfg.InitialBackoff == 0 {
		cfg.InitialBackoff = 50 * time.Millisecond
	}
	if cfg.MaxBackoff == 0 {
		cfg.MaxBackoff = 2 * time.Second
	}

	return &Executor{
		config: cfg,
	}
}

// Send delivers signal through the channel, retrying transient failures with
// exponential backoff until SendAttempts is exhausted or ctx ends.
func (e *Executor) Send(ctx context.Context, signal Signal) error {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = e.config.InitialBackoff
	expBackoff.MaxInterval = e.config.MaxBackoff
	expBackoff.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(expBackoff, uint64(e.config.SendAttempts-1)), ctx)

	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		return e.config.Channel.Send(ctx, signal)
	}, policy, func(err error, next time.Duration) {
		if e.config.Logger != nil {
			e.config.Logger.Debug(ctx, "signal delivery failed, retrying",
				"pipeline", signal.Pipeline,
				"kind", signal.Kind,
				"attempt", attempt,
				"next", next,
				"error", err)
		}
	})
	if err != nil {
		if e.config.Logger != nil {
			e.config.Logger.Error(ctx, "signal delivery failed",
				"pipeline", signal.Pipeline,
				"kind", signal.Kind,
				"attempts", attempt,
				"error", err)
		}
		return fmt.Errorf("failed to deliver %s signal after %d attempts: %w", signal.Kind, attempt, err)
	}

	return nil
}
