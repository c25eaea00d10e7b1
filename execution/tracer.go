package execution

import (
	"context"

	"github.com/getpup/pupsourcing/es"
	"github.com/getpup/streamcoord/command"
)

// Tracer observes every command executed by the engine. Tracers must not
// influence control flow.
type Tracer interface {
	// OnExecuted is called once per executed leaf, per derived command and per
	// composite with the composite's own result.
	OnExecuted(cmd command.Command, result command.Result)

	// OnLogEntry records a human-auditable log line.
	OnLogEntry(text string)
}

// Notifier is informed once per externally submitted command.
type Notifier interface {
	OnSent(cmd command.Command)
}

// Tracers fans out to every tracer in the slice.
type Tracers []Tracer

func (ts Tracers) OnExecuted(cmd command.Command, result command.Result) {
	for _, t := range ts {
		t.OnExecuted(cmd, result)
	}
}

func (ts Tracers) OnLogEntry(text string) {
	for _, t := range ts {
		t.OnLogEntry(text)
	}
}

// Notifiers fans out to every notifier in the slice.
type Notifiers []Notifier

func (ns Notifiers) OnSent(cmd command.Command) {
	for _, n := range ns {
		n.OnSent(cmd)
	}
}

// LogTracer writes the tracer stream to a logger.
type LogTracer struct {
	Logger es.Logger
}

// Compile-time check that LogTracer implements Tracer.
var _ Tracer = (*LogTracer)(nil)

func (t *LogTracer) OnExecuted(cmd command.Command, result command.Result) {
	if t.Logger == nil {
		return
	}
	ctx := context.Background()
	if result.Failed() {
		t.Logger.Error(ctx, "command failed",
			"kind", cmd.Kind().String(),
			"code", result.Code.String(),
			"category", string(result.Code.Category()),
			"message", result.Message)
		return
	}
	t.Logger.Info(ctx, "command executed", "kind", cmd.Kind().String(), "message", result.Message)
}

func (t *LogTracer) OnLogEntry(text string) {
	if t.Logger != nil {
		t.Logger.Info(context.Background(), text)
	}
}
