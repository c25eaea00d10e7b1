package metrics

import (
	"github.com/getpup/streamcoord/command"
	"github.com/getpup/streamcoord/execution"
)

// Tracer counts submitted and executed commands. It implements both
// execution.Tracer and execution.Notifier.
type Tracer struct{}

var (
	_ execution.Tracer   = Tracer{}
	_ execution.Notifier = Tracer{}
)

func (Tracer) OnSent(cmd command.Command) {
	CommandsSentTotal.WithLabelValues(cmd.Kind().String()).Inc()
}

func (Tracer) OnExecuted(cmd command.Command, result command.Result) {
	CommandsExecutedTotal.WithLabelValues(
		cmd.Kind().String(),
		result.Code.String(),
		string(result.Code.Category()),
	).Inc()
}

func (Tracer) OnLogEntry(string) {
	LogEntriesTotal.Inc()
}
