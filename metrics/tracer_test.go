package metrics

import (
	"testing"

	"github.com/getpup/streamcoord/command"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestTracer_OnSent(t *testing.T) {
	cmd := command.Shutdown{Message: "bye"}

	before := testutil.ToFloat64(CommandsSentTotal.WithLabelValues("shutdown"))
	Tracer{}.OnSent(cmd)
	after := testutil.ToFloat64(CommandsSentTotal.WithLabelValues("shutdown"))

	assert.Equal(t, before+1, after)
}

func TestTracer_OnExecuted(t *testing.T) {
	cmd := command.Update{Artifact: "models/v3"}
	counter := CommandsExecutedTotal.WithLabelValues("update", "signal", "transport")

	before := testutil.ToFloat64(counter)
	Tracer{}.OnExecuted(cmd, command.Failure(cmd, command.CodeSignal, "unreachable"))
	after := testutil.ToFloat64(counter)

	assert.Equal(t, before+1, after)
}

func TestTracer_OnLogEntry(t *testing.T) {
	before := testutil.ToFloat64(LogEntriesTotal)
	Tracer{}.OnLogEntry("reallocated traffic")
	after := testutil.ToFloat64(LogEntriesTotal)

	assert.Equal(t, before+1, after)
}
