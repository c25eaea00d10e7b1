package executor

import (
	"context"

	"github.com/cenkalti/backoff/v4"
	"github.com/getpup/streamcoord"
)

// SignalKind names the effect a signal asks a running element to apply.
type SignalKind string

const (
	SignalAlgorithm    SignalKind = "algorithm"
	SignalParameter    SignalKind = "parameter"
	SignalPipeline     SignalKind = "pipeline"
	SignalParallelism  SignalKind = "parallelism"
	SignalMonitoring   SignalKind = "monitoring"
	SignalLoadShedding SignalKind = "load_shedding"
	SignalReplay       SignalKind = "replay"
	SignalProfile      SignalKind = "profile"
	SignalWavefront    SignalKind = "wavefront"
	SignalShutdown     SignalKind = "shutdown"
	SignalUpdate       SignalKind = "update"
)

// Signal is a message delivered to a running pipeline element, or to the
// infrastructure when Pipeline is empty.
type Signal struct {
	Pipeline streamcoord.PipelineName
	Element  string
	Kind     SignalKind
	Payload  map[string]string
}

// SignalChannel delivers signals to running pipelines.
// This interface allows for mock implementations in tests.
//
// Send errors are retried unless wrapped with Permanent.
type SignalChannel interface {
	Send(ctx context.Context, signal Signal) error
}

// SignalFunc adapts a function to SignalChannel.
type SignalFunc func(ctx context.Context, signal Signal) error

func (f SignalFunc) Send(ctx context.Context, signal Signal) error {
	return f(ctx, signal)
}

// Permanent marks a delivery error as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
