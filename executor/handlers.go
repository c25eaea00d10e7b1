package executor

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/getpup/streamcoord"
	"github.com/getpup/streamcoord/command"
	"github.com/getpup/streamcoord/execution"
)

// Handlers returns the effect handler table for every leaf kind except
// parallelism changes, which need the reallocation machinery.
func (e *Executor) Handlers() execution.Handlers {
	return execution.Handlers{
		command.KindAlgorithmChange:             execution.HandlerFunc(e.algorithmChange),
		command.KindParameterChange:             execution.HandlerFunc(e.parameterChange),
		command.KindPipeline:                    execution.HandlerFunc(e.pipeline),
		command.KindMonitoringChange:            execution.HandlerFunc(e.monitoringChange),
		command.KindLoadShedding:                execution.HandlerFunc(e.loadShedding),
		command.KindReplay:                      execution.HandlerFunc(e.replay),
		command.KindProfileAlgorithm:            execution.HandlerFunc(e.profileAlgorithm),
		command.KindScheduleWavefrontAdaptation: execution.HandlerFunc(e.wavefront),
		command.KindShutdown:                    execution.HandlerFunc(e.shutdown),
		command.KindUpdate:                      execution.HandlerFunc(e.update),
	}
}

// runningElement loads the pipeline and checks that it is running and, when
// element is not empty, that it has that element.
func (e *Executor) runningElement(ctx context.Context, cmd command.Command, name streamcoord.PipelineName, element string) (streamcoord.Pipeline, streamcoord.Element, *command.Result) {
	p, err := e.config.Store.GetPipeline(ctx, name)
	if errors.Is(err, streamcoord.ErrPipelineNotFound) {
		res := command.Failure(cmd, command.CodeUnknownPipeline, "pipeline %s not found", name)
		return p, streamcoord.Element{}, &res
	}
	if err != nil {
		res := command.Failure(cmd, command.CodeInternal, "failed to load pipeline %s: %v", name, err)
		return p, streamcoord.Element{}, &res
	}
	if p.State != streamcoord.PipelineStateRunning {
		res := command.Failure(cmd, command.CodePipelineNotRunning, "pipeline %s is %s", name, p.State)
		return p, streamcoord.Element{}, &res
	}
	if element == "" {
		return p, streamcoord.Element{}, nil
	}
	el, ok := p.Elements[element]
	if !ok {
		res := command.Failure(cmd, command.CodeUnknownElement, "pipeline %s has no element %s", name, element)
		return p, streamcoord.Element{}, &res
	}
	return p, el, nil
}

// deliver sends the signal and maps a delivery failure to a result.
func (e *Executor) deliver(ctx context.Context, cmd command.Command, signal Signal) *command.Result {
	err := e.Send(ctx, signal)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		res := command.Failure(cmd, command.CodeTimeout, "%v", err)
		return &res
	}
	res := command.Failure(cmd, command.CodeSignal, "%v", err)
	return &res
}

func (e *Executor) algorithmChange(ctx context.Context, c command.Command) command.Result {
	cmd := c.(command.AlgorithmChange)

	p, el, failed := e.runningElement(ctx, cmd, cmd.Pipeline, cmd.Element)
	if failed != nil {
		return *failed
	}
	if el.Kind != streamcoord.ElementKindFamily {
		return command.Failure(cmd, command.CodeInvalidCommand, "element %s is a %s, not a family", el.Name, el.Kind)
	}
	if !el.SupportsAlgorithm(cmd.Algorithm) {
		return command.Failure(cmd, command.CodeUnknownAlgorithm, "family %s has no algorithm %s", el.Name, cmd.Algorithm)
	}
	for name := range cmd.Parameters {
		if !el.SupportsParameter(name) {
			return command.Failure(cmd, command.CodeInvalidCommand, "family %s has no parameter %s", el.Name, name)
		}
	}

	payload := map[string]string{"algorithm": cmd.Algorithm}
	for name, value := range cmd.Parameters {
		payload["param."+name] = value
	}
	if failed := e.deliver(ctx, cmd, Signal{Pipeline: cmd.Pipeline, Element: cmd.Element, Kind: SignalAlgorithm, Payload: payload}); failed != nil {
		return *failed
	}

	el.CurrentAlgorithm = cmd.Algorithm
	p.Elements[cmd.Element] = el
	if err := e.config.Store.PutPipeline(ctx, p); err != nil {
		return command.Failure(cmd, command.CodeInternal, "algorithm switched but not recorded: %v", err)
	}

	return command.Successf(cmd, "%s now runs %s", el.Name, cmd.Algorithm)
}

func (e *Executor) parameterChange(ctx context.Context, c command.Command) command.Result {
	cmd := c.(command.ParameterChange)

	_, el, failed := e.runningElement(ctx, cmd, cmd.Pipeline, cmd.Element)
	if failed != nil {
		return *failed
	}
	if !el.SupportsParameter(cmd.Parameter) {
		return command.Failure(cmd, command.CodeInvalidCommand, "element %s has no parameter %s", el.Name, cmd.Parameter)
	}

	signal := Signal{Pipeline: cmd.Pipeline, Element: cmd.Element, Kind: SignalParameter, Payload: map[string]string{
		"parameter": cmd.Parameter,
		"value":     cmd.Value,
	}}
	if failed := e.deliver(ctx, cmd, signal); failed != nil {
		return *failed
	}

	return command.Success(cmd)
}

func (e *Executor) pipeline(ctx context.Context, c command.Command) command.Result {
	cmd := c.(command.PipelineCommand)

	if !cmd.Status.Valid() {
		return command.Failure(cmd, command.CodeUnknownStatus, "unknown pipeline status %q", cmd.Status)
	}

	p, err := e.config.Store.GetPipeline(ctx, cmd.Pipeline)
	if errors.Is(err, streamcoord.ErrPipelineNotFound) {
		return command.Failure(cmd, command.CodeUnknownPipeline, "pipeline %s not found", cmd.Pipeline)
	}
	if err != nil {
		return command.Failure(cmd, command.CodeInternal, "failed to load pipeline %s: %v", cmd.Pipeline, err)
	}

	next := p.State
	switch cmd.Status {
	case command.PipelineStart:
		if p.State == streamcoord.PipelineStateRunning {
			return command.Successf(cmd, "pipeline %s already running", cmd.Pipeline)
		}
		next = streamcoord.PipelineStateRunning
	case command.PipelineStop:
		if p.State != streamcoord.PipelineStateRunning {
			return command.Failure(cmd, command.CodePipelineNotRunning, "pipeline %s is %s", cmd.Pipeline, p.State)
		}
		next = streamcoord.PipelineStateStopped
	default:
		if p.State != streamcoord.PipelineStateRunning {
			return command.Failure(cmd, command.CodePipelineNotRunning, "pipeline %s is %s", cmd.Pipeline, p.State)
		}
	}

	payload := map[string]string{"status": string(cmd.Status)}
	for k, v := range cmd.Options {
		payload[k] = v
	}
	if failed := e.deliver(ctx, cmd, Signal{Pipeline: cmd.Pipeline, Kind: SignalPipeline, Payload: payload}); failed != nil {
		return *failed
	}

	if next != p.State {
		p.State = next
		if err := e.config.Store.PutPipeline(ctx, p); err != nil {
			return command.Failure(cmd, command.CodeInternal, "pipeline %s signalled but state not recorded: %v", cmd.Pipeline, err)
		}
		if e.config.Logger != nil {
			e.config.Logger.Info(ctx, "pipeline state changed", "pipeline", cmd.Pipeline, "state", next)
		}
	}

	return command.Success(cmd)
}

func (e *Executor) monitoringChange(ctx context.Context, c command.Command) command.Result {
	cmd := c.(command.MonitoringChange)

	if cmd.Frequency <= 0 {
		return command.Failure(cmd, command.CodeInvalidCommand, "monitoring frequency must be positive, got %s", cmd.Frequency)
	}
	if cmd.Pipeline != "" {
		if _, _, failed := e.runningElement(ctx, cmd, cmd.Pipeline, cmd.Element); failed != nil {
			return *failed
		}
	}

	payload := map[string]string{"frequency": cmd.Frequency.String()}
	for name, on := range cmd.Observables {
		payload["observe."+name] = strconv.FormatBool(on)
	}
	if failed := e.deliver(ctx, cmd, Signal{Pipeline: cmd.Pipeline, Element: cmd.Element, Kind: SignalMonitoring, Payload: payload}); failed != nil {
		return *failed
	}

	return command.Success(cmd)
}

func (e *Executor) loadShedding(ctx context.Context, c command.Command) command.Result {
	cmd := c.(command.LoadShedding)

	if cmd.Shedder == "" {
		return command.Failure(cmd, command.CodeInvalidCommand, "load shedding needs a shedder")
	}
	if _, _, failed := e.runningElement(ctx, cmd, cmd.Pipeline, cmd.Element); failed != nil {
		return *failed
	}

	payload := map[string]string{"shedder": cmd.Shedder}
	for k, v := range cmd.Parameters {
		payload["param."+k] = v
	}
	if failed := e.deliver(ctx, cmd, Signal{Pipeline: cmd.Pipeline, Element: cmd.Element, Kind: SignalLoadShedding, Payload: payload}); failed != nil {
		return *failed
	}

	return command.Success(cmd)
}

func (e *Executor) replay(ctx context.Context, c command.Command) command.Result {
	cmd := c.(command.Replay)

	if cmd.Start {
		if cmd.Speed <= 0 {
			return command.Failure(cmd, command.CodeInvalidCommand, "replay speed must be positive, got %g", cmd.Speed)
		}
		if !cmd.To.IsZero() && cmd.To.Before(cmd.From) {
			return command.Failure(cmd, command.CodeInvalidCommand, "replay window ends before it starts")
		}
	} else if cmd.Ticket <= 0 {
		return command.Failure(cmd, command.CodeInvalidCommand, "stopping a replay needs its ticket")
	}
	if _, _, failed := e.runningElement(ctx, cmd, cmd.Pipeline, cmd.Element); failed != nil {
		return *failed
	}

	payload := map[string]string{
		"ticket": strconv.Itoa(cmd.Ticket),
		"start":  strconv.FormatBool(cmd.Start),
	}
	if cmd.Start {
		payload["from"] = cmd.From.Format(time.RFC3339Nano)
		payload["speed"] = strconv.FormatFloat(cmd.Speed, 'g', -1, 64)
		if !cmd.To.IsZero() {
			payload["to"] = cmd.To.Format(time.RFC3339Nano)
		}
		if cmd.Query != "" {
			payload["query"] = cmd.Query
		}
	}
	if failed := e.deliver(ctx, cmd, Signal{Pipeline: cmd.Pipeline, Element: cmd.Element, Kind: SignalReplay, Payload: payload}); failed != nil {
		return *failed
	}

	return command.Success(cmd)
}

func (e *Executor) profileAlgorithm(ctx context.Context, c command.Command) command.Result {
	cmd := c.(command.ProfileAlgorithm)

	if cmd.Family == "" || cmd.Algorithm == "" {
		return command.Failure(cmd, command.CodeInvalidCommand, "profiling needs a family and an algorithm")
	}

	payload := map[string]string{"family": cmd.Family, "algorithm": cmd.Algorithm}
	for k, v := range cmd.Parameters {
		payload["param."+k] = v
	}
	if failed := e.deliver(ctx, cmd, Signal{Kind: SignalProfile, Payload: payload}); failed != nil {
		return *failed
	}

	return command.Success(cmd)
}

func (e *Executor) wavefront(ctx context.Context, c command.Command) command.Result {
	cmd := c.(command.ScheduleWavefrontAdaptation)

	if _, _, failed := e.runningElement(ctx, cmd, cmd.Pipeline, cmd.Element); failed != nil {
		return *failed
	}
	if failed := e.deliver(ctx, cmd, Signal{Pipeline: cmd.Pipeline, Element: cmd.Element, Kind: SignalWavefront}); failed != nil {
		return *failed
	}

	return command.Success(cmd)
}

func (e *Executor) shutdown(ctx context.Context, c command.Command) command.Result {
	cmd := c.(command.Shutdown)

	if failed := e.deliver(ctx, cmd, Signal{Kind: SignalShutdown, Payload: map[string]string{"message": cmd.Message}}); failed != nil {
		return *failed
	}

	return command.Success(cmd)
}

func (e *Executor) update(ctx context.Context, c command.Command) command.Result {
	cmd := c.(command.Update)

	if cmd.Artifact == "" {
		return command.Failure(cmd, command.CodeInvalidCommand, "update needs an artifact")
	}
	if failed := e.deliver(ctx, cmd, Signal{Kind: SignalUpdate, Payload: map[string]string{"artifact": cmd.Artifact}}); failed != nil {
		return *failed
	}

	return command.Success(cmd)
}
