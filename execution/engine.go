package execution

import (
	"context"

	"github.com/getpup/streamcoord/command"
)

// Report summarises one submission.
type Report struct {
	// Result is the outcome of the (simplified) submitted command.
	Result command.Result

	// Executed counts leaf handler invocations.
	Executed int

	// Failed counts failed leaf invocations.
	Failed int
}

// Engine executes command trees. A single Engine may be shared by many
// goroutines; commands on the same pipeline are serialized by the
// CoordinationContext.
type Engine struct {
	cc *CoordinationContext
}

// NewEngine creates an engine bound to cc.
func NewEngine(cc *CoordinationContext) *Engine {
	return &Engine{cc: cc}
}

// Execute runs cmd and reports every executed command to the tracers.
// It never aborts on a failing leaf: every outcome is a Result.
func (e *Engine) Execute(ctx context.Context, cmd command.Command) Report {
	if cmd == nil {
		return Report{Result: command.Success(nil)}
	}

	e.cc.Notifier().OnSent(cmd)

	simple := command.Simplify(cmd)
	if simple == nil {
		return Report{Result: command.Successf(cmd, "nothing to execute")}
	}

	unlock, err := e.cc.LockPipelines(ctx, command.Pipelines(simple))
	if err != nil {
		res := command.Failure(simple, command.CodeTimeout, "%v", err)
		e.cc.Tracer().OnExecuted(simple, res)
		return Report{Result: res}
	}

	p := &pass{}
	p.report.Result = e.visit(ctx, simple, p)
	if len(p.running) == 0 {
		unlock()
		return p.report
	}

	// Timed-out handlers still own their pipelines until they return.
	go func() {
		for _, exited := range p.running {
			<-exited
		}
		unlock()
	}()
	return p.report
}

// pass tracks one submission: its report and the handlers that outlived their
// deadline.
type pass struct {
	report  Report
	running []<-chan struct{}
}

func (e *Engine) visit(ctx context.Context, cmd command.Command, p *pass) command.Result {
	tracer := e.cc.Tracer()

	switch cmd.Kind() {
	case command.KindSequence:
		seq := cmd.(*command.Sequence)
		res := command.Success(seq)
		for _, child := range seq.Children() {
			if childRes := e.visit(ctx, child, p); childRes.Failed() {
				res = childRes
				break
			}
		}
		tracer.OnExecuted(seq, res)
		return res

	case command.KindSet:
		set := cmd.(*command.Set)
		failed := 0
		for _, child := range set.Children() {
			if e.visit(ctx, child, p).Failed() {
				failed++
			}
		}
		res := command.Success(set)
		if failed > 0 {
			res = command.Failure(set, command.CodeAggregate, "%d of %d commands failed", failed, set.Len())
		}
		tracer.OnExecuted(set, res)
		return res

	case command.KindAlgorithmChange:
		res := e.invoke(ctx, cmd, p)
		for _, derived := range cmd.(command.AlgorithmChange).DerivedParameterChanges() {
			tracer.OnExecuted(derived, res.WithCommand(derived))
		}
		tracer.OnExecuted(cmd, res)
		return res

	case command.KindParameterChange, command.KindPipeline, command.KindParallelismChange,
		command.KindMonitoringChange, command.KindLoadShedding, command.KindReplay,
		command.KindProfileAlgorithm, command.KindScheduleWavefrontAdaptation,
		command.KindShutdown, command.KindUpdate:
		res := e.invoke(ctx, cmd, p)
		tracer.OnExecuted(cmd, res)
		return res

	default:
		res := command.Failure(cmd, command.CodeInvalidCommand, "unknown command kind %s", cmd.Kind())
		tracer.OnExecuted(cmd, res)
		return res
	}
}

// invoke runs the handler for a leaf with the configured deadline, turning
// panics and timeouts into results.
func (e *Engine) invoke(ctx context.Context, cmd command.Command, p *pass) command.Result {
	res := e.call(ctx, cmd, p)
	p.report.Executed++
	if res.Failed() {
		p.report.Failed++
	}
	return res
}

func (e *Engine) call(ctx context.Context, cmd command.Command, p *pass) command.Result {
	h, ok := e.cc.Handler(cmd.Kind())
	if !ok {
		return command.Failure(cmd, command.CodeNoHandler, "no handler registered for %s", cmd.Kind())
	}

	for _, exited := range p.running {
		select {
		case <-exited:
		case <-ctx.Done():
			return command.Failure(cmd, command.CodeTimeout, "an earlier handler is still running: %v", ctx.Err())
		}
	}

	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if timeout := e.cc.HandlerTimeout(); timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	done := make(chan command.Result, 1)
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		defer func() {
			if r := recover(); r != nil {
				done <- command.Failure(cmd, command.CodeInternal, "handler panicked: %v", r)
			}
		}()
		done <- h.Handle(callCtx, cmd)
	}()

	select {
	case res := <-done:
		if res.Command == nil {
			res.Command = cmd
		}
		return res
	case <-callCtx.Done():
		p.running = append(p.running, exited)
		return command.Failure(cmd, command.CodeTimeout, "handler did not complete: %v", callCtx.Err())
	}
}
