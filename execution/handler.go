package execution

import (
	"context"

	"github.com/getpup/streamcoord/command"
)

// Handler enacts one leaf command. Implementations must be total: every
// outcome, including errors, is returned as a Result. Handlers must return
// promptly once ctx is done; the pipelines they touch stay locked until they
// do, even after the engine has reported the timeout.
type Handler interface {
	Handle(ctx context.Context, cmd command.Command) command.Result
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, cmd command.Command) command.Result

func (f HandlerFunc) Handle(ctx context.Context, cmd command.Command) command.Result {
	return f(ctx, cmd)
}

// Handlers maps leaf kinds to their effect handler.
type Handlers map[command.Kind]Handler

// Merge returns a new table with the entries of hs overridden by other.
func (hs Handlers) Merge(other Handlers) Handlers {
	out := make(Handlers, len(hs)+len(other))
	for k, h := range hs {
		out[k] = h
	}
	for k, h := range other {
		out[k] = h
	}
	return out
}
