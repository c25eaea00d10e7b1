// Package command defines the command algebra used to request runtime changes
// of pipelines.
//
// Commands form a closed sum type tagged by Kind. Leaves describe one change
// each (algorithm swap, parameter update, parallelism change, ...). Sequence and
// Set compose commands: a Sequence stops at the first failure, a Set executes
// every child. Composites are built incrementally and closed with Simplify,
// which returns a fresh canonical tree.
//
// Example:
//
//	cmd := command.NewSequence(
//	    command.PipelineCommand{Pipeline: "fin", Status: command.PipelineStart},
//	    command.NewSet(
//	        command.AlgorithmChange{Pipeline: "fin", Element: "corr", Algorithm: "hw"},
//	        command.ParameterChange{Pipeline: "fin", Element: "src", Parameter: "rate", Value: "10"},
//	    ),
//	)
//	canonical := command.Simplify(cmd)
package command
