package command

import "fmt"

// Code classifies the outcome of a command. CodeNone means success.
type Code int

const (
	CodeNone Code = iota

	// Validation errors.
	CodeUnknownPipeline
	CodeUnknownElement
	CodeUnknownStatus
	CodePipelineNotRunning
	CodeUnknownAlgorithm
	CodeInvalidCommand
	CodeNoHandler

	// Transport errors.
	CodeSignal
	CodeTimeout

	CodeResourceExhausted
	CodeUnsatisfiable
	CodeAggregate
	CodeInternal
)

// Category groups codes for reporting.
type Category string

const (
	CategoryNone          Category = "none"
	CategoryValidation    Category = "validation"
	CategoryTransport     Category = "transport"
	CategoryResource      Category = "resource"
	CategoryUnsatisfiable Category = "unsatisfiable"
	CategoryAggregate     Category = "aggregate"
	CategoryInternal      Category = "internal"
)

var codeNames = map[Code]string{
	CodeNone:               "none",
	CodeUnknownPipeline:    "unknown_pipeline",
	CodeUnknownElement:     "unknown_element",
	CodeUnknownStatus:      "unknown_status",
	CodePipelineNotRunning: "pipeline_not_running",
	CodeUnknownAlgorithm:   "unknown_algorithm",
	CodeInvalidCommand:     "invalid_command",
	CodeNoHandler:          "no_handler",
	CodeSignal:             "signal",
	CodeTimeout:            "timeout",
	CodeResourceExhausted:  "resource_exhausted",
	CodeUnsatisfiable:      "unsatisfiable",
	CodeAggregate:          "aggregate",
	CodeInternal:           "internal",
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("code(%d)", int(c))
}

// Category returns the error class of the code.
func (c Code) Category() Category {
	switch c {
	case CodeNone:
		return CategoryNone
	case CodeUnknownPipeline, CodeUnknownElement, CodeUnknownStatus, CodePipelineNotRunning,
		CodeUnknownAlgorithm, CodeInvalidCommand, CodeNoHandler:
		return CategoryValidation
	case CodeSignal, CodeTimeout:
		return CategoryTransport
	case CodeResourceExhausted:
		return CategoryResource
	case CodeUnsatisfiable:
		return CategoryUnsatisfiable
	case CodeAggregate:
		return CategoryAggregate
	default:
		return CategoryInternal
	}
}

// Result is the outcome of executing one command.
type Result struct {
	// Command is the command that produced the result.
	Command Command

	// Message is a human-readable description of the outcome.
	Message string

	// Code is CodeNone on success.
	Code Code
}

// Success returns a successful result for cmd.
func Success(cmd Command) Result {
	return Result{Command: cmd, Code: CodeNone}
}

// Successf returns a successful result for cmd carrying an informational message.
func Successf(cmd Command, format string, args ...interface{}) Result {
	return Result{Command: cmd, Code: CodeNone, Message: fmt.Sprintf(format, args...)}
}

// Failure returns a failed result for cmd.
func Failure(cmd Command, code Code, format string, args ...interface{}) Result {
	return Result{Command: cmd, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Failed reports whether the result is not a success.
func (r Result) Failed() bool {
	return r.Code != CodeNone
}

// WithCommand returns a copy of the result attributed to cmd.
func (r Result) WithCommand(cmd Command) Result {
	r.Command = cmd
	return r
}

func (r Result) String() string {
	kind := "none"
	if r.Command != nil {
		kind = r.Command.Kind().String()
	}
	if r.Message == "" {
		return fmt.Sprintf("%s: %s", kind, r.Code)
	}
	return fmt.Sprintf("%s: %s (%s)", kind, r.Code, r.Message)
}
