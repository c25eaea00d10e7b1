package command

import (
	"time"

	"github.com/getpup/streamcoord"
)

// Kind tags the concrete type of a Command.
type Kind int

const (
	KindAlgorithmChange Kind = iota + 1
	KindParameterChange
	KindPipeline
	KindParallelismChange
	KindMonitoringChange
	KindLoadShedding
	KindReplay
	KindProfileAlgorithm
	KindScheduleWavefrontAdaptation
	KindShutdown
	KindUpdate
	KindSequence
	KindSet
)

var kindNames = map[Kind]string{
	KindAlgorithmChange:             "algorithm_change",
	KindParameterChange:             "parameter_change",
	KindPipeline:                    "pipeline",
	KindParallelismChange:           "parallelism_change",
	KindMonitoringChange:            "monitoring_change",
	KindLoadShedding:                "load_shedding",
	KindReplay:                      "replay",
	KindProfileAlgorithm:            "profile_algorithm",
	KindScheduleWavefrontAdaptation: "wavefront_adaptation",
	KindShutdown:                    "shutdown",
	KindUpdate:                      "update",
	KindSequence:                    "sequence",
	KindSet:                         "set",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// IsComposite reports whether the kind is Sequence or Set.
func (k Kind) IsComposite() bool {
	return k == KindSequence || k == KindSet
}

// Command is a node of the command algebra. The set of implementations is
// closed: the leaves declared in this file plus *Sequence and *Set.
type Command interface {
	Kind() Kind
	command()
}

// Leaf is a command that is enacted by exactly one effect handler.
type Leaf interface {
	Command

	// PipelineName returns the pipeline the command targets, or "" for
	// infrastructure-level commands.
	PipelineName() streamcoord.PipelineName
}

// AlgorithmChange switches the active algorithm of a family. Parameters are
// applied together with the switch and are reported as derived parameter changes.
type AlgorithmChange struct {
	Pipeline   streamcoord.PipelineName
	Element    string
	Algorithm  string
	Parameters map[string]string
}

// ParameterChange sets one runtime parameter of a pipeline element.
type ParameterChange struct {
	Pipeline  streamcoord.PipelineName
	Element   string
	Parameter string
	Value     string
}

// PipelineStatus is the lifecycle transition requested by a PipelineCommand.
type PipelineStatus string

const (
	PipelineStart      PipelineStatus = "start"
	PipelineConnect    PipelineStatus = "connect"
	PipelineDisconnect PipelineStatus = "disconnect"
	PipelineStop       PipelineStatus = "stop"
)

// Valid reports whether s is a known status.
func (s PipelineStatus) Valid() bool {
	switch s {
	case PipelineStart, PipelineConnect, PipelineDisconnect, PipelineStop:
		return true
	}
	return false
}

// PipelineCommand requests a lifecycle transition of a whole pipeline.
type PipelineCommand struct {
	Pipeline streamcoord.PipelineName
	Status   PipelineStatus
	Options  map[string]string
}

// ParallelismChange requests executor deltas and host relocations per component.
type ParallelismChange struct {
	Pipeline streamcoord.PipelineName
	Requests map[string]streamcoord.ParallelismChangeRequest
}

// MonitoringChange adjusts what is observed and how often. An empty Pipeline
// addresses infrastructure-level monitoring.
type MonitoringChange struct {
	Pipeline    streamcoord.PipelineName
	Element     string
	Frequency   time.Duration
	Observables map[string]bool
}

// LoadShedding makes an element drop a configurable fraction of its input.
type LoadShedding struct {
	Pipeline   streamcoord.PipelineName
	Element    string
	Shedder    string
	Parameters map[string]string
}

// Replay starts or stops re-injecting previously captured data into an element.
type Replay struct {
	Pipeline streamcoord.PipelineName
	Element  string
	Ticket   int
	Start    bool
	From     time.Time
	To       time.Time
	Speed    float64
	Query    string
}

// ProfileAlgorithm requests a profiling run of one algorithm of a family.
type ProfileAlgorithm struct {
	Family     string
	Algorithm  string
	Parameters map[string]string
}

// ScheduleWavefrontAdaptation schedules a coordinated change rolled out from
// Element downstream in dependency order.
type ScheduleWavefrontAdaptation struct {
	Pipeline streamcoord.PipelineName
	Element  string
}

// Shutdown stops the coordinated infrastructure.
type Shutdown struct {
	Message string
}

// Update refreshes the infrastructure from an artifact.
type Update struct {
	Artifact string
}

func (AlgorithmChange) Kind() Kind             { return KindAlgorithmChange }
func (ParameterChange) Kind() Kind             { return KindParameterChange }
func (PipelineCommand) Kind() Kind             { return KindPipeline }
func (ParallelismChange) Kind() Kind           { return KindParallelismChange }
func (MonitoringChange) Kind() Kind            { return KindMonitoringChange }
func (LoadShedding) Kind() Kind                { return KindLoadShedding }
func (Replay) Kind() Kind                      { return KindReplay }
func (ProfileAlgorithm) Kind() Kind            { return KindProfileAlgorithm }
func (ScheduleWavefrontAdaptation) Kind() Kind { return KindScheduleWavefrontAdaptation }
func (Shutdown) Kind() Kind                    { return KindShutdown }
func (Update) Kind() Kind                      { return KindUpdate }

func (AlgorithmChange) command()             {}
func (ParameterChange) command()             {}
func (PipelineCommand) command()             {}
func (ParallelismChange) command()           {}
func (MonitoringChange) command()            {}
func (LoadShedding) command()                {}
func (Replay) command()                      {}
func (ProfileAlgorithm) command()            {}
func (ScheduleWavefrontAdaptation) command() {}
func (Shutdown) command()                    {}
func (Update) command()                      {}

func (c AlgorithmChange) PipelineName() streamcoord.PipelineName             { return c.Pipeline }
func (c ParameterChange) PipelineName() streamcoord.PipelineName             { return c.Pipeline }
func (c PipelineCommand) PipelineName() streamcoord.PipelineName             { return c.Pipeline }
func (c ParallelismChange) PipelineName() streamcoord.PipelineName           { return c.Pipeline }
func (c MonitoringChange) PipelineName() streamcoord.PipelineName            { return c.Pipeline }
func (c LoadShedding) PipelineName() streamcoord.PipelineName                { return c.Pipeline }
func (c Replay) PipelineName() streamcoord.PipelineName                      { return c.Pipeline }
func (ProfileAlgorithm) PipelineName() streamcoord.PipelineName              { return "" }
func (c ScheduleWavefrontAdaptation) PipelineName() streamcoord.PipelineName { return c.Pipeline }
func (Shutdown) PipelineName() streamcoord.PipelineName                      { return "" }
func (Update) PipelineName() streamcoord.PipelineName                        { return "" }

// DerivedParameterChanges returns the parameter changes implied by an
// algorithm change, ordered by parameter name.
func (c AlgorithmChange) DerivedParameterChanges() []ParameterChange {
	names := sortedKeys(c.Parameters)
	out := make([]ParameterChange, 0, len(names))
	for _, name := range names {
		out = append(out, ParameterChange{
			Pipeline:  c.Pipeline,
			Element:   c.Element,
			Parameter: name,
			Value:     c.Parameters[name],
		})
	}
	return out
}

// Pipelines returns the distinct, non-empty pipeline names targeted anywhere
// in the command tree.
func Pipelines(c Command) []streamcoord.PipelineName {
	seen := make(map[streamcoord.PipelineName]struct{})
	var walk func(Command)
	walk = func(c Command) {
		switch n := c.(type) {
		case Composite:
			for _, child := range n.Children() {
				walk(child)
			}
		case Leaf:
			if name := n.PipelineName(); name != "" {
				seen[name] = struct{}{}
			}
		}
	}
	if c != nil {
		walk(c)
	}
	out := make([]streamcoord.PipelineName, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sortPipelines(out)
	return out
}
