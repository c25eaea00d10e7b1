package streamcoord

import (
	"fmt"
	"sort"
)

// PipelineName identifies a running stream-processing pipeline.
// Commands for different pipelines are independent and may be processed concurrently.
type PipelineName string

// PipelineState is the lifecycle state of a pipeline as known to the coordinator.
type PipelineState string

const (
	// PipelineStateCreated indicates the pipeline is known but has never been started.
	PipelineStateCreated PipelineState = "created"

	// PipelineStateRunning indicates the pipeline is deployed and processing data.
	PipelineStateRunning PipelineState = "running"

	// PipelineStateStopped indicates the pipeline has been stopped.
	PipelineStateStopped PipelineState = "stopped"
)

// ElementKind classifies a pipeline element.
type ElementKind string

const (
	ElementKindSource    ElementKind = "source"
	ElementKindSink      ElementKind = "sink"
	ElementKindFamily    ElementKind = "family"
	ElementKindProcessor ElementKind = "processor"
)

// Element is a named processing stage within a pipeline.
type Element struct {
	// Name is the element name, unique within its pipeline.
	Name string `json:"name" yaml:"name"`

	// Kind is the element kind. Only families support algorithm changes.
	Kind ElementKind `json:"kind" yaml:"kind"`

	// Algorithms lists the interchangeable algorithms of a family.
	// An empty list accepts any algorithm name.
	Algorithms []string `json:"algorithms,omitempty" yaml:"algorithms,omitempty"`

	// CurrentAlgorithm is the algorithm currently active in a family.
	CurrentAlgorithm string `json:"currentAlgorithm,omitempty" yaml:"currentAlgorithm,omitempty"`

	// Parameters lists the runtime-adjustable parameters.
	// An empty list accepts any parameter name.
	Parameters []string `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// SupportsAlgorithm reports whether algorithm may be activated on the element.
func (e Element) SupportsAlgorithm(algorithm string) bool {
	if len(e.Algorithms) == 0 {
		return true
	}
	for _, a := range e.Algorithms {
		if a == algorithm {
			return true
		}
	}
	return false
}

// SupportsParameter reports whether parameter can be changed at runtime.
func (e Element) SupportsParameter(parameter string) bool {
	if len(e.Parameters) == 0 {
		return true
	}
	for _, p := range e.Parameters {
		if p == parameter {
			return true
		}
	}
	return false
}

// ComponentSpec describes the initial parallelism of one deployable component.
type ComponentSpec struct {
	// Tasks is the number of tasks of the component.
	Tasks int `json:"tasks" yaml:"tasks"`

	// Executors is the number of executors the tasks are distributed over.
	Executors int `json:"executors" yaml:"executors"`
}

// Pipeline is the coordinator's view of a pipeline.
type Pipeline struct {
	// Name identifies the pipeline.
	Name PipelineName `json:"name" yaml:"name"`

	// State is the current lifecycle state.
	State PipelineState `json:"state" yaml:"state"`

	// Elements maps element name to element metadata.
	Elements map[string]Element `json:"elements,omitempty" yaml:"elements,omitempty"`

	// Topology maps component name to its initial parallelism.
	// It is used to lay out the first assignment when the pipeline starts.
	Topology map[string]ComponentSpec `json:"topology,omitempty" yaml:"topology,omitempty"`
}

// Clone returns a deep copy of the pipeline.
func (p Pipeline) Clone() Pipeline {
	out := p
	if p.Elements != nil {
		out.Elements = make(map[string]Element, len(p.Elements))
		for name, e := range p.Elements {
			e.Algorithms = append([]string(nil), e.Algorithms...)
			e.Parameters = append([]string(nil), e.Parameters...)
			out.Elements[name] = e
		}
	}
	if p.Topology != nil {
		out.Topology = make(map[string]ComponentSpec, len(p.Topology))
		for name, spec := range p.Topology {
			out.Topology[name] = spec
		}
	}
	return out
}

// HostPort identifies an executor slot: a worker process on a host.
type HostPort struct {
	HostID string `json:"hostId" yaml:"hostId"`
	Port   int    `json:"port" yaml:"port"`
}

func (hp HostPort) String() string {
	return fmt.Sprintf("%s:%d", hp.HostID, hp.Port)
}

// TaskAssignment binds a contiguous, inclusive task-id range of one component
// to an executor slot.
type TaskAssignment struct {
	Component   string `json:"component"`
	StartTaskID int    `json:"startTaskId"`
	EndTaskID   int    `json:"endTaskId"`
	HostID      string `json:"hostId"`
	Port        int    `json:"port"`

	// StartTime is the support timestamp at which the executor was (re)assigned.
	StartTime int64 `json:"startTime"`
}

// Tasks returns the number of tasks in the range.
func (t TaskAssignment) Tasks() int {
	return t.EndTaskID - t.StartTaskID + 1
}

// Slot returns the executor slot of the assignment.
func (t TaskAssignment) Slot() HostPort {
	return HostPort{HostID: t.HostID, Port: t.Port}
}

// ParallelismChangeRequest is the desired executor delta for one component.
type ParallelismChangeRequest struct {
	// ExecutorDiff grows (positive) or shrinks (negative) the executor count.
	ExecutorDiff int `json:"executorDiff"`

	// Host optionally names the host that new or relocated executors should run on.
	Host *string `json:"host,omitempty"`

	// OtherHostThanAssignment demands a host different from the current one.
	OtherHostThanAssignment bool `json:"otherHostThanAssignment,omitempty"`
}

// IsNoop reports whether the request asks for nothing.
func (r ParallelismChangeRequest) IsNoop() bool {
	return r.ExecutorDiff == 0 && r.Host == nil && !r.OtherHostThanAssignment
}

func (r ParallelismChangeRequest) String() string {
	host := "-"
	if r.Host != nil {
		host = *r.Host
	}
	return fmt.Sprintf("diff=%d host=%s otherHost=%t", r.ExecutorDiff, host, r.OtherHostThanAssignment)
}

// HostName returns a pointer to name, for use as ParallelismChangeRequest.Host.
func HostName(name string) *string {
	return &name
}

// Assignment is the full task layout of one pipeline.
type Assignment struct {
	// Pipeline is the pipeline this assignment belongs to.
	Pipeline PipelineName `json:"pipeline"`

	// Generation is a unique id assigned by the store on every swap.
	Generation string `json:"generation,omitempty"`

	// Version is the compare-and-swap version; 0 means never stored.
	Version int64 `json:"version"`

	// Timestamp is the support timestamp of the last recomputation.
	Timestamp int64 `json:"timestamp"`

	// Components maps component name to its executors ordered by StartTaskID.
	Components map[string][]TaskAssignment `json:"components"`
}

// Clone returns a deep copy of the assignment.
func (a Assignment) Clone() Assignment {
	out := a
	out.Components = make(map[string][]TaskAssignment, len(a.Components))
	for name, tas := range a.Components {
		out.Components[name] = append([]TaskAssignment(nil), tas...)
	}
	return out
}

// ComponentNames returns the component names in sorted order.
func (a Assignment) ComponentNames() []string {
	names := make([]string, 0, len(a.Components))
	for name := range a.Components {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Executors returns the number of executors of component.
func (a Assignment) Executors(component string) int {
	return len(a.Components[component])
}

// Tasks returns the number of tasks of component.
func (a Assignment) Tasks(component string) int {
	n := 0
	for _, ta := range a.Components[component] {
		n += ta.Tasks()
	}
	return n
}

// Workers counts the executors bound to each slot.
func (a Assignment) Workers() map[HostPort]int {
	out := make(map[HostPort]int)
	for _, tas := range a.Components {
		for _, ta := range tas {
			out[ta.Slot()]++
		}
	}
	return out
}

// TaskComponents maps every global task id to its component. Components are
// laid out in name order so that global ids tile [1, total].
func (a Assignment) TaskComponents() map[int]string {
	out := make(map[int]string)
	offset := 0
	for _, name := range a.ComponentNames() {
		last := 0
		for _, ta := range a.Components[name] {
			for id := ta.StartTaskID; id <= ta.EndTaskID; id++ {
				out[offset+id] = name
			}
			if ta.EndTaskID > last {
				last = ta.EndTaskID
			}
		}
		offset += last
	}
	return out
}

// Validate checks the continuity invariant per component and across the cluster.
func (a Assignment) Validate() error {
	total := 0
	for _, name := range a.ComponentNames() {
		tas := a.Components[name]
		if len(tas) == 0 {
			return fmt.Errorf("%w: component %s has no executors", ErrInvalidAssignment, name)
		}
		next := 1
		for _, ta := range tas {
			if ta.Component != name {
				return fmt.Errorf("%w: entry for %s listed under %s", ErrInvalidAssignment, ta.Component, name)
			}
			if ta.StartTaskID != next {
				return fmt.Errorf("%w: component %s expected task %d, got range [%d,%d]",
					ErrInvalidAssignment, name, next, ta.StartTaskID, ta.EndTaskID)
			}
			if ta.EndTaskID < ta.StartTaskID {
				return fmt.Errorf("%w: component %s has empty range [%d,%d]",
					ErrInvalidAssignment, name, ta.StartTaskID, ta.EndTaskID)
			}
			next = ta.EndTaskID + 1
		}
		total += next - 1
	}

	ids := a.TaskComponents()
	if len(ids) != total {
		return fmt.Errorf("%w: %d global task ids for %d tasks", ErrInvalidAssignment, len(ids), total)
	}
	for id := 1; id <= total; id++ {
		if _, ok := ids[id]; !ok {
			return fmt.Errorf("%w: global task id %d missing", ErrInvalidAssignment, id)
		}
	}
	return nil
}
