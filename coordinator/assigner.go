package coordinator

import (
	"errors"
	"fmt"
	"sort"

	"github.com/getpup/streamcoord"
)

// ErrNoWorkers is returned when an initial layout is requested without worker slots.
var ErrNoWorkers = errors.New("no worker slots")

// Assigner lays out the first assignment of a pipeline over the worker slots.
type Assigner struct {
	slots []streamcoord.HostPort
}

// NewAssigner creates a new Assigner over the given worker slots.
// Slots are sorted by host then port to ensure deterministic layouts.
func NewAssigner(slots []streamcoord.HostPort) *Assigner {
	sorted := append([]streamcoord.HostPort(nil), slots...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].HostID != sorted[j].HostID {
			return sorted[i].HostID < sorted[j].HostID
		}
		return sorted[i].Port < sorted[j].Port
	})

	return &Assigner{
		slots: sorted,
	}
}

// Slots returns the sorted worker slots.
func (a *Assigner) Slots() []streamcoord.HostPort {
	return append([]streamcoord.HostPort(nil), a.slots...)
}

// InitialAssignment builds the assignment of a pipeline from its topology.
// Components are processed in name order and their executors are placed
// round-robin over the slots, continuing where the previous component stopped.
// Each component's tasks are split into contiguous ranges whose sizes differ by
// at most one, the larger ranges first.
func (a *Assigner) InitialAssignment(pipeline streamcoord.PipelineName, topology map[string]streamcoord.ComponentSpec, timestamp int64) (streamcoord.Assignment, error) {
	if len(a.slots) == 0 {
		return streamcoord.Assignment{}, ErrNoWorkers
	}

	names := make([]string, 0, len(topology))
	for name := range topology {
		names = append(names, name)
	}
	sort.Strings(names)

	out := streamcoord.Assignment{
		Pipeline:   pipeline,
		Timestamp:  timestamp,
		Components: make(map[string][]streamcoord.TaskAssignment, len(names)),
	}

	next := 0
	for _, name := range names {
		spec := topology[name]
		if spec.Executors < 1 || spec.Tasks < spec.Executors {
			return streamcoord.Assignment{}, fmt.Errorf("%w: component %s wants %d executors for %d tasks",
				streamcoord.ErrInvalidAssignment, name, spec.Executors, spec.Tasks)
		}

		size, extra := spec.Tasks/spec.Executors, spec.Tasks%spec.Executors
		start := 1
		entries := make([]streamcoord.TaskAssignment, 0, spec.Executors)
		for i := 0; i < spec.Executors; i++ {
			n := size
			if i < extra {
				n++
			}
			slot := a.slots[next%len(a.slots)]
			next++

			entries = append(entries, streamcoord.TaskAssignment{
				Component:   name,
				StartTaskID: start,
				EndTaskID:   start + n - 1,
				HostID:      slot.HostID,
				Port:        slot.Port,
				StartTime:   timestamp,
			})
			start += n
		}
		out.Components[name] = entries
	}

	return out, nil
}
