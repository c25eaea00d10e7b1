package reallocation

import (
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/getpup/streamcoord"
)

// TopologySupport is the cluster-runtime integration consumed by Reallocate.
type TopologySupport interface {
	// GetHostAssignment resolves the slot a new or relocated executor should
	// run on, given the executor it derives from and the request.
	GetHostAssignment(current streamcoord.TaskAssignment, req streamcoord.ParallelismChangeRequest) (streamcoord.HostPort, error)

	// GetHostIDMapping maps host id to host name.
	GetHostIDMapping() map[string]string

	// GetTimestamp returns a monotonically increasing timestamp.
	GetTimestamp() int64

	// MaxTasks returns the highest task id the component may reach, or 0 when
	// the component is unbounded.
	MaxTasks(component string) int
}

// ResolveHost maps a host name or id to a host id using an id-to-name mapping.
// Ids take precedence over names; ties between names resolve to the smallest id.
func ResolveHost(mapping map[string]string, name string) (string, bool) {
	if _, ok := mapping[name]; ok {
		return name, true
	}
	ids := make([]string, 0, len(mapping))
	for id := range mapping {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if mapping[id] == name {
			return id, true
		}
	}
	return "", false
}

// StaticTopology is a TopologySupport over a fixed set of worker slots.
type StaticTopology struct {
	slots     []streamcoord.HostPort
	hostNames map[string]string
	limits    map[string]int
	clock     int64
}

// Compile-time check that StaticTopology implements TopologySupport.
var _ TopologySupport = (*StaticTopology)(nil)

// NewStaticTopology creates a topology over slots. hostNames maps host id to
// host name; hosts without a name are addressed by id. limits caps the task
// count per component.
func NewStaticTopology(slots []streamcoord.HostPort, hostNames map[string]string, limits map[string]int) *StaticTopology {
	sorted := append([]streamcoord.HostPort(nil), slots...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].HostID != sorted[j].HostID {
			return sorted[i].HostID < sorted[j].HostID
		}
		return sorted[i].Port < sorted[j].Port
	})

	names := make(map[string]string, len(sorted))
	for _, s := range sorted {
		names[s.HostID] = s.HostID
	}
	for id, name := range hostNames {
		names[id] = name
	}

	lim := make(map[string]int, len(limits))
	for c, n := range limits {
		lim[c] = n
	}

	return &StaticTopology{slots: sorted, hostNames: names, limits: lim}
}

// Slots returns the worker slots in host/port order.
func (t *StaticTopology) Slots() []streamcoord.HostPort {
	return append([]streamcoord.HostPort(nil), t.slots...)
}

func (t *StaticTopology) GetHostAssignment(current streamcoord.TaskAssignment, req streamcoord.ParallelismChangeRequest) (streamcoord.HostPort, error) {
	switch {
	case req.Host != nil:
		id, ok := ResolveHost(t.hostNames, *req.Host)
		if !ok {
			return streamcoord.HostPort{}, fmt.Errorf("%w: %s", streamcoord.ErrHostUnresolved, *req.Host)
		}
		if req.OtherHostThanAssignment && id == current.HostID {
			return streamcoord.HostPort{}, fmt.Errorf("%w: %s is the current host", streamcoord.ErrHostUnresolved, *req.Host)
		}
		for _, s := range t.slots {
			if s.HostID == id {
				return s, nil
			}
		}
		return streamcoord.HostPort{}, fmt.Errorf("%w: no slot on %s", streamcoord.ErrHostUnresolved, id)

	case req.OtherHostThanAssignment:
		for _, s := range t.slots {
			if s.HostID != current.HostID {
				return s, nil
			}
		}
		return streamcoord.HostPort{}, fmt.Errorf("%w: no host other than %s", streamcoord.ErrHostUnresolved, current.HostID)

	default:
		return current.Slot(), nil
	}
}

func (t *StaticTopology) GetHostIDMapping() map[string]string {
	out := make(map[string]string, len(t.hostNames))
	for id, name := range t.hostNames {
		out[id] = name
	}
	return out
}

func (t *StaticTopology) GetTimestamp() int64 {
	return atomic.AddInt64(&t.clock, 1)
}

func (t *StaticTopology) MaxTasks(component string) int {
	return t.limits[component]
}
