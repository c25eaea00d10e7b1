package reallocation

import (
	"errors"
	"fmt"
	"sort"

	"github.com/getpup/streamcoord"
)

// ErrNoTopologySupport is returned when Reallocate is called without a support.
var ErrNoTopologySupport = errors.New("no topology support")

// Result is the outcome of a reallocation.
type Result struct {
	// Assignment is the new assignment, or nil when nothing changed.
	Assignment *streamcoord.Assignment

	// Leftover holds the part of each request that could not be granted.
	Leftover map[string]streamcoord.ParallelismChangeRequest
}

// Changed reports whether a new assignment was produced.
func (r Result) Changed() bool {
	return r.Assignment != nil
}

// Satisfied reports whether every request was granted in full.
func (r Result) Satisfied() bool {
	return len(r.Leftover) == 0
}

// Reallocate computes the assignment that grants requests against current as
// far as possible. It never mutates its inputs. Components are processed in
// name order.
//
// Growth appends executors after the highest task id of the component, sized
// to the mean split and bounded by the support's MaxTasks. Shrink removes the
// highest ranges first, preferring executors not on the requested host, and
// merges each removed range into its neighbour; a component keeps at least one
// executor. A requested host with no executor on it, or a demand for another
// host, splits the largest executor in two, the upper half moving to the
// resolved host. When the host cannot be resolved the whole request is
// leftover. Requests for unknown components are returned in full.
func Reallocate(current streamcoord.Assignment, requests map[string]streamcoord.ParallelismChangeRequest, support TopologySupport) (Result, error) {
	if support == nil {
		return Result{}, ErrNoTopologySupport
	}
	if err := current.Validate(); err != nil {
		return Result{}, err
	}

	p := &planner{
		support: support,
		hosts:   support.GetHostIDMapping(),
		now:     support.GetTimestamp(),
	}

	leftover := make(map[string]streamcoord.ParallelismChangeRequest)
	changed := make(map[string][]streamcoord.TaskAssignment)

	for _, name := range sortedRequests(requests) {
		req := requests[name]
		if req.IsNoop() {
			continue
		}

		entries, ok := current.Components[name]
		if !ok {
			leftover[name] = req
			continue
		}

		out, rest, ok := p.component(name, entries, req)
		if ok {
			changed[name] = out
		}
		if !rest.IsNoop() {
			leftover[name] = rest
		}
	}

	res := Result{Leftover: leftover}
	if len(changed) == 0 {
		return res, nil
	}

	next := current.Clone()
	for name, entries := range changed {
		next.Components[name] = entries
	}
	next.Timestamp = p.now

	if err := next.Validate(); err != nil {
		return Result{}, fmt.Errorf("reallocation broke continuity: %w", err)
	}
	res.Assignment = &next
	return res, nil
}

type planner struct {
	support TopologySupport
	hosts   map[string]string
	now     int64
}

// component applies req to one component. It returns the new entries, the
// unsatisfied remainder and whether anything changed.
func (p *planner) component(name string, entries []streamcoord.TaskAssignment, req streamcoord.ParallelismChangeRequest) ([]streamcoord.TaskAssignment, streamcoord.ParallelismChangeRequest, bool) {
	var hostID string
	if req.Host != nil {
		id, ok := ResolveHost(p.hosts, *req.Host)
		if !ok {
			return nil, req, false
		}
		hostID = id
	}

	work := append([]streamcoord.TaskAssignment(nil), entries...)
	var rest streamcoord.ParallelismChangeRequest
	modified := false
	grew := false

	switch {
	case req.ExecutorDiff > 0:
		out, granted, err := p.grow(name, work, req)
		if err != nil {
			return nil, req, false
		}
		work = out
		grew = granted > 0
		modified = grew
		rest.ExecutorDiff = req.ExecutorDiff - granted

	case req.ExecutorDiff < 0:
		out, removed := p.shrink(work, -req.ExecutorDiff, hostID)
		work = out
		modified = removed > 0
		rest.ExecutorDiff = req.ExecutorDiff + removed
	}

	needsSplit := (req.Host != nil && !onHost(work, hostID)) || (req.OtherHostThanAssignment && !grew)
	if needsSplit {
		out, ok := p.split(work, req, hostID)
		if !ok {
			return nil, req, false
		}
		work = out
		modified = true
	}

	return work, rest, modified
}

func (p *planner) grow(name string, entries []streamcoord.TaskAssignment, req streamcoord.ParallelismChangeRequest) ([]streamcoord.TaskAssignment, int, error) {
	tasks := entries[len(entries)-1].EndTaskID
	size := tasks / len(entries)
	if size < 1 {
		size = 1
	}
	limit := p.support.MaxTasks(name)

	granted := 0
	for granted < req.ExecutorDiff {
		n := size
		if limit > 0 {
			room := limit - tasks
			if room <= 0 {
				break
			}
			if n > room {
				n = room
			}
		}

		slot, err := p.support.GetHostAssignment(entries[len(entries)-1], req)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, streamcoord.TaskAssignment{
			Component:   name,
			StartTaskID: tasks + 1,
			EndTaskID:   tasks + n,
			HostID:      slot.HostID,
			Port:        slot.Port,
			StartTime:   p.now,
		})
		tasks += n
		granted++
	}
	return entries, granted, nil
}

func (p *planner) shrink(entries []streamcoord.TaskAssignment, count int, keepHost string) ([]streamcoord.TaskAssignment, int) {
	if removable := len(entries) - 1; count > removable {
		count = removable
	}
	for i := 0; i < count; i++ {
		entries = p.remove(entries, victim(entries, keepHost))
	}
	return entries, count
}

// victim picks the highest range not on keepHost, or the highest range.
func victim(entries []streamcoord.TaskAssignment, keepHost string) int {
	if keepHost != "" {
		for i := len(entries) - 1; i >= 0; i-- {
			if entries[i].HostID != keepHost {
				return i
			}
		}
	}
	return len(entries) - 1
}

// remove drops entries[idx], handing its range to the lower neighbour (or the
// upper one for the first entry).
func (p *planner) remove(entries []streamcoord.TaskAssignment, idx int) []streamcoord.TaskAssignment {
	if idx > 0 {
		entries[idx-1].EndTaskID = entries[idx].EndTaskID
		entries[idx-1].StartTime = p.now
	} else {
		entries[1].StartTaskID = entries[0].StartTaskID
		entries[1].StartTime = p.now
	}
	return append(entries[:idx], entries[idx+1:]...)
}

// split halves the largest executor (ties go to the highest range) and moves
// the upper half to the resolved host.
func (p *planner) split(entries []streamcoord.TaskAssignment, req streamcoord.ParallelismChangeRequest, hostID string) ([]streamcoord.TaskAssignment, bool) {
	idx := -1
	for i, e := range entries {
		if e.Tasks() >= 2 && (idx < 0 || e.Tasks() >= entries[idx].Tasks()) {
			idx = i
		}
	}
	if idx < 0 {
		return nil, false
	}

	src := entries[idx]
	target, err := p.support.GetHostAssignment(src, req)
	if err != nil {
		return nil, false
	}
	if hostID != "" && target.HostID != hostID {
		return nil, false
	}
	if req.OtherHostThanAssignment && target.HostID == src.HostID {
		return nil, false
	}

	mid := src.StartTaskID + src.Tasks()/2 - 1
	lower := src
	lower.EndTaskID = mid
	upper := streamcoord.TaskAssignment{
		Component:   src.Component,
		StartTaskID: mid + 1,
		EndTaskID:   src.EndTaskID,
		HostID:      target.HostID,
		Port:        target.Port,
		StartTime:   p.now,
	}

	out := make([]streamcoord.TaskAssignment, 0, len(entries)+1)
	out = append(out, entries[:idx]...)
	out = append(out, lower, upper)
	out = append(out, entries[idx+1:]...)
	return out, true
}

func onHost(entries []streamcoord.TaskAssignment, hostID string) bool {
	for _, e := range entries {
		if e.HostID == hostID {
			return true
		}
	}
	return false
}

func sortedRequests(requests map[string]streamcoord.ParallelismChangeRequest) []string {
	names := make([]string, 0, len(requests))
	for name := range requests {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
