package command

import (
	"sort"

	"github.com/getpup/streamcoord"
)

// Composite is a command made of ordered children.
type Composite interface {
	Command

	// Children returns a copy of the child list.
	Children() []Command

	// KeepOrdering reports whether children must run in order and stop at the
	// first failure.
	KeepOrdering() bool
}

// Sequence executes its children in order and stops at the first failure.
type Sequence struct {
	children []Command
}

// Set executes all of its children regardless of individual outcomes.
type Set struct {
	children []Command
}

// NewSequence returns a Sequence builder holding the given children.
func NewSequence(children ...Command) *Sequence {
	return &Sequence{children: append([]Command(nil), children...)}
}

// NewSet returns a Set builder holding the given children.
func NewSet(children ...Command) *Set {
	return &Set{children: append([]Command(nil), children...)}
}

// Add appends a child while the sequence is being built.
func (s *Sequence) Add(c Command) *Sequence {
	s.children = append(s.children, c)
	return s
}

// Add appends a child while the set is being built.
func (s *Set) Add(c Command) *Set {
	s.children = append(s.children, c)
	return s
}

func (*Sequence) Kind() Kind { return KindSequence }
func (*Set) Kind() Kind      { return KindSet }

func (*Sequence) command() {}
func (*Set) command()      {}

func (s *Sequence) Children() []Command { return append([]Command(nil), s.children...) }
func (s *Set) Children() []Command      { return append([]Command(nil), s.children...) }

func (*Sequence) KeepOrdering() bool { return true }
func (*Set) KeepOrdering() bool      { return false }

// Len returns the number of direct children.
func (s *Sequence) Len() int { return len(s.children) }

// Len returns the number of direct children.
func (s *Set) Len() int { return len(s.children) }

// Simplify returns the canonical, minimal form of c, or nil when nothing
// executable remains. Leaves are returned unchanged. Composites are rebuilt
// with fresh child lists; a nested composite is merged into its parent only
// when both are of the same kind.
func Simplify(c Command) Command {
	comp, ok := c.(Composite)
	if !ok {
		return c
	}

	var flat []Command
	for _, child := range comp.Children() {
		simple := Simplify(child)
		if simple == nil {
			continue
		}
		if nested, ok := simple.(Composite); ok && nested.Kind() == comp.Kind() {
			flat = append(flat, nested.Children()...)
			continue
		}
		flat = append(flat, simple)
	}

	switch len(flat) {
	case 0:
		return nil
	case 1:
		return flat[0]
	}
	if comp.KeepOrdering() {
		return &Sequence{children: flat}
	}
	return &Set{children: flat}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortPipelines(names []streamcoord.PipelineName) {
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
}
