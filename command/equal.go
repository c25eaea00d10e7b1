package command

import (
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

var leafOptions = []cmp.Option{cmpopts.EquateEmpty()}

// Equal reports whether a and b are equal by content. Leaves compare all of
// their fields (nil and empty maps are equal). Sequences compare children as
// ordered lists, Sets as multisets. A nil command only equals nil.
func Equal(a, b Command) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Kind() != b.Kind() {
		return false
	}

	ca, aComposite := a.(Composite)
	cb, bComposite := b.(Composite)
	if aComposite != bComposite {
		return false
	}
	if !aComposite {
		return cmp.Equal(a, b, leafOptions...)
	}

	left, right := ca.Children(), cb.Children()
	if len(left) != len(right) {
		return false
	}
	if ca.KeepOrdering() {
		for i := range left {
			if !Equal(left[i], right[i]) {
				return false
			}
		}
		return true
	}

	used := make([]bool, len(right))
	for _, l := range left {
		found := false
		for j, r := range right {
			if !used[j] && Equal(l, r) {
				used[j] = true
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
