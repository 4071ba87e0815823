package borrows

import "borrowgraph/internal/ir"

// PathCondition is a required basic-block transition: an edge's facts only
// apply along control-flow paths that traverse From -> To.
type PathCondition struct {
	From, To ir.BlockID
}

func (pc PathCondition) String() string {
	return pc.From.String() + "->" + pc.To.String()
}

// PathConditions is a set of path conditions. The empty set is
// unconditional: it is valid for every path.
type PathConditions struct {
	set map[PathCondition]struct{}
}

// NewPathConditions builds an empty (unconditional) set. A fresh edge
// starts unconditional and its conditions accrue from Join and
// AddPathCondition.
func NewPathConditions() PathConditions {
	return PathConditions{set: make(map[PathCondition]struct{})}
}

// Clone returns an independent copy.
func (pcs PathConditions) Clone() PathConditions {
	out := NewPathConditions()
	for pc := range pcs.set {
		out.set[pc] = struct{}{}
	}
	return out
}

// Insert adds pc to the set, returning whether the set grew.
func (pcs *PathConditions) Insert(pc PathCondition) bool {
	if pcs.set == nil {
		pcs.set = make(map[PathCondition]struct{})
	}
	if _, ok := pcs.set[pc]; ok {
		return false
	}
	pcs.set[pc] = struct{}{}
	return true
}

// IsEmpty reports whether the set carries no conditions (unconditional).
func (pcs PathConditions) IsEmpty() bool { return len(pcs.set) == 0 }

// Len reports the number of conditions in the set.
func (pcs PathConditions) Len() int { return len(pcs.set) }

// Conditions returns the conditions in the set in unspecified order.
func (pcs PathConditions) Conditions() []PathCondition {
	out := make([]PathCondition, 0, len(pcs.set))
	for pc := range pcs.set {
		out = append(out, pc)
	}
	return out
}

// ValidForPath reports whether every transition required by the condition
// set is realized by the given linear basic-block sequence. An empty
// condition set is vacuously valid for any path.
func (pcs PathConditions) ValidForPath(path []ir.BlockID) bool {
	for pc := range pcs.set {
		if !pathContainsEdge(path, pc) {
			return false
		}
	}
	return true
}

func pathContainsEdge(path []ir.BlockID, pc PathCondition) bool {
	for i := 0; i+1 < len(path); i++ {
		if path[i] == pc.From && path[i+1] == pc.To {
			return true
		}
	}
	return false
}

// Join returns the set-union of pcs and other; neither input is mutated.
func (pcs PathConditions) Join(other PathConditions) PathConditions {
	out := pcs.Clone()
	for pc := range other.set {
		out.set[pc] = struct{}{}
	}
	return out
}

// Equal reports whether two condition sets contain exactly the same
// conditions.
func (pcs PathConditions) Equal(other PathConditions) bool {
	if len(pcs.set) != len(other.set) {
		return false
	}
	for pc := range pcs.set {
		if _, ok := other.set[pc]; !ok {
			return false
		}
	}
	return true
}
