package borrows

import (
	"fmt"
	"sort"

	"borrowgraph/internal/ir"
)

// AbstractionInputTarget is either a concrete (possibly remote) place or a
// region projection feeding an abstraction.
type AbstractionInputTarget struct {
	isRegion bool
	place    MaybeRemotePlace
	region   RegionProjection
}

// InputPlace builds an input target from a concrete place.
func InputPlace(p MaybeRemotePlace) AbstractionInputTarget {
	return AbstractionInputTarget{place: p}
}

// InputRegion builds an input target from a region projection.
func InputRegion(rp RegionProjection) AbstractionInputTarget {
	return AbstractionInputTarget{isRegion: true, region: rp}
}

func (t AbstractionInputTarget) key() string {
	if t.isRegion {
		return "rp:" + t.region.key()
	}
	return "pl:" + t.place.key()
}

// AsPlace returns the concrete place and true, if this target is one.
func (t AbstractionInputTarget) AsPlace() (MaybeRemotePlace, bool) {
	if t.isRegion {
		return MaybeRemotePlace{}, false
	}
	return t.place, true
}

// AsRegion returns the region projection and true, if this target is one.
func (t AbstractionInputTarget) AsRegion() (RegionProjection, bool) {
	if !t.isRegion {
		return RegionProjection{}, false
	}
	return t.region, true
}

// AbstractionOutputTarget is either a concrete (possibly old) place or a
// region projection produced by an abstraction.
type AbstractionOutputTarget struct {
	isRegion bool
	place    MaybeOldPlace
	region   RegionProjection
}

// OutputPlace builds an output target from a concrete place.
func OutputPlace(p MaybeOldPlace) AbstractionOutputTarget {
	return AbstractionOutputTarget{place: p}
}

// OutputRegion builds an output target from a region projection.
func OutputRegion(rp RegionProjection) AbstractionOutputTarget {
	return AbstractionOutputTarget{isRegion: true, region: rp}
}

func (t AbstractionOutputTarget) key() string {
	if t.isRegion {
		return "rp:" + t.region.key()
	}
	return "pl:" + t.place.key()
}

// AsPlace returns the concrete place and true, if this target is one.
func (t AbstractionOutputTarget) AsPlace() (MaybeOldPlace, bool) {
	if t.isRegion {
		return MaybeOldPlace{}, false
	}
	return t.place, true
}

// AsRegion returns the region projection and true, if this target is one.
func (t AbstractionOutputTarget) AsRegion() (RegionProjection, bool) {
	if !t.isRegion {
		return RegionProjection{}, false
	}
	return t.region, true
}

// AbstractionBlockEdge is an opaque many-to-many dependency inside a
// function call or loop.
type AbstractionBlockEdge struct {
	Inputs  []AbstractionInputTarget
	Outputs []AbstractionOutputTarget
}

func (e AbstractionBlockEdge) key() string {
	ins := make([]string, 0, len(e.Inputs))
	for _, i := range e.Inputs {
		ins = append(ins, i.key())
	}
	outs := make([]string, 0, len(e.Outputs))
	for _, o := range e.Outputs {
		outs = append(outs, o.key())
	}
	sort.Strings(ins)
	sort.Strings(outs)
	return fmt.Sprintf("in(%v)out(%v)", ins, outs)
}

// AbstractionKind distinguishes a function-call abstraction from a
// loop-header abstraction.
type AbstractionKind uint8

const (
	FunctionCallAbstraction AbstractionKind = iota
	LoopAbstraction
)

// ArgEdge pairs a FunctionCall's argument index with its block edge.
type ArgEdge struct {
	ArgIndex int
	Edge     AbstractionBlockEdge
}

// AbstractionType is the FunctionCall | Loop sum type from spec.md §3.
type AbstractionType struct {
	Kind     AbstractionKind
	Location ir.Location

	// FunctionCall fields.
	CalleeID ir.FuncID
	TypeArgs []ir.TypeID
	ArgEdges []ArgEdge

	// Loop fields.
	LoopBlock ir.BlockID
	LoopEdge  AbstractionBlockEdge
}

// NewFunctionCallAbstraction builds a FunctionCall abstraction type. It
// panics if edges is empty, per the invariant in spec.md §3 ("every
// FunctionCall abstraction has >=1 edge").
func NewFunctionCallAbstraction(location ir.Location, callee ir.FuncID, typeArgs []ir.TypeID, edges []ArgEdge) AbstractionType {
	if len(edges) == 0 {
		panic(Fault{Invariant: "FunctionCall abstraction must have at least one edge", Detail: location.String()})
	}
	return AbstractionType{
		Kind:     FunctionCallAbstraction,
		Location: location,
		CalleeID: callee,
		TypeArgs: append([]ir.TypeID(nil), typeArgs...),
		ArgEdges: append([]ArgEdge(nil), edges...),
	}
}

// NewLoopAbstraction builds a Loop abstraction type.
func NewLoopAbstraction(block ir.BlockID, edge AbstractionBlockEdge) AbstractionType {
	return AbstractionType{Kind: LoopAbstraction, Location: ir.Location{Block: block}, LoopBlock: block, LoopEdge: edge}
}

func (t AbstractionType) edges() []AbstractionBlockEdge {
	if t.Kind == LoopAbstraction {
		return []AbstractionBlockEdge{t.LoopEdge}
	}
	out := make([]AbstractionBlockEdge, 0, len(t.ArgEdges))
	for _, ae := range t.ArgEdges {
		out = append(out, ae.Edge)
	}
	return out
}

// referencesRegion reports whether any input or output target across t's
// block edges is a region projection resolving to region.
func (t AbstractionType) referencesRegion(r ir.Repacker, region ir.RegionID) bool {
	for _, e := range t.edges() {
		for _, in := range e.Inputs {
			if rp, ok := in.AsRegion(); ok && regionOf(r, rp) == region {
				return true
			}
		}
		for _, o := range e.Outputs {
			if rp, ok := o.AsRegion(); ok && regionOf(r, rp) == region {
				return true
			}
		}
	}
	return false
}

func (t AbstractionType) key() string {
	edges := t.edges()
	parts := make([]string, 0, len(edges))
	for _, e := range edges {
		parts = append(parts, e.key())
	}
	sort.Strings(parts)
	if t.Kind == LoopAbstraction {
		return fmt.Sprintf("loop[%s]%v", t.LoopBlock, parts)
	}
	return fmt.Sprintf("call[%d@%s]%v", t.CalleeID, t.Location, parts)
}

// AbstractionEdge is an opaque summary of many-to-many place dependencies
// introduced by a function call or loop.
type AbstractionEdge struct {
	Type AbstractionType
}

// Location returns the abstraction's defining location.
func (ae AbstractionEdge) Location() ir.Location { return ae.Type.Location }

func (ae AbstractionEdge) key() string { return "abstraction[" + ae.Type.key() + "]" }
