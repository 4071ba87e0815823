package borrows

import (
	"borrowgraph/internal/borrowlog"
	"borrowgraph/internal/ir"
)

// Join merges other into g at mergeBlock, coming from selfPred on g's side
// and otherPred on the other side: every edge present on either side is kept,
// conditioned on having arrived via its originating predecessor (spec.md
// §4.E join semantics: "union of edges, each still gated by the path that
// produced it"). Returns whether g changed.
func (g *BorrowsGraph) Join(r ir.Repacker, other *BorrowsGraph, selfPred, otherPred, mergeBlock ir.BlockID) bool {
	changed := false

	selfGate := PathCondition{From: selfPred, To: mergeBlock}
	otherGate := PathCondition{From: otherPred, To: mergeBlock}
	// mergeBlock is a loop header when it dominates one of its predecessors.
	loopHead := r.Dominates(mergeBlock, selfPred) || r.Dominates(mergeBlock, otherPred)

	for key, e := range g.edges {
		cp := *e
		if cp.Conditions.Insert(selfGate) {
			g.edges[key] = &cp
			changed = true
		}
	}

	for _, e := range other.Edges() {
		incoming := e
		incoming.Conditions = e.Conditions.Clone()
		incoming.Conditions.Insert(otherGate)

		if loopHead {
			if substituted, ok := g.substituteLoopAbstraction(r, incoming, mergeBlock); ok {
				incoming = substituted
			}
		}

		if g.Insert(incoming) {
			changed = true
		}
	}

	return changed
}

// substituteLoopAbstraction implements the loop-join narrowing from
// original_source/borrows_state.rs::join: at a loop header, an incoming
// abstraction edge whose summarized loans are not live past the join (per
// facts.LiveAtJoin) is replaced by a fresh LoopAbstraction edge over the
// same inputs/outputs rather than kept verbatim, collapsing per-iteration
// abstractions into one loop-level summary. Join calls it only when
// mergeBlock is a loop header. Reports ok=false (keep edge as-is) when the
// edge is not a function-call abstraction, or facts report a region live.
func (g *BorrowsGraph) substituteLoopAbstraction(r ir.Repacker, e BorrowsEdge, mergeBlock ir.BlockID) (BorrowsEdge, bool) {
	if e.Kind.Kind != EdgeAbstraction {
		return e, false
	}
	ae := e.Kind.Abstraction
	if ae.Type.Kind != FunctionCallAbstraction {
		return e, false
	}
	facts := r.LoanFacts()
	for _, arg := range ae.Type.ArgEdges {
		for _, in := range arg.Edge.Inputs {
			if !in.isRegion {
				continue
			}
			if facts.LiveAtJoin(regionOf(r, in.region), mergeBlock) {
				return e, false
			}
		}
	}
	var merged AbstractionBlockEdge
	for _, be := range ae.Type.edges() {
		merged.Inputs = append(merged.Inputs, be.Inputs...)
		merged.Outputs = append(merged.Outputs, be.Outputs...)
	}
	loop := NewLoopAbstraction(mergeBlock, merged)
	borrowlog.Graph().Debug("substituting loop abstraction at join", "block", mergeBlock.String(), "callee", ae.Type.CalleeID)
	return BorrowsEdge{Conditions: e.Conditions, Kind: KindAbstraction(AbstractionEdge{Type: loop})}, true
}

func regionOf(r ir.Repacker, rp RegionProjection) ir.RegionID {
	decl, ok := r.Type(r.TypeOf(rp.Place.Place))
	if !ok {
		return ir.NoRegion
	}
	// Index counts only valid regions, matching RegionProjections.
	idx := 0
	for _, region := range decl.Regions {
		if !region.IsValid() {
			continue
		}
		if idx == rp.Index {
			return region
		}
		idx++
	}
	return ir.NoRegion
}
