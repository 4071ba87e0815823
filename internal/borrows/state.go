package borrows

import "borrowgraph/internal/ir"

// BorrowsState is the per-program-point facade: a borrows graph plus the
// Latest map needed to resolve fresh snapshots when places are overwritten
// (spec.md §4.G). All engine-visible mutation flows through this type; the
// graph and Latest map are not exported for direct mutation so invariants
// stay centralized.
type BorrowsState struct {
	graph  *BorrowsGraph
	latest *Latest
}

// NewBorrowsState builds an empty state.
func NewBorrowsState() *BorrowsState {
	return &BorrowsState{graph: NewBorrowsGraph(), latest: NewLatest()}
}

// Graph exposes the underlying graph for read-only queries.
func (s *BorrowsState) Graph() *BorrowsGraph { return s.graph }

// Latest exposes the underlying Latest map for read-only queries.
func (s *BorrowsState) Latest() *Latest { return s.latest }

// Clone returns an independent deep-enough copy.
func (s *BorrowsState) Clone() *BorrowsState {
	return &BorrowsState{graph: s.graph.Clone(), latest: s.latest.Clone()}
}

// SetLatest records loc as the most recent write location for place.Local.
func (s *BorrowsState) SetLatest(place ir.Place, loc SnapshotLocation) {
	s.latest.Insert(place.Local, loc)
}

// GetLatest returns the most recent write location recorded for place.
func (s *BorrowsState) GetLatest(place ir.Place) SnapshotLocation {
	return s.latest.Get(place)
}

// MakePlaceOld snapshots every current edge occurrence prefixed by place
// (the place being overwritten) to Old, anchored at the currently recorded
// Latest location, then records loc as the new Latest for place.Local. This
// is the state-level wrapper spec.md §4.G calls "make_old": it must run
// before SetLatest is updated to the new location, or the snapshot would be
// anchored at the write that is about to happen instead of the write before
// it.
func (s *BorrowsState) MakePlaceOld(r ir.Repacker, place ir.Place, loc SnapshotLocation) bool {
	changed := s.graph.MakePlaceOld(r, place, s.latest)
	s.latest.Insert(place.Local, loc)
	return changed
}

// AddReborrow records a new Reborrow edge at the current path conditions.
func (s *BorrowsState) AddReborrow(rb Reborrow) bool {
	return s.graph.AddReborrow(rb, NewPathConditions())
}

// AddRegionAbstraction records a new function-call or loop abstraction
// summary.
func (s *BorrowsState) AddRegionAbstraction(ae AbstractionEdge) bool {
	return s.graph.AddAbstractionEdge(ae, NewPathConditions())
}

// AddRegionProjectionMember records a new region-projection membership
// edge.
func (s *BorrowsState) AddRegionProjectionMember(m RegionProjectionMember) bool {
	return s.graph.AddRegionProjectionMember(m, NewPathConditions())
}

// EnsureDerefExpansionsToFPCS materializes every DerefExpansion edge
// required to make target's full path explicit down to its "functional
// projection closure set" (spec.md's term for the deepest set of sibling
// places the capability summary needs distinguished), with one
// EnsureDerefExpansionToAtLeast call for target. This is pure growth: it
// never removes an edge, unlike EnsureDerefExpansionToExactly.
func (s *BorrowsState) EnsureDerefExpansionsToFPCS(r ir.Repacker, target MaybeOldPlace, loc ir.Location) bool {
	return s.graph.EnsureDerefExpansionToAtLeast(r, target, loc)
}

// EnsureDerefExpansionToExactly makes target's expansion frontier exact
// instead of merely "at least": spec.md §4.G's ensure_expansion_to_exactly
// contraction step. It introduces the RegionProjectionMember edges
// describing target's own region projections, unblocks anything currently
// blocking a place strictly deeper than target under the same local, then
// re-grows the expansion back down to target.
func (s *BorrowsState) EnsureDerefExpansionToExactly(r ir.Repacker, target MaybeOldPlace, loc ir.Location) bool {
	changed := false

	for _, rp := range RegionProjections(r, target) {
		m := RegionProjectionMember{
			Place:      LocalMRP(target),
			Projection: rp,
			Location:   loc,
			Direction:  PlaceIsRegionOutput,
		}
		if s.graph.AddRegionProjectionMember(m, NewPathConditions()) {
			changed = true
		}
	}

	var deeper []MaybeRemotePlace
	for _, e := range s.graph.Edges() {
		for _, blocked := range e.Kind.BlockedPlaces() {
			local, ok := blocked.AsLocal()
			if !ok || local.Place.Local != target.Place.Local || !local.IsCurrent() {
				continue
			}
			if local.Place != target.Place && IsPlacePrefix(r, target.Place, local.Place) {
				deeper = append(deeper, blocked)
			}
		}
	}
	if len(deeper) > 0 {
		ug := NewUnblockGraph(r, s.graph, deeper)
		if len(ug.Actions()) > 0 {
			changed = true
		}
		s.ApplyUnblockGraph(r, ug, AtLocation(loc))
	}

	if s.graph.EnsureDerefExpansionToAtLeast(r, target, loc) {
		changed = true
	}
	return changed
}

// Roots returns the places ultimately owning the graph's borrowed content.
func (s *BorrowsState) Roots(r ir.Repacker) []MaybeOldPlace {
	return s.graph.Roots(r)
}

// GetPlaceBlocking returns the place (if any) whose contents block place,
// when that question has a single well-defined answer: exactly one edge
// blocks place and it is a Reborrow (its assigned place blocks the
// borrowed-from place). When several edges block place, or the single
// blocking edge is of another kind, it returns the zero MaybeOldPlace and
// false. This narrows an open question in the system this engine is
// modeled on, which leaves the other cases unimplemented — see DESIGN.md.
func (s *BorrowsState) GetPlaceBlocking(place MaybeRemotePlace) (MaybeOldPlace, bool) {
	edges := s.graph.EdgesBlocking(place)
	if len(edges) != 1 || edges[0].Kind.Kind != EdgeReborrow {
		return MaybeOldPlace{}, false
	}
	return edges[0].Kind.Reborrow.Assigned, true
}

// GetAbstractionsBlocking returns every Abstraction edge that blocks place.
func (s *BorrowsState) GetAbstractionsBlocking(place MaybeRemotePlace) []AbstractionEdge {
	return s.graph.GetAbstractionsBlocking(place)
}

// RegionAbstractions returns every Abstraction edge referencing region,
// used by loop-join substitution and by callers inspecting what summary an
// incoming reference's lifetime is captured by.
func (s *BorrowsState) RegionAbstractions(r ir.Repacker, region ir.RegionID) []AbstractionEdge {
	return s.graph.RegionAbstractions(r, region)
}

// ReborrowsBlockedBy returns every Reborrow whose borrowed-from place is
// place.
func (s *BorrowsState) ReborrowsBlockedBy(place MaybeOldPlace) []Reborrow {
	return s.graph.ReborrowsBlockedBy(place)
}

// ReborrowsAssignedTo returns every Reborrow assigned to place.
func (s *BorrowsState) ReborrowsAssignedTo(place MaybeOldPlace) []Reborrow {
	return s.graph.ReborrowsAssignedTo(place)
}

// KillReborrows removes every Reborrow edge assigned to place, reporting
// the removed edges. Used when a reference's lexical scope ends and its
// capability reverts to whatever it was borrowed from.
func (s *BorrowsState) KillReborrows(place MaybeOldPlace) []Reborrow {
	var killed []Reborrow
	for _, rb := range s.graph.ReborrowsAssignedTo(place) {
		s.graph.Remove(KindReborrow(rb))
		killed = append(killed, rb)
	}
	return killed
}

// ApplyUnblockGraph runs every action an UnblockGraph scheduled, in the
// order it scheduled them, per each action kind's spec.md §4.G semantics:
// TerminateReborrow removes the reborrow and, unless it is shared, records
// loc as Latest for its current blocked-by places (RemoveEdgeAndSetLatest);
// Collapse deletes the
// expansion's descendants before dropping the expansion edge itself
// (DeleteDescendantsOf); TerminateAbstraction removes the abstraction
// recorded at the edge's location.
func (s *BorrowsState) ApplyUnblockGraph(r ir.Repacker, ug *UnblockGraph, loc SnapshotLocation) {
	for _, action := range ug.Actions() {
		switch action.Kind {
		case TerminateReborrow:
			s.RemoveEdgeAndSetLatest(r, action.Edge.Kind, loc)
		case Collapse:
			s.graph.DeleteDescendantsOf(r, action.Edge.Kind.DerefExpansion)
			s.graph.Remove(action.Edge.Kind)
		case TerminateAbstraction:
			s.graph.RemoveAbstractionAt(action.Edge.Kind.Abstraction.Location())
		default:
			s.graph.Remove(action.Edge.Kind)
		}
	}
}

// Minimize removes structurally redundant edges, to a fixpoint (spec.md
// §4.G): edges whose every blocked-by place is Old and not itself blocked
// by anything else (they can no longer affect the live graph), and
// non-owned BorrowExpansion edges whose materialized children are no
// longer blocked by anything (the expansion now serves no teardown
// purpose). This is the housekeeping pass spec.md §4.G calls after a
// bridge, to keep the graph from growing without bound across a
// long-lived analysis.
func (s *BorrowsState) Minimize(r ir.Repacker) bool {
	changed := false
	for {
		progressed := false
		for _, e := range s.graph.Edges() {
			if !s.graph.HasEdge(e.Kind) {
				continue // already removed earlier in this pass
			}

			blockedBy := e.Kind.BlockedByPlaces(r)
			allOldUnblocked := len(blockedBy) > 0
			for _, by := range blockedBy {
				if by.IsCurrent() || s.graph.HasEdgeBlocking(LocalMRP(by)) {
					allOldUnblocked = false
					break
				}
			}
			if allOldUnblocked {
				if _, ok := s.graph.Remove(e.Kind); ok {
					progressed = true
					continue
				}
			}

			if e.Kind.Kind == EdgeDerefExpansion && e.Kind.DerefExpansion.Kind == BorrowExpansion {
				noChildBlockers := true
				for _, child := range e.Kind.DerefExpansion.expansionPlaces(r) {
					if s.graph.HasEdgeBlocking(LocalMRP(child)) {
						noChildBlockers = false
						break
					}
				}
				if noChildBlockers {
					if _, ok := s.graph.Remove(e.Kind); ok {
						progressed = true
					}
				}
			}
		}
		if !progressed {
			break
		}
		changed = true
	}
	return changed
}

// TrimOldLeaves removes Old-snapshot leaf edges that have become
// unreachable from any root: once nothing in the graph still refers to a
// frozen snapshot, it is dead weight.
func (s *BorrowsState) TrimOldLeaves(r ir.Repacker) bool {
	changed := false
	for _, e := range s.graph.LeafEdges(r) {
		allOld := true
		for _, by := range e.Kind.BlockedByPlaces(r) {
			if by.IsCurrent() {
				allOld = false
				break
			}
		}
		if !allOld {
			continue
		}
		if hasLiveDependent(r, s.graph, e) {
			continue
		}
		if _, ok := s.graph.Remove(e.Kind); ok {
			changed = true
		}
	}
	return changed
}

func hasLiveDependent(r ir.Repacker, g *BorrowsGraph, e BorrowsEdge) bool {
	for _, blocked := range e.Kind.BlockedPlaces() {
		for _, other := range g.EdgesBlocking(blocked) {
			if other.Kind.key() != e.Kind.key() {
				return true
			}
		}
	}
	return false
}

// RemoveEdgeAndSetLatest removes the edge with this kind's key and, unless
// it is a shared borrow, records loc as the new Latest for every current
// place it is blocked by (spec.md §4.G): once the edge's blockage is torn
// down, later reads of the place that was holding it should be understood
// relative to the teardown, not to whatever write last touched it. Shared
// borrows are exempt since they never gave up write access to begin with.
func (s *BorrowsState) RemoveEdgeAndSetLatest(r ir.Repacker, kind BorrowsEdgeKind, loc SnapshotLocation) (BorrowsEdge, bool) {
	e, ok := s.graph.Remove(kind)
	if !ok {
		return BorrowsEdge{}, false
	}
	if e.IsSharedBorrow() {
		return e, true
	}
	for _, by := range e.Kind.BlockedByPlaces(r) {
		if !by.IsCurrent() {
			continue
		}
		s.latest.Insert(by.Place.Local, loc)
	}
	return e, true
}

// Join merges other into s at mergeBlock, arriving via selfPred on s's side
// and otherPred on other's. Returns whether s's graph changed; Latest
// rewrites are applied but not reported (see Latest.Join).
func (s *BorrowsState) Join(r ir.Repacker, other *BorrowsState, selfPred, otherPred, mergeBlock ir.BlockID) bool {
	graphChanged := s.graph.Join(r, other.graph, selfPred, otherPred, mergeBlock)
	latestChanged := s.latest.Join(other.latest, mergeBlock)
	return graphChanged || latestChanged
}

// ReborrowBridge is the result of BorrowsState.Bridge (spec.md §4.G
// "bridge"): what target has that s lacked (to be re-derived by whatever is
// driving the engine, since re-adding a reborrow may need a fresh local
// allocated in s's own frame) and the teardown already applied to s for
// whatever it held that target does not.
type ReborrowBridge struct {
	// AddedReborrows are target's reborrows whose reserve location is
	// absent from s.
	AddedReborrows []Reborrow
	// Expands are target's DerefExpansion edges absent from s.
	Expands []DerefExpansion
	// UnblockGraph is the plan (already applied to s) that killed s's
	// reborrows and abstractions absent from target, and unblocked the
	// base of every DerefExpansion s had that target lacks.
	UnblockGraph *UnblockGraph
}

// Bridge reconciles s (the state at a reborrow/call's start) with target
// (the state expected at a later program point, e.g. a successor block's
// recorded entry state), per spec.md §4.G: it kills every self-reborrow and
// abstraction target does not have, unblocks the base of every
// DerefExpansion s has that target lacks, applies that teardown to s in
// place, and reports what target has that s would still need to
// (re-)derive to fully match it. This reconciles two states reached along
// different paths to the same place, rather than joining them.
func (s *BorrowsState) Bridge(r ir.Repacker, target *BorrowsState, loc SnapshotLocation) ReborrowBridge {
	var addedReborrows []Reborrow
	for _, rb := range target.graph.Reborrows() {
		if !s.graph.HasReborrowAtLocation(rb.ReserveLocation) {
			addedReborrows = append(addedReborrows, rb)
		}
	}

	var expands []DerefExpansion
	for _, de := range target.graph.DerefExpansions() {
		if !s.graph.HasEdge(KindDerefExpansion(de)) {
			expands = append(expands, de)
		}
	}

	var extraBases []MaybeRemotePlace
	for _, de := range s.graph.DerefExpansions() {
		if !target.graph.HasEdge(KindDerefExpansion(de)) {
			extraBases = append(extraBases, LocalMRP(de.Base))
		}
	}
	ug := NewUnblockGraph(r, s.graph, extraBases)

	for _, rb := range s.graph.Reborrows() {
		if target.graph.HasReborrowAtLocation(rb.ReserveLocation) {
			continue
		}
		kind := KindReborrow(rb)
		if !ug.hasAction(kind) {
			ug.KillReborrow(BorrowsEdge{Kind: kind})
		}
	}

	for _, ae := range s.graph.AbstractionEdges() {
		if target.graph.HasAbstractionAt(ae.Location()) {
			continue
		}
		kind := KindAbstraction(ae)
		if !ug.hasAction(kind) {
			ug.KillAbstraction(BorrowsEdge{Kind: kind})
		}
	}

	s.ApplyUnblockGraph(r, ug, loc)

	return ReborrowBridge{AddedReborrows: addedReborrows, Expands: expands, UnblockGraph: ug}
}
