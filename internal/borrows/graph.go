package borrows

import (
	"sort"

	"borrowgraph/internal/ir"
)

// BorrowsGraph is the content-addressed set of conditioned edges tracked at
// one program point. Edges are keyed by their kind's structural content
// (graph insertion is idempotent on kind, independent of path conditions),
// since several edge kinds embed slices and are not natively comparable in
// Go (spec.md §9, "edges are sets keyed by structural equality").
type BorrowsGraph struct {
	edges map[string]*BorrowsEdge
}

// NewBorrowsGraph builds an empty graph.
func NewBorrowsGraph() *BorrowsGraph {
	return &BorrowsGraph{edges: make(map[string]*BorrowsEdge)}
}

// Clone returns an independent deep-enough copy: edge values are copied,
// their internal slices are not aliased across clones.
func (g *BorrowsGraph) Clone() *BorrowsGraph {
	out := NewBorrowsGraph()
	for k, e := range g.edges {
		cp := *e
		cp.Conditions = e.Conditions.Clone()
		cp.Kind.DerefExpansion.Expansion = append([]ir.ProjElem(nil), e.Kind.DerefExpansion.Expansion...)
		at := &cp.Kind.Abstraction.Type
		at.TypeArgs = append([]ir.TypeID(nil), at.TypeArgs...)
		at.ArgEdges = append([]ArgEdge(nil), at.ArgEdges...)
		for _, be := range at.mutEdges() {
			be.Inputs = append([]AbstractionInputTarget(nil), be.Inputs...)
			be.Outputs = append([]AbstractionOutputTarget(nil), be.Outputs...)
		}
		out.edges[k] = &cp
	}
	return out
}

// Insert adds edge to the graph. If an edge with the same kind is already
// present, their path conditions are unioned (spec.md §4.E: re-deriving an
// already-known edge along a new path widens, rather than duplicates, it).
// Returns whether the graph changed.
func (g *BorrowsGraph) Insert(edge BorrowsEdge) bool {
	key := edge.Kind.key()
	if existing, ok := g.edges[key]; ok {
		joined := existing.Conditions.Join(edge.Conditions)
		if joined.Equal(existing.Conditions) {
			return false
		}
		existing.Conditions = joined
		return true
	}
	cp := edge
	cp.Conditions = edge.Conditions.Clone()
	g.edges[key] = &cp
	return true
}

// Remove deletes the edge with this kind's key, reporting whether it was
// present.
func (g *BorrowsGraph) Remove(kind BorrowsEdgeKind) (BorrowsEdge, bool) {
	key := kind.key()
	e, ok := g.edges[key]
	if !ok {
		return BorrowsEdge{}, false
	}
	delete(g.edges, key)
	return *e, true
}

// HasEdge reports whether an edge with this kind's key is present.
func (g *BorrowsGraph) HasEdge(kind BorrowsEdgeKind) bool {
	_, ok := g.edges[kind.key()]
	return ok
}

// Edges returns all edges in the graph in a deterministic (key-sorted)
// order, so callers (and tests) get stable iteration.
func (g *BorrowsGraph) Edges() []BorrowsEdge {
	keys := make([]string, 0, len(g.edges))
	for k := range g.edges {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]BorrowsEdge, 0, len(keys))
	for _, k := range keys {
		out = append(out, *g.edges[k])
	}
	return out
}

// Len reports the number of edges in the graph.
func (g *BorrowsGraph) Len() int { return len(g.edges) }

// EdgesBlocking returns every edge that blocks place.
func (g *BorrowsGraph) EdgesBlocking(place MaybeRemotePlace) []BorrowsEdge {
	var out []BorrowsEdge
	for _, e := range g.Edges() {
		if e.BlocksPlace(place) {
			out = append(out, e)
		}
	}
	return out
}

// HasEdgeBlocking reports whether any edge blocks place.
func (g *BorrowsGraph) HasEdgeBlocking(place MaybeRemotePlace) bool {
	for _, e := range g.Edges() {
		if e.BlocksPlace(place) {
			return true
		}
	}
	return false
}

// EdgesBlockedBy returns every edge for which place holds the blockage.
func (g *BorrowsGraph) EdgesBlockedBy(r ir.Repacker, place MaybeOldPlace) []BorrowsEdge {
	var out []BorrowsEdge
	for _, e := range g.Edges() {
		if e.IsBlockedByPlace(r, place) {
			out = append(out, e)
		}
	}
	return out
}

// LeafEdges returns the edges whose blocked-by places are not, themselves,
// blocked by any other edge in the graph: the tips of the graph, which
// TrimOldLeaves scans.
func (g *BorrowsGraph) LeafEdges(r ir.Repacker) []BorrowsEdge {
	var out []BorrowsEdge
	for _, e := range g.Edges() {
		leaf := true
		for _, by := range e.Kind.BlockedByPlaces(r) {
			if g.HasEdgeBlocking(LocalMRP(by)) {
				leaf = false
				break
			}
		}
		if leaf {
			out = append(out, e)
		}
	}
	return out
}

// Roots returns the places some edge blocks that are not, themselves, the
// blocked-by place of any edge: the ultimate owners of the graph's borrowed
// content. Only local places are returned; remote origins are not included.
func (g *BorrowsGraph) Roots(r ir.Repacker) []MaybeOldPlace {
	seen := make(map[string]struct{})
	var out []MaybeOldPlace
	for _, e := range g.Edges() {
		for _, blocked := range e.Kind.BlockedPlaces() {
			place, ok := blocked.AsLocal()
			if !ok || len(g.EdgesBlockedBy(r, place)) > 0 {
				continue
			}
			if _, ok := seen[place.key()]; ok {
				continue
			}
			seen[place.key()] = struct{}{}
			out = append(out, place)
		}
	}
	return out
}

// Reborrows returns every Reborrow edge in the graph.
func (g *BorrowsGraph) Reborrows() []Reborrow {
	var out []Reborrow
	for _, e := range g.Edges() {
		if e.Kind.Kind == EdgeReborrow {
			out = append(out, e.Kind.Reborrow)
		}
	}
	return out
}

// DerefExpansions returns every DerefExpansion edge in the graph.
func (g *BorrowsGraph) DerefExpansions() []DerefExpansion {
	var out []DerefExpansion
	for _, e := range g.Edges() {
		if e.Kind.Kind == EdgeDerefExpansion {
			out = append(out, e.Kind.DerefExpansion)
		}
	}
	return out
}

// AbstractionEdges returns every Abstraction edge in the graph.
func (g *BorrowsGraph) AbstractionEdges() []AbstractionEdge {
	var out []AbstractionEdge
	for _, e := range g.Edges() {
		if e.Kind.Kind == EdgeAbstraction {
			out = append(out, e.Kind.Abstraction)
		}
	}
	return out
}

// ReborrowsBlockedBy returns every Reborrow whose Blocked place matches
// place.
func (g *BorrowsGraph) ReborrowsBlockedBy(place MaybeOldPlace) []Reborrow {
	var out []Reborrow
	for _, rb := range g.Reborrows() {
		if rb.Blocked.key() == LocalMRP(place).key() {
			out = append(out, rb)
		}
	}
	return out
}

// ReborrowsAssignedTo returns every Reborrow whose Assigned place matches
// place.
func (g *BorrowsGraph) ReborrowsAssignedTo(place MaybeOldPlace) []Reborrow {
	var out []Reborrow
	for _, rb := range g.Reborrows() {
		if rb.Assigned.key() == place.key() {
			out = append(out, rb)
		}
	}
	return out
}

// AddReborrow inserts a Reborrow edge unconditionally, returning whether the
// graph changed.
func (g *BorrowsGraph) AddReborrow(rb Reborrow, conds PathConditions) bool {
	return g.Insert(BorrowsEdge{Conditions: conds, Kind: KindReborrow(rb)})
}

// HasReborrowAtLocation reports whether a Reborrow with this reserve
// location is already present; Bridge uses it to match reborrows across
// two states by the statement that created them.
func (g *BorrowsGraph) HasReborrowAtLocation(loc ir.Location) bool {
	for _, rb := range g.Reborrows() {
		if rb.ReserveLocation == loc {
			return true
		}
	}
	return false
}

// EnsureDerefExpansionToAtLeast makes sure every ancestor of target is
// tracked by a DerefExpansion edge, walking from target up to its bare
// local one projection element at a time: an owned ancestor gets an
// OwnedExpansion, a non-owned ancestor with no expansion yet gets a
// BorrowExpansion listing the child on target's path. It only adds edges.
func (g *BorrowsGraph) EnsureDerefExpansionToAtLeast(r ir.Repacker, target MaybeOldPlace, loc ir.Location) bool {
	changed := false
	cur := target
	for {
		prefix, ok := cur.PrefixPlace(r)
		if !ok {
			break
		}
		if IsOwned(r, prefix.Place) {
			de := NewOwnedExpansion(prefix)
			if g.Insert(BorrowsEdge{Conditions: NewPathConditions(), Kind: KindDerefExpansion(de)}) {
				changed = true
			}
		} else if !g.hasExpansionOf(prefix) {
			de := NewBorrowExpansion(r, prefix, []ir.Place{cur.Place}, loc)
			if g.Insert(BorrowsEdge{Conditions: NewPathConditions(), Kind: KindDerefExpansion(de)}) {
				changed = true
			}
		}
		cur = prefix
	}
	return changed
}

func (g *BorrowsGraph) hasExpansionOf(base MaybeOldPlace) bool {
	for _, de := range g.DerefExpansions() {
		if de.Base.key() == base.key() {
			return true
		}
	}
	return false
}

// RemoveAbstractionAt removes the abstraction edge defined at loc, if any.
func (g *BorrowsGraph) RemoveAbstractionAt(loc ir.Location) (AbstractionEdge, bool) {
	for _, e := range g.Edges() {
		if e.Kind.Kind == EdgeAbstraction && e.Kind.Abstraction.Location() == loc {
			g.Remove(e.Kind)
			return e.Kind.Abstraction, true
		}
	}
	return AbstractionEdge{}, false
}

// HasAbstractionAt reports whether an abstraction edge is defined at loc.
func (g *BorrowsGraph) HasAbstractionAt(loc ir.Location) bool {
	for _, e := range g.Edges() {
		if e.Kind.Kind == EdgeAbstraction && e.Kind.Abstraction.Location() == loc {
			return true
		}
	}
	return false
}

// GetAbstractionsBlocking returns every Abstraction edge that blocks place
// (spec.md §6's get_abstractions_blocking query).
func (g *BorrowsGraph) GetAbstractionsBlocking(place MaybeRemotePlace) []AbstractionEdge {
	var out []AbstractionEdge
	for _, e := range g.EdgesBlocking(place) {
		if e.Kind.Kind == EdgeAbstraction {
			out = append(out, e.Kind.Abstraction)
		}
	}
	return out
}

// RegionAbstractions returns every Abstraction edge with an input or output
// target whose region projection resolves, via the type oracle, to region
// (spec.md §6's region_abstractions query; the same RegionProjection ->
// RegionID resolution graph_join.go's loop-substitution uses).
func (g *BorrowsGraph) RegionAbstractions(r ir.Repacker, region ir.RegionID) []AbstractionEdge {
	var out []AbstractionEdge
	for _, ae := range g.AbstractionEdges() {
		if ae.Type.referencesRegion(r, region) {
			out = append(out, ae)
		}
	}
	return out
}

// DeleteDescendantsOf removes every edge blocked-by any place de's
// expansion introduces (spec.md §4.G's delete_descendants_of, the step
// apply_unblock_graph's Collapse case runs before dropping de itself: once
// a DerefExpansion collapses, nothing past its base should still reference
// the now-folded children).
func (g *BorrowsGraph) DeleteDescendantsOf(r ir.Repacker, de DerefExpansion) bool {
	changed := false
	for _, child := range de.expansionPlaces(r) {
		for _, e := range g.EdgesBlockedBy(r, child) {
			if _, ok := g.Remove(e.Kind); ok {
				changed = true
			}
		}
	}
	return changed
}

// ChangeMaybeOldPlace rewrites every occurrence of from (matched by key) to
// to in Reborrow, DerefExpansion and RegionProjectionMember edges.
// Abstraction edges are not rewritten. Used by bridging to re-anchor a
// place after a move.
func (g *BorrowsGraph) ChangeMaybeOldPlace(from, to MaybeOldPlace) bool {
	changed := false
	for key, e := range g.edges {
		cp := *e
		if rewriteMaybeOldInKind(&cp.Kind, from, to) {
			delete(g.edges, key)
			g.edges[cp.Kind.key()] = &cp
			changed = true
		}
	}
	return changed
}

func rewriteMaybeOldInKind(k *BorrowsEdgeKind, from, to MaybeOldPlace) bool {
	changed := false
	swap := func(m *MaybeOldPlace) {
		if m.key() == from.key() {
			*m = to
			changed = true
		}
	}
	switch k.Kind {
	case EdgeReborrow:
		swap(&k.Reborrow.Assigned)
		if local, ok := k.Reborrow.Blocked.AsLocal(); ok && local.key() == from.key() {
			k.Reborrow.Blocked = LocalMRP(to)
			changed = true
		}
	case EdgeDerefExpansion:
		swap(&k.DerefExpansion.Base)
	case EdgeRPM:
		swap(&k.RPM.Projection.Place)
		if local, ok := k.RPM.Place.AsLocal(); ok && local.key() == from.key() {
			k.RPM.Place = LocalMRP(to)
			changed = true
		}
	}
	return changed
}

// ChangeRegionProjection rewrites every RegionProjectionMember edge whose
// Projection matches from to instead reference to.
func (g *BorrowsGraph) ChangeRegionProjection(from, to RegionProjection) bool {
	changed := false
	for key, e := range g.edges {
		if e.Kind.Kind != EdgeRPM || e.Kind.RPM.Projection.key() != from.key() {
			continue
		}
		cp := *e
		cp.Kind.RPM.Projection = to
		delete(g.edges, key)
		g.edges[cp.Kind.key()] = &cp
		changed = true
	}
	return changed
}

// MoveReborrows re-targets every Reborrow blocked by oldBlocked to instead be
// blocked by newBlocked (used when the place a reference points at is
// itself moved/renamed by bridging).
func (g *BorrowsGraph) MoveReborrows(oldBlocked, newBlocked MaybeRemotePlace) bool {
	changed := false
	for key, e := range g.edges {
		if e.Kind.Kind != EdgeReborrow || e.Kind.Reborrow.Blocked.key() != oldBlocked.key() {
			continue
		}
		cp := *e
		cp.Kind.Reborrow.Blocked = newBlocked
		delete(g.edges, key)
		g.edges[cp.Kind.key()] = &cp
		changed = true
	}
	return changed
}

// MakePlaceOld rewrites every Current occurrence prefixed by place, across
// every edge, to an Old snapshot anchored at latest's recorded location for
// place's local. Returns whether any edge changed.
func (g *BorrowsGraph) MakePlaceOld(r ir.Repacker, place ir.Place, latest *Latest) bool {
	changed := false
	for key, e := range g.edges {
		cp := *e
		if cp.Kind.makePlaceOld(r, place, latest) {
			delete(g.edges, key)
			g.edges[cp.Kind.key()] = &cp
			changed = true
		}
	}
	return changed
}

// AddPathCondition adds pc to every edge in the graph, returning whether any
// edge's condition set grew.
func (g *BorrowsGraph) AddPathCondition(pc PathCondition) bool {
	changed := false
	for _, e := range g.edges {
		if e.Conditions.Insert(pc) {
			changed = true
		}
	}
	return changed
}

// FilterForPath removes every edge whose path conditions are not satisfied
// by path, returning the removed edges.
func (g *BorrowsGraph) FilterForPath(path []ir.BlockID) []BorrowsEdge {
	var removed []BorrowsEdge
	for key, e := range g.edges {
		if !e.Conditions.ValidForPath(path) {
			removed = append(removed, *e)
			delete(g.edges, key)
		}
	}
	return removed
}

// AddRegionProjectionMember inserts a RegionProjectionMember edge.
func (g *BorrowsGraph) AddRegionProjectionMember(m RegionProjectionMember, conds PathConditions) bool {
	return g.Insert(BorrowsEdge{Conditions: conds, Kind: KindRPM(m)})
}

// AddAbstractionEdge inserts an AbstractionEdge, asserting it replaces any
// stale abstraction previously recorded at the same location.
func (g *BorrowsGraph) AddAbstractionEdge(ae AbstractionEdge, conds PathConditions) bool {
	g.RemoveAbstractionAt(ae.Location())
	return g.Insert(BorrowsEdge{Conditions: conds, Kind: KindAbstraction(ae)})
}

// AssertInvariantsSatisfied panics with a Fault describing the first
// violated check, if any. It checks two things only: that no BorrowExpansion
// has an owned base, and that every RegionProjectionMember's projection
// index is in range for its place's type. Intended to run under a
// debug_invariants config gate (internal/borrowcfg), not on every mutation
// in production use.
func (g *BorrowsGraph) AssertInvariantsSatisfied(r ir.Repacker) {
	for _, e := range g.Edges() {
		if e.Kind.Kind == EdgeDerefExpansion && e.Kind.DerefExpansion.Kind == BorrowExpansion {
			if IsOwned(r, e.Kind.DerefExpansion.Base.Place) {
				panic(Fault{Invariant: "BorrowExpansion.base must not be owned", Detail: e.Kind.DerefExpansion.Base.key()})
			}
		}
		if e.Kind.Kind == EdgeRPM {
			if !e.Kind.RPM.Projection.IndexValid(r) {
				panic(Fault{Invariant: "RegionProjection.index out of range", Detail: e.Kind.RPM.Projection.key()})
			}
		}
	}
}
