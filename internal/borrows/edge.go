package borrows

import "borrowgraph/internal/ir"

// Fault is the fatal-signal payload for precondition and invariant
// violations (spec.md §7): the core does not surface these as recoverable
// errors, it panics, mirroring how the teacher's sema package turns
// contract breaks into a wrapped panic rather than a silent no-op.
type Fault struct {
	Invariant string
	Detail    string
}

func (f Fault) Error() string {
	if f.Detail == "" {
		return "borrows: " + f.Invariant
	}
	return "borrows: " + f.Invariant + ": " + f.Detail
}

// EdgeKind tags which variant of the edge taxonomy a BorrowsEdgeKind holds.
type EdgeKind uint8

const (
	EdgeReborrow EdgeKind = iota
	EdgeDerefExpansion
	EdgeAbstraction
	EdgeRPM
)

func (k EdgeKind) String() string {
	switch k {
	case EdgeReborrow:
		return "reborrow"
	case EdgeDerefExpansion:
		return "deref_expansion"
	case EdgeAbstraction:
		return "abstraction"
	case EdgeRPM:
		return "region_projection_member"
	default:
		return "?"
	}
}

// BorrowsEdgeKind is the polymorphic capability sum over the four edge
// variants (spec.md §3, §9 "Polymorphism over edge kinds"). Exactly one of
// the variant fields is populated, selected by Kind; capability dispatch is
// plain case analysis, not runtime reflection, per spec.md §9.
type BorrowsEdgeKind struct {
	Kind EdgeKind

	Reborrow       Reborrow
	DerefExpansion DerefExpansion
	Abstraction    AbstractionEdge
	RPM            RegionProjectionMember
}

// KindReborrow wraps a Reborrow as an edge kind.
func KindReborrow(rb Reborrow) BorrowsEdgeKind {
	return BorrowsEdgeKind{Kind: EdgeReborrow, Reborrow: rb}
}

// KindDerefExpansion wraps a DerefExpansion as an edge kind.
func KindDerefExpansion(de DerefExpansion) BorrowsEdgeKind {
	return BorrowsEdgeKind{Kind: EdgeDerefExpansion, DerefExpansion: de}
}

// KindAbstraction wraps an AbstractionEdge as an edge kind.
func KindAbstraction(ae AbstractionEdge) BorrowsEdgeKind {
	return BorrowsEdgeKind{Kind: EdgeAbstraction, Abstraction: ae}
}

// KindRPM wraps a RegionProjectionMember as an edge kind.
func KindRPM(m RegionProjectionMember) BorrowsEdgeKind {
	return BorrowsEdgeKind{Kind: EdgeRPM, RPM: m}
}

// IsShared reports whether the kind is a Reborrow with shared mutability;
// every other kind reports false.
func (k BorrowsEdgeKind) IsShared() bool {
	return k.Kind == EdgeReborrow && k.Reborrow.IsSharedBorrow()
}

// BlockedPlaces returns the places this edge makes inaccessible, per the
// table in spec.md §4.D.
func (k BorrowsEdgeKind) BlockedPlaces() []MaybeRemotePlace {
	switch k.Kind {
	case EdgeReborrow:
		return []MaybeRemotePlace{k.Reborrow.Blocked}
	case EdgeDerefExpansion:
		return []MaybeRemotePlace{LocalMRP(k.DerefExpansion.Base)}
	case EdgeAbstraction:
		out := make([]MaybeRemotePlace, 0)
		for _, e := range k.Abstraction.Type.edges() {
			for _, in := range e.Inputs {
				if p, ok := in.AsPlace(); ok {
					out = append(out, p)
				}
			}
		}
		return out
	case EdgeRPM:
		if k.RPM.Direction == PlaceIsRegionInput {
			return []MaybeRemotePlace{k.RPM.Place}
		}
		return nil
	default:
		return nil
	}
}

// BlockedByPlaces returns the places holding the blockage (e.g. the
// assignee side), per the table in spec.md §4.D.
func (k BorrowsEdgeKind) BlockedByPlaces(r ir.Repacker) []MaybeOldPlace {
	switch k.Kind {
	case EdgeReborrow:
		return []MaybeOldPlace{k.Reborrow.Assigned}
	case EdgeDerefExpansion:
		return k.DerefExpansion.expansionPlaces(r)
	case EdgeAbstraction:
		out := make([]MaybeOldPlace, 0)
		for _, e := range k.Abstraction.Type.edges() {
			for _, o := range e.Outputs {
				if p, ok := o.AsPlace(); ok {
					out = append(out, p)
				}
			}
		}
		return out
	case EdgeRPM:
		switch k.RPM.Direction {
		case PlaceIsRegionInput:
			return []MaybeOldPlace{k.RPM.Projection.Place}
		default: // PlaceIsRegionOutput
			if p, ok := k.RPM.Place.AsLocal(); ok {
				return []MaybeOldPlace{p}
			}
			return nil
		}
	default:
		return nil
	}
}

func (k BorrowsEdgeKind) key() string {
	switch k.Kind {
	case EdgeReborrow:
		return k.Reborrow.key()
	case EdgeDerefExpansion:
		return k.DerefExpansion.key()
	case EdgeAbstraction:
		return k.Abstraction.key()
	case EdgeRPM:
		return k.RPM.key()
	default:
		return "?"
	}
}

// makePlaceOld rewrites every Current(p) with place.IsPrefixOf(p) to an Old
// snapshot, for the places embedded in this edge kind. Returns whether any
// rewrite occurred.
func (k *BorrowsEdgeKind) makePlaceOld(r ir.Repacker, place ir.Place, latest *Latest) bool {
	changed := false
	rewrite := func(m *MaybeOldPlace) {
		if m.IsCurrent() && IsPlacePrefix(r, place, m.Place) {
			*m = Old(PlaceSnapshot{Place: m.Place, At: latest.Get(m.Place)})
			changed = true
		}
	}
	rewriteRemote := func(m *MaybeRemotePlace) {
		if local, ok := m.AsLocal(); ok {
			cp := local
			rewrite(&cp)
			if cp.old != local.old {
				*m = LocalMRP(cp)
			}
		}
	}
	switch k.Kind {
	case EdgeReborrow:
		rewriteRemote(&k.Reborrow.Blocked)
		rewrite(&k.Reborrow.Assigned)
	case EdgeDerefExpansion:
		if k.DerefExpansion.makePlaceOld(r, place, latest) {
			changed = true
		}
	case EdgeAbstraction:
		if k.Abstraction.makePlaceOld(r, place, latest) {
			changed = true
		}
	case EdgeRPM:
		rewriteRemote(&k.RPM.Place)
		rewrite(&k.RPM.Projection.Place)
	}
	return changed
}

func (ae *AbstractionEdge) makePlaceOld(r ir.Repacker, place ir.Place, latest *Latest) bool {
	// Abstractions are opaque summaries; their concrete place occurrences
	// live in the generic Inputs/Outputs of each block edge. Region-only
	// targets have no place to rewrite. Only Current places prefixed by
	// place are snapshotted, per spec.md §4.E's make_place_old contract.
	changed := false
	rewriteIn := func(t *AbstractionInputTarget) {
		if t.isRegion {
			return
		}
		local, ok := t.place.AsLocal()
		if !ok || !local.IsCurrent() || !IsPlacePrefix(r, place, local.Place) {
			return
		}
		local.old = true
		local.at = latest.Get(local.Place)
		t.place = LocalMRP(local)
		changed = true
	}
	rewriteOut := func(t *AbstractionOutputTarget) {
		if t.isRegion {
			return
		}
		if !t.place.IsCurrent() || !IsPlacePrefix(r, place, t.place.Place) {
			return
		}
		t.place.old = true
		t.place.at = latest.Get(t.place.Place)
		changed = true
	}
	edges := ae.Type.mutEdges()
	for i := range edges {
		for j := range edges[i].Inputs {
			rewriteIn(&edges[i].Inputs[j])
		}
		for j := range edges[i].Outputs {
			rewriteOut(&edges[i].Outputs[j])
		}
	}
	return changed
}

func (t *AbstractionType) mutEdges() []*AbstractionBlockEdge {
	if t.Kind == LoopAbstraction {
		return []*AbstractionBlockEdge{&t.LoopEdge}
	}
	out := make([]*AbstractionBlockEdge, 0, len(t.ArgEdges))
	for i := range t.ArgEdges {
		out = append(out, &t.ArgEdges[i].Edge)
	}
	return out
}

// Conditioned pairs a value with the path conditions under which it holds.
type Conditioned[T any] struct {
	Conditions PathConditions
	Value      T
}

// BorrowsEdge is a conditioned edge: path conditions plus an edge-kind
// payload. Edges are content-addressed (see graph.go) rather than relying
// on native comparability, since several kinds embed slices.
type BorrowsEdge struct {
	Conditions PathConditions
	Kind       BorrowsEdgeKind
}

// IsSharedBorrow reports whether this edge is a shared Reborrow.
func (e BorrowsEdge) IsSharedBorrow() bool { return e.Kind.IsShared() }

// BlocksPlace reports whether this edge blocks place.
func (e BorrowsEdge) BlocksPlace(place MaybeRemotePlace) bool {
	for _, p := range e.Kind.BlockedPlaces() {
		if p.key() == place.key() {
			return true
		}
	}
	return false
}

// IsBlockedByPlace reports whether place holds the blockage for this edge.
func (e BorrowsEdge) IsBlockedByPlace(r ir.Repacker, place MaybeOldPlace) bool {
	for _, p := range e.Kind.BlockedByPlaces(r) {
		if p.key() == place.key() {
			return true
		}
	}
	return false
}
