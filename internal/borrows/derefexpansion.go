package borrows

import "borrowgraph/internal/ir"

// DerefExpansionKind distinguishes an owned-place expansion (the place is
// owned all the way down; there is exactly one implicit "*base" child) from
// a borrow expansion (base's type crosses a reference; one or more
// one-step children are materialized explicitly).
type DerefExpansionKind uint8

const (
	OwnedExpansion DerefExpansionKind = iota
	BorrowExpansion
)

// DerefExpansion records that the children of Base are tracked as separate
// subplaces. For BorrowExpansion, Expansion enumerates the one-step
// projection elements actually materialized; for OwnedExpansion, the single
// implicit child is Base.ProjectDeref.
//
// Invariant: the base of a BorrowExpansion is not owned (its type traverses
// a reference); every listed child is exactly one projection element
// beyond Base.
type DerefExpansion struct {
	Kind      DerefExpansionKind
	Base      MaybeOldPlace
	Expansion []ir.ProjElem // meaningful only for BorrowExpansion
	Location  ir.Location   // meaningful only for BorrowExpansion
}

// NewOwnedExpansion builds an OwnedExpansion over base.
func NewOwnedExpansion(base MaybeOldPlace) DerefExpansion {
	return DerefExpansion{Kind: OwnedExpansion, Base: base}
}

// NewBorrowExpansion builds a BorrowExpansion over base with the given
// one-step children, asserting the invariants from spec.md §3.
func NewBorrowExpansion(r ir.Repacker, base MaybeOldPlace, children []ir.Place, location ir.Location) DerefExpansion {
	if IsOwned(r, base.Place) {
		panic(Fault{Invariant: "BorrowExpansion.base must not be owned", Detail: base.key()})
	}
	baseProj := r.Projection(base.Place)
	elems := make([]ir.ProjElem, 0, len(children))
	for _, child := range children {
		childProj := r.Projection(child)
		if len(childProj) != len(baseProj)+1 || !IsPlacePrefix(r, base.Place, child) {
			panic(Fault{Invariant: "BorrowExpansion child must be exactly one projection element beyond base", Detail: child.String()})
		}
		elems = append(elems, childProj[len(childProj)-1])
	}
	return DerefExpansion{Kind: BorrowExpansion, Base: base, Expansion: elems, Location: location}
}

// IsOwnedExpansion reports whether this is an OwnedExpansion.
func (de DerefExpansion) IsOwnedExpansion() bool { return de.Kind == OwnedExpansion }

// expansionPlaces materializes the children as MaybeOldPlace values.
func (de DerefExpansion) expansionPlaces(r ir.Repacker) []MaybeOldPlace {
	if de.Kind == OwnedExpansion {
		return []MaybeOldPlace{de.Base.ProjectDeref(r)}
	}
	out := make([]MaybeOldPlace, 0, len(de.Expansion))
	for _, elem := range de.Expansion {
		out = append(out, de.Base.ProjectDeeper(r, elem))
	}
	return out
}

// ExpansionElems returns the raw projection elements materialized by this
// expansion (a single implicit Deref for OwnedExpansion).
func (de DerefExpansion) ExpansionElems() []ir.ProjElem {
	if de.Kind == OwnedExpansion {
		return []ir.ProjElem{{Kind: ir.ElemDeref}}
	}
	return append([]ir.ProjElem(nil), de.Expansion...)
}

// makePlaceOld rewrites Base in place when it is current and place is a
// prefix of it. An already-old Base is left untouched and reported as no
// change.
func (de *DerefExpansion) makePlaceOld(r ir.Repacker, place ir.Place, latest *Latest) bool {
	if !de.Base.IsCurrent() {
		return false
	}
	if !IsPlacePrefix(r, place, de.Base.Place) {
		return false
	}
	de.Base = Old(PlaceSnapshot{Place: de.Base.Place, At: latest.Get(de.Base.Place)})
	return true
}

func (de DerefExpansion) key() string {
	k := "deref_expansion[" + de.Base.key() + "|"
	for _, e := range de.Expansion {
		k += e.String() + ";"
	}
	k += de.Location.String() + "]"
	return k
}
