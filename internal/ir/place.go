package ir

// Place denotes a memory location: a local plus a projection path. The
// projection is interned so Place is comparable and usable as a map key,
// the same discipline the teacher's borrow table applies to field/index/
// deref paths (see internal/sema/borrow.go's placeKey), generalized here to
// the full MIR-like projection-element set.
type Place struct {
	Local Local
	Path  ProjKey
}

// NoPlace is the zero value; it never denotes a real location.
var NoPlace = Place{}

// IsValid reports whether p names a real local.
func (p Place) IsValid() bool { return p.Local.IsValid() }

func (p Place) String() string {
	return string(p.Local.String()) + string(p.Path)
}

// TypeID identifies a type in the oracle's type table.
type TypeID uint32

// NoTypeID marks the absence of a type.
const NoTypeID TypeID = 0

// TypeKind classifies a type for the queries the engine needs.
type TypeKind uint8

const (
	KindOwned TypeKind = iota
	KindRef
	KindMutRef
	KindStruct
)

// TypeDecl is the oracle's description of one type: whether it is a
// reference, what it points to, its ordered lifetime parameters, and (for
// aggregates) its field types in declaration order.
type TypeDecl struct {
	Kind TypeKind
	// Elem is the pointee type for KindRef/KindMutRef.
	Elem TypeID
	// Regions lists the type's own lifetime parameters in declaration
	// order; this is the contract region_projections(repacker) walks.
	Regions []RegionID
	// Fields lists field types in declaration order, for KindStruct.
	Fields []TypeID
}

// Repacker is the read-only typing/IR oracle the engine consults. It bundles
// exactly the queries spec.md §6 attributes to the external IR and its
// type/region-inference oracle: place typing, region extraction, projection
// construction, and dominance.
type Repacker interface {
	// TypeOf returns the static type of a place.
	TypeOf(p Place) TypeID
	// Type looks up a type declaration.
	Type(t TypeID) (TypeDecl, bool)
	// IsRef reports whether t is a shared or mutable reference.
	IsRef(t TypeID) bool
	// IsMutRef reports whether t is specifically a mutable reference.
	IsMutRef(t TypeID) bool
	// Project appends one projection element to p, consulting the type
	// table to determine the resulting place's type.
	Project(p Place, elem ProjElem) Place
	// Prefix returns the place one projection element shorter, or false
	// for a bare local.
	Prefix(p Place) (Place, bool)
	// Projection returns the ordered projection elements of p.
	Projection(p Place) []ProjElem
	// Dominates reports whether block a dominates block b.
	Dominates(a, b BlockID) bool
	// LoanFacts exposes the (partial) Polonius-style loan-liveness
	// surface consulted at loop-head joins.
	LoanFacts() LoanFacts
}

// LoanFacts is the minimal Polonius-style surface the join operation
// consults to decide, at a loop header, whether an incoming abstraction
// edge should be kept verbatim or folded into a loop-abstraction summary.
// A full Polonius fact database is out of scope; callers that have none
// can use NoLoanFacts.
type LoanFacts interface {
	// LiveAtJoin reports whether region r is still live across the
	// (other -> self) transition into the merge block.
	LiveAtJoin(r RegionID, self BlockID) bool
}

type noLoanFacts struct{}

func (noLoanFacts) LiveAtJoin(RegionID, BlockID) bool { return false }

// NoLoanFacts is a LoanFacts implementation that never reports liveness,
// i.e. every loop-head abstraction is folded into a summary.
var NoLoanFacts LoanFacts = noLoanFacts{}
