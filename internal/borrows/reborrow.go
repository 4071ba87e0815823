package borrows

import "borrowgraph/internal/ir"

// Mutability distinguishes shared from mutable reference creation.
type Mutability uint8

const (
	Shared Mutability = iota
	Mut
)

func (m Mutability) String() string {
	if m == Mut {
		return "mut"
	}
	return "shared"
}

// Reborrow records that, at ReserveLocation, a new reference Assigned was
// created pointing at Blocked with the given mutability and lifetime.
type Reborrow struct {
	Blocked         MaybeRemotePlace
	Assigned        MaybeOldPlace
	Mutability      Mutability
	ReserveLocation ir.Location
	Region          ir.RegionID
}

// IsSharedBorrow reports whether this reborrow is a shared (non-exclusive)
// one.
func (rb Reborrow) IsSharedBorrow() bool { return rb.Mutability == Shared }

func (rb Reborrow) key() string {
	return "reborrow[" + rb.Blocked.key() + "->" + rb.Assigned.key() + "," +
		rb.Mutability.String() + "@" + rb.ReserveLocation.String() + "]"
}
