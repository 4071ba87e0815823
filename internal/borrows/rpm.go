package borrows

import "borrowgraph/internal/ir"

// RPMDirection distinguishes whether a RegionProjectionMember's place flows
// into, or flows out of, the recorded region projection.
type RPMDirection uint8

const (
	PlaceIsRegionInput RPMDirection = iota
	PlaceIsRegionOutput
)

func (d RPMDirection) String() string {
	if d == PlaceIsRegionOutput {
		return "out"
	}
	return "in"
}

// RegionProjectionMember records that Place's contents flow into
// (PlaceIsRegionInput) or out of (PlaceIsRegionOutput) the given region
// projection of another place.
type RegionProjectionMember struct {
	Place      MaybeRemotePlace
	Projection RegionProjection
	Location   ir.Location
	Direction  RPMDirection
}

func (m RegionProjectionMember) key() string {
	return "rpm[" + m.Place.key() + "," + m.Projection.key() + "," + m.Direction.String() + "@" + m.Location.String() + "]"
}
