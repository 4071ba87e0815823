// Package borrows implements the flow-sensitive borrow/reborrow analysis
// core: the borrows graph, its edge taxonomy, the unblock planner, and the
// per-program-point borrows state. The surrounding visitor, type/region
// oracle and capability summary are external collaborators (see
// internal/ir for the minimal stand-ins this package is tested against).
package borrows

import (
	"fmt"

	"borrowgraph/internal/ir"
)

// SnapshotKind tags what a SnapshotLocation records.
type SnapshotKind uint8

const (
	// SnapshotBeforeStart marks a place snapshotted before the function
	// body runs (e.g. an incoming parameter's initial value).
	SnapshotBeforeStart SnapshotKind = iota
	// SnapshotAtLocation marks a place snapshotted at a precise IR
	// location (block + statement index).
	SnapshotAtLocation
	// SnapshotAtBlockJoin marks a place snapshotted at a control-flow
	// merge point, used when Latest.Join cannot agree on one location.
	SnapshotAtBlockJoin
)

// SnapshotLocation tags *when* a place was captured.
type SnapshotLocation struct {
	Kind  SnapshotKind
	Loc   ir.Location
	Block ir.BlockID
}

// AtLocation builds a SnapshotLocation tagging a precise IR location.
func AtLocation(loc ir.Location) SnapshotLocation {
	return SnapshotLocation{Kind: SnapshotAtLocation, Loc: loc}
}

// AtBlockJoin builds a SnapshotLocation tagging a merge block.
func AtBlockJoin(block ir.BlockID) SnapshotLocation {
	return SnapshotLocation{Kind: SnapshotAtBlockJoin, Block: block}
}

// BeforeStart is the function-entry snapshot marker.
var BeforeStart = SnapshotLocation{Kind: SnapshotBeforeStart}

func (s SnapshotLocation) String() string {
	switch s.Kind {
	case SnapshotAtLocation:
		return s.Loc.String()
	case SnapshotAtBlockJoin:
		return "join@" + s.Block.String()
	default:
		return "entry"
	}
}

// PlaceSnapshot freezes a place together with the location it was
// snapshotted at.
type PlaceSnapshot struct {
	Place ir.Place
	At    SnapshotLocation
}

// ProjectDeref returns the snapshot of place.ProjectDeref, preserving the
// snapshot tag.
func (s PlaceSnapshot) ProjectDeref(r ir.Repacker) PlaceSnapshot {
	return PlaceSnapshot{Place: ProjectDeref(r, s.Place), At: s.At}
}

// MaybeOldPlace is either the current contents of a place, or a frozen
// snapshot of its contents as of some earlier location. Once constructed as
// Old, a MaybeOldPlace must never be "resurrected" back to Current by
// mutation in place — callers build a fresh value instead.
type MaybeOldPlace struct {
	Place ir.Place
	old   bool
	at    SnapshotLocation
}

// Current wraps a place as its present-day contents.
func Current(p ir.Place) MaybeOldPlace {
	return MaybeOldPlace{Place: p}
}

// Old wraps a place snapshot as frozen prior contents.
func Old(snap PlaceSnapshot) MaybeOldPlace {
	return MaybeOldPlace{Place: snap.Place, old: true, at: snap.At}
}

// IsCurrent reports whether m denotes present-day contents.
func (m MaybeOldPlace) IsCurrent() bool { return !m.old }

// IsOld reports whether m is a frozen snapshot.
func (m MaybeOldPlace) IsOld() bool { return m.old }

// At returns the snapshot location; meaningful only when IsOld is true.
func (m MaybeOldPlace) At() SnapshotLocation { return m.at }

// IsValid reports whether m names a real place.
func (m MaybeOldPlace) IsValid() bool { return m.Place.IsValid() }

// ProjectDeeper appends one projection element, preserving the Current/Old
// tag (spec.md §4.A: "preserves snapshot tagging on MaybeOldPlace").
func (m MaybeOldPlace) ProjectDeeper(r ir.Repacker, elem ir.ProjElem) MaybeOldPlace {
	next := r.Project(m.Place, elem)
	if m.old {
		return MaybeOldPlace{Place: next, old: true, at: m.at}
	}
	return Current(next)
}

// ProjectDeref appends a Deref projection, preserving the Current/Old tag.
func (m MaybeOldPlace) ProjectDeref(r ir.Repacker) MaybeOldPlace {
	return m.ProjectDeeper(r, ir.ProjElem{Kind: ir.ElemDeref})
}

// PrefixPlace returns the immediate parent place, or false for a bare
// local, preserving the Current/Old tag.
func (m MaybeOldPlace) PrefixPlace(r ir.Repacker) (MaybeOldPlace, bool) {
	prefix, ok := r.Prefix(m.Place)
	if !ok {
		return MaybeOldPlace{}, false
	}
	if m.old {
		return MaybeOldPlace{Place: prefix, old: true, at: m.at}, true
	}
	return Current(prefix), true
}

// IsPrefixOf reports whether m's projection is a (non-strict) prefix of
// other's, for places sharing the same local and old/current tag.
func (m MaybeOldPlace) IsPrefixOf(r ir.Repacker, other MaybeOldPlace) bool {
	if m.Place.Local != other.Place.Local || m.old != other.old {
		return false
	}
	return IsPlacePrefix(r, m.Place, other.Place)
}

func (m MaybeOldPlace) key() string {
	tag := "c"
	if m.old {
		tag = "o:" + m.at.String()
	}
	return m.Place.String() + "#" + tag
}

func (m MaybeOldPlace) String() string { return m.key() }

// RemotePlace is the sentinel representing the caller-side origin of an
// incoming reference parameter: the abstract place that parameter is
// borrowing from, beyond the analyzed frame.
type RemotePlace struct {
	Param ir.Local
}

func (r RemotePlace) String() string { return "remote(" + r.Param.String() + ")" }

// MaybeRemotePlace is either a local (possibly old) place, or the remote
// origin of an incoming reference parameter.
type MaybeRemotePlace struct {
	remote bool
	local  MaybeOldPlace
	origin RemotePlace
}

// LocalMRP wraps a MaybeOldPlace as a local place.
func LocalMRP(m MaybeOldPlace) MaybeRemotePlace {
	return MaybeRemotePlace{local: m}
}

// RemoteMRP wraps a RemotePlace as a remote origin.
func RemoteMRP(r RemotePlace) MaybeRemotePlace {
	return MaybeRemotePlace{remote: true, origin: r}
}

// IsRemote reports whether this is the remote-origin variant.
func (m MaybeRemotePlace) IsRemote() bool { return m.remote }

// AsLocal returns the local place and true, or the zero value and false if
// this is a remote origin.
func (m MaybeRemotePlace) AsLocal() (MaybeOldPlace, bool) {
	if m.remote {
		return MaybeOldPlace{}, false
	}
	return m.local, true
}

// Remote returns the remote origin and true, or the zero value and false.
func (m MaybeRemotePlace) Remote() (RemotePlace, bool) {
	if !m.remote {
		return RemotePlace{}, false
	}
	return m.origin, true
}

func (m MaybeRemotePlace) key() string {
	if m.remote {
		return "R:" + m.origin.String()
	}
	return "L:" + m.local.key()
}

func (m MaybeRemotePlace) String() string { return m.key() }

// RegionProjection represents the portion of a place's contents associated
// with the Index-th lifetime parameter of its type.
type RegionProjection struct {
	Place MaybeOldPlace
	Index int
}

func (rp RegionProjection) key() string {
	return fmt.Sprintf("%s@rp%d", rp.Place.key(), rp.Index)
}

func (rp RegionProjection) String() string { return rp.key() }

// IndexValid reports whether Index is in range for Place's type's region
// list, per spec.md §4.E invariant 4.
func (rp RegionProjection) IndexValid(r ir.Repacker) bool {
	regions := RegionProjections(r, rp.Place)
	return rp.Index >= 0 && rp.Index < len(regions)
}

// IsPlacePrefix reports whether a's projection is a prefix of b's
// projection, for two places sharing the same local.
func IsPlacePrefix(r ir.Repacker, a, b ir.Place) bool {
	if a.Local != b.Local {
		return false
	}
	aProj := r.Projection(a)
	bProj := r.Projection(b)
	if len(aProj) > len(bProj) {
		return false
	}
	for i, e := range aProj {
		if e != bProj[i] {
			return false
		}
	}
	return true
}

// ProjectDeref appends a Deref projection element to p.
func ProjectDeref(r ir.Repacker, p ir.Place) ir.Place {
	return r.Project(p, ir.ProjElem{Kind: ir.ElemDeref})
}

// IsOwned reports whether p's projection never crosses a reference, i.e.
// the place is owned by its local all the way down.
func IsOwned(r ir.Repacker, p ir.Place) bool {
	cur := ir.NewPlace(p.Local)
	for _, elem := range r.Projection(p) {
		if elem.Kind == ir.ElemDeref {
			ty := r.TypeOf(cur)
			if r.IsRef(ty) {
				return false
			}
		}
		cur = r.Project(cur, elem)
	}
	return true
}

// IsRefPlace reports whether p's static type is a reference.
func IsRefPlace(r ir.Repacker, p ir.Place) bool {
	return r.IsRef(r.TypeOf(p))
}

// IsMutRefPlace reports whether p's static type is a mutable reference.
func IsMutRefPlace(r ir.Repacker, p ir.Place) bool {
	return r.IsMutRef(r.TypeOf(p))
}

// NearestOwnedPlace walks up p's projection until the next step up would
// cross a reference, returning that ancestor. Used to anchor snapshots to
// the place that actually owns the storage being overwritten.
func NearestOwnedPlace(r ir.Repacker, p ir.Place) ir.Place {
	cur := p
	for {
		prefix, ok := r.Prefix(cur)
		if !ok {
			return cur
		}
		if !IsOwned(r, prefix) {
			return cur
		}
		cur = prefix
	}
}

// RegionProjections enumerates place's lifetime parameters in the order
// they appear in its type, discarding non-variable regions. The ordering
// is stable and is the contract RegionProjection.Index relies on.
func RegionProjections(r ir.Repacker, place MaybeOldPlace) []RegionProjection {
	decl, ok := r.Type(r.TypeOf(place.Place))
	if !ok {
		return nil
	}
	out := make([]RegionProjection, 0, len(decl.Regions))
	for _, region := range decl.Regions {
		if !region.IsValid() {
			continue
		}
		out = append(out, RegionProjection{Place: place, Index: len(out)})
	}
	return out
}
