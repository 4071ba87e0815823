package borrows

import "borrowgraph/internal/ir"

// Latest tracks, per local, the most recent write location we have
// observed. Snapshotting a place resolves it to the most recent write to
// its owning local, so later code can still denote what the place held
// before the write.
type Latest struct {
	byLocal map[ir.Local]SnapshotLocation
}

// NewLatest builds an empty Latest map.
func NewLatest() *Latest {
	return &Latest{byLocal: make(map[ir.Local]SnapshotLocation)}
}

// Clone returns an independent deep copy.
func (l *Latest) Clone() *Latest {
	out := NewLatest()
	for k, v := range l.byLocal {
		out.byLocal[k] = v
	}
	return out
}

// Insert overwrites the recorded location for local.
func (l *Latest) Insert(local ir.Local, loc SnapshotLocation) {
	if l.byLocal == nil {
		l.byLocal = make(map[ir.Local]SnapshotLocation)
	}
	l.byLocal[local] = loc
}

// Get returns the recorded location for place.Local, defaulting to the
// function-entry marker.
func (l *Latest) Get(place ir.Place) SnapshotLocation {
	if loc, ok := l.byLocal[place.Local]; ok {
		return loc
	}
	return BeforeStart
}

// Entries returns a defensive copy of the local -> location table.
func (l *Latest) Entries() map[ir.Local]SnapshotLocation {
	out := make(map[ir.Local]SnapshotLocation, len(l.byLocal))
	for k, v := range l.byLocal {
		out[k] = v
	}
	return out
}

// Join merges other into l: for each local present in either side, agree
// where values match, else record the merge block's join marker. Always
// returns false. Per spec.md §9's Open Questions, a latest-only change
// is treated as non-progress (not reported via the return value) to avoid
// defeating loop-fixpoint termination; the merge-block join marker is still
// recorded so later snapshots observe the right provenance.
func (l *Latest) Join(other *Latest, mergeBlock ir.BlockID) bool {
	locals := make(map[ir.Local]struct{}, len(l.byLocal)+len(other.byLocal))
	for k := range l.byLocal {
		locals[k] = struct{}{}
	}
	for k := range other.byLocal {
		locals[k] = struct{}{}
	}
	for local := range locals {
		a, aok := l.byLocal[local]
		b, bok := other.byLocal[local]
		switch {
		case aok && bok && a == b:
			// already agree; nothing to do
		case !aok && bok:
			l.byLocal[local] = AtBlockJoin(mergeBlock)
		default:
			l.byLocal[local] = AtBlockJoin(mergeBlock)
		}
	}
	return false
}
