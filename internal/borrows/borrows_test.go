package borrows

import (
	"testing"

	"borrowgraph/internal/ir"
)

// fixture builds a small repacker with one owned int local (x), one mutable
// reference to it (r) and one shared reference to it (s), mirroring the
// running example in spec.md §1 (`let r = &mut x; ...`).
func fixture(t *testing.T) (*ir.SimpleRepacker, ir.Local, ir.Local, ir.Local) {
	t.Helper()
	types := map[ir.TypeID]ir.TypeDecl{
		1: {Kind: ir.KindOwned},
		2: {Kind: ir.KindMutRef, Elem: 1, Regions: []ir.RegionID{10}},
		3: {Kind: ir.KindRef, Elem: 1, Regions: []ir.RegionID{11}},
	}
	body := ir.NewBody(1)
	x := body.AddLocal(1)
	r := body.AddLocal(2)
	s := body.AddLocal(3)
	return ir.NewSimpleRepacker(body, types), x, r, s
}

func TestAddReborrowBlocksSourcePlace(t *testing.T) {
	repacker, x, r, _ := fixture(t)
	state := NewBorrowsState()

	rb := Reborrow{
		Blocked:         LocalMRP(Current(ir.NewPlace(x))),
		Assigned:        Current(ir.NewPlace(r)),
		Mutability:      Mut,
		ReserveLocation: ir.Location{Block: 1, Stmt: 0},
		Region:          10,
	}
	if !state.AddReborrow(rb) {
		t.Fatalf("expected AddReborrow to report a change")
	}

	if !state.Graph().HasEdgeBlocking(LocalMRP(Current(ir.NewPlace(x)))) {
		t.Fatalf("expected x to be blocked after reborrow")
	}
	blocking, ok := state.GetPlaceBlocking(LocalMRP(Current(ir.NewPlace(x))))
	if !ok || blocking.key() != Current(ir.NewPlace(r)).key() {
		_ = repacker
		t.Fatalf("expected r to be reported as blocking x, got %v ok=%v", blocking, ok)
	}
}

func TestAddReborrowIsIdempotentOnKind(t *testing.T) {
	state := NewBorrowsState()
	_, x, r, _ := fixture(t)
	rb := Reborrow{
		Blocked:         LocalMRP(Current(ir.NewPlace(x))),
		Assigned:        Current(ir.NewPlace(r)),
		Mutability:      Mut,
		ReserveLocation: ir.Location{Block: 1, Stmt: 0},
		Region:          10,
	}
	state.AddReborrow(rb)
	before := state.Graph().Len()
	if state.AddReborrow(rb) {
		t.Fatalf("expected re-adding an identical reborrow to report no change")
	}
	if state.Graph().Len() != before {
		t.Fatalf("expected graph size to stay %d, got %d", before, state.Graph().Len())
	}
}

func TestUnblockGraphTerminatesBlockingReborrow(t *testing.T) {
	repacker, x, r, _ := fixture(t)
	state := NewBorrowsState()

	rb := Reborrow{
		Blocked:         LocalMRP(Current(ir.NewPlace(x))),
		Assigned:        Current(ir.NewPlace(r)),
		Mutability:      Mut,
		ReserveLocation: ir.Location{Block: 1, Stmt: 0},
		Region:          10,
	}
	state.AddReborrow(rb)

	ug := NewUnblockGraph(repacker, state.Graph(), []MaybeRemotePlace{LocalMRP(Current(ir.NewPlace(x)))})
	actions := ug.Actions()
	if len(actions) != 1 {
		t.Fatalf("expected exactly one teardown action, got %d", len(actions))
	}
	if actions[0].Kind != TerminateReborrow {
		t.Fatalf("expected TerminateReborrow, got %v", actions[0].Kind)
	}

	state.ApplyUnblockGraph(repacker, ug, AtLocation(ir.Location{Block: 1, Stmt: 1}))
	if state.Graph().HasEdgeBlocking(LocalMRP(Current(ir.NewPlace(x)))) {
		t.Fatalf("expected x to be unblocked after applying the unblock graph")
	}
}

func TestMakePlaceOldSnapshotsAssignedPlace(t *testing.T) {
	repacker, x, r, _ := fixture(t)
	state := NewBorrowsState()

	loc0 := ir.Location{Block: 1, Stmt: 0}
	rb := Reborrow{
		Blocked:         LocalMRP(Current(ir.NewPlace(x))),
		Assigned:        Current(ir.NewPlace(r)),
		Mutability:      Mut,
		ReserveLocation: loc0,
		Region:          10,
	}
	state.AddReborrow(rb)
	state.SetLatest(ir.NewPlace(r), AtLocation(loc0))

	loc1 := ir.Location{Block: 1, Stmt: 1}
	state.MakePlaceOld(repacker, ir.NewPlace(r), AtLocation(loc1))

	found := false
	for _, rb := range state.Graph().Reborrows() {
		if rb.Assigned.IsOld() && rb.Assigned.At() == AtLocation(loc0) {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected the reborrow's assigned place to become Old at loc0")
	}
	if state.GetLatest(ir.NewPlace(r)) != AtLocation(loc1) {
		t.Fatalf("expected Latest[r] to be updated to loc1")
	}
}

func TestOwnedDerefExpansionHasSingleChild(t *testing.T) {
	repacker, x, _, _ := fixture(t)

	owned := NewOwnedExpansion(Current(ir.NewPlace(x)))
	if !owned.IsOwnedExpansion() {
		t.Fatalf("expected OwnedExpansion")
	}
	places := owned.expansionPlaces(repacker)
	if len(places) != 1 {
		t.Fatalf("expected exactly one implicit child for an owned expansion")
	}
}

func TestNewBorrowExpansionRejectsOwnedBase(t *testing.T) {
	_, x, _, _ := fixture(t)
	repacker, _, _, _ := fixture(t)

	defer func() {
		if recover() == nil {
			t.Fatalf("expected NewBorrowExpansion to panic on an owned base")
		}
	}()
	NewBorrowExpansion(repacker, Current(ir.NewPlace(x)), nil, ir.Location{})
}

func TestRegionProjectionMemberDirectionAsymmetry(t *testing.T) {
	_, x, r, _ := fixture(t)
	place := Current(ir.NewPlace(x))
	rp := RegionProjection{Place: Current(ir.NewPlace(r)), Index: 0}

	input := RegionProjectionMember{Place: LocalMRP(place), Projection: rp, Direction: PlaceIsRegionInput}
	output := RegionProjectionMember{Place: LocalMRP(place), Projection: rp, Direction: PlaceIsRegionOutput}

	inKind := KindRPM(input)
	outKind := KindRPM(output)

	if len(inKind.BlockedPlaces()) != 1 {
		t.Fatalf("PlaceIsRegionInput must contribute to blocked_places")
	}
	if len(outKind.BlockedPlaces()) != 0 {
		t.Fatalf("PlaceIsRegionOutput must not contribute to blocked_places")
	}
	if len(inKind.BlockedByPlaces(nil)) != 1 || len(outKind.BlockedByPlaces(nil)) != 1 {
		t.Fatalf("both directions must contribute to blocked_by_places")
	}
}

func TestPathConditionsValidForPath(t *testing.T) {
	pcs := NewPathConditions()
	pcs.Insert(PathCondition{From: 1, To: 2})
	pcs.Insert(PathCondition{From: 2, To: 3})

	if !pcs.ValidForPath([]ir.BlockID{1, 2, 3}) {
		t.Fatalf("expected path 1->2->3 to satisfy both conditions")
	}
	if pcs.ValidForPath([]ir.BlockID{1, 3}) {
		t.Fatalf("expected a path skipping block 2 to fail")
	}
}

func TestGraphJoinUnionsConditionedEdges(t *testing.T) {
	repacker, x, r, s := fixture(t)

	left := NewBorrowsGraph()
	left.AddReborrow(Reborrow{
		Blocked:         LocalMRP(Current(ir.NewPlace(x))),
		Assigned:        Current(ir.NewPlace(r)),
		Mutability:      Mut,
		ReserveLocation: ir.Location{Block: 2, Stmt: 0},
		Region:          10,
	}, NewPathConditions())

	right := NewBorrowsGraph()
	right.AddReborrow(Reborrow{
		Blocked:         LocalMRP(Current(ir.NewPlace(x))),
		Assigned:        Current(ir.NewPlace(s)),
		Mutability:      Shared,
		ReserveLocation: ir.Location{Block: 3, Stmt: 0},
		Region:          11,
	}, NewPathConditions())

	changed := left.Join(repacker, right, 2, 3, 4)
	if !changed {
		t.Fatalf("expected join to report a change")
	}
	if left.Len() != 2 {
		t.Fatalf("expected both reborrows present after join, got %d edges", left.Len())
	}

	for _, e := range left.Edges() {
		if e.Conditions.Len() != 1 {
			t.Fatalf("expected exactly one path condition per joined edge, got %d", e.Conditions.Len())
		}
	}
}

func TestLatestJoinRecordsMergeBlockOnDisagreement(t *testing.T) {
	a := NewLatest()
	a.Insert(1, AtLocation(ir.Location{Block: 2, Stmt: 0}))
	b := NewLatest()
	b.Insert(1, AtLocation(ir.Location{Block: 3, Stmt: 0}))

	a.Join(b, 4)
	if a.Get(ir.NewPlace(1)) != AtBlockJoin(4) {
		t.Fatalf("expected disagreeing locals to collapse to the merge-block marker")
	}
}

func TestBridgeTearsDownEverythingNotInTarget(t *testing.T) {
	repacker, x, r, _ := fixture(t)
	start := NewBorrowsState()
	start.AddReborrow(Reborrow{
		Blocked:         LocalMRP(Current(ir.NewPlace(x))),
		Assigned:        Current(ir.NewPlace(r)),
		Mutability:      Mut,
		ReserveLocation: ir.Location{Block: 1, Stmt: 0},
		Region:          10,
	})

	target := NewBorrowsState() // expects x fully accessible again

	bridge := start.Bridge(repacker, target, AtLocation(ir.Location{Block: 1, Stmt: 1}))
	actions := bridge.UnblockGraph.Actions()
	if len(actions) != 1 || actions[0].Kind != TerminateReborrow {
		t.Fatalf("expected bridge to terminate the live reborrow, got %v", actions)
	}
	if start.Graph().Len() != 0 {
		t.Fatalf("expected the bridged state to have no remaining edges")
	}
	if len(bridge.AddedReborrows) != 0 || len(bridge.Expands) != 0 {
		t.Fatalf("expected nothing for start to still add, since target has strictly less")
	}
}

func TestBridgeReportsAdditionsFromTarget(t *testing.T) {
	repacker, x, r, _ := fixture(t)
	start := NewBorrowsState() // nothing borrowed yet

	target := NewBorrowsState()
	rb := Reborrow{
		Blocked:         LocalMRP(Current(ir.NewPlace(x))),
		Assigned:        Current(ir.NewPlace(r)),
		Mutability:      Mut,
		ReserveLocation: ir.Location{Block: 2, Stmt: 0},
		Region:          10,
	}
	target.AddReborrow(rb)

	bridge := start.Bridge(repacker, target, AtLocation(ir.Location{Block: 2, Stmt: 1}))
	if len(bridge.AddedReborrows) != 1 || bridge.AddedReborrows[0].ReserveLocation != rb.ReserveLocation {
		t.Fatalf("expected target's reborrow to be reported as an addition, got %v", bridge.AddedReborrows)
	}
	if len(bridge.UnblockGraph.Actions()) != 0 {
		t.Fatalf("expected no teardown when start has nothing target lacks")
	}
}

func TestRemoveEdgeAndSetLatestExemptsSharedBorrows(t *testing.T) {
	repacker, x, r, s := fixture(t)
	state := NewBorrowsState()

	mutRb := Reborrow{
		Blocked:         LocalMRP(Current(ir.NewPlace(x))),
		Assigned:        Current(ir.NewPlace(r)),
		Mutability:      Mut,
		ReserveLocation: ir.Location{Block: 1, Stmt: 0},
		Region:          10,
	}
	sharedRb := Reborrow{
		Blocked:         LocalMRP(Current(ir.NewPlace(x))),
		Assigned:        Current(ir.NewPlace(s)),
		Mutability:      Shared,
		ReserveLocation: ir.Location{Block: 1, Stmt: 1},
		Region:          11,
	}
	state.AddReborrow(mutRb)
	state.AddReborrow(sharedRb)

	teardown := AtLocation(ir.Location{Block: 1, Stmt: 4})
	state.RemoveEdgeAndSetLatest(repacker, KindReborrow(mutRb), teardown)
	state.RemoveEdgeAndSetLatest(repacker, KindReborrow(sharedRb), teardown)

	if state.GetLatest(ir.NewPlace(r)) != teardown {
		t.Fatalf("expected Latest[r] to be set to the teardown location for the mut reborrow")
	}
	if state.GetLatest(ir.NewPlace(s)) == teardown {
		t.Fatalf("expected Latest[s] to stay untouched since a shared borrow is exempt")
	}
}

func TestMinimizeRemovesOldUnblockedEdges(t *testing.T) {
	repacker, x, r, _ := fixture(t)
	state := NewBorrowsState()

	rb := Reborrow{
		Blocked:         LocalMRP(Current(ir.NewPlace(x))),
		Assigned:        Old(PlaceSnapshot{Place: ir.NewPlace(r), At: AtLocation(ir.Location{Block: 1, Stmt: 0})}),
		Mutability:      Mut,
		ReserveLocation: ir.Location{Block: 1, Stmt: 0},
		Region:          10,
	}
	state.AddReborrow(rb)

	if !state.Minimize(repacker) {
		t.Fatalf("expected Minimize to report a change")
	}
	if state.Graph().Len() != 0 {
		t.Fatalf("expected the reborrow with an old, unblocked assignee to be removed, got %d edge(s)", state.Graph().Len())
	}
}

func TestMinimizeRemovesUnblockedBorrowExpansions(t *testing.T) {
	repacker, _, r, _ := fixture(t)
	state := NewBorrowsState()

	de := NewBorrowExpansion(repacker, Current(ProjectDeref(repacker, ir.NewPlace(r))), nil, ir.Location{Block: 1, Stmt: 0})
	state.Graph().Insert(BorrowsEdge{Conditions: NewPathConditions(), Kind: KindDerefExpansion(de)})

	if !state.Minimize(repacker) {
		t.Fatalf("expected Minimize to report a change")
	}
	if state.Graph().Len() != 0 {
		t.Fatalf("expected the unblocked borrow expansion to be removed, got %d edge(s)", state.Graph().Len())
	}
}
