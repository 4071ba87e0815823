package ir

import "testing"

func TestDominatorsStraightLine(t *testing.T) {
	body := NewBody(1)
	body.AddBlock(2)
	body.AddBlock(3)
	body.AddEdge(1, 2)
	body.AddEdge(2, 3)

	r := NewSimpleRepacker(body, nil)
	if !r.Dominates(1, 3) {
		t.Fatalf("expected block 1 to dominate block 3")
	}
	if !r.Dominates(2, 3) {
		t.Fatalf("expected block 2 to dominate block 3")
	}
	if r.Dominates(3, 1) {
		t.Fatalf("block 3 must not dominate block 1")
	}
}

func TestDominatorsDiamondJoinNotDominated(t *testing.T) {
	body := NewBody(1)
	body.AddBlock(2)
	body.AddBlock(3)
	body.AddBlock(4)
	body.AddEdge(1, 2)
	body.AddEdge(1, 3)
	body.AddEdge(2, 4)
	body.AddEdge(3, 4)

	r := NewSimpleRepacker(body, nil)
	if !r.Dominates(1, 4) {
		t.Fatalf("entry must dominate the join block")
	}
	if r.Dominates(2, 4) {
		t.Fatalf("neither diamond arm should dominate the join block")
	}
	if r.Dominates(3, 4) {
		t.Fatalf("neither diamond arm should dominate the join block")
	}
}

func TestProjectAndPrefixRoundTrip(t *testing.T) {
	types := map[TypeID]TypeDecl{
		1: {Kind: KindStruct, Fields: []TypeID{2, 3}},
		2: {Kind: KindOwned},
		3: {Kind: KindOwned},
	}
	body := NewBody(1)
	local := body.AddLocal(1)
	r := NewSimpleRepacker(body, types)

	base := NewPlace(local)
	field := r.Project(base, ProjElem{Kind: ElemField, Payload: 1})

	if r.TypeOf(field) != 3 {
		t.Fatalf("expected field type 3, got %d", r.TypeOf(field))
	}

	prefix, ok := r.Prefix(field)
	if !ok {
		t.Fatalf("expected a prefix for a one-level projection")
	}
	if prefix != base {
		t.Fatalf("expected prefix to round-trip to the base place")
	}

	if _, ok := r.Prefix(base); ok {
		t.Fatalf("a bare local must have no prefix")
	}
}

func TestIsRefAndIsMutRef(t *testing.T) {
	types := map[TypeID]TypeDecl{
		1: {Kind: KindRef, Elem: 3, Regions: []RegionID{10}},
		2: {Kind: KindMutRef, Elem: 3, Regions: []RegionID{11}},
		3: {Kind: KindOwned},
	}
	body := NewBody(1)
	shared := body.AddLocal(1)
	mut := body.AddLocal(2)
	r := NewSimpleRepacker(body, types)

	if !r.IsRef(r.TypeOf(NewPlace(shared))) {
		t.Fatalf("expected shared ref local to be IsRef")
	}
	if r.IsMutRef(r.TypeOf(NewPlace(shared))) {
		t.Fatalf("shared ref local must not be IsMutRef")
	}
	if !r.IsMutRef(r.TypeOf(NewPlace(mut))) {
		t.Fatalf("expected mut ref local to be IsMutRef")
	}
}
