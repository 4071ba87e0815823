package snapshot

import (
	"path/filepath"
	"testing"

	"borrowgraph/internal/borrows"
	"borrowgraph/internal/ir"
)

func TestEncodeDecodeRoundTripsReborrow(t *testing.T) {
	state := borrows.NewBorrowsState()
	x := ir.Local(1)
	r := ir.Local(2)

	rb := borrows.Reborrow{
		Blocked:         borrows.LocalMRP(borrows.Current(ir.NewPlace(x))),
		Assigned:        borrows.Current(ir.NewPlace(r)),
		Mutability:      borrows.Mut,
		ReserveLocation: ir.Location{Block: 1, Stmt: 0},
		Region:          10,
	}
	state.AddReborrow(rb)
	state.SetLatest(ir.NewPlace(r), borrows.AtLocation(ir.Location{Block: 1, Stmt: 0}))

	path := filepath.Join(t.TempDir(), "state.mp")
	if err := Encode(path, state); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, err := Decode(path)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if got.Graph().Len() != 1 {
		t.Fatalf("expected exactly one edge after round trip, got %d", got.Graph().Len())
	}
	reborrows := got.Graph().Reborrows()
	if len(reborrows) != 1 {
		t.Fatalf("expected exactly one reborrow, got %d", len(reborrows))
	}
	if reborrows[0].Mutability != borrows.Mut {
		t.Fatalf("expected mutability to round-trip as Mut")
	}
	if got.GetLatest(ir.NewPlace(r)) != borrows.AtLocation(ir.Location{Block: 1, Stmt: 0}) {
		t.Fatalf("expected Latest[r] to round-trip")
	}
}

func TestEncodeDecodeRoundTripsAbstraction(t *testing.T) {
	state := borrows.NewBorrowsState()
	x := ir.Local(1)
	y := ir.Local(2)

	edge := borrows.AbstractionBlockEdge{
		Inputs:  []borrows.AbstractionInputTarget{borrows.InputPlace(borrows.LocalMRP(borrows.Current(ir.NewPlace(x))))},
		Outputs: []borrows.AbstractionOutputTarget{borrows.OutputPlace(borrows.Current(ir.NewPlace(y)))},
	}
	at := borrows.NewFunctionCallAbstraction(ir.Location{Block: 1, Stmt: 2}, 42, nil, []borrows.ArgEdge{{ArgIndex: 0, Edge: edge}})
	state.AddRegionAbstraction(borrows.AbstractionEdge{Type: at})

	path := filepath.Join(t.TempDir(), "abstraction.mp")
	if err := Encode(path, state); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(path)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	edges := got.Graph().AbstractionEdges()
	if len(edges) != 1 {
		t.Fatalf("expected exactly one abstraction edge, got %d", len(edges))
	}
	if edges[0].Type.CalleeID != 42 {
		t.Fatalf("expected callee id to round-trip, got %d", edges[0].Type.CalleeID)
	}
}
