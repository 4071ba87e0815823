package main

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"borrowgraph/internal/borrows"
	"borrowgraph/internal/ir"
)

// typeDoc is one [[types]] entry in a toy program description.
type typeDoc struct {
	ID      uint32   `toml:"id"`
	Kind    string   `toml:"kind"`
	Elem    uint32   `toml:"elem"`
	Regions []uint32 `toml:"regions"`
	Fields  []uint32 `toml:"fields"`
}

type localDoc struct {
	ID   uint32 `toml:"id"`
	Type uint32 `toml:"type"`
}

type blockDoc struct {
	ID uint32 `toml:"id"`
}

type edgeDoc struct {
	From uint32 `toml:"from"`
	To   uint32 `toml:"to"`
}

// stmtDoc is one [[statements]] entry: a single engine operation to apply
// at a given program point, driving the engine the way a MIR visitor would
// statement by statement.
type stmtDoc struct {
	Block         uint32 `toml:"block"`
	Stmt          uint32 `toml:"stmt"`
	Op            string `toml:"op"`
	BlockedLocal  uint32 `toml:"blocked_local"`
	AssignedLocal uint32 `toml:"assigned_local"`
	Mutability    string `toml:"mutability"`
	Region        uint32 `toml:"region"`
}

type programDoc struct {
	Entry      uint32     `toml:"entry"`
	Types      []typeDoc  `toml:"types"`
	Locals     []localDoc `toml:"locals"`
	Blocks     []blockDoc `toml:"blocks"`
	Edges      []edgeDoc  `toml:"edges"`
	Statements []stmtDoc  `toml:"statements"`
}

// Program is a parsed toy MIR-like body plus the statement-level engine
// operations to drive over it.
type Program struct {
	Repacker   *ir.SimpleRepacker
	LocalByID  map[uint32]ir.Local
	Statements []stmtDoc
}

func parseKind(s string) (ir.TypeKind, error) {
	switch s {
	case "owned":
		return ir.KindOwned, nil
	case "ref":
		return ir.KindRef, nil
	case "mut_ref":
		return ir.KindMutRef, nil
	case "struct":
		return ir.KindStruct, nil
	default:
		return 0, fmt.Errorf("unknown type kind %q", s)
	}
}

// LoadProgram parses a toy program description from path.
func LoadProgram(path string) (*Program, error) {
	var doc programDoc
	if _, err := toml.DecodeFile(path, &doc); err != nil {
		return nil, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}

	types := make(map[ir.TypeID]ir.TypeDecl, len(doc.Types))
	for _, t := range doc.Types {
		kind, err := parseKind(t.Kind)
		if err != nil {
			return nil, fmt.Errorf("%s: type %d: %w", path, t.ID, err)
		}
		regions := make([]ir.RegionID, 0, len(t.Regions))
		for _, r := range t.Regions {
			regions = append(regions, ir.RegionID(r))
		}
		fields := make([]ir.TypeID, 0, len(t.Fields))
		for _, f := range t.Fields {
			fields = append(fields, ir.TypeID(f))
		}
		types[ir.TypeID(t.ID)] = ir.TypeDecl{Kind: kind, Elem: ir.TypeID(t.Elem), Regions: regions, Fields: fields}
	}

	body := ir.NewBody(ir.BlockID(doc.Entry))
	for _, b := range doc.Blocks {
		body.AddBlock(ir.BlockID(b.ID))
	}
	for _, e := range doc.Edges {
		body.AddEdge(ir.BlockID(e.From), ir.BlockID(e.To))
	}

	localByID := make(map[uint32]ir.Local, len(doc.Locals))
	for _, l := range doc.Locals {
		local := body.AddLocal(ir.TypeID(l.Type))
		localByID[l.ID] = local
	}

	repacker := ir.NewSimpleRepacker(body, types)
	return &Program{Repacker: repacker, LocalByID: localByID, Statements: doc.Statements}, nil
}

func parseMutability(s string) (borrows.Mutability, error) {
	switch s {
	case "", "shared":
		return borrows.Shared, nil
	case "mut":
		return borrows.Mut, nil
	default:
		return 0, fmt.Errorf("unknown mutability %q", s)
	}
}

// toReborrow builds a Reborrow edge from a "reborrow" statement.
func (p *Program) toReborrow(s stmtDoc) (borrows.Reborrow, error) {
	mut, err := parseMutability(s.Mutability)
	if err != nil {
		return borrows.Reborrow{}, err
	}
	blocked, ok := p.LocalByID[s.BlockedLocal]
	if !ok {
		return borrows.Reborrow{}, fmt.Errorf("unknown blocked_local %d", s.BlockedLocal)
	}
	assigned, ok := p.LocalByID[s.AssignedLocal]
	if !ok {
		return borrows.Reborrow{}, fmt.Errorf("unknown assigned_local %d", s.AssignedLocal)
	}
	return borrows.Reborrow{
		Blocked:         borrows.LocalMRP(borrows.Current(ir.NewPlace(blocked))),
		Assigned:        borrows.Current(ir.NewPlace(assigned)),
		Mutability:      mut,
		ReserveLocation: ir.Location{Block: ir.BlockID(s.Block), Stmt: s.Stmt},
		Region:          ir.RegionID(s.Region),
	}, nil
}
