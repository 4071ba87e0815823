package ir

import (
	"fmt"

	"fortio.org/safecast"
)

// LocalDecl is the oracle's record for one local: its static type.
type LocalDecl struct {
	Ty TypeID
}

// CFGEdge is a directed edge between two basic blocks in the body's control
// flow graph.
type CFGEdge struct {
	From, To BlockID
}

// Body is the minimal MIR-like function body the engine is driven over: a
// local table, a set of basic blocks connected by a CFG, and an entry
// block. The full statement/terminator payload is the visitor's concern
// (out of scope here); the engine only needs typing and CFG shape.
type Body struct {
	Locals []LocalDecl // index 0 unused; locals are 1-based
	Edges  []CFGEdge
	Entry  BlockID
	Blocks []BlockID
}

// NewBody creates an empty body with the given entry block.
func NewBody(entry BlockID) *Body {
	return &Body{Locals: []LocalDecl{{}}, Entry: entry, Blocks: []BlockID{entry}}
}

// AddLocal registers a new local of the given type and returns its id.
func (b *Body) AddLocal(ty TypeID) Local {
	value, err := safecast.Conv[uint32](len(b.Locals))
	if err != nil {
		panic(fmt.Errorf("local table overflow: %w", err))
	}
	id := Local(value)
	b.Locals = append(b.Locals, LocalDecl{Ty: ty})
	return id
}

// AddBlock registers a new basic block.
func (b *Body) AddBlock(id BlockID) {
	for _, existing := range b.Blocks {
		if existing == id {
			return
		}
	}
	b.Blocks = append(b.Blocks, id)
}

// AddEdge records a CFG edge from -> to.
func (b *Body) AddEdge(from, to BlockID) {
	b.Edges = append(b.Edges, CFGEdge{From: from, To: to})
}

func (b *Body) preds(block BlockID) []BlockID {
	var out []BlockID
	for _, e := range b.Edges {
		if e.To == block {
			out = append(out, e.From)
		}
	}
	return out
}

// dominators computes, for each registered block, its full set of
// dominators via the classic iterative data-flow fixpoint.
// This is a small, self-contained graph algorithm rather than a borrowed
// domain dependency: no library in the retrieval pack exposes dominance
// over an arbitrary caller-built CFG, so it is implemented directly (see
// DESIGN.md).
func (b *Body) dominators() map[BlockID]map[BlockID]bool {
	doms := make(map[BlockID]map[BlockID]bool, len(b.Blocks))
	all := make(map[BlockID]bool, len(b.Blocks))
	for _, blk := range b.Blocks {
		all[blk] = true
	}
	for _, blk := range b.Blocks {
		if blk == b.Entry {
			doms[blk] = map[BlockID]bool{blk: true}
		} else {
			cp := make(map[BlockID]bool, len(all))
			for k := range all {
				cp[k] = true
			}
			doms[blk] = cp
		}
	}
	changed := true
	for changed {
		changed = false
		for _, blk := range b.Blocks {
			if blk == b.Entry {
				continue
			}
			preds := b.preds(blk)
			var merged map[BlockID]bool
			for _, p := range preds {
				pd := doms[p]
				if merged == nil {
					merged = make(map[BlockID]bool, len(pd))
					for k := range pd {
						merged[k] = true
					}
					continue
				}
				for k := range merged {
					if !pd[k] {
						delete(merged, k)
					}
				}
			}
			if merged == nil {
				merged = map[BlockID]bool{}
			}
			merged[blk] = true
			if !setsEqual(merged, doms[blk]) {
				doms[blk] = merged
				changed = true
			}
		}
	}
	return doms
}

func setsEqual(a, b map[BlockID]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

// SimpleRepacker is a concrete Repacker over an in-memory Body and type
// table. It is the stand-in used by tests and cmd/borrowgraph; a production
// integration would instead adapt the real compiler's type checker.
type SimpleRepacker struct {
	body  *Body
	types map[TypeID]TypeDecl
	proj  *projInterner
	facts LoanFacts
	doms  map[BlockID]map[BlockID]bool
}

// NewSimpleRepacker builds a repacker over body and the given type table.
func NewSimpleRepacker(body *Body, types map[TypeID]TypeDecl) *SimpleRepacker {
	if types == nil {
		types = map[TypeID]TypeDecl{}
	}
	return &SimpleRepacker{
		body:  body,
		types: types,
		proj:  newProjInterner(),
		facts: NoLoanFacts,
	}
}

// WithLoanFacts installs a LoanFacts implementation and returns the
// receiver for chaining.
func (r *SimpleRepacker) WithLoanFacts(f LoanFacts) *SimpleRepacker {
	if f != nil {
		r.facts = f
	}
	return r
}

func (r *SimpleRepacker) Body() *Body { return r.body }

func (r *SimpleRepacker) TypeOf(p Place) TypeID {
	if !p.IsValid() || int(p.Local) >= len(r.body.Locals) {
		return NoTypeID
	}
	ty := r.body.Locals[p.Local].Ty
	for _, elem := range r.proj.lookup(p.Path) {
		decl, ok := r.types[ty]
		if !ok {
			return NoTypeID
		}
		switch elem.Kind {
		case ElemDeref:
			ty = decl.Elem
		case ElemField:
			if int(elem.Payload) >= len(decl.Fields) {
				return NoTypeID
			}
			ty = decl.Fields[elem.Payload]
		default:
			// Index/ConstantIndex/Subslice/Downcast/OpaqueCast preserve
			// the element type in this minimal oracle.
			if decl.Elem != NoTypeID {
				ty = decl.Elem
			}
		}
	}
	return ty
}

func (r *SimpleRepacker) Type(t TypeID) (TypeDecl, bool) {
	d, ok := r.types[t]
	return d, ok
}

func (r *SimpleRepacker) IsRef(t TypeID) bool {
	d, ok := r.types[t]
	return ok && (d.Kind == KindRef || d.Kind == KindMutRef)
}

func (r *SimpleRepacker) IsMutRef(t TypeID) bool {
	d, ok := r.types[t]
	return ok && d.Kind == KindMutRef
}

func (r *SimpleRepacker) Project(p Place, elem ProjElem) Place {
	elems := append(append([]ProjElem(nil), r.proj.lookup(p.Path)...), elem)
	return Place{Local: p.Local, Path: r.proj.intern(elems)}
}

func (r *SimpleRepacker) Prefix(p Place) (Place, bool) {
	elems := r.proj.lookup(p.Path)
	if len(elems) == 0 {
		return Place{}, false
	}
	return Place{Local: p.Local, Path: r.proj.intern(elems[:len(elems)-1])}, true
}

func (r *SimpleRepacker) Projection(p Place) []ProjElem {
	return append([]ProjElem(nil), r.proj.lookup(p.Path)...)
}

func (r *SimpleRepacker) Dominates(a, b BlockID) bool {
	if r.doms == nil {
		r.doms = r.body.dominators()
	}
	set, ok := r.doms[b]
	return ok && set[a]
}

func (r *SimpleRepacker) LoanFacts() LoanFacts { return r.facts }

// NewPlace constructs a bare-local place (no projection).
func NewPlace(local Local) Place {
	return Place{Local: local}
}
