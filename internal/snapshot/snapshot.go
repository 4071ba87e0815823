// Package snapshot serializes a borrows.BorrowsState to a compact binary
// form with github.com/vmihailenco/msgpack/v5, the same encoder/decoder
// pairing and atomic-rename write discipline the teacher's
// internal/driver disk cache uses for its module cache entries. The
// encoding captures every edge's structural content faithfully, but does
// not re-intern projection paths into a destination ir.Repacker's table:
// decoded places carry the original's projection-key strings verbatim,
// which is sufficient for display and round-trip comparison but not for
// resuming live Project/Prefix walks against a different Repacker
// instance (see DESIGN.md).
package snapshot

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"

	"borrowgraph/internal/borrows"
	"borrowgraph/internal/ir"
)

type locationDTO struct {
	Block uint32 `msgpack:"block"`
	Stmt  uint32 `msgpack:"stmt"`
}

type snapLocDTO struct {
	Kind  uint8       `msgpack:"kind"`
	Loc   locationDTO `msgpack:"loc"`
	Block uint32      `msgpack:"block"`
}

type placeDTO struct {
	Local uint32 `msgpack:"local"`
	Path  string `msgpack:"path"`
}

type maybeOldPlaceDTO struct {
	Place placeDTO   `msgpack:"place"`
	Old   bool       `msgpack:"old"`
	At    snapLocDTO `msgpack:"at"`
}

type maybeRemotePlaceDTO struct {
	Remote bool             `msgpack:"remote"`
	Local  maybeOldPlaceDTO `msgpack:"local"`
	Origin uint32           `msgpack:"origin"`
}

type regionProjectionDTO struct {
	Place maybeOldPlaceDTO `msgpack:"place"`
	Index int              `msgpack:"index"`
}

type reborrowDTO struct {
	Blocked         maybeRemotePlaceDTO `msgpack:"blocked"`
	Assigned        maybeOldPlaceDTO    `msgpack:"assigned"`
	Mutability      uint8               `msgpack:"mutability"`
	ReserveLocation locationDTO         `msgpack:"reserve_location"`
	Region          uint32              `msgpack:"region"`
}

type projElemDTO struct {
	Kind    uint8  `msgpack:"kind"`
	Payload uint32 `msgpack:"payload"`
}

type derefExpansionDTO struct {
	Kind      uint8         `msgpack:"kind"`
	Base      maybeOldPlaceDTO `msgpack:"base"`
	Expansion []projElemDTO `msgpack:"expansion"`
	Location  locationDTO   `msgpack:"location"`
}

type abstractionTargetDTO struct {
	IsRegion bool                `msgpack:"is_region"`
	Place    maybeRemotePlaceDTO `msgpack:"place"`
	// OutPlace is populated instead of Place for output targets, which
	// carry a MaybeOldPlace rather than a MaybeRemotePlace.
	OutPlace maybeOldPlaceDTO    `msgpack:"out_place"`
	Region   regionProjectionDTO `msgpack:"region"`
}

type abstractionBlockEdgeDTO struct {
	Inputs  []abstractionTargetDTO `msgpack:"inputs"`
	Outputs []abstractionTargetDTO `msgpack:"outputs"`
}

type argEdgeDTO struct {
	ArgIndex int                     `msgpack:"arg_index"`
	Edge     abstractionBlockEdgeDTO `msgpack:"edge"`
}

type abstractionTypeDTO struct {
	Kind      uint8                   `msgpack:"kind"`
	Location  locationDTO             `msgpack:"location"`
	CalleeID  uint32                  `msgpack:"callee_id"`
	TypeArgs  []uint32                `msgpack:"type_args"`
	ArgEdges  []argEdgeDTO            `msgpack:"arg_edges"`
	LoopBlock uint32                  `msgpack:"loop_block"`
	LoopEdge  abstractionBlockEdgeDTO `msgpack:"loop_edge"`
}

type rpmDTO struct {
	Place      maybeRemotePlaceDTO `msgpack:"place"`
	Projection regionProjectionDTO `msgpack:"projection"`
	Location   locationDTO         `msgpack:"location"`
	Direction  uint8               `msgpack:"direction"`
}

type pathConditionDTO struct {
	From uint32 `msgpack:"from"`
	To   uint32 `msgpack:"to"`
}

type edgeDTO struct {
	Conditions []pathConditionDTO `msgpack:"conditions"`
	KindTag    uint8              `msgpack:"kind_tag"`

	Reborrow       *reborrowDTO       `msgpack:"reborrow,omitempty"`
	DerefExpansion *derefExpansionDTO `msgpack:"deref_expansion,omitempty"`
	Abstraction    *abstractionTypeDTO `msgpack:"abstraction,omitempty"`
	RPM            *rpmDTO            `msgpack:"rpm,omitempty"`
}

type latestEntryDTO struct {
	Local uint32     `msgpack:"local"`
	At    snapLocDTO `msgpack:"at"`
}

// StateDoc is the on-disk shape of an encoded BorrowsState.
type StateDoc struct {
	Edges  []edgeDTO        `msgpack:"edges"`
	Latest []latestEntryDTO `msgpack:"latest"`
}

func locToDTO(l ir.Location) locationDTO {
	return locationDTO{Block: uint32(l.Block), Stmt: l.Stmt}
}

func locFromDTO(d locationDTO) ir.Location {
	return ir.Location{Block: ir.BlockID(d.Block), Stmt: d.Stmt}
}

func snapLocToDTO(s borrows.SnapshotLocation) snapLocDTO {
	return snapLocDTO{Kind: uint8(s.Kind), Loc: locToDTO(s.Loc), Block: uint32(s.Block)}
}

func snapLocFromDTO(d snapLocDTO) borrows.SnapshotLocation {
	return borrows.SnapshotLocation{Kind: borrows.SnapshotKind(d.Kind), Loc: locFromDTO(d.Loc), Block: ir.BlockID(d.Block)}
}

func placeToDTO(p ir.Place) placeDTO {
	return placeDTO{Local: uint32(p.Local), Path: string(p.Path)}
}

func placeFromDTO(d placeDTO) ir.Place {
	return ir.Place{Local: ir.Local(d.Local), Path: ir.ProjKey(d.Path)}
}

func mopToDTO(m borrows.MaybeOldPlace) maybeOldPlaceDTO {
	return maybeOldPlaceDTO{Place: placeToDTO(m.Place), Old: m.IsOld(), At: snapLocToDTO(m.At())}
}

func mopFromDTO(d maybeOldPlaceDTO) borrows.MaybeOldPlace {
	if !d.Old {
		return borrows.Current(placeFromDTO(d.Place))
	}
	return borrows.Old(borrows.PlaceSnapshot{Place: placeFromDTO(d.Place), At: snapLocFromDTO(d.At)})
}

func mrpToDTO(m borrows.MaybeRemotePlace) maybeRemotePlaceDTO {
	if origin, ok := m.Remote(); ok {
		return maybeRemotePlaceDTO{Remote: true, Origin: uint32(origin.Param)}
	}
	local, _ := m.AsLocal()
	return maybeRemotePlaceDTO{Local: mopToDTO(local)}
}

func mrpFromDTO(d maybeRemotePlaceDTO) borrows.MaybeRemotePlace {
	if d.Remote {
		return borrows.RemoteMRP(borrows.RemotePlace{Param: ir.Local(d.Origin)})
	}
	return borrows.LocalMRP(mopFromDTO(d.Local))
}

func rpToDTO(rp borrows.RegionProjection) regionProjectionDTO {
	return regionProjectionDTO{Place: mopToDTO(rp.Place), Index: rp.Index}
}

func rpFromDTO(d regionProjectionDTO) borrows.RegionProjection {
	return borrows.RegionProjection{Place: mopFromDTO(d.Place), Index: d.Index}
}

func conditionsToDTO(pcs borrows.PathConditions) []pathConditionDTO {
	out := make([]pathConditionDTO, 0, pcs.Len())
	for _, pc := range pcs.Conditions() {
		out = append(out, pathConditionDTO{From: uint32(pc.From), To: uint32(pc.To)})
	}
	return out
}

func conditionsFromDTO(ds []pathConditionDTO) borrows.PathConditions {
	pcs := borrows.NewPathConditions()
	for _, d := range ds {
		pcs.Insert(borrows.PathCondition{From: ir.BlockID(d.From), To: ir.BlockID(d.To)})
	}
	return pcs
}

func abstractionTargetsToDTO(inputs []borrows.AbstractionInputTarget) []abstractionTargetDTO {
	out := make([]abstractionTargetDTO, 0, len(inputs))
	for _, in := range inputs {
		if rp, ok := in.AsRegion(); ok {
			out = append(out, abstractionTargetDTO{IsRegion: true, Region: rpToDTO(rp)})
			continue
		}
		place, _ := in.AsPlace()
		out = append(out, abstractionTargetDTO{Place: mrpToDTO(place)})
	}
	return out
}

func abstractionTargetsFromDTO(ds []abstractionTargetDTO) []borrows.AbstractionInputTarget {
	out := make([]borrows.AbstractionInputTarget, 0, len(ds))
	for _, d := range ds {
		if d.IsRegion {
			out = append(out, borrows.InputRegion(rpFromDTO(d.Region)))
			continue
		}
		out = append(out, borrows.InputPlace(mrpFromDTO(d.Place)))
	}
	return out
}

func outputTargetsToDTO(outputs []borrows.AbstractionOutputTarget) []abstractionTargetDTO {
	out := make([]abstractionTargetDTO, 0, len(outputs))
	for _, o := range outputs {
		if rp, ok := o.AsRegion(); ok {
			out = append(out, abstractionTargetDTO{IsRegion: true, Region: rpToDTO(rp)})
			continue
		}
		place, _ := o.AsPlace()
		out = append(out, abstractionTargetDTO{OutPlace: mopToDTO(place)})
	}
	return out
}

func outputTargetsFromDTO(ds []abstractionTargetDTO) []borrows.AbstractionOutputTarget {
	out := make([]borrows.AbstractionOutputTarget, 0, len(ds))
	for _, d := range ds {
		if d.IsRegion {
			out = append(out, borrows.OutputRegion(rpFromDTO(d.Region)))
			continue
		}
		out = append(out, borrows.OutputPlace(mopFromDTO(d.OutPlace)))
	}
	return out
}

func blockEdgeToDTO(e borrows.AbstractionBlockEdge) abstractionBlockEdgeDTO {
	return abstractionBlockEdgeDTO{
		Inputs:  abstractionTargetsToDTO(e.Inputs),
		Outputs: outputTargetsToDTO(e.Outputs),
	}
}

func blockEdgeFromDTO(d abstractionBlockEdgeDTO) borrows.AbstractionBlockEdge {
	return borrows.AbstractionBlockEdge{
		Inputs:  abstractionTargetsFromDTO(d.Inputs),
		Outputs: outputTargetsFromDTO(d.Outputs),
	}
}

func edgeKindToDTO(k borrows.BorrowsEdgeKind) (uint8, *reborrowDTO, *derefExpansionDTO, *abstractionTypeDTO, *rpmDTO) {
	switch k.Kind {
	case borrows.EdgeReborrow:
		rb := k.Reborrow
		return uint8(k.Kind), &reborrowDTO{
			Blocked:         mrpToDTO(rb.Blocked),
			Assigned:        mopToDTO(rb.Assigned),
			Mutability:      uint8(rb.Mutability),
			ReserveLocation: locToDTO(rb.ReserveLocation),
			Region:          uint32(rb.Region),
		}, nil, nil, nil
	case borrows.EdgeDerefExpansion:
		de := k.DerefExpansion
		elems := make([]projElemDTO, 0, len(de.Expansion))
		for _, e := range de.Expansion {
			elems = append(elems, projElemDTO{Kind: uint8(e.Kind), Payload: e.Payload})
		}
		return uint8(k.Kind), nil, &derefExpansionDTO{
			Kind:      uint8(de.Kind),
			Base:      mopToDTO(de.Base),
			Expansion: elems,
			Location:  locToDTO(de.Location),
		}, nil, nil
	case borrows.EdgeAbstraction:
		at := k.Abstraction.Type
		typeArgs := make([]uint32, 0, len(at.TypeArgs))
		for _, ta := range at.TypeArgs {
			typeArgs = append(typeArgs, uint32(ta))
		}
		argEdges := make([]argEdgeDTO, 0, len(at.ArgEdges))
		for _, ae := range at.ArgEdges {
			argEdges = append(argEdges, argEdgeDTO{ArgIndex: ae.ArgIndex, Edge: blockEdgeToDTO(ae.Edge)})
		}
		return uint8(k.Kind), nil, nil, &abstractionTypeDTO{
			Kind:      uint8(at.Kind),
			Location:  locToDTO(at.Location),
			CalleeID:  uint32(at.CalleeID),
			TypeArgs:  typeArgs,
			ArgEdges:  argEdges,
			LoopBlock: uint32(at.LoopBlock),
			LoopEdge:  blockEdgeToDTO(at.LoopEdge),
		}, nil
	case borrows.EdgeRPM:
		m := k.RPM
		return uint8(k.Kind), nil, nil, nil, &rpmDTO{
			Place:      mrpToDTO(m.Place),
			Projection: rpToDTO(m.Projection),
			Location:   locToDTO(m.Location),
			Direction:  uint8(m.Direction),
		}
	default:
		return uint8(k.Kind), nil, nil, nil, nil
	}
}

func edgeKindFromDTO(d edgeDTO) borrows.BorrowsEdgeKind {
	switch borrows.EdgeKind(d.KindTag) {
	case borrows.EdgeReborrow:
		rb := borrows.Reborrow{
			Blocked:         mrpFromDTO(d.Reborrow.Blocked),
			Assigned:        mopFromDTO(d.Reborrow.Assigned),
			Mutability:      borrows.Mutability(d.Reborrow.Mutability),
			ReserveLocation: locFromDTO(d.Reborrow.ReserveLocation),
			Region:          ir.RegionID(d.Reborrow.Region),
		}
		return borrows.KindReborrow(rb)
	case borrows.EdgeDerefExpansion:
		elems := make([]ir.ProjElem, 0, len(d.DerefExpansion.Expansion))
		for _, e := range d.DerefExpansion.Expansion {
			elems = append(elems, ir.ProjElem{Kind: ir.ElemKind(e.Kind), Payload: e.Payload})
		}
		de := borrows.DerefExpansion{
			Kind:      borrows.DerefExpansionKind(d.DerefExpansion.Kind),
			Base:      mopFromDTO(d.DerefExpansion.Base),
			Expansion: elems,
			Location:  locFromDTO(d.DerefExpansion.Location),
		}
		return borrows.KindDerefExpansion(de)
	case borrows.EdgeAbstraction:
		src := d.Abstraction
		typeArgs := make([]ir.TypeID, 0, len(src.TypeArgs))
		for _, ta := range src.TypeArgs {
			typeArgs = append(typeArgs, ir.TypeID(ta))
		}
		argEdges := make([]borrows.ArgEdge, 0, len(src.ArgEdges))
		for _, ae := range src.ArgEdges {
			argEdges = append(argEdges, borrows.ArgEdge{ArgIndex: ae.ArgIndex, Edge: blockEdgeFromDTO(ae.Edge)})
		}
		at := borrows.AbstractionType{
			Kind:      borrows.AbstractionKind(src.Kind),
			Location:  locFromDTO(src.Location),
			CalleeID:  ir.FuncID(src.CalleeID),
			TypeArgs:  typeArgs,
			ArgEdges:  argEdges,
			LoopBlock: ir.BlockID(src.LoopBlock),
			LoopEdge:  blockEdgeFromDTO(src.LoopEdge),
		}
		return borrows.KindAbstraction(borrows.AbstractionEdge{Type: at})
	case borrows.EdgeRPM:
		m := borrows.RegionProjectionMember{
			Place:      mrpFromDTO(d.RPM.Place),
			Projection: rpFromDTO(d.RPM.Projection),
			Location:   locFromDTO(d.RPM.Location),
			Direction:  borrows.RPMDirection(d.RPM.Direction),
		}
		return borrows.KindRPM(m)
	default:
		return borrows.BorrowsEdgeKind{}
	}
}

// ToDoc converts state to its serializable representation.
func ToDoc(state *borrows.BorrowsState) StateDoc {
	doc := StateDoc{}
	for _, e := range state.Graph().Edges() {
		kindTag, rb, de, ab, rpm := edgeKindToDTO(e.Kind)
		doc.Edges = append(doc.Edges, edgeDTO{
			Conditions:     conditionsToDTO(e.Conditions),
			KindTag:        kindTag,
			Reborrow:       rb,
			DerefExpansion: de,
			Abstraction:    ab,
			RPM:            rpm,
		})
	}
	for local, loc := range state.Latest().Entries() {
		doc.Latest = append(doc.Latest, latestEntryDTO{Local: uint32(local), At: snapLocToDTO(loc)})
	}
	return doc
}

// FromDoc reconstructs a BorrowsState from its serializable representation.
func FromDoc(doc StateDoc) *borrows.BorrowsState {
	state := borrows.NewBorrowsState()
	for _, e := range doc.Edges {
		kind := edgeKindFromDTO(e)
		state.Graph().Insert(borrows.BorrowsEdge{Conditions: conditionsFromDTO(e.Conditions), Kind: kind})
	}
	for _, le := range doc.Latest {
		state.SetLatest(ir.NewPlace(ir.Local(le.Local)), snapLocFromDTO(le.At))
	}
	return state
}

// Encode writes state to path atomically: it is written to a temp file in
// the destination directory and then renamed into place, the same
// discipline the teacher's disk cache uses to avoid torn writes.
func Encode(path string, state *borrows.BorrowsState) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(path), "borrowgraph-snapshot-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	enc := msgpack.NewEncoder(f)
	if err := enc.Encode(ToDoc(state)); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Decode reads and reconstructs a BorrowsState from path.
func Decode(path string) (*borrows.BorrowsState, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var doc StateDoc
	dec := msgpack.NewDecoder(f)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%s: failed to decode snapshot: %w", path, err)
	}
	return FromDoc(doc), nil
}
