package ir

import (
	"fmt"
	"strings"
)

// ElemKind enumerates the one-step projections a place can carry.
type ElemKind uint8

const (
	ElemDeref ElemKind = iota
	ElemField
	ElemDowncast
	ElemIndex
	ElemConstantIndex
	ElemSubslice
	ElemOpaqueCast
)

func (k ElemKind) String() string {
	switch k {
	case ElemDeref:
		return "deref"
	case ElemField:
		return "field"
	case ElemDowncast:
		return "downcast"
	case ElemIndex:
		return "index"
	case ElemConstantIndex:
		return "const_index"
	case ElemSubslice:
		return "subslice"
	case ElemOpaqueCast:
		return "opaque_cast"
	default:
		return "?"
	}
}

// ProjElem is a single projection step. Payload is meaningful only for
// ElemField (field index) and ElemDowncast (variant index).
type ProjElem struct {
	Kind    ElemKind
	Payload uint32
}

func (e ProjElem) String() string {
	switch e.Kind {
	case ElemField, ElemDowncast:
		return fmt.Sprintf("%s(%d)", e.Kind, e.Payload)
	default:
		return e.Kind.String()
	}
}

// ProjKey is an interned projection path, usable as a map key and safe to
// compare for equality. The empty key denotes "no projection" (a bare
// local).
type ProjKey string

// projInterner stores the canonical []ProjElem backing each ProjKey so
// that callers can recover the sequence after interning it. Mirrors the
// path-interning scheme in the teacher's borrow table (CanonicalPlace /
// internPath), generalized from field/index/deref to the full MIR
// projection-element set.
type projInterner struct {
	paths map[ProjKey][]ProjElem
}

func newProjInterner() *projInterner {
	return &projInterner{paths: make(map[ProjKey][]ProjElem)}
}

func (pi *projInterner) intern(elems []ProjElem) ProjKey {
	if len(elems) == 0 {
		return ProjKey("")
	}
	var b strings.Builder
	for _, e := range elems {
		fmt.Fprintf(&b, "%d:%d;", e.Kind, e.Payload)
	}
	key := ProjKey(b.String())
	if _, ok := pi.paths[key]; !ok {
		pi.paths[key] = append([]ProjElem(nil), elems...)
	}
	return key
}

func (pi *projInterner) lookup(key ProjKey) []ProjElem {
	return pi.paths[key]
}
