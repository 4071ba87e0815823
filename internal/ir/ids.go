// Package ir provides the minimal MIR-like surface the borrows engine
// consumes: locals, basic blocks, locations, projections and a small typing
// oracle. The full IR, its region inference, and its dominator analysis are
// external collaborators in production; this package is the stand-in used
// to drive and test the engine.
package ir

import "fmt"

// Local identifies a stack slot. The zero value is never a valid local.
type Local uint32

// NoLocal marks the absence of a local.
const NoLocal Local = 0

// IsValid reports whether l names a real local.
func (l Local) IsValid() bool { return l != NoLocal }

func (l Local) String() string { return fmt.Sprintf("_%d", uint32(l)) }

// BlockID identifies a basic block.
type BlockID uint32

// NoBlock marks the absence of a block.
const NoBlock BlockID = 0

// IsValid reports whether b names a real block.
func (b BlockID) IsValid() bool { return b != NoBlock }

func (b BlockID) String() string { return fmt.Sprintf("bb%d", uint32(b)) }

// Location is a statement position within a basic block. Stmt indexes are
// 0-based; the terminator is conventionally addressed by the block's
// instruction count.
type Location struct {
	Block BlockID
	Stmt  uint32
}

// IsValid reports whether the location names a real block.
func (l Location) IsValid() bool { return l.Block.IsValid() }

func (l Location) String() string { return fmt.Sprintf("%s[%d]", l.Block, l.Stmt) }

// RegionID is an opaque lifetime variable.
type RegionID uint32

// NoRegion marks the absence of a region.
const NoRegion RegionID = 0

// IsValid reports whether r names a real region.
func (r RegionID) IsValid() bool { return r != NoRegion }

// FuncID identifies a callee in a FunctionCall abstraction.
type FuncID uint32
