package borrows

import (
	"sort"

	"borrowgraph/internal/borrowlog"
	"borrowgraph/internal/ir"
)

// UnblockActionKind tags the three teardown actions an UnblockGraph can
// schedule (spec.md §4.F).
type UnblockActionKind uint8

const (
	// TerminateReborrow ends a reborrow, restoring the blocked place.
	TerminateReborrow UnblockActionKind = iota
	// Collapse removes a DerefExpansion, folding its children back into
	// the base place.
	Collapse
	// TerminateAbstraction removes a function-call or loop abstraction
	// summary.
	TerminateAbstraction
)

func (k UnblockActionKind) String() string {
	switch k {
	case TerminateReborrow:
		return "terminate_reborrow"
	case Collapse:
		return "collapse"
	case TerminateAbstraction:
		return "terminate_abstraction"
	default:
		return "?"
	}
}

// UnblockAction is one scheduled teardown step, carrying the edge it
// removes so a caller (the bridge operation, or a CLI dump) can report why.
type UnblockAction struct {
	Kind UnblockActionKind
	Edge BorrowsEdge
}

// UnblockGraph plans the order in which edges must be removed to make a
// target place (or set of places) fully accessible again, respecting the
// dependency order of the borrows graph (an edge cannot be torn down before
// everything it itself blocks is torn down). It is a separate, disposable
// plan built from a graph snapshot, not a mutation of the graph itself
// (spec.md §4.F).
type UnblockGraph struct {
	actions []UnblockAction
	// warnings records teardown cycles the planner ran into; these are
	// non-fatal per spec.md §7 and leave the planner's best-effort
	// ordering intact.
	warnings []string
	// inProgress tracks edges currently being unblocked on the call stack,
	// to detect a teardown cycle (an edge whose own dependency chain loops
	// back to it) rather than recurse forever.
	inProgress map[string]bool
}

// NewUnblockGraph builds an UnblockGraph that plans how to unblock every
// place in targets, walking the dependency chain recorded in g.
func NewUnblockGraph(r ir.Repacker, g *BorrowsGraph, targets []MaybeRemotePlace) *UnblockGraph {
	ug := &UnblockGraph{}
	work := g.Clone()
	for _, t := range targets {
		ug.unblockPlace(r, work, t)
	}
	borrowlog.Planner().Debug("planned unblock", "targets", len(targets), "actions", len(ug.actions))
	if ug.HasError() {
		borrowlog.Planner().Warn("teardown cycle found; keeping best-effort order", "warnings", ug.warnings)
	}
	return ug
}

// unblockPlace schedules every edge blocking place, recursively unblocking
// whatever blocks those edges' own dependencies first, removing scheduled
// edges from work as it goes so the same edge is never scheduled twice.
func (ug *UnblockGraph) unblockPlace(r ir.Repacker, work *BorrowsGraph, place MaybeRemotePlace) {
	edges := work.EdgesBlocking(place)
	sort.Slice(edges, func(i, j int) bool { return edges[i].Kind.key() < edges[j].Kind.key() })
	if len(edges) == 0 {
		return
	}
	for _, e := range edges {
		if !work.HasEdge(e.Kind) {
			continue // already torn down while unblocking a sibling
		}
		ug.unblockEdge(r, work, e)
	}
}

func (ug *UnblockGraph) unblockEdge(r ir.Repacker, work *BorrowsGraph, e BorrowsEdge) {
	key := e.Kind.key()
	if ug.inProgress == nil {
		ug.inProgress = make(map[string]bool)
	}
	if ug.inProgress[key] {
		ug.warnings = append(ug.warnings, "cycle detected tearing down edge "+key)
		return
	}
	ug.inProgress[key] = true
	defer delete(ug.inProgress, key)

	for _, by := range e.Kind.BlockedByPlaces(r) {
		ug.unblockPlace(r, work, LocalMRP(by))
	}
	if !work.HasEdge(e.Kind) {
		return
	}
	work.Remove(e.Kind)
	switch e.Kind.Kind {
	case EdgeReborrow:
		ug.actions = append(ug.actions, UnblockAction{Kind: TerminateReborrow, Edge: e})
	case EdgeDerefExpansion:
		ug.actions = append(ug.actions, UnblockAction{Kind: Collapse, Edge: e})
	case EdgeAbstraction:
		ug.actions = append(ug.actions, UnblockAction{Kind: TerminateAbstraction, Edge: e})
	case EdgeRPM:
		// Membership edges carry no independent teardown action; they
		// are dropped alongside the place/region they describe.
		if log := borrowlog.Planner(); log.IsTrace() {
			log.Trace("dropping region projection membership edge during unblock", "edge", e.Kind.key())
		}
	}
}

// Actions returns the planned teardown steps in dependency order: an action
// never appears before an action tearing down something it itself depends
// on.
func (ug *UnblockGraph) Actions() []UnblockAction {
	return append([]UnblockAction(nil), ug.actions...)
}

// HasError reports whether the planner ran into a teardown cycle (an edge
// whose dependency walk looped back to it). It does not stop linearization:
// per spec.md §7 the best-effort action order from Actions is still applied,
// and this is surfaced only as a warning.
func (ug *UnblockGraph) HasError() bool { return len(ug.warnings) > 0 }

// Warnings returns the planner's non-fatal diagnostics.
func (ug *UnblockGraph) Warnings() []string { return append([]string(nil), ug.warnings...) }

// KillReborrow schedules a single Reborrow's termination directly, without
// walking dependents; used when the caller already knows the reborrow is a
// leaf (e.g. the end of the borrow's own scope).
func (ug *UnblockGraph) KillReborrow(e BorrowsEdge) {
	ug.actions = append(ug.actions, UnblockAction{Kind: TerminateReborrow, Edge: e})
}

// KillAbstraction schedules a single abstraction's termination directly.
func (ug *UnblockGraph) KillAbstraction(e BorrowsEdge) {
	ug.actions = append(ug.actions, UnblockAction{Kind: TerminateAbstraction, Edge: e})
}

// hasAction reports whether an action already scheduled the teardown of the
// edge with this kind's key, so a caller appending extra kill actions (e.g.
// BorrowsState.Bridge) does not schedule the same edge twice.
func (ug *UnblockGraph) hasAction(kind BorrowsEdgeKind) bool {
	key := kind.key()
	for _, a := range ug.actions {
		if a.Edge.Kind.key() == key {
			return true
		}
	}
	return false
}
