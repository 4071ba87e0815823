package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"borrowgraph/internal/borrowcfg"
	"borrowgraph/internal/borrowlog"
	"borrowgraph/internal/borrows"
	"borrowgraph/internal/ir"
	"borrowgraph/internal/snapshot"
)

var runCmd = &cobra.Command{
	Use:   "run <program.toml>",
	Short: "Drive the engine statement by statement over a program description",
	Args:  cobra.ExactArgs(1),
	RunE:  runRun,
}

func init() {
	runCmd.Flags().String("snapshot-out", "", "write the final state to this msgpack snapshot file")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg := borrowcfg.Default()
	if cfgPath, _ := cmd.Flags().GetString("config"); cfgPath != "" {
		loaded, err := borrowcfg.Load(cfgPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if cfg.DebugCtxTracing {
		borrowlog.SetLevel("trace")
	} else {
		borrowlog.SetLevel(cfg.LogLevel)
	}

	program, err := LoadProgram(args[0])
	if err != nil {
		return err
	}

	state := borrows.NewBorrowsState()
	for _, s := range program.Statements {
		switch s.Op {
		case "reborrow":
			rb, err := program.toReborrow(s)
			if err != nil {
				return fmt.Errorf("statement at block %d stmt %d: %w", s.Block, s.Stmt, err)
			}
			state.AddReborrow(rb)
			fmt.Printf("bb%d[%d]: reborrow %s\n", s.Block, s.Stmt, rb.Assigned.String())
		case "kill_reborrow":
			assigned, ok := program.LocalByID[s.AssignedLocal]
			if !ok {
				return fmt.Errorf("statement at block %d stmt %d: unknown assigned_local %d", s.Block, s.Stmt, s.AssignedLocal)
			}
			killed := state.KillReborrows(borrows.Current(ir.NewPlace(assigned)))
			fmt.Printf("bb%d[%d]: killed %d reborrow(s)\n", s.Block, s.Stmt, len(killed))
		default:
			return fmt.Errorf("statement at block %d stmt %d: unknown op %q", s.Block, s.Stmt, s.Op)
		}
		if cfg.DebugInvariants {
			if err := checkInvariants(program.Repacker, state); err != nil {
				return fmt.Errorf("statement at block %d stmt %d: %w", s.Block, s.Stmt, err)
			}
		}
	}

	fmt.Printf("\nfinal graph: %d edge(s)\n", state.Graph().Len())
	for _, e := range state.Graph().Edges() {
		fmt.Printf("  %s\n", e.Kind.Kind)
	}

	if out, _ := cmd.Flags().GetString("snapshot-out"); out != "" {
		if err := snapshot.Encode(out, state); err != nil {
			return fmt.Errorf("writing snapshot: %w", err)
		}
		fmt.Printf("\nwrote snapshot to %s\n", out)
	}

	return nil
}

// checkInvariants runs BorrowsGraph.AssertInvariantsSatisfied, converting
// the Fault it panics with into a plain error so a --config-enabled
// invariant violation reports like any other command failure instead of
// crashing the process.
func checkInvariants(r *ir.SimpleRepacker, state *borrows.BorrowsState) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			if fault, ok := rec.(borrows.Fault); ok {
				err = fault
				return
			}
			panic(rec)
		}
	}()
	state.Graph().AssertInvariantsSatisfied(r)
	return nil
}
