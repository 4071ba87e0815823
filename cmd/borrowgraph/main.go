// Command borrowgraph drives the borrow/reborrow analysis engine over a
// toy textual program description, for manual inspection and demos. It is
// not a compiler frontend: the statement-level operations a real MIR
// visitor would derive from source are supplied directly in the program
// file (see cmd/borrowgraph/program.go).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "borrowgraph",
	Short: "Borrow/reborrow analysis engine driver",
	Long:  `borrowgraph drives the borrows engine over a toy program description and reports the resulting state.`,
}

func main() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(dumpCmd)
	rootCmd.PersistentFlags().String("color", "auto", "colorize output (auto|on|off)")
	rootCmd.PersistentFlags().String("config", "", "path to an engine config TOML (debug_invariants, debug_ctx_tracing, log_level)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func colorEnabled(cmd *cobra.Command) bool {
	mode, _ := cmd.Flags().GetString("color")
	switch mode {
	case "on":
		return true
	case "off":
		return false
	default:
		return isTerminalStdout()
	}
}
