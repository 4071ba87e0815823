package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"borrowgraph/internal/borrows"
	"borrowgraph/internal/snapshot"
)

var dumpCmd = &cobra.Command{
	Use:   "dump <snapshot.mp>",
	Short: "Pretty-print a msgpack-serialized borrows state",
	Args:  cobra.ExactArgs(1),
	RunE:  runDump,
}

func isTerminalStdout() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func terminalWidth(fallback int) int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return fallback
}

func runDump(cmd *cobra.Command, args []string) error {
	state, err := snapshot.Decode(args[0])
	if err != nil {
		return err
	}

	prev := color.NoColor
	defer func() { color.NoColor = prev }()
	color.NoColor = !colorEnabled(cmd)

	kindColor := color.New(color.FgMagenta, color.Bold)
	placeColor := color.New(color.FgCyan)
	condColor := color.New(color.FgYellow)

	edges := state.Graph().Edges()
	labelWidth := 0
	for _, e := range edges {
		if w := runewidth.StringWidth(e.Kind.Kind.String()); w > labelWidth {
			labelWidth = w
		}
	}

	for _, e := range edges {
		label := e.Kind.Kind.String()
		pad := strings.Repeat(" ", labelWidth-runewidth.StringWidth(label))
		fmt.Printf("%s%s  %s", kindColor.Sprint(label), pad, describeEdge(placeColor, e))
		if e.Conditions.Len() > 0 {
			fmt.Printf("  %s", condColor.Sprintf("[%d path condition(s)]", e.Conditions.Len()))
		}
		fmt.Println()
	}

	width := terminalWidth(80)
	if width > 72 {
		width = 72
	}
	panelStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		Padding(0, 1).
		Width(width)
	summary := fmt.Sprintf("edges: %d\nlatest entries: %d", len(edges), len(state.Latest().Entries()))
	fmt.Println()
	fmt.Println(panelStyle.Render(summary))

	return nil
}

func describeEdge(placeColor *color.Color, e borrows.BorrowsEdge) string {
	switch e.Kind.Kind {
	case borrows.EdgeReborrow:
		rb := e.Kind.Reborrow
		return fmt.Sprintf("%s -> %s (%s)", placeColor.Sprint(rb.Blocked.String()), placeColor.Sprint(rb.Assigned.String()), rb.Mutability)
	case borrows.EdgeDerefExpansion:
		de := e.Kind.DerefExpansion
		return fmt.Sprintf("base=%s", placeColor.Sprint(de.Base.String()))
	case borrows.EdgeAbstraction:
		ae := e.Kind.Abstraction
		return fmt.Sprintf("callee=%d @ %s", ae.Type.CalleeID, ae.Type.Location)
	case borrows.EdgeRPM:
		m := e.Kind.RPM
		return fmt.Sprintf("%s (%s)", placeColor.Sprint(m.Place.String()), m.Direction)
	default:
		return ""
	}
}
