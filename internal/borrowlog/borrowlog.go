// Package borrowlog wraps github.com/hashicorp/go-hclog to give the
// borrows engine leveled, field-based tracing: planner linearization
// failures, loop-join abstraction substitutions, and (when enabled) a
// per-edge provenance trail.
package borrowlog

import (
	"os"
	"sync"

	hclog "github.com/hashicorp/go-hclog"
)

var root = sync.OnceValue(func() hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:            "borrowgraph",
		Level:           hclog.Info,
		Output:          os.Stderr,
		IncludeLocation: false,
	})
})

// Logger returns the package-wide root logger.
func Logger() hclog.Logger { return root() }

// SetLevel adjusts the root logger's level, as loaded from
// internal/borrowcfg's log_level field.
func SetLevel(level string) {
	root().SetLevel(hclog.LevelFromString(level))
}

// Named returns a child logger scoped to component, the way the engine
// tags its planner, graph and trace subsystems separately.
func Named(component string) hclog.Logger {
	return root().Named(component)
}

// Planner is the child logger for UnblockGraph linearization.
func Planner() hclog.Logger { return Named("planner") }

// Graph is the child logger for BorrowsGraph mutation and join.
func Graph() hclog.Logger { return Named("graph") }

// Trace is the child logger used for per-edge provenance when
// debug_ctx_tracing is enabled; callers should guard calls to it with
// Trace().IsTrace() to avoid formatting cost when tracing is off.
func Trace() hclog.Logger { return Named("trace") }
