// Package borrowcfg loads the engine's debug configuration from a small
// TOML document, the same decoding approach the teacher's internal/project
// package uses for its module manifests.
package borrowcfg

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Config holds the debug knobs spec.md §9 names.
type Config struct {
	// DebugInvariants gates BorrowsGraph.AssertInvariantsSatisfied calls
	// after each mutation. Defaults to true: invariant violations are
	// cheap to catch early and expensive to debug after the fact.
	DebugInvariants bool `toml:"debug_invariants"`
	// DebugCtxTracing gates the per-edge provenance trail logged through
	// internal/borrowlog. Defaults to false: it is verbose.
	DebugCtxTracing bool `toml:"debug_ctx_tracing"`
	// LogLevel is passed to borrowlog.SetLevel.
	LogLevel string `toml:"log_level"`
}

// Default returns the engine's default configuration.
func Default() Config {
	return Config{DebugInvariants: true, DebugCtxTracing: false, LogLevel: "info"}
}

type tomlConfig struct {
	Engine struct {
		DebugInvariants *bool   `toml:"debug_invariants"`
		DebugCtxTracing *bool   `toml:"debug_ctx_tracing"`
		LogLevel        *string `toml:"log_level"`
	} `toml:"engine"`
}

// Load parses path's [engine] section over the defaults, leaving any field
// absent from the document at its default value.
func Load(path string) (Config, error) {
	cfg := Default()
	var doc tomlConfig
	if _, err := toml.DecodeFile(path, &doc); err != nil {
		return Config{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if doc.Engine.DebugInvariants != nil {
		cfg.DebugInvariants = *doc.Engine.DebugInvariants
	}
	if doc.Engine.DebugCtxTracing != nil {
		cfg.DebugCtxTracing = *doc.Engine.DebugCtxTracing
	}
	if doc.Engine.LogLevel != nil {
		cfg.LogLevel = *doc.Engine.LogLevel
	}
	return cfg, nil
}
