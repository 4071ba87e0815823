package borrowcfg

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTOML(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "borrowgraph.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("failed to write fixture config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaultsForMissingFields(t *testing.T) {
	path := writeTOML(t, "[engine]\nlog_level = \"debug\"\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.DebugInvariants {
		t.Fatalf("expected debug_invariants to default to true")
	}
	if cfg.DebugCtxTracing {
		t.Fatalf("expected debug_ctx_tracing to default to false")
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("expected log_level to be overridden to debug, got %q", cfg.LogLevel)
	}
}

func TestLoadOverridesAllFields(t *testing.T) {
	path := writeTOML(t, "[engine]\ndebug_invariants = false\ndebug_ctx_tracing = true\nlog_level = \"warn\"\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DebugInvariants {
		t.Fatalf("expected debug_invariants to be overridden to false")
	}
	if !cfg.DebugCtxTracing {
		t.Fatalf("expected debug_ctx_tracing to be overridden to true")
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("expected log_level to be overridden to warn, got %q", cfg.LogLevel)
	}
}
