package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Limits.MaxReadSize != DefaultMaxReadSize {
		t.Errorf("MaxReadSize = %d", cfg.Limits.MaxReadSize)
	}
	if cfg.Limits.MaxWalkDepth != 20 {
		t.Errorf("MaxWalkDepth = %d", cfg.Limits.MaxWalkDepth)
	}
	if cfg.Limits.DefaultTimeoutMs != 30000 {
		t.Errorf("DefaultTimeoutMs = %d", cfg.Limits.DefaultTimeoutMs)
	}
	if got := cfg.RateLimit.PerPrimitive["bash"]; got.Rate != 10 || got.Burst != 20 {
		t.Errorf("bash bucket = %+v", got)
	}
	if cfg.Audit.Backend != "file" {
		t.Errorf("audit backend = %s", cfg.Audit.Backend)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json5"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Limits.MaxWalkDepth != 20 {
		t.Errorf("defaults not applied: %+v", cfg.Limits)
	}
}

func TestLoad_JSON5(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agentops.json5")
	body := `{
		// comments are allowed
		workspace: "/srv/ws",
		limits: {max_walk_depth: 5},
		security: {command_deny: ["git push --force"]},
		rate_limit: {per_primitive: {bash: {rate: 2, burst: 4}}},
	}`
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Workspace != "/srv/ws" {
		t.Errorf("workspace = %s", cfg.Workspace)
	}
	if cfg.Limits.MaxWalkDepth != 5 {
		t.Errorf("max_walk_depth = %d", cfg.Limits.MaxWalkDepth)
	}
	if len(cfg.Security.CommandDeny) != 1 {
		t.Errorf("command_deny = %v", cfg.Security.CommandDeny)
	}
	if got := cfg.RateLimit.PerPrimitive["bash"]; got.Rate != 2 || got.Burst != 4 {
		t.Errorf("bash bucket = %+v", got)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("AGENTOPS_WORKSPACE", "/env/ws")
	t.Setenv("AGENTOPS_RATE_LIMIT_DISABLED", "1")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json5"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Workspace != "/env/ws" {
		t.Errorf("workspace = %s, want env override", cfg.Workspace)
	}
	if !cfg.RateLimit.Disabled {
		t.Error("rate limit not disabled by env")
	}
}

func TestExpandHome(t *testing.T) {
	home, _ := os.UserHomeDir()
	tests := []struct {
		in, want string
	}{
		{"~/x", home + "/x"},
		{"/abs/path", "/abs/path"},
		{"rel/path", "rel/path"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := ExpandHome(tt.in); got != tt.want {
			t.Errorf("ExpandHome(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
