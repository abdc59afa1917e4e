package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Workspace: "~/.agentops/workspace",
		Limits: LimitsConfig{
			MaxReadSize:      DefaultMaxReadSize,
			MaxOutputSize:    DefaultMaxOutputSize,
			MaxWalkDepth:     20,
			MaxWalkResults:   10000,
			MaxSearchMatches: 1000,
			DefaultTimeoutMs: 30000,
			KillGraceMs:      5000,
		},
		Security: SecurityConfig{
			PathDeny: []string{"*.pem", "*.key", ".env", ".git/config"},
		},
		RateLimit: RateLimitConfig{
			Global: BucketConfig{Rate: 200, Burst: 500},
			PerPrimitive: map[string]BucketConfig{
				"read_file":   {Rate: 100, Burst: 200},
				"list_files":  {Rate: 50, Burst: 100},
				"bash":        {Rate: 10, Burst: 20},
				"edit_file":   {Rate: 20, Burst: 40},
				"code_search": {Rate: 30, Burst: 60},
			},
		},
		Audit: AuditConfig{
			Backend:      "file",
			Path:         "~/.agentops/audit.log",
			MaxSizeBytes: 50 * 1024 * 1024,
			MaxBackups:   5,
		},
		Telemetry: TelemetryConfig{
			Protocol:    "grpc",
			ServiceName: "agentops",
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars.
// A missing file is not an error: defaults plus env apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envStr("AGENTOPS_WORKSPACE", &c.Workspace)
	envStr("AGENTOPS_AUDIT_BACKEND", &c.Audit.Backend)
	envStr("AGENTOPS_AUDIT_PATH", &c.Audit.Path)
	envStr("AGENTOPS_SQLITE_PATH", &c.Audit.SQLitePath)

	if v := os.Getenv("AGENTOPS_MAX_READ_SIZE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			c.Limits.MaxReadSize = n
		}
	}
	if v := os.Getenv("AGENTOPS_DEFAULT_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Limits.DefaultTimeoutMs = n
		}
	}
	if v := os.Getenv("AGENTOPS_RATE_LIMIT_DISABLED"); v != "" {
		c.RateLimit.Disabled = v == "true" || v == "1"
	}
	if v := os.Getenv("AGENTOPS_ALLOW_NETWORK"); v != "" {
		c.Security.AllowNetwork = v == "true" || v == "1"
	}

	// Telemetry
	envStr("AGENTOPS_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)
	envStr("AGENTOPS_TELEMETRY_PROTOCOL", &c.Telemetry.Protocol)
	envStr("AGENTOPS_TELEMETRY_SERVICE_NAME", &c.Telemetry.ServiceName)
	if v := os.Getenv("AGENTOPS_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("AGENTOPS_TELEMETRY_INSECURE"); v != "" {
		c.Telemetry.Insecure = v == "true" || v == "1"
	}

	// Extra denied commands, comma-separated.
	if v := os.Getenv("AGENTOPS_COMMAND_DENY"); v != "" {
		c.Security.CommandDeny = append(c.Security.CommandDeny, strings.Split(v, ",")...)
	}
}

// Save writes the config to a JSON file.
func Save(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// WorkspacePath returns the expanded, absolute workspace path.
func (c *Config) WorkspacePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ws := ExpandHome(c.Workspace)
	if abs, err := filepath.Abs(ws); err == nil {
		return abs
	}
	return ws
}

// AuditPath returns the expanded audit log path.
func (c *Config) AuditPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ExpandHome(c.Audit.Path)
}

// ExpandHome replaces leading ~ with the user home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}
