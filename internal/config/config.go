// Package config holds the runtime configuration: workspace location,
// execution limits, security policy inputs, rate limits, audit sink and
// telemetry settings. Loading supports JSON5 files with environment variable
// overlay.
package config

import "sync"

// DefaultMaxReadSize is the largest file read_file will load without an
// explicit line range.
const DefaultMaxReadSize = 10 * 1024 * 1024

// DefaultMaxOutputSize caps each captured subprocess stream.
const DefaultMaxOutputSize = 10 * 1024 * 1024

// Config is the top-level configuration. Access through the accessor methods
// when the config may be concurrently reloaded.
type Config struct {
	mu sync.RWMutex `json:"-"`

	Workspace string          `json:"workspace"`
	Limits    LimitsConfig    `json:"limits"`
	Security  SecurityConfig  `json:"security"`
	RateLimit RateLimitConfig `json:"rate_limit"`
	Audit     AuditConfig     `json:"audit"`
	Telemetry TelemetryConfig `json:"telemetry"`
}

// LimitsConfig bounds resource usage of the primitives.
type LimitsConfig struct {
	MaxReadSize      int64 `json:"max_read_size"`
	MaxOutputSize    int64 `json:"max_output_size"`
	MaxWalkDepth     int   `json:"max_walk_depth"`
	MaxWalkResults   int   `json:"max_walk_results"`
	MaxSearchMatches int   `json:"max_search_matches"`
	DefaultTimeoutMs int   `json:"default_timeout_ms"`
	KillGraceMs      int   `json:"kill_grace_ms"`
	FollowSymlinks   bool  `json:"follow_symlinks"`
}

// SecurityConfig is the declarative input to the policy engine.
type SecurityConfig struct {
	ReadAllow           []string `json:"read_allow"`
	WriteAllow          []string `json:"write_allow"`
	PathDeny            []string `json:"path_deny"`
	CommandDeny         []string `json:"command_deny"`
	CommandDenyPatterns []string `json:"command_deny_patterns"`
	EnvDeny             []string `json:"env_deny"`
	RedactPatterns      []string `json:"redact_patterns"`
	AllowNetwork        bool     `json:"allow_network"`
}

// BucketConfig configures one token bucket.
type BucketConfig struct {
	Rate  float64 `json:"rate"`
	Burst int     `json:"burst"`
}

// RateLimitConfig configures the per-primitive and global buckets.
// Disabled makes every bucket effectively infinite (for tests).
type RateLimitConfig struct {
	Disabled     bool                    `json:"disabled"`
	Global       BucketConfig            `json:"global"`
	PerPrimitive map[string]BucketConfig `json:"per_primitive"`
}

// AuditConfig selects and configures the audit sink.
type AuditConfig struct {
	Backend      string `json:"backend"` // "file", "sqlite" or "none"
	Path         string `json:"path"`
	MaxSizeBytes int64  `json:"max_size_bytes"`
	MaxBackups   int    `json:"max_backups"`
	SQLitePath   string `json:"sqlite_path"`
}

// TelemetryConfig configures optional OTLP trace export.
type TelemetryConfig struct {
	Enabled     bool   `json:"enabled"`
	Endpoint    string `json:"endpoint"`
	Protocol    string `json:"protocol"` // "grpc" or "http"
	ServiceName string `json:"service_name"`
	Insecure    bool   `json:"insecure"`
}

// Snapshot returns a copy of the config safe to hold for one invocation.
func (c *Config) Snapshot() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cp := Config{
		Workspace: c.Workspace,
		Limits:    c.Limits,
		Security:  c.Security.clone(),
		RateLimit: c.RateLimit.clone(),
		Audit:     c.Audit,
		Telemetry: c.Telemetry,
	}
	return cp
}

// Replace swaps the mutable sections with those of next. Used by the
// hot-reload watcher.
func (c *Config) Replace(next *Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Workspace = next.Workspace
	c.Limits = next.Limits
	c.Security = next.Security.clone()
	c.RateLimit = next.RateLimit.clone()
	c.Audit = next.Audit
	c.Telemetry = next.Telemetry
}

func (s SecurityConfig) clone() SecurityConfig {
	cp := s
	cp.ReadAllow = copyStrings(s.ReadAllow)
	cp.WriteAllow = copyStrings(s.WriteAllow)
	cp.PathDeny = copyStrings(s.PathDeny)
	cp.CommandDeny = copyStrings(s.CommandDeny)
	cp.CommandDenyPatterns = copyStrings(s.CommandDenyPatterns)
	cp.EnvDeny = copyStrings(s.EnvDeny)
	cp.RedactPatterns = copyStrings(s.RedactPatterns)
	return cp
}

func (r RateLimitConfig) clone() RateLimitConfig {
	cp := r
	if r.PerPrimitive != nil {
		cp.PerPrimitive = make(map[string]BucketConfig, len(r.PerPrimitive))
		for k, v := range r.PerPrimitive {
			cp.PerPrimitive[k] = v
		}
	}
	return cp
}

func copyStrings(s []string) []string {
	if s == nil {
		return nil
	}
	c := make([]string, len(s))
	copy(c, s)
	return c
}
