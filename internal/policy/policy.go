// Package policy implements the security policy engine: workspace
// confinement with canonical path checks, read/write allowlists, path and
// command blocklists, environment sanitization and secret redaction.
package policy

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/Wolfe-Services/Tachikoma-sub024/internal/config"
)

// Policy is the shared, read-only rule set every primitive invocation is
// checked against. Build one with FromConfig; fields are not mutated after
// construction, so a Policy is safe for concurrent use.
type Policy struct {
	WorkspaceRoot string

	ReadAllow  []string
	WriteAllow []string
	PathDeny   []string // absolute paths and simple globs like *.pem

	CommandDeny         []string
	CommandDenyPatterns []*regexp.Regexp

	EnvDeny []string

	MaxReadSize   int64
	MaxOutputSize int64
	AllowNetwork  bool

	redactor *Redactor
}

// Violation reports why an operation was denied.
type Violation struct {
	Op     string // "read", "write" or "command"
	Target string // the offending path or command
	Rule   string // which rule tripped
	Reason string
}

func (v *Violation) Error() string {
	return fmt.Sprintf("%s denied: %s", v.Op, v.Reason)
}

// FromConfig compiles a Policy from the security section of the config.
// Allowlist entries and the workspace root are made absolute; command deny
// patterns and redaction patterns are compiled up front so CheckCommand and
// Redactor never fail at call time.
func FromConfig(workspace string, sec config.SecurityConfig, lim config.LimitsConfig) (*Policy, error) {
	root, err := filepath.Abs(config.ExpandHome(workspace))
	if err != nil {
		return nil, fmt.Errorf("resolve workspace: %w", err)
	}
	if real, err := filepath.EvalSymlinks(root); err == nil {
		root = real
	}

	p := &Policy{
		WorkspaceRoot: root,
		PathDeny:      append([]string(nil), sec.PathDeny...),
		CommandDeny:   append([]string(nil), sec.CommandDeny...),
		EnvDeny:       append([]string(nil), sec.EnvDeny...),
		MaxReadSize:   lim.MaxReadSize,
		MaxOutputSize: lim.MaxOutputSize,
		AllowNetwork:  sec.AllowNetwork,
	}
	if p.MaxReadSize <= 0 {
		p.MaxReadSize = config.DefaultMaxReadSize
	}
	if p.MaxOutputSize <= 0 {
		p.MaxOutputSize = config.DefaultMaxOutputSize
	}

	for _, entry := range sec.ReadAllow {
		p.ReadAllow = append(p.ReadAllow, absUnderRoot(root, entry))
	}
	for _, entry := range sec.WriteAllow {
		p.WriteAllow = append(p.WriteAllow, absUnderRoot(root, entry))
	}

	for _, pat := range sec.CommandDenyPatterns {
		re, err := regexp.Compile(pat)
		if err != nil {
			return nil, fmt.Errorf("compile command deny pattern %q: %w", pat, err)
		}
		p.CommandDenyPatterns = append(p.CommandDenyPatterns, re)
	}

	r, err := NewRedactor(sec.RedactPatterns)
	if err != nil {
		return nil, err
	}
	p.redactor = r

	return p, nil
}

// Redactor returns the policy's secret redactor.
func (p *Policy) Redactor() *Redactor { return p.redactor }

// CheckRead reports whether the canonical path may be read.
func (p *Policy) CheckRead(path string) error {
	return p.checkPath("read", path, p.ReadAllow)
}

// CheckWrite reports whether the canonical path may be written.
func (p *Policy) CheckWrite(path string) error {
	return p.checkPath("write", path, p.WriteAllow)
}

// checkPath applies the ordered path rules: blocklist first, then workspace
// confinement, then the allowlist (when non-empty). The blocklist always wins
// over the allowlist.
func (p *Policy) checkPath(op, path string, allow []string) error {
	if rule, hit := p.deniedBy(path); hit {
		slog.Warn("security.path_denied", "op", op, "path", path, "rule", rule)
		return &Violation{Op: op, Target: path, Rule: rule,
			Reason: fmt.Sprintf("path %s matches denied pattern %s", path, rule)}
	}
	if !within(path, p.WorkspaceRoot) {
		slog.Warn("security.path_escape", "op", op, "path", path, "workspace", p.WorkspaceRoot)
		return &Violation{Op: op, Target: path, Rule: "workspace",
			Reason: fmt.Sprintf("path %s is outside the workspace", path)}
	}
	if len(allow) > 0 && !underAny(path, allow) {
		return &Violation{Op: op, Target: path, Rule: "allowlist",
			Reason: fmt.Sprintf("path %s is not under an allowed root", path)}
	}
	return nil
}

// deniedBy checks every component of path against the blocklist. Entries are
// either absolute path prefixes or simple globs matched against individual
// components (so "*.pem" blocks any .pem file anywhere).
func (p *Policy) deniedBy(path string) (string, bool) {
	for _, entry := range p.PathDeny {
		if filepath.IsAbs(entry) {
			if within(path, filepath.Clean(entry)) {
				return entry, true
			}
			continue
		}
		for _, comp := range splitComponents(path) {
			if ok, _ := filepath.Match(entry, comp); ok {
				return entry, true
			}
		}
		// Relative multi-component entries like ".git/config" match as
		// a path suffix.
		if strings.Contains(entry, string(filepath.Separator)) &&
			strings.HasSuffix(path, string(filepath.Separator)+entry) {
			return entry, true
		}
	}
	return "", false
}

// SanitizeEnv filters blocklisted variables out of env ("KEY=VALUE" form).
// Names are compared case-insensitively and a trailing "*" on a blocklist
// entry matches any variable with that prefix.
func (p *Policy) SanitizeEnv(env []string) []string {
	if len(p.EnvDeny) == 0 {
		return env
	}
	out := make([]string, 0, len(env))
	for _, kv := range env {
		idx := strings.IndexByte(kv, '=')
		if idx <= 0 {
			continue
		}
		key := strings.ToUpper(kv[:idx])
		if p.envDenied(key) {
			continue
		}
		out = append(out, kv)
	}
	return out
}

func (p *Policy) envDenied(key string) bool {
	for _, deny := range p.EnvDeny {
		deny = strings.ToUpper(deny)
		if prefix, ok := strings.CutSuffix(deny, "*"); ok {
			if strings.HasPrefix(key, prefix) {
				return true
			}
			continue
		}
		if key == deny {
			return true
		}
	}
	return false
}

// CanonicalizePath resolves path to its canonical absolute form, following
// symlinks where the target exists and resolving through the deepest existing
// ancestor otherwise. Relative paths are joined with the workspace root.
func (p *Policy) CanonicalizePath(path string) (string, error) {
	var resolved string
	if filepath.IsAbs(path) {
		resolved = filepath.Clean(path)
	} else {
		resolved = filepath.Clean(filepath.Join(p.WorkspaceRoot, path))
	}

	real, err := filepath.EvalSymlinks(resolved)
	if err == nil {
		return real, nil
	}
	if !os.IsNotExist(err) {
		slog.Warn("security.path_resolve_failed", "path", path, "error", err)
		return "", fmt.Errorf("cannot resolve path %s: %w", path, err)
	}

	// Non-existent leaf: canonicalize the deepest ancestor that does exist
	// so a symlinked parent cannot smuggle the path out of the workspace.
	return canonicalizeMissing(resolved)
}

// canonicalizeMissing handles paths whose leaf (or more) does not exist yet.
// It strips trailing components until EvalSymlinks succeeds, then rejoins
// the stripped components onto the canonical ancestor. A path with no
// existing ancestor at all comes back merely cleaned.
func canonicalizeMissing(target string) (string, error) {
	missing := make([]string, 0, 4)
	for dir := target; ; {
		parent := filepath.Dir(dir)
		if parent == dir {
			return filepath.Clean(target), nil
		}
		missing = append(missing, filepath.Base(dir))
		dir = parent

		real, err := filepath.EvalSymlinks(dir)
		if err != nil {
			continue
		}
		for i := len(missing) - 1; i >= 0; i-- {
			real = filepath.Join(real, missing[i])
		}
		return real, nil
	}
}

// within reports whether path equals root or sits below it. Both arguments
// must already be canonical; a bare prefix test would treat /ws-evil as
// inside /ws, so the separator is part of the comparison.
func within(path, root string) bool {
	if path == root {
		return true
	}
	return strings.HasPrefix(path, root+string(filepath.Separator))
}

func underAny(path string, roots []string) bool {
	for _, root := range roots {
		if within(path, root) {
			return true
		}
	}
	return false
}

func splitComponents(path string) []string {
	return strings.FieldsFunc(path, func(r rune) bool {
		return r == filepath.Separator
	})
}

func absUnderRoot(root, entry string) string {
	entry = config.ExpandHome(entry)
	if filepath.IsAbs(entry) {
		return filepath.Clean(entry)
	}
	return filepath.Join(root, entry)
}
