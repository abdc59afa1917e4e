// Package tools implements the five agent primitives — read_file,
// list_files, bash, edit_file and code_search — and the registry that
// dispatches schema-typed invocations through rate limiting, policy
// enforcement, redaction and audit.
package tools

import (
	"path/filepath"

	"github.com/google/uuid"

	"github.com/Wolfe-Services/Tachikoma-sub024/internal/config"
	"github.com/Wolfe-Services/Tachikoma-sub024/internal/policy"
)

// Context is the immutable per-invocation state: workspace root, policy,
// a limits snapshot and a freshly generated operation id.
type Context struct {
	Workspace   string
	Policy      *policy.Policy
	Limits      config.LimitsConfig
	OperationID string
}

// NewContext mints a context for one invocation. Unset limits fall back to
// the documented defaults so a zero config stays usable.
func NewContext(pol *policy.Policy, limits config.LimitsConfig) Context {
	if limits.MaxReadSize <= 0 {
		limits.MaxReadSize = config.DefaultMaxReadSize
	}
	if limits.MaxOutputSize <= 0 {
		limits.MaxOutputSize = config.DefaultMaxOutputSize
	}
	return Context{
		Workspace:   pol.WorkspaceRoot,
		Policy:      pol,
		Limits:      limits,
		OperationID: uuid.NewString(),
	}
}

// ResolvePath joins path with the workspace root unless already absolute and
// canonicalizes it. The result is what the policy checks run against.
func (c Context) ResolvePath(path string) (string, error) {
	return c.Policy.CanonicalizePath(path)
}

// ValidateRead resolves path and checks it against the read rules.
func (c Context) ValidateRead(primitive, path string) (string, error) {
	resolved, err := c.ResolvePath(path)
	if err != nil {
		return "", pathNotAllowedError(primitive, path, err)
	}
	if err := c.Policy.CheckRead(resolved); err != nil {
		return "", pathNotAllowedError(primitive, path, err)
	}
	return resolved, nil
}

// ValidateWrite resolves path and checks it against the write rules.
func (c Context) ValidateWrite(primitive, path string) (string, error) {
	resolved, err := c.ResolvePath(path)
	if err != nil {
		return "", pathNotAllowedError(primitive, path, err)
	}
	if err := c.Policy.CheckWrite(resolved); err != nil {
		return "", pathNotAllowedError(primitive, path, err)
	}
	return resolved, nil
}

// ValidateCommand checks a shell command against the policy blocklists.
func (c Context) ValidateCommand(command string) error {
	if err := c.Policy.CheckCommand(command); err != nil {
		return commandBlockedError(err)
	}
	return nil
}

// resolveWorkingDir resolves an optional working directory for bash,
// defaulting to the workspace root and requiring confinement.
func (c Context) resolveWorkingDir(dir string) (string, error) {
	if dir == "" {
		return c.Workspace, nil
	}
	resolved, err := c.ResolvePath(dir)
	if err != nil {
		return "", pathNotAllowedError("bash", dir, err)
	}
	rel, err := filepath.Rel(c.Workspace, resolved)
	if err != nil || rel == ".." || filepath.IsAbs(rel) || len(rel) > 1 && rel[:2] == ".." {
		return "", pathNotAllowedError("bash", dir, &policy.Violation{
			Op: "read", Target: dir, Rule: "workspace",
			Reason: "working directory must be inside the workspace",
		})
	}
	return resolved, nil
}
