package tools

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"github.com/Wolfe-Services/Tachikoma-sub024/internal/audit"
	"github.com/Wolfe-Services/Tachikoma-sub024/internal/cancel"
	"github.com/Wolfe-Services/Tachikoma-sub024/internal/config"
	"github.com/Wolfe-Services/Tachikoma-sub024/internal/policy"
	"github.com/Wolfe-Services/Tachikoma-sub024/internal/ratelimit"
)

// handlerFunc executes one primitive from its raw JSON input.
type handlerFunc func(ctx context.Context, ec Context, input json.RawMessage, tok cancel.Token) (any, error)

type entry struct {
	name        string
	description string
	schema      json.RawMessage
	fn          handlerFunc
}

// Definition is the exported tool descriptor for catalog consumers.
type Definition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// Registry maps primitive names to handlers and runs every invocation
// through the middleware chain: rate-limit → validate → policy → execute →
// redact → audit. Registration happens only at startup; execution is
// read-mostly, with the policy swappable for config hot reload.
type Registry struct {
	entries []entry
	limits  config.LimitsConfig
	pol     atomic.Pointer[policy.Policy]
	limiter *ratelimit.Limiter
	audit   *audit.Pipeline
}

// NewRegistry wires the shared subsystems together and registers the five
// built-in primitives.
func NewRegistry(pol *policy.Policy, limits config.LimitsConfig, limiter *ratelimit.Limiter, auditPipe *audit.Pipeline) *Registry {
	r := &Registry{
		limits:  limits,
		limiter: limiter,
		audit:   auditPipe,
	}
	r.pol.Store(pol)
	r.registerBuiltins()
	return r
}

// SetPolicy atomically swaps the policy; in-flight invocations keep the
// snapshot they started with.
func (r *Registry) SetPolicy(pol *policy.Policy) { r.pol.Store(pol) }

// Policy returns the current policy snapshot.
func (r *Registry) Policy() *policy.Policy { return r.pol.Load() }

// Limiter exposes the rate limiter for status/header reporting.
func (r *Registry) Limiter() *ratelimit.Limiter { return r.limiter }

func (r *Registry) register(name, description string, schema json.RawMessage, fn handlerFunc) {
	r.entries = append(r.entries, entry{name: name, description: description, schema: schema, fn: fn})
}

func (r *Registry) lookup(name string) (entry, bool) {
	for _, e := range r.entries {
		if e.name == name {
			return e, true
		}
	}
	return entry{}, false
}

// Definitions returns tool descriptors in registration order.
func (r *Registry) Definitions() []Definition {
	defs := make([]Definition, len(r.entries))
	for i, e := range r.entries {
		defs[i] = Definition{Name: e.name, Description: e.description, InputSchema: e.schema}
	}
	return defs
}

func (r *Registry) registerBuiltins() {
	r.register("read_file",
		"Read the contents of a file inside the workspace, optionally restricted to a 1-indexed line range.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"path": {"type": "string", "description": "Path to the file to read"},
				"start_line": {"type": "integer", "description": "First line to read (1-indexed)"},
				"end_line": {"type": "integer", "description": "Last line to read (1-indexed, inclusive)"}
			},
			"required": ["path"]
		}`),
		func(ctx context.Context, ec Context, input json.RawMessage, _ cancel.Token) (any, error) {
			var in ReadFileInput
			if err := unmarshalInput("read_file", input, &in); err != nil {
				return nil, err
			}
			return ReadFile(ctx, ec, in)
		})

	r.register("list_files",
		"List a directory inside the workspace, optionally recursively with gitignore-aware filtering.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"path": {"type": "string", "description": "Directory to list"},
				"extension": {"type": "string", "description": "Filter files by extension (case-insensitive)"},
				"recursive": {"type": "boolean", "description": "Walk subdirectories up to the depth limit"}
			},
			"required": ["path"]
		}`),
		func(ctx context.Context, ec Context, input json.RawMessage, _ cancel.Token) (any, error) {
			var in ListFilesInput
			if err := unmarshalInput("list_files", input, &in); err != nil {
				return nil, err
			}
			return ListFiles(ctx, ec, in)
		})

	r.register("bash",
		"Execute a shell command inside the workspace with output capture, timeout and process-tree cleanup.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"command": {"type": "string", "description": "Shell command to execute"},
				"working_dir": {"type": "string", "description": "Working directory, inside the workspace"},
				"timeout_ms": {"type": "integer", "description": "Timeout in milliseconds"}
			},
			"required": ["command"]
		}`),
		func(ctx context.Context, ec Context, input json.RawMessage, tok cancel.Token) (any, error) {
			var in BashInput
			if err := unmarshalInput("bash", input, &in); err != nil {
				return nil, err
			}
			return Bash(ctx, ec, in, tok)
		})

	r.register("edit_file",
		"Replace an exact string in a file. The target must be unique unless replace_all or a selector is given.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"path": {"type": "string", "description": "File to edit"},
				"old_string": {"type": "string", "description": "Exact text to replace"},
				"new_string": {"type": "string", "description": "Replacement text"},
				"replace_all": {"type": "boolean", "description": "Replace every occurrence"}
			},
			"required": ["path", "old_string", "new_string"]
		}`),
		func(ctx context.Context, ec Context, input json.RawMessage, _ cancel.Token) (any, error) {
			var in EditFileInput
			if err := unmarshalInput("edit_file", input, &in); err != nil {
				return nil, err
			}
			return EditFile(ctx, ec, in)
		})

	r.register("code_search",
		"Search file contents with ripgrep, returning matches with line numbers and context.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"pattern": {"type": "string", "description": "Regular expression to search for"},
				"path": {"type": "string", "description": "Directory or file to search"},
				"file_type": {"type": "string", "description": "Restrict to a ripgrep file type (e.g. go, rust)"},
				"context_lines": {"type": "integer", "description": "Context lines before and after each match"}
			},
			"required": ["pattern", "path"]
		}`),
		func(ctx context.Context, ec Context, input json.RawMessage, tok cancel.Token) (any, error) {
			var in CodeSearchInput
			if err := unmarshalInput("code_search", input, &in); err != nil {
				return nil, err
			}
			return CodeSearch(ctx, ec, in)
		})
}

func unmarshalInput(primitive string, raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return validationError(primitive, err)
	}
	return nil
}
