package tools

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Wolfe-Services/Tachikoma-sub024/internal/audit"
	"github.com/Wolfe-Services/Tachikoma-sub024/internal/config"
	"github.com/Wolfe-Services/Tachikoma-sub024/internal/policy"
	"github.com/Wolfe-Services/Tachikoma-sub024/internal/ratelimit"
)

// testEnv bundles a workspace, policy and context for primitive tests.
type testEnv struct {
	workspace string
	pol       *policy.Policy
	limits    config.LimitsConfig
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWith(t, config.SecurityConfig{}, config.LimitsConfig{})
}

func newTestEnvWith(t *testing.T, sec config.SecurityConfig, limits config.LimitsConfig) *testEnv {
	t.Helper()
	ws := t.TempDir()
	pol, err := policy.FromConfig(ws, sec, limits)
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	return &testEnv{workspace: pol.WorkspaceRoot, pol: pol, limits: limits}
}

func (e *testEnv) ctx() Context {
	return NewContext(e.pol, e.limits)
}

func (e *testEnv) write(t *testing.T, rel, content string) string {
	t.Helper()
	path := filepath.Join(e.workspace, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func (e *testEnv) read(t *testing.T, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(e.workspace, rel))
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func (e *testEnv) registry(t *testing.T, sinkPath string) *Registry {
	t.Helper()
	var sink audit.Sink = audit.NopSink{}
	if sinkPath != "" {
		fs, err := audit.NewFileSink(sinkPath, 0, 0)
		if err != nil {
			t.Fatalf("NewFileSink: %v", err)
		}
		t.Cleanup(func() { fs.Close() })
		sink = fs
	}
	pipeline := audit.NewPipeline(sink, e.pol.Redactor())
	return NewRegistry(e.pol, e.limits, ratelimit.Disabled(), pipeline)
}

// kindOf extracts the error kind, failing the test on foreign errors.
func kindOf(t *testing.T, err error) Kind {
	t.Helper()
	te, ok := err.(*Error)
	if !ok {
		t.Fatalf("error %v (%T) is not a *tools.Error", err, err)
	}
	return te.Kind
}
