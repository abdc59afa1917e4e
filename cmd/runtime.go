package cmd

import (
	"fmt"
	"log/slog"

	"github.com/Wolfe-Services/Tachikoma-sub024/internal/audit"
	"github.com/Wolfe-Services/Tachikoma-sub024/internal/config"
	"github.com/Wolfe-Services/Tachikoma-sub024/internal/policy"
	"github.com/Wolfe-Services/Tachikoma-sub024/internal/ratelimit"
	"github.com/Wolfe-Services/Tachikoma-sub024/internal/tools"
)

// runtime is the assembled core: config, registry and the audit pipeline.
type runtime struct {
	cfg      *config.Config
	registry *tools.Registry
	audit    *audit.Pipeline
	stop     func()
}

// buildRuntime loads config, compiles the policy, opens the audit sink and
// assembles the registry, optionally watching the config file for reload.
func buildRuntime(watch bool) (*runtime, error) {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	pol, err := policy.FromConfig(cfg.Workspace, cfg.Security, cfg.Limits)
	if err != nil {
		return nil, fmt.Errorf("compile policy: %w", err)
	}

	sink, err := openSink(cfg)
	if err != nil {
		return nil, err
	}
	pipeline := audit.NewPipeline(sink, pol.Redactor())

	limiter := ratelimit.New(cfg.RateLimit)
	registry := tools.NewRegistry(pol, cfg.Limits, limiter, pipeline)

	rt := &runtime{cfg: cfg, registry: registry, audit: pipeline, stop: func() { pipeline.Close() }}

	if watch {
		stopWatch, err := config.Watch(cfgPath, func(next *config.Config) {
			cfg.Replace(next)
			nextPol, err := policy.FromConfig(next.Workspace, next.Security, next.Limits)
			if err != nil {
				slog.Warn("config.policy_reload_failed", "error", err)
				return
			}
			registry.SetPolicy(nextPol)
		})
		if err != nil {
			slog.Warn("config.watch_unavailable", "error", err)
		} else {
			prevStop := rt.stop
			rt.stop = func() {
				stopWatch()
				prevStop()
			}
		}
	}

	return rt, nil
}

func openSink(cfg *config.Config) (audit.Sink, error) {
	switch cfg.Audit.Backend {
	case "", "file":
		return audit.NewFileSink(cfg.AuditPath(), cfg.Audit.MaxSizeBytes, cfg.Audit.MaxBackups)
	case "sqlite":
		path := config.ExpandHome(cfg.Audit.SQLitePath)
		if path == "" {
			path = config.ExpandHome("~/.agentops/audit.db")
		}
		return audit.NewSQLiteSink(path)
	case "none":
		return audit.NopSink{}, nil
	default:
		return nil, fmt.Errorf("unknown audit backend %q", cfg.Audit.Backend)
	}
}
