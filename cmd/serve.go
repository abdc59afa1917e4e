package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Wolfe-Services/Tachikoma-sub024/internal/mcpserver"
	"github.com/Wolfe-Services/Tachikoma-sub024/internal/tracing"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the primitive registry as an MCP tool catalog over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime(true)
			if err != nil {
				return err
			}
			defer rt.stop()

			ctx := context.Background()
			shutdownTracing, err := tracing.Init(ctx, rt.cfg.Telemetry)
			if err != nil {
				return err
			}
			defer shutdownTracing(ctx)

			return mcpserver.Serve(rt.registry, Version)
		},
	}
}
