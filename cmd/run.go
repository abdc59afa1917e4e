package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Wolfe-Services/Tachikoma-sub024/internal/cancel"
	"github.com/Wolfe-Services/Tachikoma-sub024/internal/tools"
	"github.com/Wolfe-Services/Tachikoma-sub024/internal/tracing"
)

func runCmd() *cobra.Command {
	var (
		inputJSON string
		blocking  bool
		timeoutMs int
	)

	cmd := &cobra.Command{
		Use:   "run <primitive>",
		Short: "Invoke one primitive and print its JSON result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime(false)
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

			if timeoutMs > 0 {
				var cancelCtx context.CancelFunc
				ctx, cancelCtx = context.WithTimeout(ctx, time.Duration(timeoutMs)*time.Millisecond)
				defer cancelCtx()
			}

			// Ctrl-C cancels the invocation through the same path external
			// callers use.
			tok := cancel.NewToken()
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			go func() {
				<-sigCh
				tok.Cancel()
			}()
			defer signal.Stop(sigCh)

			out, err := rt.registry.Execute(ctx, args[0], json.RawMessage(inputJSON), tools.DispatchOptions{
				Blocking: blocking,
				Token:    tok,
			})
			if err != nil {
				if te, ok := err.(*tools.Error); ok {
					payload, _ := json.MarshalIndent(te, "", "  ")
					fmt.Fprintln(os.Stderr, string(payload))
					os.Exit(1)
				}
				return err
			}

			var pretty json.RawMessage = out
			if buf, err := json.MarshalIndent(json.RawMessage(out), "", "  "); err == nil {
				pretty = buf
			}
			fmt.Println(string(pretty))
			return nil
		},
	}

	cmd.Flags().StringVar(&inputJSON, "input", "{}", "primitive input as JSON")
	cmd.Flags().BoolVar(&blocking, "blocking", false, "wait for rate-limit tokens instead of failing fast")
	cmd.Flags().IntVar(&timeoutMs, "timeout-ms", 0, "overall invocation timeout")
	return cmd
}

func toolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "Print the exported tool descriptors as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime(false)
			if err != nil {
				return err
			}
			defer rt.stop()

			out, err := json.MarshalIndent(rt.registry.Definitions(), "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}
