package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"lakedash/pkg/telemetry"
	"lakedash/services/lakedash/internal/config"
	"lakedash/services/lakedash/internal/rpc"
	"lakedash/services/lakedash/internal/version"
)

func newRunCommand() *cobra.Command {
	var input, output string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute one JSON-RPC call read from a file and write the response",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			cfg, err := config.Load(ctx)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := telemetry.NewLogger(version.Name, telemetry.Options{
				LogFormat: cfg.LogFormat,
				LogLevel:  cfg.LogLevel,
				Out:       cmd.ErrOrStderr(),
			})
			if err != nil {
				return err
			}

			a, err := buildApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			body, err := os.ReadFile(input)
			if err != nil {
				return fmt.Errorf("read input: %w", err)
			}

			out := cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("create output: %w", err)
				}
				defer f.Close()
				out = f
			}
			return runOnce(ctx, a.dispatcher, body, out)
		},
	}

	cmd.Flags().StringVar(&input, "input", "", "path to the JSON-RPC request")
	cmd.Flags().StringVar(&output, "output", "-", "path for the JSON-RPC response (- for stdout)")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

// runOnce dispatches body and writes the response payload to out. A request
// that cannot be decoded is still written, then reported as an error.
func runOnce(ctx context.Context, d *rpc.Dispatcher, body []byte, out io.Writer) error {
	status, payload := d.Dispatch(ctx, body)

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	if _, err := out.Write(data); err != nil {
		return fmt.Errorf("write response: %w", err)
	}

	if status != http.StatusOK {
		return fmt.Errorf("request rejected with status %d", status)
	}
	return nil
}
