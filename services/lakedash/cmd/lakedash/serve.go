package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"lakedash/pkg/telemetry"
	"lakedash/services/lakedash/internal/config"
	"lakedash/services/lakedash/internal/rpc"
	"lakedash/services/lakedash/internal/version"
)

func newServeCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the JSON-RPC endpoint over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return serve(ctx, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides LAKEDASH_ADDR)")
	return cmd
}

func serve(ctx context.Context, addr string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if addr != "" {
		cfg.Addr = addr
	}

	shutdownTelemetry, middleware, logger, err := telemetry.Init(ctx, version.Name, telemetry.Options{
		Endpoint:  cfg.OTLPEndpoint,
		LogFormat: cfg.LogFormat,
		LogLevel:  cfg.LogLevel,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "%s: telemetry shutdown error: %v\n", version.Name, err)
		}
	}()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	handler := rpc.Routes(a.dispatcher, a.ready, promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           middleware(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server shutdown")
		}
	}()

	logger.Info().
		Str("addr", server.Addr).
		Strs("methods", a.dispatcher.Methods()).
		Str("upload_backend", cfg.UploadBackend).
		Str("report_backend", cfg.ReportBackend).
		Msg("listening")

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("server failed")
		return err
	}
	return nil
}
