package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"lakedash/pkg/bus"
	"lakedash/pkg/db"
	gos3 "lakedash/pkg/s3"
	"lakedash/services/lakedash/internal/config"
	"lakedash/services/lakedash/internal/dashboard"
	"lakedash/services/lakedash/internal/kbase"
	"lakedash/services/lakedash/internal/objectstore"
	"lakedash/services/lakedash/internal/reportstore"
	"lakedash/services/lakedash/internal/rpc"
	"lakedash/services/lakedash/internal/server"
	"lakedash/services/lakedash/internal/version"
)

const eventStream = "LAKEDASH"

// app is the fully wired service. It is built once per process.
type app struct {
	dispatcher *rpc.Dispatcher
	registry   *prometheus.Registry
	checks     []func(context.Context) error
	closers    []func()
}

func (a *app) ready(ctx context.Context) error {
	var errs []error
	for _, check := range a.checks {
		if err := check(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func buildApp(ctx context.Context, cfg config.Config, logger zerolog.Logger) (_ *app, err error) {
	a := &app{registry: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	var callback *kbase.Client
	if cfg.UsesCallback() {
		callback, err = kbase.New(cfg.CallbackURL,
			kbase.WithToken(cfg.AuthToken),
			kbase.WithPollWindow(cfg.JobPollInitial, cfg.JobPollMax),
		)
		if err != nil {
			return nil, fmt.Errorf("init callback client: %w", err)
		}
	}

	uploader, err := buildUploader(ctx, a, cfg, callback)
	if err != nil {
		return nil, err
	}
	reports, err := buildReports(ctx, a, cfg, callback)
	if err != nil {
		return nil, err
	}

	var events dashboard.EventPublisher
	if cfg.NATSURL != "" {
		b, err := bus.New(cfg.NATSURL, nats.Name(version.Name))
		if err != nil {
			return nil, fmt.Errorf("connect nats: %w", err)
		}
		a.closers = append(a.closers, b.Close)
		if err := b.EnsureStream(eventStream, "lakedash.>"); err != nil {
			return nil, err
		}
		a.checks = append(a.checks, func(context.Context) error { return b.Ping() })
		events = b
	}

	metrics := dashboard.NewMetrics(a.registry)
	assembler, err := dashboard.NewAssembler(dashboard.AssemblerConfig{
		ScratchDir:   cfg.ScratchDir,
		DashboardDir: cfg.DashboardTemplateDir,
		HeatmapDir:   cfg.HeatmapTemplateDir,
		Uploader:     uploader,
		Retain:       cfg.RetainBundles,
		Metrics:      metrics,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init assembler: %w", err)
	}
	publisher, err := dashboard.NewPublisher(reports, metrics)
	if err != nil {
		return nil, fmt.Errorf("init publisher: %w", err)
	}
	svc, err := dashboard.NewService(dashboard.ServiceConfig{
		Assembler: assembler,
		Publisher: publisher,
		Events:    events,
		Version:   version.Version,
		GitURL:    version.GitURL,
		GitCommit: version.GitCommit,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init service: %w", err)
	}

	a.dispatcher = rpc.NewDispatcher(logger, rpc.NewMetrics(a.registry))
	server.Register(a.dispatcher, svc)

	return a, nil
}

func buildUploader(ctx context.Context, a *app, cfg config.Config, callback *kbase.Client) (dashboard.Uploader, error) {
	switch cfg.UploadBackend {
	case config.BackendS3:
		client, err := gos3.NewClient(ctx, gos3.Options{
			Endpoint:       cfg.S3.Endpoint,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			Region:         cfg.S3.Region,
			DisableTLS:     cfg.S3.DisableTLS,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("init s3 client: %w", err)
		}
		bucket := cfg.S3.Bucket
		a.checks = append(a.checks, func(ctx context.Context) error {
			if err := client.HeadBucket(ctx, bucket); err != nil {
				return fmt.Errorf("s3 bucket %s: %w", bucket, err)
			}
			return nil
		})
		uploader, err := objectstore.New(client, bucket, cfg.S3.Prefix)
		if err != nil {
			return nil, err
		}
		return uploader, nil
	default:
		return kbase.NewDataFileUtil(callback), nil
	}
}

func buildReports(ctx context.Context, a *app, cfg config.Config, callback *kbase.Client) (dashboard.ReportRegistrar, error) {
	switch cfg.ReportBackend {
	case config.BackendPostgres:
		store, err := openReportStore(ctx, cfg.DBDSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		a.checks = append(a.checks, store.Ping)
		return store, nil
	default:
		return kbase.NewKBaseReport(callback), nil
	}
}

// openReportStore connects, migrates and wraps the reports database.
func openReportStore(ctx context.Context, dsn string) (*reportstore.Store, error) {
	pool, err := db.Open(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := db.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	store, err := reportstore.Open(pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}
