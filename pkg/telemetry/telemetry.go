package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.opentelemetry.io/otel/trace"
)

// Options tunes Init. The zero value logs JSON at info level to stdout and
// keeps spans in-process.
type Options struct {
	// Endpoint is the OTLP/HTTP collector. Empty disables export.
	Endpoint string
	// LogFormat is "json" or "console".
	LogFormat string
	LogLevel  string
	Out       io.Writer
}

// Init configures OpenTelemetry tracing, propagation, and structured logging for a service.
func Init(ctx context.Context, serviceName string, opts Options) (func(context.Context) error, func(http.Handler) http.Handler, zerolog.Logger, error) {
	if serviceName == "" {
		return nil, nil, zerolog.Nop(), errors.New("telemetry: service name is required")
	}

	logger, err := NewLogger(serviceName, opts)
	if err != nil {
		return nil, nil, zerolog.Nop(), err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, nil, zerolog.Nop(), fmt.Errorf("telemetry: create resource: %w", err)
	}

	providerOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if opts.Endpoint != "" {
		exporter, err := newTraceExporter(ctx, opts.Endpoint)
		if err != nil {
			return nil, nil, zerolog.Nop(), fmt.Errorf("telemetry: create exporter: %w", err)
		}
		providerOpts = append(providerOpts, sdktrace.WithBatcher(exporter))
	}

	tracerProvider := sdktrace.NewTracerProvider(providerOpts...)

	otel.SetTracerProvider(tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	shutdown := func(ctx context.Context) error {
		return tracerProvider.Shutdown(ctx)
	}

	return shutdown, Middleware(serviceName, logger), logger, nil
}

// NewLogger builds the process logger tagged with the service name.
func NewLogger(serviceName string, opts Options) (zerolog.Logger, error) {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	switch strings.ToLower(strings.TrimSpace(opts.LogFormat)) {
	case "", "json":
	case "console":
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	default:
		return zerolog.Nop(), fmt.Errorf("telemetry: unknown log format %q", opts.LogFormat)
	}

	level := zerolog.InfoLevel
	if opts.LogLevel != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(opts.LogLevel))
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("telemetry: parse log level: %w", err)
		}
		level = parsed
	}

	return zerolog.New(out).Level(level).With().Timestamp().Str("service", serviceName).Logger(), nil
}

// Middleware wraps next with otelhttp and writes one log line per request.
func Middleware(serviceName string, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(recorder, r)

			spanCtx := trace.SpanFromContext(r.Context()).SpanContext()
			traceID := ""
			if spanCtx.IsValid() {
				traceID = spanCtx.TraceID().String()
			}

			duration := time.Since(start)
			logger.Info().
				Str("trace_id", traceID).
				Msg(fmt.Sprintf("%s %s %d %s", r.Method, r.URL.Path, recorder.status, duration))
		})

		return otelhttp.NewHandler(handler, serviceName)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func newTraceExporter(ctx context.Context, endpoint string) (*otlptrace.Exporter, error) {
	var opts []otlptracehttp.Option

	parsed, err := url.Parse(endpoint)
	if err == nil && (parsed.Scheme == "http" || parsed.Scheme == "https") {
		if parsed.Host == "" {
			return nil, fmt.Errorf("invalid OTLP endpoint: %s", endpoint)
		}
		opts = append(opts, otlptracehttp.WithEndpoint(parsed.Host))
		if parsed.Path != "" && parsed.Path != "/" {
			opts = append(opts, otlptracehttp.WithURLPath(parsed.Path))
		}
		if parsed.Scheme == "http" {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
	} else {
		opts = append(opts, otlptracehttp.WithEndpoint(endpoint))
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	return otlptracehttp.New(ctx, opts...)
}
