package tracing

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/Ramsey-B/fusion/pkg/tracing/exporters"
)

// ProviderConfig selects where spans go
type ProviderConfig struct {
	ServiceName string
	// Exporter is "otlp", "console" or "none"
	Exporter string
	OTLP     exporters.OTLPConfig
	// SampleRatio of root spans kept, between 0 and 1
	SampleRatio float64
}

// Setup installs the global tracer provider and propagator and returns its shutdown func
func Setup(ctx context.Context, cfg ProviderConfig, logger ectologger.Logger) (func(context.Context) error, error) {
	var exporter sdktrace.SpanExporter
	switch cfg.Exporter {
	case "otlp":
		otlp, err := exporters.NewOTLPExporter(ctx, cfg.OTLP)
		if err != nil {
			return nil, fmt.Errorf("failed to create otlp exporter: %w", err)
		}
		exporter = otlp
	case "console":
		exporter = exporters.NewConsoleExporter(logger)
	case "", "none":
		return func(context.Context) error { return nil }, nil
	default:
		return nil, fmt.Errorf("unsupported trace exporter: %s (use 'otlp', 'console' or 'none')", cfg.Exporter)
	}

	ratio := cfg.SampleRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 1
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	SetTracer(provider.Tracer(cfg.ServiceName))

	logger.WithFields(map[string]any{
		"exporter":     cfg.Exporter,
		"sample_ratio": ratio,
	}).Info("Tracing initialized")

	return provider.Shutdown, nil
}
