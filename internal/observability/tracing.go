package observability

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/signalsfoundry/gnss-adapter/internal/logging"
)

// TracerName is the instrumentation scope used for adapter spans.
const TracerName = "github.com/signalsfoundry/gnss-adapter"

// Tracer returns the adapter tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// Exporter selects where finished spans go.
type Exporter string

const (
	ExporterStdout Exporter = "stdout"
	ExporterOTLP   Exporter = "otlp"
)

const defaultOTLPEndpoint = "localhost:4317"

// TracingConfig governs how tracing is initialised. It is read from the
// tracing section of the daemon config and may be overridden by the
// GNSS_TRACING_* environment variables.
type TracingConfig struct {
	Enabled     bool     `yaml:"enabled"`
	ServiceName string   `yaml:"service_name"`
	Exporter    Exporter `yaml:"exporter"`
	// Endpoint is the OTLP/gRPC collector address.
	Endpoint    string  `yaml:"endpoint"`
	SampleRatio float64 `yaml:"sample_ratio"`
	// Attributes are added to the resource of every span.
	Attributes map[string]string `yaml:"attributes"`

	// Writer receives stdout-exported spans; nil means os.Stdout.
	Writer io.Writer `yaml:"-"`
}

// DefaultTracingConfig is tracing disabled with stdout export and full
// sampling once enabled.
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		ServiceName: "gnss-adapter",
		Exporter:    ExporterStdout,
		SampleRatio: 1,
	}
}

// ApplyDefaults fills unset fields. A zero sample ratio is kept: it turns
// sampling off while still propagating context.
func (c *TracingConfig) ApplyDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "gnss-adapter"
	}
	if c.Exporter == "" {
		c.Exporter = ExporterStdout
	}
	c.Exporter = Exporter(strings.ToLower(string(c.Exporter)))
	if c.Exporter == ExporterOTLP && c.Endpoint == "" {
		c.Endpoint = defaultOTLPEndpoint
	}
}

// Validate reports an unusable exporter or ratio.
func (c TracingConfig) Validate() error {
	switch c.Exporter {
	case ExporterStdout, ExporterOTLP:
	default:
		return fmt.Errorf("tracing.exporter %q must be stdout or otlp", c.Exporter)
	}
	if c.SampleRatio < 0 || c.SampleRatio > 1 {
		return fmt.Errorf("tracing.sample_ratio %v must be within [0,1]", c.SampleRatio)
	}
	return nil
}

// WithEnv returns c with every GNSS_TRACING_* / GNSS_OTLP_ENDPOINT variable
// that lookup finds applied on top. Unparseable values are ignored.
func (c TracingConfig) WithEnv(lookup func(string) (string, bool)) TracingConfig {
	if v, ok := lookup("GNSS_TRACING_ENABLED"); ok {
		c.Enabled = strings.EqualFold(v, "true")
	}
	if v, ok := lookup("GNSS_TRACING_EXPORTER"); ok && v != "" {
		c.Exporter = Exporter(strings.ToLower(v))
	}
	if v, ok := lookup("GNSS_TRACING_SERVICE_NAME"); ok && v != "" {
		c.ServiceName = v
	}
	if v, ok := lookup("GNSS_TRACING_SAMPLE_RATIO"); ok {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil && parsed >= 0 && parsed <= 1 {
			c.SampleRatio = parsed
		}
	}
	if v, ok := lookup("GNSS_OTLP_ENDPOINT"); ok && v != "" {
		c.Endpoint = v
	}
	c.ApplyDefaults()
	return c
}

// TracingConfigFromEnv is DefaultTracingConfig overridden by the process
// environment.
func TracingConfigFromEnv() TracingConfig {
	return DefaultTracingConfig().WithEnv(os.LookupEnv)
}

// InitTracing installs the global tracer provider and propagators for cfg
// and returns a function that flushes and stops it.
func InitTracing(ctx context.Context, cfg TracingConfig, log logging.Logger) (func(context.Context) error, error) {
	if log == nil {
		log = logging.Noop()
	}
	cfg.ApplyDefaults()

	if !cfg.Enabled {
		otel.SetTracerProvider(trace.NewNoopTracerProvider())
		otel.SetTextMapPropagator(propagation.TraceContext{})
		log.Info(ctx, "tracing disabled")
		return func(context.Context) error { return nil }, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tp, err := newTracerProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	log.Info(ctx, "tracing enabled",
		logging.String("exporter", string(cfg.Exporter)),
		logging.String("service_name", cfg.ServiceName),
		logging.Any("sample_ratio", cfg.SampleRatio),
	)
	return tp.Shutdown, nil
}

func newTracerProvider(ctx context.Context, cfg TracingConfig) (*sdktrace.TracerProvider, error) {
	exp, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx, resource.WithAttributes(resourceAttributes(cfg)...))
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	), nil
}

// resourceAttributes returns the service identity followed by the
// configured extras in key order.
func resourceAttributes(cfg TracingConfig) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.namespace", "gnss"),
	}
	keys := make([]string, 0, len(cfg.Attributes))
	for k := range cfg.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, attribute.String(k, cfg.Attributes[k]))
	}
	return attrs
}

func newExporter(ctx context.Context, cfg TracingConfig) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case ExporterStdout:
		w := cfg.Writer
		if w == nil {
			w = os.Stdout
		}
		return stdouttrace.New(
			stdouttrace.WithWriter(w),
			stdouttrace.WithoutTimestamps(),
		)
	case ExporterOTLP:
		client := otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(cfg.Endpoint),
			otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
		return otlptrace.New(ctx, client)
	default:
		return nil, fmt.Errorf("unsupported tracing exporter: %s", cfg.Exporter)
	}
}

// ShutdownWithTimeout calls shutdown with a five second budget and only
// logs a failure.
func ShutdownWithTimeout(ctx context.Context, shutdown func(context.Context) error, log logging.Logger) {
	if shutdown == nil {
		return
	}
	if log == nil {
		log = logging.Noop()
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		log.Warn(ctx, "tracing shutdown failed", logging.Err(err))
	}
}
