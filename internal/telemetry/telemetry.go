// Package telemetry builds the OpenTelemetry providers for the service.
// Traces go to an OTLP/HTTP collector when an endpoint is configured;
// metrics are always served in Prometheus format from a dedicated registry.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/MrEthical07/authgate"
	engineotel "github.com/MrEthical07/authgate/metrics/export/otel"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
)

const meterName = "github.com/MrEthical07/authgate"

// Providers holds the tracer and meter providers, the Prometheus registry
// behind the meter, and a shutdown function.
type Providers struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
	Registry       *prometheus.Registry
	Shutdown       func(context.Context) error

	exporters []*engineotel.Exporter
}

// NewProviders creates the providers. endpoint is an OTLP/HTTP URL such as
// http://collector:4318; host:port is accepted and treated as http, and a
// bare host gets the /v1/traces path. An empty endpoint keeps spans in
// process and exports nothing.
func NewProviders(ctx context.Context, endpoint, serviceName string) (*Providers, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(semconv.ServiceNameKey.String(serviceName)),
	)
	if err != nil {
		return nil, err
	}

	var shutdownFns []func(context.Context) error

	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if endpoint = strings.TrimSpace(endpoint); endpoint != "" {
		target, err := normalizeEndpoint(endpoint)
		if err != nil {
			return nil, err
		}
		traceExp, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(target))
		if err != nil {
			return nil, fmt.Errorf("telemetry: trace exporter: %w", err)
		}
		tpOpts = append(tpOpts, sdktrace.WithBatcher(traceExp))
	}
	tp := sdktrace.NewTracerProvider(tpOpts...)
	shutdownFns = append(shutdownFns, tp.Shutdown)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	promExp, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, fmt.Errorf("telemetry: prometheus exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(promExp),
	)
	shutdownFns = append(shutdownFns, mp.Shutdown)

	p := &Providers{
		TracerProvider: tp,
		MeterProvider:  mp,
		Registry:       registry,
	}
	p.Shutdown = func(ctx context.Context) error {
		var errs []error
		for _, exp := range p.exporters {
			errs = append(errs, exp.Close())
		}
		for i := len(shutdownFns) - 1; i >= 0; i-- {
			errs = append(errs, shutdownFns[i](ctx))
		}
		return errors.Join(errs...)
	}
	return p, nil
}

// ObserveEngine publishes engine's counters through the meter provider
// until Shutdown.
func (p *Providers) ObserveEngine(engine *authgate.Engine) error {
	exp, err := engineotel.NewExporter(p.MeterProvider.Meter(meterName), engine)
	if err != nil {
		return fmt.Errorf("telemetry: observe engine: %w", err)
	}
	p.exporters = append(p.exporters, exp)
	return nil
}

// MetricsHandler serves the registry in the Prometheus text format.
func (p *Providers) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(p.Registry, promhttp.HandlerOpts{})
}

// SetGlobal installs the providers as the otel globals.
func (p *Providers) SetGlobal() {
	otel.SetTracerProvider(p.TracerProvider)
	otel.SetMeterProvider(p.MeterProvider)
}

func normalizeEndpoint(endpoint string) (string, error) {
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("telemetry: invalid OTLP endpoint %q: %w", endpoint, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("telemetry: invalid OTLP endpoint %q: missing host", endpoint)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("telemetry: invalid OTLP endpoint %q: scheme must be http or https", endpoint)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/v1/traces"
	}
	return u.String(), nil
}
