// Package otel wires the process-wide trace, metric and log providers for the hunt server.
package otel

import (
	"context"
	"errors"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const DefaultServiceName = "huntserver"

type Options struct {
	// Defaults to DefaultServiceName.
	ServiceName string
	// Attached to every span, metric and log record so several hunts can share a collector.
	HuntTitle string
	UseOTLP   bool
	// Destination of the stdout exporters; defaults to os.Stdout. Ignored with OTLP.
	Output io.Writer
}

func (o Options) resource() *resource.Resource {
	serviceName := o.ServiceName
	if serviceName == "" {
		serviceName = DefaultServiceName
	}
	attrs := []attribute.KeyValue{semconv.ServiceName(serviceName)}
	if o.HuntTitle != "" {
		attrs = append(attrs, attribute.String("hunt.title", o.HuntTitle))
	}
	return resource.NewWithAttributes(semconv.SchemaURL, attrs...)
}

func (o Options) output() io.Writer {
	if o.Output == nil {
		return os.Stdout
	}
	return o.Output
}

// SetupOTelSDK installs the global providers. The returned shutdown flushes and may be called more
// than once; it is also returned alongside an error so partial setups can be torn down.
func SetupOTelSDK(ctx context.Context, opts Options) (func(context.Context) error, error) {
	var shutdownFuncs []func(context.Context) error

	shutdown := func(ctx context.Context) error {
		var er error
		for _, fn := range shutdownFuncs {
			er = errors.Join(er, fn(ctx))
		}
		shutdownFuncs = nil
		return er
	}

	handleErr := func(inErr error) error {
		return errors.Join(inErr, shutdown(ctx))
	}

	res := opts.resource()

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	tracerProvider, err := newTracerProvider(ctx, res, opts)
	if err != nil {
		return shutdown, handleErr(err)
	}
	shutdownFuncs = append(shutdownFuncs, tracerProvider.Shutdown)
	otel.SetTracerProvider(tracerProvider)

	meterProvider, err := newMeterProvider(ctx, res, opts)
	if err != nil {
		return shutdown, handleErr(err)
	}
	shutdownFuncs = append(shutdownFuncs, meterProvider.Shutdown)
	otel.SetMeterProvider(meterProvider)

	loggerProvider, err := newLoggerProvider(ctx, res, opts)
	if err != nil {
		return shutdown, handleErr(err)
	}
	shutdownFuncs = append(shutdownFuncs, loggerProvider.Shutdown)
	global.SetLoggerProvider(loggerProvider)

	return shutdown, nil
}

func newTracerProvider(ctx context.Context, res *resource.Resource, opts Options) (*trace.TracerProvider, error) {
	var err error
	var exporter trace.SpanExporter

	if opts.UseOTLP {
		exporter, err = otlptracegrpc.New(ctx)
	} else {
		exporter, err = stdouttrace.New(stdouttrace.WithWriter(opts.output()))
	}
	if err != nil {
		return nil, err
	}

	return trace.NewTracerProvider(
		trace.WithResource(res),
		trace.WithSampler(trace.AlwaysSample()),
		trace.WithBatcher(exporter),
	), nil
}

func newMeterProvider(ctx context.Context, res *resource.Resource, opts Options) (*metric.MeterProvider, error) {
	var err error
	var exporter metric.Exporter

	if opts.UseOTLP {
		exporter, err = otlpmetricgrpc.New(ctx)
	} else {
		exporter, err = stdoutmetric.New(stdoutmetric.WithWriter(opts.output()))
	}
	if err != nil {
		return nil, err
	}

	return metric.NewMeterProvider(
		metric.WithResource(res),
		metric.WithReader(metric.NewPeriodicReader(exporter)),
	), nil
}

func newLoggerProvider(ctx context.Context, res *resource.Resource, opts Options) (*log.LoggerProvider, error) {
	var err error
	var exporter log.Exporter

	if opts.UseOTLP {
		exporter, err = otlploggrpc.New(ctx)
	} else {
		exporter, err = stdoutlog.New(stdoutlog.WithWriter(opts.output()))
	}
	if err != nil {
		return nil, err
	}

	return log.NewLoggerProvider(
		log.WithResource(res),
		log.WithProcessor(log.NewBatchProcessor(exporter)),
	), nil
}
