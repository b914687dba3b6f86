// Copyright 2026 fanjia1024
// OpenTelemetry integration for distributed tracing

package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

// OTelConfig OpenTelemetry 配置
type OTelConfig struct {
	ServiceName    string
	ExportEndpoint string
	Insecure       bool
}

// InitTracer 初始化 OpenTelemetry tracer
func InitTracer(config OTelConfig) (*sdktrace.TracerProvider, error) {
	ctx := context.Background()

	// 创建 OTLP exporter
	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(config.ExportEndpoint),
	}
	if config.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptrace.New(ctx, otlptracehttp.NewClient(opts...))
	if err != nil {
		return nil, err
	}

	// 创建 resource
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(config.ServiceName),
		),
	)
	if err != nil {
		return nil, err
	}

	// 创建 tracer provider
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	return tp, nil
}

// StartInvocationSpan 开始 invocation 执行 span
func StartInvocationSpan(ctx context.Context, service, method string, invocationID string) (context.Context, trace.Span) {
	tracer := otel.Tracer("durable-sdk")
	ctx, span := tracer.Start(ctx, "invocation.execute",
		trace.WithAttributes(
			attribute.String("invocation.service", service),
			attribute.String("invocation.method", method),
			attribute.String("invocation.id", invocationID),
		),
	)
	return ctx, span
}

// EndInvocationSpan 结束 span，并将调用方给出的 outcome 记为 invocation.outcome 属性
func EndInvocationSpan(span trace.Span, outcome string) {
	span.SetAttributes(attribute.String("invocation.outcome", outcome))
	span.End()
}
