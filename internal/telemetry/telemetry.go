// Package telemetry 提供日志、OpenTelemetry 追踪与 HTTP 传输层的封装。
// 主要功能包括：
//   - 根据配置构造 logrus 日志记录器，并把追踪上下文注入日志
//   - 初始化 OTLP 追踪导出器（默认关闭，命令行工具按需开启）
//   - 构造带追踪与代理支持的 HTTP 客户端
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// instrumentationName 是本项目创建 Span 时使用的追踪器名称
const instrumentationName = "github.com/oriys/logid"

// Config 定义遥测配置结构体。
type Config struct {
	// Enabled 控制是否启用追踪，设为 false 时使用空操作追踪器
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Endpoint 指定 OTLP 接收器的 gRPC 端点地址，例如 "localhost:4317"
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
	// ServiceName 标识追踪数据来源
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	// SampleRate 采样率，取值范围 0.0 到 1.0
	SampleRate float64 `mapstructure:"sample_rate" yaml:"sample_rate" validate:"gte=0,lte=1"`
	// Environment 标识运行环境
	Environment string `mapstructure:"environment" yaml:"environment"`
	// Version 写入资源属性的程序版本
	Version string `mapstructure:"-" yaml:"-"`
}

// Telemetry 持有追踪提供者，负责其生命周期。
type Telemetry struct {
	config         Config
	tracerProvider *sdktrace.TracerProvider
}

// New 根据给定配置创建 Telemetry 实例。
//
// 该函数执行以下操作：
//  1. 未启用时返回空实例，StartSpan 使用全局的空操作追踪器
//  2. 建立到 OTLP 接收器的 gRPC 连接
//  3. 配置采样器和追踪提供者，并设置为全局提供者
//
// 参数：
//   - ctx: 上下文，用于控制连接超时
//   - cfg: 遥测配置
func New(ctx context.Context, cfg Config) (*Telemetry, error) {
	if !cfg.Enabled {
		return &Telemetry{config: cfg}, nil
	}

	if cfg.ServiceName == "" {
		cfg.ServiceName = "logid"
	}
	if cfg.SampleRate <= 0 || cfg.SampleRate > 1 {
		cfg.SampleRate = 1.0
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	// 命令行工具不能因追踪后端不可用而长时间阻塞
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	conn, err := grpc.DialContext(ctx, cfg.Endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection to %s: %w", cfg.Endpoint, err)
	}

	exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.Version),
			attribute.String("environment", cfg.Environment),
		),
		resource.WithHost(),
		resource.WithProcess(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	var sampler sdktrace.Sampler
	if cfg.SampleRate >= 1.0 {
		sampler = sdktrace.AlwaysSample()
	} else {
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	// 短生命周期进程使用同步导出，Shutdown 时不会丢失 Span
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler)),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Telemetry{
		config:         cfg,
		tracerProvider: tp,
	}, nil
}

// Shutdown 刷新待发送的追踪数据并释放资源。
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil || t.tracerProvider == nil {
		return nil
	}
	return t.tracerProvider.Shutdown(ctx)
}

// IsEnabled 返回追踪是否已启用。
func (t *Telemetry) IsEnabled() bool {
	return t != nil && t.config.Enabled
}

// StartSpan 从全局追踪提供者创建新的 Span。
// 使用完毕后需调用 End() 方法结束。
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, name, opts...)
}

// TraceIDFromContext 从上下文中提取 Trace ID，无有效 Span 时返回空字符串。
func TraceIDFromContext(ctx context.Context) string {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}

// RecordError 在当前 Span 上记录错误。
func RecordError(ctx context.Context, err error) {
	trace.SpanFromContext(ctx).RecordError(err)
}
