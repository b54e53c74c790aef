package telemetry

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
)

// LogConfig 是诊断日志配置。
// 关闭时只输出 error 级别，避免污染标准输出上的查询结果。
type LogConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Level   string `mapstructure:"level" yaml:"level" validate:"omitempty,oneof=trace debug info warn warning error"`
	// Format 为 text 或 json
	Format string `mapstructure:"format" yaml:"format" validate:"omitempty,oneof=text json"`
}

// NewLogger 根据配置创建 logrus 日志记录器，输出到 w（为 nil 时使用 stderr）。
// 自动挂载 LogrusHook，使带上下文的日志条目携带 trace_id。
func NewLogger(cfg LogConfig, w io.Writer) *logrus.Logger {
	if w == nil {
		w = os.Stderr
	}
	logger := logrus.New()
	logger.SetOutput(w)

	if strings.EqualFold(cfg.Format, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level := logrus.ErrorLevel
	if cfg.Enabled {
		level = logrus.InfoLevel
		if cfg.Level != "" {
			if lvl, err := logrus.ParseLevel(cfg.Level); err == nil {
				level = lvl
			}
		}
	}
	logger.SetLevel(level)
	logger.AddHook(NewLogrusHook())
	return logger
}

// NopLogger 返回丢弃所有输出的日志记录器。
func NopLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

// LogrusHook 将追踪上下文添加到日志条目中。
type LogrusHook struct{}

// NewLogrusHook 创建一个新的 LogrusHook 实例。
func NewLogrusHook() *LogrusHook {
	return &LogrusHook{}
}

// Levels 在所有日志级别触发。
func (h *LogrusHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire 在条目携带有效 Span 时写入 trace_id 和 span_id。
func (h *LogrusHook) Fire(entry *logrus.Entry) error {
	ctx := entry.Context
	if ctx == nil {
		return nil
	}
	spanCtx := trace.SpanFromContext(ctx).SpanContext()
	if !spanCtx.IsValid() {
		return nil
	}
	entry.Data["trace_id"] = spanCtx.TraceID().String()
	entry.Data["span_id"] = spanCtx.SpanID().String()
	if spanCtx.IsSampled() {
		entry.Data["trace_sampled"] = true
	}
	return nil
}

// EntryWithTraceContext 把 ctx 附加到日志条目，由 LogrusHook 补充追踪字段。
//
// 使用示例：
//
//	entry := logger.WithField("region", id)
//	entry = telemetry.EntryWithTraceContext(ctx, entry)
//	entry.Info("token exchanged")
func EntryWithTraceContext(ctx context.Context, entry *logrus.Entry) *logrus.Entry {
	return entry.WithContext(ctx)
}
