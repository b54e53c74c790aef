package cmd

import (
	"context"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/oriys/logid/internal/auth"
	"github.com/oriys/logid/internal/config"
	"github.com/oriys/logid/internal/core"
	"github.com/oriys/logid/internal/credential"
	"github.com/oriys/logid/internal/filter"
	"github.com/oriys/logid/internal/logquery"
	"github.com/oriys/logid/internal/metrics"
	"github.com/oriys/logid/internal/region"
	"github.com/oriys/logid/internal/telemetry"
)

// app 持有一次命令执行所需的全部组件
type app struct {
	cfg     *config.Config
	logger  *logrus.Logger
	metrics *metrics.Metrics
	tel     *telemetry.Telemetry
	regions *region.Registry
	creds   *credential.Source
	orch    *core.Orchestrator
}

// newApp 按配置组装组件。日志写到 stderr，查询结果独占 stdout。
func newApp(ctx context.Context, cfg *config.Config, stderr io.Writer) (*app, error) {
	logger := telemetry.NewLogger(cfg.Logging, stderr)

	regions, err := region.NewRegistry(cfg.Regions)
	if err != nil {
		return nil, &core.Error{Kind: core.KindInvalidArgument, Err: err}
	}

	chain, err := filter.Load(cfg.Filter.RulesFile, cfg.Filter.ReplaceDefaults)
	if err != nil {
		return nil, &core.Error{Kind: core.KindInvalidArgument, Err: err}
	}

	telCfg := cfg.Telemetry
	telCfg.Version = Version
	tel, err := telemetry.New(ctx, telCfg)
	if err != nil {
		// 追踪后端不可用不影响查询
		logger.WithError(err).Warn("tracing disabled")
		tel, _ = telemetry.New(ctx, telemetry.Config{})
	}

	m := metrics.NewMetrics(cfg.Metrics.Namespace)
	httpClient := telemetry.NewHTTPClient(cfg.HTTP.Timeout)
	creds := credential.NewSource(credential.Env)

	tokens := auth.NewManager(creds, auth.Config{
		TTL:         cfg.Auth.TokenTTL,
		RefreshSkew: cfg.Auth.RefreshSkew,
		Timeout:     cfg.HTTP.Timeout,
		UserAgent:   cfg.HTTP.UserAgent,
	},
		auth.WithHTTPClient(httpClient),
		auth.WithLogger(logger),
		auth.WithMetrics(m),
	)

	querier := logquery.NewClient(chain, logquery.Config{
		Timeout:         cfg.HTTP.Timeout,
		UserAgent:       cfg.HTTP.UserAgent,
		ScanSpanMinutes: cfg.Query.ScanSpanMinutes,
	},
		logquery.WithHTTPClient(httpClient),
		logquery.WithLogger(logger),
		logquery.WithMetrics(m),
	)

	logger.WithFields(logrus.Fields{
		"rules":   chain.Len(),
		"tracing": tel.IsEnabled(),
	}).Debug("components ready")

	return &app{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		tel:     tel,
		regions: regions,
		creds:   creds,
		orch:    core.NewOrchestrator(regions, tokens, querier, logger),
	}, nil
}

// close 导出指标并关闭追踪，失败只记录日志
func (a *app) close() {
	if err := a.metrics.WriteTextfile(a.cfg.Metrics.Textfile); err != nil {
		a.logger.WithError(err).WithField("path", a.cfg.Metrics.Textfile).Error("write metrics textfile")
	}
	// 调用方的上下文可能已被信号取消，导出仍需完成
	if err := a.tel.Shutdown(context.Background()); err != nil {
		a.logger.WithError(err).Warn("telemetry shutdown")
	}
}
