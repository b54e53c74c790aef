// Package core 把区域解析、令牌获取与日志查询串成一次完整的查询。
// Orchestrator.Run 是命令行层唯一的入口，返回完整结果或分类错误，
// 不返回部分结果。
package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/oriys/logid/internal/auth"
	"github.com/oriys/logid/internal/logquery"
	"github.com/oriys/logid/internal/region"
	"github.com/oriys/logid/internal/telemetry"
)

// ErrEmptyLogID 表示没有提供 logid
var ErrEmptyLogID = errors.New("logid must not be empty")

// TokenProvider 为区域提供有效令牌，*auth.Manager 实现了该接口。
type TokenProvider interface {
	GetToken(ctx context.Context, cfg region.Config) (auth.Token, error)
}

// Querier 执行日志查询，*logquery.Client 实现了该接口。
type Querier interface {
	Query(ctx context.Context, rc region.Config, tok auth.Token, logid string, psmFilters []string) (*logquery.QueryResult, error)
}

// Orchestrator 协调一次单区域查询。
type Orchestrator struct {
	regions *region.Registry
	tokens  TokenProvider
	querier Querier
	logger  *logrus.Logger
}

// NewOrchestrator 创建 Orchestrator。logger 为 nil 时不输出日志。
func NewOrchestrator(regions *region.Registry, tokens TokenProvider, querier Querier, logger *logrus.Logger) *Orchestrator {
	if logger == nil {
		logger = telemetry.NopLogger()
	}
	return &Orchestrator{
		regions: regions,
		tokens:  tokens,
		querier: querier,
		logger:  logger,
	}
}

// Run 在指定区域按 logid 查询日志。
//
// 参数：
//   - regionID: 区域标识符，大小写不敏感
//   - logid: 追踪 ID
//   - psmFilters: 可选的 PSM 列表
//
// 返回值：
//   - *logquery.QueryResult: 完整的查询结果
//   - error: *Error，Kind 对应固定退出码
func (o *Orchestrator) Run(ctx context.Context, regionID, logid string, psmFilters []string) (*logquery.QueryResult, error) {
	logid = strings.TrimSpace(logid)
	if logid == "" {
		return nil, &Error{Kind: KindInvalidArgument, Err: ErrEmptyLogID}
	}

	rc, err := o.regions.Resolve(regionID)
	if err != nil {
		return nil, &Error{Kind: KindUnknownRegion, Err: err}
	}
	if !rc.Configured() {
		return nil, &Error{
			Kind:   KindRegionNotConfigured,
			Region: rc.ID,
			Err:    fmt.Errorf("%w: %s has no log service endpoint", region.ErrNotConfigured, rc.DisplayName),
		}
	}

	ctx, span := telemetry.StartSpan(ctx, "logid.run")
	defer span.End()

	log := telemetry.EntryWithTraceContext(ctx, o.logger.WithFields(logrus.Fields{
		"region": rc.ID,
		"logid":  logid,
	}))
	log.WithField("psm", psmFilters).Info("query started")

	tok, err := o.tokens.GetToken(ctx, rc)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return nil, classifyAuth(rc.ID, err)
	}

	res, err := o.querier.Query(ctx, rc, tok, logid, psmFilters)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return nil, classifyQuery(rc.ID, err)
	}
	return res, nil
}

func classifyAuth(id region.ID, err error) *Error {
	kind := KindExchangeFailed
	var aerr *auth.Error
	if errors.As(err, &aerr) && aerr.Kind == auth.KindMissingCredential {
		kind = KindMissingCredential
	}
	return &Error{Kind: kind, Region: id, Err: err}
}

func classifyQuery(id region.ID, err error) *Error {
	kind := KindQueryTransport
	var qerr *logquery.Error
	if errors.As(err, &qerr) && qerr.Kind == logquery.KindMalformed {
		kind = KindQueryMalformed
	}
	return &Error{Kind: kind, Region: id, Err: err}
}
