// Package logquery 向区域日志服务发起按 logid 的查询，
// 并把各区域略有差异的响应统一为 QueryResult。
//
// 每条消息先做 PSM 复核，再交给过滤链；被丢弃的消息不计入 total_items。
package logquery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/oriys/logid/internal/auth"
	"github.com/oriys/logid/internal/filter"
	"github.com/oriys/logid/internal/metrics"
	"github.com/oriys/logid/internal/region"
	"github.com/oriys/logid/internal/telemetry"
)

// DefaultScanSpanMinutes 是服务端扫描的默认时间跨度
const DefaultScanSpanMinutes = 10

// maxBodyBytes 限制读取的响应体大小
const maxBodyBytes = 64 << 20

// Config 是查询客户端参数，零值字段使用默认值。
type Config struct {
	Timeout         time.Duration
	UserAgent       string
	ScanSpanMinutes int
}

// Client 是区域日志服务的查询客户端。
type Client struct {
	httpClient *http.Client
	chain      *filter.Chain
	cfg        Config
	logger     *logrus.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
}

// Option 用于定制 Client。
type Option func(*Client)

// WithHTTPClient 指定 HTTP 客户端。
func WithHTTPClient(c *http.Client) Option { return func(q *Client) { q.httpClient = c } }

// WithLogger 指定日志记录器。
func WithLogger(l *logrus.Logger) Option { return func(q *Client) { q.logger = l } }

// WithMetrics 指定指标集合。
func WithMetrics(m *metrics.Metrics) Option { return func(q *Client) { q.metrics = m } }

// WithClock 替换时钟。
func WithClock(now func() time.Time) Option { return func(q *Client) { q.now = now } }

// NewClient 创建查询客户端。chain 为 nil 时使用默认过滤链。
func NewClient(chain *filter.Chain, cfg Config, opts ...Option) *Client {
	if chain == nil {
		chain = filter.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.ScanSpanMinutes <= 0 {
		cfg.ScanSpanMinutes = DefaultScanSpanMinutes
	}
	c := &Client{
		chain: chain,
		cfg:   cfg,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = telemetry.NewHTTPClient(cfg.Timeout)
	}
	if c.logger == nil {
		c.logger = telemetry.NopLogger()
	}
	return c
}

// Query 按 logid 查询区域日志。
//
// 参数：
//   - rc: 目标区域
//   - tok: 有效的访问令牌
//   - logid: 追踪 ID
//   - psmFilters: PSM 列表，为空表示不限制；非空时服务端与客户端都会过滤
//
// 返回值：
//   - *QueryResult: 按服务端顺序排列的过滤后消息
//   - error: *Error，Kind 为 KindTransport 或 KindMalformed
func (c *Client) Query(ctx context.Context, rc region.Config, tok auth.Token, logid string, psmFilters []string) (*QueryResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	ctx, span := telemetry.StartSpan(ctx, "logquery.query")
	defer span.End()
	span.SetAttributes(
		attribute.String("logid.region", string(rc.ID)),
		attribute.String("logid.logid", logid),
	)

	psm := normalizePSM(psmFilters)
	log := telemetry.EntryWithTraceContext(ctx, c.logger.WithFields(logrus.Fields{
		"region": rc.ID,
		"logid":  logid,
	}))
	start := time.Now()

	res, err := c.query(ctx, rc, tok, logid, psm, log)
	elapsed := time.Since(start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(err.Kind))
		result := "transport_error"
		if err.Kind == KindMalformed {
			result = "malformed"
		}
		c.metrics.RecordQuery(string(rc.ID), result, elapsed)
		log.WithFields(logrus.Fields{"status": err.Status, "elapsed": elapsed}).WithError(err.Err).Warn("log query failed")
		return nil, err
	}

	c.metrics.RecordQuery(string(rc.ID), "success", elapsed)
	c.metrics.RecordMessages(string(rc.ID), res.TotalItems, res.Stats.DroppedByFilter, res.Stats.DroppedByPSM)
	span.SetAttributes(attribute.Int("logid.total_items", res.TotalItems))
	log.WithFields(logrus.Fields{
		"elapsed":           elapsed,
		"received":          res.Stats.Received,
		"total_items":       res.TotalItems,
		"dropped_by_filter": res.Stats.DroppedByFilter,
		"dropped_by_psm":    res.Stats.DroppedByPSM,
	}).Info("log query completed")
	return res, nil
}

func (c *Client) query(ctx context.Context, rc region.Config, tok auth.Token, logid string, psm []string, log *logrus.Entry) (*QueryResult, *Error) {
	fail := func(kind Kind, status int, err error) *Error {
		return &Error{Kind: kind, Region: rc.ID, Status: status, Err: err}
	}

	payload, err := json.Marshal(Request{
		LogID:         logid,
		PSMList:       psm,
		ScanSpanInMin: c.cfg.ScanSpanMinutes,
		VRegion:       rc.VRegion,
	})
	if err != nil {
		return nil, fail(KindTransport, 0, fmt.Errorf("encode request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rc.QueryURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fail(KindTransport, 0, fmt.Errorf("build request: %w", err))
	}
	requestID := uuid.New().String()
	req.Header.Set(auth.TokenHeader, tok.Value)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("X-Request-Id", requestID)
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	log = log.WithField("request_id", requestID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fail(KindTransport, 0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fail(KindTransport, resp.StatusCode, fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.WithField("status", resp.StatusCode).Debugf("query response body: %s", truncate(body, 500))
		return nil, fail(KindTransport, resp.StatusCode, ErrUnexpectedStatus)
	}

	p, err := parseBody(body)
	if err != nil {
		log.Debugf("malformed query response: %s", truncate(body, 500))
		return nil, fail(KindMalformed, resp.StatusCode, err)
	}

	res := c.assemble(rc, logid, psm, p)
	res.Timestamp = c.now().UTC().Format(time.RFC3339)
	return res, nil
}

// assemble 对消息做 PSM 复核与过滤，保持服务端顺序。
func (c *Client) assemble(rc region.Config, logid string, psm []string, p *parsed) *QueryResult {
	allowed := make(map[string]struct{}, len(psm))
	for _, s := range psm {
		allowed[s] = struct{}{}
	}

	res := &QueryResult{
		LogID:             logid,
		Region:            rc.ID,
		RegionDisplayName: rc.DisplayName,
		Messages:          make([]filter.CanonicalMessage, 0, len(p.messages)),
		Meta:              p.meta,
		ScanTimeRange:     p.scanTimeRange,
		LevelList:         p.levelList,
		TagInfos:          p.tagInfos,
	}
	res.Stats.Received = len(p.messages)

	for _, raw := range p.messages {
		if len(allowed) > 0 {
			if _, ok := allowed[raw.Group.PSM]; !ok {
				res.Stats.DroppedByPSM++
				continue
			}
		}
		m, ok := c.chain.Apply(raw)
		if !ok {
			res.Stats.DroppedByFilter++
			continue
		}
		res.Messages = append(res.Messages, m)
	}
	res.TotalItems = len(res.Messages)
	return res
}

// normalizePSM 去除空白与重复项，保留首次出现的顺序。
func normalizePSM(in []string) []string {
	var out []string
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
