package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"

	"github.com/oriys/logid/internal/credential"
	"github.com/oriys/logid/internal/metrics"
	"github.com/oriys/logid/internal/region"
	"github.com/oriys/logid/internal/telemetry"
)

// TokenHeader 是认证服务返回令牌、查询服务接收令牌所用的响应头
const TokenHeader = "X-Jwt-Token"

// maxBodyBytes 限制读取认证响应体的大小
const maxBodyBytes = 1 << 20

// CredentialProvider 为区域提供会话凭据，*credential.Source 实现了该接口。
type CredentialProvider interface {
	CredentialFor(cfg region.Config) (credential.Credential, error)
}

// Config 是 Manager 的可选参数。零值字段使用默认值。
type Config struct {
	// TTL 令牌固定有效期，默认 1 小时
	TTL time.Duration
	// RefreshSkew 在过期前多久视为失效，默认 0
	RefreshSkew time.Duration
	// Timeout 单次换取请求的超时，默认 30 秒
	Timeout   time.Duration
	UserAgent string
}

// Manager 负责换取、缓存和惰性刷新访问令牌。
type Manager struct {
	creds   CredentialProvider
	store   TokenStore
	client  *http.Client
	cfg     Config
	logger  *logrus.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu     sync.Mutex
	groups map[region.ID]*singleflight.Group
}

// Option 用于定制 Manager。
type Option func(*Manager)

// WithStore 替换默认的内存令牌存储。
func WithStore(s TokenStore) Option { return func(m *Manager) { m.store = s } }

// WithHTTPClient 指定发起换取请求的 HTTP 客户端。
func WithHTTPClient(c *http.Client) Option { return func(m *Manager) { m.client = c } }

// WithLogger 指定日志记录器。
func WithLogger(l *logrus.Logger) Option { return func(m *Manager) { m.logger = l } }

// WithMetrics 指定指标集合。
func WithMetrics(mt *metrics.Metrics) Option { return func(m *Manager) { m.metrics = mt } }

// WithClock 替换时钟，测试中用于模拟过期。
func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

// NewManager 创建令牌管理器。
//
// 参数：
//   - creds: 凭据来源
//   - cfg: 有效期、超时等参数
//   - opts: 可选的存储、HTTP 客户端、日志与指标
func NewManager(creds CredentialProvider, cfg Config, opts ...Option) *Manager {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.RefreshSkew < 0 {
		cfg.RefreshSkew = 0
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	m := &Manager{
		creds:  creds,
		cfg:    cfg,
		now:    time.Now,
		groups: make(map[region.ID]*singleflight.Group),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.store == nil {
		m.store = NewMemoryStore()
	}
	if m.client == nil {
		m.client = telemetry.NewHTTPClient(cfg.Timeout)
	}
	if m.logger == nil {
		m.logger = telemetry.NopLogger()
	}
	return m
}

// Store 返回管理器使用的令牌存储。
func (m *Manager) Store() TokenStore { return m.store }

// Cached 返回区域当前仍然有效的缓存令牌，不触发换取。
func (m *Manager) Cached(id region.ID) (Token, bool) {
	tok, ok := m.store.Load(id)
	if !ok || !tok.ValidAt(m.now(), m.cfg.RefreshSkew) {
		return Token{}, false
	}
	return tok, true
}

// Invalidate 丢弃区域的缓存令牌，下一次 GetToken 会重新换取。
func (m *Manager) Invalidate(id region.ID) {
	m.store.Delete(id)
}

// group 返回区域专属的 singleflight 组。
func (m *Manager) group(id region.ID) *singleflight.Group {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[id]
	if !ok {
		g = &singleflight.Group{}
		m.groups[id] = g
	}
	return g
}

// GetToken 返回区域的有效令牌。
//
// 流程：
//  1. 缓存命中直接返回，不发起网络请求
//  2. 解析凭据，缺失时返回 KindMissingCredential
//  3. 同一区域的并发调用共享一次换取请求
//  4. 换取成功后替换缓存条目
//
// ctx 取消后调用方立即返回；进行中的换取在超时内完成，
// 只有完整解析出的令牌才会写入缓存。
func (m *Manager) GetToken(ctx context.Context, cfg region.Config) (Token, error) {
	if tok, ok := m.Cached(cfg.ID); ok {
		m.metrics.RecordCacheHit(string(cfg.ID))
		return tok, nil
	}

	cred, err := m.creds.CredentialFor(cfg)
	if err != nil {
		m.metrics.RecordExchange(string(cfg.ID), "missing_credential", 0)
		return Token{}, &Error{Kind: KindMissingCredential, Region: cfg.ID, Err: err}
	}

	// 换取请求不随单个调用方取消，其他等待者仍可拿到结果
	flightCtx := context.WithoutCancel(ctx)
	ch := m.group(cfg.ID).DoChan(string(cfg.ID), func() (interface{}, error) {
		if tok, ok := m.Cached(cfg.ID); ok {
			return tok, nil
		}
		tok, err := m.exchange(flightCtx, cfg, cred)
		if err != nil {
			return nil, err
		}
		m.store.Store(cfg.ID, tok)
		return tok, nil
	})

	select {
	case <-ctx.Done():
		return Token{}, &Error{Kind: KindExchangeFailed, Region: cfg.ID, Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return Token{}, res.Err
		}
		return res.Val.(Token), nil
	}
}

// exchange 用凭据向认证服务换取令牌，不做重试。
func (m *Manager) exchange(ctx context.Context, cfg region.Config, cred credential.Credential) (Token, error) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	ctx, span := telemetry.StartSpan(ctx, "auth.exchange")
	defer span.End()
	span.SetAttributes(attribute.String("logid.region", string(cfg.ID)))

	log := telemetry.EntryWithTraceContext(ctx, m.logger.WithFields(logrus.Fields{
		"region":         cfg.ID,
		"credential_key": cred.Key,
	}))
	start := time.Now()

	tok, status, err := m.doExchange(ctx, cfg, cred)
	elapsed := time.Since(start)
	if err != nil {
		aerr := &Error{Kind: KindExchangeFailed, Region: cfg.ID, Status: status, Err: err}
		span.RecordError(aerr)
		span.SetStatus(codes.Error, string(KindExchangeFailed))
		m.metrics.RecordExchange(string(cfg.ID), "failed", elapsed)
		log.WithFields(logrus.Fields{"status": status, "elapsed": elapsed}).WithError(err).Warn("token exchange failed")
		return Token{}, aerr
	}

	m.metrics.RecordExchange(string(cfg.ID), "success", elapsed)
	log.WithFields(logrus.Fields{
		"elapsed":    elapsed,
		"expires_at": tok.ExpiresAt.Format(time.RFC3339),
	}).Info("token exchanged")
	return tok, nil
}

func (m *Manager) doExchange(ctx context.Context, cfg region.Config, cred credential.Credential) (Token, int, error) {
	if cfg.AuthURL == "" {
		return Token{}, 0, fmt.Errorf("region %s has no auth endpoint: %w", cfg.ID, region.ErrNotConfigured)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.AuthURL, nil)
	if err != nil {
		return Token{}, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Cookie", credential.FallbackKey+"="+cred.Value())
	req.Header.Set("Accept", "application/json, text/plain, */*")
	if m.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", m.cfg.UserAgent)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return Token{}, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Token{}, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		m.logger.WithFields(logrus.Fields{"region": cfg.ID, "status": resp.StatusCode}).
			Debugf("auth response body: %s", truncate(body, 200))
		return Token{}, resp.StatusCode, ErrUnexpectedStatus
	}

	value := strings.TrimSpace(resp.Header.Get(TokenHeader))
	if value == "" {
		value = tokenFromBody(body)
	}
	if value == "" {
		return Token{}, resp.StatusCode, ErrNoToken
	}

	exp, subject, err := inspectJWT(value)
	if err != nil && !errors.Is(err, ErrInvalidToken) {
		return Token{}, resp.StatusCode, err
	}
	tok := newToken(value, m.now(), m.cfg.TTL, exp, subject)
	if !tok.ValidAt(m.now(), m.cfg.RefreshSkew) {
		return Token{}, resp.StatusCode, fmt.Errorf("%w: expires at %s", ErrTokenExpired, tok.ExpiresAt.Format(time.RFC3339))
	}
	return tok, resp.StatusCode, nil
}

// tokenFromBody 从 JSON 响应体中查找令牌：token、jwt 或 data.token。
func tokenFromBody(body []byte) string {
	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if data, ok := payload["data"].(map[string]interface{}); ok {
		payload["data.token"] = data["token"]
	}
	for _, key := range []string{"token", "jwt", "data.token"} {
		if v, ok := payload[key].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// truncate 截断响应体，只用于调试日志。
func truncate(body []byte, n int) string {
	s := strings.TrimSpace(string(body))
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
