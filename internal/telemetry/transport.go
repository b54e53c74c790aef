package telemetry

import (
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
)

// HTTPClientTransport 返回一个带追踪功能的 http.RoundTripper。
// 该传输层会为发出的请求创建客户端 Span，并把追踪上下文注入请求头。
//
// 参数：
//   - base: 基础传输层，如果为 nil 则使用 NewBaseTransport()
func HTTPClientTransport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = NewBaseTransport()
	}
	return otelhttp.NewTransport(base,
		otelhttp.WithTracerProvider(otel.GetTracerProvider()),
		otelhttp.WithPropagators(otel.GetTextMapPropagator()),
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Host
		}),
	)
}

// NewBaseTransport 返回读取 HTTPS_PROXY / HTTP_PROXY 的传输层。
// 每次调用都是新的连接池，不在多次运行之间复用连接。
func NewBaseTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: 10 * time.Second,
		MaxIdleConns:        4,
		IdleConnTimeout:     30 * time.Second,
	}
}

// NewHTTPClient 返回带追踪与整体超时的 HTTP 客户端。
//
// 使用示例：
//
//	client := telemetry.NewHTTPClient(30 * time.Second)
//	resp, err := client.Do(req)
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: HTTPClientTransport(nil),
		Timeout:   timeout,
	}
}
