package logquery

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/oriys/logid/internal/region"
)

// Kind 区分查询失败的类别
type Kind string

const (
	// KindTransport 传输失败或非 2xx 响应
	KindTransport Kind = "transport"
	// KindMalformed 响应体结构不合法
	KindMalformed Kind = "malformed"
)

// ErrUnexpectedStatus 表示日志服务返回了非 2xx 状态码
var ErrUnexpectedStatus = errors.New("unexpected status")

// Error 是 Query 返回的错误类型。
type Error struct {
	Kind   Kind
	Region region.ID
	// Status 是日志服务返回的 HTTP 状态码，传输失败时为 0
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("query %s for region %s: status %d: %v", e.Kind, e.Region, e.Status, e.Err)
	}
	return fmt.Sprintf("query %s for region %s: %v", e.Kind, e.Region, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Timeout 报告失败是否由超时引起。
func (e *Error) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(e.Err, &ne) && ne.Timeout()
}
