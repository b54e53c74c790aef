package auth

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/oriys/logid/internal/region"
)

// Kind 区分认证失败的类别
type Kind string

const (
	// KindMissingCredential 区域专属变量与回退变量都未提供凭据
	KindMissingCredential Kind = "missing_credential"
	// KindExchangeFailed 换取请求失败：传输错误、非 2xx 状态或响应中没有令牌
	KindExchangeFailed Kind = "exchange_failed"
)

// ErrUnexpectedStatus 表示认证服务返回了非 2xx 状态码
var ErrUnexpectedStatus = errors.New("unexpected status")

// ErrNoToken 表示认证服务返回成功但响应里找不到令牌
var ErrNoToken = errors.New("no token in auth response")

// ErrTokenExpired 表示新换取的令牌在预留刷新余量后已经过期
var ErrTokenExpired = errors.New("issued token expires within refresh skew")

// Error 是 GetToken 返回的错误类型。
// 错误信息中不包含凭据或令牌。
type Error struct {
	Kind   Kind
	Region region.ID
	// Status 是认证服务返回的 HTTP 状态码，传输失败时为 0
	Status int
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Status != 0:
		return fmt.Sprintf("auth %s for region %s: status %d: %v", e.Kind, e.Region, e.Status, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("auth %s for region %s: %v", e.Kind, e.Region, e.Err)
	default:
		return fmt.Sprintf("auth %s for region %s", e.Kind, e.Region)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Timeout 报告失败是否由超时引起。
func (e *Error) Timeout() bool {
	return isTimeout(e.Err)
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
