// Package auth 负责把区域会话凭据换取为短期访问令牌，并在进程内缓存。
//
// 每个区域的缓存条目相互独立：命中时不发起任何网络请求；
// 过期后由下一次 GetToken 惰性刷新，同一区域的并发请求共享一次换取。
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken 表示令牌不是可解析的 JWT
var ErrInvalidToken = errors.New("invalid token")

// Claims 是访问令牌中我们关心的声明。
type Claims struct {
	// Username 部分区域在令牌中携带的登录名
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// parser 只解析不校验签名，令牌的签发方是认证服务，本地没有密钥。
var parser = jwt.NewParser()

// inspectJWT 读取令牌的 exp 与 sub 声明。
// 令牌不是 JWT 时返回 ErrInvalidToken，调用方按固定有效期处理。
func inspectJWT(tokenStr string) (exp time.Time, subject string, err error) {
	claims := &Claims{}
	if _, _, err := parser.ParseUnverified(tokenStr, claims); err != nil {
		return time.Time{}, "", ErrInvalidToken
	}
	if claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	}
	subject = claims.Subject
	if subject == "" {
		subject = claims.Username
	}
	return exp, subject, nil
}
