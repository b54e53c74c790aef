package core

import (
	"errors"
	"fmt"

	"github.com/oriys/logid/internal/region"
)

// Kind 是面向命令行的错误分类，每种分类对应固定的退出码与提示。
type Kind string

const (
	KindInvalidArgument     Kind = "invalid_argument"
	KindUnknownRegion       Kind = "unknown_region"
	KindRegionNotConfigured Kind = "region_not_configured"
	KindMissingCredential   Kind = "missing_credential"
	KindExchangeFailed      Kind = "exchange_failed"
	KindQueryTransport      Kind = "query_transport"
	KindQueryMalformed      Kind = "query_malformed"
)

// 退出码
const (
	ExitOK                  = 0
	ExitFailure             = 1
	ExitUnknownRegion       = 2
	ExitMissingCredential   = 3
	ExitExchangeFailed      = 4
	ExitQueryTransport      = 5
	ExitQueryMalformed      = 6
	ExitRegionNotConfigured = 7
	ExitInvalidArgument     = 64
)

var exitCodes = map[Kind]int{
	KindInvalidArgument:     ExitInvalidArgument,
	KindUnknownRegion:       ExitUnknownRegion,
	KindRegionNotConfigured: ExitRegionNotConfigured,
	KindMissingCredential:   ExitMissingCredential,
	KindExchangeFailed:      ExitExchangeFailed,
	KindQueryTransport:      ExitQueryTransport,
	KindQueryMalformed:      ExitQueryMalformed,
}

var hints = map[Kind]string{
	KindInvalidArgument:     "check the command arguments",
	KindUnknownRegion:       "run `logid regions` to list valid regions",
	KindRegionNotConfigured: "set regions.<id>.query_url in the config file",
	KindMissingCredential:   "export CAS_SESSION_<REGION> or CAS_SESSION, or add it to a .env file",
	KindExchangeFailed:      "the session may have expired; refresh CAS_SESSION and retry",
	KindQueryTransport:      "the log service is unreachable or rejected the request; check network, proxy and token",
	KindQueryMalformed:      "the log service returned an unexpected response; retry with ENABLE_LOGGING=true for details",
}

// Error 是 Orchestrator 返回的唯一错误类型。
type Error struct {
	Kind   Kind
	Region region.ID
	Err    error
}

func (e *Error) Error() string {
	if e.Region != "" {
		return fmt.Sprintf("%s (region %s): %v", e.Kind, e.Region, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Hint 返回面向用户的修复建议。
func (e *Error) Hint() string { return hints[e.Kind] }

// ExitCode 返回错误对应的进程退出码。nil 为 0，非 *Error 为 1。
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var ce *Error
	if errors.As(err, &ce) {
		if code, ok := exitCodes[ce.Kind]; ok {
			return code
		}
	}
	return ExitFailure
}

// KindOf 返回错误的分类，非 *Error 时返回空字符串。
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}
