// Package credential 负责为区域解析原始会话凭据（CAS_SESSION）。
//
// 解析顺序：
//  1. 区域专属的环境变量（如 CAS_SESSION_US），按注册表给出的顺序
//  2. 通用回退变量 CAS_SESSION
//
// 每个变量都支持 <KEY>_FILE 形式，从文件读取凭据，文件优先于直接设置的值。
// 绝不会使用其他区域的凭据作为替代。
package credential

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/oriys/logid/internal/region"
)

// FallbackKey 是所有区域共用的回退凭据变量
const FallbackKey = "CAS_SESSION"

// ErrMissingCredential 表示区域专属变量和回退变量都没有提供凭据
var ErrMissingCredential = errors.New("missing credential")

// ErrCredentialFile 表示 <KEY>_FILE 指向的文件无法读取
var ErrCredentialFile = errors.New("credential file unreadable")

// Credential 是绑定到单个区域的会话凭据。
// String 和 GoString 只返回掩码，避免凭据被意外写入日志。
type Credential struct {
	value string
	// Key 是实际提供凭据的变量名
	Key string
}

// Value 返回原始凭据，仅用于构造认证请求。
func (c Credential) Value() string { return c.value }

func (c Credential) String() string { return Mask(c.value) }

func (c Credential) GoString() string { return "credential.Credential{" + Mask(c.value) + "}" }

// Lookuper 提供已解析的配置值（通常是进程环境）。
type Lookuper interface {
	Lookup(key string) (string, bool)
}

// LookupFunc 适配 os.LookupEnv 之类的函数。
type LookupFunc func(key string) (string, bool)

// Lookup 实现 Lookuper。
func (f LookupFunc) Lookup(key string) (string, bool) { return f(key) }

// Env 是基于进程环境的 Lookuper。
var Env Lookuper = LookupFunc(os.LookupEnv)

// MapLookuper 是基于 map 的 Lookuper，主要用于测试。
type MapLookuper map[string]string

// Lookup 实现 Lookuper。
func (m MapLookuper) Lookup(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

// Source 按固定顺序为区域解析凭据。
type Source struct {
	lookup   Lookuper
	readFile func(string) ([]byte, error)
}

// NewSource 创建凭据源。lookup 为 nil 时使用进程环境。
func NewSource(lookup Lookuper) *Source {
	if lookup == nil {
		lookup = Env
	}
	return &Source{lookup: lookup, readFile: os.ReadFile}
}

// Keys 返回解析该区域凭据时依次查看的变量名。
func Keys(cfg region.Config) []string {
	keys := make([]string, 0, len(cfg.CredentialKeys)+1)
	keys = append(keys, cfg.CredentialKeys...)
	return append(keys, FallbackKey)
}

// CredentialFor 解析区域凭据，第一个非空值胜出。
//
// 参数：
//   - cfg: 区域配置，提供区域专属变量名
//
// 返回值：
//   - Credential: 解析到的凭据
//   - error: 所有变量都为空时返回包装了 ErrMissingCredential 的错误；
//     <KEY>_FILE 指向的文件读取失败时返回包装了 ErrCredentialFile 的错误
func (s *Source) CredentialFor(cfg region.Config) (Credential, error) {
	keys := Keys(cfg)
	for _, key := range keys {
		v, err := s.readKey(key)
		if err != nil {
			return Credential{}, fmt.Errorf("%w for region %s: %w", ErrCredentialFile, cfg.ID, err)
		}
		if v != "" {
			return Credential{value: v, Key: key}, nil
		}
	}
	return Credential{}, fmt.Errorf("%w for region %s: set one of %s", ErrMissingCredential, cfg.ID, strings.Join(keys, ", "))
}

// readKey 读取单个变量，<KEY>_FILE 优先。
// 文件读取失败直接报错，不回落到其他变量。
func (s *Source) readKey(key string) (string, error) {
	if path, ok := s.lookup.Lookup(key + "_FILE"); ok {
		if path = strings.TrimSpace(path); path != "" {
			b, err := s.readFile(path)
			if err != nil {
				return "", fmt.Errorf("%s_FILE: %w", key, err)
			}
			if v := strings.TrimSpace(string(b)); v != "" {
				return v, nil
			}
		}
	}
	if v, ok := s.lookup.Lookup(key); ok {
		return strings.TrimSpace(v), nil
	}
	return "", nil
}

// Mask 返回秘密值的掩码形式，只暴露长度。
func Mask(secret string) string {
	if secret == "" {
		return "<empty>"
	}
	return fmt.Sprintf("****(%d chars)", len(secret))
}
