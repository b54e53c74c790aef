package filter

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidRule 表示规则的匹配方式、动作或正则不合法
var ErrInvalidRule = errors.New("invalid filter rule")

// MatchKind 决定规则如何匹配字段
type MatchKind string

const (
	// MatchKey 键名完全相等
	MatchKey MatchKind = "key"
	// MatchKeyPrefix 键名以 Pattern 开头
	MatchKeyPrefix MatchKind = "key_prefix"
	// MatchValueRegex 值匹配正则 Pattern
	MatchValueRegex MatchKind = "value_regex"
)

// Action 是规则命中后的动作
type Action string

const (
	// DropField 从消息中移除命中的字段
	DropField Action = "drop_field"
	// DropMessage 丢弃整条消息，后续规则不再执行
	DropMessage Action = "drop_message"
	// Strip 从字段值中删除正则命中的片段，只能与 value_regex 搭配
	Strip Action = "strip"
)

// Rule 是一条过滤规则。规则是数据，新增规则无需修改求值逻辑。
type Rule struct {
	Match   MatchKind `json:"match" yaml:"match"`
	Pattern string    `json:"pattern" yaml:"pattern"`
	Action  Action    `json:"action" yaml:"action"`
	// Field 限定 strip 只作用于该键，为空时作用于全部字段
	Field string `json:"field,omitempty" yaml:"field,omitempty"`

	re *regexp.Regexp
}

// compile 校验规则并预编译正则。
func (r Rule) compile() (Rule, error) {
	switch r.Action {
	case DropField, DropMessage, Strip:
	default:
		return r, fmt.Errorf("%w: unknown action %q", ErrInvalidRule, r.Action)
	}
	if r.Pattern == "" {
		return r, fmt.Errorf("%w: empty pattern", ErrInvalidRule)
	}

	switch r.Match {
	case MatchKey, MatchKeyPrefix:
		if r.Action == Strip {
			return r, fmt.Errorf("%w: strip requires %s match", ErrInvalidRule, MatchValueRegex)
		}
		r.re = nil
	case MatchValueRegex:
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return r, fmt.Errorf("%w: pattern %q: %v", ErrInvalidRule, r.Pattern, err)
		}
		r.re = re
	default:
		return r, fmt.Errorf("%w: unknown match kind %q", ErrInvalidRule, r.Match)
	}
	return r, nil
}

func (r Rule) matches(f Field) bool {
	switch r.Match {
	case MatchKey:
		return f.Key == r.Pattern
	case MatchKeyPrefix:
		return strings.HasPrefix(f.Key, r.Pattern)
	case MatchValueRegex:
		return r.re.MatchString(f.Value)
	}
	return false
}

func (r Rule) String() string {
	if r.Field != "" {
		return fmt.Sprintf("%s %s=%q on %s", r.Action, r.Match, r.Pattern, r.Field)
	}
	return fmt.Sprintf("%s %s=%q", r.Action, r.Match, r.Pattern)
}
