// Package filter 实现日志消息的过滤链。
//
// 过滤链是按注册顺序执行的规则序列：
//   - drop_message 命中任一字段即丢弃整条消息，并跳过剩余规则
//   - drop_field 移除命中的字段
//   - strip 从字段值中删除正则命中的片段
//
// 规则执行完后对 _msg 做空白规整，整个过程重复到结果稳定为止。
// 链本身不可变，Apply 不修改输入，同一输入总是得到同一结果。
package filter

import (
	"regexp"
	"strings"
)

var (
	spaceRun   = regexp.MustCompile(`[ \t]{2,}`)
	blankLines = regexp.MustCompile(`\n\s*\n\s*\n`)
)

// Chain 是不可变的有序规则集合。
type Chain struct {
	rules []Rule
}

// NewChain 校验并编译规则，返回新的过滤链。
func NewChain(rules ...Rule) (*Chain, error) {
	compiled := make([]Rule, 0, len(rules))
	for _, r := range rules {
		c, err := r.compile()
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, c)
	}
	return &Chain{rules: compiled}, nil
}

// Default 返回内置的默认过滤链。
func Default() *Chain {
	c, err := NewChain(DefaultRules()...)
	if err != nil {
		panic("filter: invalid default rules: " + err.Error())
	}
	return c
}

// Rules 返回规则序列的副本。
func (c *Chain) Rules() []Rule {
	out := make([]Rule, len(c.rules))
	copy(out, c.rules)
	return out
}

// Len 返回规则数量。
func (c *Chain) Len() int { return len(c.rules) }

// Append 返回在末尾追加规则后的新链，原链不变。
func (c *Chain) Append(rules ...Rule) (*Chain, error) {
	extra, err := NewChain(rules...)
	if err != nil {
		return nil, err
	}
	merged := make([]Rule, 0, len(c.rules)+len(extra.rules))
	merged = append(merged, c.rules...)
	merged = append(merged, extra.rules...)
	return &Chain{rules: merged}, nil
}

// Apply 对一条消息执行过滤链。
// 第二个返回值为 false 表示消息被整体丢弃，或过滤后没有任何字段。
//
// 规则序列连同 _msg 规整会重复执行，直到字段不再变化，
// 因此结果再次经过同一条链时保持不变。
func (c *Chain) Apply(m RawMessage) (CanonicalMessage, bool) {
	fields := make([]Field, len(m.Fields))
	for i, f := range m.Fields {
		if f.Original == "" {
			f.Original = f.Value
		}
		fields[i] = f
	}

	// 每一轮只会删除字段或缩短取值，循环必然结束
	for {
		next, ok := c.pass(fields)
		if !ok {
			return CanonicalMessage{}, false
		}
		stable := sameFields(fields, next)
		fields = next
		if stable {
			break
		}
	}

	if len(fields) == 0 {
		return CanonicalMessage{}, false
	}

	values := make([]Value, len(fields))
	for i, f := range fields {
		values[i] = Value{
			Key:           f.Key,
			Value:         f.Value,
			OriginalValue: f.Original,
			Type:          f.Type,
			Highlight:     f.Highlight,
		}
	}

	return CanonicalMessage{
		ID:       m.ID,
		Group:    m.Group,
		Values:   values,
		Level:    m.Level,
		Location: m.Location,
	}, true
}

// pass 按顺序执行一遍全部规则并规整 _msg，不修改传入的切片。
func (c *Chain) pass(in []Field) ([]Field, bool) {
	fields := make([]Field, len(in))
	copy(fields, in)

	for _, r := range c.rules {
		switch r.Action {
		case DropMessage:
			for _, f := range fields {
				if r.matches(f) {
					return nil, false
				}
			}
		case DropField:
			kept := fields[:0]
			for _, f := range fields {
				if !r.matches(f) {
					kept = append(kept, f)
				}
			}
			fields = kept
		case Strip:
			for i := range fields {
				if r.Field != "" && fields[i].Key != r.Field {
					continue
				}
				fields[i].Value = r.re.ReplaceAllString(fields[i].Value, "")
			}
		}
	}

	for i := range fields {
		if fields[i].Key == MessageKey {
			fields[i].Value = Normalize(fields[i].Value)
		}
	}
	return fields, true
}

func sameFields(a, b []Field) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Key != b[i].Key || a[i].Value != b[i].Value {
			return false
		}
	}
	return true
}

// Normalize 合并连续空格与多余空行并去除首尾空白。
func Normalize(s string) string {
	s = spaceRun.ReplaceAllString(s, " ")
	s = blankLines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
