package filter

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// File 是过滤规则文件的结构，YAML 与 JSON 均可。
//
// 示例：
//
//	replace_defaults: false
//	rules:
//	  - match: key_prefix
//	    pattern: _debug_
//	    action: drop_field
//	msg_filters:
//	  - 'trace_token=\S+'
//
// msg_filters / _msg_filters / patterns 是正则列表，每一项转换为作用于 _msg 的 strip 规则。
type File struct {
	ReplaceDefaults *bool    `yaml:"replace_defaults"`
	Rules           []Rule   `yaml:"rules"`
	MsgFilters      []string `yaml:"msg_filters"`
	LegacyFilters   []string `yaml:"_msg_filters"`
	Patterns        []string `yaml:"patterns"`
}

// allRules 返回文件中的全部规则，rules 在前，正则列表在后。
func (f File) allRules() []Rule {
	rules := append([]Rule(nil), f.Rules...)
	for _, list := range [][]string{f.MsgFilters, f.LegacyFilters, f.Patterns} {
		for _, p := range list {
			rules = append(rules, Rule{Match: MatchValueRegex, Pattern: p, Action: Strip, Field: MessageKey})
		}
	}
	return rules
}

// ParseFile 解析规则文件内容。
func ParseFile(data []byte) (File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("parse filter rules: %w", err)
	}
	return f, nil
}

// Load 根据规则文件构建过滤链。
//
// 参数：
//   - path: 规则文件路径，为空时返回默认过滤链
//   - replaceDefaults: 文件规则是否替换默认规则，文件中的 replace_defaults 优先
func Load(path string, replaceDefaults bool) (*Chain, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read filter rules %s: %w", path, err)
	}
	f, err := ParseFile(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if f.ReplaceDefaults != nil {
		replaceDefaults = *f.ReplaceDefaults
	}

	if replaceDefaults {
		c, err := NewChain(f.allRules()...)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return c, nil
	}
	c, err := Default().Append(f.allRules()...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}
