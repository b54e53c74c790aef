package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrUnknownKey 表示配置项不存在
var ErrUnknownKey = errors.New("unknown config key")

// regionKeys 是 regions.<id> 下允许设置的字段
var regionKeys = map[string]bool{"auth_url": true, "query_url": true, "vregion": true}

// WriteFile 把配置写入 path，目录不存在时自动创建。
// overwrite 为 false 且文件已存在时返回 os.ErrExist。
func WriteFile(path string, cfg *Config, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s: %w", path, os.ErrExist)
		}
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// Keys 返回所有可设置的点分配置项，按字母序排列。
func Keys() []string {
	defaults := Defaults()
	keys := make([]string, 0, len(defaults))
	for k := range defaults {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// validKey 报告 key 是否是合法的配置项。
func validKey(key string) bool {
	parts := strings.Split(key, ".")
	if len(parts) == 3 && parts[0] == "regions" {
		return parts[1] != "" && regionKeys[parts[2]]
	}
	for _, k := range Keys() {
		if k == key {
			return true
		}
	}
	return false
}

// SetValue 修改配置文件中的单个配置项，保留文件中的其他内容。
// value 按 YAML 标量解析，因此 "true"、"30"、"30s" 会得到对应的类型。
// 修改后的配置通过校验才会写回文件。
func SetValue(path, key, value string) error {
	if !validKey(key) {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}

	tree := map[string]interface{}{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &tree); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		if tree == nil {
			tree = map[string]interface{}{}
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return err
	}

	var scalar interface{}
	if err := yaml.Unmarshal([]byte(value), &scalar); err != nil || scalar == nil {
		scalar = value
	}
	if _, isMap := scalar.(map[string]interface{}); isMap {
		scalar = value
	}
	if _, isList := scalar.([]interface{}); isList {
		scalar = value
	}

	parts := strings.Split(key, ".")
	node := tree
	for _, p := range parts[:len(parts)-1] {
		child, ok := node[p].(map[string]interface{})
		if !ok {
			child = map[string]interface{}{}
			node[p] = child
		}
		node = child
	}
	node[parts[len(parts)-1]] = scalar

	out, err := yaml.Marshal(tree)
	if err != nil {
		return err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(out, cfg); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalid, key, err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o600)
}
