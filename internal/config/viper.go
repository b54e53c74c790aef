package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Defaults 返回点分键到默认值的映射，时长以字符串形式表示。
func Defaults() map[string]interface{} {
	var tree map[string]interface{}
	data, _ := yaml.Marshal(Default())
	_ = yaml.Unmarshal(data, &tree)

	out := make(map[string]interface{})
	flattenValues("", tree, out)
	return out
}

func flattenValues(prefix string, node map[string]interface{}, out map[string]interface{}) {
	for k, v := range node {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if child, ok := v.(map[string]interface{}); ok {
			flattenValues(key, child, out)
			continue
		}
		out[key] = v
	}
}

// BindViper 注册默认值并开启 LOGID_* 环境变量绑定。
// 键中的点号映射为下划线，如 http.timeout 对应 LOGID_HTTP_TIMEOUT。
func BindViper(v *viper.Viper) {
	for k, val := range Defaults() {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// FromViper 从 viper 读取配置，依次应用默认值、兼容环境变量与校验。
func FromViper(v *viper.Viper, lookup func(string) (string, bool)) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	cfg.ApplyDefaults()
	cfg.ApplyEnvOverrides(lookup)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
