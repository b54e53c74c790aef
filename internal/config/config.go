// Package config 提供 logid 的配置管理功能。
// 配置来源按优先级从高到低：命令行标志、LOGID_* 环境变量、配置文件、默认值。
// 会话凭据不属于配置文件，始终从环境变量（或 .env）读取。
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/oriys/logid/internal/region"
	"github.com/oriys/logid/internal/telemetry"
)

// EnvPrefix 是配置项环境变量的前缀，如 LOGID_HTTP_TIMEOUT
const EnvPrefix = "LOGID"

// EnableLoggingEnv 打开诊断日志的环境变量
const EnableLoggingEnv = "ENABLE_LOGGING"

// Config 是应用程序的主配置结构体。
type Config struct {
	// HTTP 出站请求配置
	HTTP HTTPConfig `mapstructure:"http" yaml:"http"`
	// Auth 令牌缓存配置
	Auth AuthConfig `mapstructure:"auth" yaml:"auth"`
	// Query 日志查询配置
	Query QueryConfig `mapstructure:"query" yaml:"query"`
	// Filter 过滤规则配置
	Filter FilterConfig `mapstructure:"filter" yaml:"filter"`
	// Regions 按区域覆盖内置端点
	Regions map[string]region.Override `mapstructure:"regions" yaml:"regions,omitempty" validate:"dive"`
	// Logging 诊断日志配置
	Logging telemetry.LogConfig `mapstructure:"logging" yaml:"logging"`
	// Metrics Prometheus 指标配置
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
	// Telemetry 分布式追踪配置
	Telemetry telemetry.Config `mapstructure:"telemetry" yaml:"telemetry"`
	// Output 输出格式配置
	Output OutputConfig `mapstructure:"output" yaml:"output"`
}

// HTTPConfig 出站 HTTP 配置。
type HTTPConfig struct {
	// Timeout 单次网络调用的超时
	// 默认值：30 秒
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"gt=0"`
	UserAgent string        `mapstructure:"user_agent" yaml:"user_agent"`
}

// AuthConfig 令牌缓存配置。
type AuthConfig struct {
	// TokenTTL 令牌固定有效期
	// 默认值：1 小时
	TokenTTL time.Duration `mapstructure:"token_ttl" yaml:"token_ttl" validate:"gt=0"`
	// RefreshSkew 提前视为过期的时间
	// 默认值：0
	RefreshSkew time.Duration `mapstructure:"refresh_skew" yaml:"refresh_skew" validate:"gte=0,ltfield=TokenTTL"`
}

// QueryConfig 日志查询配置。
type QueryConfig struct {
	// ScanSpanMinutes 服务端扫描的时间跨度（分钟）
	// 默认值：10
	ScanSpanMinutes int `mapstructure:"scan_span_minutes" yaml:"scan_span_minutes" validate:"gte=1,lte=1440"`
}

// FilterConfig 过滤规则配置。
type FilterConfig struct {
	// RulesFile YAML/JSON 规则文件路径，为空时只使用默认规则
	RulesFile string `mapstructure:"rules_file" yaml:"rules_file"`
	// ReplaceDefaults 规则文件是否替换默认规则
	ReplaceDefaults bool `mapstructure:"replace_defaults" yaml:"replace_defaults"`
}

// MetricsConfig Prometheus 指标配置。
type MetricsConfig struct {
	Namespace string `mapstructure:"namespace" yaml:"namespace" validate:"required"`
	// Textfile 退出前写入指标的文件，为空时不写
	Textfile string `mapstructure:"textfile" yaml:"textfile"`
}

// OutputConfig 输出格式配置。
type OutputConfig struct {
	Format       string `mapstructure:"format" yaml:"format" validate:"oneof=json yaml table"`
	ShowMeta     bool   `mapstructure:"show_meta" yaml:"show_meta"`
	ShowTagInfos bool   `mapstructure:"show_tag_infos" yaml:"show_tag_infos"`
}

// Default 返回填充了全部默认值的配置。
func Default() *Config {
	c := &Config{}
	c.ApplyDefaults()
	return c
}

// DefaultDir 返回默认配置目录 ~/.config/logid。
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".logid"
	}
	return filepath.Join(home, ".config", "logid")
}

// DefaultPath 返回默认配置文件路径。
func DefaultPath() string {
	return filepath.Join(DefaultDir(), "config.yaml")
}

// Load 从 YAML 配置文件加载配置，并应用默认值、环境变量覆盖与校验。
//
// 参数：
//   - path: 配置文件的路径
//
// 返回值：
//   - *Config: 加载并处理后的配置对象
//   - error: 读取、解析或校验失败时返回错误
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg.ApplyDefaults()
	cfg.ApplyEnvOverrides(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides 应用不带 LOGID_ 前缀的兼容环境变量。
// 目前只有 ENABLE_LOGGING：true/on/1/yes 打开日志，false/off/0/no 关闭。
func (c *Config) ApplyEnvOverrides(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnableLoggingEnv); ok {
		if enabled, valid := ParseFlag(v); valid {
			c.Logging.Enabled = enabled
		}
	}
}

// ParseFlag 解析开关类环境变量，第二个返回值表示取值是否可识别。
func ParseFlag(v string) (value bool, ok bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "on", "1", "yes":
		return true, true
	case "false", "off", "0", "no":
		return false, true
	}
	return false, false
}

// ApplyDefaults 为未设置的配置项填充默认值。
func (c *Config) ApplyDefaults() {
	if c.HTTP.Timeout == 0 {
		c.HTTP.Timeout = 30 * time.Second
	}
	if c.HTTP.UserAgent == "" {
		c.HTTP.UserAgent = "logid-cli"
	}
	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = time.Hour
	}
	if c.Query.ScanSpanMinutes == 0 {
		c.Query.ScanSpanMinutes = 10
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "logid"
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "logid"
	}
	if c.Telemetry.Endpoint == "" {
		c.Telemetry.Endpoint = "localhost:4317"
	}
	if c.Telemetry.SampleRate == 0 {
		c.Telemetry.SampleRate = 1.0
	}
	if c.Telemetry.Environment == "" {
		c.Telemetry.Environment = "development"
	}
	if c.Output.Format == "" {
		c.Output.Format = "json"
	}
}

var validate = validator.New()

// ErrInvalid 表示配置校验失败
var ErrInvalid = errors.New("invalid configuration")

// Validate 校验配置取值。
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if _, err := region.NewRegistry(c.Regions); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}
